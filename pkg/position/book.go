// 文件: pkg/position/book.go
// PositionBook - 全部在押杠杆仓位的权威内存集合
//
// 【并发模型】
// 单写者纪律: 变更只来自扫描/执行周期 + 外部成交/平仓回调,
// 两者都经由 Book 的互斥锁串行化。
// 咨询性读取 (健康检查/监控) 走 SnapshotValues 深拷贝, 不阻塞写者。

package position

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"cmx.com/pkg/ident"
	"cmx.com/pkg/riskparam"
)

// =============================================================================
// 错误定义
// =============================================================================

var (
	ErrInvalidPosition = errors.New("invalid position data")
	ErrNotFound        = errors.New("position not found")
)

// =============================================================================
// OpenRequest
// =============================================================================

// OpenRequest 开仓请求 (来自外部成交子系统)
type OpenRequest struct {
	UserID     string
	MarketID   string
	Category   riskparam.Category
	Side       Side
	Size       float64
	EntryPrice float64
	Leverage   int
	Margin     float64
}

func (r OpenRequest) validate() error {
	if r.UserID == "" || r.MarketID == "" {
		return ErrInvalidPosition
	}
	if !r.Category.Valid() {
		return ErrInvalidPosition
	}
	if r.Side != SideLong && r.Side != SideShort {
		return ErrInvalidPosition
	}
	if r.Size <= 0 || r.EntryPrice <= 0 || r.Margin <= 0 || r.Leverage < 1 {
		return ErrInvalidPosition
	}
	return nil
}

// =============================================================================
// Book
// =============================================================================

// Book 在押仓位集合
//
// repo 可选: 注入后所有变更 write-through 到 MySQL+Redis,
// 持久化失败只记日志, 永不阻塞强平路径。
type Book struct {
	mu        sync.RWMutex
	positions map[string]*Position

	repo Repository // 可为 nil (纯内存模式)
}

// NewBook 创建空仓位簿
func NewBook(repo Repository) *Book {
	return &Book{
		positions: make(map[string]*Position),
		repo:      repo,
	}
}

// Open 记录一笔新开仓
//
// CurrentPrice 初始化为 EntryPrice, 派生字段在首个扫描周期补齐。
func (b *Book) Open(req OpenRequest) (*Position, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	pos := &Position{
		ID:           ident.NewPositionID(),
		UserID:       req.UserID,
		MarketID:     req.MarketID,
		Category:     req.Category,
		Side:         req.Side,
		Size:         req.Size,
		EntryPrice:   req.EntryPrice,
		Leverage:     req.Leverage,
		Margin:       req.Margin,
		CurrentPrice: req.EntryPrice,
		LastUpdate:   now,
		CreatedAt:    now,
	}

	b.mu.Lock()
	b.positions[pos.ID] = pos
	b.mu.Unlock()

	b.persist(pos)

	log.Printf("[Book] Position opened: id=%s user=%s market=%s side=%s size=%v lev=%d",
		pos.ID, pos.UserID, pos.MarketID, pos.Side, pos.Size, pos.Leverage)
	return pos, nil
}

// Close 用户主动平仓
// 仓位不存在时返回 false (可能已被并发强平)。
func (b *Book) Close(positionID string) bool {
	_, ok := b.Remove(positionID)
	if ok {
		log.Printf("[Book] Position closed: id=%s", positionID)
	}
	return ok
}

// Remove 原子移除并返回仓位
//
// 强平执行器用它做 "存在性复核 + 摘除" 的单步操作,
// 读者看不到任何半移除状态。
func (b *Book) Remove(positionID string) (*Position, bool) {
	b.mu.Lock()
	pos, ok := b.positions[positionID]
	if ok {
		delete(b.positions, positionID)
	}
	b.mu.Unlock()

	if ok {
		b.unpersist(positionID)
	}
	return pos, ok
}

// Get 查找仓位
//
// 返回内部指针, 仅限单写者周期内使用;
// 并发读者请用 GetValue 拿值拷贝。
func (b *Book) Get(positionID string) (*Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos, ok := b.positions[positionID]
	return pos, ok
}

// GetValue 返回仓位的值拷贝 (并发安全的咨询性读取)
func (b *Book) GetValue(positionID string) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos, ok := b.positions[positionID]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// UpdateDerived 写回一个扫描周期重算的派生字段
//
// 写入发生在 Book 的写锁内, 与咨询性读者 (SnapshotValues/GetValue)
// 建立同步; 仓位已被并发移除时返回 false。
func (b *Book) UpdateDerived(positionID string, currentPrice, upnl, healthFactor, liqPrice float64, now int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.positions[positionID]
	if !ok {
		return false
	}
	pos.CurrentPrice = currentPrice
	pos.UnrealizedPnl = upnl
	pos.HealthFactor = healthFactor
	pos.LiquidationPrice = liqPrice
	pos.LastUpdate = now
	return true
}

// Snapshot 返回当前在押仓位指针切片
//
// 【约束】只能由单写者周期 (扫描→执行) 调用;
// 派生字段的写回必须经由 UpdateDerived (写锁), 不得直接改指针。
func (b *Book) Snapshot() []*Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out
}

// SnapshotValues 返回仓位深拷贝
// 供咨询性读者 (健康检查/压力测试/API) 使用, 容忍扫描中途读取。
func (b *Book) SnapshotValues() []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	return out
}

// Len 在押仓位数量
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

// =============================================================================
// 持久化辅助
// =============================================================================

func (b *Book) persist(pos *Position) {
	if b.repo == nil {
		return
	}
	if err := b.repo.Save(context.Background(), pos); err != nil {
		log.Printf("[Book] WARNING: persist position %s failed: %v", pos.ID, err)
	}
}

func (b *Book) unpersist(positionID string) {
	if b.repo == nil {
		return
	}
	if err := b.repo.Delete(context.Background(), positionID); err != nil {
		log.Printf("[Book] WARNING: delete position %s failed: %v", positionID, err)
	}
}
