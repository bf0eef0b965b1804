// 文件: pkg/markprice/service.go
// 标记价格服务 - 各市场最新标记价的内存视图
//
// 【设计】
// 价格摄取 (推送) 与扫描周期解耦:
// 扫描只读 "最后已知价", 永不阻塞等待新报价。
// 行情断供时保留旧价 (stale-but-available 优于阻塞),
// 断供超过窗口则升级为运营告警 (每次断供只告警一次)。

package markprice

import (
	"errors"
	"log"
	"sync"
	"time"
)

// =============================================================================
// 错误定义
// =============================================================================

var (
	// ErrFeedUnavailable 该市场从未收到过任何报价
	ErrFeedUnavailable = errors.New("mark price feed unavailable")
)

// =============================================================================
// Feed 接口
// =============================================================================

// Feed 标记价格源
// 引擎只依赖此接口; 实现可以是内存服务、测试桩或外部网关。
type Feed interface {
	// CurrentPrice 返回市场的最后已知标记价
	// 从未定价过的市场返回 ErrFeedUnavailable
	CurrentPrice(marketID string) (float64, error)
}

// =============================================================================
// Service
// =============================================================================

// markState 单个市场的价格状态
type markState struct {
	price     float64
	updatedAt time.Time
	alerted   bool // 本次断供是否已发过告警
}

// Service 内存标记价格服务
type Service struct {
	mu     sync.RWMutex
	marks  map[string]*markState
	window time.Duration // 时效窗口, 超过视为断供

	// onStale 断供升级回调 (可选)
	// 典型接法: NATS ops.alerts 主题
	onStale func(marketID string, since time.Time)

	// onUpdate 价格更新回调 (可选, 推送消费方用)
	onUpdate func(marketID string, price float64)
}

const defaultStaleWindow = 30 * time.Second

// NewService 创建价格服务
func NewService() *Service {
	return &Service{
		marks:  make(map[string]*markState),
		window: defaultStaleWindow,
	}
}

// SetStaleWindow 设置时效窗口 (非正值忽略)
func (s *Service) SetStaleWindow(d time.Duration) {
	if d > 0 {
		s.window = d
	}
}

// OnStale 设置断供升级回调
func (s *Service) OnStale(fn func(marketID string, since time.Time)) {
	s.onStale = fn
}

// OnUpdate 设置价格更新回调
func (s *Service) OnUpdate(fn func(marketID string, price float64)) {
	s.onUpdate = fn
}

// UpdatePrice 推送一条标记价 (摄取路径)
func (s *Service) UpdatePrice(marketID string, price float64) {
	if price <= 0 {
		log.Printf("[MarkPrice] WARNING: dropping non-positive price for %s: %v", marketID, price)
		return
	}

	s.mu.Lock()
	st, ok := s.marks[marketID]
	if !ok {
		st = &markState{}
		s.marks[marketID] = st
	}
	st.price = price
	st.updatedAt = time.Now()
	st.alerted = false
	s.mu.Unlock()

	if s.onUpdate != nil {
		s.onUpdate(marketID, price)
	}
}

// CurrentPrice 返回最后已知标记价
//
// 价格过期时仍然返回旧价 (调用方本周期继续使用),
// 但首次越过时效窗口会触发一次断供告警。
func (s *Service) CurrentPrice(marketID string) (float64, error) {
	s.mu.Lock()
	st, ok := s.marks[marketID]
	if !ok {
		s.mu.Unlock()
		return 0, ErrFeedUnavailable
	}

	price := st.price
	since := st.updatedAt
	escalate := false
	if time.Since(st.updatedAt) > s.window && !st.alerted {
		st.alerted = true
		escalate = true
	}
	s.mu.Unlock()

	if escalate {
		log.Printf("[MarkPrice] WARNING: feed stale for %s since %v", marketID, since)
		if s.onStale != nil {
			s.onStale(marketID, since)
		}
	}

	return price, nil
}

// Markets 返回有价格的市场列表
func (s *Service) Markets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.marks))
	for m := range s.marks {
		out = append(out, m)
	}
	return out
}
