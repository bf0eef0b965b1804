// 文件: pkg/liquidation/scanner.go
// 强平扫描器 - 全量扫描仓位簿, 产出排序后的候选队列
//
// 【职责】
// 1. 刷新每个仓位的标记价并写回派生字段 (单写者周期内)
// 2. 过滤健康度 <= 1.0 的仓位, 构建候选
// 3. 按 (紧急度 desc, 预估损失 desc) 稳定排序
// 4. 队列整体替换: 每次扫描都是全新快照, 不累积
//
// 【故障隔离】
// 单个仓位的任何错误 (分类未注册/数据畸形/行情断供)
// 只影响该仓位本周期的处理, 绝不中断整个扫描。

package liquidation

import (
	"errors"
	"log"
	"math"
	"sort"
	"time"

	"cmx.com/pkg/markprice"
	"cmx.com/pkg/position"
	"cmx.com/pkg/riskparam"
)

// Scanner 强平扫描器
type Scanner struct {
	book  *position.Book
	feed  markprice.Feed
	table *riskparam.Table

	watchlistThreshold float64
	baseVolatility     float64 // 每秒基准波动率 (timeToLiquidation 估算用)

	// watchlisted 已通知过的观察名单仓位 (去重)
	// 仓位恢复健康后移除, 再次跌入时重新通知
	watchlisted map[string]struct{}

	// onWatchlist 仓位进入观察名单回调 (可选)
	onWatchlist func(pos position.Position)
}

// NewScanner 创建扫描器
func NewScanner(book *position.Book, feed markprice.Feed, table *riskparam.Table) *Scanner {
	return &Scanner{
		book:               book,
		feed:               feed,
		table:              table,
		watchlistThreshold: DefaultWatchlistThreshold,
		baseVolatility:     BaseVolatilityPerSecond,
		watchlisted:        make(map[string]struct{}),
	}
}

// SetWatchlistThreshold 设置观察名单阈值 (非正值忽略)
func (s *Scanner) SetWatchlistThreshold(v float64) {
	if v > 0 {
		s.watchlistThreshold = v
	}
}

// OnWatchlist 设置进入观察名单的通知回调
func (s *Scanner) OnWatchlist(fn func(pos position.Position)) {
	s.onWatchlist = fn
}

// Scan 执行一次全量扫描, 返回排序后的候选队列
//
// 【约束】只能在单写者周期内调用 (与执行器互斥)。
// 评估在值拷贝上进行, 派生字段经 Book.UpdateDerived (写锁) 写回,
// 与咨询性读者建立同步。
func (s *Scanner) Scan() []Candidate {
	startTime := time.Now()
	now := startTime.UnixMilli()

	snapshot := s.book.Snapshot()
	candidates := make([]Candidate, 0)

	var skipped int
	for _, pos := range snapshot {
		scratch := *pos

		// 1. 刷新标记价; 断供时保留最后已知价继续评估
		price, err := s.feed.CurrentPrice(scratch.MarketID)
		switch {
		case err == nil:
			scratch.CurrentPrice = price
		case errors.Is(err, markprice.ErrFeedUnavailable):
			log.Printf("[Scanner] No mark price for %s, keeping last-known %.4f",
				scratch.MarketID, scratch.CurrentPrice)
		default:
			// 预期之外的行情故障也要出声, 处理方式与断供一致
			log.Printf("[Scanner] WARNING: mark price query for %s failed: %v, keeping last-known %.4f",
				scratch.MarketID, err, scratch.CurrentPrice)
		}

		// 2. 分类参数
		params, err := s.table.Get(scratch.Category)
		if err != nil {
			log.Printf("[Scanner] Skipping position %s: %v", scratch.ID, err)
			skipped++
			continue
		}

		// 3. 健康度评估
		health, err := Evaluate(&scratch, params)
		if err != nil {
			// 畸形数据: 跳过且大声记日志, 绝不进入候选
			log.Printf("[Scanner] ERROR: skipping malformed position %s: %v", scratch.ID, err)
			skipped++
			continue
		}

		// 4. 写回派生字段 (Book 写锁内)
		scratch.UnrealizedPnl = health.UnrealizedPnl
		scratch.HealthFactor = health.HealthFactor
		scratch.LiquidationPrice = health.LiquidationPrice
		scratch.LastUpdate = now
		s.book.UpdateDerived(scratch.ID, scratch.CurrentPrice,
			health.UnrealizedPnl, health.HealthFactor, health.LiquidationPrice, now)

		// 5. 观察名单 (只通知一次, 恢复后复位)
		s.trackWatchlist(&scratch, health.HealthFactor)

		// 6. 候选过滤
		if health.Liquidatable() {
			candidates = append(candidates, s.buildCandidate(&scratch, params, health))
		}
	}

	// 排序: 紧急度优先, 同级按预估损失从大到小
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Urgency != candidates[j].Urgency {
			return candidates[i].Urgency > candidates[j].Urgency
		}
		return candidates[i].EstimatedLoss > candidates[j].EstimatedLoss
	})

	log.Printf("[Scanner] Scan completed: positions=%d, candidates=%d, skipped=%d, elapsed=%v",
		len(snapshot), len(candidates), skipped, time.Since(startTime))

	return candidates
}

// buildCandidate 由评估结果构建候选
func (s *Scanner) buildCandidate(
	pos *position.Position,
	params riskparam.RiskParameters,
	health Health,
) Candidate {
	estimatedLoss := math.Max(0, -health.Equity)

	// 执行方激励: 强平费的一半
	reward := health.Notional * params.LiquidationFeeRate * 0.5

	// 粗糙的触线时间估算: 价距比 / (分类波动倍数 × 基准每秒波动率)
	// 展示与排序用途, 无标定依据
	var ttl float64
	if pos.CurrentPrice > 0 {
		priceDistance := math.Abs(pos.CurrentPrice-health.LiquidationPrice) / pos.CurrentPrice
		ttl = priceDistance / (params.VolatilityScalar * s.baseVolatility)
	}

	return Candidate{
		Position:          *pos, // 值拷贝: 候选是视图, 不拥有仓位
		Urgency:           ClassifyUrgency(health.HealthFactor),
		EstimatedLoss:     estimatedLoss,
		LiquidationReward: reward,
		TimeToLiquidation: ttl,
	}
}

// trackWatchlist 观察名单进出维护
func (s *Scanner) trackWatchlist(pos *position.Position, healthFactor float64) {
	id := pos.ID
	if healthFactor < s.watchlistThreshold {
		if _, seen := s.watchlisted[id]; !seen {
			s.watchlisted[id] = struct{}{}
			log.Printf("[Scanner] Position %s entered watchlist: hf=%.3f", id, healthFactor)
			if s.onWatchlist != nil {
				s.onWatchlist(*pos)
			}
		}
	} else {
		delete(s.watchlisted, id)
	}
}

// ForgetWatchlist 仓位移除后清理观察名单状态
func (s *Scanner) ForgetWatchlist(positionID string) {
	delete(s.watchlisted, positionID)
}
