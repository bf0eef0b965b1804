// 文件: pkg/liquidation/engine.go
// 强平引擎 - 生命周期与周期调度
//
// 这是整个风控系统的入口, 负责:
// 1. 驱动 扫描→执行 周期 (默认每 5 秒)
// 2. 驱动咨询性健康检查 (默认每 60 秒)
// 3. 对外暴露查询接口 (观察名单/候选队列/历史/单仓健康度/压测)
//
// 架构:
//
//	┌──────────────────────────────────────────────────┐
//	│                     Engine                       │
//	│                                                  │
//	│  MarkPriceFeed ─┐                                │
//	│                 ├→ Scanner ─→ Executor ─→ Events │
//	│  PositionBook ──┘     │            │             │
//	│  RiskParamTable ──────┘            ├→ History    │
//	│                                    └→ Insurance  │
//	└──────────────────────────────────────────────────┘
//
// 【并发纪律】
// 扫描与执行在同一个周期锁内串行完成 (仓位簿单写者);
// 健康检查只做快照读, 容忍读到更新中的数据。
// 引擎自身不产生任何数据: 价格与仓位全部来自注入的协作方。

package liquidation

import (
	"context"
	"log"
	"sync"
	"time"

	"cmx.com/pkg/insurance"
	"cmx.com/pkg/markprice"
	"cmx.com/pkg/position"
	"cmx.com/pkg/riskparam"
)

// =============================================================================
// 配置
// =============================================================================

// Config 引擎运行参数
// 周期节奏属于运维调优, 不是业务逻辑, 所以全部可配。
type Config struct {
	ScanInterval            time.Duration // 扫描+执行周期
	HealthCheckInterval     time.Duration // 咨询性健康检查周期
	MaxLiquidationsPerCycle int           // 单周期执行上限
	WatchlistThreshold      float64       // 观察名单阈值 (区别于强平阈值 1.0)
	HistoryLimit            int           // 内存历史保留条数
	LiquidatorID            string        // 事件中记录的执行方身份
	SettleCurrency          string        // 保险基金结算货币
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		ScanInterval:            5 * time.Second,
		HealthCheckInterval:     60 * time.Second,
		MaxLiquidationsPerCycle: DefaultMaxPerCycle,
		WatchlistThreshold:      DefaultWatchlistThreshold,
		HistoryLimit:            DefaultHistoryLimit,
		LiquidatorID:            "liquidation_bot",
		SettleCurrency:          "USD",
	}
}

// =============================================================================
// Engine
// =============================================================================

// Engine 强平引擎
type Engine struct {
	cfg Config

	// ========== 注入的协作方 ==========
	book  *position.Book
	feed  markprice.Feed
	table *riskparam.Table

	// ========== 核心组件 ==========
	scanner  *Scanner
	executor *Executor
	history  *History

	// ========== 当前候选队列 (上一周期快照) ==========
	candMu     sync.RWMutex
	candidates []Candidate

	// ========== 周期锁: 扫描与执行的单写者纪律 ==========
	cycleMu sync.Mutex

	// ========== 生命周期 ==========
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex // 保护 running 状态
}

// NewEngine 创建强平引擎
//
// 依赖全部由调用方注入, 没有全局单例, 没有内置定时器副作用,
// 构造后必须显式 Start。
func NewEngine(
	cfg Config,
	book *position.Book,
	feed markprice.Feed,
	table *riskparam.Table,
) *Engine {
	history := NewHistory(cfg.HistoryLimit)

	scanner := NewScanner(book, feed, table)
	scanner.SetWatchlistThreshold(cfg.WatchlistThreshold)

	executor := NewExecutor(book, table, history)
	executor.SetMaxPerCycle(cfg.MaxLiquidationsPerCycle)
	executor.SetLiquidatorID(cfg.LiquidatorID)
	executor.SetSettleCurrency(cfg.SettleCurrency)

	return &Engine{
		cfg:      cfg,
		book:     book,
		feed:     feed,
		table:    table,
		scanner:  scanner,
		executor: executor,
		history:  history,
		stopCh:   make(chan struct{}),
	}
}

// SetEventSink 接入强平事件流 (Kafka)
func (e *Engine) SetEventSink(sink EventSink) {
	e.executor.SetEventSink(sink)
}

// SetInsuranceFund 接入保险基金
func (e *Engine) SetInsuranceFund(fund *insurance.Fund) {
	e.executor.SetInsuranceFund(fund)
}

// OnWatchlist 设置 "仓位进入观察名单" 通知回调
func (e *Engine) OnWatchlist(fn func(pos position.Position)) {
	e.scanner.OnWatchlist(fn)
}

// =============================================================================
// 生命周期
// =============================================================================

// Start 启动引擎
//
// 两个独立定时任务:
// 1. 扫描+强平周期 (ScanInterval)
// 2. 健康检查 (HealthCheckInterval, 只读快照)
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}
	e.running = true
	e.stopCh = make(chan struct{})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runScanLoop()
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runHealthLoop()
	}()

	log.Printf("[Engine] Started: scan=%v, healthCheck=%v, maxPerCycle=%d",
		e.cfg.ScanInterval, e.cfg.HealthCheckInterval, e.cfg.MaxLiquidationsPerCycle)
	return nil
}

// Stop 停止引擎
//
// 关停两个定时器并等待在途周期跑完;
// 周期是原子的 (周期锁内完成), 不会留下半应用的仓位变更。
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	close(e.stopCh)
	e.wg.Wait()
	e.running = false

	log.Println("[Engine] Stopped")
}

// runScanLoop 扫描+执行主循环
func (e *Engine) runScanLoop() {
	// 启动时立即执行一次
	e.RunCycle(context.Background())

	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.RunCycle(context.Background())
		}
	}
}

// runHealthLoop 健康检查主循环
func (e *Engine) runHealthLoop() {
	ticker := time.NewTicker(e.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.healthCheck()
		}
	}
}

// =============================================================================
// 周期执行
// =============================================================================

// RunCycle 执行一次完整的 扫描→执行 周期
//
// 周期锁保证扫描与 drain 不会同时操作仓位簿;
// 导出供测试和手动触发使用, 定时路径同样经过这里。
func (e *Engine) RunCycle(ctx context.Context) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	candidates := e.scanner.Scan()

	// 队列整体替换: 永远是本周期的全新快照
	e.candMu.Lock()
	e.candidates = candidates
	e.candMu.Unlock()

	executed := e.executor.Drain(ctx, candidates)
	for _, ev := range executed {
		e.scanner.ForgetWatchlist(ev.PositionID)
	}
}

// healthCheck 咨询性健康摘要 (快照读, 不参与强平决策)
func (e *Engine) healthCheck() {
	snapshot := e.book.SnapshotValues()

	var atRisk, critical int
	for i := range snapshot {
		if snapshot[i].HealthFactor < e.cfg.WatchlistThreshold {
			atRisk++
		}
		if snapshot[i].HealthFactor <= LiquidationThreshold {
			critical++
		}
	}

	log.Printf("[Engine] Health check: total=%d, atRisk=%d, critical=%d",
		len(snapshot), atRisk, critical)

	for i := range snapshot {
		if snapshot[i].HealthFactor <= MarginCallThreshold {
			log.Printf("[Engine] WARNING: position %s health factor %.3f, monitoring closely",
				snapshot[i].ID, snapshot[i].HealthFactor)
		}
	}
}

// =============================================================================
// 对外查询接口
// =============================================================================

// PositionsAtRisk 观察名单: 健康度低于观察阈值的仓位快照
func (e *Engine) PositionsAtRisk() []position.Position {
	snapshot := e.book.SnapshotValues()

	out := make([]position.Position, 0)
	for i := range snapshot {
		if snapshot[i].HealthFactor < e.cfg.WatchlistThreshold {
			out = append(out, snapshot[i])
		}
	}
	return out
}

// Candidates 当前候选队列的只读拷贝 (上一扫描周期的快照)
func (e *Engine) Candidates() []Candidate {
	e.candMu.RLock()
	defer e.candMu.RUnlock()

	out := make([]Candidate, len(e.candidates))
	copy(out, e.candidates)
	return out
}

// History 最近 limit 条强平事件, 最新的在前
func (e *Engine) History(limit int) []Event {
	return e.history.Recent(limit)
}

// PositionHealth 单仓位健康度查询
//
// 按最新标记价现算 (不依赖上一扫描周期的写回值);
// 仓位不存在或数据畸形时返回 (nil, false)。
func (e *Engine) PositionHealth(positionID string) (*HealthReport, bool) {
	// 值拷贝后刷新价格, 不触碰簿内仓位
	scratch, ok := e.book.GetValue(positionID)
	if !ok {
		return nil, false
	}
	if price, err := e.feed.CurrentPrice(scratch.MarketID); err == nil {
		scratch.CurrentPrice = price
	}

	params, err := e.table.Get(scratch.Category)
	if err != nil {
		log.Printf("[Engine] PositionHealth %s: %v", positionID, err)
		return nil, false
	}

	health, err := Evaluate(&scratch, params)
	if err != nil {
		log.Printf("[Engine] PositionHealth %s: %v", positionID, err)
		return nil, false
	}

	return NewHealthReport(&scratch, health), true
}

// SimulateMarketStress 对当前仓位簿回放价格冲击 (只读)
func (e *Engine) SimulateMarketStress(scenario Scenario) (StressResult, error) {
	return SimulateStress(e.book.SnapshotValues(), e.table, scenario)
}

// =============================================================================
// 监控接口
// =============================================================================

// Stats 引擎统计信息
type Stats struct {
	TotalPositions   int
	AtRiskPositions  int
	QueuedCandidates int
	HistorySize      int
}

// GetStats 获取引擎统计信息
func (e *Engine) GetStats() Stats {
	e.candMu.RLock()
	queued := len(e.candidates)
	e.candMu.RUnlock()

	return Stats{
		TotalPositions:   e.book.Len(),
		AtRiskPositions:  len(e.PositionsAtRisk()),
		QueuedCandidates: queued,
		HistorySize:      e.history.Len(),
	}
}
