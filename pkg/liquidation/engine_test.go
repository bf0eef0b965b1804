package liquidation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmx.com/pkg/insurance"
	"cmx.com/pkg/position"
	"cmx.com/pkg/riskparam"
)

func newTestEngine(t *testing.T) (*Engine, *position.Book, *stubFeed) {
	t.Helper()
	book := position.NewBook(nil)
	feed := &stubFeed{prices: map[string]float64{}}

	cfg := DefaultConfig()
	cfg.ScanInterval = 20 * time.Millisecond
	cfg.HealthCheckInterval = 50 * time.Millisecond

	return NewEngine(cfg, book, feed, riskparam.DefaultTable()), book, feed
}

func TestEngine_RunCycle_LiquidatesBreachedPosition(t *testing.T) {
	engine, book, feed := newTestEngine(t)

	sink := &captureSink{}
	engine.SetEventSink(sink)
	fund := insurance.NewFund(nil)
	engine.SetInsuranceFund(fund)

	// hf = 12/30 = 0.4 → 候选且深度穿越
	pos := openTest(t, book, "M1", 12)
	feed.prices["M1"] = 100

	engine.RunCycle(context.Background())

	assert.Equal(t, 0, book.Len(), "breached position should be removed")
	require.Len(t, sink.events, 1)
	assert.Equal(t, pos.ID, sink.events[0].PositionID)
	assert.Equal(t, ReasonForced, sink.events[0].Reason)
	assert.Greater(t, fund.Balance("USD"), 0.0)

	history := engine.History(10)
	require.Len(t, history, 1)
	assert.Equal(t, pos.ID, history[0].PositionID)
}

func TestEngine_CandidatesSnapshot(t *testing.T) {
	engine, book, feed := newTestEngine(t)
	engine.executor.SetMaxPerCycle(1)

	// 两个候选, 上限 1: 队列快照保留两条, 执行一条
	openTest(t, book, "M1", 12)
	openTest(t, book, "M2", 12)
	feed.prices["M1"] = 100
	feed.prices["M2"] = 100

	engine.RunCycle(context.Background())

	assert.Len(t, engine.Candidates(), 2, "queue snapshot reflects the scan, not the drain")
	assert.Equal(t, 1, book.Len())

	// 下一周期重扫: 幸存者重新入队并被执行
	engine.RunCycle(context.Background())
	assert.Equal(t, 0, book.Len())
	assert.Empty(t, engine.Candidates())
}

func TestEngine_PositionsAtRisk(t *testing.T) {
	engine, book, feed := newTestEngine(t)

	atRisk := openTest(t, book, "M1", 40)  // hf 1.33 < 1.5
	openTest(t, book, "M2", 100)           // hf 3.33
	feed.prices["M1"] = 100
	feed.prices["M2"] = 100

	engine.RunCycle(context.Background())

	risky := engine.PositionsAtRisk()
	require.Len(t, risky, 1)
	assert.Equal(t, atRisk.ID, risky[0].ID)
}

func TestEngine_PositionHealth(t *testing.T) {
	engine, book, feed := newTestEngine(t)

	pos, err := book.Open(position.OpenRequest{
		UserID:     "user_1",
		MarketID:   "GOLD-PERP",
		Category:   riskparam.CategoryPreciousMetals,
		Side:       position.SideLong,
		Size:       10,
		EntryPrice: 2650,
		Leverage:   15,
		Margin:     1766.67,
	})
	require.NoError(t, err)
	feed.prices["GOLD-PERP"] = 2625

	report, ok := engine.PositionHealth(pos.ID)
	require.True(t, ok)
	assert.InDelta(t, -250, report.UnrealizedPnl, 1e-9)
	assert.InDelta(t, 1516.67/795, report.HealthFactor, 1e-9)
	assert.False(t, report.IsLiquidatable)

	// 簿内仓位不受查询影响 (现算不写回)
	assert.Equal(t, 2650.0, pos.CurrentPrice)

	_, ok = engine.PositionHealth("pos_missing")
	assert.False(t, ok)
}

func TestEngine_SimulateMarketStress(t *testing.T) {
	engine, book, feed := newTestEngine(t)

	pos := openTest(t, book, "M1", 100) // hf 3.33, severe 后 equity = 100-300 < 0
	feed.prices["M1"] = 100
	engine.RunCycle(context.Background())

	result, err := engine.SimulateMarketStress(ScenarioSevere)
	require.NoError(t, err)
	assert.Equal(t, 1, result.LiquidationsTriggered)

	_, err = engine.SimulateMarketStress(Scenario("bogus"))
	assert.Error(t, err)

	// 压测是只读的
	got, ok := book.Get(pos.ID)
	require.True(t, ok)
	assert.Equal(t, 100.0, got.CurrentPrice)
}

func TestEngine_StartStop(t *testing.T) {
	engine, book, feed := newTestEngine(t)

	openTest(t, book, "M1", 12)
	feed.prices["M1"] = 100

	require.NoError(t, engine.Start())
	require.NoError(t, engine.Start(), "second Start must be a no-op")

	// 等待定时周期跑过
	time.Sleep(80 * time.Millisecond)

	engine.Stop()
	engine.Stop() // 幂等

	assert.Equal(t, 0, book.Len(), "ticker-driven cycle should have liquidated")
	assert.GreaterOrEqual(t, engine.GetStats().HistorySize, 1)

	// 停止后可重新启动
	require.NoError(t, engine.Start())
	engine.Stop()
}

func TestEngine_GetStats(t *testing.T) {
	engine, book, feed := newTestEngine(t)

	openTest(t, book, "M1", 40)
	feed.prices["M1"] = 100
	engine.RunCycle(context.Background())

	stats := engine.GetStats()
	assert.Equal(t, 1, stats.TotalPositions)
	assert.Equal(t, 1, stats.AtRiskPositions)
	assert.Equal(t, 0, stats.QueuedCandidates)
	assert.Equal(t, 0, stats.HistorySize)
}
