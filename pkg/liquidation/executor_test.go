package liquidation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"cmx.com/pkg/insurance"
	"cmx.com/pkg/position"
	"cmx.com/pkg/riskparam"
)

// captureSink 收集外发事件
type captureSink struct {
	events []Event
	err    error
}

func (s *captureSink) Publish(ev Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func newTestExecutor(book *position.Book) (*Executor, *History) {
	history := NewHistory(0)
	return NewExecutor(book, riskparam.DefaultTable(), history), history
}

// candidateFor 由簿内仓位构建候选 (值拷贝)
func candidateFor(pos *position.Position) Candidate {
	return Candidate{
		Position: *pos,
		Urgency:  ClassifyUrgency(pos.HealthFactor),
	}
}

// =============================================================================
// Executor 测试
// =============================================================================

func TestExecutor_DrainRespectsCap(t *testing.T) {
	book := position.NewBook(nil)

	candidates := make([]Candidate, 0, 10)
	for i := 0; i < 10; i++ {
		pos := openTest(t, book, fmt.Sprintf("M%d", i), 12)
		candidates = append(candidates, candidateFor(pos))
	}

	executor, history := newTestExecutor(book)

	events := executor.Drain(context.Background(), candidates)
	if len(events) != DefaultMaxPerCycle {
		t.Errorf("executed = %d, want cap %d", len(events), DefaultMaxPerCycle)
	}
	if book.Len() != 5 {
		t.Errorf("book.Len = %d, want 5 survivors", book.Len())
	}
	if history.Len() != DefaultMaxPerCycle {
		t.Errorf("history = %d, want %d", history.Len(), DefaultMaxPerCycle)
	}

	// 幸存者下个周期继续被消化
	events = executor.Drain(context.Background(), candidates)
	if len(events) != 5 {
		t.Errorf("second drain executed = %d, want 5", len(events))
	}
	if book.Len() != 0 {
		t.Errorf("book.Len = %d, want 0", book.Len())
	}
}

func TestExecutor_SetMaxPerCycle(t *testing.T) {
	executor, _ := newTestExecutor(position.NewBook(nil))

	executor.SetMaxPerCycle(2)
	if executor.maxPerCycle != 2 {
		t.Errorf("maxPerCycle = %d, want 2", executor.maxPerCycle)
	}

	// 非法值不改变
	executor.SetMaxPerCycle(0)
	executor.SetMaxPerCycle(-1)
	if executor.maxPerCycle != 2 {
		t.Errorf("invalid values must be ignored, got %d", executor.maxPerCycle)
	}
}

func TestExecutor_SkipsVanishedCandidate(t *testing.T) {
	book := position.NewBook(nil)

	vanished := openTest(t, book, "M_GONE", 12)
	cand := candidateFor(vanished)
	book.Close(vanished.ID) // 并发平仓: 候选还拿着旧视图

	survivors := make([]Candidate, 0, 6)
	survivors = append(survivors, cand)
	for i := 0; i < 6; i++ {
		pos := openTest(t, book, fmt.Sprintf("M%d", i), 12)
		survivors = append(survivors, candidateFor(pos))
	}

	executor, _ := newTestExecutor(book)

	// 消失的候选被跳过且不消耗执行上限: 仍然执行满 5 笔
	events := executor.Drain(context.Background(), survivors)
	if len(events) != 5 {
		t.Errorf("executed = %d, want 5 (vanished candidate must not consume cap)", len(events))
	}
	for _, ev := range events {
		if ev.PositionID == vanished.ID {
			t.Error("vanished position must not produce an event")
		}
	}
}

func TestExecutor_FeeSplit(t *testing.T) {
	book := position.NewBook(nil)

	// 贵金属: 强平费率 0.005, 保险费率 0.002
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
	if err != nil {
		t.Fatal(err)
	}
	pos.HealthFactor = 0.9 // 浅度穿越

	executor, _ := newTestExecutor(book)
	sink := &captureSink{}
	executor.SetEventSink(sink)
	fund := insurance.NewFund(nil)
	executor.SetInsuranceFund(fund)

	events := executor.Drain(context.Background(), []Candidate{candidateFor(pos)})
	if len(events) != 1 {
		t.Fatalf("executed = %d, want 1", len(events))
	}

	ev := events[0]
	// 名义价值 = 2650 × 10 = 26500
	approx(t, "LiquidationFee", ev.LiquidationFee, 26500*0.005, 1e-9)
	approx(t, "InsuranceFundContribution", ev.InsuranceFundContribution, 26500*0.002, 1e-9)
	approx(t, "LiquidatorReward", ev.LiquidatorReward, 26500*0.005*0.5, 1e-9)
	if ev.Reason != ReasonHealthFactor {
		t.Errorf("Reason = %s, want health_factor", ev.Reason)
	}
	if ev.ID == "" || ev.Timestamp == 0 {
		t.Error("event must carry ID and timestamp")
	}

	// 外发与保险入账
	if len(sink.events) != 1 {
		t.Errorf("sink received %d events, want 1", len(sink.events))
	}
	approx(t, "fund balance", fund.Balance("USD"), 26500*0.002, 1e-9)
}

func TestExecutor_ForcedReason(t *testing.T) {
	book := position.NewBook(nil)
	pos := openTest(t, book, "M1", 12)
	pos.HealthFactor = 0.4 // 深度穿越

	executor, _ := newTestExecutor(book)
	events := executor.Drain(context.Background(), []Candidate{candidateFor(pos)})
	if len(events) != 1 || events[0].Reason != ReasonForced {
		t.Errorf("deep breach should be reason=forced, got %+v", events)
	}
}

func TestExecutor_SinkFailureDoesNotAbort(t *testing.T) {
	book := position.NewBook(nil)
	a := openTest(t, book, "MA", 12)
	b := openTest(t, book, "MB", 12)

	executor, history := newTestExecutor(book)
	executor.SetEventSink(&captureSink{err: errors.New("broker down")})

	events := executor.Drain(context.Background(),
		[]Candidate{candidateFor(a), candidateFor(b)})
	if len(events) != 2 {
		t.Errorf("executed = %d, sink failure must not abort drain", len(events))
	}
	if history.Len() != 2 {
		t.Errorf("history = %d, events must land before publish", history.Len())
	}
}

func TestExecutor_EmptyQueue(t *testing.T) {
	executor, _ := newTestExecutor(position.NewBook(nil))
	if events := executor.Drain(context.Background(), nil); len(events) != 0 {
		t.Errorf("empty queue should execute nothing, got %d", len(events))
	}
}
