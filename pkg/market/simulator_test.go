package market

import (
	"testing"
	"time"
)

func TestSimulator_ProducesPositiveTicks(t *testing.T) {
	sim := NewSimulator(5 * time.Millisecond)
	sim.AddMarket("GOLD-PERP", 2650, 0.2)
	sim.AddMarket("WTI-PERP", 85.2, 0.3)

	out := sim.Start()

	seen := make(map[string]int)
	deadline := time.After(500 * time.Millisecond)
	for len(seen) < 2 {
		select {
		case tick := <-out:
			if tick.Price <= 0 {
				t.Fatalf("GBM price must stay positive, got %v for %s", tick.Price, tick.MarketID)
			}
			seen[tick.MarketID]++
		case <-deadline:
			t.Fatalf("timed out waiting for ticks, seen %v", seen)
		}
	}

	sim.Stop()
}

func TestSimulator_StopClosesChannel(t *testing.T) {
	sim := NewSimulator(5 * time.Millisecond)
	sim.AddMarket("GOLD-PERP", 2650, 0.2)

	out := sim.Start()
	sim.Stop()
	sim.Stop() // 幂等

	// 通道最终关闭
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("output channel should close after Stop")
		}
	}
}

func TestSimulator_RejectsInvalidMarket(t *testing.T) {
	sim := NewSimulator(time.Second)
	sim.AddMarket("BAD", 0, 0.2)
	sim.AddMarket("BAD2", -5, 0.2)

	if len(sim.walkers) != 0 {
		t.Errorf("non-positive start prices must be rejected, got %d walkers", len(sim.walkers))
	}
}

func TestBroadcaster_FanOutAndIsolation(t *testing.T) {
	b := NewBroadcaster()
	fast := b.Subscribe()
	slow := b.Subscribe()

	// 填满 slow 的缓冲, 验证丢包不阻塞
	for i := 0; i < 2000; i++ {
		b.Broadcast(Tick{MarketID: "GOLD-PERP", Price: float64(i + 1)})
	}

	// fast 至少收到缓冲上限条
	if len(fast) != 1024 || len(slow) != 1024 {
		t.Errorf("subscriber buffers = %d/%d, want both capped at 1024", len(fast), len(slow))
	}

	b.Close()
	if _, ok := <-fast; !ok {
		// 缓冲里还有数据, 第一条应该可读
		t.Error("buffered ticks should drain before close is observed")
	}
}
