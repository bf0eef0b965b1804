package markprice

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestService_UpdateAndRead(t *testing.T) {
	svc := NewService()

	svc.UpdatePrice("GOLD-PERP", 2650)

	price, err := svc.CurrentPrice("GOLD-PERP")
	if err != nil {
		t.Fatalf("CurrentPrice failed: %v", err)
	}
	if price != 2650 {
		t.Errorf("price = %v, want 2650", price)
	}

	// 覆盖更新
	svc.UpdatePrice("GOLD-PERP", 2700)
	price, _ = svc.CurrentPrice("GOLD-PERP")
	if price != 2700 {
		t.Errorf("price = %v, want 2700", price)
	}
}

func TestService_NeverPriced(t *testing.T) {
	svc := NewService()

	_, err := svc.CurrentPrice("WTI-PERP")
	if !errors.Is(err, ErrFeedUnavailable) {
		t.Errorf("error = %v, want ErrFeedUnavailable", err)
	}
}

func TestService_DropsNonPositive(t *testing.T) {
	svc := NewService()
	svc.UpdatePrice("GOLD-PERP", 2650)

	svc.UpdatePrice("GOLD-PERP", 0)
	svc.UpdatePrice("GOLD-PERP", -5)

	price, err := svc.CurrentPrice("GOLD-PERP")
	if err != nil || price != 2650 {
		t.Errorf("non-positive updates must be dropped, got %v, %v", price, err)
	}
}

func TestService_StaleEscalatesOnce(t *testing.T) {
	svc := NewService()
	svc.SetStaleWindow(10 * time.Millisecond)

	var alerts int32
	svc.OnStale(func(marketID string, since time.Time) {
		atomic.AddInt32(&alerts, 1)
	})

	svc.UpdatePrice("GOLD-PERP", 2650)
	time.Sleep(30 * time.Millisecond)

	// 过期价格仍可读, 且只升级一次
	for i := 0; i < 3; i++ {
		price, err := svc.CurrentPrice("GOLD-PERP")
		if err != nil || price != 2650 {
			t.Fatalf("stale price should remain readable, got %v, %v", price, err)
		}
	}
	if got := atomic.LoadInt32(&alerts); got != 1 {
		t.Errorf("stale alerts = %d, want 1", got)
	}

	// 新报价到达后复位, 再次断供会再告警
	svc.UpdatePrice("GOLD-PERP", 2660)
	time.Sleep(30 * time.Millisecond)
	svc.CurrentPrice("GOLD-PERP")
	if got := atomic.LoadInt32(&alerts); got != 2 {
		t.Errorf("stale alerts after recovery = %d, want 2", got)
	}
}

func TestService_OnUpdate(t *testing.T) {
	svc := NewService()

	var last atomic.Value
	svc.OnUpdate(func(marketID string, price float64) {
		last.Store(price)
	})

	svc.UpdatePrice("WTI-PERP", 85.2)
	if got, _ := last.Load().(float64); got != 85.2 {
		t.Errorf("OnUpdate got %v, want 85.2", got)
	}
}

func TestService_Markets(t *testing.T) {
	svc := NewService()
	svc.UpdatePrice("GOLD-PERP", 2650)
	svc.UpdatePrice("WTI-PERP", 85.2)

	if len(svc.Markets()) != 2 {
		t.Errorf("Markets = %v, want 2 entries", svc.Markets())
	}
}
