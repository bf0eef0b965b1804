package insurance

import (
	"context"
	"errors"
	"testing"
)

func TestFund_MemoryCredit(t *testing.T) {
	fund := NewFund(nil)

	err := fund.Credit(context.Background(), "USD", 53, "LIQUIDATION_FEE",
		"user_1", "GOLD-PERP", "Liquidation fee share")
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	err = fund.Credit(context.Background(), "USD", 47, "DEPOSIT", "", "", "")
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	if got := fund.Balance("USD"); got != 100 {
		t.Errorf("Balance(USD) = %v, want 100", got)
	}
	if got := fund.Balance("USDT"); got != 0 {
		t.Errorf("Balance(USDT) = %v, want 0", got)
	}
}

func TestFund_RejectsNonPositive(t *testing.T) {
	fund := NewFund(nil)

	for _, amount := range []float64{0, -10} {
		err := fund.Credit(context.Background(), "USD", amount, "DEPOSIT", "", "", "")
		if !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Credit(%v) error = %v, want ErrInvalidAmount", amount, err)
		}
	}
	if fund.Balance("USD") != 0 {
		t.Error("rejected credits must not change the balance")
	}
}

func TestFund_AllBalances(t *testing.T) {
	fund := NewFund(nil)
	fund.Credit(context.Background(), "USD", 10, "DEPOSIT", "", "", "")
	fund.Credit(context.Background(), "USDT", 20, "DEPOSIT", "", "", "")

	all := fund.AllBalances()
	if len(all) != 2 || all["USD"] != 10 || all["USDT"] != 20 {
		t.Errorf("AllBalances = %v", all)
	}

	// 返回的是拷贝
	all["USD"] = 999
	if fund.Balance("USD") != 10 {
		t.Error("AllBalances must return a copy")
	}
}
