package trades

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestAddAppliesDefaults(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	trade := r.Add(&Trade{
		AccountID:  "u1",
		Symbol:     "BTCUSDT",
		Side:       SideLong,
		EntryPrice: 100,
		Quantity:   1,
	})

	if trade.ID == "" {
		t.Error("an ID should be generated")
	}
	if trade.OpenedAt.IsZero() {
		t.Error("open time should be set")
	}
	if trade.ThresholdPct != 5 {
		t.Errorf("expected default threshold 5, got %v", trade.ThresholdPct)
	}
	if trade.LastAlert != AlertNone {
		t.Errorf("expected lastAlert none, got %q", trade.LastAlert)
	}
}

func TestAddKeepsExplicitValues(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	opened := time.Now().Add(-time.Hour)

	trade := r.Add(&Trade{
		ID:           "t-1",
		AccountID:    "u1",
		Symbol:       "BTCUSDT",
		Side:         SideShort,
		EntryPrice:   100,
		Quantity:     1,
		ThresholdPct: 2.5,
		LastAlert:    AlertProfit,
		OpenedAt:     opened,
	})

	if trade.ID != "t-1" || trade.ThresholdPct != 2.5 || trade.LastAlert != AlertProfit || !trade.OpenedAt.Equal(opened) {
		t.Errorf("explicit fields were overwritten: %+v", trade)
	}
}

func TestRemove(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	trade := r.Add(&Trade{AccountID: "u1", Symbol: "BTCUSDT", Side: SideLong, EntryPrice: 100, Quantity: 1})

	removed, err := r.Remove("u1", trade.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed.ID != trade.ID {
		t.Error("removed trade mismatch")
	}
	if len(r.List("u1")) != 0 {
		t.Error("trade should be gone")
	}
	if len(r.Accounts()) != 0 {
		t.Error("empty account should be dropped from the index")
	}

	if _, err := r.Remove("u1", trade.ID); !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("expected ErrTradeNotFound, got %v", err)
	}
}

func TestListReturnsCopy(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Add(&Trade{AccountID: "u1", Symbol: "BTCUSDT", Side: SideLong, EntryPrice: 100, Quantity: 1})
	r.Add(&Trade{AccountID: "u1", Symbol: "ETHUSDT", Side: SideShort, EntryPrice: 2000, Quantity: 2})

	list := r.List("u1")
	list[0] = nil

	if fresh := r.List("u1"); fresh[0] == nil {
		t.Error("mutating the returned slice must not affect the registry")
	}
}

func TestSetAlert(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	trade := r.Add(&Trade{AccountID: "u1", Symbol: "BTCUSDT", Side: SideLong, EntryPrice: 100, Quantity: 1})

	if err := r.SetAlert("u1", trade.ID, AlertLoss); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := r.Get("u1", trade.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.LastAlert != AlertLoss {
		t.Errorf("expected loss, got %q", got.LastAlert)
	}

	if err := r.SetAlert("u1", "missing", AlertProfit); !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("expected ErrTradeNotFound, got %v", err)
	}
}

func TestCountAndAccounts(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Add(&Trade{AccountID: "u1", Symbol: "BTCUSDT", Side: SideLong, EntryPrice: 100, Quantity: 1})
	r.Add(&Trade{AccountID: "u2", Symbol: "ETHUSDT", Side: SideLong, EntryPrice: 2000, Quantity: 1})
	r.Add(&Trade{AccountID: "u2", Symbol: "SOLUSDT", Side: SideShort, EntryPrice: 150, Quantity: 3})

	if r.Count() != 3 {
		t.Errorf("expected 3 trades, got %d", r.Count())
	}
	if len(r.Accounts()) != 2 {
		t.Errorf("expected 2 accounts, got %d", len(r.Accounts()))
	}
}

func TestSideOpposite(t *testing.T) {
	if SideLong.Opposite() != SideShort || SideShort.Opposite() != SideLong {
		t.Error("opposite sides are wrong")
	}
}
