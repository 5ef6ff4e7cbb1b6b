package trades

import "time"

// Side is the direction of a position
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the closing direction for a side
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// AlertState tracks which threshold alert fired last for a trade
type AlertState string

const (
	AlertNone   AlertState = "none"
	AlertProfit AlertState = "profit"
	AlertLoss   AlertState = "loss"
)

// Trade is an open position owned by the monitor once registered.
// Only the monitor mutates it after creation.
type Trade struct {
	ID            string     `json:"id"`
	AccountID     string     `json:"account_id"`
	Symbol        string     `json:"symbol"`
	Side          Side       `json:"side"`
	EntryPrice    float64    `json:"entry_price"`
	Quantity      float64    `json:"quantity"`
	Leverage      int        `json:"leverage"`
	StopLoss      float64    `json:"stop_loss"`
	TakeProfit    float64    `json:"take_profit"`
	Platform      string     `json:"platform"`
	OpenedAt      time.Time  `json:"opened_at"`
	ThresholdPct  float64    `json:"threshold_pct"`
	LastAlert     AlertState `json:"last_alert"`
	MessageRef    string     `json:"message_ref,omitempty"`
	ClientOrderID string     `json:"client_order_id,omitempty"`
}

// Age returns how long the trade has been open
func (t *Trade) Age() time.Duration {
	return time.Since(t.OpenedAt)
}
