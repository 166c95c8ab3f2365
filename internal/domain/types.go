// Package domain defines the shared value types of the tycho platform:
// price bars, trade intents, fills, positions, and portfolio snapshots.
package domain

import (
	"time"
)

// DateLayout is the canonical civil-date format used throughout the platform.
const DateLayout = "2006-01-02"

// BenchmarkKey is the reserved ticker key under which price sources return
// the benchmark series.
const BenchmarkKey = "__benchmark__"

// Market identifies the market a symbol trades in.
type Market string

const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// Bar is a single immutable daily OHLCV bar.
type Bar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Day returns the bar's civil date in DateLayout form, normalised to UTC.
func (b Bar) Day() string {
	return b.Date.UTC().Format(DateLayout)
}

// Action is the kind of trade an intent requests.
type Action string

const (
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionShort Action = "short"
	ActionCover Action = "cover"
	ActionHold  Action = "hold"
)

// Intent is a single trade request produced by a decision function. The
// engine never synthesizes intents; it only validates and applies them.
type Intent struct {
	Symbol   string  `json:"symbol"`
	Action   Action  `json:"action"`
	Quantity float64 `json:"quantity"` // non-negative; units are strategy-defined
}

// Fill is the immutable record of an executed intent. Quantity may be
// smaller than the intent's if the executor clipped it.
type Fill struct {
	Symbol    string    `json:"symbol"`
	Action    Action    `json:"action"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Date      time.Time `json:"date"`
	CashDelta float64   `json:"cash_delta"` // signed change applied to cash, costs included
	Clipped   bool      `json:"clipped,omitempty"`
}

// RejectReason classifies why an intent was not executed.
type RejectReason string

const (
	RejectInsufficientCash   RejectReason = "insufficient_cash"
	RejectInsufficientShares RejectReason = "insufficient_shares"
	RejectShortingDisabled   RejectReason = "shorting_disabled"
	RejectNoPrice            RejectReason = "no_price_for_ticker"
)

// Rejection records an intent the executor refused, with the reason.
// Rejections never mutate portfolio state.
type Rejection struct {
	Intent Intent       `json:"intent"`
	Date   time.Time    `json:"date"`
	Reason RejectReason `json:"reason"`
}

// Position is the state of a single symbol holding. Quantity is signed:
// positive for long, negative for short. A zero quantity means the position
// does not exist.
type Position struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"`
}

// Snapshot is an immutable point-in-time capture of portfolio state, taken
// once per simulated date. The ordered snapshot sequence is the authoritative
// equity curve.
type Snapshot struct {
	Date      time.Time           `json:"date"`
	Cash      float64             `json:"cash"`
	Positions map[string]Position `json:"positions"`
	Equity    float64             `json:"equity"`
	Warnings  []string            `json:"warnings,omitempty"`
}

// Day returns the snapshot's civil date in DateLayout form, normalised to UTC.
func (s Snapshot) Day() string {
	return s.Date.UTC().Format(DateLayout)
}
