package models

import (
	"fmt"
	"time"
)

// Trade is one immutable ledger row recording a single fill's effect on a
// position. Rows are append-only; corrections happen by appending offsetting
// rows, never by editing.
type Trade struct {
	ID              string
	PositionID      string
	TradeTime       time.Time // UTC, second precision
	Action          Action
	Contracts       int // signed delta applied to the position
	Price           float64
	Commissions     float64
	Fees            float64
	UnderlyingPrice *float64
	Note            string
}

// TradeKey is the natural uniqueness key of a ledger row. Re-ingesting a
// broker event that maps to an existing key is a no-op, which is what makes
// re-running a backfill from an overlapping cursor safe.
type TradeKey struct {
	PositionID string
	TradeTime  time.Time
	Action     Action
	Contracts  int
	Price      float64
}

// Key returns the trade's natural uniqueness key, with the timestamp
// truncated to second precision to match what the store persists.
func (t *Trade) Key() TradeKey {
	return TradeKey{
		PositionID: t.PositionID,
		TradeTime:  t.TradeTime.UTC().Truncate(time.Second),
		Action:     t.Action,
		Contracts:  t.Contracts,
		Price:      t.Price,
	}
}

func (k TradeKey) String() string {
	return fmt.Sprintf("%s %s %+d@%.2f %s",
		k.PositionID, k.Action, k.Contracts, k.Price, k.TradeTime.Format(time.RFC3339))
}

// GrossNotional returns the absolute dollar value of the fill including the
// contract multiplier. Sell-side gross accrues to the owning position's
// credit total, buy-side to its debit total.
func (t *Trade) GrossNotional() float64 {
	v := float64(t.Contracts) * t.Price * SharesPerContract
	if v < 0 {
		return -v
	}
	return v
}
