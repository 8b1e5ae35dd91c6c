package models

import (
	"fmt"
	"math"
	"time"
)

// SharesPerContract is the standard option contract multiplier.
const SharesPerContract = 100.0

// Strategy is the directional stance of a position's opening trade.
type Strategy string

const (
	// StrategyShortPut is a sold put.
	StrategyShortPut Strategy = "ShortPut"
	// StrategyShortCall is a sold call.
	StrategyShortCall Strategy = "ShortCall"
	// StrategyLongPut is a bought put.
	StrategyLongPut Strategy = "LongPut"
	// StrategyLongCall is a bought call.
	StrategyLongCall Strategy = "LongCall"
)

// IsShort returns true for premium-selling strategies. Short lineages carry
// negative contract counts and profit as the mark falls below entry.
func (s Strategy) IsShort() bool {
	return s == StrategyShortPut || s == StrategyShortCall
}

// ClassifyStrategy derives the logical strategy of the position an event
// belongs to. For opening fills the event's own direction applies directly
// (SELL+PUT opens a ShortPut). For closing fills the direction is the
// opposite of the opening stance, so it is inverted first: a BUY_CLOSE on a
// put must land on the ShortPut lineage it buys back, not invent a LongPut.
// This also means a close-only first-seen event records the strategy the
// original opening trade would have.
func ClassifyStrategy(dir Direction, kind OptionKind, action Action) Strategy {
	effective := dir
	if action.IsClose() {
		if dir == DirectionBuy {
			effective = DirectionSell
		} else {
			effective = DirectionBuy
		}
	}

	switch {
	case effective == DirectionSell && kind == KindPut:
		return StrategyShortPut
	case effective == DirectionSell && kind == KindCall:
		return StrategyShortCall
	case effective == DirectionBuy && kind == KindPut:
		return StrategyLongPut
	default:
		return StrategyLongCall
	}
}

// PositionStatus is the lifecycle state of a position lineage.
type PositionStatus string

const (
	// StatusOpen is an actively held lineage.
	StatusOpen PositionStatus = "OPEN"
	// StatusExpired means the contracts expired; the row still accepts late
	// fills (assignment cleanup, exercise debits) until explicitly closed.
	StatusExpired PositionStatus = "EXPIRED"
	// StatusClosed is terminal. No trade ever mutates a closed position.
	StatusClosed PositionStatus = "CLOSED"
	// StatusRolled is terminal; the lineage continued under a new row.
	StatusRolled PositionStatus = "ROLLED"
)

// Mutable reports whether the ledger may still apply trades to a position in
// this status. CLOSED and ROLLED rows are immutable forever; a recurrence of
// the same natural key gets a fresh row instead.
func (s PositionStatus) Mutable() bool {
	return s == StatusOpen || s == StatusExpired
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Terminal states have no outgoing edges.
func (s PositionStatus) CanTransition(next PositionStatus) bool {
	switch s {
	case StatusOpen:
		return next == StatusExpired || next == StatusClosed || next == StatusRolled
	case StatusExpired:
		return next == StatusClosed
	default:
		return false
	}
}

// PositionKey is the composite natural key a position lineage is matched by.
// At most one row per key may be in a mutable status at any time.
type PositionKey struct {
	Symbol     string
	Strategy   Strategy
	Strike     float64
	Expiration time.Time
}

func (k PositionKey) String() string {
	return fmt.Sprintf("%s/%s/%.3f/%s", k.Symbol, k.Strategy, k.Strike, k.Expiration.Format("2006-01-02"))
}

// Position is the persistent aggregate for one option lineage. Contract
// counts are signed: short lineages run negative. Market snapshot fields
// (Mark after entry, IV, Delta, AccountSize) are populated by the live
// market-data updater, not by the ledger.
type Position struct {
	ID          string
	Symbol      string
	Strategy    Strategy
	Strike      float64
	Expiration  time.Time
	Status      PositionStatus
	Contracts   int // running signed contract count
	EntryPrice  float64
	Mark        float64
	TotalCredit float64
	TotalDebit  float64
	Commissions float64
	Fees        float64
	EntryIV     float64
	CurrentIV   float64
	Delta       float64
	AccountSize float64
	EntryDate   time.Time
	LastUpdated time.Time
}

// NewPosition creates an OPEN position seeded from the first fill of a
// lineage. Contracts and the money accumulators start at zero; the applier
// updates them immediately after creation.
func NewPosition(id string, key PositionKey, fillPrice float64, tradeTime time.Time) *Position {
	return &Position{
		ID:          id,
		Symbol:      key.Symbol,
		Strategy:    key.Strategy,
		Strike:      key.Strike,
		Expiration:  key.Expiration,
		Status:      StatusOpen,
		EntryPrice:  fillPrice,
		Mark:        fillPrice,
		EntryDate:   tradeTime.UTC(),
		LastUpdated: tradeTime.UTC(),
	}
}

// Key returns the composite natural key of the position.
func (p *Position) Key() PositionKey {
	return PositionKey{Symbol: p.Symbol, Strategy: p.Strategy, Strike: p.Strike, Expiration: p.Expiration}
}

// AbsContracts returns the unsigned contract count.
func (p *Position) AbsContracts() int {
	if p.Contracts < 0 {
		return -p.Contracts
	}
	return p.Contracts
}

// NetPremium returns credit collected minus debit paid across the lineage.
func (p *Position) NetPremium() float64 {
	return p.TotalCredit - p.TotalDebit
}

// Flat reports whether the lineage's fills fully offset. A flat position with
// closing trades is a candidate for CloseFlatPositions maintenance.
func (p *Position) Flat() bool {
	return p.Contracts == 0
}

// DTE returns calendar days until expiration, clamped at zero.
func (p *Position) DTE(now time.Time) int {
	exp := p.Expiration.UTC().Truncate(24 * time.Hour)
	n := now.UTC().Truncate(24 * time.Hour)
	days := int(exp.Sub(n).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// AgeDays returns calendar days since entry, entry floored to its date.
func (p *Position) AgeDays(now time.Time) int {
	entry := p.EntryDate.UTC().Truncate(24 * time.Hour)
	n := now.UTC().Truncate(24 * time.Hour)
	days := int(n.Sub(entry).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Exposure returns the gross notional at entry.
func (p *Position) Exposure() float64 {
	return math.Abs(p.EntryPrice * SharesPerContract * float64(p.Contracts))
}

// Validate checks position invariants before persisting.
func (p *Position) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("position missing id")
	}
	if p.Symbol == "" {
		return fmt.Errorf("position %s missing symbol", p.ID)
	}
	if p.Strike <= 0 {
		return fmt.Errorf("position %s: strike must be positive (got %.3f)", p.ID, p.Strike)
	}
	switch p.Strategy {
	case StrategyShortPut, StrategyShortCall, StrategyLongPut, StrategyLongCall:
	default:
		return fmt.Errorf("position %s: unknown strategy %q", p.ID, p.Strategy)
	}
	switch p.Status {
	case StatusOpen, StatusExpired, StatusClosed, StatusRolled:
	default:
		return fmt.Errorf("position %s: unknown status %q", p.ID, p.Status)
	}
	if p.TotalCredit < 0 || p.TotalDebit < 0 {
		return fmt.Errorf("position %s: credit/debit accumulators cannot be negative (%.2f/%.2f)",
			p.ID, p.TotalCredit, p.TotalDebit)
	}
	return nil
}
