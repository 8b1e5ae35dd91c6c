// Package models defines the core domain types for the option position
// ledger: normalized trade events, positions, trades, and the strategy and
// action classifications that drive reconciliation.
package models

import (
	"fmt"
	"time"
)

// OptionKind identifies the contract type of an option leg.
type OptionKind string

const (
	// KindCall is a call option.
	KindCall OptionKind = "CALL"
	// KindPut is a put option.
	KindPut OptionKind = "PUT"
)

// Valid returns true if the OptionKind is one of the defined constants.
func (k OptionKind) Valid() bool {
	return k == KindCall || k == KindPut
}

// Direction is the raw trade direction as reported by the broker.
type Direction string

const (
	// DirectionBuy indicates a buy fill.
	DirectionBuy Direction = "BUY"
	// DirectionSell indicates a sell fill.
	DirectionSell Direction = "SELL"
)

// OpenClose is the raw open/close qualifier as reported by the broker.
// Brokers do not reliably populate it; EffectUnknown is a first-class value.
type OpenClose string

const (
	// EffectOpening marks a fill that increases net exposure.
	EffectOpening OpenClose = "OPENING"
	// EffectClosing marks a fill that reduces net exposure.
	EffectClosing OpenClose = "CLOSING"
	// EffectUnknown marks a fill whose position effect was not reported.
	EffectUnknown OpenClose = "UNKNOWN"
)

// TradeEvent is one normalized option fill, produced by the normalizer and
// consumed exactly once by the ledger applier. It is ephemeral: nothing
// persists a TradeEvent directly.
type TradeEvent struct {
	Account         string
	Symbol          string // underlying symbol, e.g. "MSTR"
	OptionType      OptionKind
	Strike          float64
	Expiration      time.Time // calendar date, midnight UTC
	Direction       Direction
	OpenClose       OpenClose
	Quantity        int     // contracts, always positive
	Price           float64 // per-contract fill price
	Commissions     float64
	Fees            float64
	TradeTime       time.Time // UTC
	UnderlyingPrice *float64
	// Broker-assigned identifiers, kept for diagnostics only. They are never
	// part of the dedup key because brokers reuse and omit them.
	OrderID string
	LegID   string
}

// Validate checks the invariants every normalized event must satisfy.
func (e *TradeEvent) Validate() error {
	if e.Symbol == "" {
		return fmt.Errorf("trade event missing symbol")
	}
	if !e.OptionType.Valid() {
		return fmt.Errorf("trade event %s: invalid option kind %q", e.Symbol, e.OptionType)
	}
	if e.Strike <= 0 {
		return fmt.Errorf("trade event %s: strike must be positive (got %.3f)", e.Symbol, e.Strike)
	}
	if e.Quantity <= 0 {
		return fmt.Errorf("trade event %s: quantity must be positive (got %d)", e.Symbol, e.Quantity)
	}
	if e.Expiration.IsZero() {
		return fmt.Errorf("trade event %s: missing expiration", e.Symbol)
	}
	if e.TradeTime.IsZero() {
		return fmt.Errorf("trade event %s: missing trade timestamp", e.Symbol)
	}
	return nil
}

// Describe returns the natural-key fields used in every skip/warn log line so
// an operator can trace an event back to the broker statement.
func (e *TradeEvent) Describe() string {
	kind := "?"
	if e.OptionType.Valid() {
		kind = string(e.OptionType[0])
	}
	return fmt.Sprintf("%s %.2f%s %s @ %s",
		e.Symbol, e.Strike, kind,
		e.Expiration.Format("2006-01-02"),
		e.TradeTime.UTC().Format(time.RFC3339))
}
