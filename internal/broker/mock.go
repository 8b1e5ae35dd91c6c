package broker

import (
	"context"
	"encoding/json"
	"time"
)

// MockBroker serves canned order fixtures. Paper mode runs the full sync
// pipeline against it, and tests use it to drive the normalizer with
// realistic payload shapes.
type MockBroker struct {
	Orders   map[string][]Order // keyed by account
	Accounts []string
	Err      error
}

var _ Broker = (*MockBroker)(nil)

// NewMockBroker returns a mock pre-loaded with a small filled-order history
// for one paper account: a short put opened and later bought back, plus a
// working (unfilled) order the normalizer must ignore.
func NewMockBroker() *MockBroker {
	const account = "PAPER0001"
	entered := time.Now().UTC().AddDate(0, 0, -30)

	mk := func(status, instruction, effect, symbol string, strike float64, maturity string, qty, price float64, when time.Time) Order {
		return Order{
			OrderID:     json.Number("1000001"),
			Status:      status,
			Price:       price,
			EnteredTime: when.Format(time.RFC3339),
			Legs: singleOrArray[Leg]{{
				LegID:          json.Number("1"),
				Instruction:    instruction,
				PositionEffect: effect,
				Quantity:       qty,
				Instrument: Instrument{
					AssetType:        AssetTypeOption,
					Symbol:           symbol,
					UnderlyingSymbol: "MSTR",
					PutCall:          "PUT",
					StrikePrice:      strike,
					MaturityDate:     maturity,
				},
			}},
		}
	}

	return &MockBroker{
		Accounts: []string{account},
		Orders: map[string][]Order{
			account: {
				mk(StatusFilled, "SELL_TO_OPEN", "OPENING", "MSTR  251219P00050000", 50, "2025-12-19", 2, 1.50, entered),
				mk(StatusFilled, "BUY_TO_CLOSE", "CLOSING", "MSTR  251219P00050000", 50, "2025-12-19", 2, 0.50, entered.AddDate(0, 0, 14)),
				mk("WORKING", "SELL_TO_OPEN", "OPENING", "MSTR  260116P00045000", 45, "2026-01-16", 1, 2.10, entered.AddDate(0, 0, 20)),
			},
		},
	}
}

// FetchOrders returns the canned orders entered at or after since.
func (m *MockBroker) FetchOrders(_ context.Context, account string, since time.Time) ([]Order, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	var out []Order
	for _, o := range m.Orders[account] {
		ts, err := time.Parse(time.RFC3339, o.Timestamp())
		if err == nil && ts.Before(since) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// FetchAccounts returns the canned account list.
func (m *MockBroker) FetchAccounts(_ context.Context) ([]string, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Accounts, nil
}
