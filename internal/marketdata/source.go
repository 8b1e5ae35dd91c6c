// Package marketdata fetches live option quotes and refreshes the market
// snapshot fields of mutable positions. An unavailable quote is never fatal:
// the updater warns and moves on.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/kirkhalloran/oraclepm/internal/models"
)

// ErrQuoteNotFound means the chain exists but carries no contract matching
// the requested expiration and strike, or the chain itself is gone (expired
// series drop off the feed).
var ErrQuoteNotFound = errors.New("marketdata: quote not found")

// Quote is one option contract's live snapshot.
type Quote struct {
	Mark  float64
	IV    float64 // implied volatility as a fraction, e.g. 0.42
	Delta float64
}

// Source fetches the live quote for a single option contract.
type Source interface {
	FetchQuote(ctx context.Context, symbol string, expiration time.Time, strike float64, kind models.OptionKind) (Quote, error)
}
