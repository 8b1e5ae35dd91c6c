package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kirkhalloran/oraclepm/internal/models"
	"github.com/kirkhalloran/oraclepm/internal/storage"
)

// RefreshResult summarizes one refresh pass over the mutable book.
type RefreshResult struct {
	Positions int
	Updated   int
	Skipped   int
}

// Updater walks every mutable position and refreshes its mark, IV, and delta
// from the market-data source. A position whose quote is missing or unusable
// is skipped with a warning; the pass always finishes.
type Updater struct {
	source Source
	store  storage.Interface
	logger *log.Logger
	delay  time.Duration
}

// NewUpdater creates an Updater. delay spaces consecutive quote requests to
// stay polite with the upstream feed.
func NewUpdater(source Source, store storage.Interface, logger *log.Logger, delay time.Duration) *Updater {
	if logger == nil {
		logger = log.Default()
	}
	return &Updater{source: source, store: store, logger: logger, delay: delay}
}

func strategyKind(s models.Strategy) models.OptionKind {
	if s == models.StrategyShortPut || s == models.StrategyLongPut {
		return models.KindPut
	}
	return models.KindCall
}

// Refresh updates the live snapshot of every mutable position. Only a store
// failure aborts the pass.
func (u *Updater) Refresh(ctx context.Context) (RefreshResult, error) {
	var result RefreshResult

	positions, err := u.store.ListMutablePositions(ctx)
	if err != nil {
		return result, fmt.Errorf("list mutable positions: %w", err)
	}
	result.Positions = len(positions)

	for i := range positions {
		p := &positions[i]

		if i > 0 && u.delay > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(u.delay):
			}
		}

		quote, err := u.source.FetchQuote(ctx, p.Symbol, p.Expiration, p.Strike, strategyKind(p.Strategy))
		if err != nil {
			if errors.Is(err, ErrQuoteNotFound) {
				u.logger.Printf("updater: no quote for %s, skipping", p.Key())
			} else {
				u.logger.Printf("updater: quote fetch failed for %s: %v, skipping", p.Key(), err)
			}
			result.Skipped++
			continue
		}

		clean, warnings, ok := Sanitize(quote)
		for _, w := range warnings {
			u.logger.Printf("updater: %s: %s", p.Key(), w)
		}
		if !ok {
			result.Skipped++
			continue
		}

		err = u.store.UpdateMarketData(ctx, p.ID, clean.Mark, clean.IV, clean.Delta, time.Now().UTC())
		if err != nil {
			if errors.Is(err, storage.ErrPositionNotMutable) {
				u.logger.Printf("updater: position %s went terminal mid-pass, skipping", p.ID)
				result.Skipped++
				continue
			}
			return result, fmt.Errorf("update market data for %s: %w", p.ID, err)
		}
		result.Updated++
	}

	u.logger.Printf("updater: refresh complete, %d updated, %d skipped of %d",
		result.Updated, result.Skipped, result.Positions)
	return result, nil
}
