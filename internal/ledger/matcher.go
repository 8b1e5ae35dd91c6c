package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/kirkhalloran/oraclepm/internal/models"
	"github.com/kirkhalloran/oraclepm/internal/storage"
)

// Matcher routes a resolved event to the position lineage it belongs to,
// creating a fresh lineage when no mutable row exists for the key. Closed and
// rolled rows never match: a recurrence of the same contract after a close
// starts a new lineage.
type Matcher struct {
	store  storage.Interface
	logger *log.Logger
}

// NewMatcher creates a Matcher backed by the given store.
func NewMatcher(store storage.Interface, logger *log.Logger) *Matcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Matcher{store: store, logger: logger}
}

// KeyFor derives the composite natural key an event matches on.
func KeyFor(e *models.TradeEvent, action models.Action) models.PositionKey {
	return models.PositionKey{
		Symbol:     e.Symbol,
		Strategy:   models.ClassifyStrategy(e.Direction, e.OptionType, action),
		Strike:     e.Strike,
		Expiration: e.Expiration,
	}
}

// Match returns the mutable position for the event's key, or nil when none
// exists. It never creates.
func (m *Matcher) Match(ctx context.Context, e *models.TradeEvent, action models.Action) (*models.Position, error) {
	key := KeyFor(e, action)
	pos, err := m.store.FindOpenPosition(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNoOpenPosition) {
			return nil, nil
		}
		return nil, fmt.Errorf("match %s: %w", key, err)
	}
	return pos, nil
}

// MatchOrCreate returns the mutable position for the event's key, creating a
// new lineage seeded from this fill when none exists. The second return value
// reports whether a creation happened. A close-only first-seen event creates
// too: an incomplete lineage with correct money totals beats a lost fill.
func (m *Matcher) MatchOrCreate(ctx context.Context, e *models.TradeEvent, action models.Action) (*models.Position, bool, error) {
	pos, err := m.Match(ctx, e, action)
	if err != nil {
		return nil, false, err
	}
	if pos != nil {
		return pos, false, nil
	}

	key := KeyFor(e, action)
	pos = models.NewPosition(uuid.NewString(), key, e.Price, e.TradeTime)
	if err := m.store.CreatePosition(ctx, pos); err != nil {
		return nil, false, fmt.Errorf("create position %s: %w", key, err)
	}

	if action.IsClose() {
		m.logger.Printf("matcher: close without open lineage, created %s for %s", pos.ID, e.Describe())
	}
	return pos, true, nil
}
