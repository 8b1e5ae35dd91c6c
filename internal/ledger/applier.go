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

// Disposition is what became of one event after the applier saw it.
type Disposition string

const (
	// DispositionApplied means a ledger row was written (or would be, in a
	// dry run).
	DispositionApplied Disposition = "applied"
	// DispositionDuplicate means the event's natural key already exists.
	DispositionDuplicate Disposition = "duplicate"
	// DispositionSkipped means the event could not be ingested; Reason says
	// why.
	DispositionSkipped Disposition = "skipped"
)

// Outcome reports the per-event result of an Apply call.
type Outcome struct {
	Disposition Disposition
	PositionID  string
	Created     bool // a new lineage was opened for this event
	Reason      string
}

// Applier is the write path of the ledger. Each event passes through action
// resolution, position matching, a natural-key dedup check, and a single
// transactional store write. Events are processed strictly one at a time so
// matching always observes the previous event's effects.
type Applier struct {
	store   storage.Interface
	matcher *Matcher
	policy  models.UnknownEffectPolicy
	logger  *log.Logger
	dryRun  bool
}

// NewApplier creates an Applier. The policy governs fills whose open/close
// qualifier the broker omitted. With dryRun set, Apply reports what it would
// do without writing anything.
func NewApplier(store storage.Interface, policy models.UnknownEffectPolicy, logger *log.Logger, dryRun bool) *Applier {
	if logger == nil {
		logger = log.Default()
	}
	if !policy.Valid() {
		policy = models.PolicyAssumeShort
	}
	return &Applier{
		store:   store,
		matcher: NewMatcher(store, logger),
		policy:  policy,
		logger:  logger,
		dryRun:  dryRun,
	}
}

// Apply ingests one normalized event. Skips and duplicates return a nil
// error; the error return is reserved for store failures, which the caller
// must treat as fatal for the batch.
func (a *Applier) Apply(ctx context.Context, e *models.TradeEvent) (Outcome, error) {
	if err := e.Validate(); err != nil {
		a.logger.Printf("applier: invalid event %s: %v", e.Describe(), err)
		return Outcome{Disposition: DispositionSkipped, Reason: err.Error()}, nil
	}

	action, delta, err := models.ResolveAction(e, a.policy)
	if err != nil {
		var ind *models.ErrIndeterminate
		if errors.As(err, &ind) {
			a.logger.Printf("applier: indeterminate action for %s: %v", e.Describe(), err)
			return Outcome{Disposition: DispositionSkipped, Reason: err.Error()}, nil
		}
		return Outcome{}, fmt.Errorf("resolve action for %s: %w", e.Describe(), err)
	}

	if a.dryRun {
		return a.preview(ctx, e, action, delta)
	}

	// Dedup against every lineage sharing the natural key, not just the
	// mutable one: a fill replayed after its lineage was closed by
	// maintenance must not open a fresh lineage.
	posKey := KeyFor(e, action)
	probe := a.buildTrade("", e, action, delta)
	exists, err := a.store.FillExists(ctx, posKey, probe)
	if err != nil {
		return Outcome{}, fmt.Errorf("check duplicate %s: %w", posKey, err)
	}
	if exists {
		return Outcome{Disposition: DispositionDuplicate}, nil
	}

	pos, created, err := a.matcher.MatchOrCreate(ctx, e, action)
	if err != nil {
		return Outcome{}, err
	}

	trade := a.buildTrade(pos.ID, e, action, delta)
	credit, debit := moneySplit(trade)
	if err := a.store.ApplyTrade(ctx, trade, credit, debit); err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicateTrade):
			// Lost the race against an identical row; same as the pre-check
			// firing.
			return Outcome{Disposition: DispositionDuplicate, PositionID: pos.ID}, nil
		case errors.Is(err, storage.ErrPositionNotMutable):
			a.logger.Printf("applier: position %s no longer mutable, skipping %s", pos.ID, e.Describe())
			return Outcome{Disposition: DispositionSkipped, PositionID: pos.ID, Reason: "position not mutable"}, nil
		default:
			return Outcome{}, fmt.Errorf("apply trade %s: %w", trade.Key(), err)
		}
	}

	return Outcome{Disposition: DispositionApplied, PositionID: pos.ID, Created: created}, nil
}

// preview runs the read-only part of the pipeline for dry-run mode.
func (a *Applier) preview(ctx context.Context, e *models.TradeEvent, action models.Action, delta int) (Outcome, error) {
	posKey := KeyFor(e, action)
	probe := a.buildTrade("", e, action, delta)
	exists, err := a.store.FillExists(ctx, posKey, probe)
	if err != nil {
		return Outcome{}, fmt.Errorf("check duplicate %s: %w", posKey, err)
	}
	if exists {
		return Outcome{Disposition: DispositionDuplicate}, nil
	}

	pos, err := a.matcher.Match(ctx, e, action)
	if err != nil {
		return Outcome{}, err
	}
	if pos == nil {
		return Outcome{Disposition: DispositionApplied, Created: true, Reason: "dry-run: would create lineage"}, nil
	}
	return Outcome{Disposition: DispositionApplied, PositionID: pos.ID, Reason: "dry-run: would apply"}, nil
}

func (a *Applier) buildTrade(positionID string, e *models.TradeEvent, action models.Action, delta int) *models.Trade {
	return &models.Trade{
		ID:              uuid.NewString(),
		PositionID:      positionID,
		TradeTime:       e.TradeTime,
		Action:          action,
		Contracts:       delta,
		Price:           e.Price,
		Commissions:     e.Commissions,
		Fees:            e.Fees,
		UnderlyingPrice: e.UnderlyingPrice,
		Note:            fmt.Sprintf("order %s leg %s", e.OrderID, e.LegID),
	}
}

// moneySplit attributes the fill's gross notional: sell-side gross is credit
// collected, buy-side gross is debit paid.
func moneySplit(t *models.Trade) (credit, debit float64) {
	gross := t.GrossNotional()
	if t.Action.IsSell() {
		return gross, 0
	}
	return 0, gross
}
