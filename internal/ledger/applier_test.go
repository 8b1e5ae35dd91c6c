package ledger

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirkhalloran/oraclepm/internal/models"
	"github.com/kirkhalloran/oraclepm/internal/storage"
)

var testExpiration = time.Date(2025, 12, 19, 0, 0, 0, 0, time.UTC)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func sellOpenEvent() *models.TradeEvent {
	return &models.TradeEvent{
		Account:    "ACCT1",
		Symbol:     "XYZ",
		OptionType: models.KindPut,
		Strike:     50,
		Expiration: testExpiration,
		Direction:  models.DirectionSell,
		OpenClose:  models.EffectOpening,
		Quantity:   2,
		Price:      1.50,
		TradeTime:  time.Date(2025, 11, 1, 15, 30, 0, 0, time.UTC),
	}
}

func buyCloseEvent() *models.TradeEvent {
	e := sellOpenEvent()
	e.Direction = models.DirectionBuy
	e.OpenClose = models.EffectClosing
	e.Price = 0.50
	e.TradeTime = e.TradeTime.Add(14 * 24 * time.Hour)
	return e
}

func newTestApplier(store storage.Interface) *Applier {
	return NewApplier(store, models.PolicyAssumeShort, discardLogger(), false)
}

func TestApplyOpensNewShortPosition(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	applier := newTestApplier(store)

	outcome, err := applier.Apply(ctx, sellOpenEvent())
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, outcome.Disposition)
	assert.True(t, outcome.Created)

	pos, err := store.GetPosition(ctx, outcome.PositionID)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyShortPut, pos.Strategy)
	assert.Equal(t, models.StatusOpen, pos.Status)
	assert.Equal(t, -2, pos.Contracts)
	assert.InDelta(t, 300.00, pos.TotalCredit, 1e-9)
	assert.InDelta(t, 0.0, pos.TotalDebit, 1e-9)

	trades, err := store.ListTrades(ctx, pos.ID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, models.ActionSellOpen, trades[0].Action)
	assert.Equal(t, -2, trades[0].Contracts)
}

func TestApplyCloseHitsSamePosition(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	applier := newTestApplier(store)

	open, err := applier.Apply(ctx, sellOpenEvent())
	require.NoError(t, err)

	klose, err := applier.Apply(ctx, buyCloseEvent())
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, klose.Disposition)
	assert.False(t, klose.Created, "close must not open a second lineage")
	assert.Equal(t, open.PositionID, klose.PositionID)

	pos, err := store.GetPosition(ctx, open.PositionID)
	require.NoError(t, err)
	assert.Equal(t, 0, pos.Contracts)
	assert.InDelta(t, 300.00, pos.TotalCredit, 1e-9)
	assert.InDelta(t, 100.00, pos.TotalDebit, 1e-9)

	positions, err := store.ListPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, positions, 1)
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	applier := newTestApplier(store)

	first, err := applier.Apply(ctx, sellOpenEvent())
	require.NoError(t, err)
	require.Equal(t, DispositionApplied, first.Disposition)

	second, err := applier.Apply(ctx, sellOpenEvent())
	require.NoError(t, err)
	assert.Equal(t, DispositionDuplicate, second.Disposition)

	pos, err := store.GetPosition(ctx, first.PositionID)
	require.NoError(t, err)
	assert.Equal(t, -2, pos.Contracts, "duplicate must not change contracts")
	assert.InDelta(t, 300.00, pos.TotalCredit, 1e-9)

	trades, err := store.ListTrades(ctx, pos.ID)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestApplyConservation(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	applier := newTestApplier(store)

	// Applying a sequence of fills must leave contracts equal to the sum of
	// the signed deltas.
	deltas := 0
	times := time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC)
	var posID string
	for i, qty := range []int{2, 3, 1} {
		e := sellOpenEvent()
		e.Quantity = qty
		e.TradeTime = times.Add(time.Duration(i) * time.Hour)
		outcome, err := applier.Apply(ctx, e)
		require.NoError(t, err)
		require.Equal(t, DispositionApplied, outcome.Disposition)
		posID = outcome.PositionID
		deltas -= qty
	}

	e := buyCloseEvent()
	e.Quantity = 4
	outcome, err := applier.Apply(ctx, e)
	require.NoError(t, err)
	require.Equal(t, DispositionApplied, outcome.Disposition)
	require.Equal(t, posID, outcome.PositionID)
	deltas += 4

	pos, err := store.GetPosition(ctx, posID)
	require.NoError(t, err)
	assert.Equal(t, deltas, pos.Contracts)
	assert.Equal(t, -2, pos.Contracts)
}

func TestApplySkipsClosedPosition(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	applier := newTestApplier(store)

	open, err := applier.Apply(ctx, sellOpenEvent())
	require.NoError(t, err)
	_, err = applier.Apply(ctx, buyCloseEvent())
	require.NoError(t, err)

	n, err := store.CloseFlatPositions(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	before, err := store.GetPosition(ctx, open.PositionID)
	require.NoError(t, err)

	// A fresh fill for the same key must start a new lineage, never touch
	// the closed row.
	e := sellOpenEvent()
	e.TradeTime = e.TradeTime.Add(30 * 24 * time.Hour)
	e.Price = 2.00
	outcome, err := applier.Apply(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, outcome.Disposition)
	assert.True(t, outcome.Created)
	assert.NotEqual(t, open.PositionID, outcome.PositionID)

	after, err := store.GetPosition(ctx, open.PositionID)
	require.NoError(t, err)
	assert.Equal(t, before.Contracts, after.Contracts)
	assert.Equal(t, before.TotalCredit, after.TotalCredit)
	assert.Equal(t, before.TotalDebit, after.TotalDebit)
	assert.Equal(t, before.LastUpdated, after.LastUpdated)
	assert.Equal(t, models.StatusClosed, after.Status)
}

func TestApplyReplayedFillAfterMaintenanceIsDuplicate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	applier := newTestApplier(store)

	_, err := applier.Apply(ctx, sellOpenEvent())
	require.NoError(t, err)
	_, err = applier.Apply(ctx, buyCloseEvent())
	require.NoError(t, err)

	n, err := store.CloseFlatPositions(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Replaying the same batch after the lineage was closed must dedup
	// against the closed row, not open a second lineage.
	outcome, err := applier.Apply(ctx, sellOpenEvent())
	require.NoError(t, err)
	assert.Equal(t, DispositionDuplicate, outcome.Disposition)

	outcome, err = applier.Apply(ctx, buyCloseEvent())
	require.NoError(t, err)
	assert.Equal(t, DispositionDuplicate, outcome.Disposition)

	positions, err := store.ListPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, positions, 1)
}

func TestApplyRejectPolicySkipsUnknownEffect(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	applier := NewApplier(store, models.PolicyReject, discardLogger(), false)

	e := sellOpenEvent()
	e.OpenClose = models.EffectUnknown
	outcome, err := applier.Apply(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, DispositionSkipped, outcome.Disposition)
	assert.NotEmpty(t, outcome.Reason)

	positions, err := store.ListPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions, "rejected event must not create a lineage")
}

func TestApplyInvalidEventSkipped(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	applier := newTestApplier(store)

	e := sellOpenEvent()
	e.Strike = 0
	outcome, err := applier.Apply(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, DispositionSkipped, outcome.Disposition)
}

func TestApplyDryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	applier := NewApplier(store, models.PolicyAssumeShort, discardLogger(), true)

	outcome, err := applier.Apply(ctx, sellOpenEvent())
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, outcome.Disposition)
	assert.True(t, outcome.Created)

	positions, err := store.ListPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestApplyDryRunReportsDuplicate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	real, err := newTestApplier(store).Apply(ctx, sellOpenEvent())
	require.NoError(t, err)
	require.Equal(t, DispositionApplied, real.Disposition)

	dry := NewApplier(store, models.PolicyAssumeShort, discardLogger(), true)
	outcome, err := dry.Apply(ctx, sellOpenEvent())
	require.NoError(t, err)
	assert.Equal(t, DispositionDuplicate, outcome.Disposition)
}
