package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirkhalloran/oraclepm/internal/broker"
	"github.com/kirkhalloran/oraclepm/internal/models"
	"github.com/kirkhalloran/oraclepm/internal/storage"
)

func TestSyncIngestsMockHistory(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	syncer := NewSyncer(broker.NewMockBroker(), store, models.PolicyAssumeShort, discardLogger(), false)

	since := time.Now().UTC().AddDate(0, 0, -60)
	summary, err := syncer.Sync(ctx, nil, since)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Accounts)
	assert.Equal(t, 3, summary.OrdersFetched)
	assert.Equal(t, 2, summary.EventsNormalized, "the WORKING order must not normalize")
	assert.Equal(t, 2, summary.Applied)
	assert.Equal(t, 1, summary.PositionsCreated)
	assert.Equal(t, 1, summary.PositionsClosed, "flat lineage closes during maintenance")
	assert.Zero(t, summary.Skipped)

	positions, err := store.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	pos := positions[0]
	assert.Equal(t, models.StrategyShortPut, pos.Strategy)
	assert.Equal(t, models.StatusClosed, pos.Status)
	assert.Equal(t, 0, pos.Contracts)
	assert.InDelta(t, 300.00, pos.TotalCredit, 1e-9)
	assert.InDelta(t, 100.00, pos.TotalDebit, 1e-9)
}

func TestSyncIsRepeatable(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	syncer := NewSyncer(broker.NewMockBroker(), store, models.PolicyAssumeShort, discardLogger(), false)

	since := time.Now().UTC().AddDate(0, 0, -60)
	first, err := syncer.Sync(ctx, nil, since)
	require.NoError(t, err)
	require.Equal(t, 2, first.Applied)

	second, err := syncer.Sync(ctx, nil, since)
	require.NoError(t, err)
	assert.Zero(t, second.Applied)
	assert.Equal(t, 2, second.Duplicates)

	positions, err := store.ListPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, positions, 1, "re-sync must not duplicate the lineage")
}

func TestSyncAbortsOnBrokerFailure(t *testing.T) {
	ctx := context.Background()
	mock := broker.NewMockBroker()
	mock.Err = errors.New("connection reset")
	syncer := NewSyncer(mock, storage.NewMemoryStore(), models.PolicyAssumeShort, discardLogger(), false)

	_, err := syncer.Sync(ctx, nil, time.Now().UTC().AddDate(0, 0, -60))
	require.Error(t, err)
}

func TestSyncDryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	syncer := NewSyncer(broker.NewMockBroker(), store, models.PolicyAssumeShort, discardLogger(), true)

	summary, err := syncer.Sync(ctx, nil, time.Now().UTC().AddDate(0, 0, -60))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Applied)

	positions, err := store.ListPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestSyncRespectsSinceCursor(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	syncer := NewSyncer(broker.NewMockBroker(), store, models.PolicyAssumeShort, discardLogger(), false)

	// A cursor after all canned orders ingests nothing.
	summary, err := syncer.Sync(ctx, nil, time.Now().UTC().AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Zero(t, summary.OrdersFetched)
	assert.Zero(t, summary.Applied)
}
