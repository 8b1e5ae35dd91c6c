package storage

import (
	"context"
	"time"

	"github.com/kirkhalloran/oraclepm/internal/models"
)

// Interface is the persistence contract for positions and the trade ledger.
//
// Implementations must enforce the two uniqueness invariants: at most one
// position per natural key in a mutable status, and at most one trade row
// per trade natural key. ApplyTrade must be atomic — a trade row without its
// aggregate update (or vice versa) must never be observable.
type Interface interface {
	// FindOpenPosition returns the oldest-created position matching key with
	// status OPEN or EXPIRED, or ErrNoOpenPosition.
	FindOpenPosition(ctx context.Context, key models.PositionKey) (*models.Position, error)
	// CreatePosition inserts a new position row.
	CreatePosition(ctx context.Context, pos *models.Position) error
	// GetPosition returns a position by id, or ErrPositionNotFound.
	GetPosition(ctx context.Context, id string) (*models.Position, error)
	// ListPositions returns all positions in creation order.
	ListPositions(ctx context.Context) ([]models.Position, error)
	// ListMutablePositions returns positions with status OPEN or EXPIRED in
	// creation order.
	ListMutablePositions(ctx context.Context) ([]models.Position, error)

	// FillExists reports whether a ledger row recording the same fill
	// (trade time, action, signed contracts, price) exists on any lineage
	// with the given natural key, regardless of status. Scoping the dedup
	// check to the key rather than one lineage keeps re-ingesting a batch
	// safe even after maintenance has closed the lineage the fill
	// originally landed on.
	FillExists(ctx context.Context, key models.PositionKey, trade *models.Trade) (bool, error)
	// ApplyTrade inserts the trade row and folds it into the owning
	// position's aggregates in one transaction. The position update is
	// conditioned on the status still being mutable; otherwise the whole
	// transaction rolls back with ErrPositionNotMutable. credit and debit
	// are the gross-notional attributions of the fill.
	ApplyTrade(ctx context.Context, trade *models.Trade, credit, debit float64) error
	// ListTrades returns the ledger rows of one position in time order.
	ListTrades(ctx context.Context, positionID string) ([]models.Trade, error)

	// UpdateMarketData refreshes a position's live snapshot (mark, current
	// IV, delta). It only touches mutable positions; updating a terminal
	// position returns ErrPositionNotMutable.
	UpdateMarketData(ctx context.Context, positionID string, mark, iv, delta float64, at time.Time) error

	// Maintenance operations.

	// CloseFlatPositions marks mutable positions whose contracts fully
	// offset (count zero, with at least one ledger row) as CLOSED. Returns
	// the number of positions closed.
	CloseFlatPositions(ctx context.Context, at time.Time) (int, error)
	// MarkExpiredPositions flips OPEN positions whose expiration has passed
	// to EXPIRED. Returns the number of positions updated.
	MarkExpiredPositions(ctx context.Context, asOf time.Time) (int, error)
	// SetAccountSize stamps the account size used for exposure analytics on
	// all mutable positions.
	SetAccountSize(ctx context.Context, size float64) error
}
