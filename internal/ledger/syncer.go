package ledger

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/kirkhalloran/oraclepm/internal/broker"
	"github.com/kirkhalloran/oraclepm/internal/models"
	"github.com/kirkhalloran/oraclepm/internal/storage"
)

// Summary is the aggregate result of one sync pass.
type Summary struct {
	Accounts         int
	OrdersFetched    int
	EventsNormalized int
	Applied          int
	Duplicates       int
	Skipped          int
	PositionsCreated int
	PositionsClosed  int
	PositionsExpired int
}

func (s Summary) String() string {
	return fmt.Sprintf("accounts=%d orders=%d events=%d applied=%d duplicates=%d skipped=%d created=%d closed=%d expired=%d",
		s.Accounts, s.OrdersFetched, s.EventsNormalized, s.Applied, s.Duplicates, s.Skipped,
		s.PositionsCreated, s.PositionsClosed, s.PositionsExpired)
}

// Syncer orchestrates one ingestion pass: fetch orders per account,
// normalize, apply in timestamp order, then run lifecycle maintenance.
// Re-running a pass over an overlapping window is safe; already-ingested
// fills dedup against the trade natural key.
type Syncer struct {
	broker     broker.Broker
	store      storage.Interface
	normalizer *Normalizer
	applier    *Applier
	logger     *log.Logger
	dryRun     bool
}

// NewSyncer wires a Syncer from its collaborators.
func NewSyncer(b broker.Broker, store storage.Interface, policy models.UnknownEffectPolicy, logger *log.Logger, dryRun bool) *Syncer {
	if logger == nil {
		logger = log.Default()
	}
	return &Syncer{
		broker:     b,
		store:      store,
		normalizer: NewNormalizer(logger),
		applier:    NewApplier(store, policy, logger, dryRun),
		logger:     logger,
		dryRun:     dryRun,
	}
}

// Sync ingests all filled orders since the cursor for the given accounts.
// With an empty account list it syncs every account the broker reports.
// Store failures abort the pass immediately; normalization and resolution
// problems skip the affected event and continue.
func (s *Syncer) Sync(ctx context.Context, accounts []string, since time.Time) (Summary, error) {
	var summary Summary

	if len(accounts) == 0 {
		var err error
		accounts, err = s.broker.FetchAccounts(ctx)
		if err != nil {
			return summary, fmt.Errorf("fetch accounts: %w", err)
		}
	}
	summary.Accounts = len(accounts)

	var events []models.TradeEvent
	for _, account := range accounts {
		orders, err := s.broker.FetchOrders(ctx, account, since)
		if err != nil {
			return summary, fmt.Errorf("fetch orders for account %s: %w", account, err)
		}
		summary.OrdersFetched += len(orders)
		events = append(events, s.normalizer.NormalizeOrders(account, orders)...)
	}
	summary.EventsNormalized = len(events)

	// Apply oldest first so lineage creation and running contract counts
	// follow real time. The sort is stable: legs of one order keep their
	// statement order.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].TradeTime.Before(events[j].TradeTime)
	})

	for i := range events {
		outcome, err := s.applier.Apply(ctx, &events[i])
		if err != nil {
			return summary, err
		}
		switch outcome.Disposition {
		case DispositionApplied:
			summary.Applied++
			if outcome.Created {
				summary.PositionsCreated++
			}
		case DispositionDuplicate:
			summary.Duplicates++
		case DispositionSkipped:
			summary.Skipped++
		}
	}

	if s.dryRun {
		s.logger.Printf("syncer: dry run, skipping lifecycle maintenance (%s)", summary)
		return summary, nil
	}

	if err := s.maintain(ctx, &summary); err != nil {
		return summary, err
	}

	s.logger.Printf("syncer: pass complete (%s)", summary)
	return summary, nil
}

// maintain runs the post-ingestion lifecycle sweeps: flat lineages with
// trades close, open lineages past expiration flip to EXPIRED.
func (s *Syncer) maintain(ctx context.Context, summary *Summary) error {
	now := time.Now().UTC()

	closed, err := s.store.CloseFlatPositions(ctx, now)
	if err != nil {
		return fmt.Errorf("close flat positions: %w", err)
	}
	summary.PositionsClosed = closed

	expired, err := s.store.MarkExpiredPositions(ctx, now)
	if err != nil {
		return fmt.Errorf("mark expired positions: %w", err)
	}
	summary.PositionsExpired = expired
	return nil
}

// Store exposes the underlying storage for callers that report after a sync.
func (s *Syncer) Store() storage.Interface {
	return s.store
}
