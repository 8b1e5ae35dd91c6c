package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirkhalloran/oraclepm/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// pgUniqueViolation is the SQLSTATE for unique-constraint violations.
const pgUniqueViolation = "23505"

// Config holds connection parameters for the PostgreSQL store.
type Config struct {
	DSN      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int
}

// BuildDSN builds a PostgreSQL connection string from the given config.
func BuildDSN(cfg Config) string {
	if strings.TrimSpace(cfg.DSN) != "" {
		return cfg.DSN
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, port, cfg.Database, sslMode,
	)
}

// PostgresStore implements Interface on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Ensure PostgresStore implements Interface at compile time.
var _ Interface = (*PostgresStore)(nil)

// NewPostgresStore connects to PostgreSQL and applies pending migrations.
func NewPostgresStore(ctx context.Context, cfg Config) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// runMigrations applies embedded SQL files in lexicographic order, tracking
// applied files in a schema_migrations table.
func (s *PostgresStore) runMigrations(ctx context.Context) error {
	const createTracker = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`
	if _, err := s.pool.Exec(ctx, createTracker); err != nil {
		return fmt.Errorf("postgres: create schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var exists bool
		err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)",
			entry.Name(),
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("postgres: check migration %s: %w", entry.Name(), err)
		}
		if exists {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("postgres: read migration %s: %w", entry.Name(), err)
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("postgres: begin tx for %s: %w", entry.Name(), err)
		}
		if _, err := tx.Exec(ctx, string(data)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("postgres: exec migration %s: %w", entry.Name(), err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (filename) VALUES ($1)", entry.Name(),
		); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("postgres: record migration %s: %w", entry.Name(), err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("postgres: commit migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

const positionSelectCols = `id, symbol, strategy, strike, expiration, status, contracts,
	entry_price, mark, total_credit, total_debit, commissions, fees,
	entry_iv, current_iv, delta, account_size, entry_date, last_updated`

func scanPositionRow(row pgx.Row) (*models.Position, error) {
	var p models.Position
	var strategy, status string

	err := row.Scan(
		&p.ID, &p.Symbol, &strategy, &p.Strike, &p.Expiration, &status, &p.Contracts,
		&p.EntryPrice, &p.Mark, &p.TotalCredit, &p.TotalDebit, &p.Commissions, &p.Fees,
		&p.EntryIV, &p.CurrentIV, &p.Delta, &p.AccountSize, &p.EntryDate, &p.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	p.Strategy = models.Strategy(strategy)
	p.Status = models.PositionStatus(status)
	p.Expiration = p.Expiration.UTC()
	return &p, nil
}

func scanPositionRows(rows pgx.Rows) ([]models.Position, error) {
	var positions []models.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

// FindOpenPosition returns the oldest mutable position for the key. Ordering
// by creation keeps fills flowing into the longest-lived lineage instead of
// fragmenting across near-simultaneous duplicates.
func (s *PostgresStore) FindOpenPosition(ctx context.Context, key models.PositionKey) (*models.Position, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+positionSelectCols+` FROM positions
		WHERE symbol = $1 AND strategy = $2 AND strike = $3 AND expiration = $4
		  AND status IN ('OPEN', 'EXPIRED')
		ORDER BY created_seq ASC
		LIMIT 1`,
		key.Symbol, string(key.Strategy), key.Strike, key.Expiration,
	)

	p, err := scanPositionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoOpenPosition
		}
		return nil, fmt.Errorf("postgres: find open position %s: %w", key, err)
	}
	return p, nil
}

// CreatePosition inserts a new position row.
func (s *PostgresStore) CreatePosition(ctx context.Context, pos *models.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO positions (
			id, symbol, strategy, strike, expiration, status, contracts,
			entry_price, mark, total_credit, total_debit, commissions, fees,
			entry_iv, current_iv, delta, account_size, entry_date, last_updated
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19
		)`,
		pos.ID, pos.Symbol, string(pos.Strategy), pos.Strike, pos.Expiration, string(pos.Status), pos.Contracts,
		pos.EntryPrice, pos.Mark, pos.TotalCredit, pos.TotalDebit, pos.Commissions, pos.Fees,
		pos.EntryIV, pos.CurrentIV, pos.Delta, pos.AccountSize, pos.EntryDate, pos.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", pos.ID, err)
	}
	return nil
}

// GetPosition returns a position by id.
func (s *PostgresStore) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)
	p, err := scanPositionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListPositions returns all positions in creation order.
func (s *PostgresStore) ListPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions ORDER BY created_seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()
	return scanPositionRows(rows)
}

// ListMutablePositions returns OPEN and EXPIRED positions in creation order.
func (s *PostgresStore) ListMutablePositions(ctx context.Context) ([]models.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+positionSelectCols+` FROM positions
		WHERE status IN ('OPEN', 'EXPIRED')
		ORDER BY created_seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list mutable positions: %w", err)
	}
	defer rows.Close()
	return scanPositionRows(rows)
}

// FillExists reports whether any lineage with the given natural key already
// records this fill. The check spans terminal lineages so that re-ingesting
// a batch stays a no-op after maintenance has closed a flat position.
func (s *PostgresStore) FillExists(ctx context.Context, key models.PositionKey, trade *models.Trade) (bool, error) {
	tk := trade.Key()
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM trades t
			JOIN positions p ON p.id = t.position_id
			WHERE p.symbol = $1 AND p.strategy = $2 AND p.strike = $3 AND p.expiration = $4
			  AND t.trade_time = $5 AND t.action = $6 AND t.contracts = $7 AND t.price = $8
		)`,
		key.Symbol, string(key.Strategy), key.Strike, key.Expiration,
		tk.TradeTime, string(tk.Action), tk.Contracts, tk.Price,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check fill %s: %w", key, err)
	}
	return exists, nil
}

// ApplyTrade inserts the ledger row and updates the owning position's
// aggregates in one transaction. A stale target (position already CLOSED or
// ROLLED) rolls everything back.
func (s *PostgresStore) ApplyTrade(ctx context.Context, trade *models.Trade, credit, debit float64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin apply tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	key := trade.Key()
	_, err = tx.Exec(ctx, `
		INSERT INTO trades (
			id, position_id, trade_time, action, contracts,
			price, commissions, fees, underlying_price, note
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		trade.ID, trade.PositionID, key.TradeTime, string(trade.Action), trade.Contracts,
		trade.Price, trade.Commissions, trade.Fees, trade.UnderlyingPrice, trade.Note,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateTrade
		}
		return fmt.Errorf("postgres: insert trade %s: %w", key, err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE positions SET
			contracts    = contracts + $2,
			total_credit = total_credit + $3,
			total_debit  = total_debit + $4,
			commissions  = commissions + $5,
			fees         = fees + $6,
			mark         = $7,
			last_updated = $8
		WHERE id = $1 AND status IN ('OPEN', 'EXPIRED')`,
		trade.PositionID, trade.Contracts, credit, debit,
		trade.Commissions, trade.Fees, trade.Price, key.TradeTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", trade.PositionID, err)
	}
	if tag.RowsAffected() == 0 {
		// Position went terminal since matching; the insert must not stick.
		return ErrPositionNotMutable
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit apply tx: %w", err)
	}
	return nil
}

// ListTrades returns the ledger rows of one position in time order.
func (s *PostgresStore) ListTrades(ctx context.Context, positionID string) ([]models.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, position_id, trade_time, action, contracts,
		       price, commissions, fees, underlying_price, note
		FROM trades
		WHERE position_id = $1
		ORDER BY trade_time ASC`, positionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for %s: %w", positionID, err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var action string
		if err := rows.Scan(
			&t.ID, &t.PositionID, &t.TradeTime, &action, &t.Contracts,
			&t.Price, &t.Commissions, &t.Fees, &t.UnderlyingPrice, &t.Note,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Action = models.Action(action)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// UpdateMarketData refreshes the live snapshot of one mutable position.
// The first IV reading also seeds entry_iv so IV-change analytics have a
// baseline when the position predates market-data coverage.
func (s *PostgresStore) UpdateMarketData(ctx context.Context, positionID string, mark, iv, delta float64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE positions SET
			mark         = $2,
			current_iv   = $3,
			delta        = $4,
			entry_iv     = CASE WHEN entry_iv = 0 THEN $3 ELSE entry_iv END,
			last_updated = $5
		WHERE id = $1 AND status IN ('OPEN', 'EXPIRED')`,
		positionID, mark, iv, delta, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: update market data for %s: %w", positionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPositionNotMutable
	}
	return nil
}

// CloseFlatPositions marks fully-offset mutable positions as CLOSED.
func (s *PostgresStore) CloseFlatPositions(ctx context.Context, at time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE positions SET status = 'CLOSED', last_updated = $1
		WHERE status IN ('OPEN', 'EXPIRED')
		  AND contracts = 0
		  AND EXISTS (SELECT 1 FROM trades WHERE trades.position_id = positions.id)`,
		at.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: close flat positions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// MarkExpiredPositions flips OPEN positions past expiration to EXPIRED.
func (s *PostgresStore) MarkExpiredPositions(ctx context.Context, asOf time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE positions SET status = 'EXPIRED', last_updated = $1
		WHERE status = 'OPEN' AND expiration < $2`,
		asOf.UTC(), asOf.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: mark expired positions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// SetAccountSize stamps the analytics account size on all mutable positions.
func (s *PostgresStore) SetAccountSize(ctx context.Context, size float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE positions SET account_size = $1 WHERE status IN ('OPEN', 'EXPIRED')`, size)
	if err != nil {
		return fmt.Errorf("postgres: set account size: %w", err)
	}
	return nil
}
