package storage

import (
	"context"
	"sync"
	"time"

	"github.com/kirkhalloran/oraclepm/internal/models"
)

// MemoryStore is an in-memory Interface implementation used by tests and
// paper mode. Behavior mirrors the PostgreSQL store, including creation-order
// matching and transactional apply semantics.
type MemoryStore struct {
	mu        sync.RWMutex
	positions []*models.Position // creation order
	trades    map[string][]models.Trade
	tradeKeys map[models.TradeKey]struct{}
}

var _ Interface = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trades:    make(map[string][]models.Trade),
		tradeKeys: make(map[models.TradeKey]struct{}),
	}
}

func (m *MemoryStore) findByID(id string) *models.Position {
	for _, p := range m.positions {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (m *MemoryStore) FindOpenPosition(_ context.Context, key models.PositionKey) (*models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.positions {
		if p.Status.Mutable() &&
			p.Symbol == key.Symbol && p.Strategy == key.Strategy &&
			p.Strike == key.Strike && p.Expiration.Equal(key.Expiration) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNoOpenPosition
}

func (m *MemoryStore) CreatePosition(_ context.Context, pos *models.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *pos
	m.positions = append(m.positions, &cp)
	return nil
}

func (m *MemoryStore) GetPosition(_ context.Context, id string) (*models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p := m.findByID(id)
	if p == nil {
		return nil, ErrPositionNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) ListPositions(_ context.Context) ([]models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out, nil
}

func (m *MemoryStore) ListMutablePositions(_ context.Context) ([]models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Position
	for _, p := range m.positions {
		if p.Status.Mutable() {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *MemoryStore) FillExists(_ context.Context, key models.PositionKey, trade *models.Trade) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tk := trade.Key()
	for _, p := range m.positions {
		if p.Symbol != key.Symbol || p.Strategy != key.Strategy ||
			p.Strike != key.Strike || !p.Expiration.Equal(key.Expiration) {
			continue
		}
		tk.PositionID = p.ID
		if _, ok := m.tradeKeys[tk]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ApplyTrade(_ context.Context, trade *models.Trade, credit, debit float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := trade.Key()
	if _, ok := m.tradeKeys[key]; ok {
		return ErrDuplicateTrade
	}

	p := m.findByID(trade.PositionID)
	if p == nil {
		return ErrPositionNotFound
	}
	if !p.Status.Mutable() {
		return ErrPositionNotMutable
	}

	cp := *trade
	cp.TradeTime = key.TradeTime
	m.trades[trade.PositionID] = append(m.trades[trade.PositionID], cp)
	m.tradeKeys[key] = struct{}{}

	p.Contracts += trade.Contracts
	p.TotalCredit += credit
	p.TotalDebit += debit
	p.Commissions += trade.Commissions
	p.Fees += trade.Fees
	p.Mark = trade.Price
	p.LastUpdated = key.TradeTime
	return nil
}

func (m *MemoryStore) ListTrades(_ context.Context, positionID string) ([]models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.trades[positionID]
	out := make([]models.Trade, len(src))
	copy(out, src)
	return out, nil
}

func (m *MemoryStore) UpdateMarketData(_ context.Context, positionID string, mark, iv, delta float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.findByID(positionID)
	if p == nil {
		return ErrPositionNotFound
	}
	if !p.Status.Mutable() {
		return ErrPositionNotMutable
	}

	p.Mark = mark
	p.CurrentIV = iv
	p.Delta = delta
	if p.EntryIV == 0 {
		p.EntryIV = iv
	}
	p.LastUpdated = at.UTC()
	return nil
}

func (m *MemoryStore) CloseFlatPositions(_ context.Context, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, p := range m.positions {
		if p.Status.Mutable() && p.Contracts == 0 && len(m.trades[p.ID]) > 0 {
			p.Status = models.StatusClosed
			p.LastUpdated = at.UTC()
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) MarkExpiredPositions(_ context.Context, asOf time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, p := range m.positions {
		if p.Status == models.StatusOpen && p.Expiration.Before(asOf) {
			p.Status = models.StatusExpired
			p.LastUpdated = asOf.UTC()
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SetAccountSize(_ context.Context, size float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.positions {
		if p.Status.Mutable() {
			p.AccountSize = size
		}
	}
	return nil
}
