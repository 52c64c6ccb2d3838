// Package storetest provides an in-memory store.Store for tests. Each
// transaction runs under a single mutex with copy-on-write rollback,
// which serializes concurrent transactions the way row locks do in the
// Postgres implementation. Test scaffolding only, never a production
// path.
package storetest

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/gamefrax/marketplace/internal/errs"
	"github.com/gamefrax/marketplace/internal/models"
	"github.com/gamefrax/marketplace/internal/stats"
	"github.com/gamefrax/marketplace/internal/store"
)

type Store struct {
	mu            sync.Mutex
	now           func() time.Time
	orders        map[string]*models.Order
	matches       map[string]*models.Match
	history       []models.OrderHistory
	stats         map[string]*models.TradeStatistics
	nextHistoryID int64
}

func New() *Store {
	return &Store{
		now:     time.Now,
		orders:  make(map[string]*models.Order),
		matches: make(map[string]*models.Match),
		stats:   make(map[string]*models.TradeStatistics),
	}
}

// SetClock overrides wall-clock time for expiry filtering. Tests that
// pin the engine clock must pin the store to the same instant, otherwise
// fixture expiries drift against the real date.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	c.Amount = new(big.Int).Set(o.Amount)
	c.PricePerToken = new(big.Int).Set(o.PricePerToken)
	c.FilledAmount = new(big.Int).Set(o.FilledAmount)
	return &c
}

func copyMatch(m *models.Match) *models.Match {
	c := *m
	c.MatchedAmount = new(big.Int).Set(m.MatchedAmount)
	c.MatchedPrice = new(big.Int).Set(m.MatchedPrice)
	c.GasFeeAmount = new(big.Int).Set(m.GasFeeAmount)
	if m.SettledAt != nil {
		t := *m.SettledAt
		c.SettledAt = &t
	}
	return &c
}

func copyStats(s *models.TradeStatistics) *models.TradeStatistics {
	c := *s
	c.HighPrice = new(big.Int).Set(s.HighPrice)
	c.LowPrice = new(big.Int).Set(s.LowPrice)
	c.LastPrice = new(big.Int).Set(s.LastPrice)
	c.DailyVolume = new(big.Int).Set(s.DailyVolume)
	return &c
}

func statsKey(ft, pool string, date time.Time) string {
	return fmt.Sprintf("%s|%s|%s", ft, pool, date.UTC().Format("2006-01-02"))
}

func (s *Store) snapshot() *Store {
	snap := New()
	for k, v := range s.orders {
		snap.orders[k] = copyOrder(v)
	}
	for k, v := range s.matches {
		snap.matches[k] = copyMatch(v)
	}
	snap.history = append([]models.OrderHistory(nil), s.history...)
	for k, v := range s.stats {
		snap.stats[k] = copyStats(v)
	}
	snap.nextHistoryID = s.nextHistoryID
	return snap
}

func (s *Store) restore(snap *Store) {
	s.orders = snap.orders
	s.matches = snap.matches
	s.history = snap.history
	s.stats = snap.stats
	s.nextHistoryID = snap.nextHistoryID
}

// Transact serializes all writers and rolls every mutation back when fn
// fails, giving the same all-or-nothing guarantee as the SQL store.
func (s *Store) Transact(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&tx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) getOrderLocked(orderID string) (*models.Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "order %s not found", orderID)
	}
	return copyOrder(o), nil
}

func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{s: s}).CreateOrder(ctx, o)
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrderLocked(orderID)
}

func (s *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []models.Order
	for _, o := range s.orders {
		if o.Status == models.OrderOpen && o.IsExpired(now) {
			continue
		}
		if f.Side != "" && o.Side != f.Side {
			continue
		}
		if f.PoolID != "" && o.PoolID != f.PoolID {
			continue
		}
		if f.FTAddress != "" && o.FTAddress != f.FTAddress {
			continue
		}
		if f.UserAddress != "" && o.UserAddress != f.UserAddress {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *copyOrder(o))
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "match %s not found", id)
	}
	return copyMatch(m), nil
}

func (s *Store) ListMatchesByOrder(ctx context.Context, orderID string) ([]models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Match
	for _, m := range s.matches {
		if m.BuyOrderID == orderID || m.SellOrderID == orderID {
			out = append(out, *copyMatch(m))
		}
	}
	return out, nil
}

func (s *Store) ListHistory(ctx context.Context, orderID string) ([]models.OrderHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.OrderHistory
	for _, h := range s.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *Store) GetDailyStats(ctx context.Context, ftAddress, poolID string, date time.Time) (*models.TradeStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.stats[statsKey(ftAddress, poolID, date)]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "daily statistics not found")
	}
	return copyStats(row), nil
}

func (s *Store) ListStats(ctx context.Context, ftAddress, poolID string, since time.Time) ([]models.TradeStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TradeStatistics
	for _, row := range s.stats {
		if row.FTAddress != ftAddress {
			continue
		}
		if poolID != "" && row.PoolID != poolID {
			continue
		}
		if row.Date.Before(since) {
			continue
		}
		out = append(out, *copyStats(row))
	}
	return out, nil
}

// tx implements store.Tx against the already-locked store.
type tx struct {
	s *Store
}

func (t *tx) CreateOrder(ctx context.Context, o *models.Order) error {
	if _, exists := t.s.orders[o.OrderID]; exists {
		return errs.New(errs.KindConflict, "order %s already exists", o.OrderID)
	}
	t.s.orders[o.OrderID] = copyOrder(o)
	return nil
}

func (t *tx) GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	return t.s.getOrderLocked(orderID)
}

func (t *tx) UpdateOrderFill(ctx context.Context, o *models.Order) error {
	existing, ok := t.s.orders[o.OrderID]
	if !ok {
		return errs.New(errs.KindNotFound, "order %s not found", o.OrderID)
	}
	existing.FilledAmount = new(big.Int).Set(o.FilledAmount)
	existing.Status = o.Status
	return nil
}

func (t *tx) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) error {
	existing, ok := t.s.orders[orderID]
	if !ok {
		return errs.New(errs.KindNotFound, "order %s not found", orderID)
	}
	existing.Status = status
	return nil
}

func (t *tx) CreateMatch(ctx context.Context, m *models.Match) error {
	if _, exists := t.s.matches[m.ID]; exists {
		return errs.New(errs.KindConflict, "match %s already exists", m.ID)
	}
	t.s.matches[m.ID] = copyMatch(m)
	return nil
}

func (t *tx) GetMatchForUpdate(ctx context.Context, id string) (*models.Match, error) {
	m, ok := t.s.matches[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "match %s not found", id)
	}
	return copyMatch(m), nil
}

func (t *tx) UpdateMatch(ctx context.Context, m *models.Match) error {
	if _, ok := t.s.matches[m.ID]; !ok {
		return errs.New(errs.KindNotFound, "match %s not found", m.ID)
	}
	t.s.matches[m.ID] = copyMatch(m)
	return nil
}

func (t *tx) ListPendingMatchesByOrder(ctx context.Context, orderID string) ([]models.Match, error) {
	var out []models.Match
	for _, m := range t.s.matches {
		if m.Status != models.MatchPendingExecution {
			continue
		}
		if m.BuyOrderID == orderID || m.SellOrderID == orderID {
			out = append(out, *copyMatch(m))
		}
	}
	return out, nil
}

func (t *tx) AppendHistory(ctx context.Context, h *models.OrderHistory) error {
	t.s.nextHistoryID++
	entry := *h
	entry.ID = t.s.nextHistoryID
	entry.Amount = new(big.Int).Set(h.Amount)
	t.s.history = append(t.s.history, entry)
	return nil
}

func (t *tx) UpsertDailyStats(ctx context.Context, d store.StatsDelta) error {
	key := statsKey(d.FTAddress, d.PoolID, d.Date)
	t.s.stats[key] = stats.Apply(t.s.stats[key], d)
	return nil
}
