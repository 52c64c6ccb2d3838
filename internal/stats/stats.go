// Package stats rolls settled matches into per-token daily OHLC/volume
// rows and serves cached reads of them.
package stats

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/gamefrax/marketplace/internal/models"
	"github.com/gamefrax/marketplace/internal/settlement"
	"github.com/gamefrax/marketplace/internal/store"
)

// DeltaFor projects one settled match into a statistics delta, bucketed
// at UTC midnight of now.
func DeltaFor(ftAddress, poolID string, matchedAmount, matchedPrice *big.Int, now time.Time) store.StatsDelta {
	day := now.UTC().Truncate(24 * time.Hour)
	return store.StatsDelta{
		FTAddress: ftAddress,
		PoolID:    poolID,
		Date:      day,
		Price:     new(big.Int).Set(matchedPrice),
		Value:     settlement.TotalValue(matchedAmount, matchedPrice),
	}
}

// Apply merges a delta into an existing day row, or seeds a new row when
// existing is nil. High/low extend, last price is always overwritten
// (last-write-wins), volume accumulates, counters increment. This is the
// canonical merge; the SQL upsert in internal/db mirrors it.
func Apply(existing *models.TradeStatistics, d store.StatsDelta) *models.TradeStatistics {
	if existing == nil {
		return &models.TradeStatistics{
			FTAddress:    d.FTAddress,
			PoolID:       d.PoolID,
			Date:         d.Date,
			HighPrice:    new(big.Int).Set(d.Price),
			LowPrice:     new(big.Int).Set(d.Price),
			LastPrice:    new(big.Int).Set(d.Price),
			DailyVolume:  new(big.Int).Set(d.Value),
			TotalTrades:  1,
			TotalMatches: 1,
		}
	}
	if d.Price.Cmp(existing.HighPrice) > 0 {
		existing.HighPrice = new(big.Int).Set(d.Price)
	}
	if d.Price.Cmp(existing.LowPrice) < 0 {
		existing.LowPrice = new(big.Int).Set(d.Price)
	}
	existing.LastPrice = new(big.Int).Set(d.Price)
	existing.DailyVolume = new(big.Int).Add(existing.DailyVolume, d.Value)
	existing.TotalTrades++
	existing.TotalMatches++
	return existing
}

// Service serves token statistics reads with a short-lived cache in front
// of the store.
type Service struct {
	store store.Store
	cache *cache.Cache
}

func NewService(s store.Store) *Service {
	return &Service{
		store: s,
		cache: cache.New(30*time.Second, time.Minute),
	}
}

// TokenStats returns the daily rows for a token over the trailing number
// of days (at least today's row window).
func (s *Service) TokenStats(ctx context.Context, ftAddress, poolID string, days int) ([]models.TradeStatistics, error) {
	if days <= 0 {
		days = 1
	}
	key := fmt.Sprintf("%s|%s|%d", models.NormalizeAddress(ftAddress), poolID, days)
	if v, ok := s.cache.Get(key); ok {
		return v.([]models.TradeStatistics), nil
	}

	since := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -(days - 1))
	rows, err := s.store.ListStats(ctx, models.NormalizeAddress(ftAddress), poolID, since)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, rows)
	return rows, nil
}

// Invalidate drops cached reads for a token after a settlement lands.
func (s *Service) Invalidate(ftAddress string) {
	prefix := models.NormalizeAddress(ftAddress) + "|"
	for key := range s.cache.Items() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			s.cache.Delete(key)
		}
	}
}
