package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamefrax/marketplace/internal/errs"
	"github.com/gamefrax/marketplace/internal/models"
	"github.com/gamefrax/marketplace/internal/settlement"
	"github.com/gamefrax/marketplace/internal/store"
	"github.com/gamefrax/marketplace/internal/store/storetest"
)

const (
	buyer  = "0xb000000000000000000000000000000000000001"
	seller = "0x5000000000000000000000000000000000000002"
	token  = "0xf000000000000000000000000000000000000003"
	pool   = "pool-1"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// acceptAll verifies every signature; rejectAll verifies none.
type acceptAll struct{}

func (acceptAll) Verify(*models.Order, string) (bool, error) { return true, nil }

type rejectAll struct{}

func (rejectAll) Verify(*models.Order, string) (bool, error) { return false, nil }

type failingVerifier struct{}

func (failingVerifier) Verify(*models.Order, string) (bool, error) {
	return false, errors.New("verifier offline")
}

type capturePublisher struct {
	mu       sync.Mutex
	payloads []SettlementPayload
	err      error
}

func (p *capturePublisher) PublishSettlementInstruction(payload SettlementPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.payloads = append(p.payloads, payload)
	return nil
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), settlement.Scale)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *storetest.Store) {
	t.Helper()
	st := storetest.New()
	st.SetClock(func() time.Time { return testTime })
	opts = append([]Option{WithClock(func() time.Time { return testTime })}, opts...)
	e := New(st, acceptAll{}, 0.001, zerolog.Nop(), opts...)
	return e, st
}

func testOrder(id, user string, side models.Side, amount, price int64) *models.Order {
	return &models.Order{
		OrderID:       id,
		UserAddress:   user,
		ChainID:       1,
		Side:          side,
		PoolID:        pool,
		FTAddress:     token,
		Amount:        tokens(amount),
		PricePerToken: tokens(price),
		FilledAmount:  new(big.Int),
		Nonce:         1,
		Signature:     "0xsig",
		Status:        models.OrderOpen,
		ExpiresAt:     testTime.Add(24 * time.Hour),
	}
}

func mustCreate(t *testing.T, e *Engine, o *models.Order) {
	t.Helper()
	_, err := e.CreateOrder(context.Background(), o)
	require.NoError(t, err)
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		e, st := newTestEngine(t)
		o := testOrder("o-1", buyer, models.SideBuy, 100, 10)

		created, err := e.CreateOrder(ctx, o)
		require.NoError(t, err)
		assert.Equal(t, models.OrderOpen, created.Status)
		assert.Equal(t, "0", created.FilledAmount.String())

		stored, err := st.GetOrder(ctx, "o-1")
		require.NoError(t, err)
		assert.Equal(t, models.OrderOpen, stored.Status)

		history, err := st.ListHistory(ctx, "o-1")
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, models.ActionCreated, history[0].Action)
	})

	t.Run("normalizes user address", func(t *testing.T) {
		e, _ := newTestEngine(t)
		o := testOrder("o-1", "0xB000000000000000000000000000000000000001", models.SideBuy, 100, 10)

		created, err := e.CreateOrder(ctx, o)
		require.NoError(t, err)
		assert.Equal(t, buyer, created.UserAddress)
	})

	t.Run("reports every violated rule", func(t *testing.T) {
		e, _ := newTestEngine(t)
		o := &models.Order{
			OrderID:       "",
			Side:          "SIDEWAYS",
			Amount:        new(big.Int),
			PricePerToken: big.NewInt(-1),
			ExpiresAt:     testTime.Add(-time.Hour),
		}

		_, err := e.CreateOrder(ctx, o)
		require.Error(t, err)
		assert.Equal(t, errs.KindValidationFailed, errs.KindOf(err))
		assert.GreaterOrEqual(t, len(errs.RulesOf(err)), 5)
	})

	t.Run("rejected signature stores nothing", func(t *testing.T) {
		st := storetest.New()
		e := New(st, rejectAll{}, 0.001, zerolog.Nop(), WithClock(func() time.Time { return testTime }))

		_, err := e.CreateOrder(ctx, testOrder("o-1", buyer, models.SideBuy, 100, 10))
		require.Error(t, err)
		assert.True(t, errs.IsUnauthorized(err))

		_, err = st.GetOrder(ctx, "o-1")
		assert.True(t, errs.IsNotFound(err))
	})

	t.Run("verifier failure maps to external dependency", func(t *testing.T) {
		st := storetest.New()
		e := New(st, failingVerifier{}, 0.001, zerolog.Nop(), WithClock(func() time.Time { return testTime }))

		_, err := e.CreateOrder(ctx, testOrder("o-1", buyer, models.SideBuy, 100, 10))
		require.Error(t, err)
		assert.Equal(t, errs.KindExternalDependency, errs.KindOf(err))
	})

	t.Run("duplicate order id conflicts", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustCreate(t, e, testOrder("o-1", buyer, models.SideBuy, 100, 10))

		_, err := e.CreateOrder(ctx, testOrder("o-1", seller, models.SideSell, 50, 8))
		require.Error(t, err)
		assert.True(t, errs.IsConflict(err))
	})
}

func TestMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("partial fill of the buy side", func(t *testing.T) {
		e, st := newTestEngine(t)
		mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 10))
		mustCreate(t, e, testOrder("sell-1", seller, models.SideSell, 60, 8))

		res, err := e.Match(ctx, "buy-1", "sell-1", tokens(60))
		require.NoError(t, err)

		// Seller-favor pricing: settles at the ask.
		assert.Equal(t, tokens(8).String(), res.Match.MatchedPrice.String())
		assert.Equal(t, tokens(60).String(), res.Match.MatchedAmount.String())
		assert.Equal(t, models.MatchPendingExecution, res.Match.Status)

		buy, err := st.GetOrder(ctx, "buy-1")
		require.NoError(t, err)
		assert.Equal(t, models.OrderPartiallyFilled, buy.Status)
		assert.Equal(t, tokens(60).String(), buy.FilledAmount.String())

		sell, err := st.GetOrder(ctx, "sell-1")
		require.NoError(t, err)
		assert.Equal(t, models.OrderFilled, sell.Status)
		assert.Equal(t, tokens(60).String(), sell.FilledAmount.String())

		// 60 tokens at price 8 is a value of 480; fee is 0.1% of that.
		wantFee := new(big.Int).Quo(tokens(480), big.NewInt(1000))
		assert.Equal(t, wantFee.String(), res.Match.GasFeeAmount.String())

		history, err := st.ListHistory(ctx, "buy-1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, models.ActionPartiallyFilled, history[1].Action)
	})

	t.Run("filled order has no availability left", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 10))
		mustCreate(t, e, testOrder("sell-1", seller, models.SideSell, 60, 8))

		_, err := e.Match(ctx, "buy-1", "sell-1", tokens(60))
		require.NoError(t, err)

		_, err = e.Match(ctx, "buy-1", "sell-1", tokens(1))
		require.Error(t, err)
		assert.Equal(t, errs.KindValidationFailed, errs.KindOf(err))
	})

	t.Run("amount exceeding availability fails without clamping", func(t *testing.T) {
		e, st := newTestEngine(t)
		mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 10))
		mustCreate(t, e, testOrder("sell-1", seller, models.SideSell, 60, 8))

		_, err := e.Match(ctx, "buy-1", "sell-1", tokens(61))
		require.Error(t, err)
		assert.Equal(t, errs.KindValidationFailed, errs.KindOf(err))

		// Nothing moved.
		sell, err := st.GetOrder(ctx, "sell-1")
		require.NoError(t, err)
		assert.Equal(t, "0", sell.FilledAmount.String())
		assert.Equal(t, models.OrderOpen, sell.Status)
	})

	t.Run("self trade rejected", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 10))
		mustCreate(t, e, testOrder("sell-1", buyer, models.SideSell, 60, 8))

		_, err := e.Match(ctx, "buy-1", "sell-1", tokens(10))
		require.Error(t, err)
		assert.Contains(t, errs.RulesOf(err), "self-trading is not allowed")
	})

	t.Run("uncrossed prices rejected", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 7))
		mustCreate(t, e, testOrder("sell-1", seller, models.SideSell, 60, 8))

		_, err := e.Match(ctx, "buy-1", "sell-1", tokens(10))
		require.Error(t, err)
		assert.Contains(t, errs.RulesOf(err), "buy price is below sell price")
	})

	t.Run("expired order rejected", func(t *testing.T) {
		e, _ := newTestEngine(t)
		buy := testOrder("buy-1", buyer, models.SideBuy, 100, 10)
		mustCreate(t, e, buy)
		sell := testOrder("sell-1", seller, models.SideSell, 60, 8)
		mustCreate(t, e, sell)

		// Push the clock past both orders' expiry.
		e.now = func() time.Time { return buy.ExpiresAt.Add(time.Minute) }

		_, err := e.Match(ctx, "buy-1", "sell-1", tokens(10))
		require.Error(t, err)
		assert.Equal(t, errs.KindValidationFailed, errs.KindOf(err))
	})

	t.Run("missing order is not found", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 10))

		_, err := e.Match(ctx, "buy-1", "sell-missing", tokens(10))
		assert.True(t, errs.IsNotFound(err))
	})

	t.Run("invalid amount rejected before any store access", func(t *testing.T) {
		e, _ := newTestEngine(t)
		_, err := e.Match(ctx, "buy-1", "sell-1", big.NewInt(0))
		assert.Equal(t, errs.KindInvalidInput, errs.KindOf(err))

		_, err = e.Match(ctx, "buy-1", "sell-1", nil)
		assert.Equal(t, errs.KindInvalidInput, errs.KindOf(err))
	})

	t.Run("midpoint policy", func(t *testing.T) {
		e, _ := newTestEngine(t, WithPricePolicy(settlement.Midpoint))
		mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 10))
		mustCreate(t, e, testOrder("sell-1", seller, models.SideSell, 60, 8))

		res, err := e.Match(ctx, "buy-1", "sell-1", tokens(10))
		require.NoError(t, err)
		assert.Equal(t, tokens(9).String(), res.Match.MatchedPrice.String())
	})
}

func TestMatchConcurrent(t *testing.T) {
	// One buy order for 100 tokens against ten sellers of 20 tokens each.
	// Only five sells fit; the rest must fail validation and leave no
	// partial writes behind.
	ctx := context.Background()
	e, st := newTestEngine(t)
	mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 10))

	const sellers = 10
	sellIDs := make([]string, sellers)
	for i := 0; i < sellers; i++ {
		id := "sell-" + string(rune('a'+i))
		addr := models.NormalizeAddress("0x" + string(rune('a'+i)) + "00000000000000000000000000000000000000f")
		mustCreate(t, e, testOrder(id, addr, models.SideSell, 20, 8))
		sellIDs[i] = id
	}

	var wg sync.WaitGroup
	results := make([]error, sellers)
	for i := 0; i < sellers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.Match(ctx, "buy-1", sellIDs[i], tokens(20))
			results[i] = err
		}(i)
	}
	wg.Wait()

	var ok, failed int
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		failed++
		assert.Equal(t, errs.KindValidationFailed, errs.KindOf(err))
	}
	assert.Equal(t, 5, ok)
	assert.Equal(t, 5, failed)

	buy, err := st.GetOrder(ctx, "buy-1")
	require.NoError(t, err)
	assert.Equal(t, tokens(100).String(), buy.FilledAmount.String())
	assert.Equal(t, models.OrderFilled, buy.Status)
	assert.LessOrEqual(t, buy.FilledAmount.Cmp(buy.Amount), 0)
}

func TestPreviewMatch(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t)
	mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 10))
	mustCreate(t, e, testOrder("sell-1", seller, models.SideSell, 60, 8))

	p, err := e.PreviewMatch(ctx, "buy-1", "sell-1", tokens(60))
	require.NoError(t, err)
	assert.Equal(t, tokens(60).String(), p.MatchedAmount.String())
	assert.Equal(t, tokens(8).String(), p.SettlementPrice.String())
	assert.Equal(t, tokens(480).String(), p.TotalCost.String())
	// Bid value 600, settled value 480.
	assert.Equal(t, tokens(120).String(), p.BuyerSavings.String())
	assert.InDelta(t, 0.001, p.FeePercentage, 1e-12)

	// Preview never mutates.
	buy, err := st.GetOrder(ctx, "buy-1")
	require.NoError(t, err)
	assert.Equal(t, "0", buy.FilledAmount.String())
	assert.Equal(t, models.OrderOpen, buy.Status)
	history, err := st.ListHistory(ctx, "buy-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cancels open order", func(t *testing.T) {
		e, st := newTestEngine(t)
		mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 10))

		cancelled, err := e.CancelOrder(ctx, "buy-1", buyer)
		require.NoError(t, err)
		assert.Equal(t, models.OrderCancelled, cancelled.Status)

		history, err := st.ListHistory(ctx, "buy-1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, models.ActionCancelled, history[1].Action)
	})

	t.Run("non-owner is unauthorized", func(t *testing.T) {
		e, st := newTestEngine(t)
		mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 10))

		_, err := e.CancelOrder(ctx, "buy-1", seller)
		assert.True(t, errs.IsUnauthorized(err))

		o, err := st.GetOrder(ctx, "buy-1")
		require.NoError(t, err)
		assert.Equal(t, models.OrderOpen, o.Status)
	})

	t.Run("cascades to pending matches and keeps filled amount", func(t *testing.T) {
		e, st := newTestEngine(t)
		mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 10))
		mustCreate(t, e, testOrder("sell-1", seller, models.SideSell, 60, 8))
		res, err := e.Match(ctx, "buy-1", "sell-1", tokens(60))
		require.NoError(t, err)

		cancelled, err := e.CancelOrder(ctx, "buy-1", buyer)
		require.NoError(t, err)
		assert.Equal(t, models.OrderCancelled, cancelled.Status)
		assert.Equal(t, tokens(60).String(), cancelled.FilledAmount.String())

		m, err := st.GetMatch(ctx, res.Match.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MatchCancelled, m.Status)
	})

	t.Run("settled matches survive cancellation", func(t *testing.T) {
		e, st := newTestEngine(t)
		mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 10))
		mustCreate(t, e, testOrder("sell-1", seller, models.SideSell, 60, 8))
		res, err := e.Match(ctx, "buy-1", "sell-1", tokens(60))
		require.NoError(t, err)
		_, err = e.ConfirmSettlement(ctx, res.Match.ID, "0xabc")
		require.NoError(t, err)

		_, err = e.CancelOrder(ctx, "buy-1", buyer)
		require.NoError(t, err)

		m, err := st.GetMatch(ctx, res.Match.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MatchSettled, m.Status)
	})

	t.Run("filled order cannot be cancelled", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 60, 10))
		mustCreate(t, e, testOrder("sell-1", seller, models.SideSell, 60, 8))
		_, err := e.Match(ctx, "buy-1", "sell-1", tokens(60))
		require.NoError(t, err)

		_, err = e.CancelOrder(ctx, "buy-1", buyer)
		assert.True(t, errs.IsConflict(err))
	})
}

func TestPrepareSettlement(t *testing.T) {
	ctx := context.Background()

	t.Run("builds the payload and publishes it", func(t *testing.T) {
		pub := &capturePublisher{}
		e, _ := newTestEngine(t, WithPublisher(pub))
		mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 10))
		mustCreate(t, e, testOrder("sell-1", seller, models.SideSell, 60, 8))
		res, err := e.Match(ctx, "buy-1", "sell-1", tokens(60))
		require.NoError(t, err)

		payload, err := e.PrepareSettlement(ctx, res.Match.ID)
		require.NoError(t, err)
		assert.Equal(t, res.Match.ID, payload.MatchID)
		assert.Equal(t, buyer, payload.BuyerAddress)
		assert.Equal(t, seller, payload.SellerAddress)
		assert.Equal(t, token, payload.FTAddress)
		assert.Equal(t, tokens(60).String(), payload.MatchedAmount)
		assert.Equal(t, tokens(8).String(), payload.MatchedPrice)
		assert.Equal(t, int64(1), payload.ChainID)

		require.Len(t, pub.payloads, 1)
		assert.Equal(t, *payload, pub.payloads[0])
	})

	t.Run("cancelled match conflicts", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 10))
		mustCreate(t, e, testOrder("sell-1", seller, models.SideSell, 60, 8))
		res, err := e.Match(ctx, "buy-1", "sell-1", tokens(60))
		require.NoError(t, err)
		_, err = e.CancelOrder(ctx, "buy-1", buyer)
		require.NoError(t, err)

		_, err = e.PrepareSettlement(ctx, res.Match.ID)
		assert.True(t, errs.IsConflict(err))
	})

	t.Run("publisher failure is an external dependency error", func(t *testing.T) {
		pub := &capturePublisher{err: errors.New("nats down")}
		e, _ := newTestEngine(t, WithPublisher(pub))
		mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 10))
		mustCreate(t, e, testOrder("sell-1", seller, models.SideSell, 60, 8))
		res, err := e.Match(ctx, "buy-1", "sell-1", tokens(60))
		require.NoError(t, err)

		_, err = e.PrepareSettlement(ctx, res.Match.ID)
		assert.Equal(t, errs.KindExternalDependency, errs.KindOf(err))
	})
}

func TestConfirmSettlement(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Engine, *storetest.Store, string) {
		e, st := newTestEngine(t)
		mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 10))
		mustCreate(t, e, testOrder("sell-1", seller, models.SideSell, 60, 8))
		res, err := e.Match(ctx, "buy-1", "sell-1", tokens(60))
		require.NoError(t, err)
		return e, st, res.Match.ID
	}

	t.Run("records hash and rolls statistics", func(t *testing.T) {
		e, st, matchID := setup(t)

		m, err := e.ConfirmSettlement(ctx, matchID, "0xabc")
		require.NoError(t, err)
		assert.Equal(t, models.MatchSettled, m.Status)
		assert.Equal(t, "0xabc", m.TxHash)
		require.NotNil(t, m.SettledAt)

		day := testTime.UTC().Truncate(24 * time.Hour)
		row, err := st.GetDailyStats(ctx, token, pool, day)
		require.NoError(t, err)
		assert.Equal(t, tokens(8).String(), row.LastPrice.String())
		assert.Equal(t, tokens(480).String(), row.DailyVolume.String())
		assert.Equal(t, int64(1), row.TotalMatches)

		history, err := st.ListHistory(ctx, "buy-1")
		require.NoError(t, err)
		assert.Equal(t, models.ActionSettledOnchain, history[len(history)-1].Action)
	})

	t.Run("same hash is idempotent", func(t *testing.T) {
		e, st, matchID := setup(t)
		_, err := e.ConfirmSettlement(ctx, matchID, "0xabc")
		require.NoError(t, err)

		m, err := e.ConfirmSettlement(ctx, matchID, "0xabc")
		require.NoError(t, err)
		assert.Equal(t, "0xabc", m.TxHash)

		// No double-counted statistics.
		day := testTime.UTC().Truncate(24 * time.Hour)
		row, err := st.GetDailyStats(ctx, token, pool, day)
		require.NoError(t, err)
		assert.Equal(t, int64(1), row.TotalMatches)
	})

	t.Run("different hash is rejected, first write wins", func(t *testing.T) {
		e, st, matchID := setup(t)
		_, err := e.ConfirmSettlement(ctx, matchID, "0xabc")
		require.NoError(t, err)

		_, err = e.ConfirmSettlement(ctx, matchID, "0xdef")
		assert.True(t, errs.IsConflict(err))

		m, err := st.GetMatch(ctx, matchID)
		require.NoError(t, err)
		assert.Equal(t, "0xabc", m.TxHash)
	})

	t.Run("empty hash rejected", func(t *testing.T) {
		e, _, matchID := setup(t)
		_, err := e.ConfirmSettlement(ctx, matchID, "")
		assert.Equal(t, errs.KindInvalidInput, errs.KindOf(err))
	})

	t.Run("cancelled match conflicts", func(t *testing.T) {
		e, _, matchID := setup(t)
		_, err := e.CancelOrder(ctx, "buy-1", buyer)
		require.NoError(t, err)

		_, err = e.ConfirmSettlement(ctx, matchID, "0xabc")
		assert.True(t, errs.IsConflict(err))
	})

	t.Run("unknown match is not found", func(t *testing.T) {
		e, _ := newTestEngine(t)
		_, err := e.ConfirmSettlement(ctx, "nope", "0xabc")
		assert.True(t, errs.IsNotFound(err))
	})
}

func TestListOrdersFilter(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 10))
	mustCreate(t, e, testOrder("sell-1", seller, models.SideSell, 60, 8))

	buys, err := e.ListOrders(ctx, store.OrderFilter{Side: models.SideBuy})
	require.NoError(t, err)
	require.Len(t, buys, 1)
	assert.Equal(t, "buy-1", buys[0].OrderID)

	mine, err := e.ListOrders(ctx, store.OrderFilter{UserAddress: "0x5000000000000000000000000000000000000002"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "sell-1", mine[0].OrderID)
}

func TestListOrdersExpiry(t *testing.T) {
	// Expiry filtering follows the injected clock, not the wall clock, so
	// fixtures stay visible no matter when the suite runs.
	ctx := context.Background()
	e, st := newTestEngine(t)
	mustCreate(t, e, testOrder("buy-1", buyer, models.SideBuy, 100, 10))

	orders, err := e.ListOrders(ctx, store.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	// Past the order's expiry the OPEN row disappears from reads without
	// any status write.
	st.SetClock(func() time.Time { return testTime.Add(48 * time.Hour) })
	orders, err = e.ListOrders(ctx, store.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)

	stored, err := st.GetOrder(ctx, "buy-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderOpen, stored.Status)
}
