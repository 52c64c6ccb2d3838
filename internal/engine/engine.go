// Package engine is the off-chain matching engine: it validates pairings,
// derives settlement prices and fees, and mutates fill state atomically
// through the store. It owns every order and match state transition.
package engine

import (
	"context"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gamefrax/marketplace/internal/errs"
	"github.com/gamefrax/marketplace/internal/models"
	"github.com/gamefrax/marketplace/internal/monitor"
	"github.com/gamefrax/marketplace/internal/settlement"
	"github.com/gamefrax/marketplace/internal/store"
	"github.com/gamefrax/marketplace/internal/validation"
)

// maxRetries bounds the optimistic retry of transactions that lose a
// concurrency race before Conflict is surfaced to the caller.
const maxRetries = 3

// Verifier is the external typed-data signature capability. Verification
// failures are terminal, never retried.
type Verifier interface {
	Verify(o *models.Order, signature string) (bool, error)
}

// InstructionPublisher receives settlement instructions for the on-chain
// execution layer.
type InstructionPublisher interface {
	PublishSettlementInstruction(p SettlementPayload) error
}

// Engine orchestrates matching and settlement preparation. It is safe for
// concurrent use; all shared state lives behind the store.
type Engine struct {
	store     store.Store
	verifier  Verifier
	publisher InstructionPublisher // optional
	feePct    float64
	policy    settlement.PricePolicy
	log       zerolog.Logger
	now       func() time.Time
}

type Option func(*Engine)

// WithPublisher attaches a settlement-instruction publisher.
func WithPublisher(p InstructionPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithPricePolicy overrides the default seller-favor settlement pricing.
func WithPricePolicy(p settlement.PricePolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithClock overrides wall-clock time, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(s store.Store, verifier Verifier, feePercentage float64, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		verifier: verifier,
		feePct:   feePercentage,
		policy:   settlement.FavorSeller,
		log:      log.With().Str("component", "engine").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MatchResult is a committed match plus both orders as updated.
type MatchResult struct {
	Match *models.Match
	Buy   *models.Order
	Sell  *models.Order
}

// Preview carries the economics of a would-be match without any state
// change.
type Preview struct {
	MatchedAmount   *big.Int
	SettlementPrice *big.Int
	GasFee          *big.Int
	TotalCost       *big.Int
	BuyerSavings    *big.Int
	FeePercentage   float64
}

// Match pairs two orders for matchAmount. Validation, price computation,
// both fill updates, the match row and the audit rows commit in one store
// transaction; a failed call leaves both orders untouched.
func (e *Engine) Match(ctx context.Context, buyOrderID, sellOrderID string, matchAmount *big.Int) (*MatchResult, error) {
	if buyOrderID == "" || sellOrderID == "" {
		return nil, errs.New(errs.KindInvalidInput, "buy and sell order ids are required")
	}
	if matchAmount == nil || matchAmount.Sign() <= 0 {
		return nil, errs.New(errs.KindInvalidInput, "matchAmount must be a positive integer")
	}

	started := time.Now()
	defer func() { monitor.ObserveMatchDuration(time.Since(started).Seconds()) }()

	var result *MatchResult
	err := e.transactRetry(ctx, func(tx store.Tx) error {
		buy, sell, err := e.lockPair(ctx, tx, buyOrderID, sellOrderID)
		if err != nil {
			return err
		}

		now := e.now()
		if rules := validation.ValidateMatch(buy, sell, matchAmount, now); len(rules) > 0 {
			return errs.Validation(rules)
		}

		price := settlement.Price(buy.PricePerToken, sell.PricePerToken, e.policy)
		fee := settlement.GasFee(matchAmount, price, e.feePct)

		match := &models.Match{
			ID:               uuid.NewString(),
			BuyOrderID:       buy.OrderID,
			SellOrderID:      sell.OrderID,
			PoolID:           buy.PoolID,
			FTAddress:        buy.FTAddress,
			MatchedAmount:    new(big.Int).Set(matchAmount),
			MatchedPrice:     price,
			GasFeePercentage: e.feePct,
			GasFeeAmount:     fee,
			Status:           models.MatchPendingExecution,
			CreatedAt:        now,
		}

		if err := e.fill(ctx, tx, buy, matchAmount, match.ID); err != nil {
			return err
		}
		if err := e.fill(ctx, tx, sell, matchAmount, match.ID); err != nil {
			return err
		}
		if err := tx.CreateMatch(ctx, match); err != nil {
			return err
		}

		result = &MatchResult{Match: match, Buy: buy, Sell: sell}
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitor.IncMatchesCommitted()
	e.log.Info().
		Str("match_id", result.Match.ID).
		Str("buy_order", buyOrderID).
		Str("sell_order", sellOrderID).
		Str("amount", matchAmount.String()).
		Str("price", result.Match.MatchedPrice.String()).
		Msg("match committed")
	return result, nil
}

// PreviewMatch computes the economics of a match without mutating any
// state: no fill updates, no match row, no history.
func (e *Engine) PreviewMatch(ctx context.Context, buyOrderID, sellOrderID string, matchAmount *big.Int) (*Preview, error) {
	if matchAmount == nil || matchAmount.Sign() <= 0 {
		return nil, errs.New(errs.KindInvalidInput, "matchAmount must be a positive integer")
	}

	buy, err := e.store.GetOrder(ctx, buyOrderID)
	if err != nil {
		return nil, err
	}
	sell, err := e.store.GetOrder(ctx, sellOrderID)
	if err != nil {
		return nil, err
	}

	if rules := validation.ValidateMatch(buy, sell, matchAmount, e.now()); len(rules) > 0 {
		return nil, errs.Validation(rules)
	}

	price := settlement.Price(buy.PricePerToken, sell.PricePerToken, e.policy)
	return &Preview{
		MatchedAmount:   new(big.Int).Set(matchAmount),
		SettlementPrice: price,
		GasFee:          settlement.GasFee(matchAmount, price, e.feePct),
		TotalCost:       settlement.TotalValue(matchAmount, price),
		BuyerSavings:    settlement.BuyerSavings(matchAmount, buy.PricePerToken, price),
		FeePercentage:   e.feePct,
	}, nil
}

// lockPair locks both order rows in ascending order-id order so two
// concurrent matches touching the same pair cannot deadlock.
func (e *Engine) lockPair(ctx context.Context, tx store.Tx, buyOrderID, sellOrderID string) (buy, sell *models.Order, err error) {
	first, second := buyOrderID, sellOrderID
	if second < first {
		first, second = second, first
	}
	locked := make(map[string]*models.Order, 2)
	for _, id := range []string{first, second} {
		o, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		locked[id] = o
	}
	return locked[buyOrderID], locked[sellOrderID], nil
}

// fill applies matchAmount to one order, recomputes its status and writes
// the audit row.
func (e *Engine) fill(ctx context.Context, tx store.Tx, o *models.Order, matchAmount *big.Int, matchID string) error {
	o.FilledAmount = new(big.Int).Add(o.FilledAmount, matchAmount)
	if o.FilledAmount.Cmp(o.Amount) == 0 {
		o.Status = models.OrderFilled
	} else {
		o.Status = models.OrderPartiallyFilled
	}
	if err := tx.UpdateOrderFill(ctx, o); err != nil {
		return err
	}
	return tx.AppendHistory(ctx, &models.OrderHistory{
		OrderID:   o.OrderID,
		Action:    models.ActionPartiallyFilled,
		Amount:    new(big.Int).Set(matchAmount),
		Details:   "filled " + o.FilledAmount.String() + "/" + o.Amount.String() + " by match " + matchID,
		CreatedAt: e.now(),
	})
}

// transactRetry retries transactions that lost a concurrency race a
// bounded number of times, then surfaces the Conflict.
func (e *Engine) transactRetry(ctx context.Context, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = e.store.Transact(ctx, fn)
		if err == nil || !errs.IsRetryable(err) {
			return err
		}
		monitor.IncMatchConflicts()
		e.log.Warn().Err(err).Int("attempt", attempt).Msg("transaction conflict, retrying")
	}
	return err
}
