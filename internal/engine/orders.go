package engine

import (
	"context"
	"math/big"

	"github.com/gamefrax/marketplace/internal/errs"
	"github.com/gamefrax/marketplace/internal/models"
	"github.com/gamefrax/marketplace/internal/monitor"
	"github.com/gamefrax/marketplace/internal/store"
	"github.com/gamefrax/marketplace/internal/validation"
)

// CreateOrder validates and verifies a signed order, then stores it OPEN
// with a CREATED audit row. Rejection is wholesale: no partial order is
// ever stored.
func (e *Engine) CreateOrder(ctx context.Context, o *models.Order) (*models.Order, error) {
	o.UserAddress = models.NormalizeAddress(o.UserAddress)

	if rules := validation.ValidateOrder(o, e.now()); len(rules) > 0 {
		return nil, errs.Validation(rules)
	}

	ok, err := e.verifier.Verify(o, o.Signature)
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalDependency, err, "signature verification unavailable")
	}
	if !ok {
		return nil, errs.New(errs.KindUnauthorized, "order signature does not verify for %s", o.UserAddress)
	}

	o.Status = models.OrderOpen
	o.FilledAmount = new(big.Int)
	o.CreatedAt = e.now()

	err = e.store.Transact(ctx, func(tx store.Tx) error {
		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, &models.OrderHistory{
			OrderID:   o.OrderID,
			Action:    models.ActionCreated,
			Amount:    new(big.Int).Set(o.Amount),
			Details:   "order created at price " + o.PricePerToken.String(),
			CreatedAt: e.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	monitor.IncOrdersCreated()
	e.log.Info().
		Str("order_id", o.OrderID).
		Str("side", string(o.Side)).
		Str("user", o.UserAddress).
		Msg("order created")
	return o, nil
}

// CancelOrder cancels an order owned by requester and cascades the
// cancellation to every match referencing it that is still awaiting
// execution. FilledAmount is left untouched; only the unfilled remainder
// is withdrawn.
func (e *Engine) CancelOrder(ctx context.Context, orderID, requester string) (*models.Order, error) {
	requester = models.NormalizeAddress(requester)

	var cancelled *models.Order
	err := e.transactRetry(ctx, func(tx store.Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserAddress != requester {
			return errs.New(errs.KindUnauthorized, "order %s is not owned by %s", orderID, requester)
		}
		switch o.Status {
		case models.OrderOpen, models.OrderPartiallyFilled:
		default:
			return errs.New(errs.KindConflict, "order %s is %s and cannot be cancelled", orderID, o.Status)
		}

		if err := tx.UpdateOrderStatus(ctx, orderID, models.OrderCancelled); err != nil {
			return err
		}
		o.Status = models.OrderCancelled

		// Matches still awaiting execution die with the order so that
		// settlement preparation against them fails predictably.
		pending, err := tx.ListPendingMatchesByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for i := range pending {
			pending[i].Status = models.MatchCancelled
			if err := tx.UpdateMatch(ctx, &pending[i]); err != nil {
				return err
			}
		}

		if err := tx.AppendHistory(ctx, &models.OrderHistory{
			OrderID:   orderID,
			Action:    models.ActionCancelled,
			Amount:    new(big.Int).Set(o.FilledAmount),
			Details:   "cancelled with filled amount " + o.FilledAmount.String(),
			CreatedAt: e.now(),
		}); err != nil {
			return err
		}

		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitor.IncOrdersCancelled()
	e.log.Info().Str("order_id", orderID).Msg("order cancelled")
	return cancelled, nil
}

// GetOrder returns a single order.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return e.store.GetOrder(ctx, orderID)
}

// ListOrders returns orders matching the filter.
func (e *Engine) ListOrders(ctx context.Context, f store.OrderFilter) ([]models.Order, error) {
	f.UserAddress = models.NormalizeAddress(f.UserAddress)
	return e.store.ListOrders(ctx, f)
}

// OrderHistory returns the audit trail of one order, oldest first.
func (e *Engine) OrderHistory(ctx context.Context, orderID string) ([]models.OrderHistory, error) {
	return e.store.ListHistory(ctx, orderID)
}
