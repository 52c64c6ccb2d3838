package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/gamefrax/marketplace/internal/errs"
	"github.com/gamefrax/marketplace/internal/models"
	"github.com/gamefrax/marketplace/internal/store"
)

// Tx implements store.Tx on an open pgx transaction.
type Tx struct {
	q pgx.Tx
}

func (t *Tx) CreateOrder(ctx context.Context, o *models.Order) error {
	return createOrder(ctx, t.q, o)
}

// GetOrderForUpdate reads an order under a row-level lock held until the
// transaction commits.
func (t *Tx) GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	return getOrder(ctx, t.q, orderID, true)
}

// UpdateOrderFill persists an order's filled amount and status. The
// check constraint on filled_amount backs the engine's invariant at the
// storage layer as well.
func (t *Tx) UpdateOrderFill(ctx context.Context, o *models.Order) error {
	tag, err := t.q.Exec(ctx,
		"UPDATE orders SET filled_amount = $1, status = $2 WHERE order_id = $3",
		o.FilledAmount.String(), string(o.Status), o.OrderID)
	if err != nil {
		return translate(err, "failed to update order fill")
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "order %s not found", o.OrderID)
	}
	return nil
}

func (t *Tx) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) error {
	tag, err := t.q.Exec(ctx,
		"UPDATE orders SET status = $1 WHERE order_id = $2",
		string(status), orderID)
	if err != nil {
		return translate(err, "failed to update order status")
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "order %s not found", orderID)
	}
	return nil
}

func (t *Tx) CreateMatch(ctx context.Context, m *models.Match) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO matches (id, buy_order_id, sell_order_id, pool_id, ft_address,
			matched_amount, matched_price, gas_fee_percentage, gas_fee_amount,
			status, tx_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		m.ID, m.BuyOrderID, m.SellOrderID, m.PoolID, m.FTAddress,
		m.MatchedAmount.String(), m.MatchedPrice.String(), m.GasFeePercentage, m.GasFeeAmount.String(),
		string(m.Status), m.TxHash, m.CreatedAt)
	return translate(err, "failed to create match")
}

func (t *Tx) GetMatchForUpdate(ctx context.Context, id string) (*models.Match, error) {
	return getMatch(ctx, t.q, id, true)
}

func (t *Tx) UpdateMatch(ctx context.Context, m *models.Match) error {
	tag, err := t.q.Exec(ctx,
		"UPDATE matches SET status = $1, tx_hash = $2, settled_at = $3 WHERE id = $4",
		string(m.Status), m.TxHash, m.SettledAt, m.ID)
	if err != nil {
		return translate(err, "failed to update match")
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "match %s not found", m.ID)
	}
	return nil
}

// ListPendingMatchesByOrder locks and returns every PENDING_EXECUTION
// match referencing the order, for the cancellation cascade.
func (t *Tx) ListPendingMatchesByOrder(ctx context.Context, orderID string) ([]models.Match, error) {
	return listMatches(ctx, t.q,
		"SELECT "+matchColumns+" FROM matches WHERE (buy_order_id = $1 OR sell_order_id = $1) AND status = 'PENDING_EXECUTION' FOR UPDATE",
		orderID)
}

func (t *Tx) AppendHistory(ctx context.Context, h *models.OrderHistory) error {
	_, err := t.q.Exec(ctx,
		"INSERT INTO order_history (order_id, action, amount, details, created_at) VALUES ($1, $2, $3, $4, $5)",
		h.OrderID, string(h.Action), h.Amount.String(), h.Details, h.CreatedAt)
	return translate(err, "failed to append order history")
}

// UpsertDailyStats merges one settled match into the day row in SQL, so
// concurrent settlements accumulate instead of overwriting each other.
// The merge mirrors stats.Apply.
func (t *Tx) UpsertDailyStats(ctx context.Context, d store.StatsDelta) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO trade_statistics (ft_address, pool_id, date,
			high_price, low_price, last_price, daily_volume, total_trades, total_matches)
		VALUES ($1, $2, $3, $4, $4, $4, $5, 1, 1)
		ON CONFLICT (ft_address, pool_id, date) DO UPDATE SET
			high_price    = GREATEST(trade_statistics.high_price, EXCLUDED.high_price),
			low_price     = LEAST(trade_statistics.low_price, EXCLUDED.low_price),
			last_price    = EXCLUDED.last_price,
			daily_volume  = trade_statistics.daily_volume + EXCLUDED.daily_volume,
			total_trades  = trade_statistics.total_trades + 1,
			total_matches = trade_statistics.total_matches + 1`,
		d.FTAddress, d.PoolID, d.Date, d.Price.String(), d.Value.String())
	return translate(err, "failed to upsert daily statistics")
}
