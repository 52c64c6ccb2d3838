// Package db implements the store interfaces on PostgreSQL via pgx.
// Fill-state mutation runs inside explicit transactions with row-level
// locks (SELECT ... FOR UPDATE); serialization failures and deadlocks are
// translated to retryable conflicts for the engine's bounded retry.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gamefrax/marketplace/internal/errs"
	"github.com/gamefrax/marketplace/internal/models"
	"github.com/gamefrax/marketplace/internal/store"
)

// DB wraps a PostgreSQL connection pool and implements store.Store.
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// querier is the query surface shared by the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// translate maps driver errors onto the service error taxonomy.
func translate(err error, msg string) error {
	if err == nil {
		return nil
	}
	var appErr *errs.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.KindNotFound, err, "%s", msg)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization failure, deadlock detected
			return errs.RetryableConflict(err, "%s", msg)
		case "23505": // unique violation
			return errs.Wrap(errs.KindConflict, err, "%s", msg)
		}
	}
	return errs.Wrap(errs.KindExternalDependency, err, "%s", msg)
}

// Transact runs fn inside a single transaction, rolling back on error.
func (db *DB) Transact(ctx context.Context, fn func(tx store.Tx) error) error {
	pgtx, err := db.Pool.Begin(ctx)
	if err != nil {
		return errs.Wrap(errs.KindExternalDependency, err, "failed to begin transaction")
	}
	defer pgtx.Rollback(ctx)

	if err := fn(&Tx{q: pgtx}); err != nil {
		return translate(err, "transaction failed")
	}
	if err := pgtx.Commit(ctx); err != nil {
		return translate(err, "failed to commit transaction")
	}
	return nil
}

const orderColumns = `order_id, user_address, chain_id, side, pool_id, ft_address,
	amount::text, price_per_token::text, filled_amount::text,
	nonce, signature, status, created_at, expires_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	var amount, price, filled, side, status string
	err := row.Scan(&o.OrderID, &o.UserAddress, &o.ChainID, &side, &o.PoolID, &o.FTAddress,
		&amount, &price, &filled, &o.Nonce, &o.Signature, &status, &o.CreatedAt, &o.ExpiresAt)
	if err != nil {
		return nil, err
	}
	o.Side = models.Side(side)
	o.Status = models.OrderStatus(status)
	if o.Amount, err = models.ParseAmount(amount); err != nil {
		return nil, err
	}
	if o.PricePerToken, err = models.ParseAmount(price); err != nil {
		return nil, err
	}
	if o.FilledAmount, err = models.ParseAmount(filled); err != nil {
		return nil, err
	}
	return &o, nil
}

func getOrder(ctx context.Context, q querier, orderID string, forUpdate bool) (*models.Order, error) {
	sql := "SELECT " + orderColumns + " FROM orders WHERE order_id = $1"
	if forUpdate {
		sql += " FOR UPDATE"
	}
	o, err := scanOrder(q.QueryRow(ctx, sql, orderID))
	if err != nil {
		return nil, translate(err, "order "+orderID+" not found")
	}
	return o, nil
}

// GetOrder retrieves an order by its caller-supplied id.
func (db *DB) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return getOrder(ctx, db.Pool, orderID, false)
}

// CreateOrder inserts a new order. A duplicate order_id is a Conflict.
func (db *DB) CreateOrder(ctx context.Context, o *models.Order) error {
	return createOrder(ctx, db.Pool, o)
}

func createOrder(ctx context.Context, q querier, o *models.Order) error {
	_, err := q.Exec(ctx, `
		INSERT INTO orders (order_id, user_address, chain_id, side, pool_id, ft_address,
			amount, price_per_token, filled_amount, nonce, signature, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		o.OrderID, o.UserAddress, o.ChainID, string(o.Side), o.PoolID, o.FTAddress,
		o.Amount.String(), o.PricePerToken.String(), o.FilledAmount.String(),
		o.Nonce, o.Signature, string(o.Status), o.CreatedAt, o.ExpiresAt)
	return translate(err, "failed to create order "+o.OrderID)
}

// ListOrders retrieves orders matching the filter. OPEN orders past their
// expiry are filtered out at read time; nothing writes the EXPIRED status.
func (db *DB) ListOrders(ctx context.Context, f store.OrderFilter) ([]models.Order, error) {
	var (
		conds = []string{"NOT (status = 'OPEN' AND expires_at <= now())"}
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Side != "" {
		add("side = $%d", string(f.Side))
	}
	if f.PoolID != "" {
		add("pool_id = $%d", f.PoolID)
	}
	if f.FTAddress != "" {
		add("ft_address = $%d", f.FTAddress)
	}
	if f.UserAddress != "" {
		add("user_address = $%d", f.UserAddress)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	sql := "SELECT " + orderColumns + " FROM orders WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY created_at DESC"
	if f.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		sql += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, translate(err, "failed to list orders")
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, translate(err, "failed to scan order")
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "failed to list orders")
	}
	return orders, nil
}

const matchColumns = `id, buy_order_id, sell_order_id, pool_id, ft_address,
	matched_amount::text, matched_price::text, gas_fee_percentage, gas_fee_amount::text,
	status, tx_hash, created_at, settled_at`

func scanMatch(row pgx.Row) (*models.Match, error) {
	var m models.Match
	var amount, price, fee, status string
	err := row.Scan(&m.ID, &m.BuyOrderID, &m.SellOrderID, &m.PoolID, &m.FTAddress,
		&amount, &price, &m.GasFeePercentage, &fee, &status, &m.TxHash, &m.CreatedAt, &m.SettledAt)
	if err != nil {
		return nil, err
	}
	m.Status = models.MatchStatus(status)
	if m.MatchedAmount, err = models.ParseAmount(amount); err != nil {
		return nil, err
	}
	if m.MatchedPrice, err = models.ParseAmount(price); err != nil {
		return nil, err
	}
	if m.GasFeeAmount, err = models.ParseAmount(fee); err != nil {
		return nil, err
	}
	return &m, nil
}

func getMatch(ctx context.Context, q querier, id string, forUpdate bool) (*models.Match, error) {
	sql := "SELECT " + matchColumns + " FROM matches WHERE id = $1"
	if forUpdate {
		sql += " FOR UPDATE"
	}
	m, err := scanMatch(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, translate(err, "match "+id+" not found")
	}
	return m, nil
}

// GetMatch retrieves a match by id.
func (db *DB) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	return getMatch(ctx, db.Pool, id, false)
}

// ListMatchesByOrder retrieves every match referencing an order.
func (db *DB) ListMatchesByOrder(ctx context.Context, orderID string) ([]models.Match, error) {
	return listMatches(ctx, db.Pool,
		"SELECT "+matchColumns+" FROM matches WHERE buy_order_id = $1 OR sell_order_id = $1 ORDER BY created_at",
		orderID)
}

func listMatches(ctx context.Context, q querier, sql string, args ...any) ([]models.Match, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, translate(err, "failed to list matches")
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, translate(err, "failed to scan match")
		}
		matches = append(matches, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "failed to list matches")
	}
	return matches, nil
}

// ListHistory retrieves the audit trail of an order, oldest first.
func (db *DB) ListHistory(ctx context.Context, orderID string) ([]models.OrderHistory, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, order_id, action, amount::text, details, created_at FROM order_history WHERE order_id = $1 ORDER BY id",
		orderID)
	if err != nil {
		return nil, translate(err, "failed to list order history")
	}
	defer rows.Close()

	var entries []models.OrderHistory
	for rows.Next() {
		var (
			h      models.OrderHistory
			amount string
			action string
		)
		if err := rows.Scan(&h.ID, &h.OrderID, &action, &amount, &h.Details, &h.CreatedAt); err != nil {
			return nil, translate(err, "failed to scan history entry")
		}
		h.Action = models.HistoryAction(action)
		if h.Amount, err = models.ParseAmount(amount); err != nil {
			return nil, translate(err, "failed to scan history amount")
		}
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "failed to list order history")
	}
	return entries, nil
}

const statsColumns = `id, ft_address, pool_id, date,
	high_price::text, low_price::text, last_price::text, daily_volume::text,
	total_trades, total_matches`

func scanStats(row pgx.Row) (*models.TradeStatistics, error) {
	var s models.TradeStatistics
	var high, low, last, vol string
	err := row.Scan(&s.ID, &s.FTAddress, &s.PoolID, &s.Date,
		&high, &low, &last, &vol, &s.TotalTrades, &s.TotalMatches)
	if err != nil {
		return nil, err
	}
	if s.HighPrice, err = models.ParseAmount(high); err != nil {
		return nil, err
	}
	if s.LowPrice, err = models.ParseAmount(low); err != nil {
		return nil, err
	}
	if s.LastPrice, err = models.ParseAmount(last); err != nil {
		return nil, err
	}
	if s.DailyVolume, err = models.ParseAmount(vol); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetDailyStats retrieves one token's statistics row for a day.
func (db *DB) GetDailyStats(ctx context.Context, ftAddress, poolID string, date time.Time) (*models.TradeStatistics, error) {
	s, err := scanStats(db.Pool.QueryRow(ctx,
		"SELECT "+statsColumns+" FROM trade_statistics WHERE ft_address = $1 AND pool_id = $2 AND date = $3",
		ftAddress, poolID, date.UTC().Truncate(24*time.Hour)))
	if err != nil {
		return nil, translate(err, "daily statistics not found")
	}
	return s, nil
}

// ListStats retrieves a token's statistics rows from since onward, oldest
// first. An empty poolID matches every pool.
func (db *DB) ListStats(ctx context.Context, ftAddress, poolID string, since time.Time) ([]models.TradeStatistics, error) {
	sql := "SELECT " + statsColumns + " FROM trade_statistics WHERE ft_address = $1 AND date >= $2"
	args := []any{ftAddress, since.UTC().Truncate(24 * time.Hour)}
	if poolID != "" {
		sql += " AND pool_id = $3"
		args = append(args, poolID)
	}
	sql += " ORDER BY date"

	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, translate(err, "failed to list statistics")
	}
	defer rows.Close()

	var out []models.TradeStatistics
	for rows.Next() {
		s, err := scanStats(rows)
		if err != nil {
			return nil, translate(err, "failed to scan statistics")
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "failed to list statistics")
	}
	return out, nil
}
