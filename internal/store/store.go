// Package store declares the persistence contracts the matching engine
// runs against. The production implementation lives in internal/db on
// Postgres; tests use the in-memory fake in storetest. The engine never
// touches shared in-process state directly, everything goes through these
// interfaces.
package store

import (
	"context"
	"math/big"
	"time"

	"github.com/gamefrax/marketplace/internal/models"
)

// OrderFilter narrows ListOrders. Zero values mean "any".
type OrderFilter struct {
	Side        models.Side
	PoolID      string
	FTAddress   string
	UserAddress string
	Status      models.OrderStatus
	Limit       int
	Offset      int
}

// StatsDelta is one settled match folded into a daily statistics row.
// Value is matchedAmount*matchedPrice de-scaled to smallest units.
type StatsDelta struct {
	FTAddress string
	PoolID    string
	Date      time.Time // UTC midnight
	Price     *big.Int
	Value     *big.Int
}

// Store is the transactional record store consumed by the engine and the
// API layer. Read methods run outside any transaction.
//
// ListOrders filters out OPEN orders past their expiry instead of
// rewriting them to EXPIRED; nothing ever writes the EXPIRED status. A
// stale OPEN row therefore stays in the table until matched against (and
// rejected) or cancelled. Known limitation, kept deliberately.
type Store interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error)

	GetMatch(ctx context.Context, id string) (*models.Match, error)
	ListMatchesByOrder(ctx context.Context, orderID string) ([]models.Match, error)

	ListHistory(ctx context.Context, orderID string) ([]models.OrderHistory, error)

	GetDailyStats(ctx context.Context, ftAddress, poolID string, date time.Time) (*models.TradeStatistics, error)
	ListStats(ctx context.Context, ftAddress, poolID string, since time.Time) ([]models.TradeStatistics, error)

	// Transact runs fn inside a single transaction. Either every write fn
	// performs commits, or none do.
	Transact(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write surface available inside a transaction. Order rows read
// through GetOrderForUpdate are locked until commit; callers lock both
// sides of a match in ascending order-id order to stay deadlock free.
type Tx interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error)
	UpdateOrderFill(ctx context.Context, o *models.Order) error
	UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) error

	CreateMatch(ctx context.Context, m *models.Match) error
	GetMatchForUpdate(ctx context.Context, id string) (*models.Match, error)
	UpdateMatch(ctx context.Context, m *models.Match) error
	ListPendingMatchesByOrder(ctx context.Context, orderID string) ([]models.Match, error)

	AppendHistory(ctx context.Context, h *models.OrderHistory) error

	// UpsertDailyStats merges a delta into the day row: high/low extended,
	// last price overwritten, volume accumulated, counters incremented.
	// The merge happens under the transaction so concurrent settlements
	// for the same token and day cannot lose updates.
	UpsertDailyStats(ctx context.Context, d StatsDelta) error
}
