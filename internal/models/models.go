package models

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Side classifies an order as buying or selling fractional tokens.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes the wire spelling of a side. Signed orders coming
// from the wallet flow use BID/ASK for the same two concepts.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "BID":
		return SideBuy, nil
	case "SELL", "ASK":
		return SideSell, nil
	}
	return "", fmt.Errorf("invalid side %q", s)
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderOpen            OrderStatus = "OPEN"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCancelled       OrderStatus = "CANCELLED"
	OrderExpired         OrderStatus = "EXPIRED"
)

// MatchStatus is the lifecycle state of a match.
type MatchStatus string

const (
	MatchPendingExecution   MatchStatus = "PENDING_EXECUTION"
	MatchSettled            MatchStatus = "SETTLED"
	MatchSettlementExecuted MatchStatus = "SETTLEMENT_EXECUTED"
	MatchCancelled          MatchStatus = "CANCELLED"
)

// HistoryAction labels an append-only audit entry.
type HistoryAction string

const (
	ActionCreated            HistoryAction = "CREATED"
	ActionPartiallyFilled    HistoryAction = "PARTIALLY_FILLED"
	ActionCancelled          HistoryAction = "CANCELLED"
	ActionSettledOnchain     HistoryAction = "SETTLED_ONCHAIN"
	ActionSettlementExecuted HistoryAction = "SETTLEMENT_EXECUTED"
)

// Order is a signed buy or sell order for fractional-ownership tokens.
// Amounts and prices are 18-decimal fixed-point integers (smallest units).
type Order struct {
	OrderID       string
	UserAddress   string // normalized lower-case
	ChainID       int64
	Side          Side
	PoolID        string
	FTAddress     string
	Amount        *big.Int
	PricePerToken *big.Int
	FilledAmount  *big.Int
	Nonce         int64
	Signature     string
	Status        OrderStatus
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Available returns the unfilled portion of the order.
func (o *Order) Available() *big.Int {
	return new(big.Int).Sub(o.Amount, o.FilledAmount)
}

// IsExpired reports whether the order's expiry has passed at t.
func (o *Order) IsExpired(t time.Time) bool {
	return !t.Before(o.ExpiresAt)
}

// Match pairs a buy and a sell order at a settlement price.
type Match struct {
	ID               string
	BuyOrderID       string
	SellOrderID      string
	PoolID           string
	FTAddress        string
	MatchedAmount    *big.Int
	MatchedPrice     *big.Int
	GasFeePercentage float64
	GasFeeAmount     *big.Int
	Status           MatchStatus
	TxHash           string
	CreatedAt        time.Time
	SettledAt        *time.Time
}

// OrderHistory is a write-once audit entry. Entries are never mutated
// or deleted.
type OrderHistory struct {
	ID        int64
	OrderID   string
	Action    HistoryAction
	Amount    *big.Int
	Details   string
	CreatedAt time.Time
}

// TradeStatistics is a per-token, per-UTC-day OHLC/volume rollup derived
// from settled matches.
type TradeStatistics struct {
	ID           int64
	FTAddress    string
	PoolID       string
	Date         time.Time // UTC midnight
	HighPrice    *big.Int
	LowPrice     *big.Int
	LastPrice    *big.Int
	DailyVolume  *big.Int
	TotalTrades  int64
	TotalMatches int64
}

// NormalizeAddress lower-cases an EVM address for comparison and storage.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ParseAmount parses a base-10 string of smallest units. Amounts cross
// every external boundary as decimal strings, never as floats.
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
