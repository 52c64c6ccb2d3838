// Package validation holds the pure order and match rule checks. Both
// validators report every violated rule, not just the first, and are
// side-effect free.
package validation

import (
	"fmt"
	"math/big"
	"time"

	"github.com/gamefrax/marketplace/internal/models"
)

// ValidateOrder checks the structural and business rules for a single
// order. It returns the list of violated rules, empty when the order is
// acceptable.
func ValidateOrder(o *models.Order, now time.Time) []string {
	var rules []string

	if o.OrderID == "" {
		rules = append(rules, "orderId must not be empty")
	}
	if o.FTAddress == "" {
		rules = append(rules, "ftAddress must not be empty")
	}
	if o.Side != models.SideBuy && o.Side != models.SideSell {
		rules = append(rules, "side must be BUY or SELL")
	}
	if o.Amount == nil || o.Amount.Sign() <= 0 {
		rules = append(rules, "amount must be positive")
	}
	if o.PricePerToken == nil || o.PricePerToken.Sign() <= 0 {
		rules = append(rules, "pricePerToken must be positive")
	}
	if !o.ExpiresAt.After(now) {
		rules = append(rules, "expiresAt must be in the future")
	}
	if o.Nonce < 0 {
		rules = append(rules, "nonce must not be negative")
	}
	return rules
}

// ValidateMatch decides the legality of pairing buy and sell for
// matchAmount. No clamping: a matchAmount exceeding either order's
// availability fails outright, the caller picks a legal amount.
func ValidateMatch(buy, sell *models.Order, matchAmount *big.Int, now time.Time) []string {
	var rules []string

	if buy.Side != models.SideBuy {
		rules = append(rules, fmt.Sprintf("order %s is not a buy order", buy.OrderID))
	}
	if sell.Side != models.SideSell {
		rules = append(rules, fmt.Sprintf("order %s is not a sell order", sell.OrderID))
	}
	if buy.PoolID != sell.PoolID {
		rules = append(rules, "orders reference different pools")
	}
	if buy.FTAddress != sell.FTAddress {
		rules = append(rules, "orders reference different fractional tokens")
	}
	if buy.IsExpired(now) {
		rules = append(rules, fmt.Sprintf("buy order %s has expired", buy.OrderID))
	}
	if sell.IsExpired(now) {
		rules = append(rules, fmt.Sprintf("sell order %s has expired", sell.OrderID))
	}
	if buy.Status == models.OrderCancelled {
		rules = append(rules, fmt.Sprintf("buy order %s is cancelled", buy.OrderID))
	}
	if sell.Status == models.OrderCancelled {
		rules = append(rules, fmt.Sprintf("sell order %s is cancelled", sell.OrderID))
	}
	if buy.PricePerToken != nil && sell.PricePerToken != nil &&
		buy.PricePerToken.Cmp(sell.PricePerToken) < 0 {
		rules = append(rules, "buy price is below sell price")
	}
	if matchAmount == nil || matchAmount.Sign() <= 0 {
		rules = append(rules, "matchAmount must be positive")
	} else {
		if matchAmount.Cmp(buy.Available()) > 0 {
			rules = append(rules, fmt.Sprintf("matchAmount exceeds buy order availability %s", buy.Available()))
		}
		if matchAmount.Cmp(sell.Available()) > 0 {
			rules = append(rules, fmt.Sprintf("matchAmount exceeds sell order availability %s", sell.Available()))
		}
	}
	if models.NormalizeAddress(buy.UserAddress) == models.NormalizeAddress(sell.UserAddress) {
		rules = append(rules, "self-trading is not allowed")
	}
	return rules
}
