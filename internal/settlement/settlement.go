// Package settlement derives settlement prices and gas fees for legal
// order pairings. All money math runs on big.Int smallest units; every
// division truncates so the figures are bit-reproducible.
package settlement

import "math/big"

// Scale is the 18-decimal fixed-point scale shared by amounts and prices.
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

const basisPoints = 10000

// PricePolicy selects how the settlement price is chosen inside the
// [sellPrice, buyPrice] band.
type PricePolicy int

const (
	// FavorSeller settles at the seller's ask price. The buyer pays the
	// least the seller accepts, so this is the buyer-friendly default.
	FavorSeller PricePolicy = iota
	// Midpoint settles at (buy+sell)/2, truncating. Opt-in for callers
	// that need symmetric pricing.
	Midpoint
)

// Price returns the settlement price for a crossed pair. The caller has
// already established buyPrice >= sellPrice.
func Price(buyPrice, sellPrice *big.Int, policy PricePolicy) *big.Int {
	if policy == Midpoint {
		sum := new(big.Int).Add(buyPrice, sellPrice)
		return sum.Quo(sum, big.NewInt(2))
	}
	return new(big.Int).Set(sellPrice)
}

// GasFee computes the proportional fee on a match. feePercentage is a
// rational like 0.001 for 0.1%; it is converted to whole basis points by
// truncating multiplication, and the fixed precision loss there is
// deliberate so every implementation reproduces the same figure.
func GasFee(matchedAmount, matchedPrice *big.Int, feePercentage float64) *big.Int {
	feeBps := int64(feePercentage * basisPoints)
	if feeBps <= 0 {
		return new(big.Int)
	}
	fee := TotalValue(matchedAmount, matchedPrice)
	fee.Mul(fee, big.NewInt(feeBps))
	return fee.Quo(fee, big.NewInt(basisPoints))
}

// TotalValue de-scales amount*price back to smallest units:
// amount * price / 1e18, truncating.
func TotalValue(amount, price *big.Int) *big.Int {
	v := new(big.Int).Mul(amount, price)
	return v.Quo(v, Scale)
}

// BuyerSavings is how much the buyer saves versus paying their own bid
// price, given the chosen settlement price.
func BuyerSavings(amount, buyPrice, settlementPrice *big.Int) *big.Int {
	atBid := TotalValue(amount, buyPrice)
	atSettle := TotalValue(amount, settlementPrice)
	return atBid.Sub(atBid, atSettle)
}
