package engine

import (
	"context"

	"github.com/gamefrax/marketplace/internal/errs"
	"github.com/gamefrax/marketplace/internal/models"
	"github.com/gamefrax/marketplace/internal/monitor"
	"github.com/gamefrax/marketplace/internal/stats"
	"github.com/gamefrax/marketplace/internal/store"
)

// SettlementPayload is the projection of a match consumed by the on-chain
// execution layer. Amounts are already 18-decimal fixed point, carried as
// decimal strings; the execution layer does no rescaling. Both orders'
// raw expiry timestamps ride along for on-chain expiry checks.
type SettlementPayload struct {
	MatchID            string `json:"matchId"`
	ChainID            int64  `json:"chainId"`
	BuyerAddress       string `json:"buyerAddress"`
	SellerAddress      string `json:"sellerAddress"`
	FTAddress          string `json:"ftAddress"`
	PoolID             string `json:"poolId"`
	MatchedAmount      string `json:"matchedAmount"`
	MatchedPrice       string `json:"matchedPrice"`
	GasFeeAmount       string `json:"gasFeeAmount"`
	BuyOrderExpiresAt  int64  `json:"buyOrderExpiresAt"`
	SellOrderExpiresAt int64  `json:"sellOrderExpiresAt"`
}

// PrepareSettlement projects a match into the shape the execution layer
// needs and publishes it as a settlement instruction. A match whose
// underlying orders are gone should have been cancelled by the
// cancellation path; if it was not, that is an error state, not something
// to repair silently.
func (e *Engine) PrepareSettlement(ctx context.Context, matchID string) (*SettlementPayload, error) {
	m, err := e.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status == models.MatchCancelled {
		return nil, errs.New(errs.KindConflict, "match %s is cancelled", matchID)
	}

	buy, err := e.store.GetOrder(ctx, m.BuyOrderID)
	if err != nil {
		if errs.IsNotFound(err) {
			e.log.Error().Str("match_id", matchID).Str("order_id", m.BuyOrderID).
				Msg("match references a missing buy order")
		}
		return nil, err
	}
	sell, err := e.store.GetOrder(ctx, m.SellOrderID)
	if err != nil {
		if errs.IsNotFound(err) {
			e.log.Error().Str("match_id", matchID).Str("order_id", m.SellOrderID).
				Msg("match references a missing sell order")
		}
		return nil, err
	}

	payload := &SettlementPayload{
		MatchID:            m.ID,
		ChainID:            buy.ChainID,
		BuyerAddress:       buy.UserAddress,
		SellerAddress:      sell.UserAddress,
		FTAddress:          m.FTAddress,
		PoolID:             m.PoolID,
		MatchedAmount:      m.MatchedAmount.String(),
		MatchedPrice:       m.MatchedPrice.String(),
		GasFeeAmount:       m.GasFeeAmount.String(),
		BuyOrderExpiresAt:  buy.ExpiresAt.Unix(),
		SellOrderExpiresAt: sell.ExpiresAt.Unix(),
	}

	if e.publisher != nil {
		if err := e.publisher.PublishSettlementInstruction(*payload); err != nil {
			return nil, errs.Wrap(errs.KindExternalDependency, err, "failed to publish settlement instruction")
		}
	}
	return payload, nil
}

// ConfirmSettlement records the on-chain transaction hash for a match.
// Re-confirming with the same hash is a no-op; a different hash is
// rejected, first write wins, so the canonical settlement record can
// never be overwritten. The statistics rollup happens inside the same
// transaction.
func (e *Engine) ConfirmSettlement(ctx context.Context, matchID, txHash string) (*models.Match, error) {
	if txHash == "" {
		return nil, errs.New(errs.KindInvalidInput, "txHash is required")
	}

	var confirmed *models.Match
	var alreadySettled bool
	err := e.transactRetry(ctx, func(tx store.Tx) error {
		m, err := tx.GetMatchForUpdate(ctx, matchID)
		if err != nil {
			return err
		}

		switch m.Status {
		case models.MatchSettled, models.MatchSettlementExecuted:
			if m.TxHash != txHash {
				return errs.New(errs.KindConflict,
					"match %s already settled with tx %s", matchID, m.TxHash)
			}
			confirmed, alreadySettled = m, true
			return nil
		case models.MatchCancelled:
			return errs.New(errs.KindConflict, "match %s is cancelled", matchID)
		}

		now := e.now()
		m.Status = models.MatchSettled
		m.TxHash = txHash
		m.SettledAt = &now
		if err := tx.UpdateMatch(ctx, m); err != nil {
			return err
		}

		for _, orderID := range []string{m.BuyOrderID, m.SellOrderID} {
			if err := tx.AppendHistory(ctx, &models.OrderHistory{
				OrderID:   orderID,
				Action:    models.ActionSettledOnchain,
				Amount:    m.MatchedAmount,
				Details:   "settled on chain, tx " + txHash,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}

		if err := tx.UpsertDailyStats(ctx, stats.DeltaFor(m.FTAddress, m.PoolID, m.MatchedAmount, m.MatchedPrice, now)); err != nil {
			return err
		}

		confirmed = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !alreadySettled {
		monitor.IncSettlementsConfirmed()
		e.log.Info().Str("match_id", matchID).Str("tx_hash", txHash).Msg("settlement confirmed")
	}
	return confirmed, nil
}

// GetMatch returns a single match.
func (e *Engine) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	return e.store.GetMatch(ctx, id)
}
