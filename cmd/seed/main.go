// Seed the database with demo marketplace data. Orders are inserted
// directly through the store, bypassing signature verification; this is a
// development tool only.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/gamefrax/marketplace/config"
	"github.com/gamefrax/marketplace/internal/db"
	"github.com/gamefrax/marketplace/internal/models"
	"github.com/gamefrax/marketplace/internal/store"
)

const (
	buyer  = "0x1111111111111111111111111111111111111111"
	seller = "0x2222222222222222222222222222222222222222"
	token  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	pool   = "pool-genesis"
)

func tokens(n int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(n), scale)
}

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	database, err := db.NewDB(ctx, cfg.Postgres.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	existing, err := database.ListOrders(ctx, store.OrderFilter{PoolID: pool})
	if err != nil {
		fmt.Fprintf(os.Stderr, "list orders: %v\n", err)
		os.Exit(1)
	}
	if len(existing) > 0 {
		fmt.Printf("pool %s already has %d orders, nothing to seed\n", pool, len(existing))
		return
	}

	now := time.Now()
	orders := []*models.Order{
		{
			OrderID:       "seed-buy-1",
			UserAddress:   buyer,
			ChainID:       1,
			Side:          models.SideBuy,
			PoolID:        pool,
			FTAddress:     token,
			Amount:        tokens(100),
			PricePerToken: tokens(10),
			FilledAmount:  tokens(10),
			Status:        models.OrderPartiallyFilled,
			CreatedAt:     now,
			ExpiresAt:     now.Add(30 * 24 * time.Hour),
		},
		{
			OrderID:       "seed-sell-1",
			UserAddress:   seller,
			ChainID:       1,
			Side:          models.SideSell,
			PoolID:        pool,
			FTAddress:     token,
			Amount:        tokens(60),
			PricePerToken: tokens(8),
			FilledAmount:  tokens(10),
			Status:        models.OrderPartiallyFilled,
			CreatedAt:     now,
			ExpiresAt:     now.Add(30 * 24 * time.Hour),
		},
		{
			OrderID:       "seed-sell-2",
			UserAddress:   seller,
			ChainID:       1,
			Side:          models.SideSell,
			PoolID:        pool,
			FTAddress:     token,
			Amount:        tokens(25),
			PricePerToken: tokens(9),
			FilledAmount:  new(big.Int),
			Status:        models.OrderOpen,
			CreatedAt:     now,
			ExpiresAt:     now.Add(30 * 24 * time.Hour),
		},
	}

	err = database.Transact(ctx, func(tx store.Tx) error {
		for _, o := range orders {
			if err := tx.CreateOrder(ctx, o); err != nil {
				return err
			}
			if err := tx.AppendHistory(ctx, &models.OrderHistory{
				OrderID:   o.OrderID,
				Action:    models.ActionCreated,
				Amount:    new(big.Int).Set(o.Amount),
				Details:   "seeded order",
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}
		// One historical settled match so the statistics endpoint has data.
		settled := now.Add(-24 * time.Hour)
		m := &models.Match{
			ID:               uuid.NewString(),
			BuyOrderID:       "seed-buy-1",
			SellOrderID:      "seed-sell-1",
			PoolID:           pool,
			FTAddress:        token,
			MatchedAmount:    tokens(10),
			MatchedPrice:     tokens(8),
			GasFeePercentage: cfg.Fees.GasFeePercentage,
			GasFeeAmount:     new(big.Int),
			Status:           models.MatchPendingExecution,
			CreatedAt:        settled,
		}
		if err := tx.CreateMatch(ctx, m); err != nil {
			return err
		}
		m.Status = models.MatchSettled
		m.TxHash = "0xseed"
		m.SettledAt = &settled
		if err := tx.UpdateMatch(ctx, m); err != nil {
			return err
		}
		return tx.UpsertDailyStats(ctx, store.StatsDelta{
			FTAddress: token,
			PoolID:    pool,
			Date:      settled.UTC().Truncate(24 * time.Hour),
			Price:     tokens(8),
			Value:     tokens(80),
		})
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("seeded demo pool", pool)
}
