package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gamefrax/marketplace/config"
	"github.com/gamefrax/marketplace/internal/api"
	"github.com/gamefrax/marketplace/internal/auth"
	"github.com/gamefrax/marketplace/internal/db"
	"github.com/gamefrax/marketplace/internal/eip712"
	"github.com/gamefrax/marketplace/internal/engine"
	"github.com/gamefrax/marketplace/internal/events"
	"github.com/gamefrax/marketplace/internal/models"
	"github.com/gamefrax/marketplace/internal/stats"
	"github.com/gamefrax/marketplace/internal/store"
	"github.com/gamefrax/marketplace/internal/ws"
)

func newLogger(cfg config.Log) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.Console {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic("load config: " + err.Error())
	}

	log := newLogger(cfg.Log)
	log.Info().Msg("marketplace matching service starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.NewDB(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	verifier := eip712.NewVerifier(eip712.Domain{
		Name:    cfg.EIP712.Name,
		Version: cfg.EIP712.Version,
		ChainID: cfg.EIP712.ChainID,
	})

	opts := []engine.Option{}
	if cfg.NATS.Endpoint != "" {
		publisher, err := events.NewPublisher(cfg.NATS.Endpoint, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer publisher.Close()
		opts = append(opts, engine.WithPublisher(publisher))
	}

	eng := engine.New(database, verifier, cfg.Fees.GasFeePercentage, log, opts...)
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	statsService := stats.NewService(database)
	hub := ws.NewHub(log)
	handler := api.NewHandler(eng, authService, statsService, log)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", hub.Handle)
	handler.Routes(r)

	// Periodic open-order-book push to websocket clients.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				broadcastOrderBook(ctx, database, hub, log)
			}
		}
	}()

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.Server.Addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

func broadcastOrderBook(ctx context.Context, database *db.DB, hub *ws.Hub, log zerolog.Logger) {
	type bookOrder struct {
		OrderID       string `json:"orderId"`
		Side          string `json:"side"`
		PoolID        string `json:"poolId"`
		FTAddress     string `json:"ftAddress"`
		Amount        string `json:"amount"`
		PricePerToken string `json:"pricePerToken"`
		FilledAmount  string `json:"filledAmount"`
	}

	orders, err := database.ListOrders(ctx, store.OrderFilter{Status: models.OrderOpen})
	if err != nil {
		log.Warn().Err(err).Msg("failed to load order book for broadcast")
		return
	}

	book := struct {
		BuyOrders  []bookOrder `json:"buyOrders"`
		SellOrders []bookOrder `json:"sellOrders"`
	}{BuyOrders: []bookOrder{}, SellOrders: []bookOrder{}}

	for _, o := range orders {
		b := bookOrder{
			OrderID:       o.OrderID,
			Side:          string(o.Side),
			PoolID:        o.PoolID,
			FTAddress:     o.FTAddress,
			Amount:        o.Amount.String(),
			PricePerToken: o.PricePerToken.String(),
			FilledAmount:  o.FilledAmount.String(),
		}
		if o.Side == models.SideBuy {
			book.BuyOrders = append(book.BuyOrders, b)
		} else {
			book.SellOrders = append(book.SellOrders, b)
		}
	}

	data, err := json.Marshal(book)
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal order book")
		return
	}
	hub.Broadcast(data)
}
