// Package api exposes the matching service over HTTP. Handlers decode
// JSON requests, delegate to the engine, and map the error taxonomy onto
// status codes. All amounts cross this boundary as base-10 strings of
// smallest units.
package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/gamefrax/marketplace/internal/auth"
	"github.com/gamefrax/marketplace/internal/engine"
	"github.com/gamefrax/marketplace/internal/errs"
	"github.com/gamefrax/marketplace/internal/models"
	"github.com/gamefrax/marketplace/internal/stats"
	"github.com/gamefrax/marketplace/internal/store"
)

type contextKey string

const addressKey contextKey = "wallet_address"

// Handler contains dependencies for HTTP handlers.
type Handler struct {
	Engine *engine.Engine
	Auth   *auth.Service
	Stats  *stats.Service
	log    zerolog.Logger
}

func NewHandler(e *engine.Engine, a *auth.Service, s *stats.Service, log zerolog.Logger) *Handler {
	return &Handler{Engine: e, Auth: a, Stats: s, log: log.With().Str("component", "api").Logger()}
}

// Routes mounts every endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/auth/challenge", h.AuthChallenge)
	r.Post("/auth/login", h.AuthLogin)
	r.Get("/orderbook", h.GetOrderBook)
	r.Get("/stats/{ftAddress}", h.GetTokenStats)

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)
		r.Post("/orders", h.CreateOrder)
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{orderId}/history", h.GetOrderHistory)
		r.Delete("/orders/{orderId}", h.CancelOrder)
		r.Post("/matches", h.Match)
		r.Post("/matches/preview", h.PreviewMatch)
		r.Get("/matches/{id}", h.GetMatch)
		r.Post("/settlements/{matchId}/prepare", h.PrepareSettlement)
		r.Post("/settlements/{matchId}/confirm", h.ConfirmSettlement)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindInvalidInput:
		status = http.StatusBadRequest
	case errs.KindValidationFailed:
		status = http.StatusUnprocessableEntity
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindConflict:
		status = http.StatusConflict
	case errs.KindUnauthorized:
		status = http.StatusUnauthorized
	case errs.KindExternalDependency:
		status = http.StatusBadGateway
	}

	body := map[string]any{"error": err.Error()}
	if rules := errs.RulesOf(err); len(rules) > 0 {
		body["rules"] = rules
	}
	writeJSON(w, status, body)
}

// AuthMiddleware validates the bearer token and stores the wallet address
// in the request context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if token == "" {
			writeError(w, errs.New(errs.KindUnauthorized, "authorization header required"))
			return
		}
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}

		addr, err := h.Auth.AddressFromToken(token)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), addressKey, addr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestAddress(r *http.Request) (string, bool) {
	addr, ok := r.Context().Value(addressKey).(string)
	return addr, ok
}

// AuthChallenge issues a login nonce for a wallet address.
func (h *Handler) AuthChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		writeError(w, errs.New(errs.KindInvalidInput, "address is required"))
		return
	}

	nonce := h.Auth.Challenge(req.Address)
	writeJSON(w, http.StatusOK, map[string]string{
		"nonce":   nonce,
		"message": auth.LoginMessage(nonce),
	})
}

// AuthLogin trades a signed challenge for a session token.
func (h *Handler) AuthLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address   string `json:"address"`
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" || req.Signature == "" {
		writeError(w, errs.New(errs.KindInvalidInput, "address and signature are required"))
		return
	}

	token, err := h.Auth.Login(req.Address, req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type orderResponse struct {
	OrderID       string `json:"orderId"`
	UserAddress   string `json:"userAddress"`
	ChainID       int64  `json:"chainId"`
	Side          string `json:"side"`
	PoolID        string `json:"poolId"`
	FTAddress     string `json:"ftAddress"`
	Amount        string `json:"amount"`
	PricePerToken string `json:"pricePerToken"`
	FilledAmount  string `json:"filledAmount"`
	Nonce         int64  `json:"nonce"`
	Status        string `json:"status"`
	CreatedAt     int64  `json:"createdAt"`
	ExpiresAt     int64  `json:"expiresAt"`
}

func toOrderResponse(o *models.Order) orderResponse {
	return orderResponse{
		OrderID:       o.OrderID,
		UserAddress:   o.UserAddress,
		ChainID:       o.ChainID,
		Side:          string(o.Side),
		PoolID:        o.PoolID,
		FTAddress:     o.FTAddress,
		Amount:        o.Amount.String(),
		PricePerToken: o.PricePerToken.String(),
		FilledAmount:  o.FilledAmount.String(),
		Nonce:         o.Nonce,
		Status:        string(o.Status),
		CreatedAt:     o.CreatedAt.Unix(),
		ExpiresAt:     o.ExpiresAt.Unix(),
	}
}

type matchResponse struct {
	ID               string  `json:"id"`
	BuyOrderID       string  `json:"buyOrderId"`
	SellOrderID      string  `json:"sellOrderId"`
	PoolID           string  `json:"poolId"`
	FTAddress        string  `json:"ftAddress"`
	MatchedAmount    string  `json:"matchedAmount"`
	MatchedPrice     string  `json:"matchedPrice"`
	GasFeePercentage float64 `json:"gasFeePercentage"`
	GasFeeAmount     string  `json:"gasFeeAmount"`
	Status           string  `json:"status"`
	TxHash           string  `json:"txHash,omitempty"`
	CreatedAt        int64   `json:"createdAt"`
	SettledAt        *int64  `json:"settledAt,omitempty"`
}

func toMatchResponse(m *models.Match) matchResponse {
	resp := matchResponse{
		ID:               m.ID,
		BuyOrderID:       m.BuyOrderID,
		SellOrderID:      m.SellOrderID,
		PoolID:           m.PoolID,
		FTAddress:        m.FTAddress,
		MatchedAmount:    m.MatchedAmount.String(),
		MatchedPrice:     m.MatchedPrice.String(),
		GasFeePercentage: m.GasFeePercentage,
		GasFeeAmount:     m.GasFeeAmount.String(),
		Status:           string(m.Status),
		TxHash:           m.TxHash,
		CreatedAt:        m.CreatedAt.Unix(),
	}
	if m.SettledAt != nil {
		t := m.SettledAt.Unix()
		resp.SettledAt = &t
	}
	return resp
}

// CreateOrder validates, verifies and stores a signed order.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	addr, ok := requestAddress(r)
	if !ok {
		writeError(w, errs.New(errs.KindUnauthorized, "unauthorized"))
		return
	}

	var req struct {
		OrderID       string `json:"orderId"`
		Side          string `json:"side"`
		PoolID        string `json:"poolId"`
		FTAddress     string `json:"ftAddress"`
		Amount        string `json:"amount"`
		PricePerToken string `json:"pricePerToken"`
		UserAddress   string `json:"userAddress"`
		ChainID       int64  `json:"chainId"`
		Nonce         int64  `json:"nonce"`
		ExpiresAt     int64  `json:"expiresAt"`
		Signature     string `json:"signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.KindInvalidInput, "invalid request body"))
		return
	}

	if models.NormalizeAddress(req.UserAddress) != addr {
		writeError(w, errs.New(errs.KindUnauthorized, "order userAddress does not match session"))
		return
	}

	side, err := models.ParseSide(req.Side)
	if err != nil {
		writeError(w, errs.New(errs.KindInvalidInput, "side must be BUY/SELL (or BID/ASK)"))
		return
	}
	amount, err := models.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, errs.New(errs.KindInvalidInput, "amount must be a base-10 integer string"))
		return
	}
	price, err := models.ParseAmount(req.PricePerToken)
	if err != nil {
		writeError(w, errs.New(errs.KindInvalidInput, "pricePerToken must be a base-10 integer string"))
		return
	}

	order := &models.Order{
		OrderID:       req.OrderID,
		UserAddress:   req.UserAddress,
		ChainID:       req.ChainID,
		Side:          side,
		PoolID:        req.PoolID,
		FTAddress:     models.NormalizeAddress(req.FTAddress),
		Amount:        amount,
		PricePerToken: price,
		Nonce:         req.Nonce,
		Signature:     req.Signature,
		ExpiresAt:     time.Unix(req.ExpiresAt, 0),
	}

	created, err := h.Engine.CreateOrder(r.Context(), order)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(created))
}

// ListOrders returns orders matching the query filters.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.OrderFilter{
		PoolID:      q.Get("poolId"),
		FTAddress:   models.NormalizeAddress(q.Get("ftAddress")),
		UserAddress: q.Get("userAddress"),
	}
	if s := q.Get("side"); s != "" {
		side, err := models.ParseSide(s)
		if err != nil {
			writeError(w, errs.New(errs.KindInvalidInput, "invalid side filter"))
			return
		}
		f.Side = side
	}
	if s := q.Get("status"); s != "" {
		f.Status = models.OrderStatus(s)
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))

	orders, err := h.Engine.ListOrders(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

// GetOrderHistory returns the audit trail of one order.
func (h *Handler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Engine.OrderHistory(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, err)
		return
	}

	type historyResponse struct {
		Action    string `json:"action"`
		Amount    string `json:"amount"`
		Details   string `json:"details"`
		Timestamp int64  `json:"timestamp"`
	}
	out := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyResponse{
			Action:    string(e.Action),
			Amount:    e.Amount.String(),
			Details:   e.Details,
			Timestamp: e.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

// CancelOrder cancels an order owned by the session wallet.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	addr, ok := requestAddress(r)
	if !ok {
		writeError(w, errs.New(errs.KindUnauthorized, "unauthorized"))
		return
	}

	order, err := h.Engine.CancelOrder(r.Context(), chi.URLParam(r, "orderId"), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) decodeMatchRequest(w http.ResponseWriter, r *http.Request) (buyID, sellID string, amount *big.Int, ok bool) {
	var req struct {
		BuyOrderID  string `json:"buyOrderId"`
		SellOrderID string `json:"sellOrderId"`
		MatchAmount string `json:"matchAmount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.KindInvalidInput, "invalid request body"))
		return "", "", nil, false
	}
	v, err := models.ParseAmount(req.MatchAmount)
	if err != nil {
		writeError(w, errs.New(errs.KindInvalidInput, "matchAmount must be a base-10 integer string"))
		return "", "", nil, false
	}
	return req.BuyOrderID, req.SellOrderID, v, true
}

// Match pairs two orders.
func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	buyID, sellID, amount, ok := h.decodeMatchRequest(w, r)
	if !ok {
		return
	}

	result, err := h.Engine.Match(r.Context(), buyID, sellID, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"match":     toMatchResponse(result.Match),
		"buyOrder":  toOrderResponse(result.Buy),
		"sellOrder": toOrderResponse(result.Sell),
	})
}

// PreviewMatch computes match economics without mutating state.
func (h *Handler) PreviewMatch(w http.ResponseWriter, r *http.Request) {
	buyID, sellID, amount, ok := h.decodeMatchRequest(w, r)
	if !ok {
		return
	}

	preview, err := h.Engine.PreviewMatch(r.Context(), buyID, sellID, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matchedAmount":   preview.MatchedAmount.String(),
		"settlementPrice": preview.SettlementPrice.String(),
		"gasFee":          preview.GasFee.String(),
		"totalCost":       preview.TotalCost.String(),
		"buyerSavings":    preview.BuyerSavings.String(),
		"feePercentage":   preview.FeePercentage,
	})
}

// GetMatch returns one match.
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	m, err := h.Engine.GetMatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMatchResponse(m))
}

// PrepareSettlement emits the execution-layer payload for a match.
func (h *Handler) PrepareSettlement(w http.ResponseWriter, r *http.Request) {
	payload, err := h.Engine.PrepareSettlement(r.Context(), chi.URLParam(r, "matchId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// ConfirmSettlement records the on-chain transaction hash for a match.
func (h *Handler) ConfirmSettlement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TxHash string `json:"txHash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.KindInvalidInput, "invalid request body"))
		return
	}

	m, err := h.Engine.ConfirmSettlement(r.Context(), chi.URLParam(r, "matchId"), req.TxHash)
	if err != nil {
		writeError(w, err)
		return
	}
	h.Stats.Invalidate(m.FTAddress)
	writeJSON(w, http.StatusOK, toMatchResponse(m))
}

// GetOrderBook returns the open orders of a pool, split by side.
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	poolID := r.URL.Query().Get("poolId")

	book := map[string][]orderResponse{"buyOrders": {}, "sellOrders": {}}
	for side, key := range map[models.Side]string{models.SideBuy: "buyOrders", models.SideSell: "sellOrders"} {
		orders, err := h.Engine.ListOrders(r.Context(), store.OrderFilter{
			Side:   side,
			PoolID: poolID,
			Status: models.OrderOpen,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		for i := range orders {
			book[key] = append(book[key], toOrderResponse(&orders[i]))
		}
	}
	writeJSON(w, http.StatusOK, book)
}

// GetTokenStats returns the daily statistics rows for a token.
func (h *Handler) GetTokenStats(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 {
		days = 7
	}

	rows, err := h.Stats.TokenStats(r.Context(), chi.URLParam(r, "ftAddress"), r.URL.Query().Get("poolId"), days)
	if err != nil {
		writeError(w, err)
		return
	}

	type statsResponse struct {
		FTAddress    string `json:"ftAddress"`
		PoolID       string `json:"poolId"`
		Date         string `json:"date"`
		HighPrice    string `json:"highPrice"`
		LowPrice     string `json:"lowPrice"`
		LastPrice    string `json:"lastPrice"`
		DailyVolume  string `json:"dailyVolume"`
		TotalTrades  int64  `json:"totalTrades"`
		TotalMatches int64  `json:"totalMatches"`
	}
	out := make([]statsResponse, 0, len(rows))
	for _, s := range rows {
		out = append(out, statsResponse{
			FTAddress:    s.FTAddress,
			PoolID:       s.PoolID,
			Date:         s.Date.UTC().Format("2006-01-02"),
			HighPrice:    s.HighPrice.String(),
			LowPrice:     s.LowPrice.String(),
			LastPrice:    s.LastPrice.String(),
			DailyVolume:  s.DailyVolume.String(),
			TotalTrades:  s.TotalTrades,
			TotalMatches: s.TotalMatches,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": out})
}
