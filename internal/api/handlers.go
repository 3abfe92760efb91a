// Package api provides the HTTP handlers for triggering reconciliations,
// recording ledger entries, and querying the persisted positions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/position-engine/internal/fifo"
	"github.com/atmx/position-engine/internal/model"
	"github.com/atmx/position-engine/internal/report"
	"github.com/atmx/position-engine/internal/store"
)

// Reconciler runs reconciliations and serves the last persisted result.
type Reconciler interface {
	Run(ctx context.Context) (*model.Snapshot, error)
	Latest(ctx context.Context) (*model.Snapshot, error)
}

// LedgerWriter appends records to the transaction ledger.
type LedgerWriter interface {
	InsertBuyLot(ctx context.Context, lot *model.BuyLot) error
	InsertSellEvent(ctx context.Context, ev *model.SellEvent) error
}

// Handler serves the position engine API.
type Handler struct {
	recon  Reconciler
	ledger LedgerWriter
	wsHub  *WSHub // optional WebSocket hub for snapshot broadcasts
}

// NewHandler creates the API handler.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewHandler(recon Reconciler, ledger LedgerWriter, hub *WSHub) *Handler {
	return &Handler{recon: recon, ledger: ledger, wsHub: hub}
}

// --- Request/Response types ---

// BuyRequest is the JSON body for POST /api/v1/ledger/buys.
type BuyRequest struct {
	AssetID   string          `json:"asset_id"`
	Quantity  decimal.Decimal `json:"quantity"`   // > 0
	UnitPrice decimal.Decimal `json:"unit_price"` // >= 0
	Fee       decimal.Decimal `json:"fee"`        // >= 0
	TradeDate string          `json:"trade_date"` // YYYY-MM-DD or RFC 3339
}

// SellRequest is the JSON body for POST /api/v1/ledger/sells.
type SellRequest struct {
	AssetID   string          `json:"asset_id"`
	Quantity  decimal.Decimal `json:"quantity"` // > 0
	TradeDate string          `json:"trade_date"`
}

// --- HTTP Handlers ---

// Reconcile handles POST /api/v1/reconcile
// Runs the full pipeline and returns the new snapshot.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	snap, err := h.recon.Run(r.Context())
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	if h.wsHub != nil {
		h.wsHub.Broadcast(snapshotMessage(snap))
	}

	writeJSON(w, http.StatusOK, snap)
}

// GetPositions handles GET /api/v1/positions
// Returns the last persisted snapshot.
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	snap, err := h.recon.Latest(r.Context())
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	if snap.Positions == nil {
		snap.Positions = []model.ValuedPosition{}
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetReport handles GET /api/v1/report
// Returns the last persisted snapshot as a markdown summary.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	snap, err := h.recon.Latest(r.Context())
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	report.Render(w, snap)
}

// RecordBuy handles POST /api/v1/ledger/buys
func (h *Handler) RecordBuy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	asset := strings.TrimSpace(req.AssetID)
	if asset == "" {
		writeError(w, "asset_id is required", http.StatusBadRequest)
		return
	}
	if !req.Quantity.IsPositive() {
		writeError(w, "quantity must be positive", http.StatusBadRequest)
		return
	}
	if req.UnitPrice.IsNegative() {
		writeError(w, "unit_price must not be negative", http.StatusBadRequest)
		return
	}
	if req.Fee.IsNegative() {
		writeError(w, "fee must not be negative", http.StatusBadRequest)
		return
	}
	date, err := model.ParseTradeDate(req.TradeDate)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	lot := &model.BuyLot{
		ID:        uuid.New().String(),
		AssetID:   asset,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
		Fee:       req.Fee,
		TradeDate: date,
	}
	if err := h.ledger.InsertBuyLot(r.Context(), lot); err != nil {
		writeError(w, "failed to record buy", statusFor(err))
		return
	}

	slog.Info("buy recorded",
		"id", lot.ID,
		"asset", lot.AssetID,
		"qty", lot.Quantity.String(),
		"unit_price", lot.UnitPrice.String(),
		"fee", lot.Fee.String(),
	)

	writeJSON(w, http.StatusCreated, lot)
}

// RecordSell handles POST /api/v1/ledger/sells
func (h *Handler) RecordSell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	asset := strings.TrimSpace(req.AssetID)
	if asset == "" {
		writeError(w, "asset_id is required", http.StatusBadRequest)
		return
	}
	if !req.Quantity.IsPositive() {
		writeError(w, "quantity must be positive", http.StatusBadRequest)
		return
	}
	date, err := model.ParseTradeDate(req.TradeDate)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ev := &model.SellEvent{
		ID:        uuid.New().String(),
		AssetID:   asset,
		Quantity:  req.Quantity,
		TradeDate: date,
	}
	if err := h.ledger.InsertSellEvent(r.Context(), ev); err != nil {
		writeError(w, "failed to record sell", statusFor(err))
		return
	}

	slog.Info("sell recorded", "id", ev.ID, "asset", ev.AssetID, "qty", ev.Quantity.String())

	writeJSON(w, http.StatusCreated, ev)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNoSnapshot):
		return http.StatusNotFound
	case errors.Is(err, fifo.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrLedgerUnreachable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
