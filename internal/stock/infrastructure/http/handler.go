// Package http exposes the stock admin surface: onboarding a product,
// restocking it, and reading the current counters.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/commercekit/orderflow/internal/stock/application"
	"github.com/commercekit/orderflow/internal/stock/domain"
)

type Handler struct {
	log    *slog.Logger
	ledger *application.Ledger
}

func NewHandler(log *slog.Logger, ledger *application.Ledger) *Handler {
	return &Handler{log: log, ledger: ledger}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/stock", h.onboard)
	r.Post("/stock/{productID}/restock", h.restock)
	r.Get("/stock/{productID}", h.level)
}

type onboardRequest struct {
	ProductID string `json:"product_id"`
	Initial   int64  `json:"initial"`
}

func (h *Handler) onboard(w http.ResponseWriter, r *http.Request) {
	var req onboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.ledger.Onboard(r.Context(), req.ProductID, req.Initial)
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.log.Error("onboard failed", "product_id", req.ProductID, "err", err)
		writeError(w, http.StatusInternalServerError, "onboard failed")
	default:
		w.WriteHeader(http.StatusCreated)
	}
}

type restockRequest struct {
	Quantity int64 `json:"quantity"`
}

func (h *Handler) restock(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	productID := chi.URLParam(r, "productID")

	// An explicit Idempotency-Key lets callers retry safely; without one
	// each request is a distinct restock.
	token := r.Header.Get("Idempotency-Key")
	if token == "" {
		token = "restock:" + uuid.NewString()
	}

	err := h.ledger.Restock(r.Context(), productID, req.Quantity, token)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrOverflow):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.log.Error("restock failed", "product_id", productID, "err", err)
		writeError(w, http.StatusInternalServerError, "restock failed")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type levelResponse struct {
	ProductID  string `json:"product_id"`
	Available  int64  `json:"available"`
	Reserved   int64  `json:"reserved"`
	Unreserved int64  `json:"unreserved"`
}

func (h *Handler) level(w http.ResponseWriter, r *http.Request) {
	rec, err := h.ledger.Level(r.Context(), chi.URLParam(r, "productID"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "level lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, levelResponse{
		ProductID:  rec.ProductID,
		Available:  rec.Available,
		Reserved:   rec.Reserved,
		Unreserved: rec.Unreserved(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
