// Package http exposes the synchronous order intake API: placement runs
// the saga to a terminal state before answering, tracking reads back the
// current state and rejection reason.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/commercekit/orderflow/internal/order/application"
	"github.com/commercekit/orderflow/internal/order/domain"
)

var tracer = otel.Tracer("orderflow/http")

type Handler struct {
	log *slog.Logger
	svc *application.Service
}

func NewHandler(log *slog.Logger, svc *application.Service) *Handler {
	return &Handler{log: log, svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/orders", h.placeOrder)
	r.Get("/orders/{orderID}", h.trackOrder)
}

type itemRequest struct {
	ProductID      string `json:"product_id"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type placeOrderRequest struct {
	CustomerID      string        `json:"customer_id"`
	Items           []itemRequest `json:"items"`
	ShippingAddress string        `json:"shipping_address"`
	Contact         string        `json:"contact"`
	PaymentMethod   string        `json:"payment_method"`
}

type orderResponse struct {
	OrderID    string `json:"order_id"`
	State      string `json:"state"`
	Reason     string `json:"reason,omitempty"`
	TotalCents int64  `json:"total_cents"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "PlaceOrder")
	defer span.End()

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cmd := application.PlaceOrderCommand{
		CustomerID:      req.CustomerID,
		ShippingAddress: req.ShippingAddress,
		Contact:         req.Contact,
		PaymentMethod:   req.PaymentMethod,
	}
	for _, it := range req.Items {
		cmd.Items = append(cmd.Items, application.ItemInput{
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
		})
	}

	o, err := h.svc.Place(ctx, cmd)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoItems),
			errors.Is(err, domain.ErrInvalidQuantity),
			errors.Is(err, domain.ErrInvalidPrice),
			errors.Is(err, domain.ErrConflictingPrice):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("order placement failed", "err", err)
			writeError(w, http.StatusInternalServerError, "order placement failed")
		}
		return
	}

	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.state", string(o.State)),
	)
	status := http.StatusCreated
	if o.State != domain.StateConfirmed {
		// Rejections are a normal business answer, not a server error.
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, toResponse(o))
}

func (h *Handler) trackOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "TrackOrder")
	defer span.End()

	o, err := h.svc.Track(ctx, chi.URLParam(r, "orderID"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		h.log.Error("order lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "order lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(o))
}

func toResponse(o *domain.Order) orderResponse {
	return orderResponse{
		OrderID:    o.ID,
		State:      string(o.State),
		Reason:     string(o.RejectionReason),
		TotalCents: o.TotalCents,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
