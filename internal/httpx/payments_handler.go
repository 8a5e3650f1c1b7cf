package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/CodeLordGh/kash-catalogue-checkout/internal/checkout"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/gateway"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/orders"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

const maxCallbackBody = 64 << 10

// Reconciler is what the payment endpoints need from the checkout core.
type Reconciler interface {
	HandleCallback(ctx context.Context, res gateway.Result) (*checkout.Outcome, error)
	PollOrder(ctx context.Context, orderID, correlationID string) (*checkout.Outcome, error)
}

type OrderFinder interface {
	FindByID(ctx context.Context, orderID string) (*orders.Order, error)
}

type PaymentsHandler struct {
	Reconciler Reconciler
	Orders     OrderFinder
	Redis      *redis.Client
}

func (h *PaymentsHandler) Register(r *chi.Mux) {
	r.Post("/payments/callback", h.callback)
	r.Get("/payments/status", h.status)
	r.Get("/orders/{id}", h.getOrder)
}

type callbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// callback always answers 200: the provider only needs to know delivery
// succeeded, and anything it sent that we cannot act on is logged, not
// bounced back into its retry loop.
func (h *PaymentsHandler) callback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		writeJSON(w, http.StatusOK, callbackAck{ResultDesc: "Accepted"})
		return
	}

	res, err := gateway.ParseCallback(body)
	if err != nil {
		log.Printf("callback: %v payload=%s", err, body)
		writeJSON(w, http.StatusOK, callbackAck{ResultDesc: "Accepted"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if _, err := h.Reconciler.HandleCallback(ctx, res); err != nil && !errors.Is(err, orders.ErrNotFound) {
		log.Printf("callback %s: %v", res.CorrelationID, err)
	}
	writeJSON(w, http.StatusOK, callbackAck{ResultDesc: "Accepted"})
}

type statusResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
}

func (h *PaymentsHandler) status(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	correlationID := r.URL.Query().Get("correlation_id")
	if orderID == "" || correlationID == "" {
		writeError(w, http.StatusBadRequest, "order_id and correlation_id are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	// terminal states are served from cache; pending always re-polls
	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyPaymentStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			var cached struct {
				Status string `json:"status"`
				Reason string `json:"reason"`
			}
			if json.Unmarshal([]byte(s), &cached) == nil && terminal(cached.Status) {
				writeJSON(w, http.StatusOK, statusResponse{
					OrderID: orderID,
					Status:  clientStatus(orders.Status(cached.Status)),
					Reason:  cached.Reason,
				})
				return
			}
		}
	}

	out, err := h.Reconciler.PollOrder(ctx, orderID, correlationID)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, checkout.ErrCorrelationMismatch):
			writeError(w, http.StatusConflict, "correlation id does not match order")
		default:
			writeError(w, http.StatusInternalServerError, "status lookup failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		OrderID: out.OrderID,
		Status:  clientStatus(out.Status),
		Reason:  out.Reason,
	})
}

func (h *PaymentsHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ord, err := h.Orders.FindByID(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "order lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":         ord.ID,
		"buyer_id":         ord.BuyerID,
		"seller_id":        ord.SellerID,
		"status":           ord.Status,
		"items":            ord.Items,
		"total_price":      ord.TotalPrice,
		"delivery_address": ord.DeliveryAddress,
		"failure_reason":   ord.FailureReason,
		"created_at":       ord.CreatedAt,
	})
}

func terminal(s string) bool {
	return orders.Status(s).Terminal()
}

// clientStatus maps internal order states onto the pending/completed/
// failed vocabulary the status endpoint promises.
func clientStatus(s orders.Status) string {
	switch s {
	case orders.StatusCompleted:
		return "completed"
	case orders.StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}
