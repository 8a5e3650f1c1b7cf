package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/CodeLordGh/kash-catalogue-checkout/internal/cart"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/checkout"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/gateway"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// CheckoutService is what the handler needs from the orchestrator.
type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Receipt, error)
}

type CheckoutRequestBody struct {
	ExternalID      string      `json:"external_id"`
	Phone           string      `json:"phone"`
	DeliveryAddress string      `json:"delivery_address"`
	TotalPrice      float64     `json:"total_price"`
	Items           []cart.Line `json:"items"`
}

type CheckoutHandler struct {
	Service CheckoutService
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.checkout)
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) {
	// buyer identity comes from the auth layer in front of this service
	buyerID := r.Header.Get("X-Buyer-Id")
	if buyerID == "" {
		writeError(w, http.StatusUnauthorized, "missing buyer identity")
		return
	}

	var body CheckoutRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Phone == "" || len(body.Items) == 0 {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}

	// checkout includes a gateway round trip; give it room
	ctx, cancel := context.WithTimeout(r.Context(), 45*time.Second)
	defer cancel()

	receipt, err := h.Service.Checkout(ctx, checkout.Request{
		ExternalID:      body.ExternalID,
		BuyerID:         buyerID,
		Phone:           body.Phone,
		DeliveryAddress: body.DeliveryAddress,
		Lines:           body.Items,
		DeclaredTotal:   body.TotalPrice,
		TraceID:         middleware.GetReqID(r.Context()),
	})
	if err != nil {
		writeCheckoutError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func writeCheckoutError(w http.ResponseWriter, err error) {
	var stockErr *cart.StockError
	var gwErr *gateway.Error
	switch {
	case errors.As(err, &stockErr):
		writeError(w, http.StatusConflict, stockErr.Error())
	case errors.Is(err, orders.ErrProductNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, cart.ErrPriceMismatch):
		writeError(w, http.StatusBadRequest, "Total price mismatch")
	case errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrMultiSellerCart):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &gwErr):
		writeError(w, http.StatusBadGateway, "Failed to initiate payment")
	default:
		writeError(w, http.StatusInternalServerError, "checkout failed")
	}
}
