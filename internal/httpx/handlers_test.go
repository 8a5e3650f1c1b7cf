package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeLordGh/kash-catalogue-checkout/internal/cart"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/checkout"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/gateway"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/orders"
)

type stubCheckout struct {
	receipt *checkout.Receipt
	err     error
	gotReq  checkout.Request
}

func (s *stubCheckout) Checkout(_ context.Context, req checkout.Request) (*checkout.Receipt, error) {
	s.gotReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.receipt, nil
}

type stubReconciler struct {
	outcome       *checkout.Outcome
	callbackErr   error
	pollErr       error
	callbacks     []gateway.Result
	pollOrderIDs  []string
	pollCorrIDs   []string
}

func (s *stubReconciler) HandleCallback(_ context.Context, res gateway.Result) (*checkout.Outcome, error) {
	s.callbacks = append(s.callbacks, res)
	if s.callbackErr != nil {
		return nil, s.callbackErr
	}
	return s.outcome, nil
}

func (s *stubReconciler) PollOrder(_ context.Context, orderID, correlationID string) (*checkout.Outcome, error) {
	s.pollOrderIDs = append(s.pollOrderIDs, orderID)
	s.pollCorrIDs = append(s.pollCorrIDs, correlationID)
	if s.pollErr != nil {
		return nil, s.pollErr
	}
	return s.outcome, nil
}

type stubOrderFinder struct {
	order *orders.Order
	err   error
}

func (s *stubOrderFinder) FindByID(_ context.Context, _ string) (*orders.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.order, nil
}

func checkoutBody() string {
	return `{
		"external_id": "ext-1",
		"phone": "254700000001",
		"delivery_address": "12 Moi Ave",
		"total_price": 20.00,
		"items": [{"product_id":"P1","color":"red","qty":2}]
	}`
}

func TestCheckoutHandler_Success(t *testing.T) {
	svc := &stubCheckout{receipt: &checkout.Receipt{
		OrderID:       "O1",
		CorrelationID: "ws_CO_1",
		TotalPrice:    20.00,
	}}
	h := &CheckoutHandler{Service: svc}
	r := NewRouter()
	h.Register(r)

	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(checkoutBody()))
	req.Header.Set("X-Buyer-Id", "B1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "B1", svc.gotReq.BuyerID)
	assert.Equal(t, "ext-1", svc.gotReq.ExternalID)
	assert.InDelta(t, 20.00, svc.gotReq.DeclaredTotal, 0.001)

	var out checkout.Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "O1", out.OrderID)
	assert.Equal(t, "ws_CO_1", out.CorrelationID)
}

func TestCheckoutHandler_MissingBuyer(t *testing.T) {
	h := &CheckoutHandler{Service: &stubCheckout{}}
	r := NewRouter()
	h.Register(r)

	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(checkoutBody()))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckoutHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"insufficient stock", &cart.StockError{ProductID: "P1", Color: "red", Required: 2, Available: 1}, http.StatusConflict},
		{"unknown product", orders.ErrProductNotFound, http.StatusNotFound},
		{"price mismatch", cart.ErrPriceMismatch, http.StatusBadRequest},
		{"multi seller", cart.ErrMultiSellerCart, http.StatusBadRequest},
		{"gateway down", &gateway.Error{Kind: gateway.KindNetwork, Op: "initiate"}, http.StatusBadGateway},
		{"storage failure", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &CheckoutHandler{Service: &stubCheckout{err: tc.err}}
			r := NewRouter()
			h.Register(r)

			req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(checkoutBody()))
			req.Header.Set("X-Buyer-Id", "B1")
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantCode, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestCheckoutHandler_BadJSON(t *testing.T) {
	h := &CheckoutHandler{Service: &stubCheckout{}}
	r := NewRouter()
	h.Register(r)

	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{broken`))
	req.Header.Set("X-Buyer-Id", "B1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallback_AlwaysAcks(t *testing.T) {
	cases := []struct {
		name string
		body string
		rc   *stubReconciler
	}{
		{"valid callback", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0}}}`,
			&stubReconciler{outcome: &checkout.Outcome{OrderID: "O1", Status: orders.StatusCompleted, Applied: true}}},
		{"unknown correlation", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_zzz","ResultCode":0}}}`,
			&stubReconciler{callbackErr: orders.ErrNotFound}},
		{"garbage payload", `{"hello":"world"}`, &stubReconciler{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &PaymentsHandler{Reconciler: tc.rc}
			r := NewRouter()
			h.Register(r)

			req := httptest.NewRequest(http.MethodPost, "/payments/callback", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			var ack callbackAck
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
			assert.Equal(t, 0, ack.ResultCode)
			assert.Equal(t, "Accepted", ack.ResultDesc)
		})
	}
}

func TestCallback_GarbageNeverReachesReconciler(t *testing.T) {
	rc := &stubReconciler{}
	h := &PaymentsHandler{Reconciler: rc}
	r := NewRouter()
	h.Register(r)

	req := httptest.NewRequest(http.MethodPost, "/payments/callback", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rc.callbacks)
}

func TestStatus_PollPath(t *testing.T) {
	rc := &stubReconciler{outcome: &checkout.Outcome{
		OrderID: "O1",
		Status:  orders.StatusCompleted,
	}}
	h := &PaymentsHandler{Reconciler: rc}
	r := NewRouter()
	h.Register(r)

	req := httptest.NewRequest(http.MethodGet, "/payments/status?order_id=O1&correlation_id=ws_CO_1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "O1", out.OrderID)
	assert.Equal(t, "completed", out.Status)
	require.Len(t, rc.pollOrderIDs, 1)
	assert.Equal(t, "ws_CO_1", rc.pollCorrIDs[0])
}

func TestStatus_AwaitingPaymentReadsAsPending(t *testing.T) {
	rc := &stubReconciler{outcome: &checkout.Outcome{
		OrderID: "O1",
		Status:  orders.StatusAwaitingPayment,
	}}
	h := &PaymentsHandler{Reconciler: rc}
	r := NewRouter()
	h.Register(r)

	req := httptest.NewRequest(http.MethodGet, "/payments/status?order_id=O1&correlation_id=ws_CO_1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "pending", out.Status)
}

func TestStatus_ErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		url      string
		pollErr  error
		wantCode int
	}{
		{"missing params", "/payments/status?order_id=O1", nil, http.StatusBadRequest},
		{"unknown order", "/payments/status?order_id=O1&correlation_id=c1", orders.ErrNotFound, http.StatusNotFound},
		{"mismatched correlation", "/payments/status?order_id=O1&correlation_id=c1", checkout.ErrCorrelationMismatch, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &PaymentsHandler{Reconciler: &stubReconciler{pollErr: tc.pollErr}}
			r := NewRouter()
			h.Register(r)

			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantCode, rec.Code)
		})
	}
}

func TestGetOrder(t *testing.T) {
	h := &PaymentsHandler{Orders: &stubOrderFinder{order: &orders.Order{
		ID:         "O1",
		BuyerID:    "B1",
		SellerID:   "S1",
		Status:     orders.StatusCompleted,
		TotalPrice: 20.00,
	}}}
	r := NewRouter()
	h.Register(r)

	req := httptest.NewRequest(http.MethodGet, "/orders/O1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "O1", out["order_id"])
	assert.Equal(t, string(orders.StatusCompleted), out["status"])
}

func TestGetOrder_NotFound(t *testing.T) {
	h := &PaymentsHandler{Orders: &stubOrderFinder{err: orders.ErrNotFound}}
	r := NewRouter()
	h.Register(r)

	req := httptest.NewRequest(http.MethodGet, "/orders/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
