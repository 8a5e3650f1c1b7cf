package checkout

import (
	"context"
	"sync"

	"github.com/CodeLordGh/kash-catalogue-checkout/internal/gateway"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/orders"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// memOrders implements OrderStore in memory with the same conditional
// update semantics as the Postgres repo.
type memOrders struct {
	mu     sync.Mutex
	byID   map[string]*orders.Order
	opErrs struct {
		create    error
		attach    error
		attachNo  bool // force the conditional update to miss
		completed error
	}
	attempts []orders.PaymentAttempt
}

func newMemOrders() *memOrders {
	return &memOrders{byID: map[string]*orders.Order{}}
}

func (m *memOrders) Create(_ context.Context, o *orders.Order) error {
	if m.opErrs.create != nil {
		return m.opErrs.create
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *memOrders) FindByID(_ context.Context, id string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) FindByExternalID(_ context.Context, ext string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byID {
		if ext != "" && o.ExternalID == ext {
			cp := *o
			return &cp, nil
		}
	}
	return nil, orders.ErrNotFound
}

func (m *memOrders) FindByPaymentRef(_ context.Context, ref string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byID {
		if ref != "" && o.PaymentRef == ref {
			cp := *o
			return &cp, nil
		}
	}
	return nil, orders.ErrNotFound
}

func (m *memOrders) AttachPaymentRef(_ context.Context, orderID, ref string) (bool, error) {
	if m.opErrs.attach != nil {
		return false, m.opErrs.attach
	}
	if m.opErrs.attachNo {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[orderID]
	if !ok || o.PaymentRef != "" || o.Status != orders.StatusPending {
		return false, nil
	}
	o.PaymentRef = ref
	o.Status = orders.StatusAwaitingPayment
	return true, nil
}

func (m *memOrders) DeletePending(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.byID[orderID]; ok && o.Status == orders.StatusPending {
		delete(m.byID, orderID)
	}
	return nil
}

func (m *memOrders) MarkCompleted(_ context.Context, orderID, txnID string) (bool, error) {
	if m.opErrs.completed != nil {
		return false, m.opErrs.completed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[orderID]
	if !ok || o.Status != orders.StatusAwaitingPayment {
		return false, nil
	}
	o.Status = orders.StatusCompleted
	return true, nil
}

func (m *memOrders) MarkFailed(_ context.Context, orderID, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[orderID]
	if !ok || o.Status != orders.StatusAwaitingPayment {
		return false, nil
	}
	o.Status = orders.StatusFailed
	o.FailureReason = reason
	return true, nil
}

func (m *memOrders) CreatePaymentAttempt(_ context.Context, a orders.PaymentAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *memOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// memLedger implements Ledger with the all-or-nothing semantics of the
// Postgres version, serialized under one mutex.
type memLedger struct {
	mu           sync.Mutex
	stock        map[string]int // productID|color
	reservations map[string]memReservation
	reserveErr   error
}

type memReservation struct {
	items  []orders.LineItem
	status string
}

func newMemLedger() *memLedger {
	return &memLedger{stock: map[string]int{}, reservations: map[string]memReservation{}}
}

func stockKey(pid, color string) string { return pid + "|" + color }

func (l *memLedger) set(pid, color string, qty int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock[stockKey(pid, color)] = qty
}

func (l *memLedger) get(pid, color string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stock[stockKey(pid, color)]
}

func (l *memLedger) Reserve(_ context.Context, orderID string, items []orders.LineItem) (string, bool, []orders.Shortage, error) {
	if l.reserveErr != nil {
		return "", false, nil, l.reserveErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var shortages []orders.Shortage
	for _, it := range items {
		avail := l.stock[stockKey(it.ProductID, it.Color)]
		if avail < it.Qty {
			shortages = append(shortages, orders.Shortage{
				ProductID: it.ProductID, Color: it.Color, Required: it.Qty, Available: avail,
			})
		}
	}
	if len(shortages) > 0 {
		return "", false, shortages, nil
	}
	for _, it := range items {
		l.stock[stockKey(it.ProductID, it.Color)] -= it.Qty
	}
	token := uuid.NewString()
	l.reservations[token] = memReservation{items: items, status: "RESERVED"}
	return token, true, nil, nil
}

func (l *memLedger) Release(_ context.Context, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.reservations[token]
	if !ok || res.status != "RESERVED" {
		return nil
	}
	for _, it := range res.items {
		l.stock[stockKey(it.ProductID, it.Color)] += it.Qty
	}
	res.status = "RELEASED"
	l.reservations[token] = res
	return nil
}

func (l *memLedger) Commit(_ context.Context, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if res, ok := l.reservations[token]; ok && res.status == "RESERVED" {
		res.status = "COMMITTED"
		l.reservations[token] = res
	}
	return nil
}

func (l *memLedger) status(token string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reservations[token].status
}

// mockGateway records initiate calls and serves canned responses.
type mockGateway struct {
	mu            sync.Mutex
	initiateRef   string
	initiateErr   error
	initiateCalls []initiateCall
	pollResult    gateway.Result
	pollErr       error
	pollCalls     int
}

type initiateCall struct {
	phone   string
	amount  float64
	orderID string
}

func (g *mockGateway) Initiate(_ context.Context, phone string, amount float64, orderID string) (string, error) {
	g.mu.Lock()
	g.initiateCalls = append(g.initiateCalls, initiateCall{phone, amount, orderID})
	g.mu.Unlock()
	if g.initiateErr != nil {
		return "", g.initiateErr
	}
	if g.initiateRef != "" {
		return g.initiateRef, nil
	}
	return uuid.NewString(), nil
}

func (g *mockGateway) PollStatus(_ context.Context, correlationID string) (gateway.Result, error) {
	g.mu.Lock()
	g.pollCalls++
	g.mu.Unlock()
	if g.pollErr != nil {
		return gateway.Result{}, g.pollErr
	}
	res := g.pollResult
	if res.CorrelationID == "" {
		res.CorrelationID = correlationID
	}
	return res, nil
}

func (g *mockGateway) calls() []initiateCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]initiateCall(nil), g.initiateCalls...)
}

// mockPublisher captures published event values.
type mockPublisher struct {
	mu       sync.Mutex
	messages [][]byte
}

func (p *mockPublisher) Publish(_, value []byte, _ ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, value)
}

func (p *mockPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}
