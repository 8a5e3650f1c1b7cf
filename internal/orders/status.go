package orders

type Status string

const (
	StatusPending         Status = "PENDING"
	StatusAwaitingPayment Status = "AWAITING_PAYMENT"
	StatusCompleted       Status = "COMPLETED"
	StatusFailed          Status = "FAILED"
)

// PENDING only exists between order creation and payment initiation; a
// failed initiation deletes the order rather than transitioning it.
var validNext = map[Status]map[Status]bool{
	StatusPending:         {StatusAwaitingPayment: true},
	StatusAwaitingPayment: {StatusCompleted: true, StatusFailed: true},
	StatusCompleted:       {},
	StatusFailed:          {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
