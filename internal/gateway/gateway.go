package gateway

import (
	"encoding/json"
	"fmt"
)

// Status is the provider-neutral view of a payment's progress.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Result is what reconciliation consumes, whether it came from a pushed
// callback or a poll. Raw keeps the untouched provider payload for audit.
type Result struct {
	CorrelationID string
	Status        Status
	TransactionID string
	Reason        string
	Raw           json.RawMessage
}

type Kind string

const (
	KindNetwork  Kind = "network_error"
	KindAPI      Kind = "api_error"
	KindNotFound Kind = "not_found"
)

// Error distinguishes transport failures from provider rejections so the
// caller can pick retry vs terminal-fail semantics.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("gateway %s: %s (http %d)", e.Op, e.Kind, e.StatusCode)
}

func (e *Error) Unwrap() error { return e.Err }
