package gateway

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrUnknownPayload = errors.New("unrecognized callback payload")

// M-Pesa STK push callback envelope (Daraja).
type stkEnvelope struct {
	Body struct {
		StkCallback struct {
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// MTN MoMo request-to-pay callback.
type momoEnvelope struct {
	ReferenceID            string          `json:"referenceId"`
	ExternalID             string          `json:"externalId"`
	Status                 string          `json:"status"`
	FinancialTransactionID string          `json:"financialTransactionId"`
	Reason                 json.RawMessage `json:"reason"`
}

// ParseCallback normalizes a provider callback into a Result. Detection
// is by shape: the Daraja envelope nests under Body.stkCallback, MoMo is
// flat. Anything else is rejected at the boundary.
func ParseCallback(body []byte) (Result, error) {
	var stk stkEnvelope
	if err := json.Unmarshal(body, &stk); err == nil && stk.Body.StkCallback.CheckoutRequestID != "" {
		cb := stk.Body.StkCallback
		res := Result{
			CorrelationID: cb.CheckoutRequestID,
			Raw:           body,
			Reason:        cb.ResultDesc,
		}
		if cb.ResultCode == 0 {
			res.Status = StatusCompleted
			res.Reason = ""
			for _, item := range cb.CallbackMetadata.Item {
				if item.Name == "MpesaReceiptNumber" {
					if s, ok := item.Value.(string); ok {
						res.TransactionID = s
					}
				}
			}
		} else {
			res.Status = StatusFailed
		}
		return res, nil
	}

	var momo momoEnvelope
	if err := json.Unmarshal(body, &momo); err == nil && momo.ReferenceID != "" && momo.Status != "" {
		return Result{
			CorrelationID: momo.ReferenceID,
			Status:        momoStatus(momo.Status),
			TransactionID: momo.FinancialTransactionID,
			Reason:        momoReason(momo.Reason),
			Raw:           body,
		}, nil
	}

	return Result{}, ErrUnknownPayload
}

func momoStatus(s string) Status {
	switch strings.ToUpper(s) {
	case "SUCCESSFUL":
		return StatusCompleted
	case "FAILED", "REJECTED", "TIMEOUT":
		return StatusFailed
	default:
		return StatusPending
	}
}

// reason arrives either as a bare string or as {"code","message"}
func momoReason(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		if obj.Message != "" {
			return obj.Message
		}
		return obj.Code
	}
	return string(raw)
}
