package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallback_MpesaSuccess(t *testing.T) {
	body := []byte(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_191220191020363925",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": 20.00},
						{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
						{"Name": "TransactionDate", "Value": 20191219102115},
						{"Name": "PhoneNumber", "Value": 254708374149}
					]
				}
			}
		}
	}`)

	res, err := ParseCallback(body)
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", res.CorrelationID)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "NLJ7RT61SV", res.TransactionID)
	assert.Empty(t, res.Reason)
}

func TestParseCallback_MpesaFailure(t *testing.T) {
	body := []byte(`{
		"Body": {
			"stkCallback": {
				"CheckoutRequestID": "ws_CO_191220191020363925",
				"ResultCode": 1032,
				"ResultDesc": "Request cancelled by user."
			}
		}
	}`)

	res, err := ParseCallback(body)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "Request cancelled by user.", res.Reason)
	assert.Empty(t, res.TransactionID)
}

func TestParseCallback_MomoSuccess(t *testing.T) {
	body := []byte(`{
		"referenceId": "07a0c8e7-3c11-4489-a1b2-0f6d3f7c9e31",
		"externalId": "order-1",
		"status": "SUCCESSFUL",
		"financialTransactionId": "1308275431"
	}`)

	res, err := ParseCallback(body)
	require.NoError(t, err)
	assert.Equal(t, "07a0c8e7-3c11-4489-a1b2-0f6d3f7c9e31", res.CorrelationID)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "1308275431", res.TransactionID)
}

func TestParseCallback_MomoFailureReasonShapes(t *testing.T) {
	cases := []struct {
		name       string
		reason     string
		wantReason string
	}{
		{"string reason", `"PAYER_NOT_FOUND"`, "PAYER_NOT_FOUND"},
		{"object reason", `{"code":"PAYER_LIMIT_REACHED","message":"payer limit reached"}`, "payer limit reached"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := []byte(`{
				"referenceId": "07a0c8e7-3c11-4489-a1b2-0f6d3f7c9e31",
				"status": "FAILED",
				"reason": ` + tc.reason + `
			}`)

			res, err := ParseCallback(body)
			require.NoError(t, err)
			assert.Equal(t, StatusFailed, res.Status)
			assert.Equal(t, tc.wantReason, res.Reason)
		})
	}
}

func TestParseCallback_MomoPendingStatus(t *testing.T) {
	body := []byte(`{"referenceId":"ref-1","status":"PENDING"}`)

	res, err := ParseCallback(body)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)
}

func TestParseCallback_UnknownPayload(t *testing.T) {
	for _, body := range []string{
		`{"hello":"world"}`,
		`not json at all`,
		`{"Body":{"stkCallback":{}}}`,
		`{"referenceId":"ref-1"}`,
	} {
		_, err := ParseCallback([]byte(body))
		assert.ErrorIs(t, err, ErrUnknownPayload, "payload: %s", body)
	}
}
