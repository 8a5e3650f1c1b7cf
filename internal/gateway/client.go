package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	ProviderMpesa = "mpesa"
	ProviderMTN   = "mtn"

	// refresh the cached token this long before the provider expires it
	tokenSkew = 30 * time.Second
)

type Config struct {
	Provider        string
	BaseURL         string
	Key             string // consumer key / API user
	Secret          string
	SubscriptionKey string // MTN Ocp-Apim-Subscription-Key
	ShortCode       string // M-Pesa business short code
	Passkey         string
	CallbackURL     string
	Timeout         time.Duration
	Currency        string
}

type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "KES"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		now:  time.Now,
	}
}

func (c *Client) Provider() string { return c.cfg.Provider }

// bearer returns the cached OAuth token, fetching a fresh one only when
// missing or inside the expiry skew. Serialized so a burst of checkouts
// performs a single token round trip.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Add(tokenSkew).Before(c.expiry) {
		return c.token, nil
	}

	var req *http.Request
	var err error
	switch c.cfg.Provider {
	case ProviderMTN:
		req, err = http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.BaseURL+"/collection/token/", nil)
		if err == nil {
			req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)
		}
	default: // mpesa
		req, err = http.NewRequestWithContext(ctx, http.MethodGet,
			c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	}
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.Key, c.cfg.Secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Kind: KindNetwork, Op: "token", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: KindAPI, Op: "token", StatusCode: resp.StatusCode}
	}

	var body struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   json.Number `json:"expires_in"` // Daraja sends this as a string
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.AccessToken == "" {
		return "", &Error{Kind: KindAPI, Op: "token", Err: err}
	}
	ttl, _ := body.ExpiresIn.Int64()
	if ttl <= 0 {
		ttl = 3600
	}
	c.token = body.AccessToken
	c.expiry = c.now().Add(time.Duration(ttl) * time.Second)
	return c.token, nil
}

// Initiate asks the provider to charge phone for amount against orderID
// and returns the correlation id a later callback or poll will carry.
func (c *Client) Initiate(ctx context.Context, phone string, amount float64, orderID string) (string, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return "", err
	}
	if c.cfg.Provider == ProviderMTN {
		return c.initiateMTN(ctx, token, phone, amount, orderID)
	}
	return c.initiateMpesa(ctx, token, phone, amount, orderID)
}

func (c *Client) initiateMpesa(ctx context.Context, token, phone string, amount float64, orderID string) (string, error) {
	ts := c.now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.ShortCode + c.cfg.Passkey + ts))

	payload := map[string]string{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          password,
		"Timestamp":         ts,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            fmt.Sprintf("%.0f", amount), // Daraja takes whole units
		"PartyA":            phone,
		"PartyB":            c.cfg.ShortCode,
		"PhoneNumber":       phone,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  orderID,
		"TransactionDesc":   "kash-catalogue order",
	}

	var out struct {
		CheckoutRequestID string `json:"CheckoutRequestID"`
		ResponseCode      string `json:"ResponseCode"`
		ResponseDesc      string `json:"ResponseDescription"`
	}
	if err := c.postJSON(ctx, "initiate", "/mpesa/stkpush/v1/processrequest", token, payload, &out); err != nil {
		return "", err
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		return "", &Error{Kind: KindAPI, Op: "initiate",
			Err: fmt.Errorf("response code %q: %s", out.ResponseCode, out.ResponseDesc)}
	}
	return out.CheckoutRequestID, nil
}

func (c *Client) initiateMTN(ctx context.Context, token, phone string, amount float64, orderID string) (string, error) {
	// MoMo has the caller mint the reference id up front
	refID := uuid.NewString()
	payload := map[string]any{
		"amount":     fmt.Sprintf("%.2f", amount),
		"currency":   c.cfg.Currency,
		"externalId": orderID,
		"payer": map[string]string{
			"partyIdType": "MSISDN",
			"partyId":     phone,
		},
		"payerMessage": "kash-catalogue order",
		"payeeNote":    orderID,
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/collection/v1_0/requesttopay", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Reference-Id", refID)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Kind: KindNetwork, Op: "initiate", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return "", &Error{Kind: KindAPI, Op: "initiate", StatusCode: resp.StatusCode}
	}
	return refID, nil
}

// PollStatus asks the provider for the current state of a payment. The
// client only reports provider facts; it never touches the order.
func (c *Client) PollStatus(ctx context.Context, correlationID string) (Result, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return Result{}, err
	}
	if c.cfg.Provider == ProviderMTN {
		return c.pollMTN(ctx, token, correlationID)
	}
	return c.pollMpesa(ctx, token, correlationID)
}

func (c *Client) pollMpesa(ctx context.Context, token, correlationID string) (Result, error) {
	ts := c.now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.ShortCode + c.cfg.Passkey + ts))
	payload := map[string]string{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          password,
		"Timestamp":         ts,
		"CheckoutRequestID": correlationID,
	}

	raw, status, err := c.post(ctx, "poll", "/mpesa/stkpushquery/v1/query", token, payload)
	if err != nil {
		return Result{}, err
	}
	if status == http.StatusNotFound {
		return Result{}, &Error{Kind: KindNotFound, Op: "poll", StatusCode: status}
	}
	if status != http.StatusOK {
		// Daraja answers 500 with "transaction is being processed" while
		// the push is still on the handset
		var apiErr struct {
			ErrorCode    string `json:"errorCode"`
			ErrorMessage string `json:"errorMessage"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.ErrorCode == "500.001.1001" {
			return Result{CorrelationID: correlationID, Status: StatusPending, Raw: raw}, nil
		}
		return Result{}, &Error{Kind: KindAPI, Op: "poll", StatusCode: status}
	}

	var out struct {
		ResponseCode string `json:"ResponseCode"`
		ResultCode   string `json:"ResultCode"`
		ResultDesc   string `json:"ResultDesc"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, &Error{Kind: KindAPI, Op: "poll", Err: err}
	}
	res := Result{CorrelationID: correlationID, Raw: raw, Reason: out.ResultDesc}
	switch {
	case out.ResultCode == "0":
		res.Status = StatusCompleted
	case out.ResultCode == "":
		res.Status = StatusPending
	default:
		res.Status = StatusFailed
	}
	return res, nil
}

func (c *Client) pollMTN(ctx context.Context, token, correlationID string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/collection/v1_0/requesttopay/"+correlationID, nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, &Error{Kind: KindNetwork, Op: "poll", Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return Result{}, &Error{Kind: KindNotFound, Op: "poll", StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, &Error{Kind: KindAPI, Op: "poll", StatusCode: resp.StatusCode}
	}

	var out struct {
		Status                 string          `json:"status"`
		FinancialTransactionID string          `json:"financialTransactionId"`
		Reason                 json.RawMessage `json:"reason"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, &Error{Kind: KindAPI, Op: "poll", Err: err}
	}
	return Result{
		CorrelationID: correlationID,
		Status:        momoStatus(out.Status),
		TransactionID: out.FinancialTransactionID,
		Reason:        momoReason(out.Reason),
		Raw:           raw,
	}, nil
}

func (c *Client) postJSON(ctx context.Context, op, path, token string, payload, out any) error {
	raw, status, err := c.post(ctx, op, path, token, payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &Error{Kind: KindAPI, Op: op, StatusCode: status}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Kind: KindAPI, Op: op, Err: err}
	}
	return nil
}

func (c *Client) post(ctx context.Context, op, path, token string, payload any) ([]byte, int, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	return raw, resp.StatusCode, nil
}
