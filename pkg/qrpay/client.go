package qrpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rohanbasu/trendora-backend/pkg/config"
	pkgerrors "github.com/rohanbasu/trendora-backend/pkg/errors"
	"github.com/rohanbasu/trendora-backend/pkg/logger"
)

var (
	errBaseURLRequired   = errors.New("qrpay base url is required")
	errAPIKeyRequired    = errors.New("qrpay api key is required")
	errAPISecretRequired = errors.New("qrpay api secret is required")
	errLoggerRequired    = errors.New("qrpay logger is required")
)

// ErrIntentExists reports that the provider already holds an intent for the
// order slug. Callers recover the original intent from their attempt history.
var ErrIntentExists = errors.New("payment intent already exists for order slug")

// Client calls the dynamic-QR payment gateway with centralized auth, logging,
// and error mapping.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	apiSecret  string
	logger     *logger.Logger
}

// Intent is the provider-side payment intent for one order.
type Intent struct {
	PaymentID   string
	OrderSlug   string
	AmountCents int
	Status      string
}

// Code is the scannable payload generated for an intent.
type Code struct {
	PaymentID string
	Code      string
	Data      string
}

// SettlementStatus is the provider's view of whether an intent was paid.
type SettlementStatus struct {
	PaymentID     string
	Paid          bool
	TransactionID string
}

// CreateIntentParams carries the inputs for registering a payment intent.
type CreateIntentParams struct {
	OrderSlug   string
	AmountCents int
}

// NewClient initializes the QR gateway wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.QRPayConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	apiSecret := strings.TrimSpace(cfg.APISecret)
	if apiSecret == "" {
		return nil, errAPISecretRequired
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		logger:     logg,
	}

	logg.Info(ctx, "qrpay client initialized")
	return c, nil
}

// CreateIntent registers a payment intent for the order slug. Returns
// ErrIntentExists when the provider already holds one for the slug.
func (c *Client) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	slug := strings.TrimSpace(params.OrderSlug)
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order slug is required to create a payment intent")
	}
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	c.log(ctx, "request", "create_intent", map[string]any{
		"order_slug": slug,
		"amount":     params.AmountCents,
	})

	var resp struct {
		PaymentID   string `json:"payment_id"`
		OrderSlug   string `json:"order_slug"`
		AmountCents int    `json:"amount_cents"`
		Status      string `json:"status"`
	}
	err := c.doRequest(ctx, http.MethodPost, "/v1/intents", map[string]any{
		"order_slug":   slug,
		"amount_cents": params.AmountCents,
	}, &resp)
	if err != nil {
		if errors.Is(err, ErrIntentExists) {
			c.log(ctx, "response", "create_intent", map[string]any{"order_slug": slug, "exists": true})
			return nil, err
		}
		c.log(ctx, "error", "create_intent", map[string]any{"error": err.Error()})
		return nil, err
	}
	if resp.PaymentID == "" {
		err := pkgerrors.New(pkgerrors.CodeDependency, "qrpay provider returned an empty payment id")
		c.log(ctx, "error", "create_intent", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "create_intent", map[string]any{
		"payment_id": resp.PaymentID,
		"status":     resp.Status,
	})
	return &Intent{
		PaymentID:   resp.PaymentID,
		OrderSlug:   resp.OrderSlug,
		AmountCents: resp.AmountCents,
		Status:      resp.Status,
	}, nil
}

// GenerateCode asks the provider for the scannable payload of an intent.
func (c *Client) GenerateCode(ctx context.Context, paymentID string) (*Code, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required to generate a code")
	}

	c.log(ctx, "request", "generate_code", map[string]any{"payment_id": paymentID})

	var resp struct {
		PaymentID string `json:"payment_id"`
		Code      string `json:"code"`
		Data      string `json:"data"`
	}
	path := fmt.Sprintf("/v1/intents/%s/code", paymentID)
	if err := c.doRequest(ctx, http.MethodPost, path, nil, &resp); err != nil {
		c.log(ctx, "error", "generate_code", map[string]any{"error": err.Error()})
		return nil, err
	}
	if resp.Code == "" {
		err := pkgerrors.New(pkgerrors.CodeDependency, "qrpay provider returned an empty code")
		c.log(ctx, "error", "generate_code", map[string]any{"error": err.Error()})
		return nil, err
	}
	if resp.PaymentID == "" {
		resp.PaymentID = paymentID
	}

	c.log(ctx, "response", "generate_code", map[string]any{"payment_id": resp.PaymentID})
	return &Code{PaymentID: resp.PaymentID, Code: resp.Code, Data: resp.Data}, nil
}

// Validate polls the provider for the settlement state of an intent.
func (c *Client) Validate(ctx context.Context, paymentID string) (*SettlementStatus, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required to validate a payment")
	}

	c.log(ctx, "request", "validate", map[string]any{"payment_id": paymentID})

	var resp struct {
		PaymentID     string `json:"payment_id"`
		Paid          bool   `json:"paid"`
		TransactionID string `json:"transaction_id"`
	}
	path := fmt.Sprintf("/v1/intents/%s", paymentID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		c.log(ctx, "error", "validate", map[string]any{"error": err.Error()})
		return nil, err
	}
	if resp.PaymentID == "" {
		resp.PaymentID = paymentID
	}

	c.log(ctx, "response", "validate", map[string]any{
		"payment_id": resp.PaymentID,
		"paid":       resp.Paid,
	})
	return &SettlementStatus{
		PaymentID:     resp.PaymentID,
		Paid:          resp.Paid,
		TransactionID: resp.TransactionID,
	}, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding qrpay request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building qrpay request")
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("X-Api-Secret", c.apiSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "qrpay provider unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading qrpay provider response")
	}

	if resp.StatusCode >= 400 {
		return c.mapProviderError(resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding qrpay provider response")
		}
	}
	return nil
}

func (c *Client) mapProviderError(status int, raw []byte) error {
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(raw, &payload)

	msg := strings.TrimSpace(payload.Message)
	if msg == "" {
		msg = fmt.Sprintf("qrpay provider returned status %d", status)
	}

	switch {
	case status == http.StatusConflict || payload.Code == "INTENT_EXISTS":
		return ErrIntentExists
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return pkgerrors.New(pkgerrors.CodeDependency, "qrpay provider rejected credentials")
	case status == http.StatusNotFound:
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return pkgerrors.New(pkgerrors.CodeValidation, msg)
	case status >= 500:
		return pkgerrors.New(pkgerrors.CodeDependency, msg)
	default:
		return pkgerrors.New(pkgerrors.CodeDependency, msg)
	}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("qrpay %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("qrpay %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"secret", "token", "signature"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}
