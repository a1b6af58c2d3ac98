package otp

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
	"github.com/rohanbasu/trendora-backend/pkg/types"
)

var (
	errBaseURLRequired = errors.New("otp base url is required")
	errAPIKeyRequired  = errors.New("otp api key is required")
	errLoggerRequired  = errors.New("otp logger is required")
)

// Client calls the SMS one-time-code provider with centralized auth, logging,
// and error mapping. The raw code never transits this process; the provider
// delivers it to the phone and verifies it server side.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	senderID   string
	expiryMins int
	logger     *logger.Logger
}

// Challenge is the provider handle for one issued code.
type Challenge struct {
	ProviderID string
	ExpiresAt  time.Time
}

// IssueParams carries the inputs for sending a fresh code.
type IssueParams struct {
	Phone     string
	Reference string
}

// NewClient initializes the OTP wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.OTPConfig, logg *logger.Logger) (*Client, error) {
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

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		senderID:   strings.TrimSpace(cfg.SenderID),
		expiryMins: cfg.ExpiryMins,
		logger:     logg,
	}

	logg.Info(ctx, "otp client initialized")
	return c, nil
}

// Issue sends a fresh code to the phone and returns the provider handle.
func (c *Client) Issue(ctx context.Context, params IssueParams) (*Challenge, error) {
	phone := strings.TrimSpace(params.Phone)
	if phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone is required to issue an otp")
	}

	body := map[string]any{
		"phone":          phone,
		"reference":      params.Reference,
		"sender_id":      c.senderID,
		"expiry_minutes": c.expiryMins,
	}
	c.log(ctx, "request", "issue", map[string]any{
		"phone":     phone,
		"reference": params.Reference,
	})

	var resp struct {
		ID        string    `json:"id"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/v1/otp", body, &resp); err != nil {
		c.log(ctx, "error", "issue", map[string]any{"error": err.Error()})
		return nil, err
	}
	if resp.ID == "" {
		err := pkgerrors.New(pkgerrors.CodeDependency, "otp provider returned an empty challenge id")
		c.log(ctx, "error", "issue", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "issue", map[string]any{"challenge_id": resp.ID})
	return &Challenge{ProviderID: resp.ID, ExpiresAt: resp.ExpiresAt}, nil
}

// Resend asks the provider to redeliver the code for an existing challenge.
func (c *Client) Resend(ctx context.Context, providerID string) (*Challenge, error) {
	if strings.TrimSpace(providerID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "challenge id is required to resend an otp")
	}

	c.log(ctx, "request", "resend", map[string]any{"challenge_id": providerID})

	var resp struct {
		ID        string    `json:"id"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	path := fmt.Sprintf("/v1/otp/%s/resend", providerID)
	if err := c.doRequest(ctx, http.MethodPost, path, nil, &resp); err != nil {
		c.log(ctx, "error", "resend", map[string]any{"error": err.Error()})
		return nil, err
	}
	if resp.ID == "" {
		resp.ID = providerID
	}

	c.log(ctx, "response", "resend", map[string]any{"challenge_id": resp.ID})
	return &Challenge{ProviderID: resp.ID, ExpiresAt: resp.ExpiresAt}, nil
}

// Verify checks the submitted code against the provider-held challenge.
func (c *Client) Verify(ctx context.Context, providerID, code string) error {
	if strings.TrimSpace(providerID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "challenge id is required to verify an otp")
	}
	if strings.TrimSpace(code) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "otp code is required")
	}

	c.log(ctx, "request", "verify", map[string]any{"challenge_id": providerID})

	var resp struct {
		Verified bool `json:"verified"`
	}
	path := fmt.Sprintf("/v1/otp/%s/verify", providerID)
	if err := c.doRequest(ctx, http.MethodPost, path, map[string]any{"code": code}, &resp); err != nil {
		c.log(ctx, "error", "verify", map[string]any{"error": err.Error()})
		return err
	}
	if !resp.Verified {
		return pkgerrors.New(pkgerrors.CodeValidation, "otp verification failed")
	}

	c.log(ctx, "response", "verify", map[string]any{"challenge_id": providerID})
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding otp request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building otp request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "otp provider unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading otp provider response")
	}

	if resp.StatusCode >= 400 {
		return c.mapProviderError(resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding otp provider response")
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
		msg = fmt.Sprintf("otp provider returned status %d", status)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return pkgerrors.New(pkgerrors.CodeDependency, "otp provider rejected credentials")
	case status == http.StatusNotFound:
		return pkgerrors.New(pkgerrors.CodeNotFound, "otp challenge not found")
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return pkgerrors.New(pkgerrors.CodeValidation, msg)
	case status == http.StatusTooManyRequests:
		return pkgerrors.New(pkgerrors.CodeDependency, "otp provider throttled the request")
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
		c.logger.Error(ctx, fmt.Sprintf("otp %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("otp %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	if strings.Contains(lower, "phone") {
		return types.MaskPhone(fmt.Sprint(value))
	}
	for _, sensitive := range []string{"code", "secret", "token"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}
