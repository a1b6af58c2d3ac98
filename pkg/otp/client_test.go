package otp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rohanbasu/trendora-backend/pkg/config"
	pkgerrors "github.com/rohanbasu/trendora-backend/pkg/errors"
	"github.com/rohanbasu/trendora-backend/pkg/logger"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.OTPConfig{
		BaseURL:     srv.URL,
		APIKey:      "test-key",
		SenderID:    "TRNDRA",
		ExpiryMins:  10,
		HTTPTimeout: 2 * time.Second,
	}
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	client, err := NewClient(context.Background(), cfg, logg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestIssueReturnsChallenge(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/otp" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "chal-123",
			"expires_at": time.Now().Add(10 * time.Minute).UTC(),
		})
	})

	client := newTestClient(t, handler)
	challenge, err := client.Issue(context.Background(), IssueParams{Phone: "+919876543210", Reference: "ORD-1001"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if challenge.ProviderID != "chal-123" {
		t.Fatalf("unexpected challenge id %q", challenge.ProviderID)
	}
	if challenge.ExpiresAt.IsZero() {
		t.Fatal("expected expiry to be set")
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody["phone"] != "+919876543210" {
		t.Fatalf("phone not forwarded, got %v", gotBody["phone"])
	}
	if gotBody["reference"] != "ORD-1001" {
		t.Fatalf("reference not forwarded, got %v", gotBody["reference"])
	}
}

func TestIssueRequiresPhone(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("provider should not be called")
	}))

	_, err := client.Issue(context.Background(), IssueParams{})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIssueMapsProviderOutage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"sms gateway down"}`, http.StatusBadGateway)
	}))

	_, err := client.Issue(context.Background(), IssueParams{Phone: "+919876543210"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestVerifySuccessAndMismatch(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Code string `json:"code"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{"verified": body.Code == "4242"})
	})

	client := newTestClient(t, handler)
	if err := client.Verify(context.Background(), "chal-123", "4242"); err != nil {
		t.Fatalf("verify: %v", err)
	}

	err := client.Verify(context.Background(), "chal-123", "0000")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error on mismatch, got %v", err)
	}
}

func TestVerifyUnknownChallenge(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"challenge not found"}`, http.StatusNotFound)
	}))

	err := client.Verify(context.Background(), "missing", "4242")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestResendKeepsChallengeID(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/otp/chal-123/resend" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))

	challenge, err := client.Resend(context.Background(), "chal-123")
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if challenge.ProviderID != "chal-123" {
		t.Fatalf("unexpected challenge id %q", challenge.ProviderID)
	}
}

func TestRedactMasksPhone(t *testing.T) {
	c := &Client{}
	if got := c.redact("phone", "+919876543210"); got == "+919876543210" {
		t.Fatalf("expected masked phone, got %v", got)
	}
	if got := c.redact("code", "4242"); got != "[REDACTED]" {
		t.Fatalf("expected redacted code, got %v", got)
	}
	if got := c.redact("challenge_id", "chal-1"); got != "chal-1" {
		t.Fatalf("unexpected redaction for safe key")
	}
}
