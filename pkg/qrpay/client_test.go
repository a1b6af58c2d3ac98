package qrpay

import (
	"context"
	"encoding/json"
	"errors"
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

	cfg := config.QRPayConfig{
		BaseURL:     srv.URL,
		APIKey:      "key",
		APISecret:   "secret",
		HTTPTimeout: 2 * time.Second,
	}
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	client, err := NewClient(context.Background(), cfg, logg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestCreateIntentReturnsIntent(t *testing.T) {
	var gotKey, gotSecret string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/intents" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("X-Api-Key")
		gotSecret = r.Header.Get("X-Api-Secret")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"payment_id":   "pay-1",
			"order_slug":   "ORD-1001",
			"amount_cents": 24500,
			"status":       "created",
		})
	})

	client := newTestClient(t, handler)
	intent, err := client.CreateIntent(context.Background(), CreateIntentParams{OrderSlug: "ORD-1001", AmountCents: 24500})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.PaymentID != "pay-1" || intent.OrderSlug != "ORD-1001" || intent.AmountCents != 24500 {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if gotKey != "key" || gotSecret != "secret" {
		t.Fatalf("credentials not forwarded: key=%q secret=%q", gotKey, gotSecret)
	}
}

func TestCreateIntentConflictReturnsErrIntentExists(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "INTENT_EXISTS", "message": "order slug taken"})
	}))

	_, err := client.CreateIntent(context.Background(), CreateIntentParams{OrderSlug: "ORD-1001", AmountCents: 100})
	if !errors.Is(err, ErrIntentExists) {
		t.Fatalf("expected ErrIntentExists, got %v", err)
	}
}

func TestCreateIntentValidatesInput(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("provider should not be called")
	}))

	_, err := client.CreateIntent(context.Background(), CreateIntentParams{OrderSlug: "", AmountCents: 100})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = client.CreateIntent(context.Background(), CreateIntentParams{OrderSlug: "ORD-1", AmountCents: 0})
	typed = pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for amount, got %v", err)
	}
}

func TestGenerateCode(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/intents/pay-1/code" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "QRDATA", "data": "upi://pay?x=1"})
	}))

	code, err := client.GenerateCode(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if code.Code != "QRDATA" || code.PaymentID != "pay-1" {
		t.Fatalf("unexpected code %+v", code)
	}
}

func TestValidateReportsSettlement(t *testing.T) {
	paid := false
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"payment_id":     "pay-1",
			"paid":           paid,
			"transaction_id": "txn-9",
		})
	}))

	status, err := client.Validate(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if status.Paid {
		t.Fatal("expected unpaid status")
	}

	paid = true
	status, err = client.Validate(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !status.Paid || status.TransactionID != "txn-9" {
		t.Fatalf("unexpected settlement %+v", status)
	}
}

func TestValidateUnknownIntent(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"intent not found"}`, http.StatusNotFound)
	}))

	_, err := client.Validate(context.Background(), "missing")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}
