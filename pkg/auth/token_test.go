package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rohanbasu/trendora-backend/pkg/config"
	"github.com/rohanbasu/trendora-backend/pkg/enums"
)

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "trendora",
		ExpirationMinutes: 30,
	}
	now := time.Now().UTC()
	userID := uuid.New()
	agentID := uuid.New()

	payload := AccessTokenPayload{
		UserID:  userID,
		Role:    enums.MemberRoleAgent,
		AgentID: &agentID,
	}

	token, err := MintAccessToken(cfg, now, payload)
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}

	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.Role != enums.MemberRoleAgent {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.AgentID == nil || *claims.AgentID != agentID {
		t.Fatalf("agent id not preserved")
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}

	exp := now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v (diff %v)", exp.UTC(), claims.ExpiresAt.UTC(), diff)
	}
}

func TestMintAccessTokenRequiresAgentID(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "trendora",
		ExpirationMinutes: 10,
	}

	_, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.MemberRoleAgent,
	})
	if err == nil || !strings.Contains(err.Error(), "agent id") {
		t.Fatalf("expected agent id error, got %v", err)
	}
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "trendora",
		ExpirationMinutes: 10,
	}
	now := time.Now()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.MemberRoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	tampered := config.JWTConfig{Secret: "other-secret", Issuer: cfg.Issuer}
	if _, err := ParseAccessToken(tampered, token); err == nil {
		t.Fatal("expected signature validation failure")
	}
}

func TestParseAccessTokenWrongIssuer(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "trendora",
		ExpirationMinutes: 10,
	}

	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.MemberRoleBuyer,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	other := config.JWTConfig{Secret: cfg.Secret, Issuer: "someone-else"}
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("expected issuer validation failure")
	}
}
