package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rohanbasu/trendora-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID  uuid.UUID
	Role    enums.MemberRole
	AgentID *uuid.UUID
	JTI     string
}

// AccessTokenClaims represents the typed JWT issued to clients. AgentID is
// only set for delivery agent tokens and identifies the agent profile row.
type AccessTokenClaims struct {
	UserID  uuid.UUID        `json:"user_id"`
	Role    enums.MemberRole `json:"role"`
	AgentID *uuid.UUID       `json:"agent_id,omitempty"`
	jwt.RegisteredClaims
}
