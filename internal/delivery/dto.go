package delivery

import (
	"time"

	"github.com/google/uuid"

	"github.com/rohanbasu/trendora-backend/pkg/db/models"
	"github.com/rohanbasu/trendora-backend/pkg/enums"
)

// PaymentMode identifies which collection flow a payload describes.
type PaymentMode string

const (
	PaymentModeOTP PaymentMode = "otp"
	PaymentModeQR  PaymentMode = "qr"
)

// Actor identifies the delivery agent performing a transition.
type Actor struct {
	AgentID uuid.UUID
	UserID  uuid.UUID
}

// AcceptInput carries the data for accepting an assigned order.
type AcceptInput struct {
	OrderID uuid.UUID
	Actor   Actor
}

// RejectInput carries the data for rejecting an assigned order.
type RejectInput struct {
	OrderID uuid.UUID
	Actor   Actor
	Reason  *string
}

// ReachedSellerInput records arrival at the pickup location.
type ReachedSellerInput struct {
	OrderID uuid.UUID
	Actor   Actor
}

// CompletePickupInput carries the seller handoff verification.
type CompletePickupInput struct {
	OrderID          uuid.UUID
	Actor            Actor
	VerificationCode string
	Notes            *string
}

// ReachedBuyerInput records arrival at the drop location.
type ReachedBuyerInput struct {
	OrderID uuid.UUID
	Actor   Actor
	Notes   *string
}

// GenerateQRInput requests a scannable payment code.
type GenerateQRInput struct {
	OrderID uuid.UUID
	Actor   Actor
}

// CheckPaymentInput polls the gateway for settlement.
type CheckPaymentInput struct {
	OrderID uuid.UUID
	Actor   Actor
}

// SendOTPInput issues or redelivers the delivery confirmation code.
type SendOTPInput struct {
	OrderID uuid.UUID
	Actor   Actor
}

// VerifyOTPInput submits the code the buyer read out.
type VerifyOTPInput struct {
	OrderID uuid.UUID
	Actor   Actor
	Code    string
}

// MarkCashCollectedInput settles a cash-on-delivery order.
type MarkCashCollectedInput struct {
	OrderID       uuid.UUID
	Actor         Actor
	TransactionID *string
}

// CompleteDeliveryInput finishes the delivery leg. CODMethod lets a cash
// collection settle in the same call; QR payments must be confirmed first.
type CompleteDeliveryInput struct {
	OrderID   uuid.UUID
	Actor     Actor
	OTPCode   string
	CODMethod enums.CODMethod
	Notes     *string
	Signature *string
	ProofURL  *string
}

// CancelInput aborts the delivery with an audit reason.
type CancelInput struct {
	OrderID uuid.UUID
	Actor   Actor
	Reason  string
}

// GetOrderInput loads one order for the owning agent.
type GetOrderInput struct {
	OrderID uuid.UUID
	Actor   Actor
}

// OTPPayload is the client-safe view of an issued challenge. The raw code
// never appears here.
type OTPPayload struct {
	Sent        bool       `json:"sent"`
	MaskedPhone string     `json:"masked_phone,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Verified    bool       `json:"verified"`
}

// QRPayload is the client-safe view of the active payment intent.
type QRPayload struct {
	PaymentID   string               `json:"payment_id"`
	OrderSlug   string               `json:"order_slug"`
	Code        string               `json:"code,omitempty"`
	Data        string               `json:"data,omitempty"`
	AmountCents int                  `json:"amount_cents"`
	Status      enums.QRIntentStatus `json:"status"`
}

// PaymentPayload is returned when the agent reaches the buyer. A gateway
// outage surfaces in Error; the arrival transition itself never fails for it.
type PaymentPayload struct {
	Mode  PaymentMode `json:"mode"`
	OTP   *OTPPayload `json:"otp,omitempty"`
	QR    *QRPayload  `json:"qr,omitempty"`
	Error *string     `json:"error,omitempty"`
}

// PaymentStatusResult reports a settlement poll.
type PaymentStatusResult struct {
	Paid             bool        `json:"paid"`
	AlreadyConfirmed bool        `json:"already_confirmed"`
	OTP              *OTPPayload `json:"otp,omitempty"`
}

// AgentOrderFilters narrows the agent order list.
type AgentOrderFilters struct {
	Statuses []enums.DeliveryStatus
	Active   bool
}

// AgentOrderList wraps a page of orders assigned to one agent.
type AgentOrderList struct {
	Items  []models.Order `json:"items"`
	Cursor string         `json:"cursor"`
}
