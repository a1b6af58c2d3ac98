package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rohanbasu/trendora-backend/pkg/enums"
)

// Order is the aggregate root for one purchase. Every fulfillment sub-state
// is an embedded value struct so transition code never checks for nil
// sub-documents; an untouched sub-state is simply zero-valued.
type Order struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber string    `gorm:"column:order_number;not null;uniqueIndex"`

	BuyerID  uuid.UUID `gorm:"column:buyer_id;type:uuid;not null"`
	SellerID uuid.UUID `gorm:"column:seller_id;type:uuid;not null"`

	Status         enums.OrderStatus    `gorm:"column:status;type:text;not null;default:'pending'"`
	ApprovalStatus enums.ApprovalStatus `gorm:"column:approval_status;type:text;not null;default:'pending'"`

	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	IsPaid        bool                `gorm:"column:is_paid;not null;default:false"`

	TotalCents       int `gorm:"column:total_cents;not null"`
	DeliveryFeeCents int `gorm:"column:delivery_fee_cents;not null;default:0"`

	Assignment   DeliveryAssignment  `gorm:"embedded;embeddedPrefix:assignment_"`
	Pickup       PickupState         `gorm:"embedded;embeddedPrefix:pickup_"`
	Delivery     DeliveryState       `gorm:"embedded;embeddedPrefix:delivery_"`
	OTP          OTPVerification     `gorm:"embedded;embeddedPrefix:otp_"`
	CODPayment   CODPayment          `gorm:"embedded;embeddedPrefix:cod_"`
	CODQR        CODQR               `gorm:"embedded;embeddedPrefix:qr_"`
	Cancellation CancellationDetails `gorm:"embedded;embeddedPrefix:cancel_"`

	Timeline []TimelineEntry `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

// DeliveryAssignment is the agent-ownership sub-state of an order.
type DeliveryAssignment struct {
	AgentID         *uuid.UUID           `gorm:"column:agent_id;type:uuid"`
	Status          enums.DeliveryStatus `gorm:"column:status;type:text;not null;default:'unassigned'"`
	AssignedAt      *time.Time           `gorm:"column:assigned_at"`
	AcceptedAt      *time.Time           `gorm:"column:accepted_at"`
	RejectedAt      *time.Time           `gorm:"column:rejected_at"`
	RejectionReason *string              `gorm:"column:rejection_reason"`
	PickupDoneAt    *time.Time           `gorm:"column:pickup_done_at"`
	DeliveryDoneAt  *time.Time           `gorm:"column:delivery_done_at"`
	DurationMinutes *int                 `gorm:"column:duration_minutes"`
}

// PickupState records the seller-side handoff.
type PickupState struct {
	Completed               bool       `gorm:"column:completed;not null;default:false"`
	CompletedAt             *time.Time `gorm:"column:completed_at"`
	Notes                   *string    `gorm:"column:notes"`
	CompletedBy             *uuid.UUID `gorm:"column:completed_by;type:uuid"`
	SellerLocationReachedAt *time.Time `gorm:"column:seller_location_reached_at"`
}

// DeliveryState records the buyer-side handoff.
type DeliveryState struct {
	Completed         bool       `gorm:"column:completed;not null;default:false"`
	CompletedAt       *time.Time `gorm:"column:completed_at"`
	Notes             *string    `gorm:"column:notes"`
	CompletedBy       *uuid.UUID `gorm:"column:completed_by;type:uuid"`
	LocationReachedAt *time.Time `gorm:"column:location_reached_at"`
	LocationNotes     *string    `gorm:"column:location_notes"`
	CustomerSignature *string    `gorm:"column:customer_signature"`
	ProofURL          *string    `gorm:"column:proof_url"`
}

// OTPVerification is the single logical OTP challenge for a delivery.
// The raw code is never stored; verification goes back to the provider.
type OTPVerification struct {
	Required    bool       `gorm:"column:required;not null;default:false"`
	ProviderID  *string    `gorm:"column:provider_id"`
	GeneratedAt *time.Time `gorm:"column:generated_at"`
	ExpiresAt   *time.Time `gorm:"column:expires_at"`
	Verified    bool       `gorm:"column:verified;not null;default:false"`
	VerifiedAt  *time.Time `gorm:"column:verified_at"`
	VerifiedBy  *uuid.UUID `gorm:"column:verified_by;type:uuid"`
}

// CODPayment records the collect-on-delivery settlement.
type CODPayment struct {
	Collected     bool            `gorm:"column:collected;not null;default:false"`
	CollectedAt   *time.Time      `gorm:"column:collected_at"`
	AmountCents   int             `gorm:"column:amount_cents;not null;default:0"`
	Method        enums.CODMethod `gorm:"column:method;type:text"`
	CollectedBy   *uuid.UUID      `gorm:"column:collected_by;type:uuid"`
	TransactionID *string         `gorm:"column:transaction_id"`
}

// CODQR is the active gateway payment intent for a COD order. The provider
// slug, once created, is permanent for the order.
type CODQR struct {
	PaymentID   *string              `gorm:"column:payment_id"`
	OrderSlug   *string              `gorm:"column:order_slug"`
	Code        *string              `gorm:"column:code"`
	Data        *string              `gorm:"column:data"`
	AmountCents int                  `gorm:"column:amount_cents;not null;default:0"`
	Status      enums.QRIntentStatus `gorm:"column:status;type:text;not null;default:''"`
	GeneratedAt *time.Time           `gorm:"column:generated_at"`
	GeneratedBy *uuid.UUID           `gorm:"column:generated_by;type:uuid"`
}

// CancellationDetails is the immutable audit record for a cancelled order.
type CancellationDetails struct {
	By     enums.CancellationActor `gorm:"column:by;type:text"`
	ByName *string                 `gorm:"column:by_name"`
	At     *time.Time              `gorm:"column:at"`
	Reason *string                 `gorm:"column:reason"`
}
