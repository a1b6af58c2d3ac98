package models

import (
	"time"

	"github.com/google/uuid"
)

// Timeline actions appended by the delivery state machine.
const (
	TimelineAgentAssigned         = "agent_assigned"
	TimelineAgentAccepted         = "agent_accepted"
	TimelineAgentRejected         = "agent_rejected"
	TimelineSellerLocationReached = "seller_location_reached"
	TimelinePickupCompleted       = "pickup_completed"
	TimelineBuyerLocationReached  = "buyer_location_reached"
	TimelineQRGenerated           = "qr_generated"
	TimelinePaymentConfirmed      = "payment_confirmed"
	TimelineOTPSent               = "otp_sent"
	TimelineOTPVerified           = "otp_verified"
	TimelineCashCollected         = "cash_collected"
	TimelineDeliveryCompleted     = "delivery_completed"
	TimelineDeliveryCancelled     = "delivery_cancelled"
)

// TimelineEntry is one append-only audit row for an order.
type TimelineEntry struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`

	Action    string     `gorm:"column:action;not null"`
	Note      *string    `gorm:"column:note"`
	ActorID   *uuid.UUID `gorm:"column:actor_id;type:uuid"`
	ActorRole *string    `gorm:"column:actor_role"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (TimelineEntry) TableName() string { return "order_timeline_entries" }
