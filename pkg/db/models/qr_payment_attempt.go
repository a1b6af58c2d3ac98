package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rohanbasu/trendora-backend/pkg/enums"
)

// QRPaymentAttempt is one gateway intent created for an order. Attempts are
// never deleted; when the provider reports the order slug as already taken
// the most recent attempt is the source of truth for recovery.
type QRPaymentAttempt struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`

	PaymentID   string               `gorm:"column:payment_id;not null"`
	OrderSlug   string               `gorm:"column:order_slug;not null"`
	AmountCents int                  `gorm:"column:amount_cents;not null"`
	Status      enums.QRIntentStatus `gorm:"column:status;type:text;not null"`
	CreatedBy   *uuid.UUID           `gorm:"column:created_by;type:uuid"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (QRPaymentAttempt) TableName() string { return "qr_payment_attempts" }
