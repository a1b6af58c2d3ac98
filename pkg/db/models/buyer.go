package models

import (
	"time"

	"github.com/google/uuid"
)

// Buyer holds the contact details used to route the delivery OTP.
// Phone is always read fresh at send time, never cached on the order.
type Buyer struct {
	ID     uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`

	Name  string `gorm:"column:name;not null"`
	Phone string `gorm:"column:phone;not null"`
	Email string `gorm:"column:email"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Buyer) TableName() string { return "buyers" }
