package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rohanbasu/trendora-backend/pkg/enums"
)

// Notification is the persisted copy of one fan-out message. Delivery to the
// broker is best effort; the row is the durable record.
type Notification struct {
	ID uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`

	Event   enums.NotificationEvent   `gorm:"column:event;type:text;not null;index"`
	Channel enums.NotificationChannel `gorm:"column:channel;type:text;not null"`

	RecipientID uuid.UUID  `gorm:"column:recipient_id;type:uuid;not null;index"`
	OrderID     *uuid.UUID `gorm:"column:order_id;type:uuid;index"`

	Title   string         `gorm:"column:title;not null"`
	Body    string         `gorm:"column:body;not null"`
	Payload json.RawMessage `gorm:"column:payload;type:jsonb"`

	ReadAt    *time.Time `gorm:"column:read_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (Notification) TableName() string { return "notifications" }
