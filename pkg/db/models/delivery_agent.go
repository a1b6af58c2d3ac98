package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DeliveryAgent carries the agent profile plus denormalized fulfillment
// counters. The counters are a cache over the orders table; the stats
// service can rebuild them from scratch.
type DeliveryAgent struct {
	ID     uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`

	Name  string `gorm:"column:name;not null"`
	Phone string `gorm:"column:phone;not null"`

	IsActive    bool `gorm:"column:is_active;not null;default:true"`
	IsAvailable bool `gorm:"column:is_available;not null;default:true"`

	AssignedCount  int `gorm:"column:assigned_count;not null;default:0"`
	AcceptedCount  int `gorm:"column:accepted_count;not null;default:0"`
	RejectedCount  int `gorm:"column:rejected_count;not null;default:0"`
	PickupCount    int `gorm:"column:pickup_count;not null;default:0"`
	CompletedCount int `gorm:"column:completed_count;not null;default:0"`
	CancelledCount int `gorm:"column:cancelled_count;not null;default:0"`

	TotalEarnings      decimal.Decimal `gorm:"column:total_earnings;type:numeric(14,2);not null;default:0"`
	AvgDeliveryMinutes decimal.Decimal `gorm:"column:avg_delivery_minutes;type:numeric(10,2);not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (DeliveryAgent) TableName() string { return "delivery_agents" }
