package models

import (
	"time"

	"github.com/google/uuid"
)

// ReassignmentEntry records one agent rejection so the assignment
// coordinator can skip agents that already turned the order down.
type ReassignmentEntry struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	AgentID uuid.UUID `gorm:"column:agent_id;type:uuid;not null;index"`

	Reason     *string   `gorm:"column:reason"`
	RejectedAt time.Time `gorm:"column:rejected_at;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ReassignmentEntry) TableName() string { return "order_reassignment_entries" }
