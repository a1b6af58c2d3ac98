package assignments

import (
	"github.com/google/uuid"

	"github.com/rohanbasu/trendora-backend/internal/delivery"
	"github.com/rohanbasu/trendora-backend/pkg/enums"
)

// AssignInput is the admin request tying an order to an agent.
type AssignInput struct {
	OrderID    uuid.UUID
	AgentID    uuid.UUID
	AssignedBy uuid.UUID
}

// ListInput filters the agent's order feed.
type ListInput struct {
	Actor    delivery.Actor
	Statuses []enums.DeliveryStatus
	Active   bool
	Limit    int
	Cursor   string
}

// BulkInput names the orders one agent operates on in a single call.
type BulkInput struct {
	OrderIDs []uuid.UUID
	Actor    delivery.Actor
}

// BulkRejectInput adds the shared rejection reason.
type BulkRejectInput struct {
	OrderIDs []uuid.UUID
	Actor    delivery.Actor
	Reason   *string
}

// BulkFailure describes why one order in a batch was skipped.
type BulkFailure struct {
	OrderID uuid.UUID `json:"order_id"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// BulkResult reports per-order outcomes of a batch operation.
type BulkResult struct {
	Accepted []uuid.UUID   `json:"accepted"`
	Failed   []BulkFailure `json:"failed"`
}
