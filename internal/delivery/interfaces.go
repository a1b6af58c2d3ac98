package delivery

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rohanbasu/trendora-backend/internal/notify"
	"github.com/rohanbasu/trendora-backend/pkg/db/models"
	"github.com/rohanbasu/trendora-backend/pkg/enums"
	"github.com/rohanbasu/trendora-backend/pkg/otp"
	"github.com/rohanbasu/trendora-backend/pkg/pagination"
	"github.com/rohanbasu/trendora-backend/pkg/qrpay"
)

// Repository defines persistence operations for the fulfillment tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	// UpdateOrderIfAssignment applies updates only while the assignment is
	// still in the expected state. Returns the number of affected rows.
	UpdateOrderIfAssignment(ctx context.Context, orderID uuid.UUID, expected enums.DeliveryStatus, updates map[string]any) (int64, error)
	// MarkOrderPaidOnce applies settlement updates only while is_paid is
	// still false. Returns the number of affected rows.
	MarkOrderPaidOnce(ctx context.Context, orderID uuid.UUID, updates map[string]any) (int64, error)

	AppendTimeline(ctx context.Context, entry *models.TimelineEntry) error
	HasTimelineEntry(ctx context.Context, orderID uuid.UUID, action string) (bool, error)
	ListTimeline(ctx context.Context, orderID uuid.UUID) ([]models.TimelineEntry, error)

	CreateQRAttempt(ctx context.Context, attempt *models.QRPaymentAttempt) error
	LatestQRAttempt(ctx context.Context, orderID uuid.UUID) (*models.QRPaymentAttempt, error)

	FindAgent(ctx context.Context, agentID uuid.UUID) (*models.DeliveryAgent, error)
	UpdateAgent(ctx context.Context, agentID uuid.UUID, updates map[string]any) error
	IncrementAgentCounter(ctx context.Context, agentID uuid.UUID, column string, delta int) error

	FindBuyer(ctx context.Context, buyerID uuid.UUID) (*models.Buyer, error)

	CreateReassignmentEntry(ctx context.Context, entry *models.ReassignmentEntry) error
	ListReassignmentEntries(ctx context.Context, orderID uuid.UUID) ([]models.ReassignmentEntry, error)

	ListAgentOrders(ctx context.Context, agentID uuid.UUID, params pagination.Params, filters AgentOrderFilters) (*AgentOrderList, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OTPGateway is the SMS one-time-code provider surface the service consumes.
type OTPGateway interface {
	Issue(ctx context.Context, params otp.IssueParams) (*otp.Challenge, error)
	Resend(ctx context.Context, providerID string) (*otp.Challenge, error)
	Verify(ctx context.Context, providerID, code string) error
}

// QRGateway is the dynamic-QR payment provider surface the service consumes.
type QRGateway interface {
	CreateIntent(ctx context.Context, params qrpay.CreateIntentParams) (*qrpay.Intent, error)
	GenerateCode(ctx context.Context, paymentID string) (*qrpay.Code, error)
	Validate(ctx context.Context, paymentID string) (*qrpay.SettlementStatus, error)
}

// Notifier fans out lifecycle events. Emit is fire and forget.
type Notifier interface {
	Emit(ctx context.Context, event notify.Event)
}
