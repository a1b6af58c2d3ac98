package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgdb "github.com/rohanbasu/trendora-backend/pkg/db"
	"github.com/rohanbasu/trendora-backend/pkg/db/models"
	"github.com/rohanbasu/trendora-backend/pkg/enums"
	"github.com/rohanbasu/trendora-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository returns the gorm-backed delivery repository.
func NewRepository(db *gorm.DB) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle required")
	}
	return &repository{db: db}, nil
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Timeline", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&order, "id = ?", orderID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

// UpdateOrderIfAssignment applies updates only while the assignment status
// still matches expected. A zero row count means the guard lost a race.
func (r *repository) UpdateOrderIfAssignment(ctx context.Context, orderID uuid.UUID, expected enums.DeliveryStatus, updates map[string]any) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND assignment_status = ?", orderID, expected).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// MarkOrderPaidOnce settles at most once: the update only lands while the
// order is still unpaid.
func (r *repository) MarkOrderPaidOnce(ctx context.Context, orderID uuid.UUID, updates map[string]any) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND is_paid = ?", orderID, false).
		Updates(updates)
	return result.RowsAffected, result.Error
}

func (r *repository) AppendTimeline(ctx context.Context, entry *models.TimelineEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) HasTimelineEntry(ctx context.Context, orderID uuid.UUID, action string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.TimelineEntry{}).
		Where("order_id = ? AND action = ?", orderID, action).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListTimeline(ctx context.Context, orderID uuid.UUID) ([]models.TimelineEntry, error) {
	var entries []models.TimelineEntry
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

// CreateQRAttempt records an intent in the recovery history. Two callers
// recovering the same provider slug insert the same (order, payment) pair;
// the second insert is a no-op, not an error.
func (r *repository) CreateQRAttempt(ctx context.Context, attempt *models.QRPaymentAttempt) error {
	err := r.db.WithContext(ctx).Create(attempt).Error
	if pkgdb.IsUniqueViolation(err, "uq_qr_payment_attempts_order_payment") {
		return nil
	}
	return err
}

// LatestQRAttempt returns the newest attempt for the order, or nil when none
// was ever recorded.
func (r *repository) LatestQRAttempt(ctx context.Context, orderID uuid.UUID) (*models.QRPaymentAttempt, error) {
	var attempt models.QRPaymentAttempt
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC, id DESC").
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

func (r *repository) FindAgent(ctx context.Context, agentID uuid.UUID) (*models.DeliveryAgent, error) {
	var agent models.DeliveryAgent
	if err := r.db.WithContext(ctx).First(&agent, "id = ?", agentID).Error; err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *repository) UpdateAgent(ctx context.Context, agentID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.DeliveryAgent{}).
		Where("id = ?", agentID).
		Updates(updates).Error
}

func (r *repository) IncrementAgentCounter(ctx context.Context, agentID uuid.UUID, column string, delta int) error {
	return r.db.WithContext(ctx).
		Model(&models.DeliveryAgent{}).
		Where("id = ?", agentID).
		UpdateColumn(column, gorm.Expr(column+" + ?", delta)).Error
}

func (r *repository) FindBuyer(ctx context.Context, buyerID uuid.UUID) (*models.Buyer, error) {
	var buyer models.Buyer
	if err := r.db.WithContext(ctx).First(&buyer, "id = ?", buyerID).Error; err != nil {
		return nil, err
	}
	return &buyer, nil
}

func (r *repository) CreateReassignmentEntry(ctx context.Context, entry *models.ReassignmentEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListReassignmentEntries(ctx context.Context, orderID uuid.UUID) ([]models.ReassignmentEntry, error) {
	var entries []models.ReassignmentEntry
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("rejected_at DESC").
		Find(&entries).Error
	return entries, err
}

// ListAgentOrders pages through the orders currently tied to an agent,
// newest first, keyed by (created_at, id) cursors.
func (r *repository) ListAgentOrders(ctx context.Context, agentID uuid.UUID, params pagination.Params, filters AgentOrderFilters) (*AgentOrderList, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("assignment_agent_id = ?", agentID)

	if len(filters.Statuses) > 0 {
		query = query.Where("assignment_status IN ?", filters.Statuses)
	}
	if filters.Active {
		query = query.Where("status NOT IN ?", []enums.OrderStatus{
			enums.OrderStatusDelivered,
			enums.OrderStatusCancelled,
		})
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var orders []models.Order
	err = query.
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	next := ""
	if len(orders) > limit {
		orders = orders[:limit]
		last := orders[len(orders)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return &AgentOrderList{Items: orders, Cursor: next}, nil
}
