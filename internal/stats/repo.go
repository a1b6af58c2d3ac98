package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rohanbasu/trendora-backend/pkg/db/models"
	"github.com/rohanbasu/trendora-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository returns the gorm-backed stats repository.
func NewRepository(db *gorm.DB) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle required")
	}
	return &repository{db: db}, nil
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

func (r *repository) PeriodAggregates(ctx context.Context, agentID uuid.UUID, from, to *time.Time) (*PeriodAggregates, error) {
	query := r.completedOrders(ctx, agentID)
	if from != nil {
		query = query.Where("delivery_completed_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("delivery_completed_at < ?", *to)
	}

	var row struct {
		Deliveries  int64
		FeeCentsSum int64
		AvgMinutes  *float64
	}
	err := query.
		Select("COUNT(*) AS deliveries, COALESCE(SUM(delivery_fee_cents), 0) AS fee_cents_sum, AVG(assignment_duration_minutes) AS avg_minutes").
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &PeriodAggregates{
		Deliveries:  row.Deliveries,
		FeeCentsSum: row.FeeCentsSum,
		AvgMinutes:  row.AvgMinutes,
	}, nil
}

// Recount rebuilds the lifetime counters from the source tables. Completed
// figures come from the orders the agent still holds, accepted/pickup/cancel
// figures from the timeline the agent authored, rejections from the
// reassignment log since a rejected order no longer references the agent.
func (r *repository) Recount(ctx context.Context, agentID uuid.UUID) (*RecountResult, error) {
	result := &RecountResult{}

	var completed struct {
		Count       int64
		FeeCentsSum int64
		AvgMinutes  *float64
	}
	err := r.completedOrders(ctx, agentID).
		Select("COUNT(*) AS count, COALESCE(SUM(delivery_fee_cents), 0) AS fee_cents_sum, AVG(assignment_duration_minutes) AS avg_minutes").
		Scan(&completed).Error
	if err != nil {
		return nil, err
	}
	result.CompletedCount = int(completed.Count)
	result.FeeCentsSum = completed.FeeCentsSum
	result.AvgMinutes = completed.AvgMinutes

	counts := map[string]*int{
		models.TimelineAgentAccepted:     &result.AcceptedCount,
		models.TimelinePickupCompleted:   &result.PickupCount,
		models.TimelineDeliveryCancelled: &result.CancelledCount,
	}
	for action, target := range counts {
		var n int64
		err := r.db.WithContext(ctx).
			Model(&models.TimelineEntry{}).
			Where("actor_id = ? AND action = ?", agentID, action).
			Count(&n).Error
		if err != nil {
			return nil, err
		}
		*target = int(n)
	}

	var rejected int64
	err = r.db.WithContext(ctx).
		Model(&models.ReassignmentEntry{}).
		Where("agent_id = ?", agentID).
		Count(&rejected).Error
	if err != nil {
		return nil, err
	}
	result.RejectedCount = int(rejected)

	return result, nil
}

func (r *repository) completedOrders(ctx context.Context, agentID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("assignment_agent_id = ? AND assignment_status = ?", agentID, enums.DeliveryStatusDeliveryCompleted)
}
