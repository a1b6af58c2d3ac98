package assignments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/rohanbasu/trendora-backend/internal/delivery"
	"github.com/rohanbasu/trendora-backend/internal/notify"
	"github.com/rohanbasu/trendora-backend/pkg/db/models"
	"github.com/rohanbasu/trendora-backend/pkg/enums"
	pkgerrors "github.com/rohanbasu/trendora-backend/pkg/errors"
	"github.com/rohanbasu/trendora-backend/pkg/logger"
	"github.com/rohanbasu/trendora-backend/pkg/pagination"
)

// MaxBulkSize caps how many orders a single bulk call may touch.
const MaxBulkSize = 50

// Service coordinates order-to-agent assignment and the agent's bulk
// accept/reject operations.
type Service interface {
	Assign(ctx context.Context, input AssignInput) error
	ListForAgent(ctx context.Context, input ListInput) (*delivery.AgentOrderList, error)
	BulkAccept(ctx context.Context, input BulkInput) (*BulkResult, error)
	BulkReject(ctx context.Context, input BulkRejectInput) (*BulkResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo        delivery.Repository
	tx          txRunner
	deliverySvc delivery.Service
	notifier    delivery.Notifier
	logg        *logger.Logger
	now         func() time.Time
}

// NewService builds the assignment coordinator.
func NewService(repo delivery.Repository, tx txRunner, deliverySvc delivery.Service, notifier delivery.Notifier, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("delivery repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deliverySvc == nil {
		return nil, fmt.Errorf("delivery service required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:        repo,
		tx:          tx,
		deliverySvc: deliverySvc,
		notifier:    notifier,
		logg:        logg,
		now:         time.Now,
	}, nil
}

// Assign hands an approved order with no current agent to an active agent.
// Orders released by a rejection flow back through here for reassignment.
func (s *service) Assign(ctx context.Context, input AssignInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.AgentID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "agent id required")
	}

	var events []notify.Event
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status != enums.OrderStatusPickupReady {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not ready for assignment")
		}
		if order.ApprovalStatus != enums.ApprovalStatusApproved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has not been approved")
		}
		if order.Assignment.AgentID != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "order already has an assigned agent")
		}
		if !order.Assignment.Status.CanTransitionTo(enums.DeliveryStatusAssigned) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be assigned in its current state")
		}

		agent, err := repo.FindAgent(ctx, input.AgentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "delivery agent not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent")
		}
		if !agent.IsActive || !agent.IsAvailable {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "agent is not available for assignment")
		}

		now := s.now().UTC()
		rows, err := repo.UpdateOrderIfAssignment(ctx, order.ID, order.Assignment.Status, map[string]any{
			"assignment_agent_id":    agent.ID,
			"assignment_status":      enums.DeliveryStatusAssigned,
			"assignment_assigned_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign order")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "order was assigned concurrently")
		}

		role := string(enums.MemberRoleAdmin)
		actorID := input.AssignedBy
		if err := repo.AppendTimeline(ctx, &models.TimelineEntry{
			OrderID:   order.ID,
			Action:    models.TimelineAgentAssigned,
			ActorID:   &actorID,
			ActorRole: &role,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record assignment")
		}
		if err := repo.IncrementAgentCounter(ctx, agent.ID, "assigned_count", 1); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update agent counters")
		}

		orderID := order.ID
		events = append(events, notify.Event{
			Event:       enums.NotificationEventOrderAssigned,
			Channel:     enums.NotificationChannelAgent,
			RecipientID: agent.UserID,
			OrderID:     &orderID,
			Title:       "New delivery assigned",
			Body:        "Order " + order.OrderNumber + " is waiting for your acceptance",
			Payload: map[string]any{
				"order_number": order.OrderNumber,
			},
		})
		return nil
	})

	for _, event := range events {
		s.notifier.Emit(ctx, event)
	}
	return err
}

func (s *service) ListForAgent(ctx context.Context, input ListInput) (*delivery.AgentOrderList, error) {
	if input.Actor.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "agent context missing")
	}
	for _, status := range input.Statuses {
		if !status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown delivery status filter")
		}
	}

	list, err := s.repo.ListAgentOrders(ctx, input.Actor.AgentID,
		pagination.Params{Limit: input.Limit, Cursor: input.Cursor},
		delivery.AgentOrderFilters{Statuses: input.Statuses, Active: input.Active},
	)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list agent orders")
	}
	return list, nil
}

// BulkAccept accepts each order independently. One bad order never blocks
// the rest of the batch.
func (s *service) BulkAccept(ctx context.Context, input BulkInput) (*BulkResult, error) {
	if err := validateBulk(input.OrderIDs); err != nil {
		return nil, err
	}

	result := &BulkResult{}
	var combined error
	for _, orderID := range input.OrderIDs {
		err := s.deliverySvc.Accept(ctx, delivery.AcceptInput{OrderID: orderID, Actor: input.Actor})
		if err != nil {
			result.Failed = append(result.Failed, bulkFailure(orderID, err))
			combined = multierr.Append(combined, err)
			continue
		}
		result.Accepted = append(result.Accepted, orderID)
	}

	if combined != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"failed_count": len(result.Failed),
			"batch_size":   len(input.OrderIDs),
		}), "bulk accept finished with failures")
	}
	return result, nil
}

func (s *service) BulkReject(ctx context.Context, input BulkRejectInput) (*BulkResult, error) {
	if err := validateBulk(input.OrderIDs); err != nil {
		return nil, err
	}

	result := &BulkResult{}
	var combined error
	for _, orderID := range input.OrderIDs {
		err := s.deliverySvc.Reject(ctx, delivery.RejectInput{OrderID: orderID, Actor: input.Actor, Reason: input.Reason})
		if err != nil {
			result.Failed = append(result.Failed, bulkFailure(orderID, err))
			combined = multierr.Append(combined, err)
			continue
		}
		result.Accepted = append(result.Accepted, orderID)
	}

	if combined != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"failed_count": len(result.Failed),
			"batch_size":   len(input.OrderIDs),
		}), "bulk reject finished with failures")
	}
	return result, nil
}

func validateBulk(orderIDs []uuid.UUID) error {
	if len(orderIDs) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one order id required")
	}
	if len(orderIDs) > MaxBulkSize {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("bulk operations are limited to %d orders", MaxBulkSize))
	}
	seen := make(map[uuid.UUID]struct{}, len(orderIDs))
	for _, id := range orderIDs {
		if id == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "order ids must not be empty")
		}
		if _, dup := seen[id]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate order id in batch")
		}
		seen[id] = struct{}{}
	}
	return nil
}

func bulkFailure(orderID uuid.UUID, err error) BulkFailure {
	if typed := pkgerrors.As(err); typed != nil {
		return BulkFailure{OrderID: orderID, Code: string(typed.Code()), Message: typed.Message()}
	}
	return BulkFailure{OrderID: orderID, Code: string(pkgerrors.CodeInternal), Message: "internal error"}
}
