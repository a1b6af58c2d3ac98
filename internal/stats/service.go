package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rohanbasu/trendora-backend/pkg/db/models"
	pkgerrors "github.com/rohanbasu/trendora-backend/pkg/errors"
	"github.com/rohanbasu/trendora-backend/pkg/logger"
)

// Service aggregates per-agent delivery performance.
type Service interface {
	AgentStats(ctx context.Context, input AgentStatsInput) (*AgentStats, error)
	SyncAgentCounters(ctx context.Context, agentID uuid.UUID) error
}

// Repository is the read surface the aggregator needs.
type Repository interface {
	FindAgent(ctx context.Context, agentID uuid.UUID) (*models.DeliveryAgent, error)
	UpdateAgent(ctx context.Context, agentID uuid.UUID, updates map[string]any) error
	PeriodAggregates(ctx context.Context, agentID uuid.UUID, from, to *time.Time) (*PeriodAggregates, error)
	Recount(ctx context.Context, agentID uuid.UUID) (*RecountResult, error)
}

// AgentStatsInput scopes the report. From and To bound the period section
// and leave the lifetime counters untouched.
type AgentStatsInput struct {
	AgentID uuid.UUID
	From    *time.Time
	To      *time.Time
}

// PeriodAggregates are computed over completed deliveries inside a window.
type PeriodAggregates struct {
	Deliveries  int64
	FeeCentsSum int64
	AvgMinutes  *float64
}

// RecountResult carries counters recomputed from the source tables.
type RecountResult struct {
	AcceptedCount  int
	RejectedCount  int
	PickupCount    int
	CompletedCount int
	CancelledCount int
	FeeCentsSum    int64
	AvgMinutes     *float64
}

// AgentStats is the full report returned to the agent dashboard.
type AgentStats struct {
	AgentID            uuid.UUID       `json:"agent_id"`
	Name               string          `json:"name"`
	IsAvailable        bool            `json:"is_available"`
	AssignedCount      int             `json:"assigned_count"`
	AcceptedCount      int             `json:"accepted_count"`
	RejectedCount      int             `json:"rejected_count"`
	PickupCount        int             `json:"pickup_count"`
	CompletedCount     int             `json:"completed_count"`
	CancelledCount     int             `json:"cancelled_count"`
	AcceptanceRate     decimal.Decimal `json:"acceptance_rate"`
	CompletionRate     decimal.Decimal `json:"completion_rate"`
	TotalEarnings      decimal.Decimal `json:"total_earnings"`
	AvgDeliveryMinutes decimal.Decimal `json:"avg_delivery_minutes"`

	PeriodDeliveries int64           `json:"period_deliveries"`
	PeriodEarnings   decimal.Decimal `json:"period_earnings"`
	PeriodAvgMinutes decimal.Decimal `json:"period_avg_minutes"`
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService builds the stats aggregator.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("stats repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) AgentStats(ctx context.Context, input AgentStatsInput) (*AgentStats, error) {
	if input.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent id required")
	}
	if input.From != nil && input.To != nil && input.To.Before(*input.From) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "period end precedes period start")
	}

	agent, err := s.repo.FindAgent(ctx, input.AgentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery agent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent")
	}

	period, err := s.repo.PeriodAggregates(ctx, input.AgentID, input.From, input.To)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate period")
	}

	report := &AgentStats{
		AgentID:            agent.ID,
		Name:               agent.Name,
		IsAvailable:        agent.IsAvailable,
		AssignedCount:      agent.AssignedCount,
		AcceptedCount:      agent.AcceptedCount,
		RejectedCount:      agent.RejectedCount,
		PickupCount:        agent.PickupCount,
		CompletedCount:     agent.CompletedCount,
		CancelledCount:     agent.CancelledCount,
		AcceptanceRate:     ratio(agent.AcceptedCount, agent.AssignedCount),
		CompletionRate:     ratio(agent.CompletedCount, agent.AcceptedCount),
		TotalEarnings:      agent.TotalEarnings,
		AvgDeliveryMinutes: agent.AvgDeliveryMinutes,
		PeriodDeliveries:   period.Deliveries,
		PeriodEarnings:     centsToDecimal(period.FeeCentsSum),
	}
	if period.AvgMinutes != nil {
		report.PeriodAvgMinutes = decimal.NewFromFloat(*period.AvgMinutes).Round(2)
	}
	return report, nil
}

// SyncAgentCounters rebuilds the denormalized agent row from the orders and
// timeline tables. Used when the counters drift.
func (s *service) SyncAgentCounters(ctx context.Context, agentID uuid.UUID) error {
	if agentID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "agent id required")
	}

	recount, err := s.repo.Recount(ctx, agentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recount agent activity")
	}

	updates := map[string]any{
		"accepted_count":  recount.AcceptedCount,
		"rejected_count":  recount.RejectedCount,
		"pickup_count":    recount.PickupCount,
		"completed_count": recount.CompletedCount,
		"cancelled_count": recount.CancelledCount,
		"total_earnings":  centsToDecimal(recount.FeeCentsSum),
	}
	if recount.AvgMinutes != nil {
		updates["avg_delivery_minutes"] = decimal.NewFromFloat(*recount.AvgMinutes).Round(2)
	} else {
		updates["avg_delivery_minutes"] = decimal.Zero
	}

	if err := s.repo.UpdateAgent(ctx, agentID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store recomputed counters")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"agent_id":        agentID.String(),
		"completed_count": recount.CompletedCount,
	}), "agent counters resynced")
	return nil
}

func ratio(numerator, denominator int) decimal.Decimal {
	if denominator <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(numerator)).
		Div(decimal.NewFromInt(int64(denominator))).
		Round(4)
}

func centsToDecimal(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
}
