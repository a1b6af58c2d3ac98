package stats

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rohanbasu/trendora-backend/pkg/db/models"
	pkgerrors "github.com/rohanbasu/trendora-backend/pkg/errors"
	"github.com/rohanbasu/trendora-backend/pkg/logger"
)

type stubStatsRepo struct {
	agent   *models.DeliveryAgent
	period  *PeriodAggregates
	recount *RecountResult
	updates map[string]any
}

func (s *stubStatsRepo) FindAgent(ctx context.Context, agentID uuid.UUID) (*models.DeliveryAgent, error) {
	if s.agent == nil || s.agent.ID != agentID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.agent, nil
}

func (s *stubStatsRepo) UpdateAgent(ctx context.Context, agentID uuid.UUID, updates map[string]any) error {
	s.updates = updates
	return nil
}

func (s *stubStatsRepo) PeriodAggregates(ctx context.Context, agentID uuid.UUID, from, to *time.Time) (*PeriodAggregates, error) {
	return s.period, nil
}

func (s *stubStatsRepo) Recount(ctx context.Context, agentID uuid.UUID) (*RecountResult, error) {
	return s.recount, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

func newStatsFixture(t *testing.T) (Service, *stubStatsRepo) {
	t.Helper()

	avg := 31.5
	repo := &stubStatsRepo{
		agent: &models.DeliveryAgent{
			ID:                 uuid.New(),
			Name:               "Priya",
			IsAvailable:        true,
			AssignedCount:      20,
			AcceptedCount:      16,
			RejectedCount:      4,
			PickupCount:        15,
			CompletedCount:     12,
			CancelledCount:     1,
			TotalEarnings:      decimal.NewFromInt(480),
			AvgDeliveryMinutes: decimal.NewFromInt(33),
		},
		period: &PeriodAggregates{Deliveries: 5, FeeCentsSum: 20000, AvgMinutes: &avg},
	}
	svc, err := NewService(repo, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, repo
}

func TestAgentStatsComputesRates(t *testing.T) {
	svc, repo := newStatsFixture(t)

	report, err := svc.AgentStats(context.Background(), AgentStatsInput{AgentID: repo.agent.ID})
	if err != nil {
		t.Fatalf("agent stats: %v", err)
	}

	if !report.AcceptanceRate.Equal(decimal.NewFromFloat(0.8)) {
		t.Fatalf("expected acceptance rate 0.8, got %s", report.AcceptanceRate)
	}
	if !report.CompletionRate.Equal(decimal.NewFromFloat(0.75)) {
		t.Fatalf("expected completion rate 0.75, got %s", report.CompletionRate)
	}
	if !report.PeriodEarnings.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected period earnings 200, got %s", report.PeriodEarnings)
	}
	if !report.PeriodAvgMinutes.Equal(decimal.NewFromFloat(31.5)) {
		t.Fatalf("expected period average 31.5, got %s", report.PeriodAvgMinutes)
	}
	if report.PeriodDeliveries != 5 {
		t.Fatalf("expected five period deliveries, got %d", report.PeriodDeliveries)
	}
}

func TestAgentStatsZeroDenominators(t *testing.T) {
	svc, repo := newStatsFixture(t)
	repo.agent.AssignedCount = 0
	repo.agent.AcceptedCount = 0
	repo.agent.CompletedCount = 0
	repo.period = &PeriodAggregates{}

	report, err := svc.AgentStats(context.Background(), AgentStatsInput{AgentID: repo.agent.ID})
	if err != nil {
		t.Fatalf("agent stats: %v", err)
	}
	if !report.AcceptanceRate.IsZero() || !report.CompletionRate.IsZero() {
		t.Fatalf("expected zero rates for a fresh agent")
	}
}

func TestAgentStatsRejectsInvertedPeriod(t *testing.T) {
	svc, repo := newStatsFixture(t)
	from := time.Now()
	to := from.Add(-time.Hour)

	_, err := svc.AgentStats(context.Background(), AgentStatsInput{AgentID: repo.agent.ID, From: &from, To: &to})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAgentStatsUnknownAgent(t *testing.T) {
	svc, _ := newStatsFixture(t)

	_, err := svc.AgentStats(context.Background(), AgentStatsInput{AgentID: uuid.New()})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSyncAgentCountersWritesRecount(t *testing.T) {
	svc, repo := newStatsFixture(t)
	avg := 28.0
	repo.recount = &RecountResult{
		AcceptedCount:  9,
		RejectedCount:  2,
		PickupCount:    8,
		CompletedCount: 7,
		CancelledCount: 1,
		FeeCentsSum:    28000,
		AvgMinutes:     &avg,
	}

	if err := svc.SyncAgentCounters(context.Background(), repo.agent.ID); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if repo.updates["completed_count"] != 7 {
		t.Fatalf("expected completed_count 7, got %v", repo.updates["completed_count"])
	}
	earnings, ok := repo.updates["total_earnings"].(decimal.Decimal)
	if !ok || !earnings.Equal(decimal.NewFromInt(280)) {
		t.Fatalf("expected earnings 280, got %v", repo.updates["total_earnings"])
	}
	minutes, ok := repo.updates["avg_delivery_minutes"].(decimal.Decimal)
	if !ok || !minutes.Equal(decimal.NewFromInt(28)) {
		t.Fatalf("expected average 28, got %v", repo.updates["avg_delivery_minutes"])
	}
}
