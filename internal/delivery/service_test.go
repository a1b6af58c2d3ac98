package delivery

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rohanbasu/trendora-backend/internal/notify"
	"github.com/rohanbasu/trendora-backend/pkg/db/models"
	"github.com/rohanbasu/trendora-backend/pkg/enums"
	pkgerrors "github.com/rohanbasu/trendora-backend/pkg/errors"
	"github.com/rohanbasu/trendora-backend/pkg/logger"
	"github.com/rohanbasu/trendora-backend/pkg/otp"
	"github.com/rohanbasu/trendora-backend/pkg/pagination"
	"github.com/rohanbasu/trendora-backend/pkg/qrpay"
)

type stubDeliveryRepo struct {
	order *models.Order
	agent *models.DeliveryAgent
	buyer *models.Buyer

	orderUpdates    []map[string]any
	guardedUpdates  []map[string]any
	paidUpdates     []map[string]any
	timeline        []models.TimelineEntry
	timelineActions map[string]bool
	attempts        []models.QRPaymentAttempt
	latestAttempt   *models.QRPaymentAttempt
	reassignments   []models.ReassignmentEntry
	counters        map[string]int
	agentUpdates    map[string]any

	guardMismatch bool
	updateErr     error
}

func newStubRepo(order *models.Order) *stubDeliveryRepo {
	return &stubDeliveryRepo{
		order:           order,
		timelineActions: map[string]bool{},
		counters:        map[string]int{},
	}
}

func (s *stubDeliveryRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubDeliveryRepo) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != orderID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.order, nil
}

func (s *stubDeliveryRepo) UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.orderUpdates = append(s.orderUpdates, updates)
	return nil
}

func (s *stubDeliveryRepo) UpdateOrderIfAssignment(ctx context.Context, orderID uuid.UUID, expected enums.DeliveryStatus, updates map[string]any) (int64, error) {
	if s.updateErr != nil {
		return 0, s.updateErr
	}
	if s.guardMismatch || s.order.Assignment.Status != expected {
		return 0, nil
	}
	s.guardedUpdates = append(s.guardedUpdates, updates)
	return 1, nil
}

func (s *stubDeliveryRepo) MarkOrderPaidOnce(ctx context.Context, orderID uuid.UUID, updates map[string]any) (int64, error) {
	if s.order.IsPaid {
		return 0, nil
	}
	s.order.IsPaid = true
	s.paidUpdates = append(s.paidUpdates, updates)
	return 1, nil
}

func (s *stubDeliveryRepo) AppendTimeline(ctx context.Context, entry *models.TimelineEntry) error {
	s.timeline = append(s.timeline, *entry)
	s.timelineActions[entry.Action] = true
	return nil
}

func (s *stubDeliveryRepo) HasTimelineEntry(ctx context.Context, orderID uuid.UUID, action string) (bool, error) {
	return s.timelineActions[action], nil
}

func (s *stubDeliveryRepo) ListTimeline(ctx context.Context, orderID uuid.UUID) ([]models.TimelineEntry, error) {
	return s.timeline, nil
}

func (s *stubDeliveryRepo) CreateQRAttempt(ctx context.Context, attempt *models.QRPaymentAttempt) error {
	s.attempts = append(s.attempts, *attempt)
	return nil
}

func (s *stubDeliveryRepo) LatestQRAttempt(ctx context.Context, orderID uuid.UUID) (*models.QRPaymentAttempt, error) {
	return s.latestAttempt, nil
}

func (s *stubDeliveryRepo) FindAgent(ctx context.Context, agentID uuid.UUID) (*models.DeliveryAgent, error) {
	if s.agent == nil || s.agent.ID != agentID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.agent, nil
}

func (s *stubDeliveryRepo) UpdateAgent(ctx context.Context, agentID uuid.UUID, updates map[string]any) error {
	s.agentUpdates = updates
	return nil
}

func (s *stubDeliveryRepo) IncrementAgentCounter(ctx context.Context, agentID uuid.UUID, column string, delta int) error {
	s.counters[column] += delta
	return nil
}

func (s *stubDeliveryRepo) FindBuyer(ctx context.Context, buyerID uuid.UUID) (*models.Buyer, error) {
	if s.buyer == nil || s.buyer.ID != buyerID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.buyer, nil
}

func (s *stubDeliveryRepo) CreateReassignmentEntry(ctx context.Context, entry *models.ReassignmentEntry) error {
	s.reassignments = append(s.reassignments, *entry)
	return nil
}

func (s *stubDeliveryRepo) ListReassignmentEntries(ctx context.Context, orderID uuid.UUID) ([]models.ReassignmentEntry, error) {
	return s.reassignments, nil
}

func (s *stubDeliveryRepo) ListAgentOrders(ctx context.Context, agentID uuid.UUID, params pagination.Params, filters AgentOrderFilters) (*AgentOrderList, error) {
	return &AgentOrderList{}, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type stubOTPGateway struct {
	issued    []otp.IssueParams
	resends   []string
	verifies  []string
	issueErr  error
	verifyErr error
	challenge otp.Challenge
}

func (s *stubOTPGateway) Issue(ctx context.Context, params otp.IssueParams) (*otp.Challenge, error) {
	if s.issueErr != nil {
		return nil, s.issueErr
	}
	s.issued = append(s.issued, params)
	c := s.challenge
	return &c, nil
}

func (s *stubOTPGateway) Resend(ctx context.Context, providerID string) (*otp.Challenge, error) {
	s.resends = append(s.resends, providerID)
	c := s.challenge
	return &c, nil
}

func (s *stubOTPGateway) Verify(ctx context.Context, providerID, code string) error {
	if s.verifyErr != nil {
		return s.verifyErr
	}
	s.verifies = append(s.verifies, code)
	return nil
}

type stubQRGateway struct {
	intent     *qrpay.Intent
	intentErr  error
	code       *qrpay.Code
	codeErr    error
	settlement *qrpay.SettlementStatus
	checkErr   error

	intentCalls int
	checkCalls  int
}

func (s *stubQRGateway) CreateIntent(ctx context.Context, params qrpay.CreateIntentParams) (*qrpay.Intent, error) {
	s.intentCalls++
	if s.intentErr != nil {
		return nil, s.intentErr
	}
	return s.intent, nil
}

func (s *stubQRGateway) GenerateCode(ctx context.Context, paymentID string) (*qrpay.Code, error) {
	if s.codeErr != nil {
		return nil, s.codeErr
	}
	return s.code, nil
}

func (s *stubQRGateway) Validate(ctx context.Context, paymentID string) (*qrpay.SettlementStatus, error) {
	s.checkCalls++
	if s.checkErr != nil {
		return nil, s.checkErr
	}
	return s.settlement, nil
}

type recorderNotifier struct {
	events []notify.Event
}

func (r *recorderNotifier) Emit(ctx context.Context, event notify.Event) {
	r.events = append(r.events, event)
}

type fixture struct {
	svc      *service
	repo     *stubDeliveryRepo
	otpGW    *stubOTPGateway
	qrGW     *stubQRGateway
	notifier *recorderNotifier
	actor    Actor
	order    *models.Order
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

func newFixture(t *testing.T, mutate func(o *models.Order)) *fixture {
	t.Helper()

	agentID := uuid.New()
	assignedAt := time.Now().UTC().Add(-40 * time.Minute)
	order := &models.Order{
		ID:             uuid.New(),
		OrderNumber:    "TRD-2025-001234",
		BuyerID:        uuid.New(),
		SellerID:       uuid.New(),
		Status:         enums.OrderStatusPickupReady,
		ApprovalStatus: enums.ApprovalStatusApproved,
		PaymentMethod:  enums.PaymentMethodPrepaid,
		TotalCents:     129900,
		Assignment: models.DeliveryAssignment{
			AgentID:    &agentID,
			Status:     enums.DeliveryStatusAssigned,
			AssignedAt: &assignedAt,
		},
	}
	if mutate != nil {
		mutate(order)
	}

	repo := newStubRepo(order)
	repo.agent = &models.DeliveryAgent{
		ID:                 agentID,
		Name:               "Ravi Kumar",
		CompletedCount:     4,
		TotalEarnings:      decimal.NewFromInt(160),
		AvgDeliveryMinutes: decimal.NewFromInt(30),
	}
	repo.buyer = &models.Buyer{ID: order.BuyerID, Name: "Asha", Phone: "+919876543210"}

	otpGW := &stubOTPGateway{challenge: otp.Challenge{
		ProviderID: "otp-prov-1",
		ExpiresAt:  time.Now().UTC().Add(5 * time.Minute),
	}}
	qrGW := &stubQRGateway{
		intent:     &qrpay.Intent{PaymentID: "pay_123", OrderSlug: order.OrderNumber, AmountCents: order.TotalCents, Status: "created"},
		code:       &qrpay.Code{PaymentID: "pay_123", Code: "upi://pay?x=1", Data: "base64data"},
		settlement: &qrpay.SettlementStatus{PaymentID: "pay_123", Paid: true, TransactionID: "txn_987"},
	}
	notifier := &recorderNotifier{}

	svc, err := NewService(repo, passthroughTx{}, otpGW, qrGW, notifier, nil, testLogger(), 4000)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	return &fixture{
		svc:      svc.(*service),
		repo:     repo,
		otpGW:    otpGW,
		qrGW:     qrGW,
		notifier: notifier,
		actor:    Actor{AgentID: agentID, UserID: uuid.New()},
		order:    order,
	}
}

func wantCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error with code %s, got %v", code, err)
	}
	if typed.Code() != code {
		t.Fatalf("expected code %s, got %s (%v)", code, typed.Code(), err)
	}
}

func TestAcceptTransitionsAndNotifies(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.svc.Accept(context.Background(), AcceptInput{OrderID: f.order.ID, Actor: f.actor}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if len(f.repo.guardedUpdates) != 1 {
		t.Fatalf("expected one guarded update, got %d", len(f.repo.guardedUpdates))
	}
	if got := f.repo.guardedUpdates[0]["assignment_status"]; got != enums.DeliveryStatusAccepted {
		t.Fatalf("expected accepted status, got %v", got)
	}
	if f.repo.counters["accepted_count"] != 1 {
		t.Fatalf("expected accepted_count increment")
	}
	if !f.repo.timelineActions[models.TimelineAgentAccepted] {
		t.Fatalf("expected timeline entry")
	}
	if len(f.notifier.events) != 3 {
		t.Fatalf("expected seller, buyer and admin events, got %d", len(f.notifier.events))
	}
}

func TestAcceptFailsWhenAlreadyAccepted(t *testing.T) {
	acceptedAt := time.Now().UTC().Add(-10 * time.Minute)
	f := newFixture(t, func(o *models.Order) {
		o.Assignment.Status = enums.DeliveryStatusAccepted
		o.Assignment.AcceptedAt = &acceptedAt
	})

	err := f.svc.Accept(context.Background(), AcceptInput{OrderID: f.order.ID, Actor: f.actor})
	wantCode(t, err, pkgerrors.CodeStateConflict)
	if len(f.repo.guardedUpdates) != 0 {
		t.Fatalf("expected no update on repeat accept")
	}
	if len(f.notifier.events) != 0 {
		t.Fatalf("expected no events on repeat accept")
	}
	if f.order.Assignment.AcceptedAt == nil || !f.order.Assignment.AcceptedAt.Equal(acceptedAt) {
		t.Fatalf("expected original acceptance time untouched")
	}
}

func TestAcceptRejectsForeignAgent(t *testing.T) {
	f := newFixture(t, nil)
	stranger := Actor{AgentID: uuid.New(), UserID: uuid.New()}

	err := f.svc.Accept(context.Background(), AcceptInput{OrderID: f.order.ID, Actor: stranger})
	wantCode(t, err, pkgerrors.CodeForbidden)
}

func TestAcceptRequiresApproval(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.ApprovalStatus = enums.ApprovalStatusPending
	})

	err := f.svc.Accept(context.Background(), AcceptInput{OrderID: f.order.ID, Actor: f.actor})
	wantCode(t, err, pkgerrors.CodeStateConflict)
}

func TestAcceptLosesGuardRace(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.guardMismatch = true

	err := f.svc.Accept(context.Background(), AcceptInput{OrderID: f.order.ID, Actor: f.actor})
	wantCode(t, err, pkgerrors.CodeStateConflict)
}

func TestRejectReleasesAgentAndRecordsReassignment(t *testing.T) {
	f := newFixture(t, nil)
	reason := "vehicle breakdown"

	if err := f.svc.Reject(context.Background(), RejectInput{OrderID: f.order.ID, Actor: f.actor, Reason: &reason}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	updates := f.repo.guardedUpdates[0]
	if updates["assignment_status"] != enums.DeliveryStatusRejected {
		t.Fatalf("expected order moved to rejected, got %v", updates["assignment_status"])
	}
	if v, ok := updates["assignment_agent_id"]; !ok || v != nil {
		t.Fatalf("expected agent cleared, got %v", v)
	}
	if len(f.repo.reassignments) != 1 || f.repo.reassignments[0].AgentID != f.actor.AgentID {
		t.Fatalf("expected reassignment entry for the rejecting agent")
	}
	if f.repo.counters["rejected_count"] != 1 {
		t.Fatalf("expected rejected_count increment")
	}
	if len(f.notifier.events) != 2 || f.notifier.events[0].Channel != enums.NotificationChannelAdmin {
		t.Fatalf("expected admin and seller reassignment events")
	}
}

func TestReachedSellerLocationIsIdempotent(t *testing.T) {
	reached := time.Now().UTC().Add(-time.Minute)
	f := newFixture(t, func(o *models.Order) {
		o.Assignment.Status = enums.DeliveryStatusAccepted
		o.Pickup.SellerLocationReachedAt = &reached
	})

	if err := f.svc.ReachedSellerLocation(context.Background(), ReachedSellerInput{OrderID: f.order.ID, Actor: f.actor}); err != nil {
		t.Fatalf("reached seller: %v", err)
	}
	if len(f.repo.orderUpdates) != 0 {
		t.Fatalf("expected no writes on repeat arrival")
	}
}

func TestReachedSellerLocationRequiresAcceptance(t *testing.T) {
	f := newFixture(t, nil)

	err := f.svc.ReachedSellerLocation(context.Background(), ReachedSellerInput{OrderID: f.order.ID, Actor: f.actor})
	wantCode(t, err, pkgerrors.CodeStateConflict)
}

func TestCompletePickupVerifiesOrderNumber(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.Assignment.Status = enums.DeliveryStatusAccepted
	})

	err := f.svc.CompletePickup(context.Background(), CompletePickupInput{
		OrderID:          f.order.ID,
		Actor:            f.actor,
		VerificationCode: "TRD-2025-999999",
	})
	wantCode(t, err, pkgerrors.CodeValidation)
	if len(f.repo.guardedUpdates) != 0 {
		t.Fatalf("expected no transition on bad code")
	}
}

func TestCompletePickupMovesOrderOutForDelivery(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.Assignment.Status = enums.DeliveryStatusAccepted
	})

	err := f.svc.CompletePickup(context.Background(), CompletePickupInput{
		OrderID:          f.order.ID,
		Actor:            f.actor,
		VerificationCode: f.order.OrderNumber,
	})
	if err != nil {
		t.Fatalf("complete pickup: %v", err)
	}

	updates := f.repo.guardedUpdates[0]
	if updates["status"] != enums.OrderStatusOutForDelivery {
		t.Fatalf("expected order out for delivery, got %v", updates["status"])
	}
	if updates["assignment_status"] != enums.DeliveryStatusPickupCompleted {
		t.Fatalf("expected pickup completed, got %v", updates["assignment_status"])
	}
	if f.repo.counters["pickup_count"] != 1 {
		t.Fatalf("expected pickup_count increment")
	}
}

func TestReachedBuyerLocationIssuesOTPForPrepaid(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.Status = enums.OrderStatusOutForDelivery
		o.Assignment.Status = enums.DeliveryStatusPickupCompleted
		o.Pickup.Completed = true
	})

	payload, err := f.svc.ReachedBuyerLocation(context.Background(), ReachedBuyerInput{OrderID: f.order.ID, Actor: f.actor})
	if err != nil {
		t.Fatalf("reached buyer: %v", err)
	}
	if payload.Mode != PaymentModeOTP {
		t.Fatalf("expected otp mode, got %s", payload.Mode)
	}
	if payload.OTP == nil || !payload.OTP.Sent {
		t.Fatalf("expected otp issued")
	}
	if payload.OTP.MaskedPhone == f.repo.buyer.Phone {
		t.Fatalf("expected masked phone, got raw number")
	}
	if len(f.otpGW.issued) != 1 || f.otpGW.issued[0].Phone != f.repo.buyer.Phone {
		t.Fatalf("expected otp sent to the buyer's current phone")
	}
	if !f.repo.timelineActions[models.TimelineBuyerLocationReached] || !f.repo.timelineActions[models.TimelineOTPSent] {
		t.Fatalf("expected arrival and otp timeline entries")
	}
}

func TestReachedBuyerLocationSurvivesGatewayFailure(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.Status = enums.OrderStatusOutForDelivery
		o.Assignment.Status = enums.DeliveryStatusPickupCompleted
		o.Pickup.Completed = true
	})
	f.otpGW.issueErr = errors.New("provider down")

	payload, err := f.svc.ReachedBuyerLocation(context.Background(), ReachedBuyerInput{OrderID: f.order.ID, Actor: f.actor})
	if err != nil {
		t.Fatalf("arrival must commit despite gateway failure, got %v", err)
	}
	if payload.Error == nil {
		t.Fatalf("expected payment error in payload")
	}
	if len(f.repo.guardedUpdates) != 1 {
		t.Fatalf("expected arrival transition recorded")
	}
}

func TestReachedBuyerLocationReentryDoesNotRerecordArrival(t *testing.T) {
	providerID := "otp-prov-1"
	f := newFixture(t, func(o *models.Order) {
		o.Status = enums.OrderStatusOutForDelivery
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
		o.OTP.Required = true
		o.OTP.ProviderID = &providerID
	})

	payload, err := f.svc.ReachedBuyerLocation(context.Background(), ReachedBuyerInput{OrderID: f.order.ID, Actor: f.actor})
	if err != nil {
		t.Fatalf("re-entry: %v", err)
	}
	if len(f.repo.guardedUpdates) != 0 {
		t.Fatalf("expected no second arrival transition")
	}
	if len(f.otpGW.issued) != 0 {
		t.Fatalf("expected no duplicate otp issue")
	}
	if payload.OTP == nil || !payload.OTP.Sent {
		t.Fatalf("expected existing challenge reported")
	}
}

func TestGenerateQRReturnsStoredLiveCode(t *testing.T) {
	paymentID, code, data := "pay_123", "upi://pay?x=1", "blob"
	f := newFixture(t, func(o *models.Order) {
		o.PaymentMethod = enums.PaymentMethodCOD
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
		o.CODQR.PaymentID = &paymentID
		o.CODQR.Code = &code
		o.CODQR.Data = &data
		o.CODQR.Status = enums.QRIntentStatusGenerated
	})

	payload, err := f.svc.GenerateQR(context.Background(), GenerateQRInput{OrderID: f.order.ID, Actor: f.actor})
	if err != nil {
		t.Fatalf("generate qr: %v", err)
	}
	if payload.Code != code {
		t.Fatalf("expected stored code returned")
	}
	if f.qrGW.intentCalls != 0 {
		t.Fatalf("expected no provider calls for a live code")
	}
}

func TestGenerateQRRecoversExistingIntent(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.PaymentMethod = enums.PaymentMethodCOD
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
	})
	f.qrGW.intentErr = qrpay.ErrIntentExists
	f.repo.latestAttempt = &models.QRPaymentAttempt{
		OrderID:     f.order.ID,
		PaymentID:   "pay_prior",
		OrderSlug:   f.order.OrderNumber,
		AmountCents: f.order.TotalCents,
		Status:      enums.QRIntentStatusCreated,
	}

	payload, err := f.svc.GenerateQR(context.Background(), GenerateQRInput{OrderID: f.order.ID, Actor: f.actor})
	if err != nil {
		t.Fatalf("generate qr: %v", err)
	}
	if payload.PaymentID != "pay_prior" {
		t.Fatalf("expected recovered payment id, got %s", payload.PaymentID)
	}
}

func TestGenerateQRRejectsPrepaidOrders(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
	})

	_, err := f.svc.GenerateQR(context.Background(), GenerateQRInput{OrderID: f.order.ID, Actor: f.actor})
	wantCode(t, err, pkgerrors.CodeValidation)
}

func TestCheckPaymentStatusShortCircuitsWhenPaid(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.PaymentMethod = enums.PaymentMethodCOD
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
		o.IsPaid = true
	})

	result, err := f.svc.CheckPaymentStatus(context.Background(), CheckPaymentInput{OrderID: f.order.ID, Actor: f.actor})
	if err != nil {
		t.Fatalf("check payment: %v", err)
	}
	if !result.Paid || !result.AlreadyConfirmed {
		t.Fatalf("expected already-confirmed result")
	}
	if f.qrGW.checkCalls != 0 {
		t.Fatalf("settled orders must not poll the gateway")
	}
}

func TestCheckPaymentStatusSettlesOnce(t *testing.T) {
	paymentID := "pay_123"
	f := newFixture(t, func(o *models.Order) {
		o.PaymentMethod = enums.PaymentMethodCOD
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
		o.CODQR.PaymentID = &paymentID
	})

	result, err := f.svc.CheckPaymentStatus(context.Background(), CheckPaymentInput{OrderID: f.order.ID, Actor: f.actor})
	if err != nil {
		t.Fatalf("check payment: %v", err)
	}
	if !result.Paid || result.AlreadyConfirmed {
		t.Fatalf("expected fresh settlement, got %+v", result)
	}

	updates := f.repo.paidUpdates[0]
	if updates["cod_method"] != enums.CODMethodUPI {
		t.Fatalf("expected upi settlement, got %v", updates["cod_method"])
	}
	if updates["cod_transaction_id"] != "txn_987" {
		t.Fatalf("expected provider transaction recorded")
	}
	if !f.repo.timelineActions[models.TimelinePaymentConfirmed] {
		t.Fatalf("expected payment_confirmed timeline entry")
	}
	// The settlement unlocks the buyer OTP confirmation.
	if len(f.otpGW.issued) != 1 {
		t.Fatalf("expected otp issued after settlement")
	}
	if len(f.notifier.events) != 2 {
		t.Fatalf("expected payment events, got %d", len(f.notifier.events))
	}
}

func TestCheckPaymentStatusRequiresIntent(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.PaymentMethod = enums.PaymentMethodCOD
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
	})

	_, err := f.svc.CheckPaymentStatus(context.Background(), CheckPaymentInput{OrderID: f.order.ID, Actor: f.actor})
	wantCode(t, err, pkgerrors.CodeStateConflict)
}

func TestSendOTPDoesNotReissueExistingChallenge(t *testing.T) {
	providerID := "otp-prov-1"
	f := newFixture(t, func(o *models.Order) {
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
		o.OTP.Required = true
		o.OTP.ProviderID = &providerID
	})

	payload, err := f.svc.SendOTP(context.Background(), SendOTPInput{OrderID: f.order.ID, Actor: f.actor})
	if err != nil {
		t.Fatalf("send otp: %v", err)
	}
	if len(f.otpGW.issued) != 0 {
		t.Fatalf("expected no reissue for an existing challenge")
	}
	if !payload.Sent {
		t.Fatalf("expected existing challenge reported as sent")
	}
}

func TestResendOTPRequiresChallenge(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
	})

	_, err := f.svc.ResendOTP(context.Background(), SendOTPInput{OrderID: f.order.ID, Actor: f.actor})
	wantCode(t, err, pkgerrors.CodeStateConflict)
}

func TestVerifyOTPWithoutChallengeFails(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
	})

	err := f.svc.VerifyOTP(context.Background(), VerifyOTPInput{OrderID: f.order.ID, Actor: f.actor, Code: "123456"})
	wantCode(t, err, pkgerrors.CodeStateConflict)
}

func TestVerifyOTPMarksOrderVerified(t *testing.T) {
	providerID := "otp-prov-1"
	f := newFixture(t, func(o *models.Order) {
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
		o.OTP.Required = true
		o.OTP.ProviderID = &providerID
	})

	if err := f.svc.VerifyOTP(context.Background(), VerifyOTPInput{OrderID: f.order.ID, Actor: f.actor, Code: "123456"}); err != nil {
		t.Fatalf("verify otp: %v", err)
	}
	if len(f.otpGW.verifies) != 1 {
		t.Fatalf("expected provider verification")
	}
	if f.repo.orderUpdates[0]["otp_verified"] != true {
		t.Fatalf("expected otp_verified persisted")
	}
	if !f.repo.timelineActions[models.TimelineOTPVerified] {
		t.Fatalf("expected otp_verified timeline entry")
	}
}

func TestMarkCashCollectedIsIdempotent(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.PaymentMethod = enums.PaymentMethodCOD
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
		o.IsPaid = true
	})

	if err := f.svc.MarkCashCollected(context.Background(), MarkCashCollectedInput{OrderID: f.order.ID, Actor: f.actor}); err != nil {
		t.Fatalf("mark cash: %v", err)
	}
	if len(f.repo.paidUpdates) != 0 {
		t.Fatalf("expected no settlement writes on repeat call")
	}
}

func TestMarkCashCollectedSettlesFullAmount(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.PaymentMethod = enums.PaymentMethodCOD
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
	})

	if err := f.svc.MarkCashCollected(context.Background(), MarkCashCollectedInput{OrderID: f.order.ID, Actor: f.actor}); err != nil {
		t.Fatalf("mark cash: %v", err)
	}

	updates := f.repo.paidUpdates[0]
	if updates["cod_method"] != enums.CODMethodCash {
		t.Fatalf("expected cash method, got %v", updates["cod_method"])
	}
	if updates["cod_amount_cents"] != f.order.TotalCents {
		t.Fatalf("expected full order amount, got %v", updates["cod_amount_cents"])
	}
	if !f.repo.timelineActions[models.TimelineCashCollected] || !f.repo.timelineActions[models.TimelinePaymentConfirmed] {
		t.Fatalf("expected cash and payment timeline entries")
	}
}

func TestCompleteDeliveryBlocksUnpaidCOD(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.PaymentMethod = enums.PaymentMethodCOD
		o.Status = enums.OrderStatusOutForDelivery
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
	})

	err := f.svc.CompleteDelivery(context.Background(), CompleteDeliveryInput{OrderID: f.order.ID, Actor: f.actor})
	wantCode(t, err, pkgerrors.CodeStateConflict)
}

func TestCompleteDeliverySettlesCashInline(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.PaymentMethod = enums.PaymentMethodCOD
		o.Status = enums.OrderStatusOutForDelivery
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
	})

	err := f.svc.CompleteDelivery(context.Background(), CompleteDeliveryInput{
		OrderID:   f.order.ID,
		Actor:     f.actor,
		CODMethod: enums.CODMethodCash,
	})
	if err != nil {
		t.Fatalf("complete delivery: %v", err)
	}

	if len(f.repo.paidUpdates) != 1 {
		t.Fatalf("expected one settlement write, got %d", len(f.repo.paidUpdates))
	}
	if f.repo.paidUpdates[0]["cod_method"] != enums.CODMethodCash {
		t.Fatalf("expected cash settlement, got %v", f.repo.paidUpdates[0]["cod_method"])
	}
	if !f.repo.timelineActions[models.TimelineCashCollected] || !f.repo.timelineActions[models.TimelineDeliveryCompleted] {
		t.Fatalf("expected cash and completion timeline entries")
	}
	if f.repo.guardedUpdates[0]["status"] != enums.OrderStatusDelivered {
		t.Fatalf("expected delivered status, got %v", f.repo.guardedUpdates[0]["status"])
	}
	if len(f.notifier.events) != 3 {
		t.Fatalf("expected payment and delivery events, got %d", len(f.notifier.events))
	}
	if f.notifier.events[0].Event != enums.NotificationEventPaymentConfirmed {
		t.Fatalf("expected payment confirmation first, got %v", f.notifier.events[0].Event)
	}
}

func TestCompleteDeliveryCashInlineSettlesOnce(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.PaymentMethod = enums.PaymentMethodCOD
		o.Status = enums.OrderStatusOutForDelivery
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
	})

	if err := f.svc.MarkCashCollected(context.Background(), MarkCashCollectedInput{OrderID: f.order.ID, Actor: f.actor}); err != nil {
		t.Fatalf("mark cash: %v", err)
	}
	err := f.svc.CompleteDelivery(context.Background(), CompleteDeliveryInput{
		OrderID:   f.order.ID,
		Actor:     f.actor,
		CODMethod: enums.CODMethodCash,
	})
	if err != nil {
		t.Fatalf("complete delivery: %v", err)
	}
	if len(f.repo.paidUpdates) != 1 {
		t.Fatalf("expected a single settlement write, got %d", len(f.repo.paidUpdates))
	}
}

func TestCompleteDeliveryRejectsUnsettledQRPayment(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.PaymentMethod = enums.PaymentMethodCOD
		o.Status = enums.OrderStatusOutForDelivery
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
	})

	err := f.svc.CompleteDelivery(context.Background(), CompleteDeliveryInput{
		OrderID:   f.order.ID,
		Actor:     f.actor,
		CODMethod: enums.CODMethodUPI,
	})
	wantCode(t, err, pkgerrors.CodeStateConflict)
	if len(f.repo.paidUpdates) != 0 {
		t.Fatalf("upi payments must settle through the gateway, not inline")
	}
}

func TestCompleteDeliveryPrepaidRequiresIssuedChallenge(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.Status = enums.OrderStatusOutForDelivery
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
		o.IsPaid = true
	})

	err := f.svc.CompleteDelivery(context.Background(), CompleteDeliveryInput{OrderID: f.order.ID, Actor: f.actor})
	wantCode(t, err, pkgerrors.CodeStateConflict)
	if len(f.repo.guardedUpdates) != 0 {
		t.Fatalf("expected no completion without an issued otp challenge")
	}
}

func TestCompleteDeliveryRequiresOTPCodeForPrepaid(t *testing.T) {
	providerID := "otp-prov-1"
	f := newFixture(t, func(o *models.Order) {
		o.Status = enums.OrderStatusOutForDelivery
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
		o.IsPaid = true
		o.OTP.Required = true
		o.OTP.ProviderID = &providerID
	})

	err := f.svc.CompleteDelivery(context.Background(), CompleteDeliveryInput{OrderID: f.order.ID, Actor: f.actor})
	wantCode(t, err, pkgerrors.CodeValidation)
}

func TestCompleteDeliveryUpdatesAgentStats(t *testing.T) {
	providerID := "otp-prov-1"
	f := newFixture(t, func(o *models.Order) {
		o.Status = enums.OrderStatusOutForDelivery
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
		o.IsPaid = true
		o.OTP.Required = true
		o.OTP.ProviderID = &providerID
	})

	err := f.svc.CompleteDelivery(context.Background(), CompleteDeliveryInput{
		OrderID: f.order.ID,
		Actor:   f.actor,
		OTPCode: "123456",
	})
	if err != nil {
		t.Fatalf("complete delivery: %v", err)
	}

	updates := f.repo.guardedUpdates[0]
	if updates["status"] != enums.OrderStatusDelivered {
		t.Fatalf("expected delivered status, got %v", updates["status"])
	}
	minutes, ok := updates["assignment_duration_minutes"].(int)
	if !ok || minutes < 39 || minutes > 41 {
		t.Fatalf("expected roughly 40 minute duration, got %v", updates["assignment_duration_minutes"])
	}

	if f.repo.agentUpdates["completed_count"] != 5 {
		t.Fatalf("expected completed_count 5, got %v", f.repo.agentUpdates["completed_count"])
	}
	earnings, ok := f.repo.agentUpdates["total_earnings"].(decimal.Decimal)
	if !ok || !earnings.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected earnings 200, got %v", f.repo.agentUpdates["total_earnings"])
	}
	avg, ok := f.repo.agentUpdates["avg_delivery_minutes"].(decimal.Decimal)
	if !ok || !avg.Equal(decimal.NewFromInt(32)) {
		t.Fatalf("expected rolling average 32, got %v", f.repo.agentUpdates["avg_delivery_minutes"])
	}
}

func TestCompleteDeliveryCashWithoutChallengeSkipsOTP(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.PaymentMethod = enums.PaymentMethodCOD
		o.Status = enums.OrderStatusOutForDelivery
		o.Assignment.Status = enums.DeliveryStatusLocationReached
		o.Pickup.Completed = true
		o.IsPaid = true
		o.CODPayment.Method = enums.CODMethodCash
	})

	if err := f.svc.CompleteDelivery(context.Background(), CompleteDeliveryInput{OrderID: f.order.ID, Actor: f.actor}); err != nil {
		t.Fatalf("complete delivery: %v", err)
	}
	if len(f.otpGW.verifies) != 0 {
		t.Fatalf("cash orders without a challenge must not require otp")
	}
}

func TestCancelRequiresReason(t *testing.T) {
	f := newFixture(t, nil)

	err := f.svc.Cancel(context.Background(), CancelInput{OrderID: f.order.ID, Actor: f.actor, Reason: "  "})
	wantCode(t, err, pkgerrors.CodeValidation)
}

func TestCancelRejectsDeliveredOrders(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.Status = enums.OrderStatusDelivered
		o.Assignment.Status = enums.DeliveryStatusDeliveryCompleted
	})

	err := f.svc.Cancel(context.Background(), CancelInput{OrderID: f.order.ID, Actor: f.actor, Reason: "mistake"})
	wantCode(t, err, pkgerrors.CodeStateConflict)
}

func TestCancelReleasesAgentAndNotifiesEveryone(t *testing.T) {
	f := newFixture(t, func(o *models.Order) {
		o.Assignment.Status = enums.DeliveryStatusAccepted
	})

	if err := f.svc.Cancel(context.Background(), CancelInput{OrderID: f.order.ID, Actor: f.actor, Reason: "buyer unreachable"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	updates := f.repo.guardedUpdates[0]
	if updates["status"] != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled status")
	}
	if updates["cancel_by"] != enums.CancellationActorAgent {
		t.Fatalf("expected agent cancellation actor, got %v", updates["cancel_by"])
	}
	if updates["cancel_by_name"] != "Ravi Kumar" {
		t.Fatalf("expected agent name recorded, got %v", updates["cancel_by_name"])
	}
	if f.repo.counters["cancelled_count"] != 1 {
		t.Fatalf("expected cancelled_count increment")
	}
	if len(f.notifier.events) != 3 {
		t.Fatalf("expected buyer, seller and admin events, got %d", len(f.notifier.events))
	}
}

func TestGetOrderEnforcesOwnership(t *testing.T) {
	f := newFixture(t, nil)
	stranger := Actor{AgentID: uuid.New(), UserID: uuid.New()}

	_, err := f.svc.GetOrder(context.Background(), GetOrderInput{OrderID: f.order.ID, Actor: stranger})
	wantCode(t, err, pkgerrors.CodeForbidden)
}
