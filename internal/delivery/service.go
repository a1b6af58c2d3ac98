package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rohanbasu/trendora-backend/internal/notify"
	"github.com/rohanbasu/trendora-backend/pkg/db/models"
	"github.com/rohanbasu/trendora-backend/pkg/enums"
	pkgerrors "github.com/rohanbasu/trendora-backend/pkg/errors"
	"github.com/rohanbasu/trendora-backend/pkg/logger"
	"github.com/rohanbasu/trendora-backend/pkg/metrics"
	"github.com/rohanbasu/trendora-backend/pkg/otp"
	"github.com/rohanbasu/trendora-backend/pkg/qrpay"
	"github.com/rohanbasu/trendora-backend/pkg/types"
)

// Service drives the delivery fulfillment state machine.
type Service interface {
	Accept(ctx context.Context, input AcceptInput) error
	Reject(ctx context.Context, input RejectInput) error
	ReachedSellerLocation(ctx context.Context, input ReachedSellerInput) error
	CompletePickup(ctx context.Context, input CompletePickupInput) error
	ReachedBuyerLocation(ctx context.Context, input ReachedBuyerInput) (*PaymentPayload, error)
	GenerateQR(ctx context.Context, input GenerateQRInput) (*QRPayload, error)
	CheckPaymentStatus(ctx context.Context, input CheckPaymentInput) (*PaymentStatusResult, error)
	SendOTP(ctx context.Context, input SendOTPInput) (*OTPPayload, error)
	ResendOTP(ctx context.Context, input SendOTPInput) (*OTPPayload, error)
	VerifyOTP(ctx context.Context, input VerifyOTPInput) error
	MarkCashCollected(ctx context.Context, input MarkCashCollectedInput) error
	CompleteDelivery(ctx context.Context, input CompleteDeliveryInput) error
	Cancel(ctx context.Context, input CancelInput) error
	GetOrder(ctx context.Context, input GetOrderInput) (*models.Order, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	otpGW    OTPGateway
	qrGW     QRGateway
	notifier Notifier
	metrics  *metrics.DeliveryMetrics
	logg     *logger.Logger

	agentFeeCents int
	now           func() time.Time
}

// NewService builds the delivery service with the required dependencies.
func NewService(
	repo Repository,
	tx txRunner,
	otpGW OTPGateway,
	qrGW QRGateway,
	notifier Notifier,
	deliveryMetrics *metrics.DeliveryMetrics,
	logg *logger.Logger,
	agentFeeCents int,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("delivery repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if otpGW == nil {
		return nil, fmt.Errorf("otp gateway required")
	}
	if qrGW == nil {
		return nil, fmt.Errorf("qr gateway required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:          repo,
		tx:            tx,
		otpGW:         otpGW,
		qrGW:          qrGW,
		notifier:      notifier,
		metrics:       deliveryMetrics,
		logg:          logg,
		agentFeeCents: agentFeeCents,
		now:           time.Now,
	}, nil
}

func (s *service) Accept(ctx context.Context, input AcceptInput) error {
	if err := validateActor(input.OrderID, input.Actor); err != nil {
		return s.observe(ctx, "accept", err)
	}

	var events []notify.Event
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOwnedOrder(ctx, repo, input.OrderID, input.Actor)
		if err != nil {
			return err
		}
		if order.Assignment.Status == enums.DeliveryStatusAccepted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already accepted")
		}
		if order.Status != enums.OrderStatusPickupReady {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not ready for pickup")
		}
		if order.ApprovalStatus != enums.ApprovalStatusApproved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has not been approved for fulfillment")
		}
		if !order.Assignment.Status.CanTransitionTo(enums.DeliveryStatusAccepted) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be accepted in its current state")
		}

		now := s.now().UTC()
		rows, err := repo.UpdateOrderIfAssignment(ctx, order.ID, enums.DeliveryStatusAssigned, map[string]any{
			"assignment_status":      enums.DeliveryStatusAccepted,
			"assignment_accepted_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept order")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order assignment changed concurrently")
		}

		if err := repo.AppendTimeline(ctx, timelineEntry(order.ID, models.TimelineAgentAccepted, nil, input.Actor)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record acceptance")
		}
		if err := repo.IncrementAgentCounter(ctx, input.Actor.AgentID, "accepted_count", 1); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update agent counters")
		}

		events = append(events,
			orderEvent(order, enums.NotificationEventOrderAccepted, enums.NotificationChannelSeller, order.SellerID,
				"Order accepted", "A delivery agent accepted the pickup"),
			orderEvent(order, enums.NotificationEventOrderAccepted, enums.NotificationChannelBuyer, order.BuyerID,
				"Order on its way soon", "A delivery agent accepted your order"),
			orderEvent(order, enums.NotificationEventOrderAccepted, enums.NotificationChannelAdmin, order.SellerID,
				"Order accepted", "A delivery agent accepted the pickup"),
		)
		return nil
	})

	s.emitAll(ctx, events)
	return s.observe(ctx, "accept", err)
}

func (s *service) Reject(ctx context.Context, input RejectInput) error {
	if err := validateActor(input.OrderID, input.Actor); err != nil {
		return s.observe(ctx, "reject", err)
	}

	var events []notify.Event
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOwnedOrder(ctx, repo, input.OrderID, input.Actor)
		if err != nil {
			return err
		}
		if !order.Assignment.Status.CanTransitionTo(enums.DeliveryStatusRejected) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be rejected in its current state")
		}

		now := s.now().UTC()
		rows, err := repo.UpdateOrderIfAssignment(ctx, order.ID, order.Assignment.Status, map[string]any{
			"assignment_status":           enums.DeliveryStatusRejected,
			"assignment_agent_id":         nil,
			"assignment_assigned_at":      nil,
			"assignment_rejected_at":      now,
			"assignment_rejection_reason": input.Reason,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject order")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order assignment changed concurrently")
		}

		if err := repo.CreateReassignmentEntry(ctx, &models.ReassignmentEntry{
			OrderID:    order.ID,
			AgentID:    input.Actor.AgentID,
			Reason:     input.Reason,
			RejectedAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record reassignment entry")
		}
		if err := repo.AppendTimeline(ctx, timelineEntry(order.ID, models.TimelineAgentRejected, input.Reason, input.Actor)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record rejection")
		}
		if err := repo.IncrementAgentCounter(ctx, input.Actor.AgentID, "rejected_count", 1); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update agent counters")
		}

		events = append(events,
			orderEvent(order, enums.NotificationEventReassignmentNeeded, enums.NotificationChannelAdmin, order.SellerID,
				"Delivery needs reassignment", "The assigned agent rejected the order"),
			orderEvent(order, enums.NotificationEventOrderRejected, enums.NotificationChannelSeller, order.SellerID,
				"Pickup delayed", "The assigned agent rejected the order, a new agent will be assigned"),
		)
		return nil
	})

	s.emitAll(ctx, events)
	return s.observe(ctx, "reject", err)
}

// ReachedSellerLocation is idempotent: repeating the call after the arrival
// was already recorded succeeds without touching the order again.
func (s *service) ReachedSellerLocation(ctx context.Context, input ReachedSellerInput) error {
	if err := validateActor(input.OrderID, input.Actor); err != nil {
		return s.observe(ctx, "reached_seller", err)
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOwnedOrder(ctx, repo, input.OrderID, input.Actor)
		if err != nil {
			return err
		}
		if order.Pickup.SellerLocationReachedAt != nil {
			return nil
		}
		if order.Assignment.Status != enums.DeliveryStatusAccepted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order must be accepted before arriving at the seller")
		}

		now := s.now().UTC()
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"pickup_seller_location_reached_at": now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record seller arrival")
		}
		if err := repo.AppendTimeline(ctx, timelineEntry(order.ID, models.TimelineSellerLocationReached, nil, input.Actor)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record seller arrival")
		}
		return nil
	})

	return s.observe(ctx, "reached_seller", err)
}

func (s *service) CompletePickup(ctx context.Context, input CompletePickupInput) error {
	if err := validateActor(input.OrderID, input.Actor); err != nil {
		return s.observe(ctx, "complete_pickup", err)
	}
	code := strings.TrimSpace(input.VerificationCode)
	if code == "" {
		return s.observe(ctx, "complete_pickup", pkgerrors.New(pkgerrors.CodeValidation, "pickup verification code required"))
	}

	var events []notify.Event
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOwnedOrder(ctx, repo, input.OrderID, input.Actor)
		if err != nil {
			return err
		}
		if order.Pickup.Completed {
			return nil
		}
		if order.Assignment.Status != enums.DeliveryStatusAccepted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order must be accepted before pickup")
		}
		// Verification is an exact match on the order number the seller holds.
		if code != order.OrderNumber {
			return pkgerrors.New(pkgerrors.CodeValidation, "pickup verification code does not match")
		}

		now := s.now().UTC()
		rows, err := repo.UpdateOrderIfAssignment(ctx, order.ID, enums.DeliveryStatusAccepted, map[string]any{
			"status":                    enums.OrderStatusOutForDelivery,
			"assignment_status":         enums.DeliveryStatusPickupCompleted,
			"assignment_pickup_done_at": now,
			"pickup_completed":          true,
			"pickup_completed_at":       now,
			"pickup_completed_by":       input.Actor.AgentID,
			"pickup_notes":              input.Notes,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete pickup")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order assignment changed concurrently")
		}

		if err := repo.AppendTimeline(ctx, timelineEntry(order.ID, models.TimelinePickupCompleted, input.Notes, input.Actor)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record pickup")
		}
		if err := repo.IncrementAgentCounter(ctx, input.Actor.AgentID, "pickup_count", 1); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update agent counters")
		}

		events = append(events,
			orderEvent(order, enums.NotificationEventPickupCompleted, enums.NotificationChannelBuyer, order.BuyerID,
				"Out for delivery", "Your order has been picked up and is on the way"),
			orderEvent(order, enums.NotificationEventPickupCompleted, enums.NotificationChannelSeller, order.SellerID,
				"Pickup confirmed", "The delivery agent collected the order"),
		)
		return nil
	})

	s.emitAll(ctx, events)
	return s.observe(ctx, "complete_pickup", err)
}

// ReachedBuyerLocation records the arrival durably first, then prepares the
// payment collection. Gateway failures are reported in the payload, never as
// a failed transition; calling again retries only the payment preparation.
func (s *service) ReachedBuyerLocation(ctx context.Context, input ReachedBuyerInput) (*PaymentPayload, error) {
	if err := validateActor(input.OrderID, input.Actor); err != nil {
		return nil, s.observe(ctx, "reached_buyer", err)
	}

	var payload *PaymentPayload
	var events []notify.Event
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOwnedOrder(ctx, repo, input.OrderID, input.Actor)
		if err != nil {
			return err
		}

		switch order.Assignment.Status {
		case enums.DeliveryStatusLocationReached:
			// Re-entry: retry payment preparation without re-recording arrival.
		case enums.DeliveryStatusPickupCompleted:
			now := s.now().UTC()
			rows, err := repo.UpdateOrderIfAssignment(ctx, order.ID, enums.DeliveryStatusPickupCompleted, map[string]any{
				"assignment_status":            enums.DeliveryStatusLocationReached,
				"delivery_location_reached_at": now,
				"delivery_location_notes":      input.Notes,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record buyer arrival")
			}
			if rows == 0 {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order assignment changed concurrently")
			}
			order.Assignment.Status = enums.DeliveryStatusLocationReached
			if err := repo.AppendTimeline(ctx, timelineEntry(order.ID, models.TimelineBuyerLocationReached, input.Notes, input.Actor)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record buyer arrival")
			}
			events = append(events,
				orderEvent(order, enums.NotificationEventLocationReached, enums.NotificationChannelBuyer, order.BuyerID,
					"Agent has arrived", "Your delivery agent is at your location"),
			)
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "pickup must be completed before arriving at the buyer")
		}

		payload = s.preparePayment(ctx, repo, order, input.Actor)
		return nil
	})

	s.emitAll(ctx, events)
	if err != nil {
		return nil, s.observe(ctx, "reached_buyer", err)
	}
	return payload, s.observe(ctx, "reached_buyer", nil)
}

// preparePayment sets up the collection flow for the order's payment method.
// Provider errors land in the payload so the arrival itself stays committed.
func (s *service) preparePayment(ctx context.Context, repo Repository, order *models.Order, actor Actor) *PaymentPayload {
	if order.PaymentMethod == enums.PaymentMethodCOD {
		payload := &PaymentPayload{Mode: PaymentModeQR}
		if order.CODQR.PaymentID != nil {
			payload.QR = qrPayloadFromOrder(order)
			return payload
		}
		qr, err := s.ensureIntent(ctx, repo, order, actor)
		if err != nil {
			msg := err.Error()
			payload.Error = &msg
			return payload
		}
		payload.QR = qr
		return payload
	}

	payload := &PaymentPayload{Mode: PaymentModeOTP}
	if order.OTP.ProviderID != nil {
		otpPayload, err := s.otpView(ctx, repo, order)
		if err != nil {
			msg := err.Error()
			payload.Error = &msg
			return payload
		}
		payload.OTP = otpPayload
		return payload
	}
	otpPayload, err := s.issueChallenge(ctx, repo, order, actor)
	if err != nil {
		msg := err.Error()
		payload.Error = &msg
		return payload
	}
	payload.OTP = otpPayload
	return payload
}

// ensureIntent registers the gateway payment intent for a COD order. The
// order number doubles as the provider slug, so a provider-side duplicate is
// recovered from the newest local attempt instead of failing.
func (s *service) ensureIntent(ctx context.Context, repo Repository, order *models.Order, actor Actor) (*QRPayload, error) {
	started := s.now()
	intent, err := s.qrGW.CreateIntent(ctx, qrpay.CreateIntentParams{
		OrderSlug:   order.OrderNumber,
		AmountCents: order.TotalCents,
	})
	s.metrics.ObserveGatewayCall("qr", "create_intent", s.now().Sub(started))
	if err != nil {
		if !errors.Is(err, qrpay.ErrIntentExists) {
			return nil, err
		}
		attempt, lookupErr := repo.LatestQRAttempt(ctx, order.ID)
		if lookupErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, lookupErr, "recover payment intent")
		}
		if attempt == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment intent exists upstream but no local attempt records it")
		}
		intent = &qrpay.Intent{
			PaymentID:   attempt.PaymentID,
			OrderSlug:   attempt.OrderSlug,
			AmountCents: attempt.AmountCents,
			Status:      string(attempt.Status),
		}
	}

	now := s.now().UTC()
	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
		"qr_payment_id":   intent.PaymentID,
		"qr_order_slug":   intent.OrderSlug,
		"qr_amount_cents": intent.AmountCents,
		"qr_status":       enums.QRIntentStatusCreated,
		"qr_generated_by": actor.AgentID,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment intent")
	}
	if err := repo.CreateQRAttempt(ctx, &models.QRPaymentAttempt{
		OrderID:     order.ID,
		PaymentID:   intent.PaymentID,
		OrderSlug:   intent.OrderSlug,
		AmountCents: intent.AmountCents,
		Status:      enums.QRIntentStatusCreated,
		CreatedBy:   &actor.AgentID,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment attempt")
	}

	order.CODQR.PaymentID = &intent.PaymentID
	order.CODQR.OrderSlug = &intent.OrderSlug
	order.CODQR.AmountCents = intent.AmountCents
	order.CODQR.Status = enums.QRIntentStatusCreated
	order.CODQR.GeneratedAt = &now

	return qrPayloadFromOrder(order), nil
}

// issueChallenge sends a fresh OTP to the buyer. The phone is always read
// from the buyer record at send time.
func (s *service) issueChallenge(ctx context.Context, repo Repository, order *models.Order, actor Actor) (*OTPPayload, error) {
	buyer, err := repo.FindBuyer(ctx, order.BuyerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "buyer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer")
	}

	started := s.now()
	challenge, err := s.otpGW.Issue(ctx, otp.IssueParams{Phone: buyer.Phone, Reference: order.OrderNumber})
	s.metrics.ObserveGatewayCall("otp", "issue", s.now().Sub(started))
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	updates := map[string]any{
		"otp_required":     true,
		"otp_provider_id":  challenge.ProviderID,
		"otp_generated_at": now,
	}
	if !challenge.ExpiresAt.IsZero() {
		updates["otp_expires_at"] = challenge.ExpiresAt
	}
	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store otp challenge")
	}
	if err := repo.AppendTimeline(ctx, timelineEntry(order.ID, models.TimelineOTPSent, nil, actor)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record otp send")
	}

	order.OTP.Required = true
	order.OTP.ProviderID = &challenge.ProviderID
	order.OTP.GeneratedAt = &now
	if !challenge.ExpiresAt.IsZero() {
		expires := challenge.ExpiresAt
		order.OTP.ExpiresAt = &expires
	}

	return &OTPPayload{
		Sent:        true,
		MaskedPhone: types.MaskPhone(buyer.Phone),
		ExpiresAt:   order.OTP.ExpiresAt,
		Verified:    order.OTP.Verified,
	}, nil
}

// otpView rebuilds the client payload for an already issued challenge
// without touching the provider.
func (s *service) otpView(ctx context.Context, repo Repository, order *models.Order) (*OTPPayload, error) {
	masked := ""
	buyer, err := repo.FindBuyer(ctx, order.BuyerID)
	if err == nil {
		masked = types.MaskPhone(buyer.Phone)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer")
	}
	return &OTPPayload{
		Sent:        order.OTP.ProviderID != nil,
		MaskedPhone: masked,
		ExpiresAt:   order.OTP.ExpiresAt,
		Verified:    order.OTP.Verified,
	}, nil
}

func (s *service) GenerateQR(ctx context.Context, input GenerateQRInput) (*QRPayload, error) {
	if err := validateActor(input.OrderID, input.Actor); err != nil {
		return nil, s.observe(ctx, "generate_qr", err)
	}

	var payload *QRPayload
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOwnedOrder(ctx, repo, input.OrderID, input.Actor)
		if err != nil {
			return err
		}
		if order.PaymentMethod != enums.PaymentMethodCOD {
			return pkgerrors.New(pkgerrors.CodeValidation, "qr payments only apply to cod orders")
		}
		if order.IsPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already confirmed")
		}
		switch order.Assignment.Status {
		case enums.DeliveryStatusPickupCompleted, enums.DeliveryStatusLocationReached:
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "pickup must be completed before collecting payment")
		}

		// A live intent with a generated code is returned as-is.
		if order.CODQR.Status.IsLive() && order.CODQR.Code != nil {
			payload = qrPayloadFromOrder(order)
			return nil
		}

		if order.CODQR.PaymentID == nil {
			if _, err := s.ensureIntent(ctx, repo, order, input.Actor); err != nil {
				return err
			}
		}

		started := s.now()
		code, err := s.qrGW.GenerateCode(ctx, *order.CODQR.PaymentID)
		s.metrics.ObserveGatewayCall("qr", "generate_code", s.now().Sub(started))
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"qr_code":         code.Code,
			"qr_data":         code.Data,
			"qr_status":       enums.QRIntentStatusGenerated,
			"qr_generated_at": now,
			"qr_generated_by": input.Actor.AgentID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store qr code")
		}

		seen, err := repo.HasTimelineEntry(ctx, order.ID, models.TimelineQRGenerated)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check timeline")
		}
		if !seen {
			if err := repo.AppendTimeline(ctx, timelineEntry(order.ID, models.TimelineQRGenerated, nil, input.Actor)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record qr generation")
			}
		}

		order.CODQR.Code = &code.Code
		order.CODQR.Data = &code.Data
		order.CODQR.Status = enums.QRIntentStatusGenerated
		order.CODQR.GeneratedAt = &now
		payload = qrPayloadFromOrder(order)
		return nil
	})

	if err != nil {
		return nil, s.observe(ctx, "generate_qr", err)
	}
	return payload, s.observe(ctx, "generate_qr", nil)
}

func (s *service) CheckPaymentStatus(ctx context.Context, input CheckPaymentInput) (*PaymentStatusResult, error) {
	if err := validateActor(input.OrderID, input.Actor); err != nil {
		return nil, s.observe(ctx, "check_payment", err)
	}

	var result *PaymentStatusResult
	var events []notify.Event
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOwnedOrder(ctx, repo, input.OrderID, input.Actor)
		if err != nil {
			return err
		}

		// Once settled the gateway is never polled again.
		if order.IsPaid {
			otpPayload, err := s.otpView(ctx, repo, order)
			if err != nil {
				return err
			}
			result = &PaymentStatusResult{Paid: true, AlreadyConfirmed: true, OTP: otpPayload}
			return nil
		}

		if order.PaymentMethod != enums.PaymentMethodCOD {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment status checks only apply to cod orders")
		}
		if order.CODQR.PaymentID == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no payment intent to check")
		}

		started := s.now()
		settlement, err := s.qrGW.Validate(ctx, *order.CODQR.PaymentID)
		s.metrics.ObserveGatewayCall("qr", "validate", s.now().Sub(started))
		if err != nil {
			return err
		}
		if !settlement.Paid {
			result = &PaymentStatusResult{Paid: false}
			return nil
		}

		now := s.now().UTC()
		rows, err := repo.MarkOrderPaidOnce(ctx, order.ID, map[string]any{
			"is_paid":            true,
			"payment_status":     enums.PaymentStatusCompleted,
			"qr_status":          enums.QRIntentStatusPaid,
			"cod_collected":      true,
			"cod_collected_at":   now,
			"cod_collected_by":   input.Actor.AgentID,
			"cod_amount_cents":   order.TotalCents,
			"cod_method":         enums.CODMethodUPI,
			"cod_transaction_id": settlement.TransactionID,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle payment")
		}
		alreadyConfirmed := rows == 0

		seen, err := repo.HasTimelineEntry(ctx, order.ID, models.TimelinePaymentConfirmed)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check timeline")
		}
		if !seen {
			if err := repo.AppendTimeline(ctx, timelineEntry(order.ID, models.TimelinePaymentConfirmed, nil, input.Actor)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment confirmation")
			}
		}

		order.IsPaid = true
		result = &PaymentStatusResult{Paid: true, AlreadyConfirmed: alreadyConfirmed}

		// With the money settled the buyer confirms receipt via OTP.
		if order.OTP.ProviderID == nil && !order.OTP.Verified {
			otpPayload, err := s.issueChallenge(ctx, repo, order, input.Actor)
			if err != nil {
				s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), "payment settled but otp issue failed")
			} else {
				result.OTP = otpPayload
			}
		} else {
			otpPayload, err := s.otpView(ctx, repo, order)
			if err == nil {
				result.OTP = otpPayload
			}
		}

		if !alreadyConfirmed {
			events = append(events,
				orderEvent(order, enums.NotificationEventPaymentConfirmed, enums.NotificationChannelSeller, order.SellerID,
					"Payment received", "The buyer paid for the order"),
				orderEvent(order, enums.NotificationEventPaymentConfirmed, enums.NotificationChannelBuyer, order.BuyerID,
					"Payment confirmed", "Your payment was received"),
			)
		}
		return nil
	})

	s.emitAll(ctx, events)
	if err != nil {
		return nil, s.observe(ctx, "check_payment", err)
	}
	return result, s.observe(ctx, "check_payment", nil)
}

// SendOTP issues the delivery confirmation code, or reports the already
// issued challenge without contacting the provider again.
func (s *service) SendOTP(ctx context.Context, input SendOTPInput) (*OTPPayload, error) {
	if err := validateActor(input.OrderID, input.Actor); err != nil {
		return nil, s.observe(ctx, "send_otp", err)
	}

	var payload *OTPPayload
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOwnedOrder(ctx, repo, input.OrderID, input.Actor)
		if err != nil {
			return err
		}
		if err := requirePickupDone(order); err != nil {
			return err
		}
		if order.OTP.Verified {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "otp already verified")
		}
		if order.OTP.ProviderID != nil {
			payload, err = s.otpView(ctx, repo, order)
			return err
		}
		payload, err = s.issueChallenge(ctx, repo, order, input.Actor)
		return err
	})

	if err != nil {
		return nil, s.observe(ctx, "send_otp", err)
	}
	return payload, s.observe(ctx, "send_otp", nil)
}

func (s *service) ResendOTP(ctx context.Context, input SendOTPInput) (*OTPPayload, error) {
	if err := validateActor(input.OrderID, input.Actor); err != nil {
		return nil, s.observe(ctx, "resend_otp", err)
	}

	var payload *OTPPayload
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOwnedOrder(ctx, repo, input.OrderID, input.Actor)
		if err != nil {
			return err
		}
		if order.OTP.Verified {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "otp already verified")
		}
		if order.OTP.ProviderID == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no otp challenge to resend")
		}

		started := s.now()
		challenge, err := s.otpGW.Resend(ctx, *order.OTP.ProviderID)
		s.metrics.ObserveGatewayCall("otp", "resend", s.now().Sub(started))
		if err != nil {
			return err
		}

		now := s.now().UTC()
		updates := map[string]any{
			"otp_provider_id":  challenge.ProviderID,
			"otp_generated_at": now,
		}
		if !challenge.ExpiresAt.IsZero() {
			updates["otp_expires_at"] = challenge.ExpiresAt
		}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store otp challenge")
		}
		if err := repo.AppendTimeline(ctx, timelineEntry(order.ID, models.TimelineOTPSent, nil, input.Actor)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record otp resend")
		}

		order.OTP.ProviderID = &challenge.ProviderID
		if !challenge.ExpiresAt.IsZero() {
			expires := challenge.ExpiresAt
			order.OTP.ExpiresAt = &expires
		}
		payload, err = s.otpView(ctx, repo, order)
		return err
	})

	if err != nil {
		return nil, s.observe(ctx, "resend_otp", err)
	}
	return payload, s.observe(ctx, "resend_otp", nil)
}

func (s *service) VerifyOTP(ctx context.Context, input VerifyOTPInput) error {
	if err := validateActor(input.OrderID, input.Actor); err != nil {
		return s.observe(ctx, "verify_otp", err)
	}
	if strings.TrimSpace(input.Code) == "" {
		return s.observe(ctx, "verify_otp", pkgerrors.New(pkgerrors.CodeValidation, "otp code required"))
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOwnedOrder(ctx, repo, input.OrderID, input.Actor)
		if err != nil {
			return err
		}
		if order.OTP.Verified {
			return nil
		}
		if order.OTP.ProviderID == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no otp challenge issued")
		}

		started := s.now()
		err = s.otpGW.Verify(ctx, *order.OTP.ProviderID, input.Code)
		s.metrics.ObserveGatewayCall("otp", "verify", s.now().Sub(started))
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"otp_verified":    true,
			"otp_verified_at": now,
			"otp_verified_by": input.Actor.AgentID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store otp verification")
		}
		return repo.AppendTimeline(ctx, timelineEntry(order.ID, models.TimelineOTPVerified, nil, input.Actor))
	})

	return s.observe(ctx, "verify_otp", err)
}

// MarkCashCollected settles a COD order paid in cash at the door.
func (s *service) MarkCashCollected(ctx context.Context, input MarkCashCollectedInput) error {
	if err := validateActor(input.OrderID, input.Actor); err != nil {
		return s.observe(ctx, "cash_collected", err)
	}

	var events []notify.Event
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOwnedOrder(ctx, repo, input.OrderID, input.Actor)
		if err != nil {
			return err
		}
		if order.PaymentMethod != enums.PaymentMethodCOD {
			return pkgerrors.New(pkgerrors.CodeValidation, "cash collection only applies to cod orders")
		}
		if order.IsPaid {
			return nil
		}
		if err := requirePickupDone(order); err != nil {
			return err
		}

		settled, err := s.settleCash(ctx, repo, order, input.Actor, input.TransactionID)
		if err != nil {
			return err
		}
		events = append(events, settled...)
		return nil
	})

	s.emitAll(ctx, events)
	return s.observe(ctx, "cash_collected", err)
}

// settleCash marks the order paid through the one-shot paid edge and records
// the settlement timeline. Returns no events when another caller got there
// first; mutates order so callers in the same transaction see it paid.
func (s *service) settleCash(ctx context.Context, repo Repository, order *models.Order, actor Actor, transactionID *string) ([]notify.Event, error) {
	now := s.now().UTC()
	rows, err := repo.MarkOrderPaidOnce(ctx, order.ID, map[string]any{
		"is_paid":            true,
		"payment_status":     enums.PaymentStatusCompleted,
		"cod_collected":      true,
		"cod_collected_at":   now,
		"cod_collected_by":   actor.AgentID,
		"cod_amount_cents":   order.TotalCents,
		"cod_method":         enums.CODMethodCash,
		"cod_transaction_id": transactionID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle cash payment")
	}
	if rows == 0 {
		return nil, nil
	}

	if err := repo.AppendTimeline(ctx, timelineEntry(order.ID, models.TimelineCashCollected, nil, actor)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record cash collection")
	}
	seen, err := repo.HasTimelineEntry(ctx, order.ID, models.TimelinePaymentConfirmed)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check timeline")
	}
	if !seen {
		if err := repo.AppendTimeline(ctx, timelineEntry(order.ID, models.TimelinePaymentConfirmed, nil, actor)); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment confirmation")
		}
	}

	order.IsPaid = true
	order.PaymentStatus = enums.PaymentStatusCompleted
	order.CODPayment.Method = enums.CODMethodCash

	return []notify.Event{
		orderEvent(order, enums.NotificationEventPaymentConfirmed, enums.NotificationChannelSeller, order.SellerID,
			"Payment received", "The buyer paid in cash on delivery"),
	}, nil
}

func (s *service) CompleteDelivery(ctx context.Context, input CompleteDeliveryInput) error {
	if err := validateActor(input.OrderID, input.Actor); err != nil {
		return s.observe(ctx, "complete_delivery", err)
	}

	var events []notify.Event
	var durationMinutes *int
	var paymentMethod enums.PaymentMethod
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOwnedOrder(ctx, repo, input.OrderID, input.Actor)
		if err != nil {
			return err
		}
		if order.Delivery.Completed {
			return nil
		}
		if err := requirePickupDone(order); err != nil {
			return err
		}
		if order.Status != enums.OrderStatusOutForDelivery {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not out for delivery")
		}
		var settledEvents []notify.Event
		if order.PaymentMethod == enums.PaymentMethodCOD && !order.IsPaid {
			if input.CODMethod != enums.CODMethodCash {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "payment must be settled before completing delivery")
			}
			settledEvents, err = s.settleCash(ctx, repo, order, input.Actor, nil)
			if err != nil {
				return err
			}
		}
		if order.PaymentMethod == enums.PaymentMethodPrepaid && !order.OTP.Verified && order.OTP.ProviderID == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "delivery otp has not been issued, send it to the buyer first")
		}

		if otpRequiredFor(order) {
			code := strings.TrimSpace(input.OTPCode)
			if code == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "otp code required to complete delivery")
			}
			started := s.now()
			err := s.otpGW.Verify(ctx, *order.OTP.ProviderID, code)
			s.metrics.ObserveGatewayCall("otp", "verify", s.now().Sub(started))
			if err != nil {
				return err
			}
			order.OTP.Verified = true
		}

		now := s.now().UTC()
		updates := map[string]any{
			"status":                      enums.OrderStatusDelivered,
			"assignment_status":           enums.DeliveryStatusDeliveryCompleted,
			"assignment_delivery_done_at": now,
			"delivery_completed":          true,
			"delivery_completed_at":       now,
			"delivery_completed_by":       input.Actor.AgentID,
			"delivery_notes":              input.Notes,
			"delivery_customer_signature": input.Signature,
			"delivery_proof_url":          input.ProofURL,
		}
		if order.OTP.Verified && order.OTP.VerifiedAt == nil {
			updates["otp_verified"] = true
			updates["otp_verified_at"] = now
			updates["otp_verified_by"] = input.Actor.AgentID
		}
		if order.Assignment.AssignedAt != nil {
			minutes := int(now.Sub(order.Assignment.AssignedAt.UTC()).Minutes())
			if minutes < 0 {
				minutes = 0
			}
			durationMinutes = &minutes
			updates["assignment_duration_minutes"] = minutes
		}

		rows, err := repo.UpdateOrderIfAssignment(ctx, order.ID, order.Assignment.Status, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete delivery")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order assignment changed concurrently")
		}

		if err := repo.AppendTimeline(ctx, timelineEntry(order.ID, models.TimelineDeliveryCompleted, input.Notes, input.Actor)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record completion")
		}
		if err := s.applyCompletionStats(ctx, repo, input.Actor.AgentID, durationMinutes); err != nil {
			return err
		}

		paymentMethod = order.PaymentMethod
		events = append(events, settledEvents...)
		events = append(events,
			orderEvent(order, enums.NotificationEventDeliveryCompleted, enums.NotificationChannelBuyer, order.BuyerID,
				"Order delivered", "Your order has been delivered"),
			orderEvent(order, enums.NotificationEventDeliveryCompleted, enums.NotificationChannelSeller, order.SellerID,
				"Order delivered", "The order was handed to the buyer"),
		)
		return nil
	})

	s.emitAll(ctx, events)
	if err == nil && durationMinutes != nil {
		s.metrics.ObserveDeliveryDuration(paymentMethod.String(), float64(*durationMinutes))
	}
	return s.observe(ctx, "complete_delivery", err)
}

// applyCompletionStats folds one finished delivery into the agent's
// denormalized counters, earnings, and rolling average.
func (s *service) applyCompletionStats(ctx context.Context, repo Repository, agentID uuid.UUID, durationMinutes *int) error {
	agent, err := repo.FindAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "delivery agent not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent")
	}

	completed := agent.CompletedCount
	earnings := agent.TotalEarnings.Add(decimal.NewFromInt(int64(s.agentFeeCents)).Div(decimal.NewFromInt(100)))
	updates := map[string]any{
		"completed_count": completed + 1,
		"total_earnings":  earnings,
	}
	if durationMinutes != nil {
		oldTotal := agent.AvgDeliveryMinutes.Mul(decimal.NewFromInt(int64(completed)))
		newAvg := oldTotal.Add(decimal.NewFromInt(int64(*durationMinutes))).
			Div(decimal.NewFromInt(int64(completed + 1))).
			Round(2)
		updates["avg_delivery_minutes"] = newAvg
	}

	if err := repo.UpdateAgent(ctx, agentID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update agent stats")
	}
	return nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) error {
	if err := validateActor(input.OrderID, input.Actor); err != nil {
		return s.observe(ctx, "cancel", err)
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return s.observe(ctx, "cancel", pkgerrors.New(pkgerrors.CodeValidation, "missing cancellation reason"))
	}

	var events []notify.Event
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOwnedOrder(ctx, repo, input.OrderID, input.Actor)
		if err != nil {
			return err
		}
		if order.Status == enums.OrderStatusCancelled {
			return nil
		}
		if order.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "delivered orders cannot be cancelled")
		}

		agentName := ""
		if agent, err := repo.FindAgent(ctx, input.Actor.AgentID); err == nil {
			agentName = agent.Name
		}

		now := s.now().UTC()
		rows, err := repo.UpdateOrderIfAssignment(ctx, order.ID, order.Assignment.Status, map[string]any{
			"status":                 enums.OrderStatusCancelled,
			"assignment_status":      enums.DeliveryStatusUnassigned,
			"assignment_agent_id":    nil,
			"assignment_assigned_at": nil,
			"cancel_by":              enums.CancellationActorAgent,
			"cancel_by_name":         agentName,
			"cancel_at":              now,
			"cancel_reason":          reason,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order assignment changed concurrently")
		}

		if err := repo.AppendTimeline(ctx, timelineEntry(order.ID, models.TimelineDeliveryCancelled, &reason, input.Actor)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record cancellation")
		}
		if err := repo.IncrementAgentCounter(ctx, input.Actor.AgentID, "cancelled_count", 1); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update agent counters")
		}

		events = append(events,
			orderEvent(order, enums.NotificationEventOrderCancelled, enums.NotificationChannelBuyer, order.BuyerID,
				"Delivery cancelled", "Your delivery was cancelled: "+reason),
			orderEvent(order, enums.NotificationEventOrderCancelled, enums.NotificationChannelSeller, order.SellerID,
				"Delivery cancelled", "The delivery was cancelled: "+reason),
			orderEvent(order, enums.NotificationEventOrderCancelled, enums.NotificationChannelAdmin, order.SellerID,
				"Delivery cancelled by agent", reason),
		)
		return nil
	})

	s.emitAll(ctx, events)
	return s.observe(ctx, "cancel", err)
}

func (s *service) GetOrder(ctx context.Context, input GetOrderInput) (*models.Order, error) {
	if err := validateActor(input.OrderID, input.Actor); err != nil {
		return nil, err
	}
	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Assignment.AgentID == nil || *order.Assignment.AgentID != input.Actor.AgentID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order not assigned to agent")
	}
	return order, nil
}

// otpRequiredFor reports whether completion needs an OTP check. A cash COD
// order only needs one if a challenge was actually issued.
func otpRequiredFor(order *models.Order) bool {
	if order.OTP.Verified {
		return false
	}
	if order.PaymentMethod == enums.PaymentMethodCOD && order.CODPayment.Method == enums.CODMethodCash {
		return order.OTP.ProviderID != nil
	}
	return order.OTP.Required && order.OTP.ProviderID != nil
}

func requirePickupDone(order *models.Order) error {
	if !order.Pickup.Completed {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "pickup has not been completed")
	}
	switch order.Assignment.Status {
	case enums.DeliveryStatusPickupCompleted, enums.DeliveryStatusLocationReached:
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not in an active delivery state")
	}
}

func (s *service) loadOwnedOrder(ctx context.Context, repo Repository, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Assignment.AgentID == nil || *order.Assignment.AgentID != actor.AgentID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order not assigned to agent")
	}
	return order, nil
}

func validateActor(orderID uuid.UUID, actor Actor) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if actor.AgentID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "agent context missing")
	}
	return nil
}

func timelineEntry(orderID uuid.UUID, action string, note *string, actor Actor) *models.TimelineEntry {
	role := string(enums.MemberRoleAgent)
	actorID := actor.AgentID
	return &models.TimelineEntry{
		OrderID:   orderID,
		Action:    action,
		Note:      note,
		ActorID:   &actorID,
		ActorRole: &role,
	}
}

func orderEvent(order *models.Order, event enums.NotificationEvent, channel enums.NotificationChannel, recipientID uuid.UUID, title, body string) notify.Event {
	orderID := order.ID
	return notify.Event{
		Event:       event,
		Channel:     channel,
		RecipientID: recipientID,
		OrderID:     &orderID,
		Title:       title,
		Body:        body,
		Payload: map[string]any{
			"order_number": order.OrderNumber,
			"status":       order.Status.String(),
		},
	}
}

func qrPayloadFromOrder(order *models.Order) *QRPayload {
	payload := &QRPayload{
		AmountCents: order.CODQR.AmountCents,
		Status:      order.CODQR.Status,
	}
	if order.CODQR.PaymentID != nil {
		payload.PaymentID = *order.CODQR.PaymentID
	}
	if order.CODQR.OrderSlug != nil {
		payload.OrderSlug = *order.CODQR.OrderSlug
	}
	if order.CODQR.Code != nil {
		payload.Code = *order.CODQR.Code
	}
	if order.CODQR.Data != nil {
		payload.Data = *order.CODQR.Data
	}
	return payload
}

func (s *service) emitAll(ctx context.Context, events []notify.Event) {
	for _, event := range events {
		s.notifier.Emit(ctx, event)
	}
}

func (s *service) observe(ctx context.Context, operation string, err error) error {
	if err == nil {
		s.metrics.IncTransition(operation)
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		s.metrics.IncFailure(operation, string(typed.Code()))
	} else {
		s.metrics.IncFailure(operation, string(pkgerrors.CodeInternal))
	}
	return err
}
