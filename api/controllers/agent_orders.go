package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rohanbasu/trendora-backend/api/middleware"
	"github.com/rohanbasu/trendora-backend/api/responses"
	"github.com/rohanbasu/trendora-backend/api/validators"
	"github.com/rohanbasu/trendora-backend/internal/assignments"
	"github.com/rohanbasu/trendora-backend/internal/delivery"
	"github.com/rohanbasu/trendora-backend/internal/stats"
	"github.com/rohanbasu/trendora-backend/pkg/enums"
	pkgerrors "github.com/rohanbasu/trendora-backend/pkg/errors"
	"github.com/rohanbasu/trendora-backend/pkg/logger"
	"github.com/rohanbasu/trendora-backend/pkg/pagination"
)

func agentActor(r *http.Request) (delivery.Actor, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return delivery.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return delivery.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}

	agentID := middleware.AgentIDFromContext(r.Context())
	if agentID == "" {
		return delivery.Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "agent context missing")
	}
	aid, err := uuid.Parse(agentID)
	if err != nil {
		return delivery.Actor{}, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "invalid agent id")
	}
	return delivery.Actor{UserID: uid, AgentID: aid}, nil
}

func orderIDParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "orderId")
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}

// AgentListOrders returns the agent's order feed with optional status and
// active filters.
func AgentListOrders(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := agentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		active, err := validators.ParseQueryBool(r, "active")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := assignments.ListInput{
			Actor:  actor,
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			Active: active,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			for _, part := range strings.Split(raw, ",") {
				input.Statuses = append(input.Statuses, enums.DeliveryStatus(strings.TrimSpace(part)))
			}
		}

		list, err := svc.ListForAgent(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AgentGetOrder returns one order with its timeline.
func AgentGetOrder(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := agentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), delivery.GetOrderInput{OrderID: orderID, Actor: actor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func AgentAcceptOrder(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := agentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Accept(r.Context(), delivery.AcceptInput{OrderID: orderID, Actor: actor}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "accepted"})
	}
}

type rejectOrderRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=500"`
}

func AgentRejectOrder(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := agentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req rejectOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Reject(r.Context(), delivery.RejectInput{OrderID: orderID, Actor: actor, Reason: req.Reason}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "rejected"})
	}
}

type bulkOrdersRequest struct {
	OrderIDs []uuid.UUID `json:"order_ids" validate:"required,min=1"`
	Reason   *string     `json:"reason" validate:"omitempty,max=500"`
}

func AgentBulkAccept(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := agentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req bulkOrdersRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.BulkAccept(r.Context(), assignments.BulkInput{OrderIDs: req.OrderIDs, Actor: actor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AgentBulkReject(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := agentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req bulkOrdersRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.BulkReject(r.Context(), assignments.BulkRejectInput{OrderIDs: req.OrderIDs, Actor: actor, Reason: req.Reason})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AgentReachedSellerLocation(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := agentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ReachedSellerLocation(r.Context(), delivery.ReachedSellerInput{OrderID: orderID, Actor: actor}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "seller_location_reached"})
	}
}

type completePickupRequest struct {
	VerificationCode string  `json:"verification_code" validate:"required,max=64"`
	Notes            *string `json:"notes" validate:"omitempty,max=1000"`
}

func AgentCompletePickup(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := agentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req completePickupRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := delivery.CompletePickupInput{
			OrderID:          orderID,
			Actor:            actor,
			VerificationCode: req.VerificationCode,
			Notes:            req.Notes,
		}
		if err := svc.CompletePickup(r.Context(), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "pickup_completed"})
	}
}

type reachedBuyerRequest struct {
	Notes *string `json:"notes" validate:"omitempty,max=1000"`
}

func AgentReachedBuyerLocation(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := agentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req reachedBuyerRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload, err := svc.ReachedBuyerLocation(r.Context(), delivery.ReachedBuyerInput{OrderID: orderID, Actor: actor, Notes: req.Notes})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payload)
	}
}

func AgentGenerateQR(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := agentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload, err := svc.GenerateQR(r.Context(), delivery.GenerateQRInput{OrderID: orderID, Actor: actor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payload)
	}
}

func AgentCheckPaymentStatus(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := agentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CheckPaymentStatus(r.Context(), delivery.CheckPaymentInput{OrderID: orderID, Actor: actor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AgentSendOTP(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := agentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload, err := svc.SendOTP(r.Context(), delivery.SendOTPInput{OrderID: orderID, Actor: actor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payload)
	}
}

func AgentResendOTP(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := agentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload, err := svc.ResendOTP(r.Context(), delivery.SendOTPInput{OrderID: orderID, Actor: actor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payload)
	}
}

type verifyOTPRequest struct {
	Code string `json:"code" validate:"required,min=4,max=10"`
}

func AgentVerifyOTP(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := agentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req verifyOTPRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.VerifyOTP(r.Context(), delivery.VerifyOTPInput{OrderID: orderID, Actor: actor, Code: req.Code}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "verified"})
	}
}

type markCashCollectedRequest struct {
	TransactionID *string `json:"transaction_id" validate:"omitempty,max=128"`
}

func AgentMarkCashCollected(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := agentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req markCashCollectedRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := delivery.MarkCashCollectedInput{OrderID: orderID, Actor: actor, TransactionID: req.TransactionID}
		if err := svc.MarkCashCollected(r.Context(), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cash_collected"})
	}
}

type codPaymentBody struct {
	Method string `json:"method" validate:"required,oneof=cash upi"`
}

type completeDeliveryRequest struct {
	OTPCode    string          `json:"otp_code" validate:"omitempty,min=4,max=10"`
	CODPayment *codPaymentBody `json:"cod_payment" validate:"omitempty"`
	Notes      *string         `json:"notes" validate:"omitempty,max=1000"`
	Signature  *string         `json:"customer_signature" validate:"omitempty,max=100000"`
	ProofURL   *string         `json:"proof_url" validate:"omitempty,url,max=2048"`
}

func AgentCompleteDelivery(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := agentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req completeDeliveryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := delivery.CompleteDeliveryInput{
			OrderID:   orderID,
			Actor:     actor,
			OTPCode:   req.OTPCode,
			Notes:     req.Notes,
			Signature: req.Signature,
			ProofURL:  req.ProofURL,
		}
		if req.CODPayment != nil {
			method, err := enums.ParseCODMethod(req.CODPayment.Method)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown cod payment method"))
				return
			}
			input.CODMethod = method
		}
		if err := svc.CompleteDelivery(r.Context(), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "delivered"})
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

func AgentCancelOrder(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := agentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Cancel(r.Context(), delivery.CancelInput{OrderID: orderID, Actor: actor, Reason: req.Reason}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cancelled"})
	}
}

// AgentStats reports the agent's lifetime counters plus an optional
// from/to window of completed deliveries.
func AgentStats(svc stats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := agentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := stats.AgentStatsInput{AgentID: actor.AgentID}
		if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
			from, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid from timestamp"))
				return
			}
			input.From = &from
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
			to, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid to timestamp"))
				return
			}
			input.To = &to
		}

		report, err := svc.AgentStats(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
