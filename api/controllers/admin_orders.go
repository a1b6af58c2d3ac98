package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/rohanbasu/trendora-backend/api/middleware"
	"github.com/rohanbasu/trendora-backend/api/responses"
	"github.com/rohanbasu/trendora-backend/api/validators"
	"github.com/rohanbasu/trendora-backend/internal/assignments"
	pkgerrors "github.com/rohanbasu/trendora-backend/pkg/errors"
	"github.com/rohanbasu/trendora-backend/pkg/logger"
)

type assignOrderRequest struct {
	AgentID uuid.UUID `json:"agent_id" validate:"required"`
}

// AdminAssignOrder hands a pickup-ready order to a specific agent.
func AdminAssignOrder(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		assignedBy, err := uuid.Parse(userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id"))
			return
		}

		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req assignOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.AgentID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "missing agent id"))
			return
		}

		input := assignments.AssignInput{OrderID: orderID, AgentID: req.AgentID, AssignedBy: assignedBy}
		if err := svc.Assign(r.Context(), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "assigned"})
	}
}
