package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/peermart/peermart-backend/internal/ledger"
	"github.com/peermart/peermart-backend/internal/service"
	"github.com/peermart/peermart-backend/internal/verify"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

type ErrorResponse struct {
	Error errorPayload `json:"error"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error: errorPayload{
			Code:    code,
			Message: message,
		},
	}
}

// respondServiceError maps the service-layer error taxonomy to HTTP. The
// distinctions matter to the client: a verification rejection means "fix the
// payment and resubmit", a conflict means "pick another listing", and an
// unavailable ledger means "retry the same transaction later".
func respondServiceError(c echo.Context, err error) error {
	if reason, ok := verify.RejectedWith(err); ok {
		resp := NewErrorResponse("verification_failed", "payment terms not met")
		resp.Error.Reason = string(reason)
		return c.JSON(http.StatusUnprocessableEntity, resp)
	}
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "resource not found"))
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, NewErrorResponse("forbidden", "not allowed"))
	case errors.Is(err, service.ErrConflict):
		return c.JSON(http.StatusConflict, NewErrorResponse("conflict", "state changed concurrently"))
	case errors.Is(err, service.ErrInvalidState):
		return c.JSON(http.StatusConflict, NewErrorResponse("invalid_state", "action not allowed in current state"))
	case errors.Is(err, service.ErrNotEligible):
		return c.JSON(http.StatusForbidden, NewErrorResponse("not_eligible", "eligibility check failed"))
	case errors.Is(err, service.ErrInsufficientFunds):
		return c.JSON(http.StatusUnprocessableEntity, NewErrorResponse("insufficient_funds", "funding source balance too low"))
	case errors.Is(err, service.ErrAlreadyClaimed):
		return c.JSON(http.StatusConflict, NewErrorResponse("already_claimed", "an active claim exists"))
	case errors.Is(err, ledger.ErrUnavailable):
		return c.JSON(http.StatusServiceUnavailable, NewErrorResponse("ledger_unavailable", "ledger oracle unavailable, retry later"))
	default:
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", err.Error()))
	}
}
