package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	appmw "github.com/peermart/peermart-backend/internal/middleware"
	"github.com/peermart/peermart-backend/internal/model"
	"github.com/peermart/peermart-backend/internal/service"
)

type ClaimHandler struct {
	svc service.ClaimService
}

func NewClaimHandler(svc service.ClaimService) *ClaimHandler {
	return &ClaimHandler{svc: svc}
}

type FileClaimRequest struct {
	Reason      string `json:"reason"`
	Description string `json:"description"`
	EvidenceURL string `json:"evidenceUrl"`
}

func (h *ClaimHandler) File(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	listingID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid listing id"))
	}
	var req FileClaimRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	claim, err := h.svc.File(c.Request().Context(), listingID, caller, model.ClaimReason(req.Reason), req.Description, req.EvidenceURL)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, claim)
}

type ResolveClaimRequest struct {
	Approve bool `json:"approve"`
}

func (h *ClaimHandler) Resolve(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	claimID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid claim id"))
	}
	var req ResolveClaimRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	claim, err := h.svc.Resolve(c.Request().Context(), claimID, caller, req.Approve)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, claim)
}
