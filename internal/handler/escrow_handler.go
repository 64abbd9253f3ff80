package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/peermart/peermart-backend/internal/identity"
	appmw "github.com/peermart/peermart-backend/internal/middleware"
	"github.com/peermart/peermart-backend/internal/model"
	"github.com/peermart/peermart-backend/internal/service"
)

type EscrowHandler struct {
	svc     service.EscrowService
	listing *ListingHandler
}

func NewEscrowHandler(svc service.EscrowService, listing *ListingHandler) *EscrowHandler {
	return &EscrowHandler{svc: svc, listing: listing}
}

func parseID(c echo.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("id"), 10, 64)
}

func (h *EscrowHandler) Propose(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	threadID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid thread id"))
	}
	if err := h.svc.Propose(c.Request().Context(), threadID, caller); err != nil {
		return respondServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *EscrowHandler) Accept(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	threadID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid thread id"))
	}
	if err := h.svc.Accept(c.Request().Context(), threadID, caller); err != nil {
		return respondServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type DepositRequest struct {
	TxID       string `json:"txId"`
	Protection bool   `json:"protection"`
}

func (h *EscrowHandler) Deposit(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	listingID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid listing id"))
	}
	var req DepositRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	listing, err := h.svc.Deposit(c.Request().Context(), listingID, caller, req.TxID, req.Protection)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, h.listing.toResponse(listing))
}

type ShipRequest struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"trackingNumber"`
}

func (h *EscrowHandler) Ship(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	listingID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid listing id"))
	}
	var req ShipRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	listing, err := h.svc.Ship(c.Request().Context(), listingID, caller, req.Carrier, req.TrackingNumber)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, h.listing.toResponse(listing))
}

func (h *EscrowHandler) Confirm(c echo.Context) error {
	return h.buyerAction(c, h.svc.Confirm)
}

func (h *EscrowHandler) Dispute(c echo.Context) error {
	return h.buyerAction(c, h.svc.Dispute)
}

func (h *EscrowHandler) buyerAction(c echo.Context, action func(ctx context.Context, listingID uint64, buyer identity.Caller) (*model.Listing, error)) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	listingID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid listing id"))
	}
	listing, err := action(c.Request().Context(), listingID, caller)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, h.listing.toResponse(listing))
}

type ResolveRequest struct {
	Action    string `json:"action"`
	PayoutRef string `json:"payoutRef"`
}

func (h *EscrowHandler) Resolve(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	listingID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid listing id"))
	}
	var req ResolveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	listing, err := h.svc.Resolve(c.Request().Context(), listingID, caller, service.ResolveAction(req.Action), req.PayoutRef)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, h.listing.toResponse(listing))
}
