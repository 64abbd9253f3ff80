package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	appmw "github.com/peermart/peermart-backend/internal/middleware"
	"github.com/peermart/peermart-backend/internal/service"
)

type TradeHandler struct {
	svc service.TradeService
}

func NewTradeHandler(svc service.TradeService) *TradeHandler {
	return &TradeHandler{svc: svc}
}

type PurchaseRequest struct {
	TxID string `json:"txId"`
}

type PurchaseResponse struct {
	Status            string `json:"status"`
	QuantityRemaining uint   `json:"quantityRemaining"`
}

func (h *TradeHandler) Purchase(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	listingID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid listing id"))
	}
	var req PurchaseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	result, err := h.svc.Purchase(c.Request().Context(), listingID, caller, req.TxID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, PurchaseResponse{
		Status:            string(result.Status),
		QuantityRemaining: result.QuantityRemaining,
	})
}
