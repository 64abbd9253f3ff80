package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	appmw "github.com/peermart/peermart-backend/internal/middleware"
	"github.com/peermart/peermart-backend/internal/model"
	"github.com/peermart/peermart-backend/internal/service"
)

type ListingHandler struct {
	svc     service.ListingService
	slaDays int
}

func NewListingHandler(svc service.ListingService, slaDays int) *ListingHandler {
	return &ListingHandler{svc: svc, slaDays: slaDays}
}

type CreateListingRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Currency    string `json:"currency"`
	Mint        string `json:"mint"`
	Decimals    uint8  `json:"decimals"`
	Quantity    uint   `json:"quantity"`
	Gated       bool   `json:"gated"`
	GateMint    string `json:"gateMint"`
}

type ListingResponse struct {
	ID              uint64  `json:"id"`
	SellerID        string  `json:"sellerId"`
	SellerAddress   string  `json:"sellerAddress"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Price           string  `json:"price"`
	Currency        string  `json:"currency"`
	Mint            string  `json:"mint,omitempty"`
	Decimals        uint8   `json:"decimals"`
	Quantity        uint    `json:"quantity"`
	Status          string  `json:"status"`
	EscrowStatus    string  `json:"escrowStatus"`
	HoldingAddress  string  `json:"holdingAddress,omitempty"`
	DepositedAmount string  `json:"depositedAmount,omitempty"`
	Protection      bool    `json:"protection,omitempty"`
	Carrier         string  `json:"carrier,omitempty"`
	TrackingNumber  string  `json:"trackingNumber,omitempty"`
	Gated           bool    `json:"gated,omitempty"`
	DepositedAt     *string `json:"depositedAt,omitempty"`
	ShippedAt       *string `json:"shippedAt,omitempty"`
	ShipBy          *string `json:"shipBy,omitempty"`
	CreatedAt       string  `json:"createdAt"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	val := t.Format(time.RFC3339)
	return &val
}

func (h *ListingHandler) toResponse(l *model.Listing) ListingResponse {
	return ListingResponse{
		ID:              l.ID,
		SellerID:        l.SellerID,
		SellerAddress:   l.SellerAddress,
		Title:           l.Title,
		Description:     l.Description,
		Price:           l.Price,
		Currency:        string(l.Currency),
		Mint:            l.Mint,
		Decimals:        l.Decimals,
		Quantity:        l.Quantity,
		Status:          string(l.Status),
		EscrowStatus:    string(l.EscrowStatus),
		HoldingAddress:  l.HoldingAddress,
		DepositedAmount: l.DepositedAmount,
		Protection:      l.Protection,
		Carrier:         l.Carrier,
		TrackingNumber:  l.TrackingNumber,
		Gated:           l.Gated,
		DepositedAt:     formatTime(l.DepositedAt),
		ShippedAt:       formatTime(l.ShippedAt),
		ShipBy:          formatTime(l.ShippingDeadline(h.slaDays)),
		CreatedAt:       l.CreatedAt.Format(time.RFC3339),
	}
}

func (h *ListingHandler) Create(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	var req CreateListingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	listing, err := h.svc.Create(c.Request().Context(), caller, service.NewListingInput{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Currency:    model.CurrencyKind(req.Currency),
		Mint:        req.Mint,
		Decimals:    req.Decimals,
		Quantity:    req.Quantity,
		Gated:       req.Gated,
		GateMint:    req.GateMint,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, h.toResponse(listing))
}

func (h *ListingHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid listing id"))
	}
	listing, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, h.toResponse(listing))
}

func (h *ListingHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	listings, total, err := h.svc.List(c.Request().Context(), limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch listings"))
	}
	resp := make([]ListingResponse, 0, len(listings))
	for i := range listings {
		resp = append(resp, h.toResponse(&listings[i]))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"listings": resp, "total": total})
}

func (h *ListingHandler) ListMine(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	listings, err := h.svc.ListBySeller(c.Request().Context(), caller.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch listings"))
	}
	resp := make([]ListingResponse, 0, len(listings))
	for i := range listings {
		resp = append(resp, h.toResponse(&listings[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ListingHandler) Remove(c echo.Context) error {
	caller, ok := appmw.Caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing identity"))
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid listing id"))
	}
	if err := h.svc.Remove(c.Request().Context(), id, caller); err != nil {
		return respondServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
