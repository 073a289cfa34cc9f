package handler

import (
	"net/http"

	"github.com/cardswap/cardswap-backend/internal/service"
	"github.com/cardswap/cardswap-backend/internal/shipping"
	"github.com/labstack/echo/v4"
)

type ShippingHandler struct {
	svc service.ShippingService
}

func NewShippingHandler(svc service.ShippingService) *ShippingHandler {
	return &ShippingHandler{svc: svc}
}

type RateQuoteResponse struct {
	ID           string `json:"id"`
	Carrier      string `json:"carrier"`
	Service      string `json:"service"`
	Level        string `json:"level"`
	AmountCents  int64  `json:"amountCents"`
	Currency     string `json:"currency"`
	EstDays      int    `json:"estDays"`
	DurationTerm string `json:"durationTerm,omitempty"`
}

func toRateQuoteResponse(q shipping.RateQuote) RateQuoteResponse {
	return RateQuoteResponse{
		ID:           q.ID,
		Carrier:      q.Carrier,
		Service:      q.Service,
		Level:        string(q.Level),
		AmountCents:  q.AmountCents,
		Currency:     q.Currency,
		EstDays:      q.EstDays,
		DurationTerm: q.DurationTerm,
	}
}

func (h *ShippingHandler) GetRates(c echo.Context) error {
	uid := uidOf(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid proposal id"))
	}
	var body struct {
		AddressID *uint64 `json:"addressId"`
	}
	_ = c.Bind(&body)
	quotes, err := h.svc.GetRates(c.Request().Context(), id, uid, body.AddressID)
	if err != nil {
		return respondServiceError(c, err)
	}
	resp := make([]RateQuoteResponse, 0, len(quotes))
	for _, q := range quotes {
		resp = append(resp, toRateQuoteResponse(q))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ShippingHandler) PurchaseLabel(c echo.Context) error {
	uid := uidOf(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid proposal id"))
	}
	var body struct {
		RateID string `json:"rateId"`
	}
	if err := c.Bind(&body); err != nil || body.RateID == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "rateId is required"))
	}
	p, err := h.svc.PurchaseLabel(c.Request().Context(), id, uid, body.RateID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toProposalResponse(p))
}

func (h *ShippingHandler) ConfirmMeetup(c echo.Context) error {
	uid := uidOf(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid proposal id"))
	}
	p, err := h.svc.ConfirmMeetup(c.Request().Context(), id, uid)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toProposalResponse(p))
}

func (h *ShippingHandler) RequestAddress(c echo.Context) error {
	uid := uidOf(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid proposal id"))
	}
	if err := h.svc.RequestAddress(c.Request().Context(), id, uid); err != nil {
		return respondServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
