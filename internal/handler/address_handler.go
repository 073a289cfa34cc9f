package handler

import (
	"net/http"
	"time"

	"github.com/cardswap/cardswap-backend/internal/model"
	"github.com/cardswap/cardswap-backend/internal/service"
	"github.com/labstack/echo/v4"
)

type AddressHandler struct {
	svc service.AddressService
}

func NewAddressHandler(svc service.AddressService) *AddressHandler {
	return &AddressHandler{svc: svc}
}

type AddressRequest struct {
	Name       string `json:"name"`
	Street1    string `json:"street1"`
	Street2    string `json:"street2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
	IsDefault  bool   `json:"isDefault"`
}

type AddressResponse struct {
	ID         uint64 `json:"id"`
	Name       string `json:"name"`
	Street1    string `json:"street1"`
	Street2    string `json:"street2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
	IsDefault  bool   `json:"isDefault"`
	CreatedAt  string `json:"createdAt"`
}

func toAddressResponse(a *model.ShippingAddress) AddressResponse {
	return AddressResponse{
		ID:         a.ID,
		Name:       a.Name,
		Street1:    a.Street1,
		Street2:    a.Street2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
		IsDefault:  a.IsDefault,
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
	}
}

func fromAddressRequest(req AddressRequest, uid string) *model.ShippingAddress {
	return &model.ShippingAddress{
		UserUID:    uid,
		Name:       req.Name,
		Street1:    req.Street1,
		Street2:    req.Street2,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		Phone:      req.Phone,
		IsDefault:  req.IsDefault,
	}
}

func (h *AddressHandler) Create(c echo.Context) error {
	uid := uidOf(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	var req AddressRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	a, err := h.svc.Create(c.Request().Context(), fromAddressRequest(req, uid))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, toAddressResponse(a))
}

func (h *AddressHandler) Update(c echo.Context) error {
	uid := uidOf(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid address id"))
	}
	var req AddressRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	a, err := h.svc.Update(c.Request().Context(), id, uid, fromAddressRequest(req, uid))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toAddressResponse(a))
}

func (h *AddressHandler) ListMine(c echo.Context) error {
	uid := uidOf(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	list, err := h.svc.List(c.Request().Context(), uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch addresses"))
	}
	resp := make([]AddressResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toAddressResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *AddressHandler) SetDefault(c echo.Context) error {
	uid := uidOf(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid address id"))
	}
	if err := h.svc.SetDefault(c.Request().Context(), uid, id); err != nil {
		return respondServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
