package handler

import (
	"errors"
	"net/http"

	"github.com/cardswap/cardswap-backend/internal/service"
	"github.com/cardswap/cardswap-backend/internal/shipping"
	"github.com/labstack/echo/v4"
)

// respondServiceError maps service-layer errors to the JSON error envelope.
// Recoverable cases carry a code the client can branch on for its retry or
// refresh affordance.
func respondServiceError(c echo.Context, err error) error {
	var transition *service.TransitionError
	if errors.As(err, &transition) {
		return c.JSON(http.StatusConflict, NewErrorResponse("invalid_transition", transition.Error()))
	}
	var gateway *shipping.GatewayError
	if errors.As(err, &gateway) {
		return c.JSON(http.StatusBadGateway, NewErrorResponse("gateway_error", gateway.Message))
	}
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "not found"))
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, NewErrorResponse("forbidden", "not allowed"))
	case errors.Is(err, service.ErrConflict):
		return c.JSON(http.StatusConflict, NewErrorResponse("conflict", err.Error()))
	case errors.Is(err, service.ErrNoRates):
		return c.JSON(http.StatusUnprocessableEntity, NewErrorResponse("no_rates_available", err.Error()))
	case errors.Is(err, service.ErrAddressRequired):
		return c.JSON(http.StatusUnprocessableEntity, NewErrorResponse("address_required", err.Error()))
	case errors.Is(err, service.ErrCounterpartyAddress):
		return c.JSON(http.StatusUnprocessableEntity, NewErrorResponse("counterparty_address_missing", err.Error()))
	case errors.Is(err, service.ErrInvalidMatch):
		return c.JSON(http.StatusUnprocessableEntity, NewErrorResponse("invalid_match", err.Error()))
	}
	return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", err.Error()))
}
