package handler

import (
	"net/http"
	"time"

	"github.com/cardswap/cardswap-backend/internal/model"
	"github.com/cardswap/cardswap-backend/internal/service"
	"github.com/labstack/echo/v4"
)

type CatalogHandler struct {
	svc service.CatalogService
}

func NewCatalogHandler(svc service.CatalogService) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

type CardResponse struct {
	ID            uint64  `json:"id"`
	Name          string  `json:"name"`
	SetCode       string  `json:"setCode,omitempty"`
	Number        string  `json:"number,omitempty"`
	Condition     string  `json:"condition,omitempty"`
	EstValueCents int64   `json:"estValueCents"`
	ImageURL      *string `json:"imageUrl,omitempty"`
	CreatedAt     string  `json:"createdAt"`
}

func toCardResponse(c *model.Card) CardResponse {
	return CardResponse{
		ID:            c.ID,
		Name:          c.Name,
		SetCode:       c.SetCode,
		Number:        c.Number,
		Condition:     c.Condition,
		EstValueCents: c.EstValueCents,
		ImageURL:      c.ImageURL,
		CreatedAt:     c.CreatedAt.Format(time.RFC3339),
	}
}

type MatchResponse struct {
	ID              uint64   `json:"id"`
	CounterpartyUID string   `json:"counterpartyUid"`
	OwnCardIDs      []uint64 `json:"ownCardIds"`
	TheirCardIDs    []uint64 `json:"theirCardIds"`
	IsBundle        bool     `json:"isBundle"`
	MatchScore      float64  `json:"matchScore"`
	ValueDifference int64    `json:"valueDifference"`
	CreatedAt       string   `json:"createdAt"`
}

func toMatchResponse(m *model.Match, viewerUID string) MatchResponse {
	return MatchResponse{
		ID:              m.ID,
		CounterpartyUID: m.CounterpartyOf(viewerUID),
		OwnCardIDs:      m.CardIDsOf(viewerUID),
		TheirCardIDs:    m.CardIDsOf(m.CounterpartyOf(viewerUID)),
		IsBundle:        m.IsBundle,
		MatchScore:      m.MatchScore,
		ValueDifference: m.ValueDifference,
		CreatedAt:       m.CreatedAt.Format(time.RFC3339),
	}
}

func (h *CatalogHandler) ListMyCards(c echo.Context) error {
	uid := uidOf(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	cards, err := h.svc.ListCards(c.Request().Context(), uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch cards"))
	}
	resp := make([]CardResponse, 0, len(cards))
	for i := range cards {
		resp = append(resp, toCardResponse(&cards[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *CatalogHandler) ListMyMatches(c echo.Context) error {
	uid := uidOf(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	matches, err := h.svc.ListMatches(c.Request().Context(), uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch matches"))
	}
	resp := make([]MatchResponse, 0, len(matches))
	for i := range matches {
		resp = append(resp, toMatchResponse(&matches[i], uid))
	}
	return c.JSON(http.StatusOK, resp)
}
