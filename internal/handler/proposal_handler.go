package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cardswap/cardswap-backend/internal/model"
	"github.com/cardswap/cardswap-backend/internal/service"
	"github.com/labstack/echo/v4"
)

type ProposalHandler struct {
	svc service.ProposalService
}

func NewProposalHandler(svc service.ProposalService) *ProposalHandler {
	return &ProposalHandler{svc: svc}
}

type ProposalResponse struct {
	ID                         uint64  `json:"id"`
	PublicID                   string  `json:"publicId"`
	MatchID                    uint64  `json:"matchId"`
	ProposerUID                string  `json:"proposerUid"`
	RecipientUID               string  `json:"recipientUid"`
	Status                     string  `json:"status"`
	EffectiveStatus            string  `json:"effectiveStatus"`
	ShippingMethod             *string `json:"shippingMethod"`
	ProposerConfirmed          bool    `json:"proposerConfirmed"`
	RecipientConfirmed         bool    `json:"recipientConfirmed"`
	ProposerShippingConfirmed  bool    `json:"proposerShippingConfirmed"`
	RecipientShippingConfirmed bool    `json:"recipientShippingConfirmed"`
	ProposerTrackingNumber     string  `json:"proposerTrackingNumber,omitempty"`
	ProposerCarrier            string  `json:"proposerCarrier,omitempty"`
	ProposerLabelURL           string  `json:"proposerLabelUrl,omitempty"`
	RecipientTrackingNumber    string  `json:"recipientTrackingNumber,omitempty"`
	RecipientCarrier           string  `json:"recipientCarrier,omitempty"`
	RecipientLabelURL          string  `json:"recipientLabelUrl,omitempty"`
	CreatedAt                  string  `json:"createdAt"`
	UpdatedAt                  string  `json:"updatedAt"`
	CompletedAt                *string `json:"completedAt,omitempty"`
}

func toProposalResponse(p *model.TradeProposal) ProposalResponse {
	var method *string
	if p.ShippingMethod != nil {
		val := string(*p.ShippingMethod)
		method = &val
	}
	var completedAt *string
	if p.CompletedAt != nil {
		val := p.CompletedAt.Format(time.RFC3339)
		completedAt = &val
	}
	return ProposalResponse{
		ID:                         p.ID,
		PublicID:                   p.PublicID,
		MatchID:                    p.MatchID,
		ProposerUID:                p.ProposerUID,
		RecipientUID:               p.RecipientUID,
		Status:                     string(p.Status),
		EffectiveStatus:            string(p.EffectiveStatus()),
		ShippingMethod:             method,
		ProposerConfirmed:          p.ProposerConfirmed,
		RecipientConfirmed:         p.RecipientConfirmed,
		ProposerShippingConfirmed:  p.ProposerShippingConfirmed,
		RecipientShippingConfirmed: p.RecipientShippingConfirmed,
		ProposerTrackingNumber:     p.ProposerTrackingNumber,
		ProposerCarrier:            p.ProposerCarrier,
		ProposerLabelURL:           p.ProposerLabelURL,
		RecipientTrackingNumber:    p.RecipientTrackingNumber,
		RecipientCarrier:           p.RecipientCarrier,
		RecipientLabelURL:          p.RecipientLabelURL,
		CreatedAt:                  p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:                  p.UpdatedAt.Format(time.RFC3339),
		CompletedAt:                completedAt,
	}
}

func uidOf(c echo.Context) string {
	uid, _ := c.Get("uid").(string)
	return uid
}

func parseID(c echo.Context, name string) (uint64, error) {
	return strconv.ParseUint(c.Param(name), 10, 64)
}

func (h *ProposalHandler) Propose(c echo.Context) error {
	uid := uidOf(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	matchID, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid match id"))
	}
	p, err := h.svc.Propose(c.Request().Context(), matchID, uid)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateProposal) {
			// Offer the existing proposal instead of failing outright.
			return c.JSON(http.StatusConflict, map[string]interface{}{
				"error":    map[string]string{"code": "duplicate_proposal", "message": err.Error()},
				"existing": toProposalResponse(p),
			})
		}
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, toProposalResponse(p))
}

func (h *ProposalHandler) ListMine(c echo.Context) error {
	uid := uidOf(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	list, err := h.svc.ListByParty(c.Request().Context(), uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch proposals"))
	}
	resp := make([]ProposalResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toProposalResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ProposalHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid proposal id"))
	}
	p, err := h.svc.Get(c.Request().Context(), id, uidOf(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toProposalResponse(p))
}

type ProposalViewResponse struct {
	Proposal         ProposalResponse `json:"proposal"`
	EffectiveStatus  string           `json:"effectiveStatus"`
	CurrentStep      string           `json:"currentStep"`
	AvailableActions []string         `json:"availableActions"`
}

func (h *ProposalHandler) View(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid proposal id"))
	}
	v, err := h.svc.View(c.Request().Context(), id, uidOf(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, ProposalViewResponse{
		Proposal:         toProposalResponse(v.Proposal),
		EffectiveStatus:  string(v.EffectiveStatus),
		CurrentStep:      string(v.CurrentStep),
		AvailableActions: v.AvailableActions,
	})
}

func (h *ProposalHandler) transition(c echo.Context, op func(uint64, string) (*model.TradeProposal, error)) error {
	uid := uidOf(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid proposal id"))
	}
	p, err := op(id, uid)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toProposalResponse(p))
}

func (h *ProposalHandler) Accept(c echo.Context) error {
	return h.transition(c, func(id uint64, uid string) (*model.TradeProposal, error) {
		return h.svc.Accept(c.Request().Context(), id, uid)
	})
}

func (h *ProposalHandler) Confirm(c echo.Context) error {
	return h.transition(c, func(id uint64, uid string) (*model.TradeProposal, error) {
		return h.svc.Confirm(c.Request().Context(), id, uid)
	})
}

func (h *ProposalHandler) Decline(c echo.Context) error {
	return h.transition(c, func(id uint64, uid string) (*model.TradeProposal, error) {
		return h.svc.Decline(c.Request().Context(), id, uid)
	})
}

func (h *ProposalHandler) Cancel(c echo.Context) error {
	return h.transition(c, func(id uint64, uid string) (*model.TradeProposal, error) {
		return h.svc.Cancel(c.Request().Context(), id, uid)
	})
}

func (h *ProposalHandler) Delete(c echo.Context) error {
	uid := uidOf(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid proposal id"))
	}
	if err := h.svc.Delete(c.Request().Context(), id, uid); err != nil {
		return respondServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ProposalHandler) SelectShippingMethod(c echo.Context) error {
	var body struct {
		Method string `json:"method"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	return h.transition(c, func(id uint64, uid string) (*model.TradeProposal, error) {
		return h.svc.SelectShippingMethod(c.Request().Context(), id, uid, model.ShippingMethod(body.Method))
	})
}

func (h *ProposalHandler) ConfirmDelivery(c echo.Context) error {
	return h.transition(c, func(id uint64, uid string) (*model.TradeProposal, error) {
		return h.svc.CompleteDelivery(c.Request().Context(), id, uid)
	})
}

// Reconcile is the explicit maintenance entry point for pruning proposals
// whose match data no longer resolves.
func (h *ProposalHandler) Reconcile(c echo.Context) error {
	pruned, err := h.svc.Reconcile(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]int{"pruned": pruned})
}
