package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cardswap/cardswap-backend/internal/labelstore"
	"github.com/cardswap/cardswap-backend/internal/model"
	"github.com/cardswap/cardswap-backend/internal/repository"
	"github.com/cardswap/cardswap-backend/internal/shipping"
	"gorm.io/gorm"
)

// ShippingService drives the mail fulfillment branch (address snapshot, rate
// shopping, label purchase) and the meetup acknowledgment. Gateway failures
// never mutate the proposal; the acting party can always retry.
type ShippingService interface {
	GetRates(ctx context.Context, proposalID uint64, actorUID string, addressID *uint64) ([]shipping.RateQuote, error)
	PurchaseLabel(ctx context.Context, proposalID uint64, actorUID, quoteID string) (*model.TradeProposal, error)
	ConfirmMeetup(ctx context.Context, proposalID uint64, actorUID string) (*model.TradeProposal, error)
	RequestAddress(ctx context.Context, proposalID uint64, actorUID string) error
}

type shippingService struct {
	proposals repository.ProposalRepository
	addresses repository.AddressRepository
	convs     repository.ConversationRepository
	notify    NotificationService
	gateway   shipping.Gateway
	labels    *labelstore.Store
}

func NewShippingService(
	proposals repository.ProposalRepository,
	addresses repository.AddressRepository,
	convs repository.ConversationRepository,
	notify NotificationService,
	gateway shipping.Gateway,
	labels *labelstore.Store,
) ShippingService {
	return &shippingService{
		proposals: proposals,
		addresses: addresses,
		convs:     convs,
		notify:    notify,
		gateway:   gateway,
		labels:    labels,
	}
}

func (s *shippingService) fetchForShipping(ctx context.Context, proposalID uint64, actorUID string, method model.ShippingMethod, attempted string) (*model.TradeProposal, model.Party, error) {
	p, err := s.proposals.FindByID(ctx, proposalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.PartyNone, ErrNotFound
		}
		return nil, model.PartyNone, err
	}
	side := p.SideOf(actorUID)
	if side == model.PartyNone {
		return nil, model.PartyNone, ErrForbidden
	}
	if p.Status.Terminal() {
		return nil, side, invalidTransition(p, attempted)
	}
	if p.ShippingMethod == nil || *p.ShippingMethod != method {
		return nil, side, invalidTransition(p, attempted)
	}
	if !p.ConfirmAcks().Both() {
		return nil, side, invalidTransition(p, attempted)
	}
	return p, side, nil
}

// partyAddress resolves a party's address: the snapshot on the proposal
// first, then their current default. Labels and quotes only ever use what
// this returns.
func (s *shippingService) partyAddress(ctx context.Context, p *model.TradeProposal, uid string) (*model.ShippingAddress, error) {
	var snapshot *uint64
	if p.SideOf(uid) == model.PartyProposer {
		snapshot = p.ProposerAddressID
	} else {
		snapshot = p.RecipientAddressID
	}
	if snapshot != nil {
		a, err := s.addresses.FindByID(ctx, *snapshot)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	a, err := s.addresses.FindDefaultByUser(ctx, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func toGatewayAddress(a *model.ShippingAddress) shipping.Address {
	return shipping.Address{
		Name:       a.Name,
		Street1:    a.Street1,
		Street2:    a.Street2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

// GetRates snapshots the acting party's chosen address onto the proposal and
// quotes snapshot -> counterparty default with the fixed card-mailer parcel.
func (s *shippingService) GetRates(ctx context.Context, proposalID uint64, actorUID string, addressID *uint64) ([]shipping.RateQuote, error) {
	p, side, err := s.fetchForShipping(ctx, proposalID, actorUID, model.ShippingMethodMail, "shop rates")
	if err != nil {
		return nil, err
	}
	if p.ShippingAcks().Of(side) {
		return nil, invalidTransition(p, "shop rates")
	}

	var own *model.ShippingAddress
	if addressID != nil {
		own, err = s.addresses.FindByID(ctx, *addressID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrAddressRequired
			}
			return nil, err
		}
		if own.UserUID != actorUID {
			return nil, ErrForbidden
		}
	} else {
		own, err = s.partyAddress(ctx, p, actorUID)
		if err != nil {
			return nil, err
		}
		if own == nil {
			return nil, ErrAddressRequired
		}
	}

	// Snapshot the address id so a later address-book edit cannot silently
	// change what gets quoted or shipped mid-negotiation.
	current := p.ProposerAddressID
	if side == model.PartyRecipient {
		current = p.RecipientAddressID
	}
	if current == nil || *current != own.ID {
		if _, err := s.proposals.SetPartyAddress(ctx, p.ID, side, own.ID); err != nil {
			return nil, err
		}
	}

	counterparty, err := s.partyAddress(ctx, p, p.CounterpartyOf(actorUID))
	if err != nil {
		return nil, err
	}
	if counterparty == nil {
		return nil, ErrCounterpartyAddress
	}

	quotes, err := s.gateway.GetRates(ctx, toGatewayAddress(own), toGatewayAddress(counterparty), shipping.CardMailer)
	if err != nil {
		return nil, err
	}
	eligible := shipping.EligibleRates(quotes)
	if len(eligible) == 0 {
		return nil, ErrNoRates
	}
	return eligible, nil
}

// PurchaseLabel buys the selected quote and records the party's fulfillment
// in a single guarded write. A gateway error surfaces as-is with nothing
// persisted.
func (s *shippingService) PurchaseLabel(ctx context.Context, proposalID uint64, actorUID, quoteID string) (*model.TradeProposal, error) {
	p, side, err := s.fetchForShipping(ctx, proposalID, actorUID, model.ShippingMethodMail, "purchase label")
	if err != nil {
		return nil, err
	}
	if p.ShippingAcks().Of(side) {
		return p, nil
	}
	if quoteID == "" {
		return nil, fmt.Errorf("rate quote id is required")
	}

	label, err := s.gateway.PurchaseLabel(ctx, quoteID)
	if err != nil {
		return nil, err
	}

	labelURL := label.LabelURL
	if s.labels != nil {
		if archived, err := s.labels.Archive(ctx, p.ID, string(side), label.LabelURL); err == nil {
			labelURL = archived
		} else {
			slog.Warn("label archive failed, keeping gateway url",
				slog.Uint64("proposal_id", p.ID), slog.String("error", err.Error()))
		}
	}

	fresh, err := s.recordFulfillment(ctx, p, side, label.TrackingNumber, label.Carrier, labelURL)
	if err != nil {
		// The label is bought but could not be attached (e.g. the
		// counterparty cancelled mid-purchase). Leave a trace in the log
		// and the thread so the tracking number is recoverable.
		slog.Error("purchased label could not be recorded",
			slog.Uint64("proposal_id", p.ID),
			slog.String("carrier", label.Carrier),
			slog.String("tracking_number", label.TrackingNumber),
			slog.String("label_url", labelURL),
			slog.String("error", err.Error()))
		s.postSystemMessage(ctx, p, actorUID,
			fmt.Sprintf("A shipping label was purchased (%s, tracking %s) but could not be attached to this trade. Keep the tracking number and contact support if it was charged.", label.Carrier, label.TrackingNumber))
		return nil, err
	}
	s.postSystemMessage(ctx, fresh, actorUID,
		fmt.Sprintf("A shipping label was purchased (%s, tracking %s).", label.Carrier, label.TrackingNumber))
	s.notify.Notify(ctx, fresh.CounterpartyOf(actorUID), "label_purchased", "Counterparty shipped",
		"The other party purchased their shipping label.", &fresh.ID, nil)
	return fresh, nil
}

// ConfirmMeetup is the meetup branch's counterpart to a label purchase: the
// same fulfillment flags, no label artifacts.
func (s *shippingService) ConfirmMeetup(ctx context.Context, proposalID uint64, actorUID string) (*model.TradeProposal, error) {
	p, side, err := s.fetchForShipping(ctx, proposalID, actorUID, model.ShippingMethodMeetup, "confirm meetup")
	if err != nil {
		return nil, err
	}
	if p.ShippingAcks().Of(side) {
		return p, nil
	}
	fresh, err := s.recordFulfillment(ctx, p, side, "", "", "")
	if err != nil {
		return nil, err
	}
	s.postSystemMessage(ctx, fresh, actorUID, "Meetup exchange confirmed by one party.")
	s.notify.Notify(ctx, fresh.CounterpartyOf(actorUID), "meetup_confirmed", "Meetup confirmed",
		"The other party confirmed the exchange. Confirm on your side to complete the trade.", &fresh.ID, nil)
	return fresh, nil
}

// recordFulfillment writes the party's shipping confirmation with a one-shot
// retry: the guard pins the counterparty flag observed at validation time, so
// a concurrent confirmation forces a re-read and a recomputed status.
func (s *shippingService) recordFulfillment(ctx context.Context, p *model.TradeProposal, side model.Party, tracking, carrier, labelURL string) (*model.TradeProposal, error) {
	for attempt := 0; attempt < 2; attempt++ {
		otherConfirmed := p.ShippingAcks().Of(other(side))
		newStatus := model.ProposalStatusShippingPending
		if otherConfirmed {
			newStatus = model.ProposalStatusShippingConfirmed
		}
		rows, err := s.proposals.SetPartyShippingConfirmed(ctx, p.ID, side, tracking, carrier, labelURL, otherConfirmed, newStatus)
		if err != nil {
			return nil, err
		}
		fresh, err := s.proposals.FindByID(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if rows > 0 || fresh.ShippingAcks().Of(side) {
			return fresh, nil
		}
		if fresh.Status.Terminal() {
			return nil, invalidTransition(fresh, "confirm fulfillment")
		}
		p = fresh
	}
	return nil, ErrConflict
}

func other(side model.Party) model.Party {
	if side == model.PartyProposer {
		return model.PartyRecipient
	}
	return model.PartyProposer
}

// RequestAddress nudges a counterparty who has not saved an address yet.
func (s *shippingService) RequestAddress(ctx context.Context, proposalID uint64, actorUID string) error {
	p, _, err := s.fetchForShipping(ctx, proposalID, actorUID, model.ShippingMethodMail, "request address")
	if err != nil {
		return err
	}
	counterpartyUID := p.CounterpartyOf(actorUID)
	a, err := s.partyAddress(ctx, p, counterpartyUID)
	if err != nil {
		return err
	}
	if a != nil {
		return nil
	}
	s.notify.Notify(ctx, counterpartyUID, "address_requested", "Shipping address needed",
		"Your trade partner is ready to ship. Add a shipping address to continue.", &p.ID, nil)
	return nil
}

func (s *shippingService) postSystemMessage(ctx context.Context, p *model.TradeProposal, senderUID, body string) {
	cv, err := s.convs.FindOrCreate(ctx, p.ID, p.ProposerUID, p.RecipientUID)
	if err != nil {
		return
	}
	_ = s.convs.CreateMessage(ctx, &model.Message{
		ConversationID: cv.ID,
		SenderUID:      senderUID,
		Body:           body,
	})
}
