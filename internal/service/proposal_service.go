package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cardswap/cardswap-backend/internal/model"
	"github.com/cardswap/cardswap-backend/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProposalService owns the trade proposal state machine. Every mutation
// validates the transition against a freshly-read record, writes through a
// guarded narrow update, and on a guard miss re-reads once before giving up
// with ErrConflict.
type ProposalService interface {
	Propose(ctx context.Context, matchID uint64, proposerUID string) (*model.TradeProposal, error)
	Get(ctx context.Context, id uint64, actorUID string) (*model.TradeProposal, error)
	ListByParty(ctx context.Context, uid string) ([]model.TradeProposal, error)
	Accept(ctx context.Context, id uint64, actorUID string) (*model.TradeProposal, error)
	Confirm(ctx context.Context, id uint64, actorUID string) (*model.TradeProposal, error)
	Decline(ctx context.Context, id uint64, actorUID string) (*model.TradeProposal, error)
	Cancel(ctx context.Context, id uint64, actorUID string) (*model.TradeProposal, error)
	Delete(ctx context.Context, id uint64, actorUID string) error
	SelectShippingMethod(ctx context.Context, id uint64, actorUID string, method model.ShippingMethod) (*model.TradeProposal, error)
	CompleteDelivery(ctx context.Context, id uint64, actorUID string) (*model.TradeProposal, error)
	View(ctx context.Context, id uint64, actorUID string) (*ProposalView, error)
	Reconcile(ctx context.Context) (int, error)
}

// ProposalView is the presentation contract: one source-of-truth proposal
// plus everything derived from it for the viewing party.
type ProposalView struct {
	Proposal         *model.TradeProposal
	EffectiveStatus  model.ProposalStatus
	CurrentStep      Step
	AvailableActions []string
}

type proposalService struct {
	proposals repository.ProposalRepository
	matches   repository.MatchRepository
	cards     repository.CardRepository
	addresses repository.AddressRepository
	convs     repository.ConversationRepository
	notify    NotificationService
}

func NewProposalService(
	proposals repository.ProposalRepository,
	matches repository.MatchRepository,
	cards repository.CardRepository,
	addresses repository.AddressRepository,
	convs repository.ConversationRepository,
	notify NotificationService,
) ProposalService {
	return &proposalService{
		proposals: proposals,
		matches:   matches,
		cards:     cards,
		addresses: addresses,
		convs:     convs,
		notify:    notify,
	}
}

func (s *proposalService) fetch(ctx context.Context, id uint64, actorUID string) (*model.TradeProposal, model.Party, error) {
	p, err := s.proposals.FindByID(ctx, id)
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
	return p, side, nil
}

func (s *proposalService) Propose(ctx context.Context, matchID uint64, proposerUID string) (*model.TradeProposal, error) {
	if proposerUID == "" {
		return nil, ErrForbidden
	}
	m, err := s.matches.FindByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !m.HasParty(proposerUID) {
		return nil, ErrForbidden
	}
	if err := s.resolveMatchCards(ctx, m); err != nil {
		return nil, err
	}

	if existing, err := s.proposals.FindActiveByMatch(ctx, matchID); err == nil && existing != nil {
		return existing, ErrDuplicateProposal
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	p := &model.TradeProposal{
		PublicID:     uuid.NewString(),
		MatchID:      matchID,
		ProposerUID:  proposerUID,
		RecipientUID: m.CounterpartyOf(proposerUID),
		Status:       model.ProposalStatusProposed,
	}
	if err := s.proposals.Create(ctx, p); err != nil {
		// The store re-checks the invariant under the match lock, so a
		// racing Propose that slipped past the read above loses here.
		if errors.Is(err, repository.ErrActiveProposalExists) {
			if existing, ferr := s.proposals.FindActiveByMatch(ctx, matchID); ferr == nil {
				return existing, ErrDuplicateProposal
			}
			return nil, ErrDuplicateProposal
		}
		return nil, err
	}

	s.postSystemMessage(ctx, p, proposerUID, "A trade has been proposed for this match. Review the cards and accept or decline.")
	s.notify.Notify(ctx, p.RecipientUID, "proposal_received", "New trade proposal",
		"You have received a trade proposal.", &p.ID, nil)
	return p, nil
}

func (s *proposalService) Get(ctx context.Context, id uint64, actorUID string) (*model.TradeProposal, error) {
	p, _, err := s.fetch(ctx, id, actorUID)
	return p, err
}

// ListByParty is a pure read; invalid proposals are pruned by Reconcile, not here.
func (s *proposalService) ListByParty(ctx context.Context, uid string) ([]model.TradeProposal, error) {
	if uid == "" {
		return nil, ErrForbidden
	}
	return s.proposals.ListByParty(ctx, uid)
}

func (s *proposalService) Accept(ctx context.Context, id uint64, actorUID string) (*model.TradeProposal, error) {
	p, side, err := s.fetch(ctx, id, actorUID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.ProposalStatusProposed {
		return nil, invalidTransition(p, "accept")
	}
	if p.ConfirmAcks().Of(side) {
		return p, nil
	}
	// The recipient always acknowledges first; a proposer "accept" is only
	// meaningful once the recipient's flag is up, where it acts as confirm.
	if side == model.PartyProposer && !p.RecipientConfirmed {
		return nil, invalidTransition(p, "accept")
	}
	return s.setConfirmFlag(ctx, p, side, "accept")
}

func (s *proposalService) Confirm(ctx context.Context, id uint64, actorUID string) (*model.TradeProposal, error) {
	p, side, err := s.fetch(ctx, id, actorUID)
	if err != nil {
		return nil, err
	}
	if p.ConfirmAcks().Of(side) {
		if p.Status == model.ProposalStatusProposed {
			return p, nil
		}
		return nil, invalidTransition(p, "confirm")
	}
	if p.EffectiveStatus() != model.ProposalStatusAcceptedByRecipient {
		return nil, invalidTransition(p, "confirm")
	}
	return s.setConfirmFlag(ctx, p, side, "confirm")
}

// setConfirmFlag performs the guarded flag write with a single re-read retry.
func (s *proposalService) setConfirmFlag(ctx context.Context, p *model.TradeProposal, side model.Party, attempted string) (*model.TradeProposal, error) {
	rows, err := s.proposals.SetPartyConfirmed(ctx, p.ID, side)
	if err != nil {
		return nil, err
	}
	fresh, err := s.proposals.FindByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		if fresh.ConfirmAcks().Of(side) {
			return fresh, nil
		}
		if fresh.Status != model.ProposalStatusProposed {
			return nil, invalidTransition(fresh, attempted)
		}
		return nil, ErrConflict
	}
	if fresh.EffectiveStatus() == model.ProposalStatusConfirmed {
		s.postSystemMessage(ctx, fresh, "", "Both parties have confirmed the trade. Choose a shipping method to continue.")
		s.notify.Notify(ctx, fresh.CounterpartyOf(actorFor(fresh, side)), "proposal_confirmed", "Trade confirmed",
			"Both parties confirmed. Pick a shipping method.", &fresh.ID, nil)
	} else {
		s.notify.Notify(ctx, fresh.CounterpartyOf(actorFor(fresh, side)), "proposal_accepted", "Trade accepted",
			"Your trade proposal was accepted. Confirm to continue.", &fresh.ID, nil)
	}
	return fresh, nil
}

func actorFor(p *model.TradeProposal, side model.Party) string {
	if side == model.PartyProposer {
		return p.ProposerUID
	}
	return p.RecipientUID
}

func (s *proposalService) Decline(ctx context.Context, id uint64, actorUID string) (*model.TradeProposal, error) {
	p, _, err := s.fetch(ctx, id, actorUID)
	if err != nil {
		return nil, err
	}
	if p.Status == model.ProposalStatusDeclined {
		return p, nil
	}
	if p.Status != model.ProposalStatusProposed || p.ConfirmAcks().Both() {
		return nil, invalidTransition(p, "decline")
	}
	rows, err := s.proposals.TerminateEarly(ctx, id, model.ProposalStatusDeclined)
	if err != nil {
		return nil, err
	}
	fresh, err := s.proposals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		if fresh.Status == model.ProposalStatusDeclined {
			return fresh, nil
		}
		return nil, invalidTransition(fresh, "decline")
	}
	s.notify.Notify(ctx, fresh.CounterpartyOf(actorUID), "proposal_declined", "Trade declined",
		"The trade proposal was declined.", &fresh.ID, nil)
	return fresh, nil
}

func (s *proposalService) Cancel(ctx context.Context, id uint64, actorUID string) (*model.TradeProposal, error) {
	p, _, err := s.fetch(ctx, id, actorUID)
	if err != nil {
		return nil, err
	}
	if p.Status == model.ProposalStatusCancelled {
		return p, nil
	}
	switch p.Status {
	case model.ProposalStatusProposed, model.ProposalStatusShippingPending:
	default:
		return nil, invalidTransition(p, "cancel")
	}
	rows, err := s.proposals.SetStatus(ctx, id,
		[]model.ProposalStatus{model.ProposalStatusProposed, model.ProposalStatusShippingPending},
		model.ProposalStatusCancelled)
	if err != nil {
		return nil, err
	}
	fresh, err := s.proposals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		if fresh.Status == model.ProposalStatusCancelled {
			return fresh, nil
		}
		return nil, invalidTransition(fresh, "cancel")
	}
	s.notify.Notify(ctx, fresh.CounterpartyOf(actorUID), "proposal_cancelled", "Trade cancelled",
		"The trade was cancelled.", &fresh.ID, nil)
	return fresh, nil
}

func (s *proposalService) Delete(ctx context.Context, id uint64, actorUID string) error {
	p, _, err := s.fetch(ctx, id, actorUID)
	if err != nil {
		return err
	}
	if p.Status != model.ProposalStatusProposed || p.ConfirmAcks().Both() {
		return invalidTransition(p, "delete")
	}
	rows, err := s.proposals.DeleteEarly(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		fresh, err := s.proposals.FindByID(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return invalidTransition(fresh, "delete")
	}
	return nil
}

func (s *proposalService) SelectShippingMethod(ctx context.Context, id uint64, actorUID string, method model.ShippingMethod) (*model.TradeProposal, error) {
	if method != model.ShippingMethodMail && method != model.ShippingMethodMeetup {
		return nil, fmt.Errorf("unknown shipping method %q", method)
	}
	p, side, err := s.fetch(ctx, id, actorUID)
	if err != nil {
		return nil, err
	}
	if p.ShippingMethod != nil {
		if *p.ShippingMethod == method {
			return p, nil
		}
		// Method choice is sticky for the life of the proposal.
		return nil, invalidTransition(p, "select shipping method")
	}
	if p.EffectiveStatus() != model.ProposalStatusConfirmed {
		return nil, invalidTransition(p, "select shipping method")
	}
	rows, err := s.proposals.SetShippingMethod(ctx, id, method)
	if err != nil {
		return nil, err
	}
	fresh, err := s.proposals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		if fresh.ShippingMethod != nil && *fresh.ShippingMethod == method {
			return fresh, nil
		}
		return nil, ErrConflict
	}
	if method == model.ShippingMethodMeetup {
		s.postSystemMessage(ctx, fresh, actorFor(fresh, side),
			"Meetup selected. Use this thread to agree on a time and place, then each of you confirms the exchange here.")
	} else {
		s.postSystemMessage(ctx, fresh, actorFor(fresh, side),
			"Mail shipping selected. Each party purchases a label for their own card.")
	}
	s.notify.Notify(ctx, fresh.CounterpartyOf(actorUID), "shipping_method_selected", "Shipping method chosen",
		fmt.Sprintf("The trade will be fulfilled via %s.", method), &fresh.ID, nil)
	return fresh, nil
}

func (s *proposalService) CompleteDelivery(ctx context.Context, id uint64, actorUID string) (*model.TradeProposal, error) {
	p, _, err := s.fetch(ctx, id, actorUID)
	if err != nil {
		return nil, err
	}
	if p.Status == model.ProposalStatusCompleted {
		return p, nil
	}
	if !p.ShippingAcks().Both() {
		return nil, invalidTransition(p, "confirm delivery")
	}
	rows, err := s.proposals.SetCompleted(ctx, id)
	if err != nil {
		return nil, err
	}
	fresh, err := s.proposals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		if fresh.Status == model.ProposalStatusCompleted {
			return fresh, nil
		}
		return nil, ErrConflict
	}
	s.postSystemMessage(ctx, fresh, actorUID, "Trade complete. Enjoy your new cards!")
	s.notify.Notify(ctx, fresh.ProposerUID, "trade_completed", "Trade completed", "The trade is complete.", &fresh.ID, nil)
	s.notify.Notify(ctx, fresh.RecipientUID, "trade_completed", "Trade completed", "The trade is complete.", &fresh.ID, nil)
	return fresh, nil
}

func (s *proposalService) View(ctx context.Context, id uint64, actorUID string) (*ProposalView, error) {
	p, side, err := s.fetch(ctx, id, actorUID)
	if err != nil {
		return nil, err
	}
	in := stepInput{proposal: p, side: side}
	if p.ShippingMethod != nil && *p.ShippingMethod == model.ShippingMethodMail {
		in.ownAddressOK = s.partyAddressResolves(ctx, p, actorUID)
		in.counterpartyAddressOK = s.partyAddressResolves(ctx, p, p.CounterpartyOf(actorUID))
	}
	step := selectStep(in)
	return &ProposalView{
		Proposal:         p,
		EffectiveStatus:  p.EffectiveStatus(),
		CurrentStep:      step,
		AvailableActions: availableActions(step, side),
	}, nil
}

// partyAddressResolves checks the snapshot first, then the live default.
func (s *proposalService) partyAddressResolves(ctx context.Context, p *model.TradeProposal, uid string) bool {
	var snapshot *uint64
	if p.SideOf(uid) == model.PartyProposer {
		snapshot = p.ProposerAddressID
	} else {
		snapshot = p.RecipientAddressID
	}
	if snapshot != nil {
		if _, err := s.addresses.FindByID(ctx, *snapshot); err == nil {
			return true
		}
	}
	_, err := s.addresses.FindDefaultByUser(ctx, uid)
	return err == nil
}

// Reconcile prunes active proposals whose backing match can no longer resolve
// its card references. Idempotent; meant for a schedule or an explicit
// maintenance call, never a read path.
func (s *proposalService) Reconcile(ctx context.Context) (int, error) {
	active, err := s.proposals.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	pruned := 0
	for i := range active {
		p := &active[i]
		m, err := s.matches.FindByID(ctx, p.MatchID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pruned, err
		}
		if err == nil && s.resolveMatchCards(ctx, m) == nil {
			continue
		}
		if err := s.proposals.Delete(ctx, p.ID); err != nil {
			return pruned, err
		}
		pruned++
		slog.Info("pruned proposal with unresolvable match",
			slog.Uint64("proposal_id", p.ID),
			slog.Uint64("match_id", p.MatchID))
	}
	return pruned, nil
}

// resolveMatchCards verifies the match encoding and that every referenced
// card still exists.
func (s *proposalService) resolveMatchCards(ctx context.Context, m *model.Match) error {
	if !m.Valid() {
		return ErrInvalidMatch
	}
	ids := m.AllCardIDs()
	cards, err := s.cards.FindByIDs(ctx, ids)
	if err != nil {
		return err
	}
	found := make(map[uint64]bool, len(cards))
	for _, c := range cards {
		found[c.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return ErrInvalidMatch
		}
	}
	return nil
}

// postSystemMessage drops a note into the proposal's conversation thread.
// Best-effort; a failed note never fails the transition.
func (s *proposalService) postSystemMessage(ctx context.Context, p *model.TradeProposal, senderUID, body string) {
	if senderUID == "" {
		senderUID = p.ProposerUID
	}
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
