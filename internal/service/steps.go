package service

import "github.com/cardswap/cardswap-backend/internal/model"

// Step is what the presentation layer should render next for one viewing
// party. Two parties of the same proposal usually see different steps.
type Step string

const (
	StepReviewOffer            Step = "review_offer"
	StepAwaitingAcceptance     Step = "awaiting_acceptance"
	StepConfirmTrade           Step = "confirm_trade"
	StepMethodSelection        Step = "method_selection"
	StepAddressEntry           Step = "address_entry"
	StepWaitingOnAddress       Step = "waiting_on_counterparty_address"
	StepRateShopping           Step = "rate_shopping"
	StepMeetupCoordination     Step = "meetup_coordination"
	StepWaitingOnCounterparty  Step = "waiting_on_counterparty"
	StepDeliveryConfirmation   Step = "delivery_confirmation"
	StepComplete               Step = "complete"
	StepClosed                 Step = "closed"
)

// stepInput is everything step selection depends on, resolved up front so the
// selection itself stays a pure function.
type stepInput struct {
	proposal              *model.TradeProposal
	side                  model.Party
	ownAddressOK          bool
	counterpartyAddressOK bool
}

// selectStep picks the current step for the viewing party, evaluated in
// priority order against the freshly-read proposal.
func selectStep(in stepInput) Step {
	p := in.proposal
	switch p.Status {
	case model.ProposalStatusCompleted:
		return StepComplete
	case model.ProposalStatusDeclined, model.ProposalStatusCancelled:
		return StepClosed
	}

	confirm := p.ConfirmAcks()
	if !confirm.Both() {
		if confirm.Of(in.side) {
			return StepAwaitingAcceptance
		}
		if confirm.ExactlyOne() {
			return StepConfirmTrade
		}
		if in.side == model.PartyRecipient {
			return StepReviewOffer
		}
		return StepAwaitingAcceptance
	}

	if p.ShippingMethod == nil {
		return StepMethodSelection
	}

	shipping := p.ShippingAcks()
	if shipping.Both() {
		return StepDeliveryConfirmation
	}
	if shipping.Of(in.side) {
		return StepWaitingOnCounterparty
	}
	if *p.ShippingMethod == model.ShippingMethodMeetup {
		return StepMeetupCoordination
	}
	if !in.ownAddressOK {
		return StepAddressEntry
	}
	if !in.counterpartyAddressOK {
		return StepWaitingOnAddress
	}
	return StepRateShopping
}

// availableActions lists the intents the viewing party may submit from the
// given step. Button enablement derives from this, not from parallel flags.
func availableActions(step Step, side model.Party) []string {
	switch step {
	case StepReviewOffer:
		return []string{"accept", "decline"}
	case StepAwaitingAcceptance:
		if side == model.PartyProposer {
			return []string{"delete", "decline"}
		}
		return []string{"decline"}
	case StepConfirmTrade:
		return []string{"confirm", "decline"}
	case StepMethodSelection:
		return []string{"selectShippingMethod", "cancel"}
	case StepAddressEntry:
		return []string{"selectAddress", "cancel"}
	case StepWaitingOnAddress:
		return []string{"requestAddress", "cancel"}
	case StepRateShopping:
		return []string{"selectRate", "purchaseLabel", "cancel"}
	case StepMeetupCoordination:
		return []string{"confirmMeetup", "cancel"}
	case StepWaitingOnCounterparty:
		return []string{"cancel"}
	case StepDeliveryConfirmation:
		return []string{"confirmDelivery"}
	}
	return []string{}
}
