package model

// AckPair is a two-party mutual-acknowledgment gate. The same shape backs
// both the accept/confirm stage and the fulfillment stage.
type AckPair struct {
	Proposer  bool
	Recipient bool
}

func (a AckPair) Both() bool {
	return a.Proposer && a.Recipient
}

func (a AckPair) ExactlyOne() bool {
	return a.Proposer != a.Recipient
}

func (a AckPair) Of(side Party) bool {
	if side == PartyProposer {
		return a.Proposer
	}
	return a.Recipient
}

// DeriveEffectiveStatus maps the raw persisted status plus the two ack pairs
// to the status used for display and branching. Some transitions are
// represented only by flag combinations, so the derivation is the single
// source of truth for them:
//
//	proposed + both confirm acks        -> confirmed
//	proposed + exactly one confirm ack  -> accepted_by_recipient
//	shipping_confirmed + both ship acks -> completed
//	shipping_confirmed + one ship ack   -> shipping_pending
//
// Anything else passes through unchanged.
func DeriveEffectiveStatus(raw ProposalStatus, confirm, shipping AckPair) ProposalStatus {
	switch raw {
	case ProposalStatusProposed:
		if confirm.Both() {
			return ProposalStatusConfirmed
		}
		if confirm.ExactlyOne() {
			return ProposalStatusAcceptedByRecipient
		}
	case ProposalStatusShippingConfirmed:
		if shipping.Both() {
			return ProposalStatusCompleted
		}
		if shipping.ExactlyOne() {
			return ProposalStatusShippingPending
		}
	}
	return raw
}

// FulfillmentKind tags what a party's shipping-confirmed flag actually means.
type FulfillmentKind string

const (
	FulfillmentMail   FulfillmentKind = "mail"
	FulfillmentMeetup FulfillmentKind = "meetup"
)

// FulfillmentConfirmation is one party's completed fulfillment step. A mail
// confirmation carries label artifacts; a meetup confirmation carries none.
// Callers must not assume tracking data exists just because the party's
// shipping-confirmed flag is set.
type FulfillmentConfirmation struct {
	Kind           FulfillmentKind
	TrackingNumber string
	Carrier        string
	LabelURL       string
}

func newFulfillmentConfirmation(method ShippingMethod, tracking, carrier, labelURL string) *FulfillmentConfirmation {
	if method == ShippingMethodMeetup {
		return &FulfillmentConfirmation{Kind: FulfillmentMeetup}
	}
	return &FulfillmentConfirmation{
		Kind:           FulfillmentMail,
		TrackingNumber: tracking,
		Carrier:        carrier,
		LabelURL:       labelURL,
	}
}
