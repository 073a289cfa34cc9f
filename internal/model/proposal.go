package model

import "time"

type ProposalStatus string

const (
	ProposalStatusProposed            ProposalStatus = "proposed"
	ProposalStatusAcceptedByRecipient ProposalStatus = "accepted_by_recipient"
	ProposalStatusConfirmed           ProposalStatus = "confirmed"
	ProposalStatusShippingPending     ProposalStatus = "shipping_pending"
	ProposalStatusShippingConfirmed   ProposalStatus = "shipping_confirmed"
	ProposalStatusCompleted           ProposalStatus = "completed"
	ProposalStatusDeclined            ProposalStatus = "declined"
	ProposalStatusCancelled           ProposalStatus = "cancelled"
)

// Terminal reports whether no further transition is legal from s.
func (s ProposalStatus) Terminal() bool {
	return s == ProposalStatusCompleted || s == ProposalStatusDeclined || s == ProposalStatusCancelled
}

type ShippingMethod string

const (
	ShippingMethodMail   ShippingMethod = "mail"
	ShippingMethodMeetup ShippingMethod = "local_meetup"
)

// Party identifies which side of a proposal an actor is.
type Party string

const (
	PartyProposer  Party = "proposer"
	PartyRecipient Party = "recipient"
	PartyNone      Party = ""
)

// TradeProposal is the stateful negotiation record, one-to-one with the match
// it realizes. Only the status and the acting party's own flag/artifact
// fields are ever written after creation; everything a counterparty owns is
// off limits (see repository guards).
type TradeProposal struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	PublicID string `gorm:"column:public_id;size:36;uniqueIndex;not null"`
	MatchID  uint64 `gorm:"column:match_id;index;not null"`

	ProposerUID  string `gorm:"column:proposer_uid;size:128;index;not null"`
	RecipientUID string `gorm:"column:recipient_uid;size:128;index;not null"`

	Status         ProposalStatus  `gorm:"column:status;size:32;index;not null"`
	ShippingMethod *ShippingMethod `gorm:"column:shipping_method;size:16"`

	ProposerConfirmed  bool `gorm:"column:proposer_confirmed;not null;default:false"`
	RecipientConfirmed bool `gorm:"column:recipient_confirmed;not null;default:false"`

	ProposerShippingConfirmed  bool `gorm:"column:proposer_shipping_confirmed;not null;default:false"`
	RecipientShippingConfirmed bool `gorm:"column:recipient_shipping_confirmed;not null;default:false"`

	ProposerTrackingNumber  string `gorm:"column:proposer_tracking_number;size:64"`
	ProposerCarrier         string `gorm:"column:proposer_carrier;size:64"`
	ProposerLabelURL        string `gorm:"column:proposer_label_url;type:text"`
	ProposerAddressID       *uint64 `gorm:"column:proposer_address_id"`
	RecipientTrackingNumber string `gorm:"column:recipient_tracking_number;size:64"`
	RecipientCarrier        string `gorm:"column:recipient_carrier;size:64"`
	RecipientLabelURL       string `gorm:"column:recipient_label_url;type:text"`
	RecipientAddressID      *uint64 `gorm:"column:recipient_address_id"`

	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
}

func (TradeProposal) TableName() string {
	return "trade_proposals"
}

// SideOf returns which party uid is on this proposal.
func (p *TradeProposal) SideOf(uid string) Party {
	switch {
	case uid != "" && uid == p.ProposerUID:
		return PartyProposer
	case uid != "" && uid == p.RecipientUID:
		return PartyRecipient
	}
	return PartyNone
}

// CounterpartyOf returns the other party's uid, or "" for a non-party.
func (p *TradeProposal) CounterpartyOf(uid string) string {
	switch p.SideOf(uid) {
	case PartyProposer:
		return p.RecipientUID
	case PartyRecipient:
		return p.ProposerUID
	}
	return ""
}

// ConfirmAcks returns the accept/confirm-stage acknowledgment pair.
func (p *TradeProposal) ConfirmAcks() AckPair {
	return AckPair{Proposer: p.ProposerConfirmed, Recipient: p.RecipientConfirmed}
}

// ShippingAcks returns the fulfillment-stage acknowledgment pair. Its meaning
// depends on ShippingMethod: a label purchase for mail, an in-person
// confirmation for local_meetup.
func (p *TradeProposal) ShippingAcks() AckPair {
	return AckPair{Proposer: p.ProposerShippingConfirmed, Recipient: p.RecipientShippingConfirmed}
}

// EffectiveStatus recomputes the display/branching status from the raw
// persisted fields. Never cached; call on every read.
func (p *TradeProposal) EffectiveStatus() ProposalStatus {
	return DeriveEffectiveStatus(p.Status, p.ConfirmAcks(), p.ShippingAcks())
}

// Confirmation returns uid's fulfillment confirmation, or nil if that party
// has not confirmed yet.
func (p *TradeProposal) Confirmation(uid string) *FulfillmentConfirmation {
	method := ShippingMethodMail
	if p.ShippingMethod != nil {
		method = *p.ShippingMethod
	}
	switch p.SideOf(uid) {
	case PartyProposer:
		if !p.ProposerShippingConfirmed {
			return nil
		}
		return newFulfillmentConfirmation(method, p.ProposerTrackingNumber, p.ProposerCarrier, p.ProposerLabelURL)
	case PartyRecipient:
		if !p.RecipientShippingConfirmed {
			return nil
		}
		return newFulfillmentConfirmation(method, p.RecipientTrackingNumber, p.RecipientCarrier, p.RecipientLabelURL)
	}
	return nil
}
