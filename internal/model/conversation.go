package model

import "time"

// Conversation is the proposal-scoped thread between the two parties. The
// meetup fulfillment branch coordinates its logistics here.
type Conversation struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ProposalID   uint64    `gorm:"column:proposal_id;uniqueIndex" json:"proposalId"`
	ProposerUID  string    `gorm:"column:proposer_uid;size:128;index" json:"proposerUid"`
	RecipientUID string    `gorm:"column:recipient_uid;size:128;index" json:"recipientUid"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}
