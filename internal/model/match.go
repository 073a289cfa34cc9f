package model

import "time"

// Match is a candidate pairing of two users' cards produced by the matching
// collaborator. It is read-only once a proposal references it.
type Match struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement"`
	User1UID        string    `gorm:"column:user1_uid;size:128;index;not null"`
	User2UID        string    `gorm:"column:user2_uid;size:128;index;not null"`
	User1CardID     *uint64   `gorm:"column:user1_card_id"`
	User2CardID     *uint64   `gorm:"column:user2_card_id"`
	User1CardIDs    []uint64  `gorm:"column:user1_card_ids;serializer:json"`
	User2CardIDs    []uint64  `gorm:"column:user2_card_ids;serializer:json"`
	IsBundle        bool      `gorm:"column:is_bundle"`
	MatchScore      float64   `gorm:"column:match_score"`
	ValueDifference int64     `gorm:"column:value_difference"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

func (Match) TableName() string {
	return "matches"
}

// HasParty reports whether uid is one of the two matched users.
func (m *Match) HasParty(uid string) bool {
	return uid != "" && (uid == m.User1UID || uid == m.User2UID)
}

// CounterpartyOf returns the other user of the match, or "" if uid is not a party.
func (m *Match) CounterpartyOf(uid string) string {
	switch uid {
	case m.User1UID:
		return m.User2UID
	case m.User2UID:
		return m.User1UID
	}
	return ""
}

// CardIDsOf returns the card ids uid brings to the match, honoring the
// single-card vs bundle encoding. Exactly one of the two encodings must be
// populated for the match to be valid.
func (m *Match) CardIDsOf(uid string) []uint64 {
	if m.IsBundle {
		if uid == m.User1UID {
			return m.User1CardIDs
		}
		if uid == m.User2UID {
			return m.User2CardIDs
		}
		return nil
	}
	if uid == m.User1UID && m.User1CardID != nil {
		return []uint64{*m.User1CardID}
	}
	if uid == m.User2UID && m.User2CardID != nil {
		return []uint64{*m.User2CardID}
	}
	return nil
}

// AllCardIDs returns every card id the match references, both sides.
func (m *Match) AllCardIDs() []uint64 {
	ids := append([]uint64{}, m.CardIDsOf(m.User1UID)...)
	return append(ids, m.CardIDsOf(m.User2UID)...)
}

// Valid reports whether the match populates exactly one card encoding with
// non-empty sides. A match failing this must never back a live proposal.
func (m *Match) Valid() bool {
	if m.IsBundle {
		return len(m.User1CardIDs) > 0 && len(m.User2CardIDs) > 0 &&
			m.User1CardID == nil && m.User2CardID == nil
	}
	return m.User1CardID != nil && m.User2CardID != nil &&
		len(m.User1CardIDs) == 0 && len(m.User2CardIDs) == 0
}
