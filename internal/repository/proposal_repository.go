package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cardswap/cardswap-backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrActiveProposalExists is returned by Create when the match already has an
// active proposal. The caller resolves it by re-reading the existing one.
var ErrActiveProposalExists = errors.New("match already has an active proposal")

// ProposalRepository persists trade proposals. Every mutation is a guarded
// conditional write: Create re-checks the single-active-proposal invariant
// under a lock on the match row, and every later mutation is a narrow field
// update whose WHERE clause re-checks the state the caller validated against,
// with the row count telling the caller whether the write landed. A zero row
// count means the record moved underneath the caller (or the write was
// already applied) and must be resolved by re-reading, never by widening the
// update.
type ProposalRepository interface {
	Create(ctx context.Context, p *model.TradeProposal) error
	FindByID(ctx context.Context, id uint64) (*model.TradeProposal, error)
	FindActiveByMatch(ctx context.Context, matchID uint64) (*model.TradeProposal, error)
	ListByParty(ctx context.Context, uid string) ([]model.TradeProposal, error)
	ListActive(ctx context.Context) ([]model.TradeProposal, error)
	SetPartyConfirmed(ctx context.Context, id uint64, side model.Party) (int64, error)
	SetShippingMethod(ctx context.Context, id uint64, method model.ShippingMethod) (int64, error)
	SetPartyAddress(ctx context.Context, id uint64, side model.Party, addressID uint64) (int64, error)
	SetPartyShippingConfirmed(ctx context.Context, id uint64, side model.Party, tracking, carrier, labelURL string, otherConfirmed bool, newStatus model.ProposalStatus) (int64, error)
	SetStatus(ctx context.Context, id uint64, from []model.ProposalStatus, to model.ProposalStatus) (int64, error)
	TerminateEarly(ctx context.Context, id uint64, to model.ProposalStatus) (int64, error)
	SetCompleted(ctx context.Context, id uint64) (int64, error)
	UpdatePartyLabelURL(ctx context.Context, id uint64, side model.Party, labelURL string) error
	DeleteEarly(ctx context.Context, id uint64) (int64, error)
	Delete(ctx context.Context, id uint64) error
}

type proposalRepository struct {
	db *gorm.DB
}

func NewProposalRepository(db *gorm.DB) ProposalRepository {
	return &proposalRepository{db: db}
}

var activeStatuses = []model.ProposalStatus{
	model.ProposalStatusProposed,
	model.ProposalStatusShippingPending,
	model.ProposalStatusShippingConfirmed,
}

func col(side model.Party, field string) string {
	if side == model.PartyProposer {
		return "proposer_" + field
	}
	return "recipient_" + field
}

func otherCol(side model.Party, field string) string {
	if side == model.PartyProposer {
		return "recipient_" + field
	}
	return "proposer_" + field
}

// Create inserts the proposal only if its match has no active proposal. The
// match row is locked for the duration of the check-and-insert so two
// concurrent proposals for the same match serialize; the loser gets
// ErrActiveProposalExists instead of a second row.
func (r *proposalRepository) Create(ctx context.Context, p *model.TradeProposal) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.Match
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, p.MatchID).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&model.TradeProposal{}).
			Where("match_id = ? AND status IN ?", p.MatchID, activeStatuses).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrActiveProposalExists
		}
		return tx.Create(p).Error
	})
}

func (r *proposalRepository) FindByID(ctx context.Context, id uint64) (*model.TradeProposal, error) {
	var p model.TradeProposal
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *proposalRepository) FindActiveByMatch(ctx context.Context, matchID uint64) (*model.TradeProposal, error) {
	var p model.TradeProposal
	if err := r.db.WithContext(ctx).
		Where("match_id = ? AND status IN ?", matchID, activeStatuses).
		Order("id DESC").
		First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *proposalRepository) ListByParty(ctx context.Context, uid string) ([]model.TradeProposal, error) {
	var list []model.TradeProposal
	if err := r.db.WithContext(ctx).
		Where("proposer_uid = ? OR recipient_uid = ?", uid, uid).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *proposalRepository) ListActive(ctx context.Context) ([]model.TradeProposal, error) {
	var list []model.TradeProposal
	if err := r.db.WithContext(ctx).
		Where("status IN ?", activeStatuses).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *proposalRepository) SetPartyConfirmed(ctx context.Context, id uint64, side model.Party) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.TradeProposal{}).
		Where("id = ? AND status = ? AND "+col(side, "confirmed")+" = ?", id, model.ProposalStatusProposed, false).
		Updates(map[string]interface{}{
			col(side, "confirmed"): true,
			"updated_at":           time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (r *proposalRepository) SetShippingMethod(ctx context.Context, id uint64, method model.ShippingMethod) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.TradeProposal{}).
		Where("id = ? AND status = ? AND proposer_confirmed = ? AND recipient_confirmed = ? AND shipping_method IS NULL",
			id, model.ProposalStatusProposed, true, true).
		Updates(map[string]interface{}{
			"shipping_method": method,
			"updated_at":      time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (r *proposalRepository) SetPartyAddress(ctx context.Context, id uint64, side model.Party, addressID uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.TradeProposal{}).
		Where("id = ? AND status IN ? AND "+col(side, "shipping_confirmed")+" = ?", id, activeStatuses, false).
		Updates(map[string]interface{}{
			col(side, "address_id"): addressID,
			"updated_at":            time.Now(),
		})
	return res.RowsAffected, res.Error
}

// SetPartyShippingConfirmed records one party's fulfillment in a single
// write: label artifacts (empty for meetup), the party's flag, and the status
// bump. The guard pins the counterparty flag to the value observed at
// validation time so a racing confirmation forces a re-read instead of a
// stale status write.
func (r *proposalRepository) SetPartyShippingConfirmed(ctx context.Context, id uint64, side model.Party, tracking, carrier, labelURL string, otherConfirmed bool, newStatus model.ProposalStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.TradeProposal{}).
		Where("id = ? AND status IN ? AND "+col(side, "shipping_confirmed")+" = ? AND "+otherCol(side, "shipping_confirmed")+" = ?",
			id, []model.ProposalStatus{model.ProposalStatusProposed, model.ProposalStatusShippingPending}, false, otherConfirmed).
		Updates(map[string]interface{}{
			col(side, "shipping_confirmed"): true,
			col(side, "tracking_number"):    tracking,
			col(side, "carrier"):            carrier,
			col(side, "label_url"):          labelURL,
			"status":                        newStatus,
			"updated_at":                    time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (r *proposalRepository) SetStatus(ctx context.Context, id uint64, from []model.ProposalStatus, to model.ProposalStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.TradeProposal{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

// TerminateEarly declines a proposal that is still non-binding: raw status
// proposed and at least one confirmation flag unset. Both-confirmed proposals
// cannot be declined this way.
func (r *proposalRepository) TerminateEarly(ctx context.Context, id uint64, to model.ProposalStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.TradeProposal{}).
		Where("id = ? AND status = ? AND (proposer_confirmed = ? OR recipient_confirmed = ?)",
			id, model.ProposalStatusProposed, false, false).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (r *proposalRepository) SetCompleted(ctx context.Context, id uint64) (int64, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&model.TradeProposal{}).
		Where("id = ? AND status IN ? AND proposer_shipping_confirmed = ? AND recipient_shipping_confirmed = ?",
			id,
			[]model.ProposalStatus{model.ProposalStatusShippingPending, model.ProposalStatusShippingConfirmed},
			true, true).
		Updates(map[string]interface{}{
			"status":       model.ProposalStatusCompleted,
			"completed_at": now,
			"updated_at":   now,
		})
	return res.RowsAffected, res.Error
}

// UpdatePartyLabelURL swaps in the archived label URL after a successful
// mirror. Best-effort; only valid once the party has confirmed.
func (r *proposalRepository) UpdatePartyLabelURL(ctx context.Context, id uint64, side model.Party, labelURL string) error {
	return r.db.WithContext(ctx).
		Model(&model.TradeProposal{}).
		Where("id = ? AND "+col(side, "shipping_confirmed")+" = ?", id, true).
		Update(col(side, "label_url"), labelURL).Error
}

// DeleteEarly hard-deletes a proposal only while it is still non-binding.
func (r *proposalRepository) DeleteEarly(ctx context.Context, id uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status = ? AND (proposer_confirmed = ? OR recipient_confirmed = ?)",
			id, model.ProposalStatusProposed, false, false).
		Delete(&model.TradeProposal{})
	return res.RowsAffected, res.Error
}

// Delete removes a proposal unconditionally. Reserved for the reconciler,
// which prunes proposals whose match data is unresolvable.
func (r *proposalRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&model.TradeProposal{}, id).Error
}
