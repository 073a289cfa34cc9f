package service

import (
	"errors"
	"fmt"

	"github.com/cardswap/cardswap-backend/internal/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")

	// ErrDuplicateProposal is returned by Propose when the match already has
	// an active proposal; the existing proposal is returned alongside it.
	ErrDuplicateProposal = errors.New("active proposal already exists for this match")

	// ErrConflict means a concurrent write collided with ours even after a
	// retry; the caller should refresh and resubmit.
	ErrConflict = errors.New("trade was updated by the other party, please refresh")

	// ErrInvalidMatch means the match's card references cannot be resolved.
	ErrInvalidMatch = errors.New("match card references cannot be resolved")

	// ErrNoRates is the "no rates available" outcome: retryable, no writes.
	ErrNoRates = errors.New("no eligible shipping rates available")

	// ErrAddressRequired means the acting party has no usable address yet.
	ErrAddressRequired = errors.New("shipping address required")

	// ErrCounterpartyAddress means the counterparty has no usable address.
	ErrCounterpartyAddress = errors.New("counterparty has no shipping address yet")
)

// TransitionError reports an operation attempted from a state that does not
// permit it. The caller is expected to refetch and resync, not retry blindly.
type TransitionError struct {
	Current   model.ProposalStatus
	Attempted string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s while %s", e.Attempted, e.Current)
}

func invalidTransition(p *model.TradeProposal, attempted string) error {
	return &TransitionError{Current: p.EffectiveStatus(), Attempted: attempted}
}
