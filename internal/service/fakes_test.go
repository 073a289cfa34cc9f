package service

import (
	"context"
	"sort"
	"time"

	"github.com/cardswap/cardswap-backend/internal/model"
	"github.com/cardswap/cardswap-backend/internal/repository"
	"github.com/cardswap/cardswap-backend/internal/shipping"
	"gorm.io/gorm"
)

// In-memory repository fakes. The proposal fake reproduces the guarded-update
// semantics of the real repository (invariant-checked Create, WHERE re-checks,
// RowsAffected) so the services' conflict resolution paths are exercised for
// real. The before* hooks fire once at the top of the matching mutation and
// let a test interleave a competing write between a service's read and its
// guarded update.
type fakeProposalRepo struct {
	nextID    uint64
	proposals map[uint64]*model.TradeProposal

	beforeCreate               func()
	beforeSetPartyConfirmed    func()
	beforeSetShippingMethod    func()
	beforeSetShippingConfirmed func()
}

func (r *fakeProposalRepo) fire(hook *func()) {
	if *hook != nil {
		h := *hook
		*hook = nil
		h()
	}
}

func newFakeProposalRepo() *fakeProposalRepo {
	return &fakeProposalRepo{nextID: 1, proposals: map[uint64]*model.TradeProposal{}}
}

func (r *fakeProposalRepo) clone(p *model.TradeProposal) *model.TradeProposal {
	cp := *p
	if p.ShippingMethod != nil {
		m := *p.ShippingMethod
		cp.ShippingMethod = &m
	}
	if p.ProposerAddressID != nil {
		v := *p.ProposerAddressID
		cp.ProposerAddressID = &v
	}
	if p.RecipientAddressID != nil {
		v := *p.RecipientAddressID
		cp.RecipientAddressID = &v
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func (r *fakeProposalRepo) Create(_ context.Context, p *model.TradeProposal) error {
	r.fire(&r.beforeCreate)
	for _, existing := range r.proposals {
		if existing.MatchID == p.MatchID && !existing.Status.Terminal() {
			return repository.ErrActiveProposalExists
		}
	}
	p.ID = r.nextID
	r.nextID++
	p.CreatedAt = time.Now()
	r.proposals[p.ID] = r.clone(p)
	return nil
}

func (r *fakeProposalRepo) FindByID(_ context.Context, id uint64) (*model.TradeProposal, error) {
	p, ok := r.proposals[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r.clone(p), nil
}

func (r *fakeProposalRepo) FindActiveByMatch(_ context.Context, matchID uint64) (*model.TradeProposal, error) {
	var best *model.TradeProposal
	for _, p := range r.proposals {
		if p.MatchID != matchID || p.Status.Terminal() {
			continue
		}
		switch p.Status {
		case model.ProposalStatusProposed, model.ProposalStatusShippingPending, model.ProposalStatusShippingConfirmed:
			if best == nil || p.ID > best.ID {
				best = p
			}
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return r.clone(best), nil
}

func (r *fakeProposalRepo) ListByParty(_ context.Context, uid string) ([]model.TradeProposal, error) {
	var list []model.TradeProposal
	for _, p := range r.proposals {
		if p.ProposerUID == uid || p.RecipientUID == uid {
			list = append(list, *r.clone(p))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

func (r *fakeProposalRepo) ListActive(_ context.Context) ([]model.TradeProposal, error) {
	var list []model.TradeProposal
	for _, p := range r.proposals {
		switch p.Status {
		case model.ProposalStatusProposed, model.ProposalStatusShippingPending, model.ProposalStatusShippingConfirmed:
			list = append(list, *r.clone(p))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r *fakeProposalRepo) SetPartyConfirmed(_ context.Context, id uint64, side model.Party) (int64, error) {
	r.fire(&r.beforeSetPartyConfirmed)
	p, ok := r.proposals[id]
	if !ok || p.Status != model.ProposalStatusProposed || p.ConfirmAcks().Of(side) {
		return 0, nil
	}
	if side == model.PartyProposer {
		p.ProposerConfirmed = true
	} else {
		p.RecipientConfirmed = true
	}
	return 1, nil
}

func (r *fakeProposalRepo) SetShippingMethod(_ context.Context, id uint64, method model.ShippingMethod) (int64, error) {
	r.fire(&r.beforeSetShippingMethod)
	p, ok := r.proposals[id]
	if !ok || p.Status != model.ProposalStatusProposed || !p.ConfirmAcks().Both() || p.ShippingMethod != nil {
		return 0, nil
	}
	m := method
	p.ShippingMethod = &m
	return 1, nil
}

func (r *fakeProposalRepo) SetPartyAddress(_ context.Context, id uint64, side model.Party, addressID uint64) (int64, error) {
	p, ok := r.proposals[id]
	if !ok || p.Status.Terminal() || p.ShippingAcks().Of(side) {
		return 0, nil
	}
	v := addressID
	if side == model.PartyProposer {
		p.ProposerAddressID = &v
	} else {
		p.RecipientAddressID = &v
	}
	return 1, nil
}

func (r *fakeProposalRepo) SetPartyShippingConfirmed(_ context.Context, id uint64, side model.Party, tracking, carrier, labelURL string, otherConfirmed bool, newStatus model.ProposalStatus) (int64, error) {
	r.fire(&r.beforeSetShippingConfirmed)
	p, ok := r.proposals[id]
	if !ok {
		return 0, nil
	}
	if p.Status != model.ProposalStatusProposed && p.Status != model.ProposalStatusShippingPending {
		return 0, nil
	}
	acks := p.ShippingAcks()
	if acks.Of(side) || acks.Of(otherParty(side)) != otherConfirmed {
		return 0, nil
	}
	if side == model.PartyProposer {
		p.ProposerShippingConfirmed = true
		p.ProposerTrackingNumber = tracking
		p.ProposerCarrier = carrier
		p.ProposerLabelURL = labelURL
	} else {
		p.RecipientShippingConfirmed = true
		p.RecipientTrackingNumber = tracking
		p.RecipientCarrier = carrier
		p.RecipientLabelURL = labelURL
	}
	p.Status = newStatus
	return 1, nil
}

func otherParty(side model.Party) model.Party {
	if side == model.PartyProposer {
		return model.PartyRecipient
	}
	return model.PartyProposer
}

func (r *fakeProposalRepo) SetStatus(_ context.Context, id uint64, from []model.ProposalStatus, to model.ProposalStatus) (int64, error) {
	p, ok := r.proposals[id]
	if !ok {
		return 0, nil
	}
	for _, s := range from {
		if p.Status == s {
			p.Status = to
			return 1, nil
		}
	}
	return 0, nil
}

func (r *fakeProposalRepo) TerminateEarly(_ context.Context, id uint64, to model.ProposalStatus) (int64, error) {
	p, ok := r.proposals[id]
	if !ok || p.Status != model.ProposalStatusProposed || p.ConfirmAcks().Both() {
		return 0, nil
	}
	p.Status = to
	return 1, nil
}

func (r *fakeProposalRepo) SetCompleted(_ context.Context, id uint64) (int64, error) {
	p, ok := r.proposals[id]
	if !ok || !p.ShippingAcks().Both() {
		return 0, nil
	}
	if p.Status != model.ProposalStatusShippingPending && p.Status != model.ProposalStatusShippingConfirmed {
		return 0, nil
	}
	now := time.Now()
	p.Status = model.ProposalStatusCompleted
	p.CompletedAt = &now
	return 1, nil
}

func (r *fakeProposalRepo) UpdatePartyLabelURL(_ context.Context, id uint64, side model.Party, labelURL string) error {
	p, ok := r.proposals[id]
	if !ok || !p.ShippingAcks().Of(side) {
		return nil
	}
	if side == model.PartyProposer {
		p.ProposerLabelURL = labelURL
	} else {
		p.RecipientLabelURL = labelURL
	}
	return nil
}

func (r *fakeProposalRepo) DeleteEarly(_ context.Context, id uint64) (int64, error) {
	p, ok := r.proposals[id]
	if !ok || p.Status != model.ProposalStatusProposed || p.ConfirmAcks().Both() {
		return 0, nil
	}
	delete(r.proposals, id)
	return 1, nil
}

func (r *fakeProposalRepo) Delete(_ context.Context, id uint64) error {
	delete(r.proposals, id)
	return nil
}

type fakeMatchRepo struct {
	matches map[uint64]*model.Match
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{matches: map[uint64]*model.Match{}}
}

func (r *fakeMatchRepo) Create(_ context.Context, m *model.Match) error {
	if m.ID == 0 {
		m.ID = uint64(len(r.matches) + 1)
	}
	r.matches[m.ID] = m
	return nil
}

func (r *fakeMatchRepo) FindByID(_ context.Context, id uint64) (*model.Match, error) {
	m, ok := r.matches[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMatchRepo) ListByParty(_ context.Context, uid string) ([]model.Match, error) {
	var list []model.Match
	for _, m := range r.matches {
		if m.HasParty(uid) {
			list = append(list, *m)
		}
	}
	return list, nil
}

type fakeCardRepo struct {
	cards map[uint64]*model.Card
}

func newFakeCardRepo() *fakeCardRepo {
	return &fakeCardRepo{cards: map[uint64]*model.Card{}}
}

func (r *fakeCardRepo) Create(_ context.Context, c *model.Card) error {
	if c.ID == 0 {
		c.ID = uint64(len(r.cards) + 1)
	}
	r.cards[c.ID] = c
	return nil
}

func (r *fakeCardRepo) FindByIDs(_ context.Context, ids []uint64) ([]model.Card, error) {
	var list []model.Card
	for _, id := range ids {
		if c, ok := r.cards[id]; ok {
			list = append(list, *c)
		}
	}
	return list, nil
}

func (r *fakeCardRepo) ListByOwner(_ context.Context, ownerUID string) ([]model.Card, error) {
	var list []model.Card
	for _, c := range r.cards {
		if c.OwnerUID == ownerUID {
			list = append(list, *c)
		}
	}
	return list, nil
}

type fakeAddressRepo struct {
	nextID    uint64
	addresses map[uint64]*model.ShippingAddress
}

func newFakeAddressRepo() *fakeAddressRepo {
	return &fakeAddressRepo{nextID: 1, addresses: map[uint64]*model.ShippingAddress{}}
}

func (r *fakeAddressRepo) Create(_ context.Context, a *model.ShippingAddress) error {
	hasAny := false
	for _, existing := range r.addresses {
		if existing.UserUID == a.UserUID {
			hasAny = true
			if a.IsDefault {
				existing.IsDefault = false
			}
		}
	}
	if !hasAny {
		a.IsDefault = true
	}
	a.ID = r.nextID
	r.nextID++
	cp := *a
	r.addresses[a.ID] = &cp
	return nil
}

func (r *fakeAddressRepo) Update(_ context.Context, a *model.ShippingAddress) error {
	cp := *a
	r.addresses[a.ID] = &cp
	return nil
}

func (r *fakeAddressRepo) FindByID(_ context.Context, id uint64) (*model.ShippingAddress, error) {
	a, ok := r.addresses[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAddressRepo) FindDefaultByUser(_ context.Context, uid string) (*model.ShippingAddress, error) {
	var oldest *model.ShippingAddress
	for _, a := range r.addresses {
		if a.UserUID != uid {
			continue
		}
		if a.IsDefault {
			cp := *a
			return &cp, nil
		}
		if oldest == nil || a.ID < oldest.ID {
			oldest = a
		}
	}
	if oldest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *oldest
	return &cp, nil
}

func (r *fakeAddressRepo) ListByUser(_ context.Context, uid string) ([]model.ShippingAddress, error) {
	var list []model.ShippingAddress
	for _, a := range r.addresses {
		if a.UserUID == uid {
			list = append(list, *a)
		}
	}
	return list, nil
}

func (r *fakeAddressRepo) SetDefault(_ context.Context, uid string, id uint64) error {
	target, ok := r.addresses[id]
	if !ok || target.UserUID != uid {
		return gorm.ErrRecordNotFound
	}
	for _, a := range r.addresses {
		if a.UserUID == uid {
			a.IsDefault = a.ID == id
		}
	}
	return nil
}

type fakeConversationRepo struct {
	nextID   uint64
	convs    map[uint64]*model.Conversation // keyed by proposal id
	messages []model.Message
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{nextID: 1, convs: map[uint64]*model.Conversation{}}
}

func (r *fakeConversationRepo) FindOrCreate(_ context.Context, proposalID uint64, proposerUID, recipientUID string) (*model.Conversation, error) {
	if cv, ok := r.convs[proposalID]; ok {
		cp := *cv
		return &cp, nil
	}
	cv := &model.Conversation{ID: r.nextID, ProposalID: proposalID, ProposerUID: proposerUID, RecipientUID: recipientUID}
	r.nextID++
	r.convs[proposalID] = cv
	cp := *cv
	return &cp, nil
}

func (r *fakeConversationRepo) FindByProposal(_ context.Context, proposalID uint64) (*model.Conversation, error) {
	cv, ok := r.convs[proposalID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *cv
	return &cp, nil
}

func (r *fakeConversationRepo) CreateMessage(_ context.Context, msg *model.Message) error {
	msg.ID = uint64(len(r.messages) + 1)
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeConversationRepo) ListMessages(_ context.Context, convID uint64) ([]model.Message, error) {
	var list []model.Message
	for _, m := range r.messages {
		if m.ConversationID == convID {
			list = append(list, m)
		}
	}
	return list, nil
}

type sentNotification struct {
	UserUID string
	Type    string
}

type fakeNotifier struct {
	sent []sentNotification
}

func (n *fakeNotifier) Notify(_ context.Context, userUID, typ, _, _ string, _, _ *uint64) {
	n.sent = append(n.sent, sentNotification{UserUID: userUID, Type: typ})
}

func (n *fakeNotifier) List(context.Context, string, bool, int) ([]model.Notification, int64, error) {
	return nil, 0, nil
}

func (n *fakeNotifier) MarkAllRead(context.Context, string) error { return nil }

// fakeGateway returns canned quotes and labels and counts calls so tests can
// assert no gateway traffic happens on idempotent retries.
type fakeGateway struct {
	quotes        []shipping.RateQuote
	ratesErr      error
	label         *shipping.Label
	purchaseErr   error
	rateCalls     int
	purchaseCalls int
}

func (g *fakeGateway) GetRates(_ context.Context, _, _ shipping.Address, _ shipping.Parcel) ([]shipping.RateQuote, error) {
	g.rateCalls++
	if g.ratesErr != nil {
		return nil, g.ratesErr
	}
	return g.quotes, nil
}

func (g *fakeGateway) PurchaseLabel(_ context.Context, quoteID string) (*shipping.Label, error) {
	g.purchaseCalls++
	if g.purchaseErr != nil {
		return nil, g.purchaseErr
	}
	if g.label != nil {
		return g.label, nil
	}
	return &shipping.Label{TrackingNumber: "TRK-" + quoteID, Carrier: "USPS", LabelURL: "https://labels.example/" + quoteID + ".pdf"}, nil
}
