package service

import (
	"context"
	"errors"
	"strings"

	"github.com/cardswap/cardswap-backend/internal/model"
	"github.com/cardswap/cardswap-backend/internal/repository"
	"gorm.io/gorm"
)

// ConversationService exposes the proposal-scoped thread the parties use to
// coordinate, primarily for the meetup branch.
type ConversationService interface {
	ListMessages(ctx context.Context, proposalID uint64, actorUID string) ([]model.Message, error)
	PostMessage(ctx context.Context, proposalID uint64, actorUID, body string) (*model.Message, error)
}

type conversationService struct {
	convs     repository.ConversationRepository
	proposals repository.ProposalRepository
}

func NewConversationService(convs repository.ConversationRepository, proposals repository.ProposalRepository) ConversationService {
	return &conversationService{convs: convs, proposals: proposals}
}

func (s *conversationService) authorize(ctx context.Context, proposalID uint64, actorUID string) (*model.TradeProposal, error) {
	p, err := s.proposals.FindByID(ctx, proposalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if p.SideOf(actorUID) == model.PartyNone {
		return nil, ErrForbidden
	}
	return p, nil
}

func (s *conversationService) ListMessages(ctx context.Context, proposalID uint64, actorUID string) ([]model.Message, error) {
	p, err := s.authorize(ctx, proposalID, actorUID)
	if err != nil {
		return nil, err
	}
	cv, err := s.convs.FindOrCreate(ctx, p.ID, p.ProposerUID, p.RecipientUID)
	if err != nil {
		return nil, err
	}
	return s.convs.ListMessages(ctx, cv.ID)
}

func (s *conversationService) PostMessage(ctx context.Context, proposalID uint64, actorUID, body string) (*model.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.New("message body is required")
	}
	p, err := s.authorize(ctx, proposalID, actorUID)
	if err != nil {
		return nil, err
	}
	cv, err := s.convs.FindOrCreate(ctx, p.ID, p.ProposerUID, p.RecipientUID)
	if err != nil {
		return nil, err
	}
	msg := &model.Message{
		ConversationID: cv.ID,
		SenderUID:      actorUID,
		Body:           body,
	}
	if err := s.convs.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
