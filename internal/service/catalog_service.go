package service

import (
	"context"

	"github.com/cardswap/cardswap-backend/internal/model"
	"github.com/cardswap/cardswap-backend/internal/repository"
)

// CatalogService is the read surface for a user's own cards and the matches
// proposed for them. Match production itself belongs to the matching
// collaborator; this only lists what it produced.
type CatalogService interface {
	ListCards(ctx context.Context, ownerUID string) ([]model.Card, error)
	ListMatches(ctx context.Context, uid string) ([]model.Match, error)
}

type catalogService struct {
	cards   repository.CardRepository
	matches repository.MatchRepository
}

func NewCatalogService(cards repository.CardRepository, matches repository.MatchRepository) CatalogService {
	return &catalogService{cards: cards, matches: matches}
}

func (s *catalogService) ListCards(ctx context.Context, ownerUID string) ([]model.Card, error) {
	if ownerUID == "" {
		return nil, ErrForbidden
	}
	return s.cards.ListByOwner(ctx, ownerUID)
}

func (s *catalogService) ListMatches(ctx context.Context, uid string) ([]model.Match, error) {
	if uid == "" {
		return nil, ErrForbidden
	}
	return s.matches.ListByParty(ctx, uid)
}
