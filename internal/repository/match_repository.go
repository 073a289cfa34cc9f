package repository

import (
	"context"

	"github.com/cardswap/cardswap-backend/internal/model"
	"gorm.io/gorm"
)

type MatchRepository interface {
	Create(ctx context.Context, m *model.Match) error
	FindByID(ctx context.Context, id uint64) (*model.Match, error)
	ListByParty(ctx context.Context, uid string) ([]model.Match, error)
}

type matchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) MatchRepository {
	return &matchRepository{db: db}
}

func (r *matchRepository) Create(ctx context.Context, m *model.Match) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *matchRepository) FindByID(ctx context.Context, id uint64) (*model.Match, error) {
	var m model.Match
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *matchRepository) ListByParty(ctx context.Context, uid string) ([]model.Match, error) {
	var list []model.Match
	if err := r.db.WithContext(ctx).
		Where("user1_uid = ? OR user2_uid = ?", uid, uid).
		Order("match_score DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
