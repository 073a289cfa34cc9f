package repository

import (
	"context"

	"github.com/cardswap/cardswap-backend/internal/model"
	"gorm.io/gorm"
)

type CardRepository interface {
	Create(ctx context.Context, c *model.Card) error
	FindByIDs(ctx context.Context, ids []uint64) ([]model.Card, error)
	ListByOwner(ctx context.Context, ownerUID string) ([]model.Card, error)
}

type cardRepository struct {
	db *gorm.DB
}

func NewCardRepository(db *gorm.DB) CardRepository {
	return &cardRepository{db: db}
}

func (r *cardRepository) Create(ctx context.Context, c *model.Card) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *cardRepository) FindByIDs(ctx context.Context, ids []uint64) ([]model.Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var list []model.Card
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *cardRepository) ListByOwner(ctx context.Context, ownerUID string) ([]model.Card, error) {
	var list []model.Card
	if err := r.db.WithContext(ctx).
		Where("owner_uid = ?", ownerUID).
		Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
