package repository

import (
	"context"
	"errors"

	"github.com/cardswap/cardswap-backend/internal/model"
	"gorm.io/gorm"
)

type AddressRepository interface {
	Create(ctx context.Context, a *model.ShippingAddress) error
	Update(ctx context.Context, a *model.ShippingAddress) error
	FindByID(ctx context.Context, id uint64) (*model.ShippingAddress, error)
	FindDefaultByUser(ctx context.Context, uid string) (*model.ShippingAddress, error)
	ListByUser(ctx context.Context, uid string) ([]model.ShippingAddress, error)
	SetDefault(ctx context.Context, uid string, id uint64) error
}

type addressRepository struct {
	db *gorm.DB
}

func NewAddressRepository(db *gorm.DB) AddressRepository {
	return &addressRepository{db: db}
}

// Create saves a new address. A user's first address becomes their default
// automatically; at most one address per user carries the flag.
func (r *addressRepository) Create(ctx context.Context, a *model.ShippingAddress) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.ShippingAddress{}).
			Where("user_uid = ?", a.UserUID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			a.IsDefault = true
		} else if a.IsDefault {
			if err := tx.Model(&model.ShippingAddress{}).
				Where("user_uid = ? AND is_default = ?", a.UserUID, true).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(a).Error
	})
}

func (r *addressRepository) Update(ctx context.Context, a *model.ShippingAddress) error {
	return r.db.WithContext(ctx).Save(a).Error
}

func (r *addressRepository) FindByID(ctx context.Context, id uint64) (*model.ShippingAddress, error) {
	var a model.ShippingAddress
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *addressRepository) FindDefaultByUser(ctx context.Context, uid string) (*model.ShippingAddress, error) {
	var a model.ShippingAddress
	err := r.db.WithContext(ctx).
		Where("user_uid = ? AND is_default = ?", uid, true).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Fall back to the oldest address if the flag was never set.
			err = r.db.WithContext(ctx).
				Where("user_uid = ?", uid).
				Order("id ASC").
				First(&a).Error
		}
		if err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func (r *addressRepository) ListByUser(ctx context.Context, uid string) ([]model.ShippingAddress, error) {
	var list []model.ShippingAddress
	if err := r.db.WithContext(ctx).
		Where("user_uid = ?", uid).
		Order("is_default DESC, id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *addressRepository) SetDefault(ctx context.Context, uid string, id uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ShippingAddress{}).
			Where("id = ? AND user_uid = ?", id, uid).
			Update("is_default", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&model.ShippingAddress{}).
			Where("user_uid = ? AND id <> ?", uid, id).
			Update("is_default", false).Error
	})
}
