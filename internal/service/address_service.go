package service

import (
	"context"
	"errors"
	"strings"

	"github.com/cardswap/cardswap-backend/internal/model"
	"github.com/cardswap/cardswap-backend/internal/repository"
	"gorm.io/gorm"
)

type AddressService interface {
	Create(ctx context.Context, a *model.ShippingAddress) (*model.ShippingAddress, error)
	Update(ctx context.Context, id uint64, actorUID string, a *model.ShippingAddress) (*model.ShippingAddress, error)
	List(ctx context.Context, uid string) ([]model.ShippingAddress, error)
	SetDefault(ctx context.Context, uid string, id uint64) error
}

type addressService struct {
	repo repository.AddressRepository
}

func NewAddressService(repo repository.AddressRepository) AddressService {
	return &addressService{repo: repo}
}

func validateAddress(a *model.ShippingAddress) error {
	a.Name = strings.TrimSpace(a.Name)
	a.Street1 = strings.TrimSpace(a.Street1)
	a.City = strings.TrimSpace(a.City)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	if a.Name == "" || a.Street1 == "" || a.City == "" || a.PostalCode == "" {
		return errors.New("name, street, city and postal code are required")
	}
	if len(a.Country) != 2 {
		return errors.New("country must be a 2-letter code")
	}
	return nil
}

func (s *addressService) Create(ctx context.Context, a *model.ShippingAddress) (*model.ShippingAddress, error) {
	if a.UserUID == "" {
		return nil, ErrForbidden
	}
	if err := validateAddress(a); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *addressService) Update(ctx context.Context, id uint64, actorUID string, in *model.ShippingAddress) (*model.ShippingAddress, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if existing.UserUID != actorUID {
		return nil, ErrForbidden
	}
	if err := validateAddress(in); err != nil {
		return nil, err
	}
	existing.Name = in.Name
	existing.Street1 = in.Street1
	existing.Street2 = strings.TrimSpace(in.Street2)
	existing.City = in.City
	existing.State = strings.TrimSpace(in.State)
	existing.PostalCode = in.PostalCode
	existing.Country = in.Country
	existing.Phone = strings.TrimSpace(in.Phone)
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *addressService) List(ctx context.Context, uid string) ([]model.ShippingAddress, error) {
	if uid == "" {
		return nil, ErrForbidden
	}
	return s.repo.ListByUser(ctx, uid)
}

func (s *addressService) SetDefault(ctx context.Context, uid string, id uint64) error {
	if err := s.repo.SetDefault(ctx, uid, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
