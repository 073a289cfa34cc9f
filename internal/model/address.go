package model

import "time"

type ShippingAddress struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	UserUID    string    `gorm:"column:user_uid;size:128;index;not null"`
	Name       string    `gorm:"size:120;not null"`
	Street1    string    `gorm:"size:255;not null"`
	Street2    string    `gorm:"size:255"`
	City       string    `gorm:"size:120;not null"`
	State      string    `gorm:"size:64"`
	PostalCode string    `gorm:"column:postal_code;size:20;not null"`
	Country    string    `gorm:"size:2;not null"`
	Phone      string    `gorm:"size:32"`
	IsDefault  bool      `gorm:"column:is_default;not null;default:false"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (ShippingAddress) TableName() string {
	return "shipping_addresses"
}
