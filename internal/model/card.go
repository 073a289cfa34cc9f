package model

import "time"

type Card struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	OwnerUID      string    `gorm:"column:owner_uid;size:128;index;not null"`
	Name          string    `gorm:"size:120;not null"`
	SetCode       string    `gorm:"column:set_code;size:32"`
	Number        string    `gorm:"size:16"`
	Condition     string    `gorm:"size:32"`
	EstValueCents int64     `gorm:"column:est_value_cents"`
	ImageURL      *string   `gorm:"size:512"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (Card) TableName() string {
	return "cards"
}
