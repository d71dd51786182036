package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is an account's holding of one asset.
type Balance struct {
	AccountID string          `gorm:"primaryKey;size:191" json:"account_id"`
	AssetType string          `gorm:"primaryKey;size:191" json:"asset_type"`
	Amount    decimal.Decimal `gorm:"type:text;not null" json:"amount"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

func (Balance) TableName() string { return "asset_balances" }

// Allowance is the amount spender may pull from owner's balance.
type Allowance struct {
	OwnerID   string          `gorm:"primaryKey;size:191" json:"owner_id"`
	SpenderID string          `gorm:"primaryKey;size:191" json:"spender_id"`
	AssetType string          `gorm:"primaryKey;size:191" json:"asset_type"`
	Amount    decimal.Decimal `gorm:"type:text;not null" json:"amount"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

func (Allowance) TableName() string { return "asset_allowances" }
