package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	GetBalance(ctx context.Context, db *gorm.DB, accountID, assetType string) (decimal.Decimal, error)
	SetBalance(ctx context.Context, db *gorm.DB, balance *Balance) error
	GetAllowance(ctx context.Context, db *gorm.DB, ownerID, spenderID, assetType string) (decimal.Decimal, error)
	SetAllowance(ctx context.Context, db *gorm.DB, allowance *Allowance) error
}
