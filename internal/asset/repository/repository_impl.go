package repository

import (
	"context"

	"github.com/shopspring/decimal"
	assetdomain "github.com/smallbiznis/recurra/internal/asset/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() assetdomain.Repository {
	return &repo{}
}

func (r *repo) GetBalance(ctx context.Context, db *gorm.DB, accountID, assetType string) (decimal.Decimal, error) {
	var rows []assetdomain.Balance
	err := db.WithContext(ctx).Raw(
		`SELECT account_id, asset_type, amount, updated_at FROM asset_balances
		 WHERE account_id = ? AND asset_type = ?`,
		accountID,
		assetType,
	).Scan(&rows).Error
	if err != nil {
		return decimal.Zero, err
	}
	if len(rows) == 0 {
		return decimal.Zero, nil
	}
	return rows[0].Amount, nil
}

func (r *repo) SetBalance(ctx context.Context, db *gorm.DB, balance *assetdomain.Balance) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "asset_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(balance).Error
}

func (r *repo) GetAllowance(ctx context.Context, db *gorm.DB, ownerID, spenderID, assetType string) (decimal.Decimal, error) {
	var rows []assetdomain.Allowance
	err := db.WithContext(ctx).Raw(
		`SELECT owner_id, spender_id, asset_type, amount, updated_at FROM asset_allowances
		 WHERE owner_id = ? AND spender_id = ? AND asset_type = ?`,
		ownerID,
		spenderID,
		assetType,
	).Scan(&rows).Error
	if err != nil {
		return decimal.Zero, err
	}
	if len(rows) == 0 {
		return decimal.Zero, nil
	}
	return rows[0].Amount, nil
}

func (r *repo) SetAllowance(ctx context.Context, db *gorm.DB, allowance *assetdomain.Allowance) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "spender_id"}, {Name: "asset_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(allowance).Error
}
