package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, plan *Plan) error
	Update(ctx context.Context, db *gorm.DB, plan *Plan) error
	FindByID(ctx context.Context, db *gorm.DB, id uint64) (*Plan, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id uint64) (*Plan, error)
	ListByMerchant(ctx context.Context, db *gorm.DB, merchantID string) ([]Plan, error)
}
