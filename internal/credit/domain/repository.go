package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, accountID string) (*CreditScore, error)
	Upsert(ctx context.Context, db *gorm.DB, score *CreditScore) error
}
