package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, subscriptionID uint64) (*Prediction, error)
	Upsert(ctx context.Context, db *gorm.DB, prediction *Prediction) error
}
