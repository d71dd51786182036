package domain

import (
	"context"

	"gorm.io/gorm"
)

type Service interface {
	// RecordOutcomeTx applies one payment outcome inside tx.
	RecordOutcomeTx(ctx context.Context, tx *gorm.DB, accountID string, success bool) (*CreditScore, error)
	// GetScore never writes; the decayed value is recomputed on every read.
	GetScore(ctx context.Context, accountID string) (Score, error)
	GetScoreTx(ctx context.Context, tx *gorm.DB, accountID string) (Score, error)
}
