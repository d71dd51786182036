package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

const DefaultHighRiskLimit = 50

var ErrInvalidLikelihood = errors.New("invalid_likelihood")

type Service interface {
	// CalculateLikelihood recomputes and stores the estimate unless a fresh
	// oracle value is held, in which case that value is returned untouched.
	CalculateLikelihood(ctx context.Context, subscriptionID uint64) (*Prediction, error)
	UpdatePrediction(ctx context.Context, caller string, subscriptionID uint64, likelihood int, factors string) (*Prediction, error)
	GetPrediction(ctx context.Context, subscriptionID uint64) (*Prediction, error)
	GetHighRiskSubscriptions(ctx context.Context, limit int) ([]Prediction, error)
	RefreshTx(ctx context.Context, tx *gorm.DB, subscriptionID uint64) (*Prediction, error)
}
