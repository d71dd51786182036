package repository

import (
	"context"

	riskdomain "github.com/smallbiznis/recurra/internal/risk/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() riskdomain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, subscriptionID uint64) (*riskdomain.Prediction, error) {
	var prediction riskdomain.Prediction
	err := db.WithContext(ctx).Raw(
		`SELECT subscription_id, likelihood, risk_level, factors, provenance, last_updated_at
		 FROM predictions WHERE subscription_id = ?`,
		subscriptionID,
	).Scan(&prediction).Error
	if err != nil {
		return nil, err
	}
	if prediction.SubscriptionID == 0 {
		return nil, nil
	}
	return &prediction, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, prediction *riskdomain.Prediction) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"likelihood", "risk_level", "factors", "provenance", "last_updated_at"}),
	}).Create(prediction).Error
}
