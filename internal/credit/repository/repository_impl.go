package repository

import (
	"context"

	creditdomain "github.com/smallbiznis/recurra/internal/credit/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() creditdomain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, accountID string) (*creditdomain.CreditScore, error) {
	var rows []creditdomain.CreditScore
	err := db.WithContext(ctx).Raw(
		`SELECT account_id, raw_score, last_update_at FROM credit_scores WHERE account_id = ?`,
		accountID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, score *creditdomain.CreditScore) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"raw_score", "last_update_at"}),
	}).Create(score).Error
}
