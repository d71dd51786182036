package repository

import (
	"context"

	plandomain "github.com/smallbiznis/recurra/internal/plan/domain"
	"github.com/smallbiznis/recurra/pkg/db"
	"gorm.io/gorm"
)

const planColumns = `id, merchant_id, asset_type, amount, billing_period_seconds,
	trial_period_seconds, active, metadata, created_at, updated_at`

type repo struct{}

func Provide() plandomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, plan *plandomain.Plan) error {
	return conn.WithContext(ctx).Create(plan).Error
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, plan *plandomain.Plan) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE plans SET active = ?, amount = ?, billing_period_seconds = ?, updated_at = ?
		 WHERE id = ?`,
		plan.Active,
		plan.Amount,
		plan.BillingPeriodSeconds,
		plan.UpdatedAt,
		plan.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id uint64) (*plandomain.Plan, error) {
	return r.find(ctx, conn, `SELECT `+planColumns+` FROM plans WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, conn *gorm.DB, id uint64) (*plandomain.Plan, error) {
	return r.find(ctx, conn, db.ForUpdate(conn, `SELECT `+planColumns+` FROM plans WHERE id = ?`), id)
}

func (r *repo) find(ctx context.Context, conn *gorm.DB, query string, id uint64) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	if err := conn.WithContext(ctx).Raw(query, id).Scan(&plan).Error; err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) ListByMerchant(ctx context.Context, conn *gorm.DB, merchantID string) ([]plandomain.Plan, error) {
	var plans []plandomain.Plan
	err := conn.WithContext(ctx).Raw(
		`SELECT `+planColumns+` FROM plans WHERE merchant_id = ? ORDER BY id ASC`,
		merchantID,
	).Scan(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}
