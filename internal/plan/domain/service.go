package domain

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type CreatePlanRequest struct {
	AssetType            string          `json:"asset_type" validate:"required,max=64"`
	Amount               decimal.Decimal `json:"amount" validate:"-"`
	BillingPeriodSeconds int64           `json:"billing_period_seconds" validate:"gte=86400,lte=31536000"`
	TrialPeriodSeconds   int64           `json:"trial_period_seconds" validate:"gte=0"`
	Metadata             string          `json:"metadata,omitempty" validate:"max=4096"`
}

type UpdatePlanRequest struct {
	PlanID               uint64          `json:"-" validate:"required"`
	Active               bool            `json:"active"`
	Amount               decimal.Decimal `json:"amount" validate:"-"`
	BillingPeriodSeconds int64           `json:"billing_period_seconds" validate:"gte=86400,lte=31536000"`
}

type Service interface {
	CreatePlan(ctx context.Context, caller string, req CreatePlanRequest) (*Plan, error)
	UpdatePlan(ctx context.Context, caller string, req UpdatePlanRequest) (*Plan, error)
	GetPlan(ctx context.Context, id uint64) (*Plan, error)
	ListMerchantPlans(ctx context.Context, merchantID string) ([]Plan, error)
}

var (
	ErrInvalidTerms = errors.New("invalid_terms")
	ErrPlanNotFound = errors.New("plan_not_found")
	ErrPlanInactive = errors.New("plan_inactive")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateTerms checks the struct tags of req plus the amount, which must be
// a positive whole number of minor units.
func ValidateTerms(req any, amount decimal.Decimal) error {
	if err := validate.Struct(req); err != nil {
		return errors.Join(ErrInvalidTerms, err)
	}
	if !amount.IsPositive() || !amount.IsInteger() {
		return ErrInvalidTerms
	}
	return nil
}
