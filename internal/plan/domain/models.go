package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinBillingPeriodSeconds int64 = 24 * 60 * 60
	MaxBillingPeriodSeconds int64 = 365 * 24 * 60 * 60
)

// Plan is a merchant's recurring price for one asset.
type Plan struct {
	ID                   uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	MerchantID           string          `gorm:"size:191;not null;index" json:"merchant_id"`
	AssetType            string          `gorm:"type:text;not null" json:"asset_type"`
	Amount               decimal.Decimal `gorm:"type:text;not null" json:"amount"`
	BillingPeriodSeconds int64           `gorm:"not null" json:"billing_period_seconds"`
	TrialPeriodSeconds   int64           `gorm:"not null;default:0" json:"trial_period_seconds"`
	Active               bool            `gorm:"not null" json:"active"`
	Metadata             string          `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt            time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"not null" json:"updated_at"`
}

func (Plan) TableName() string { return "plans" }

func (p Plan) BillingPeriod() time.Duration {
	return time.Duration(p.BillingPeriodSeconds) * time.Second
}

func (p Plan) TrialPeriod() time.Duration {
	return time.Duration(p.TrialPeriodSeconds) * time.Second
}
