package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

type Provenance string

const (
	ProvenanceComputed  Provenance = "computed"
	ProvenanceOracleSet Provenance = "oracle_set"
)

const (
	MinLikelihood = 0
	MaxLikelihood = 100

	lowRiskThreshold    = 66
	mediumRiskThreshold = 33
)

// Prediction is the stored payment-likelihood estimate of a subscription.
type Prediction struct {
	SubscriptionID uint64     `gorm:"primaryKey;autoIncrement:false" json:"subscription_id"`
	Likelihood     int        `gorm:"not null" json:"likelihood"`
	RiskLevel      RiskLevel  `gorm:"type:text;not null" json:"risk_level"`
	Factors        string     `gorm:"type:text" json:"factors"`
	Provenance     Provenance `gorm:"type:text;not null" json:"provenance"`
	LastUpdatedAt  time.Time  `gorm:"not null" json:"last_updated_at"`
}

func (Prediction) TableName() string { return "predictions" }

// FreshOracle reports whether an oracle-set value still takes precedence over
// a computed one at now.
func (p *Prediction) FreshOracle(now time.Time, ttl time.Duration) bool {
	return p != nil && p.Provenance == ProvenanceOracleSet && now.Sub(p.LastUpdatedAt) < ttl
}

func RiskLevelFor(likelihood int) RiskLevel {
	switch {
	case likelihood >= lowRiskThreshold:
		return RiskLevelLow
	case likelihood >= mediumRiskThreshold:
		return RiskLevelMedium
	default:
		return RiskLevelHigh
	}
}

type Weights struct {
	Credit  float64
	History float64
	Funding float64
}

// Signals are the raw inputs of a computed estimate.
type Signals struct {
	DecayedCredit int
	Total         int64
	Succeeded     int64
	Balance       decimal.Decimal
	Allowance     decimal.Decimal
	PlanAmount    decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Estimate blends credit, history and funding into a likelihood in [0,100].
// Each component is itself scaled to [0,100]. A subscription without charge
// history reuses its credit component in place of the success ratio.
func Estimate(sig Signals, w Weights) (int, string) {
	credit := decimal.NewFromInt(int64(sig.DecayedCredit)).Div(decimal.NewFromInt(10))

	history := credit
	if sig.Total > 0 {
		history = decimal.NewFromInt(sig.Succeeded).Mul(hundred).Div(decimal.NewFromInt(sig.Total))
	}

	funding := hundred
	if sig.PlanAmount.IsPositive() {
		covered := decimal.Min(sig.Balance, sig.Allowance)
		if covered.IsNegative() {
			covered = decimal.Zero
		}
		funding = decimal.Min(hundred, covered.Mul(hundred).Div(sig.PlanAmount))
	}

	blended := credit.Mul(decimal.NewFromFloat(w.Credit)).
		Add(history.Mul(decimal.NewFromFloat(w.History))).
		Add(funding.Mul(decimal.NewFromFloat(w.Funding))).
		Round(0)

	likelihood := int(blended.IntPart())
	if likelihood < MinLikelihood {
		likelihood = MinLikelihood
	}
	if likelihood > MaxLikelihood {
		likelihood = MaxLikelihood
	}

	factors := fmt.Sprintf("credit=%s history=%s funding=%s",
		credit.StringFixed(1), history.StringFixed(1), funding.StringFixed(1))
	return likelihood, factors
}
