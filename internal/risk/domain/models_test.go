package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var defaultWeights = Weights{Credit: 0.4, History: 0.3, Funding: 0.3}

func TestRiskLevelFor(t *testing.T) {
	assert.Equal(t, RiskLevelLow, RiskLevelFor(100))
	assert.Equal(t, RiskLevelLow, RiskLevelFor(66))
	assert.Equal(t, RiskLevelMedium, RiskLevelFor(65))
	assert.Equal(t, RiskLevelMedium, RiskLevelFor(33))
	assert.Equal(t, RiskLevelHigh, RiskLevelFor(32))
	assert.Equal(t, RiskLevelHigh, RiskLevelFor(0))
}

func TestEstimate(t *testing.T) {
	cases := []struct {
		name string
		sig  Signals
		want int
	}{
		{
			name: "no history falls back to credit",
			sig:  Signals{DecayedCredit: 500, PlanAmount: decimal.NewFromInt(1000)},
			want: 35,
		},
		{
			name: "partial funding",
			sig: Signals{
				DecayedCredit: 500,
				Balance:       decimal.NewFromInt(500),
				Allowance:     decimal.NewFromInt(800),
				PlanAmount:    decimal.NewFromInt(1000),
			},
			want: 50,
		},
		{
			name: "coverage is capped",
			sig: Signals{
				DecayedCredit: 505,
				Total:         1,
				Succeeded:     1,
				Balance:       decimal.NewFromInt(1_000_000),
				Allowance:     decimal.NewFromInt(1_000_000),
				PlanAmount:    decimal.NewFromInt(1000),
			},
			want: 80,
		},
		{
			name: "failures drag it down",
			sig:  Signals{DecayedCredit: 490, Total: 1, PlanAmount: decimal.NewFromInt(1000)},
			want: 20,
		},
		{
			name: "allowance limits coverage",
			sig: Signals{
				DecayedCredit: 1000,
				Total:         2,
				Succeeded:     1,
				Balance:       decimal.NewFromInt(5000),
				Allowance:     decimal.Zero,
				PlanAmount:    decimal.NewFromInt(1000),
			},
			want: 55,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, factors := Estimate(tc.sig, defaultWeights)
			assert.Equal(t, tc.want, got)
			assert.Contains(t, factors, "credit=")
		})
	}
}

func TestEstimateStaysInRange(t *testing.T) {
	heavy := Weights{Credit: 1, History: 1, Funding: 1}
	got, _ := Estimate(Signals{
		DecayedCredit: 1000,
		Total:         1,
		Succeeded:     1,
		Balance:       decimal.NewFromInt(10),
		Allowance:     decimal.NewFromInt(10),
		PlanAmount:    decimal.NewFromInt(1),
	}, heavy)
	assert.Equal(t, MaxLikelihood, got)
}

func TestFreshOracle(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ttl := 7 * 24 * time.Hour

	oracle := &Prediction{Provenance: ProvenanceOracleSet, LastUpdatedAt: now.Add(-ttl + time.Second)}
	assert.True(t, oracle.FreshOracle(now, ttl))

	oracle.LastUpdatedAt = now.Add(-ttl)
	assert.False(t, oracle.FreshOracle(now, ttl))

	computed := &Prediction{Provenance: ProvenanceComputed, LastUpdatedAt: now}
	assert.False(t, computed.FreshOracle(now, ttl))

	var missing *Prediction
	assert.False(t, missing.FreshOracle(now, ttl))
}
