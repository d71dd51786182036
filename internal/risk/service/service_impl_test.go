package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/recurra/internal/authorization"
	"github.com/smallbiznis/recurra/internal/events"
	paymentdomain "github.com/smallbiznis/recurra/internal/payment/domain"
	riskdomain "github.com/smallbiznis/recurra/internal/risk/domain"
	subscriptiondomain "github.com/smallbiznis/recurra/internal/subscription/domain"
	"github.com/smallbiznis/recurra/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func TestPaymentRefreshesComputedPrediction(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	plan := h.CreatePlan(t, testutil.Amount("1000"), 30*day, 0)
	h.Fund(t, testutil.Subscriber, testutil.Amount("3000"), testutil.Amount("3000"))

	sub, err := h.Subscriptions.Subscribe(ctx, testutil.Subscriber, plan.ID)
	require.NoError(t, err)

	stored, err := h.PredictionRepo.Find(ctx, h.DB, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, stored, "the initial charge stores a prediction")
	assert.Equal(t, 80, stored.Likelihood)
	assert.Equal(t, riskdomain.RiskLevelLow, stored.RiskLevel)
	assert.Equal(t, riskdomain.ProvenanceComputed, stored.Provenance)

	prediction, err := h.Risk.GetPrediction(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, prediction.Likelihood)

	_, err = h.Risk.GetPrediction(ctx, 404)
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
}

func TestGetPredictionComputesWithoutStoring(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	plan := h.CreatePlan(t, testutil.Amount("1000"), 30*day, 14*day)
	sub, err := h.Subscriptions.Subscribe(ctx, testutil.Subscriber, plan.ID)
	require.NoError(t, err)

	prediction, err := h.Risk.GetPrediction(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 35, prediction.Likelihood)
	assert.Equal(t, riskdomain.RiskLevelMedium, prediction.RiskLevel)

	stored, err := h.PredictionRepo.Find(ctx, h.DB, sub.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestOraclePredictionTakesPrecedenceUntilStale(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	plan := h.CreatePlan(t, testutil.Amount("1000"), 30*day, 0)
	h.Fund(t, testutil.Subscriber, testutil.Amount("3000"), testutil.Amount("3000"))
	sub, err := h.Subscriptions.Subscribe(ctx, testutil.Subscriber, plan.ID)
	require.NoError(t, err)

	_, err = h.Risk.UpdatePrediction(ctx, testutil.Subscriber, sub.ID, 20, "self-assessed")
	assert.ErrorIs(t, err, authorization.ErrUnauthorized)

	_, err = h.Risk.UpdatePrediction(ctx, testutil.Oracle, sub.ID, 101, "")
	assert.ErrorIs(t, err, riskdomain.ErrInvalidLikelihood)

	set, err := h.Risk.UpdatePrediction(ctx, testutil.Oracle, sub.ID, 20, "chargeback history")
	require.NoError(t, err)
	assert.Equal(t, riskdomain.RiskLevelHigh, set.RiskLevel)
	assert.Equal(t, riskdomain.ProvenanceOracleSet, set.Provenance)

	h.Clock.Advance(3 * day)
	kept, err := h.Risk.CalculateLikelihood(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, kept.Likelihood)
	assert.Equal(t, riskdomain.ProvenanceOracleSet, kept.Provenance)

	h.Clock.Advance(5 * day)
	recomputed, err := h.Risk.CalculateLikelihood(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, riskdomain.ProvenanceComputed, recomputed.Provenance)
	assert.Equal(t, 80, recomputed.Likelihood)

	assert.Contains(t, h.OutboxTypes(t, events.AggregatePrediction, "1"), events.EventPredictionUpdated)
}

func TestStaleOracleIgnoredOnReads(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	plan := h.CreatePlan(t, testutil.Amount("1000"), 30*day, 0)
	h.Fund(t, testutil.Subscriber, testutil.Amount("3000"), testutil.Amount("3000"))
	sub, err := h.Subscriptions.Subscribe(ctx, testutil.Subscriber, plan.ID)
	require.NoError(t, err)

	_, err = h.Risk.UpdatePrediction(ctx, testutil.Oracle, sub.ID, 5, "manual review")
	require.NoError(t, err)

	h.Clock.Advance(3 * day)
	fresh, err := h.Risk.GetPrediction(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, fresh.Likelihood)
	assert.Equal(t, riskdomain.ProvenanceOracleSet, fresh.Provenance)

	h.Clock.Advance(25 * day)
	stale, err := h.Risk.GetPrediction(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, riskdomain.ProvenanceComputed, stale.Provenance)
	assert.Equal(t, riskdomain.RiskLevelLow, stale.RiskLevel)

	high, err := h.Risk.GetHighRiskSubscriptions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, high)
}

func TestGetHighRiskSubscriptions(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	trial := h.CreatePlan(t, testutil.Amount("1000"), 30*day, 7*day)
	paid := h.CreatePlan(t, testutil.Amount("1000"), 30*day, 0)
	h.Fund(t, testutil.Subscriber, testutil.Amount("5000"), testutil.Amount("5000"))

	healthy, err := h.Subscriptions.Subscribe(ctx, testutil.Subscriber, paid.ID)
	require.NoError(t, err)
	risky, err := h.Subscriptions.Subscribe(ctx, "bob", trial.ID)
	require.NoError(t, err)

	h.Clock.Advance(8 * day)
	results, err := h.Payments.ProcessDuePayments(ctx, []uint64{risky.ID})
	require.NoError(t, err)
	require.Equal(t, paymentdomain.BatchItemFailed, results[0].Status)

	high, err := h.Risk.GetHighRiskSubscriptions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, risky.ID, high[0].SubscriptionID)
	assert.Equal(t, 20, high[0].Likelihood)

	// The healthy subscription becomes near due but stays low risk.
	h.Clock.Advance(20 * day)
	high, err = h.Risk.GetHighRiskSubscriptions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.NotEqual(t, healthy.ID, high[0].SubscriptionID)
}
