package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/recurra/internal/authorization"
	"github.com/smallbiznis/recurra/internal/events"
	plandomain "github.com/smallbiznis/recurra/internal/plan/domain"
	"github.com/smallbiznis/recurra/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = int64(24 * time.Hour / time.Second)

func TestCreatePlan(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	req := plandomain.CreatePlanRequest{
		AssetType:            testutil.Asset,
		Amount:               testutil.Amount("10000000000000000000"),
		BillingPeriodSeconds: 30 * day,
		TrialPeriodSeconds:   7 * day,
		Metadata:             `{"tier":"pro"}`,
	}

	_, err := h.Plans.CreatePlan(ctx, testutil.Subscriber, req)
	assert.ErrorIs(t, err, authorization.ErrUnauthorized)

	plan, err := h.Plans.CreatePlan(ctx, testutil.Merchant, req)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), plan.ID)
	assert.Equal(t, testutil.Merchant, plan.MerchantID)
	assert.True(t, plan.Active)

	loaded, err := h.Plans.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000000", loaded.Amount.String())
	assert.Equal(t, 30*24*time.Hour, loaded.BillingPeriod())
	assert.Equal(t, 7*24*time.Hour, loaded.TrialPeriod())

	plans, err := h.Plans.ListMerchantPlans(ctx, testutil.Merchant)
	require.NoError(t, err)
	assert.Len(t, plans, 1)

	assert.Equal(t, []string{events.EventPlanCreated}, h.OutboxTypes(t, events.AggregatePlan, "1"))
}

func TestCreatePlanRejectsInvalidTerms(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	valid := plandomain.CreatePlanRequest{
		AssetType:            testutil.Asset,
		Amount:               testutil.Amount("100"),
		BillingPeriodSeconds: 30 * day,
	}
	cases := map[string]func(r *plandomain.CreatePlanRequest){
		"zero amount":       func(r *plandomain.CreatePlanRequest) { r.Amount = testutil.Amount("0") },
		"fractional amount": func(r *plandomain.CreatePlanRequest) { r.Amount = testutil.Amount("1.5") },
		"period too short":  func(r *plandomain.CreatePlanRequest) { r.BillingPeriodSeconds = day - 1 },
		"period too long":   func(r *plandomain.CreatePlanRequest) { r.BillingPeriodSeconds = 366 * day },
		"negative trial":    func(r *plandomain.CreatePlanRequest) { r.TrialPeriodSeconds = -1 },
		"missing asset":     func(r *plandomain.CreatePlanRequest) { r.AssetType = "  " },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := valid
			mutate(&req)
			_, err := h.Plans.CreatePlan(ctx, testutil.Merchant, req)
			assert.ErrorIs(t, err, plandomain.ErrInvalidTerms)
		})
	}

	plans, err := h.Plans.ListMerchantPlans(ctx, testutil.Merchant)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestUpdatePlan(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	plan, err := h.Plans.CreatePlan(ctx, testutil.Merchant, plandomain.CreatePlanRequest{
		AssetType:            testutil.Asset,
		Amount:               testutil.Amount("100"),
		BillingPeriodSeconds: 30 * day,
	})
	require.NoError(t, err)

	require.NoError(t, h.Authz.GrantRole(ctx, testutil.Admin, "merchant-2", authorization.RoleMerchant))
	_, err = h.Plans.UpdatePlan(ctx, "merchant-2", plandomain.UpdatePlanRequest{
		PlanID:               plan.ID,
		Amount:               testutil.Amount("1"),
		BillingPeriodSeconds: 30 * day,
	})
	assert.ErrorIs(t, err, authorization.ErrUnauthorized)

	_, err = h.Plans.UpdatePlan(ctx, testutil.Merchant, plandomain.UpdatePlanRequest{
		PlanID:               99,
		Amount:               testutil.Amount("1"),
		BillingPeriodSeconds: 30 * day,
	})
	assert.ErrorIs(t, err, plandomain.ErrPlanNotFound)

	updated, err := h.Plans.UpdatePlan(ctx, testutil.Merchant, plandomain.UpdatePlanRequest{
		PlanID:               plan.ID,
		Active:               false,
		Amount:               testutil.Amount("250"),
		BillingPeriodSeconds: 7 * day,
	})
	require.NoError(t, err)
	assert.False(t, updated.Active)

	loaded, err := h.Plans.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.False(t, loaded.Active)
	assert.Equal(t, "250", loaded.Amount.String())
	assert.Equal(t, 7*day, loaded.BillingPeriodSeconds)

	_, err = h.Subscriptions.Subscribe(ctx, testutil.Subscriber, plan.ID)
	assert.ErrorIs(t, err, plandomain.ErrPlanInactive)
}

func TestUpdatePlanChecksOwnerBeforeTerms(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	plan, err := h.Plans.CreatePlan(ctx, testutil.Merchant, plandomain.CreatePlanRequest{
		AssetType:            testutil.Asset,
		Amount:               testutil.Amount("100"),
		BillingPeriodSeconds: 30 * day,
	})
	require.NoError(t, err)

	_, err = h.Plans.UpdatePlan(ctx, "merchant-2", plandomain.UpdatePlanRequest{
		PlanID:               plan.ID,
		Amount:               testutil.Amount("0"),
		BillingPeriodSeconds: 30 * day,
	})
	assert.ErrorIs(t, err, authorization.ErrUnauthorized)

	_, err = h.Plans.UpdatePlan(ctx, testutil.Merchant, plandomain.UpdatePlanRequest{
		PlanID:               plan.ID,
		Amount:               testutil.Amount("0"),
		BillingPeriodSeconds: 30 * day,
	})
	assert.ErrorIs(t, err, plandomain.ErrInvalidTerms)
}

func TestCreatePlanTrimsMerchant(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	plan, err := h.Plans.CreatePlan(ctx, "  "+testutil.Merchant+" ", plandomain.CreatePlanRequest{
		AssetType:            testutil.Asset,
		Amount:               testutil.Amount("100"),
		BillingPeriodSeconds: 30 * day,
	})
	require.NoError(t, err)
	assert.Equal(t, testutil.Merchant, plan.MerchantID)

	plans, err := h.Plans.ListMerchantPlans(ctx, testutil.Merchant)
	require.NoError(t, err)
	assert.Len(t, plans, 1)

	updated, err := h.Plans.UpdatePlan(ctx, testutil.Merchant, plandomain.UpdatePlanRequest{
		PlanID:               plan.ID,
		Active:               true,
		Amount:               testutil.Amount("200"),
		BillingPeriodSeconds: 30 * day,
	})
	require.NoError(t, err)
	assert.Equal(t, "200", updated.Amount.String())
}
