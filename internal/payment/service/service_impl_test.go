package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	assetdomain "github.com/smallbiznis/recurra/internal/asset/domain"
	"github.com/smallbiznis/recurra/internal/authorization"
	"github.com/smallbiznis/recurra/internal/events"
	paymentdomain "github.com/smallbiznis/recurra/internal/payment/domain"
	"github.com/smallbiznis/recurra/internal/testutil"
	"github.com/smallbiznis/recurra/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func TestProcessDuePaymentsAfterTrial(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	amount := testutil.Amount("10000000000000000000")
	plan := h.CreatePlan(t, amount, 30*day, 7*day)
	h.Fund(t, testutil.Subscriber, testutil.Amount("100000000000000000000"), testutil.Amount("100000000000000000000"))

	sub, err := h.Subscriptions.Subscribe(ctx, testutil.Subscriber, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sub.ID)
	assert.True(t, sub.Active)
	assert.Nil(t, sub.LastPaymentAt)
	assert.True(t, h.Balance(t, testutil.Merchant).IsZero(), "trial must not charge")

	history, err := h.Payments.GetPaymentHistory(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	h.Clock.Advance(7*day + time.Second)
	results, err := h.Payments.ProcessDuePayments(ctx, []uint64{1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, paymentdomain.BatchItemCharged, results[0].Status)
	assert.NotZero(t, results[0].PaymentID)

	fee := testutil.Amount("50000000000000000")
	assert.Equal(t, amount.Sub(fee).String(), h.Balance(t, testutil.Merchant).String())
	assert.Equal(t, fee.String(), h.Balance(t, testutil.FeeWallet).String())
	assert.True(t, h.Balance(t, testutil.Engine).IsZero())
	assert.Equal(t, "90000000000000000000", h.Balance(t, testutil.Subscriber).String())

	charged, err := h.Subscriptions.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, charged.LastPaymentAt)
	assert.True(t, h.Clock.Now().Equal(*charged.LastPaymentAt))
	assert.True(t, charged.LastPaymentAt.Add(30*day).Equal(charged.NextPaymentAt))

	score, err := h.Credit.GetScore(ctx, testutil.Subscriber)
	require.NoError(t, err)
	assert.Equal(t, 505, score.Raw)

	history, err = h.Payments.GetPaymentHistory(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)
	assert.Equal(t, paymentdomain.PaymentKindScheduled, history[0].Kind)
	assert.Equal(t, fee.String(), history[0].Fee.String())
	assert.NotEmpty(t, history[0].Reference)

	assert.Equal(t, []string{events.EventPaymentProcessed}, h.OutboxTypes(t, events.AggregatePayment, "1"))
}

func TestProcessDuePaymentsRecordsFailure(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	plan := h.CreatePlan(t, testutil.Amount("1000"), 30*day, 7*day)
	h.Fund(t, testutil.Subscriber, testutil.Amount("400"), testutil.Amount("5000"))

	sub, err := h.Subscriptions.Subscribe(ctx, testutil.Subscriber, plan.ID)
	require.NoError(t, err)

	h.Clock.Advance(8 * day)
	results, err := h.Payments.ProcessDuePayments(ctx, []uint64{sub.ID})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, paymentdomain.BatchItemFailed, results[0].Status)
	assert.Contains(t, results[0].Reason, assetdomain.ErrTransferFailed.Error())
	assert.NotZero(t, results[0].PaymentID)

	assert.Equal(t, "400", h.Balance(t, testutil.Subscriber).String())
	assert.True(t, h.Balance(t, testutil.Merchant).IsZero())
	allowance, err := h.Assets.AllowanceOf(ctx, testutil.Subscriber, testutil.Engine, testutil.Asset)
	require.NoError(t, err)
	assert.Equal(t, "5000", allowance.String(), "partial pull must roll back")

	stored, err := h.Subscriptions.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, stored.Active)
	assert.Nil(t, stored.LastPaymentAt)
	assert.True(t, sub.NextPaymentAt.Equal(stored.NextPaymentAt))

	due, err := h.Subscriptions.GetDueSubscriptions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, sub.ID, due[0].ID)

	history, err := h.Payments.GetPaymentHistory(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)
	assert.True(t, history[0].Fee.IsZero())

	score, err := h.Credit.GetScore(ctx, testutil.Subscriber)
	require.NoError(t, err)
	assert.Equal(t, 490, score.Raw)

	assert.Equal(t, []string{events.EventPaymentFailed}, h.OutboxTypes(t, events.AggregatePayment, "1"))

	// Topping up lets the retry go through.
	require.NoError(t, h.Assets.Deposit(ctx, testutil.Admin, testutil.Subscriber, testutil.Asset, testutil.Amount("600")))
	results, err = h.Payments.ProcessDuePayments(ctx, []uint64{sub.ID})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.BatchItemCharged, results[0].Status)
	assert.Equal(t, "995", h.Balance(t, testutil.Merchant).String())
	assert.Equal(t, "5", h.Balance(t, testutil.FeeWallet).String())
}

func TestProcessDuePaymentsSkipsIneligible(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	plan := h.CreatePlan(t, testutil.Amount("1000"), 30*day, 0)
	h.Fund(t, testutil.Subscriber, testutil.Amount("10000"), testutil.Amount("10000"))
	h.Fund(t, "bob", testutil.Amount("10000"), testutil.Amount("10000"))

	current, err := h.Subscriptions.Subscribe(ctx, testutil.Subscriber, plan.ID)
	require.NoError(t, err)
	cancelled, err := h.Subscriptions.Subscribe(ctx, "bob", plan.ID)
	require.NoError(t, err)
	_, err = h.Subscriptions.CancelSubscription(ctx, "bob", cancelled.ID)
	require.NoError(t, err)

	h.Clock.Advance(31 * day)
	results, err := h.Payments.ProcessDuePayments(ctx, []uint64{999, cancelled.ID, current.ID, current.ID})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, paymentdomain.BatchItemSkipped, results[0].Status)
	assert.Equal(t, "subscription_not_found", results[0].Reason)
	assert.Equal(t, paymentdomain.BatchItemSkipped, results[1].Status)
	assert.Equal(t, "subscription_inactive", results[1].Reason)
	assert.Equal(t, paymentdomain.BatchItemCharged, results[2].Status)
	assert.Equal(t, paymentdomain.BatchItemSkipped, results[3].Status)
	assert.Equal(t, "not_due", results[3].Reason)

	// One initial charge each plus a single renewal for the active one.
	assert.Equal(t, "8000", h.Balance(t, testutil.Subscriber).String())
	assert.Equal(t, "9000", h.Balance(t, "bob").String())
}

func TestNextPaymentFollowsEachCharge(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	period := 30 * day
	plan := h.CreatePlan(t, testutil.Amount("100"), period, 0)
	h.Fund(t, testutil.Subscriber, testutil.Amount("1000"), testutil.Amount("1000"))

	sub, err := h.Subscriptions.Subscribe(ctx, testutil.Subscriber, plan.ID)
	require.NoError(t, err)
	require.NotNil(t, sub.LastPaymentAt)
	assert.True(t, sub.LastPaymentAt.Add(period).Equal(sub.NextPaymentAt))

	previous := sub.NextPaymentAt
	for _, wait := range []time.Duration{period, period + 5*day, period} {
		h.Clock.Advance(wait)
		results, err := h.Payments.ProcessDuePayments(ctx, []uint64{sub.ID})
		require.NoError(t, err)
		require.Equal(t, paymentdomain.BatchItemCharged, results[0].Status)

		stored, err := h.Subscriptions.GetSubscription(ctx, sub.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.LastPaymentAt)
		assert.True(t, stored.LastPaymentAt.Add(period).Equal(stored.NextPaymentAt))
		assert.False(t, stored.NextPaymentAt.Before(previous))
		previous = stored.NextPaymentAt
	}

	history, err := h.Payments.GetPaymentHistory(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, paymentdomain.PaymentKindInitial, history[0].Kind)
}

func TestRecordExternalPayment(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	req := paymentdomain.ExternalPaymentRequest{
		AccountID: testutil.Subscriber,
		Success:   true,
		Amount:    testutil.Amount("50000000000000000000"),
		AssetType: testutil.Asset,
		Note:      "card settlement",
	}

	_, err := h.Payments.RecordExternalPayment(ctx, testutil.Subscriber, req)
	assert.ErrorIs(t, err, authorization.ErrUnauthorized)

	before, err := h.Credit.GetScore(ctx, testutil.Subscriber)
	require.NoError(t, err)

	record, err := h.Payments.RecordExternalPayment(ctx, testutil.Provider, req)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentKindExternal, record.Kind)
	assert.Zero(t, record.SubscriptionID)

	after, err := h.Credit.GetScore(ctx, testutil.Subscriber)
	require.NoError(t, err)
	assert.Greater(t, after.Decayed, before.Decayed)

	h.Clock.Advance(10 * day)
	later, err := h.Credit.GetScore(ctx, testutil.Subscriber)
	require.NoError(t, err)
	assert.Less(t, later.Decayed, after.Decayed)

	records, err := h.Payments.GetAccountPaymentHistory(ctx, testutil.Subscriber)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "card settlement", records[0].Note)

	_, err = h.Payments.RecordExternalPayment(ctx, testutil.Provider, paymentdomain.ExternalPaymentRequest{
		AccountID: testutil.Subscriber,
		Amount:    testutil.Amount("1.5"),
		AssetType: testutil.Asset,
	})
	assert.True(t, errors.Is(err, paymentdomain.ErrInvalidAmount))
}

func TestPaymentHistoryUnknownSubscription(t *testing.T) {
	h := testutil.New(t)

	_, err := h.Payments.GetPaymentHistory(context.Background(), 42)
	assert.Error(t, err)
}

func TestListAccountPaymentsPages(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	for _, note := range []string{"a", "b", "c"} {
		_, err := h.Payments.RecordExternalPayment(ctx, testutil.Provider, paymentdomain.ExternalPaymentRequest{
			AccountID: testutil.Subscriber,
			Success:   true,
			Amount:    testutil.Amount("1"),
			AssetType: testutil.Asset,
			Note:      note,
		})
		require.NoError(t, err)
	}

	first, info, err := h.Payments.ListAccountPayments(ctx, testutil.Subscriber, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "a", first[0].Note)
	require.True(t, info.HasMore)

	second, info, err := h.Payments.ListAccountPayments(ctx, testutil.Subscriber, pagination.Pagination{PageSize: 2, PageToken: info.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "c", second[0].Note)
	assert.False(t, info.HasMore)

	_, _, err = h.Payments.ListAccountPayments(ctx, testutil.Subscriber, pagination.Pagination{PageToken: "!"})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}
