package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	assetdomain "github.com/smallbiznis/recurra/internal/asset/domain"
	"github.com/smallbiznis/recurra/internal/authorization"
	"github.com/smallbiznis/recurra/internal/events"
	disputedomain "github.com/smallbiznis/recurra/internal/payment/dispute/domain"
	paymentdomain "github.com/smallbiznis/recurra/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/recurra/internal/subscription/domain"
	"github.com/smallbiznis/recurra/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

// chargedSubscription returns a subscription whose first period of 1000
// has been paid.
func chargedSubscription(t *testing.T, h *testutil.Harness) *subscriptiondomain.Subscription {
	t.Helper()
	plan := h.CreatePlan(t, testutil.Amount("1000"), 30*day, 0)
	h.Fund(t, testutil.Subscriber, testutil.Amount("5000"), testutil.Amount("5000"))
	sub, err := h.Subscriptions.Subscribe(context.Background(), testutil.Subscriber, plan.ID)
	require.NoError(t, err)
	return sub
}

func TestOpenThenResolveWithFullRefund(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()
	sub := chargedSubscription(t, h)
	h.Fund(t, testutil.Merchant, testutil.Amount("1000"), testutil.Amount("5000"))

	_, err := h.Disputes.OpenDispute(ctx, testutil.Merchant, sub.ID, "not mine")
	assert.ErrorIs(t, err, authorization.ErrUnauthorized)

	dispute, err := h.Disputes.OpenDispute(ctx, testutil.Subscriber, sub.ID, "service never delivered")
	require.NoError(t, err)
	assert.Equal(t, disputedomain.DisputeStatusOpened, dispute.Status)
	assert.Equal(t, "1000", dispute.Amount.String())
	assert.Equal(t, testutil.Merchant, dispute.MerchantID)
	assert.Equal(t, uint64(1), dispute.PaymentID)

	_, err = h.Disputes.OpenDispute(ctx, testutil.Subscriber, sub.ID, "again")
	assert.ErrorIs(t, err, disputedomain.ErrDisputeAlreadyOpen)

	before := h.Balance(t, testutil.Subscriber)
	resolved, err := h.Disputes.ResolveDispute(ctx, testutil.Arbitrator, dispute.ID, disputedomain.ResolveRequest{
		Resolution:   disputedomain.ResolutionSubscriberWins,
		RefundAmount: dispute.Amount,
		Notes:        "merchant did not respond",
	})
	require.NoError(t, err)
	assert.Equal(t, disputedomain.DisputeStatusResolved, resolved.Status)
	assert.Equal(t, disputedomain.ResolutionSubscriberWins, resolved.Resolution)
	assert.Equal(t, testutil.Arbitrator, resolved.ResolverID)
	require.NotNil(t, resolved.ResolvedAt)

	assert.Equal(t, before.Add(dispute.Amount).String(), h.Balance(t, testutil.Subscriber).String())
	assert.Equal(t, "995", h.Balance(t, testutil.Merchant).String())

	assert.Equal(t,
		[]string{events.EventDisputeOpened, events.EventDisputeResolved},
		h.OutboxTypes(t, events.AggregateDispute, "1"),
	)
}

func TestResolveDisputeValidation(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()
	sub := chargedSubscription(t, h)

	dispute, err := h.Disputes.OpenDispute(ctx, testutil.Subscriber, sub.ID, "double charge")
	require.NoError(t, err)

	cases := []struct {
		name   string
		caller string
		req    disputedomain.ResolveRequest
		want   error
	}{
		{
			name:   "not an arbitrator",
			caller: testutil.Merchant,
			req:    disputedomain.ResolveRequest{Resolution: disputedomain.ResolutionMerchantWins},
			want:   authorization.ErrUnauthorized,
		},
		{
			name:   "refund above amount",
			caller: testutil.Arbitrator,
			req:    disputedomain.ResolveRequest{Resolution: disputedomain.ResolutionCompromise, RefundAmount: testutil.Amount("1001")},
			want:   disputedomain.ErrInvalidRefund,
		},
		{
			name:   "negative refund",
			caller: testutil.Arbitrator,
			req:    disputedomain.ResolveRequest{Resolution: disputedomain.ResolutionCompromise, RefundAmount: decimal.NewFromInt(-1)},
			want:   disputedomain.ErrInvalidRefund,
		},
		{
			name:   "merchant wins with refund",
			caller: testutil.Arbitrator,
			req:    disputedomain.ResolveRequest{Resolution: disputedomain.ResolutionMerchantWins, RefundAmount: testutil.Amount("10")},
			want:   disputedomain.ErrInvalidRefund,
		},
		{
			name:   "unknown resolution",
			caller: testutil.Arbitrator,
			req:    disputedomain.ResolveRequest{Resolution: disputedomain.ResolutionNone},
			want:   disputedomain.ErrInvalidResolution,
		},
		{
			name:   "merchant has not approved the engine",
			caller: testutil.Arbitrator,
			req:    disputedomain.ResolveRequest{Resolution: disputedomain.ResolutionCompromise, RefundAmount: testutil.Amount("500")},
			want:   assetdomain.ErrTransferFailed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.Disputes.ResolveDispute(ctx, tc.caller, dispute.ID, tc.req)
			assert.ErrorIs(t, err, tc.want)

			stored, err := h.Disputes.GetDispute(ctx, dispute.ID)
			require.NoError(t, err)
			assert.Equal(t, disputedomain.DisputeStatusOpened, stored.Status)
		})
	}

	resolved, err := h.Disputes.ResolveDispute(ctx, testutil.Arbitrator, dispute.ID, disputedomain.ResolveRequest{
		Resolution: disputedomain.ResolutionMerchantWins,
	})
	require.NoError(t, err)
	assert.True(t, resolved.RefundAmount.IsZero())

	_, err = h.Disputes.ResolveDispute(ctx, testutil.Arbitrator, dispute.ID, disputedomain.ResolveRequest{
		Resolution: disputedomain.ResolutionMerchantWins,
	})
	assert.ErrorIs(t, err, disputedomain.ErrDisputeNotOpen)
}

func TestSubmitEvidence(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()
	sub := chargedSubscription(t, h)

	dispute, err := h.Disputes.OpenDispute(ctx, testutil.Subscriber, sub.ID, "wrong amount")
	require.NoError(t, err)

	_, err = h.Disputes.SubmitEvidence(ctx, "mallory", dispute.ID, "forged")
	assert.ErrorIs(t, err, authorization.ErrUnauthorized)
	_, err = h.Disputes.SubmitEvidence(ctx, testutil.Subscriber, dispute.ID, "   ")
	assert.ErrorIs(t, err, disputedomain.ErrInvalidEvidence)

	_, err = h.Disputes.SubmitEvidence(ctx, testutil.Subscriber, dispute.ID, "invoice #1")
	require.NoError(t, err)
	_, err = h.Disputes.SubmitEvidence(ctx, testutil.Subscriber, dispute.ID, "bank statement")
	require.NoError(t, err)
	updated, err := h.Disputes.SubmitEvidence(ctx, testutil.Merchant, dispute.ID, "delivery receipt")
	require.NoError(t, err)

	assert.Equal(t, disputedomain.DisputeStatusEvidenceSubmitted, updated.Status)
	assert.Equal(t, "invoice #1\nbank statement", updated.SubscriberEvidence)
	assert.Equal(t, "delivery receipt", updated.MerchantEvidence)

	_, err = h.Disputes.CancelDispute(ctx, testutil.Subscriber, dispute.ID)
	require.NoError(t, err)
	_, err = h.Disputes.SubmitEvidence(ctx, testutil.Merchant, dispute.ID, "late")
	assert.ErrorIs(t, err, disputedomain.ErrDisputeNotOpen)
}

func TestCancelDispute(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()
	sub := chargedSubscription(t, h)

	dispute, err := h.Disputes.OpenDispute(ctx, testutil.Subscriber, sub.ID, "changed my mind")
	require.NoError(t, err)

	_, err = h.Disputes.CancelDispute(ctx, testutil.Merchant, dispute.ID)
	assert.ErrorIs(t, err, authorization.ErrUnauthorized)

	cancelled, err := h.Disputes.CancelDispute(ctx, testutil.Subscriber, dispute.ID)
	require.NoError(t, err)
	assert.Equal(t, disputedomain.DisputeStatusCancelled, cancelled.Status)

	_, err = h.Disputes.CancelDispute(ctx, testutil.Subscriber, dispute.ID)
	assert.ErrorIs(t, err, disputedomain.ErrDisputeNotOpen)

	reopened, err := h.Disputes.OpenDispute(ctx, testutil.Subscriber, sub.ID, "actually no")
	require.NoError(t, err)
	assert.NotEqual(t, dispute.ID, reopened.ID)

	all, err := h.Disputes.ListSubscriptionDisputes(ctx, sub.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAutoResolution(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()
	sub := chargedSubscription(t, h)

	dispute, err := h.Disputes.OpenDispute(ctx, testutil.Subscriber, sub.ID, "slow support")
	require.NoError(t, err)

	eligible, err := h.Disputes.IsEligibleForAutoResolution(ctx, dispute.ID)
	require.NoError(t, err)
	assert.False(t, eligible)
	_, err = h.Disputes.AutoResolveDispute(ctx, dispute.ID)
	assert.ErrorIs(t, err, disputedomain.ErrNotEligible)

	pending, err := h.Disputes.ListAutoResolvable(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	h.Clock.Advance(7*day + time.Second)
	eligible, err = h.Disputes.IsEligibleForAutoResolution(ctx, dispute.ID)
	require.NoError(t, err)
	assert.True(t, eligible)

	pending, err = h.Disputes.ListAutoResolvable(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, dispute.ID, pending[0].ID)

	resolved, err := h.Disputes.AutoResolveDispute(ctx, dispute.ID)
	require.NoError(t, err)
	assert.Equal(t, disputedomain.DisputeStatusResolved, resolved.Status)
	assert.Equal(t, disputedomain.ResolutionMerchantWins, resolved.Resolution)
	assert.True(t, resolved.AutoResolved)
	assert.True(t, resolved.RefundAmount.IsZero())

	eligible, err = h.Disputes.IsEligibleForAutoResolution(ctx, dispute.ID)
	require.NoError(t, err)
	assert.False(t, eligible)
}

func TestOpenDisputeRequiresCharge(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	plan := h.CreatePlan(t, testutil.Amount("1000"), 30*day, 7*day)
	sub, err := h.Subscriptions.Subscribe(ctx, testutil.Subscriber, plan.ID)
	require.NoError(t, err)

	_, err = h.Disputes.OpenDispute(ctx, testutil.Subscriber, sub.ID, "trial")
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)

	_, err = h.Disputes.OpenDispute(ctx, testutil.Subscriber, 77, "unknown")
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)

	_, err = h.Disputes.GetDispute(ctx, 12)
	assert.ErrorIs(t, err, disputedomain.ErrDisputeNotFound)
}
