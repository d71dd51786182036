package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/recurra/internal/events"
	disputedomain "github.com/smallbiznis/recurra/internal/payment/dispute/domain"
	"github.com/smallbiznis/recurra/internal/scheduler"
	"github.com/smallbiznis/recurra/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

type countingPublisher struct {
	mu    sync.Mutex
	count int
}

func (p *countingPublisher) Publish(context.Context, string, string, []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	return nil
}

func (p *countingPublisher) Close() error { return nil }

func newScheduler(t *testing.T, h *testutil.Harness, pub events.Publisher, opts ...func(*scheduler.Config)) *scheduler.Scheduler {
	t.Helper()
	cfg := scheduler.Config{BatchSize: 10, RelayBatchSize: 2}
	for _, opt := range opts {
		opt(&cfg)
	}
	sched, err := scheduler.New(scheduler.Params{
		Log:             h.Log,
		Clock:           h.Clock,
		GenID:           h.GenID,
		SubscriptionSvc: h.Subscriptions,
		PaymentSvc:      h.Payments,
		DisputeSvc:      h.Disputes,
		Relay: events.NewRelay(events.RelayParams{
			DB:        h.DB,
			Log:       h.Log,
			Clock:     h.Clock,
			Publisher: pub,
		}),
		Config: cfg,
	})
	require.NoError(t, err)
	return sched
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := scheduler.New(scheduler.Params{})
	assert.ErrorIs(t, err, scheduler.ErrInvalidConfig)
}

func TestProcessDueJobChargesDueSubscriptions(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()
	sched := newScheduler(t, h, &countingPublisher{})

	plan := h.CreatePlan(t, testutil.Amount("1000"), 30*day, 0)
	h.Fund(t, testutil.Subscriber, testutil.Amount("5000"), testutil.Amount("5000"))
	sub, err := h.Subscriptions.Subscribe(ctx, testutil.Subscriber, plan.ID)
	require.NoError(t, err)

	require.NoError(t, sched.RunJob(ctx, scheduler.JobProcessDue))
	assert.Equal(t, "4000", h.Balance(t, testutil.Subscriber).String(), "nothing due yet")

	h.Clock.Advance(30 * day)
	require.NoError(t, sched.RunJob(ctx, scheduler.JobProcessDue))
	assert.Equal(t, "3000", h.Balance(t, testutil.Subscriber).String())

	history, err := h.Payments.GetPaymentHistory(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, record := range history {
		assert.True(t, record.Success)
	}
}

func TestProcessDueJobSkipsPastUnfundedSubscriptions(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()
	sched := newScheduler(t, h, &countingPublisher{}, func(cfg *scheduler.Config) {
		cfg.BatchSize = 1
		cfg.RetryBackoff = time.Hour
	})

	plan := h.CreatePlan(t, testutil.Amount("1000"), 30*day, day)
	unfunded, err := h.Subscriptions.Subscribe(ctx, testutil.Subscriber, plan.ID)
	require.NoError(t, err)
	h.Fund(t, "dave", testutil.Amount("5000"), testutil.Amount("5000"))
	funded, err := h.Subscriptions.Subscribe(ctx, "dave", plan.ID)
	require.NoError(t, err)

	h.Clock.Advance(day + time.Second)
	for i := 0; i < 5; i++ {
		require.NoError(t, sched.RunJob(ctx, scheduler.JobProcessDue))
		h.Clock.Advance(time.Minute)
	}

	assert.Equal(t, "4000", h.Balance(t, "dave").String())
	history, err := h.Payments.GetPaymentHistory(ctx, funded.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)

	failed, err := h.Payments.GetPaymentHistory(ctx, unfunded.ID)
	require.NoError(t, err)
	assert.Len(t, failed, 1, "one attempt inside the backoff window")
	score, err := h.Credit.GetScore(ctx, testutil.Subscriber)
	require.NoError(t, err)
	assert.Equal(t, 490, score.Raw)

	h.Clock.Advance(time.Hour)
	require.NoError(t, sched.RunJob(ctx, scheduler.JobProcessDue))
	failed, err = h.Payments.GetPaymentHistory(ctx, unfunded.ID)
	require.NoError(t, err)
	assert.Len(t, failed, 2, "retried once the backoff elapsed")
}

func TestAutoResolveJobSettlesExpiredDisputes(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()
	sched := newScheduler(t, h, &countingPublisher{})

	plan := h.CreatePlan(t, testutil.Amount("1000"), 30*day, 0)
	h.Fund(t, testutil.Subscriber, testutil.Amount("5000"), testutil.Amount("5000"))
	sub, err := h.Subscriptions.Subscribe(ctx, testutil.Subscriber, plan.ID)
	require.NoError(t, err)
	dispute, err := h.Disputes.OpenDispute(ctx, testutil.Subscriber, sub.ID, "slow support")
	require.NoError(t, err)

	require.NoError(t, sched.RunJob(ctx, scheduler.JobAutoResolve))
	current, err := h.Disputes.GetDispute(ctx, dispute.ID)
	require.NoError(t, err)
	assert.Equal(t, disputedomain.DisputeStatusOpened, current.Status)

	h.Clock.Advance(7*day + time.Second)
	require.NoError(t, sched.RunJob(ctx, scheduler.JobAutoResolve))
	current, err = h.Disputes.GetDispute(ctx, dispute.ID)
	require.NoError(t, err)
	assert.Equal(t, disputedomain.DisputeStatusResolved, current.Status)
	assert.Equal(t, disputedomain.ResolutionMerchantWins, current.Resolution)
	assert.True(t, current.AutoResolved)
}

func TestOutboxRelayJobDrainsBacklog(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()
	pub := &countingPublisher{}
	sched := newScheduler(t, h, pub)

	h.Fund(t, testutil.Subscriber, testutil.Amount("100"), testutil.Amount("100"))

	var queued int64
	require.NoError(t, h.DB.Model(&events.OutboxEvent{}).Count(&queued).Error)
	require.Greater(t, queued, int64(2))

	require.NoError(t, sched.RunJob(ctx, scheduler.JobOutboxRelay))
	assert.Equal(t, int(queued), pub.count)

	pending, err := events.FetchUnpublished(ctx, h.DB, 100)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunJobUnknownName(t *testing.T) {
	h := testutil.New(t)
	sched := newScheduler(t, h, &countingPublisher{})
	assert.Error(t, sched.RunJob(context.Background(), "reticulate_splines"))
}
