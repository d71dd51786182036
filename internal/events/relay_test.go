package events_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/smallbiznis/recurra/internal/events"
	"github.com/smallbiznis/recurra/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu      sync.Mutex
	keys    []string
	failing bool
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing {
		return errors.New("broker unavailable")
	}
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func queue(t *testing.T, h *testutil.Harness, eventTypes ...string) {
	t.Helper()
	err := h.Sequencer.Run(context.Background(), "test.queue", func(tx *gorm.DB) error {
		for _, eventType := range eventTypes {
			if err := h.Outbox.PublishTx(context.Background(), tx, events.Event{
				Type:          eventType,
				AggregateType: events.AggregatePlan,
				AggregateID:   "7",
				Payload:       map[string]any{"plan_id": 7},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func pending(t *testing.T, h *testutil.Harness) []events.OutboxEvent {
	t.Helper()
	rows, err := events.FetchUnpublished(context.Background(), h.DB, 0)
	require.NoError(t, err)
	return rows
}

func TestPublishTxValidation(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	err := h.Outbox.PublishTx(ctx, nil, events.Event{Type: events.EventPlanCreated, AggregateType: events.AggregatePlan})
	assert.ErrorIs(t, err, events.ErrTransactionRequired)

	err = h.Sequencer.Run(ctx, "test.invalid", func(tx *gorm.DB) error {
		return h.Outbox.PublishTx(ctx, tx, events.Event{AggregateType: events.AggregatePlan})
	})
	assert.ErrorIs(t, err, events.ErrInvalidEvent)
}

func TestOutboxRowsRollBackWithTransaction(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()
	before := len(pending(t, h))

	boom := errors.New("boom")
	err := h.Sequencer.Run(ctx, "test.rollback", func(tx *gorm.DB) error {
		if err := h.Outbox.PublishTx(ctx, tx, events.Event{
			Type:          events.EventPlanCreated,
			AggregateType: events.AggregatePlan,
			AggregateID:   "9",
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, pending(t, h), before)
}

func TestRelayPublishesInOrder(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()
	publisher := &recordingPublisher{}
	relay := events.NewRelay(events.RelayParams{
		DB:         h.DB,
		Log:        h.Log,
		Clock:      h.Clock,
		Publisher:  publisher,
		ObsMetrics: h.Metrics,
	})

	// Drain the role grants queued by the harness first.
	_, err := relay.RunOnce(ctx, 100)
	require.NoError(t, err)
	publisher.keys = nil

	queue(t, h, events.EventPlanCreated, events.EventPlanUpdated)
	published, err := relay.RunOnce(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, published)
	assert.Equal(t, []string{events.EventPlanCreated, events.EventPlanUpdated}, publisher.keys)
	assert.Empty(t, pending(t, h))

	published, err = relay.RunOnce(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, published)
}

func TestRelayStopsAtFirstFailureAndTripsBreaker(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()
	publisher := &recordingPublisher{failing: true}
	relay := events.NewRelay(events.RelayParams{
		DB:        h.DB,
		Log:       h.Log,
		Clock:     h.Clock,
		Publisher: publisher,
	})
	queue(t, h, events.EventPlanCreated)

	for i := 0; i < 5; i++ {
		published, err := relay.RunOnce(ctx, 100)
		assert.Error(t, err)
		assert.Zero(t, published)
	}

	rows := pending(t, h)
	require.NotEmpty(t, rows)
	assert.Equal(t, 5, rows[0].Attempts)
	assert.Equal(t, "broker unavailable", rows[0].LastError)

	// The breaker is open now; the relay backs off without an error.
	publisher.failing = false
	published, err := relay.RunOnce(ctx, 100)
	assert.NoError(t, err)
	assert.Zero(t, published)
	assert.Len(t, pending(t, h), len(rows))
}
