package events

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/recurra/internal/clock"
	obsmetrics "github.com/smallbiznis/recurra/internal/observability/metrics"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	breakerFailureThreshold = 5
	breakerOpenTimeout      = 30 * time.Second
	publishTimeout          = 10 * time.Second
)

type RelayParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Publisher  Publisher
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Relay moves committed outbox rows to the broker.
type Relay struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	publisher  Publisher
	breaker    *gobreaker.CircuitBreaker[struct{}]
	obsMetrics *obsmetrics.Metrics
}

func NewRelay(p RelayParams) *Relay {
	log := p.Log.Named("events.relay")
	settings := gobreaker.Settings{
		Name:        "outbox-publisher",
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &Relay{
		db:         p.DB,
		log:        log,
		clock:      p.Clock,
		publisher:  p.Publisher,
		breaker:    gobreaker.NewCircuitBreaker[struct{}](settings),
		obsMetrics: p.ObsMetrics,
	}
}

// RunOnce publishes up to limit pending events in id order and stops at the
// first failure so that ordering per routing key is preserved.
func (r *Relay) RunOnce(ctx context.Context, limit int) (int, error) {
	rows, err := FetchUnpublished(ctx, r.db, limit)
	if err != nil {
		return 0, err
	}
	r.obsMetrics.SetOutboxBacklog(len(rows))

	published := 0
	for _, row := range rows {
		_, err := r.breaker.Execute(func() (struct{}, error) {
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			defer cancel()
			return struct{}{}, r.publisher.Publish(pubCtx, row.EventType, row.ID.String(), row.Payload)
		})
		if err != nil {
			r.obsMetrics.RecordOutboxPublish("failed", 1)
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				r.log.Warn("outbox relay paused, breaker open", zap.Int("published", published))
				return published, nil
			}
			if markErr := r.db.WithContext(ctx).Model(&OutboxEvent{}).
				Where("id = ?", row.ID).
				Updates(map[string]any{
					"attempts":   gorm.Expr("attempts + 1"),
					"last_error": err.Error(),
				}).Error; markErr != nil {
				return published, markErr
			}
			return published, err
		}

		now := r.clock.Now()
		if err := r.db.WithContext(ctx).Model(&OutboxEvent{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"published_at": now,
				"attempts":     gorm.Expr("attempts + 1"),
			}).Error; err != nil {
			return published, err
		}
		published++
	}
	r.obsMetrics.RecordOutboxPublish("published", published)
	return published, nil
}
