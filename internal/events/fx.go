package events

import (
	"context"
	"strings"

	"github.com/smallbiznis/recurra/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewOutbox),
	fx.Provide(NewPublisher),
	fx.Provide(NewRelay),
)

// NewPublisher connects to RabbitMQ when AMQP_URL is set and falls back to
// a logging publisher otherwise.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Publisher, error) {
	log = log.Named("events.publisher")
	if strings.TrimSpace(cfg.AMQPURL) == "" {
		log.Info("amqp not configured, events are logged only")
		return NewNoopPublisher(log), nil
	}
	pub, err := NewRabbitMQPublisher(cfg.AMQPURL, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return pub.Close()
		},
	})
	return pub, nil
}
