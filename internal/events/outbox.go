package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recurra/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrTransactionRequired = errors.New("transaction_required")
	ErrInvalidEvent        = errors.New("invalid_event")
)

type OutboxParams struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

// Outbox writes events in the same transaction as the state change they
// describe, so an event exists if and only if the change committed.
type Outbox struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewOutbox(p OutboxParams) *Outbox {
	return &Outbox{
		log:   p.Log.Named("events.outbox"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, event Event) error {
	if tx == nil {
		return ErrTransactionRequired
	}
	if strings.TrimSpace(event.Type) == "" || strings.TrimSpace(event.AggregateType) == "" {
		return ErrInvalidEvent
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	row := OutboxEvent{
		ID:            o.genID.Generate(),
		EventType:     event.Type,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       datatypes.JSON(payload),
		OccurredAt:    o.clock.Now(),
	}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	o.log.Debug("outbox event queued",
		zap.String("event_id", row.ID.String()),
		zap.String("event_type", row.EventType),
		zap.String("aggregate_id", row.AggregateID),
	)
	return nil
}

// FetchUnpublished returns pending events oldest first.
func FetchUnpublished(ctx context.Context, db *gorm.DB, limit int) ([]OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []OutboxEvent
	err := db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListByAggregate returns every event recorded for one aggregate.
func ListByAggregate(ctx context.Context, db *gorm.DB, aggregateType, aggregateID string) ([]OutboxEvent, error) {
	var rows []OutboxEvent
	err := db.WithContext(ctx).
		Where("aggregate_type = ? AND aggregate_id = ?", aggregateType, aggregateID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}
