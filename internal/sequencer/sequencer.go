// Package sequencer serializes every mutating engine operation.
//
// The ledger is totally ordered: each mutation runs under one process-wide
// mutex inside one database transaction, and optionally under a Redis lease
// so that several engine instances share the same order. Functions passed to
// Run must do all their reads and writes through the supplied tx and must not
// call Run again.
package sequencer

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	globalLockKey = "recurra:sequencer"
	globalLockTTL = 30 * time.Second
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Locker *Locker `optional:"true"`
}

type Sequencer struct {
	mu     sync.Mutex
	db     *gorm.DB
	log    *zap.Logger
	locker *Locker
	tracer trace.Tracer
}

func New(p Params) *Sequencer {
	return &Sequencer{
		db:     p.DB,
		log:    p.Log.Named("sequencer"),
		locker: p.Locker,
		tracer: otel.Tracer("github.com/smallbiznis/recurra/internal/sequencer"),
	}
}

// Run executes fn as one atomic, totally ordered ledger operation. Any error
// returned by fn rolls back every write made through tx.
func (s *Sequencer) Run(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("ledger.op", op)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locker != nil {
		token, err := s.locker.Lock(ctx, globalLockKey, globalLockTTL)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), globalLockKey, token); err != nil {
				s.log.Warn("failed to release sequencer lease", zap.String("op", op), zap.Error(err))
			}
		}()
	}

	err := s.db.WithContext(ctx).Transaction(fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Debug("ledger operation rolled back", zap.String("op", op), zap.Error(err))
	}
	return err
}
