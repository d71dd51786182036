package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/recurra/internal/clock"
	"github.com/smallbiznis/recurra/internal/config"
	creditdomain "github.com/smallbiznis/recurra/internal/credit/domain"
	"github.com/smallbiznis/recurra/internal/events"
	obsmetrics "github.com/smallbiznis/recurra/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Engine     *config.EngineConfigHolder
	Repo       creditdomain.Repository
	Outbox     *events.Outbox
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	engine     *config.EngineConfigHolder
	repo       creditdomain.Repository
	outbox     *events.Outbox
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) creditdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("credit.service"),
		clock:      p.Clock,
		engine:     p.Engine,
		repo:       p.Repo,
		outbox:     p.Outbox,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) RecordOutcomeTx(ctx context.Context, tx *gorm.DB, accountID string, success bool) (*creditdomain.CreditScore, error) {
	accountID = strings.TrimSpace(accountID)
	current, err := s.repo.Find(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	raw := creditdomain.BaseScore
	if current != nil {
		raw = current.RawScore
	}

	score := &creditdomain.CreditScore{
		AccountID:    accountID,
		RawScore:     creditdomain.ApplyOutcome(raw, success),
		LastUpdateAt: s.clock.Now(),
	}
	if err := s.repo.Upsert(ctx, tx, score); err != nil {
		return nil, err
	}
	if err := s.outbox.PublishTx(ctx, tx, events.Event{
		Type:          events.EventCreditScoreUpdated,
		AggregateType: events.AggregateCreditScore,
		AggregateID:   accountID,
		Payload: map[string]any{
			"account_id":     accountID,
			"previous_raw":   raw,
			"raw_score":      score.RawScore,
			"success":        success,
			"last_update_at": score.LastUpdateAt,
		},
	}); err != nil {
		return nil, err
	}

	s.obsMetrics.RecordCreditOutcome(success)
	s.log.Debug("credit outcome recorded",
		zap.String("account_id", accountID),
		zap.Bool("success", success),
		zap.Int("raw_score", score.RawScore),
	)
	return score, nil
}

func (s *Service) GetScore(ctx context.Context, accountID string) (creditdomain.Score, error) {
	return s.GetScoreTx(ctx, s.db, accountID)
}

func (s *Service) GetScoreTx(ctx context.Context, tx *gorm.DB, accountID string) (creditdomain.Score, error) {
	accountID = strings.TrimSpace(accountID)
	stored, err := s.repo.Find(ctx, tx, accountID)
	if err != nil {
		return creditdomain.Score{}, err
	}
	if stored == nil {
		return creditdomain.Score{
			AccountID: accountID,
			Raw:       creditdomain.BaseScore,
			Decayed:   creditdomain.BaseScore,
		}, nil
	}

	elapsed := s.clock.Now().Sub(stored.LastUpdateAt)
	lastUpdate := stored.LastUpdateAt
	return creditdomain.Score{
		AccountID:    accountID,
		Raw:          stored.RawScore,
		Decayed:      creditdomain.Decay(stored.RawScore, elapsed, s.engine.Get().CreditDecayHalfLife),
		LastUpdateAt: &lastUpdate,
	}, nil
}
