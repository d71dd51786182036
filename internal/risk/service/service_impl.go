package service

import (
	"context"
	"strconv"

	assetdomain "github.com/smallbiznis/recurra/internal/asset/domain"
	"github.com/smallbiznis/recurra/internal/authorization"
	"github.com/smallbiznis/recurra/internal/clock"
	"github.com/smallbiznis/recurra/internal/config"
	creditdomain "github.com/smallbiznis/recurra/internal/credit/domain"
	"github.com/smallbiznis/recurra/internal/events"
	obsmetrics "github.com/smallbiznis/recurra/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/recurra/internal/payment/domain"
	plandomain "github.com/smallbiznis/recurra/internal/plan/domain"
	riskdomain "github.com/smallbiznis/recurra/internal/risk/domain"
	"github.com/smallbiznis/recurra/internal/sequencer"
	subscriptiondomain "github.com/smallbiznis/recurra/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	Clock            clock.Clock
	Config           config.Config
	Engine           *config.EngineConfigHolder
	Repo             riskdomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	PlanRepo         plandomain.Repository
	PaymentRepo      paymentdomain.Repository
	Credit           creditdomain.Service
	Asset            assetdomain.Service
	Authz            authorization.Service
	Sequencer        *sequencer.Sequencer
	Outbox           *events.Outbox
	ObsMetrics       *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	clock            clock.Clock
	engineAccount    string
	engine           *config.EngineConfigHolder
	repo             riskdomain.Repository
	subscriptionRepo subscriptiondomain.Repository
	planRepo         plandomain.Repository
	paymentRepo      paymentdomain.Repository
	credit           creditdomain.Service
	asset            assetdomain.Service
	authz            authorization.Service
	sequencer        *sequencer.Sequencer
	outbox           *events.Outbox
	obsMetrics       *obsmetrics.Metrics
}

func NewService(p Params) riskdomain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("risk.service"),
		clock:            p.Clock,
		engineAccount:    p.Config.EngineAccount,
		engine:           p.Engine,
		repo:             p.Repo,
		subscriptionRepo: p.SubscriptionRepo,
		planRepo:         p.PlanRepo,
		paymentRepo:      p.PaymentRepo,
		credit:           p.Credit,
		asset:            p.Asset,
		authz:            p.Authz,
		sequencer:        p.Sequencer,
		outbox:           p.Outbox,
		obsMetrics:       p.ObsMetrics,
	}
}

func (s *Service) CalculateLikelihood(ctx context.Context, subscriptionID uint64) (*riskdomain.Prediction, error) {
	var prediction *riskdomain.Prediction
	err := s.sequencer.Run(ctx, "risk.calculate", func(tx *gorm.DB) error {
		var err error
		prediction, err = s.RefreshTx(ctx, tx, subscriptionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return prediction, nil
}

// RefreshTx stores a computed estimate unless a fresh oracle value exists.
func (s *Service) RefreshTx(ctx context.Context, tx *gorm.DB, subscriptionID uint64) (*riskdomain.Prediction, error) {
	subscription, err := s.subscriptionRepo.FindByID(ctx, tx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}

	stored, err := s.repo.Find(ctx, tx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if stored.FreshOracle(s.clock.Now(), s.engine.Get().OracleTTL) {
		return stored, nil
	}

	prediction, err := s.compute(ctx, tx, subscription)
	if err != nil {
		return nil, err
	}
	if err := s.storeTx(ctx, tx, prediction); err != nil {
		return nil, err
	}
	return prediction, nil
}

// UpdatePrediction stores an oracle-provided estimate.
func (s *Service) UpdatePrediction(ctx context.Context, caller string, subscriptionID uint64, likelihood int, factors string) (*riskdomain.Prediction, error) {
	if err := s.authz.Authorize(ctx, caller, authorization.RoleOracle, ""); err != nil {
		return nil, err
	}
	if likelihood < riskdomain.MinLikelihood || likelihood > riskdomain.MaxLikelihood {
		return nil, riskdomain.ErrInvalidLikelihood
	}

	var prediction *riskdomain.Prediction
	err := s.sequencer.Run(ctx, "risk.update_prediction", func(tx *gorm.DB) error {
		subscription, err := s.subscriptionRepo.FindByID(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		prediction = &riskdomain.Prediction{
			SubscriptionID: subscriptionID,
			Likelihood:     likelihood,
			RiskLevel:      riskdomain.RiskLevelFor(likelihood),
			Factors:        factors,
			Provenance:     riskdomain.ProvenanceOracleSet,
			LastUpdatedAt:  s.clock.Now(),
		}
		return s.storeTx(ctx, tx, prediction)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("prediction set by oracle",
		zap.Uint64("subscription_id", subscriptionID),
		zap.Int("likelihood", likelihood),
		zap.String("oracle", caller),
	)
	return prediction, nil
}

func (s *Service) GetPrediction(ctx context.Context, subscriptionID uint64) (*riskdomain.Prediction, error) {
	subscription, err := s.subscriptionRepo.FindByID(ctx, s.db, subscriptionID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return s.effective(ctx, subscription)
}

func (s *Service) GetHighRiskSubscriptions(ctx context.Context, limit int) ([]riskdomain.Prediction, error) {
	if limit <= 0 {
		limit = riskdomain.DefaultHighRiskLimit
	}
	horizon := s.clock.Now().Add(s.engine.Get().NearDueWindow)
	candidates, err := s.subscriptionRepo.ListActiveDueBefore(ctx, s.db, horizon, 0, 0)
	if err != nil {
		return nil, err
	}

	out := make([]riskdomain.Prediction, 0)
	for i := range candidates {
		prediction, err := s.effective(ctx, &candidates[i])
		if err != nil {
			return nil, err
		}
		if prediction.RiskLevel != riskdomain.RiskLevelHigh {
			continue
		}
		out = append(out, *prediction)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// effective returns the stored prediction, or a computed one that is not
// persisted. An oracle value past its TTL no longer counts as stored.
func (s *Service) effective(ctx context.Context, subscription *subscriptiondomain.Subscription) (*riskdomain.Prediction, error) {
	stored, err := s.repo.Find(ctx, s.db, subscription.ID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		expired := stored.Provenance == riskdomain.ProvenanceOracleSet &&
			!stored.FreshOracle(s.clock.Now(), s.engine.Get().OracleTTL)
		if !expired {
			return stored, nil
		}
	}
	return s.compute(ctx, s.db, subscription)
}

func (s *Service) compute(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) (*riskdomain.Prediction, error) {
	plan, err := s.planRepo.FindByID(ctx, db, subscription.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrPlanNotFound
	}
	score, err := s.credit.GetScoreTx(ctx, db, subscription.SubscriberID)
	if err != nil {
		return nil, err
	}
	stats, err := s.paymentRepo.HistoryStats(ctx, db, subscription.ID)
	if err != nil {
		return nil, err
	}
	balance, err := s.asset.BalanceOfTx(ctx, db, subscription.SubscriberID, plan.AssetType)
	if err != nil {
		return nil, err
	}
	allowance, err := s.asset.AllowanceOfTx(ctx, db, subscription.SubscriberID, s.engineAccount, plan.AssetType)
	if err != nil {
		return nil, err
	}

	cfg := s.engine.Get()
	likelihood, factors := riskdomain.Estimate(riskdomain.Signals{
		DecayedCredit: score.Decayed,
		Total:         stats.Total,
		Succeeded:     stats.Succeeded,
		Balance:       balance,
		Allowance:     allowance,
		PlanAmount:    plan.Amount,
	}, riskdomain.Weights{
		Credit:  cfg.RiskWeights.Credit,
		History: cfg.RiskWeights.History,
		Funding: cfg.RiskWeights.Funding,
	})

	return &riskdomain.Prediction{
		SubscriptionID: subscription.ID,
		Likelihood:     likelihood,
		RiskLevel:      riskdomain.RiskLevelFor(likelihood),
		Factors:        factors,
		Provenance:     riskdomain.ProvenanceComputed,
		LastUpdatedAt:  s.clock.Now(),
	}, nil
}

func (s *Service) storeTx(ctx context.Context, tx *gorm.DB, prediction *riskdomain.Prediction) error {
	if err := s.repo.Upsert(ctx, tx, prediction); err != nil {
		return err
	}
	if err := s.outbox.PublishTx(ctx, tx, events.Event{
		Type:          events.EventPredictionUpdated,
		AggregateType: events.AggregatePrediction,
		AggregateID:   strconv.FormatUint(prediction.SubscriptionID, 10),
		Payload: map[string]any{
			"subscription_id": prediction.SubscriptionID,
			"likelihood":      prediction.Likelihood,
			"risk_level":      prediction.RiskLevel,
			"factors":         prediction.Factors,
			"provenance":      prediction.Provenance,
			"last_updated_at": prediction.LastUpdatedAt,
		},
	}); err != nil {
		return err
	}
	s.obsMetrics.RecordPrediction(string(prediction.Provenance), string(prediction.RiskLevel))
	return nil
}
