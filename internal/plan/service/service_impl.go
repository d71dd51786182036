package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/smallbiznis/recurra/internal/authorization"
	"github.com/smallbiznis/recurra/internal/clock"
	"github.com/smallbiznis/recurra/internal/events"
	plandomain "github.com/smallbiznis/recurra/internal/plan/domain"
	"github.com/smallbiznis/recurra/internal/sequencer"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      plandomain.Repository
	Authz     authorization.Service
	Sequencer *sequencer.Sequencer
	Outbox    *events.Outbox
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      plandomain.Repository
	authz     authorization.Service
	sequencer *sequencer.Sequencer
	outbox    *events.Outbox
}

func NewService(p Params) plandomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("plan.service"),
		clock:     p.Clock,
		repo:      p.Repo,
		authz:     p.Authz,
		sequencer: p.Sequencer,
		outbox:    p.Outbox,
	}
}

func (s *Service) CreatePlan(ctx context.Context, caller string, req plandomain.CreatePlanRequest) (*plandomain.Plan, error) {
	if err := s.authz.Authorize(ctx, caller, authorization.RoleMerchant, ""); err != nil {
		return nil, err
	}
	req.AssetType = strings.TrimSpace(req.AssetType)
	if err := plandomain.ValidateTerms(req, req.Amount); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	plan := &plandomain.Plan{
		MerchantID:           strings.TrimSpace(caller),
		AssetType:            req.AssetType,
		Amount:               req.Amount,
		BillingPeriodSeconds: req.BillingPeriodSeconds,
		TrialPeriodSeconds:   req.TrialPeriodSeconds,
		Active:               true,
		Metadata:             req.Metadata,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err := s.sequencer.Run(ctx, "plan.create", func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, plan); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, planEvent(events.EventPlanCreated, plan))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("plan created",
		zap.Uint64("plan_id", plan.ID),
		zap.String("merchant_id", plan.MerchantID),
		zap.String("asset_type", plan.AssetType),
	)
	return plan, nil
}

// UpdatePlan changes terms for future charges only; existing schedules keep
// their next payment time.
func (s *Service) UpdatePlan(ctx context.Context, caller string, req plandomain.UpdatePlanRequest) (*plandomain.Plan, error) {
	var updated *plandomain.Plan
	err := s.sequencer.Run(ctx, "plan.update", func(tx *gorm.DB) error {
		plan, err := s.repo.FindByIDForUpdate(ctx, tx, req.PlanID)
		if err != nil {
			return err
		}
		if plan == nil {
			return plandomain.ErrPlanNotFound
		}
		if err := s.authz.Authorize(ctx, caller, "", plan.MerchantID); err != nil {
			return err
		}
		if err := plandomain.ValidateTerms(req, req.Amount); err != nil {
			return err
		}

		plan.Active = req.Active
		plan.Amount = req.Amount
		plan.BillingPeriodSeconds = req.BillingPeriodSeconds
		plan.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, plan); err != nil {
			return err
		}
		updated = plan
		return s.outbox.PublishTx(ctx, tx, planEvent(events.EventPlanUpdated, plan))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("plan updated", zap.Uint64("plan_id", updated.ID), zap.Bool("active", updated.Active))
	return updated, nil
}

func (s *Service) GetPlan(ctx context.Context, id uint64) (*plandomain.Plan, error) {
	plan, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrPlanNotFound
	}
	return plan, nil
}

func (s *Service) ListMerchantPlans(ctx context.Context, merchantID string) ([]plandomain.Plan, error) {
	return s.repo.ListByMerchant(ctx, s.db, strings.TrimSpace(merchantID))
}

func planEvent(eventType string, plan *plandomain.Plan) events.Event {
	return events.Event{
		Type:          eventType,
		AggregateType: events.AggregatePlan,
		AggregateID:   strconv.FormatUint(plan.ID, 10),
		Payload: map[string]any{
			"plan_id":                plan.ID,
			"merchant_id":            plan.MerchantID,
			"asset_type":             plan.AssetType,
			"amount":                 plan.Amount.String(),
			"billing_period_seconds": plan.BillingPeriodSeconds,
			"trial_period_seconds":   plan.TrialPeriodSeconds,
			"active":                 plan.Active,
		},
	}
}
