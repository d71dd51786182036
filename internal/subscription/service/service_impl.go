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
	subscriptiondomain "github.com/smallbiznis/recurra/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      subscriptiondomain.Repository
	PlanRepo  plandomain.Repository
	Charger   subscriptiondomain.InitialCharger
	Authz     authorization.Service
	Sequencer *sequencer.Sequencer
	Outbox    *events.Outbox
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      subscriptiondomain.Repository
	planRepo  plandomain.Repository
	charger   subscriptiondomain.InitialCharger
	authz     authorization.Service
	sequencer *sequencer.Sequencer
	outbox    *events.Outbox
}

func NewService(p Params) subscriptiondomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("subscription.service"),
		clock:     p.Clock,
		repo:      p.Repo,
		planRepo:  p.PlanRepo,
		charger:   p.Charger,
		authz:     p.Authz,
		sequencer: p.Sequencer,
		outbox:    p.Outbox,
	}
}

// Subscribe enrolls caller in a plan. Without a trial the first period is
// charged in the same transaction, and a failed charge leaves no trace.
func (s *Service) Subscribe(ctx context.Context, caller string, planID uint64) (*subscriptiondomain.Subscription, error) {
	if err := s.authz.Authorize(ctx, caller, "", ""); err != nil {
		return nil, err
	}
	caller = strings.TrimSpace(caller)

	var created *subscriptiondomain.Subscription
	err := s.sequencer.Run(ctx, "subscription.subscribe", func(tx *gorm.DB) error {
		plan, err := s.planRepo.FindByID(ctx, tx, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return plandomain.ErrPlanNotFound
		}
		if !plan.Active {
			return plandomain.ErrPlanInactive
		}

		now := s.clock.Now()
		subscription := &subscriptiondomain.Subscription{
			PlanID:       plan.ID,
			SubscriberID: caller,
			StartAt:      now,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		trial := plan.TrialPeriod() > 0
		if trial {
			subscription.NextPaymentAt = now.Add(plan.TrialPeriod())
		} else {
			paidAt := now
			subscription.LastPaymentAt = &paidAt
			subscription.NextPaymentAt = now.Add(plan.BillingPeriod())
		}

		if err := s.repo.Insert(ctx, tx, subscription); err != nil {
			return err
		}
		if !trial {
			if err := s.charger.ChargeInitialTx(ctx, tx, subscription, plan); err != nil {
				return err
			}
		}

		created = subscription
		return s.outbox.PublishTx(ctx, tx, subscriptionEvent(events.EventSubscriptionCreated, subscription))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription created",
		zap.Uint64("subscription_id", created.ID),
		zap.Uint64("plan_id", created.PlanID),
		zap.String("subscriber_id", created.SubscriberID),
		zap.Time("next_payment_at", created.NextPaymentAt),
	)
	return created, nil
}

// CancelSubscription stops future charges. Already settled periods are not
// refunded.
func (s *Service) CancelSubscription(ctx context.Context, caller string, id uint64) (*subscriptiondomain.Subscription, error) {
	var cancelled *subscriptiondomain.Subscription
	err := s.sequencer.Run(ctx, "subscription.cancel", func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if err := s.authz.Authorize(ctx, caller, "", subscription.SubscriberID); err != nil {
			return err
		}
		if !subscription.Active {
			return subscriptiondomain.ErrSubscriptionInactive
		}

		now := s.clock.Now()
		if err := s.repo.Cancel(ctx, tx, subscription.ID, now); err != nil {
			return err
		}
		subscription.Active = false
		subscription.CancelledAt = &now
		subscription.UpdatedAt = now
		cancelled = subscription
		return s.outbox.PublishTx(ctx, tx, subscriptionEvent(events.EventSubscriptionCancelled, subscription))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription cancelled", zap.Uint64("subscription_id", cancelled.ID))
	return cancelled, nil
}

func (s *Service) GetSubscription(ctx context.Context, id uint64) (*subscriptiondomain.Subscription, error) {
	subscription, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return subscription, nil
}

func (s *Service) GetDueSubscriptions(ctx context.Context, limit int) ([]subscriptiondomain.Subscription, error) {
	return s.GetDueSubscriptionsAfter(ctx, 0, limit)
}

func (s *Service) GetDueSubscriptionsAfter(ctx context.Context, afterID uint64, limit int) ([]subscriptiondomain.Subscription, error) {
	if limit <= 0 {
		limit = subscriptiondomain.DefaultDueLimit
	}
	return s.repo.ListActiveDueBefore(ctx, s.db, s.clock.Now(), afterID, limit)
}

func (s *Service) ListSubscriberSubscriptions(ctx context.Context, subscriberID string) ([]subscriptiondomain.Subscription, error) {
	return s.repo.ListBySubscriber(ctx, s.db, strings.TrimSpace(subscriberID))
}

func (s *Service) ListPlanSubscriptions(ctx context.Context, planID uint64) ([]subscriptiondomain.Subscription, error) {
	return s.repo.ListByPlan(ctx, s.db, planID)
}

func subscriptionEvent(eventType string, subscription *subscriptiondomain.Subscription) events.Event {
	payload := map[string]any{
		"subscription_id": subscription.ID,
		"plan_id":         subscription.PlanID,
		"subscriber_id":   subscription.SubscriberID,
		"start_at":        subscription.StartAt,
		"next_payment_at": subscription.NextPaymentAt,
		"active":          subscription.Active,
	}
	if subscription.LastPaymentAt != nil {
		payload["last_payment_at"] = *subscription.LastPaymentAt
	}
	if subscription.CancelledAt != nil {
		payload["cancelled_at"] = *subscription.CancelledAt
	}
	return events.Event{
		Type:          eventType,
		AggregateType: events.AggregateSubscription,
		AggregateID:   strconv.FormatUint(subscription.ID, 10),
		Payload:       payload,
	}
}
