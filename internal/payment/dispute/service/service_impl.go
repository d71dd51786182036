package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/recurra/internal/authorization"
	"github.com/smallbiznis/recurra/internal/clock"
	"github.com/smallbiznis/recurra/internal/config"
	"github.com/smallbiznis/recurra/internal/events"
	obsmetrics "github.com/smallbiznis/recurra/internal/observability/metrics"
	disputedomain "github.com/smallbiznis/recurra/internal/payment/dispute/domain"
	paymentdomain "github.com/smallbiznis/recurra/internal/payment/domain"
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
	Engine           *config.EngineConfigHolder
	Repo             disputedomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	PaymentRepo      paymentdomain.Repository
	Payments         paymentdomain.Service
	Authz            authorization.Service
	Sequencer        *sequencer.Sequencer
	Outbox           *events.Outbox
	ObsMetrics       *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	clock            clock.Clock
	engine           *config.EngineConfigHolder
	repo             disputedomain.Repository
	subscriptionRepo subscriptiondomain.Repository
	paymentRepo      paymentdomain.Repository
	payments         paymentdomain.Service
	authz            authorization.Service
	sequencer        *sequencer.Sequencer
	outbox           *events.Outbox
	obsMetrics       *obsmetrics.Metrics
}

func NewService(p Params) disputedomain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("payment.dispute"),
		clock:            p.Clock,
		engine:           p.Engine,
		repo:             p.Repo,
		subscriptionRepo: p.SubscriptionRepo,
		paymentRepo:      p.PaymentRepo,
		payments:         p.Payments,
		authz:            p.Authz,
		sequencer:        p.Sequencer,
		outbox:           p.Outbox,
		obsMetrics:       p.ObsMetrics,
	}
}

// OpenDispute contests the latest successful charge of a subscription.
func (s *Service) OpenDispute(ctx context.Context, caller string, subscriptionID uint64, reason string) (*disputedomain.Dispute, error) {
	var opened *disputedomain.Dispute
	err := s.sequencer.Run(ctx, "dispute.open", func(tx *gorm.DB) error {
		subscription, err := s.subscriptionRepo.FindByID(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if err := s.authz.Authorize(ctx, caller, "", subscription.SubscriberID); err != nil {
			return err
		}

		existing, err := s.repo.FindOpenBySubscription(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if existing != nil {
			return disputedomain.ErrDisputeAlreadyOpen
		}

		charge, err := s.paymentRepo.FindLatestSuccessfulCharge(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if charge == nil {
			return paymentdomain.ErrPaymentNotFound
		}

		now := s.clock.Now()
		dispute := &disputedomain.Dispute{
			SubscriptionID: subscriptionID,
			PaymentID:      charge.ID,
			SubscriberID:   subscription.SubscriberID,
			MerchantID:     charge.MerchantID,
			AssetType:      charge.AssetType,
			Amount:         charge.Amount,
			Reason:         strings.TrimSpace(reason),
			Status:         disputedomain.DisputeStatusOpened,
			Resolution:     disputedomain.ResolutionNone,
			RefundAmount:   decimal.Zero,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.Insert(ctx, tx, dispute); err != nil {
			return err
		}
		opened = dispute
		return s.outbox.PublishTx(ctx, tx, disputeEvent(events.EventDisputeOpened, dispute))
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordDisputeTransition("opened")
	s.log.Info("dispute opened",
		zap.Uint64("dispute_id", opened.ID),
		zap.Uint64("subscription_id", opened.SubscriptionID),
		zap.Uint64("payment_id", opened.PaymentID),
	)
	return opened, nil
}

func (s *Service) SubmitEvidence(ctx context.Context, caller string, disputeID uint64, evidence string) (*disputedomain.Dispute, error) {
	evidence = strings.TrimSpace(evidence)
	if evidence == "" {
		return nil, disputedomain.ErrInvalidEvidence
	}

	var updated *disputedomain.Dispute
	err := s.mutate(ctx, "dispute.submit_evidence", disputeID, func(tx *gorm.DB, dispute *disputedomain.Dispute) (string, error) {
		subscriberErr := s.authz.Authorize(ctx, caller, "", dispute.SubscriberID)
		merchantErr := s.authz.Authorize(ctx, caller, "", dispute.MerchantID)
		if subscriberErr != nil && merchantErr != nil {
			return "", subscriberErr
		}
		if !dispute.IsOpen() {
			return "", disputedomain.ErrDisputeNotOpen
		}
		if subscriberErr == nil {
			dispute.SubscriberEvidence = disputedomain.AppendEvidence(dispute.SubscriberEvidence, evidence)
		} else {
			dispute.MerchantEvidence = disputedomain.AppendEvidence(dispute.MerchantEvidence, evidence)
		}
		dispute.Status = disputedomain.DisputeStatusEvidenceSubmitted
		updated = dispute
		return events.EventDisputeEvidenceSubmitted, nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordDisputeTransition("evidence_submitted")
	return updated, nil
}

// ResolveDispute records an arbitrator's decision. A refund is pulled from
// the merchant through the engine's allowance; when that transfer fails the
// dispute keeps its status.
func (s *Service) ResolveDispute(ctx context.Context, caller string, disputeID uint64, req disputedomain.ResolveRequest) (*disputedomain.Dispute, error) {
	if err := s.authz.Authorize(ctx, caller, authorization.RoleArbitrator, ""); err != nil {
		return nil, err
	}
	if !disputedomain.IsArbitratedResolution(req.Resolution) {
		return nil, disputedomain.ErrInvalidResolution
	}
	refund := req.RefundAmount
	if refund.IsNegative() || !refund.Equal(refund.Truncate(0)) {
		return nil, disputedomain.ErrInvalidRefund
	}
	if req.Resolution == disputedomain.ResolutionMerchantWins && !refund.IsZero() {
		return nil, disputedomain.ErrInvalidRefund
	}

	var resolved *disputedomain.Dispute
	err := s.mutate(ctx, "dispute.resolve", disputeID, func(tx *gorm.DB, dispute *disputedomain.Dispute) (string, error) {
		if !dispute.IsOpen() {
			return "", disputedomain.ErrDisputeNotOpen
		}
		if refund.GreaterThan(dispute.Amount) {
			return "", disputedomain.ErrInvalidRefund
		}
		if refund.IsPositive() {
			if err := s.payments.RefundTx(ctx, tx, dispute.ID, dispute.MerchantID, dispute.SubscriberID, dispute.AssetType, refund); err != nil {
				return "", err
			}
		}

		now := s.clock.Now()
		dispute.Status = disputedomain.DisputeStatusResolved
		dispute.Resolution = req.Resolution
		dispute.RefundAmount = refund
		dispute.ResolutionNotes = strings.TrimSpace(req.Notes)
		dispute.ResolverID = strings.TrimSpace(caller)
		dispute.ResolvedAt = &now
		resolved = dispute
		return events.EventDisputeResolved, nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordDisputeTransition("resolved")
	s.log.Info("dispute resolved",
		zap.Uint64("dispute_id", resolved.ID),
		zap.String("resolution", string(resolved.Resolution)),
		zap.String("refund_amount", resolved.RefundAmount.String()),
		zap.String("resolver_id", resolved.ResolverID),
	)
	return resolved, nil
}

func (s *Service) CancelDispute(ctx context.Context, caller string, disputeID uint64) (*disputedomain.Dispute, error) {
	var cancelled *disputedomain.Dispute
	err := s.mutate(ctx, "dispute.cancel", disputeID, func(tx *gorm.DB, dispute *disputedomain.Dispute) (string, error) {
		if err := s.authz.Authorize(ctx, caller, "", dispute.SubscriberID); err != nil {
			return "", err
		}
		if !dispute.IsOpen() {
			return "", disputedomain.ErrDisputeNotOpen
		}
		dispute.Status = disputedomain.DisputeStatusCancelled
		cancelled = dispute
		return events.EventDisputeCancelled, nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordDisputeTransition("cancelled")
	return cancelled, nil
}

func (s *Service) IsEligibleForAutoResolution(ctx context.Context, disputeID uint64) (bool, error) {
	dispute, err := s.GetDispute(ctx, disputeID)
	if err != nil {
		return false, err
	}
	return dispute.EligibleForAutoResolution(s.clock.Now(), s.engine.Get().DisputeResolutionTimeout), nil
}

// AutoResolveDispute settles an expired dispute in the merchant's favour
// without a refund.
func (s *Service) AutoResolveDispute(ctx context.Context, disputeID uint64) (*disputedomain.Dispute, error) {
	var resolved *disputedomain.Dispute
	err := s.mutate(ctx, "dispute.auto_resolve", disputeID, func(tx *gorm.DB, dispute *disputedomain.Dispute) (string, error) {
		now := s.clock.Now()
		if !dispute.EligibleForAutoResolution(now, s.engine.Get().DisputeResolutionTimeout) {
			return "", disputedomain.ErrNotEligible
		}
		dispute.Status = disputedomain.DisputeStatusResolved
		dispute.Resolution = disputedomain.ResolutionMerchantWins
		dispute.RefundAmount = decimal.Zero
		dispute.AutoResolved = true
		dispute.ResolvedAt = &now
		resolved = dispute
		return events.EventDisputeResolved, nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordDisputeTransition("auto_resolved")
	s.log.Info("dispute auto-resolved", zap.Uint64("dispute_id", resolved.ID))
	return resolved, nil
}

func (s *Service) GetDispute(ctx context.Context, disputeID uint64) (*disputedomain.Dispute, error) {
	dispute, err := s.repo.FindByID(ctx, s.db, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute == nil {
		return nil, disputedomain.ErrDisputeNotFound
	}
	return dispute, nil
}

func (s *Service) ListSubscriptionDisputes(ctx context.Context, subscriptionID uint64) ([]disputedomain.Dispute, error) {
	return s.repo.ListBySubscription(ctx, s.db, subscriptionID)
}

func (s *Service) ListAutoResolvable(ctx context.Context, limit int) ([]disputedomain.Dispute, error) {
	if limit <= 0 {
		limit = disputedomain.DefaultAutoResolveLimit
	}
	cutoff := s.clock.Now().Add(-s.engine.Get().DisputeResolutionTimeout)
	return s.repo.ListOpenCreatedBefore(ctx, s.db, cutoff, limit)
}

// mutate loads the dispute for update, applies fn and persists the result
// together with the event fn names.
func (s *Service) mutate(ctx context.Context, op string, disputeID uint64, fn func(tx *gorm.DB, dispute *disputedomain.Dispute) (string, error)) error {
	return s.sequencer.Run(ctx, op, func(tx *gorm.DB) error {
		dispute, err := s.repo.FindByIDForUpdate(ctx, tx, disputeID)
		if err != nil {
			return err
		}
		if dispute == nil {
			return disputedomain.ErrDisputeNotFound
		}

		eventType, err := fn(tx, dispute)
		if err != nil {
			return err
		}
		dispute.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, dispute); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, disputeEvent(eventType, dispute))
	})
}

func disputeEvent(eventType string, dispute *disputedomain.Dispute) events.Event {
	payload := map[string]any{
		"dispute_id":          dispute.ID,
		"subscription_id":     dispute.SubscriptionID,
		"payment_id":          dispute.PaymentID,
		"subscriber_id":       dispute.SubscriberID,
		"merchant_id":         dispute.MerchantID,
		"asset_type":          dispute.AssetType,
		"amount":              dispute.Amount.String(),
		"reason":              dispute.Reason,
		"status":              dispute.Status,
		"resolution":          dispute.Resolution,
		"subscriber_evidence": dispute.SubscriberEvidence,
		"merchant_evidence":   dispute.MerchantEvidence,
		"resolution_notes":    dispute.ResolutionNotes,
		"refund_amount":       dispute.RefundAmount.String(),
		"resolver_id":         dispute.ResolverID,
		"auto_resolved":       dispute.AutoResolved,
		"created_at":          dispute.CreatedAt,
	}
	if dispute.ResolvedAt != nil {
		payload["resolved_at"] = *dispute.ResolvedAt
	}
	return events.Event{
		Type:          eventType,
		AggregateType: events.AggregateDispute,
		AggregateID:   strconv.FormatUint(dispute.ID, 10),
		Payload:       payload,
	}
}
