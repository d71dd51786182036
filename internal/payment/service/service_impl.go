package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	assetdomain "github.com/smallbiznis/recurra/internal/asset/domain"
	"github.com/smallbiznis/recurra/internal/authorization"
	"github.com/smallbiznis/recurra/internal/clock"
	"github.com/smallbiznis/recurra/internal/config"
	creditdomain "github.com/smallbiznis/recurra/internal/credit/domain"
	"github.com/smallbiznis/recurra/internal/events"
	ledgerdomain "github.com/smallbiznis/recurra/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/recurra/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/recurra/internal/payment/domain"
	plandomain "github.com/smallbiznis/recurra/internal/plan/domain"
	riskdomain "github.com/smallbiznis/recurra/internal/risk/domain"
	"github.com/smallbiznis/recurra/internal/sequencer"
	subscriptiondomain "github.com/smallbiznis/recurra/internal/subscription/domain"
	"github.com/smallbiznis/recurra/pkg/db/pagination"
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
	Repo             paymentdomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	PlanRepo         plandomain.Repository
	Asset            assetdomain.Service
	Credit           creditdomain.Service
	Risk             riskdomain.Service
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
	feeCollector     string
	engine           *config.EngineConfigHolder
	repo             paymentdomain.Repository
	subscriptionRepo subscriptiondomain.Repository
	planRepo         plandomain.Repository
	asset            assetdomain.Service
	credit           creditdomain.Service
	risk             riskdomain.Service
	authz            authorization.Service
	sequencer        *sequencer.Sequencer
	outbox           *events.Outbox
	obsMetrics       *obsmetrics.Metrics
}

// NewService returns the concrete processor; it serves both as the payment
// service and as the subscription ledger's initial charger.
func NewService(p Params) *Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("payment.service"),
		clock:            p.Clock,
		engineAccount:    p.Config.EngineAccount,
		feeCollector:     p.Config.FeeCollector,
		engine:           p.Engine,
		repo:             p.Repo,
		subscriptionRepo: p.SubscriptionRepo,
		planRepo:         p.PlanRepo,
		asset:            p.Asset,
		credit:           p.Credit,
		risk:             p.Risk,
		authz:            p.Authz,
		sequencer:        p.Sequencer,
		outbox:           p.Outbox,
		obsMetrics:       p.ObsMetrics,
	}
}

func (s *Service) ProcessDuePayments(ctx context.Context, subscriptionIDs []uint64) ([]paymentdomain.BatchItemResult, error) {
	results := make([]paymentdomain.BatchItemResult, 0, len(subscriptionIDs))
	for _, id := range subscriptionIDs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result, record, err := s.processOne(ctx, id)
		if err != nil {
			s.log.Error("due payment aborted", zap.Uint64("subscription_id", id), zap.Error(err))
			result = paymentdomain.BatchItemResult{
				SubscriptionID: id,
				Status:         paymentdomain.BatchItemFailed,
				Reason:         err.Error(),
			}
		}
		if record != nil {
			s.observe(record)
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *Service) processOne(ctx context.Context, id uint64) (paymentdomain.BatchItemResult, *paymentdomain.PaymentRecord, error) {
	result := paymentdomain.BatchItemResult{SubscriptionID: id, Status: paymentdomain.BatchItemSkipped}
	var record *paymentdomain.PaymentRecord

	err := s.sequencer.Run(ctx, "payment.process_due", func(tx *gorm.DB) error {
		subscription, err := s.subscriptionRepo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		switch {
		case subscription == nil:
			result.Reason = subscriptiondomain.ErrSubscriptionNotFound.Error()
			return nil
		case !subscription.Active:
			result.Reason = subscriptiondomain.ErrSubscriptionInactive.Error()
			return nil
		case !subscription.IsDue(now):
			result.Reason = "not_due"
			return nil
		}

		plan, err := s.planRepo.FindByID(ctx, tx, subscription.PlanID)
		if err != nil {
			return err
		}
		if plan == nil {
			result.Reason = plandomain.ErrPlanNotFound.Error()
			return nil
		}

		fee, merchantAmount := paymentdomain.SplitFee(plan.Amount, s.engine.Get().ProtocolFeeBps)
		charge := s.newRecord(subscription, plan, paymentdomain.PaymentKindScheduled, fee, now)

		// The savepoint lets a failed pull roll back the partial transfers
		// while the failed record and credit penalty still commit.
		transferErr := tx.Transaction(func(inner *gorm.DB) error {
			return s.settleTx(ctx, inner, charge.Reference, subscription.SubscriberID, plan, fee, merchantAmount)
		})
		if transferErr != nil && !errors.Is(transferErr, assetdomain.ErrTransferFailed) {
			return transferErr
		}

		if transferErr == nil {
			paidAt := now
			subscription.LastPaymentAt = &paidAt
			subscription.NextPaymentAt = now.Add(plan.BillingPeriod())
			subscription.UpdatedAt = now
			if err := s.subscriptionRepo.UpdateSchedule(ctx, tx, subscription); err != nil {
				return err
			}
		} else {
			charge.Success = false
			charge.Fee = decimal.Zero
			charge.Note = transferErr.Error()
		}

		if err := s.appendTx(ctx, tx, charge, subscription); err != nil {
			return err
		}

		record = charge
		result.PaymentID = charge.ID
		if charge.Success {
			result.Status = paymentdomain.BatchItemCharged
		} else {
			result.Status = paymentdomain.BatchItemFailed
			result.Reason = charge.Note
		}
		return nil
	})
	if err != nil {
		return paymentdomain.BatchItemResult{}, nil, err
	}

	if record != nil {
		s.log.Info("due payment processed",
			zap.Uint64("subscription_id", id),
			zap.Uint64("payment_id", record.ID),
			zap.Bool("success", record.Success),
			zap.String("amount", record.Amount.String()),
		)
	}
	return result, record, nil
}

// ChargeInitialTx settles the first period of a new subscription. Any
// failure is returned so the caller's transaction rolls back entirely.
func (s *Service) ChargeInitialTx(ctx context.Context, tx *gorm.DB, subscription *subscriptiondomain.Subscription, plan *plandomain.Plan) error {
	if subscription == nil || plan == nil {
		return subscriptiondomain.ErrSubscriptionNotFound
	}

	now := s.clock.Now()
	fee, merchantAmount := paymentdomain.SplitFee(plan.Amount, s.engine.Get().ProtocolFeeBps)
	charge := s.newRecord(subscription, plan, paymentdomain.PaymentKindInitial, fee, now)

	if err := s.settleTx(ctx, tx, charge.Reference, subscription.SubscriberID, plan, fee, merchantAmount); err != nil {
		return err
	}
	if err := s.appendTx(ctx, tx, charge, subscription); err != nil {
		return err
	}

	s.observe(charge)
	return nil
}

func (s *Service) RecordExternalPayment(ctx context.Context, caller string, req paymentdomain.ExternalPaymentRequest) (*paymentdomain.PaymentRecord, error) {
	if err := s.authz.Authorize(ctx, caller, authorization.RoleProvider, ""); err != nil {
		return nil, err
	}
	req.AccountID = strings.TrimSpace(req.AccountID)
	req.AssetType = strings.TrimSpace(req.AssetType)
	if req.AccountID == "" {
		return nil, paymentdomain.ErrInvalidAccount
	}
	if req.AssetType == "" || req.Amount.IsNegative() || !req.Amount.Equal(req.Amount.Truncate(0)) {
		return nil, paymentdomain.ErrInvalidAmount
	}

	var stored *paymentdomain.PaymentRecord
	err := s.sequencer.Run(ctx, "payment.record_external", func(tx *gorm.DB) error {
		record := &paymentdomain.PaymentRecord{
			PayerID:    req.AccountID,
			AssetType:  req.AssetType,
			Amount:     req.Amount,
			Fee:        decimal.Zero,
			Success:    req.Success,
			Kind:       paymentdomain.PaymentKindExternal,
			Reference:  ulid.Make().String(),
			Note:       strings.TrimSpace(req.Note),
			OccurredAt: s.clock.Now(),
		}
		if err := s.repo.Insert(ctx, tx, record); err != nil {
			return err
		}
		if _, err := s.credit.RecordOutcomeTx(ctx, tx, record.PayerID, record.Success); err != nil {
			return err
		}

		payload := recordPayload(record)
		payload["provider"] = strings.TrimSpace(caller)
		stored = record
		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type:          events.EventPaymentRecorded,
			AggregateType: events.AggregatePayment,
			AggregateID:   strconv.FormatUint(record.ID, 10),
			Payload:       payload,
		})
	})
	if err != nil {
		return nil, err
	}

	s.observe(stored)
	s.log.Info("external payment recorded",
		zap.Uint64("payment_id", stored.ID),
		zap.String("account_id", stored.PayerID),
		zap.Bool("success", stored.Success),
	)
	return stored, nil
}

func (s *Service) RefundTx(ctx context.Context, tx *gorm.DB, disputeID uint64, merchantID string, subscriberID string, assetType string, amount decimal.Decimal) error {
	ref := assetdomain.TransferRef{
		SourceType: ledgerdomain.SourceTypeDisputeRefund,
		SourceID:   strconv.FormatUint(disputeID, 10),
	}
	return s.asset.TransferFromTx(ctx, tx, ref, s.engineAccount, merchantID, subscriberID, assetType, amount)
}

func (s *Service) GetPaymentHistory(ctx context.Context, subscriptionID uint64) ([]paymentdomain.PaymentRecord, error) {
	subscription, err := s.subscriptionRepo.FindByID(ctx, s.db, subscriptionID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return s.repo.ListBySubscription(ctx, s.db, subscriptionID)
}

func (s *Service) GetAccountPaymentHistory(ctx context.Context, accountID string) ([]paymentdomain.PaymentRecord, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, paymentdomain.ErrInvalidAccount
	}
	return s.repo.ListByAccount(ctx, s.db, accountID, 0, 0)
}

func (s *Service) RecentlyFailed(ctx context.Context, subscriptionIDs []uint64, since time.Time) ([]uint64, error) {
	return s.repo.ListFailedSince(ctx, s.db, subscriptionIDs, since)
}

func (s *Service) ListAccountPayments(ctx context.Context, accountID string, page pagination.Pagination) ([]paymentdomain.PaymentRecord, pagination.PageInfo, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, pagination.PageInfo{}, paymentdomain.ErrInvalidAccount
	}
	afterID, err := page.AfterID()
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	limit := page.Limit()
	records, err := s.repo.ListByAccount(ctx, s.db, accountID, afterID, limit+1)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	records, info := pagination.BuildPageInfo(records, limit, func(r paymentdomain.PaymentRecord) uint64 { return r.ID })
	return records, info, nil
}

func (s *Service) newRecord(subscription *subscriptiondomain.Subscription, plan *plandomain.Plan, kind paymentdomain.PaymentKind, fee decimal.Decimal, now time.Time) *paymentdomain.PaymentRecord {
	return &paymentdomain.PaymentRecord{
		SubscriptionID: subscription.ID,
		PayerID:        subscription.SubscriberID,
		MerchantID:     plan.MerchantID,
		AssetType:      plan.AssetType,
		Amount:         plan.Amount,
		Fee:            fee,
		Success:        true,
		Kind:           kind,
		Reference:      ulid.Make().String(),
		OccurredAt:     now,
	}
}

// settleTx pulls the full amount into custody, then pays out the merchant
// share and the protocol fee.
func (s *Service) settleTx(ctx context.Context, tx *gorm.DB, reference string, subscriberID string, plan *plandomain.Plan, fee decimal.Decimal, merchantAmount decimal.Decimal) error {
	pull := assetdomain.TransferRef{SourceType: ledgerdomain.SourceTypePayment, SourceID: reference}
	if err := s.asset.TransferFromTx(ctx, tx, pull, s.engineAccount, subscriberID, s.engineAccount, plan.AssetType, plan.Amount); err != nil {
		return err
	}
	if merchantAmount.IsPositive() {
		payout := assetdomain.TransferRef{SourceType: ledgerdomain.SourceTypeMerchantPayout, SourceID: reference}
		if err := s.asset.TransferTx(ctx, tx, payout, s.engineAccount, plan.MerchantID, plan.AssetType, merchantAmount); err != nil {
			return err
		}
	}
	if fee.IsPositive() {
		protocolFee := assetdomain.TransferRef{SourceType: ledgerdomain.SourceTypeProtocolFee, SourceID: reference}
		if err := s.asset.TransferTx(ctx, tx, protocolFee, s.engineAccount, s.feeCollector, plan.AssetType, fee); err != nil {
			return err
		}
	}
	return nil
}

// appendTx stores the record and applies its side effects: the credit
// outcome, the refreshed prediction and the outbox event.
func (s *Service) appendTx(ctx context.Context, tx *gorm.DB, record *paymentdomain.PaymentRecord, subscription *subscriptiondomain.Subscription) error {
	if err := s.repo.Insert(ctx, tx, record); err != nil {
		return err
	}
	if _, err := s.credit.RecordOutcomeTx(ctx, tx, record.PayerID, record.Success); err != nil {
		return err
	}
	if _, err := s.risk.RefreshTx(ctx, tx, record.SubscriptionID); err != nil {
		return err
	}

	eventType := events.EventPaymentProcessed
	if !record.Success {
		eventType = events.EventPaymentFailed
	}
	payload := recordPayload(record)
	payload["next_payment_at"] = subscription.NextPaymentAt
	if subscription.LastPaymentAt != nil {
		payload["last_payment_at"] = *subscription.LastPaymentAt
	}
	return s.outbox.PublishTx(ctx, tx, events.Event{
		Type:          eventType,
		AggregateType: events.AggregatePayment,
		AggregateID:   strconv.FormatUint(record.ID, 10),
		Payload:       payload,
	})
}

func (s *Service) observe(record *paymentdomain.PaymentRecord) {
	if s.obsMetrics == nil || record == nil {
		return
	}
	amount, _ := record.Amount.Float64()
	s.obsMetrics.RecordPayment(string(record.Kind), record.Success, record.AssetType, amount)
}

func recordPayload(record *paymentdomain.PaymentRecord) map[string]any {
	return map[string]any{
		"payment_id":      record.ID,
		"subscription_id": record.SubscriptionID,
		"payer_id":        record.PayerID,
		"merchant_id":     record.MerchantID,
		"asset_type":      record.AssetType,
		"amount":          record.Amount.String(),
		"fee":             record.Fee.String(),
		"success":         record.Success,
		"kind":            record.Kind,
		"reference":       record.Reference,
		"note":            record.Note,
		"occurred_at":     record.OccurredAt,
	}
}
