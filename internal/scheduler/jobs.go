package scheduler

import (
	"context"

	paymentdomain "github.com/smallbiznis/recurra/internal/payment/domain"
	"go.uber.org/zap"
)

// ProcessDueJob walks the whole due set by ascending id. Subscriptions with
// a failed scheduled charge inside the retry backoff are skipped, so unfunded
// accounts neither hold back later subscriptions nor take a credit penalty on
// every tick.
func (s *Scheduler) ProcessDueJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	since := s.clock.Now().Add(-s.cfg.RetryBackoff)

	var afterID uint64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		due, err := s.subscriptionSvc.GetDueSubscriptionsAfter(ctx, afterID, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}
		afterID = due[len(due)-1].ID

		ids := make([]uint64, 0, len(due))
		for _, sub := range due {
			ids = append(ids, sub.ID)
		}
		backoff, err := s.paymentSvc.RecentlyFailed(ctx, ids, since)
		if err != nil {
			return err
		}
		if ids = withoutIDs(ids, backoff); len(ids) > 0 {
			if err := s.chargeDue(ctx, run, ids); err != nil {
				return err
			}
		}

		if len(due) < s.cfg.BatchSize {
			return nil
		}
	}
}

func (s *Scheduler) chargeDue(ctx context.Context, run *jobRun, ids []uint64) error {
	results, err := s.paymentSvc.ProcessDuePayments(ctx, ids)
	for _, result := range results {
		switch result.Status {
		case paymentdomain.BatchItemCharged:
			run.AddProcessed(1)
		case paymentdomain.BatchItemFailed:
			run.AddFailed(1)
			s.log.Info("scheduled charge failed",
				zap.Uint64("subscription_id", result.SubscriptionID),
				zap.String("reason", result.Reason),
			)
		}
	}
	return err
}

func withoutIDs(ids, drop []uint64) []uint64 {
	if len(drop) == 0 {
		return ids
	}
	skip := make(map[uint64]struct{}, len(drop))
	for _, id := range drop {
		skip[id] = struct{}{}
	}
	kept := ids[:0]
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			kept = append(kept, id)
		}
	}
	return kept
}

// AutoResolveJob settles disputes past the resolution timeout. Eligibility
// is re-checked per dispute, so one resolved in the meantime is counted as
// failed and left alone.
func (s *Scheduler) AutoResolveJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	disputes, err := s.disputeSvc.ListAutoResolvable(ctx, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, d := range disputes {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.disputeSvc.AutoResolveDispute(ctx, d.ID); err != nil {
			run.AddFailed(1)
			s.log.Warn("auto resolution failed", zap.Uint64("dispute_id", d.ID), zap.Error(err))
			continue
		}
		run.AddProcessed(1)
	}
	return nil
}

// OutboxRelayJob drains pending events until a short batch or a publish
// failure.
func (s *Scheduler) OutboxRelayJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		published, err := s.relay.RunOnce(ctx, s.cfg.RelayBatchSize)
		run.AddProcessed(published)
		if err != nil {
			return err
		}
		if published < s.cfg.RelayBatchSize {
			return nil
		}
	}
}
