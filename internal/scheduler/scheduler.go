package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/recurra/internal/clock"
	"github.com/smallbiznis/recurra/internal/events"
	obsmetrics "github.com/smallbiznis/recurra/internal/observability/metrics"
	disputedomain "github.com/smallbiznis/recurra/internal/payment/dispute/domain"
	paymentdomain "github.com/smallbiznis/recurra/internal/payment/domain"
	"github.com/smallbiznis/recurra/internal/sequencer"
	subscriptiondomain "github.com/smallbiznis/recurra/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobProcessDue  = "process_due"
	JobAutoResolve = "auto_resolve"
	JobOutboxRelay = "outbox_relay"

	lockKeyPrefix = "recurra:scheduler:"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log             *zap.Logger
	Clock           clock.Clock
	GenID           *snowflake.Node
	SubscriptionSvc subscriptiondomain.Service
	PaymentSvc      paymentdomain.Service
	DisputeSvc      disputedomain.Service
	Relay           *events.Relay
	Locker          *sequencer.Locker            `optional:"true"`
	Metrics         *obsmetrics.SchedulerMetrics `optional:"true"`
	Config          Config                       `optional:"true"`
}

type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	genID           *snowflake.Node
	subscriptionSvc subscriptiondomain.Service
	paymentSvc      paymentdomain.Service
	disputeSvc      disputedomain.Service
	relay           *events.Relay
	locker          *sequencer.Locker
	metrics         *obsmetrics.SchedulerMetrics
	cron            *cron.Cron
}

type job struct {
	name      string
	schedule  string
	batchSize int
	run       func(ctx context.Context) error
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.GenID == nil || p.SubscriptionSvc == nil || p.PaymentSvc == nil || p.DisputeSvc == nil || p.Relay == nil {
		return nil, ErrInvalidConfig
	}
	log := p.Log.Named("scheduler")
	return &Scheduler{
		log:             log,
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		genID:           p.GenID,
		subscriptionSvc: p.SubscriptionSvc,
		paymentSvc:      p.PaymentSvc,
		disputeSvc:      p.DisputeSvc,
		relay:           p.Relay,
		locker:          p.Locker,
		metrics:         p.Metrics,
		cron:            newCron(log),
	}, nil
}

func newCron(log *zap.Logger) *cron.Cron {
	cronLog := cron.PrintfLogger(zap.NewStdLog(log))
	return cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
}

func (s *Scheduler) jobs() []job {
	return []job{
		{name: JobProcessDue, schedule: s.cfg.ProcessDueSchedule, batchSize: s.cfg.BatchSize, run: s.ProcessDueJob},
		{name: JobAutoResolve, schedule: s.cfg.AutoResolveSchedule, batchSize: s.cfg.BatchSize, run: s.AutoResolveJob},
		{name: JobOutboxRelay, schedule: s.cfg.OutboxRelaySchedule, batchSize: s.cfg.RelayBatchSize, run: s.OutboxRelayJob},
	}
}

// Start registers every enabled job with cron and starts it.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		j := j
		if _, err := s.cron.AddFunc(j.schedule, func() {
			if err := s.runJob(ctx, j); err != nil {
				s.log.Warn("scheduler job failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule %s %q: %w", j.name, j.schedule, err)
		}
		s.log.Info("scheduled job", zap.String("job", j.name), zap.String("schedule", j.schedule))
	}
	s.cron.Start()
	return nil
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs every enabled job a single time, in order.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var err error
	for _, j := range s.jobs() {
		if s.isJobEnabled(j.name) {
			err = errors.Join(err, s.runJob(ctx, j))
		}
	}
	return err
}

// RunJob runs the named job a single time.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	for _, j := range s.jobs() {
		if j.name == name {
			return s.runJob(ctx, j)
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

func (s *Scheduler) runJob(parent context.Context, j job) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	if s.locker != nil {
		key := lockKeyPrefix + j.name
		token, ok, err := s.locker.TryLock(ctx, key, s.cfg.JobTimeout)
		if err != nil {
			s.metrics.IncJobError(j.name, err)
			return fmt.Errorf("%s: %w", j.name, err)
		}
		if !ok {
			s.metrics.IncLockSkipped(j.name)
			s.log.Debug("job lease held elsewhere", zap.String("job", j.name))
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				s.log.Warn("failed to release job lease", zap.String("job", j.name), zap.Error(err))
			}
		}()
	}

	start := time.Now()
	ctx, run := s.startJobRun(ctx, j.name, j.batchSize)
	s.logJobStart(run)
	s.metrics.IncJobRun(j.name)

	err := j.run(ctx)
	s.metrics.ObserveJobDuration(j.name, time.Since(start))
	s.metrics.AddBatchProcessed(j.name, "processed", run.processedCount)
	s.metrics.AddBatchProcessed(j.name, "failed", run.failedCount)
	s.logJobFinish(run, err)
	if err == nil {
		return nil
	}

	s.metrics.IncJobError(j.name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out", zap.String("job", j.name), zap.Duration("timeout", s.cfg.JobTimeout))
		return nil
	}
	return fmt.Errorf("%s: %w", j.name, err)
}

func (s *Scheduler) isJobEnabled(name string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, name) {
			return true
		}
	}
	return false
}
