// Package testutil wires the engine's services over an in-memory sqlite
// database for package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	assetdomain "github.com/smallbiznis/recurra/internal/asset/domain"
	assetrepo "github.com/smallbiznis/recurra/internal/asset/repository"
	assetservice "github.com/smallbiznis/recurra/internal/asset/service"
	"github.com/smallbiznis/recurra/internal/authorization"
	"github.com/smallbiznis/recurra/internal/clock"
	"github.com/smallbiznis/recurra/internal/config"
	creditdomain "github.com/smallbiznis/recurra/internal/credit/domain"
	creditrepo "github.com/smallbiznis/recurra/internal/credit/repository"
	creditservice "github.com/smallbiznis/recurra/internal/credit/service"
	"github.com/smallbiznis/recurra/internal/events"
	ledgerdomain "github.com/smallbiznis/recurra/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/recurra/internal/ledger/service"
	"github.com/smallbiznis/recurra/internal/migration"
	obsmetrics "github.com/smallbiznis/recurra/internal/observability/metrics"
	disputedomain "github.com/smallbiznis/recurra/internal/payment/dispute/domain"
	disputerepo "github.com/smallbiznis/recurra/internal/payment/dispute/repository"
	disputeservice "github.com/smallbiznis/recurra/internal/payment/dispute/service"
	paymentdomain "github.com/smallbiznis/recurra/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/recurra/internal/payment/repository"
	paymentservice "github.com/smallbiznis/recurra/internal/payment/service"
	plandomain "github.com/smallbiznis/recurra/internal/plan/domain"
	planrepo "github.com/smallbiznis/recurra/internal/plan/repository"
	planservice "github.com/smallbiznis/recurra/internal/plan/service"
	riskdomain "github.com/smallbiznis/recurra/internal/risk/domain"
	riskrepo "github.com/smallbiznis/recurra/internal/risk/repository"
	riskservice "github.com/smallbiznis/recurra/internal/risk/service"
	"github.com/smallbiznis/recurra/internal/sequencer"
	subscriptiondomain "github.com/smallbiznis/recurra/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/recurra/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/recurra/internal/subscription/service"
	"github.com/smallbiznis/recurra/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const (
	Admin      = "admin"
	Merchant   = "merchant-1"
	Subscriber = "alice"
	Arbitrator = "arbiter"
	Oracle     = "oracle-1"
	Provider   = "provider-1"
	Engine     = "engine"
	FeeWallet  = "fee-collector"
	Asset      = "USDC"
)

// Epoch is the fake clock's starting instant.
var Epoch = time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)

// NewDB opens a private in-memory sqlite database with the full schema.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	conn, err := db.Open(db.Config{
		Type: "sqlite",
		Path: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

func Config() config.Config {
	return config.Config{
		AppName:         "recurra-test",
		Environment:     "test",
		EngineAccount:   Engine,
		FeeCollector:    FeeWallet,
		BootstrapAdmins: []string{Admin},
	}
}

// Harness is a fully wired engine with a fake clock.
type Harness struct {
	DB        *gorm.DB
	Log       *zap.Logger
	Clock     *clock.FakeClock
	Config    config.Config
	Engine    *config.EngineConfigHolder
	GenID     *snowflake.Node
	Metrics   *obsmetrics.Metrics
	Registry  *prometheus.Registry
	Sequencer *sequencer.Sequencer
	Outbox    *events.Outbox
	Enforcer  *casbin.SyncedEnforcer

	Authz         authorization.Service
	Ledger        ledgerdomain.Service
	Assets        assetdomain.Service
	Plans         plandomain.Service
	Subscriptions subscriptiondomain.Service
	Payments      paymentdomain.Service
	Credit        creditdomain.Service
	Risk          riskdomain.Service
	Disputes      disputedomain.Service

	PlanRepo         plandomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	PaymentRepo      paymentdomain.Repository
	PredictionRepo   riskdomain.Repository
}

// New wires every service the way the fx graph does and grants the
// standard test roles.
func New(t testing.TB) *Harness {
	t.Helper()

	h := &Harness{
		DB:       NewDB(t),
		Log:      zaptest.NewLogger(t),
		Clock:    clock.NewFakeClock(Epoch),
		Config:   Config(),
		Engine:   config.NewStaticEngineConfig(config.DefaultEngineConfig()),
		Registry: prometheus.NewRegistry(),
	}

	var err error
	h.GenID, err = snowflake.NewNode(1)
	require.NoError(t, err)
	h.Metrics, err = obsmetrics.New(obsmetrics.Config{ServiceName: "recurra-test", Environment: "test"}, h.Registry)
	require.NoError(t, err)

	h.Sequencer = sequencer.New(sequencer.Params{DB: h.DB, Log: h.Log})
	h.Outbox = events.NewOutbox(events.OutboxParams{Log: h.Log, GenID: h.GenID, Clock: h.Clock})

	h.Enforcer, err = authorization.NewEnforcer(h.DB)
	require.NoError(t, err)
	h.Authz, err = authorization.NewService(authorization.Params{
		DB:        h.DB,
		Log:       h.Log,
		Config:    h.Config,
		Enforcer:  h.Enforcer,
		Sequencer: h.Sequencer,
		Outbox:    h.Outbox,
	})
	require.NoError(t, err)

	h.Ledger = ledgerservice.NewService(ledgerservice.Params{
		DB:         h.DB,
		Log:        h.Log,
		GenID:      h.GenID,
		Clock:      h.Clock,
		ObsMetrics: h.Metrics,
	})
	h.Assets = assetservice.NewService(assetservice.Params{
		DB:        h.DB,
		Log:       h.Log,
		Clock:     h.Clock,
		Repo:      assetrepo.Provide(),
		Ledger:    h.Ledger,
		Authz:     h.Authz,
		Sequencer: h.Sequencer,
		Outbox:    h.Outbox,
	})

	h.PlanRepo = planrepo.Provide()
	h.SubscriptionRepo = subscriptionrepo.Provide()
	h.PaymentRepo = paymentrepo.Provide()
	h.PredictionRepo = riskrepo.Provide()

	h.Plans = planservice.NewService(planservice.Params{
		DB:        h.DB,
		Log:       h.Log,
		Clock:     h.Clock,
		Repo:      h.PlanRepo,
		Authz:     h.Authz,
		Sequencer: h.Sequencer,
		Outbox:    h.Outbox,
	})
	h.Credit = creditservice.NewService(creditservice.Params{
		DB:         h.DB,
		Log:        h.Log,
		Clock:      h.Clock,
		Engine:     h.Engine,
		Repo:       creditrepo.Provide(),
		Outbox:     h.Outbox,
		ObsMetrics: h.Metrics,
	})
	h.Risk = riskservice.NewService(riskservice.Params{
		DB:               h.DB,
		Log:              h.Log,
		Clock:            h.Clock,
		Config:           h.Config,
		Engine:           h.Engine,
		Repo:             h.PredictionRepo,
		SubscriptionRepo: h.SubscriptionRepo,
		PlanRepo:         h.PlanRepo,
		PaymentRepo:      h.PaymentRepo,
		Credit:           h.Credit,
		Asset:            h.Assets,
		Authz:            h.Authz,
		Sequencer:        h.Sequencer,
		Outbox:           h.Outbox,
		ObsMetrics:       h.Metrics,
	})
	payments := paymentservice.NewService(paymentservice.Params{
		DB:               h.DB,
		Log:              h.Log,
		Clock:            h.Clock,
		Config:           h.Config,
		Engine:           h.Engine,
		Repo:             h.PaymentRepo,
		SubscriptionRepo: h.SubscriptionRepo,
		PlanRepo:         h.PlanRepo,
		Asset:            h.Assets,
		Credit:           h.Credit,
		Risk:             h.Risk,
		Authz:            h.Authz,
		Sequencer:        h.Sequencer,
		Outbox:           h.Outbox,
		ObsMetrics:       h.Metrics,
	})
	h.Payments = payments
	h.Subscriptions = subscriptionservice.NewService(subscriptionservice.Params{
		DB:        h.DB,
		Log:       h.Log,
		Clock:     h.Clock,
		Repo:      h.SubscriptionRepo,
		PlanRepo:  h.PlanRepo,
		Charger:   payments,
		Authz:     h.Authz,
		Sequencer: h.Sequencer,
		Outbox:    h.Outbox,
	})
	h.Disputes = disputeservice.NewService(disputeservice.Params{
		DB:               h.DB,
		Log:              h.Log,
		Clock:            h.Clock,
		Engine:           h.Engine,
		Repo:             disputerepo.Provide(),
		SubscriptionRepo: h.SubscriptionRepo,
		PaymentRepo:      h.PaymentRepo,
		Payments:         payments,
		Authz:            h.Authz,
		Sequencer:        h.Sequencer,
		Outbox:           h.Outbox,
		ObsMetrics:       h.Metrics,
	})

	ctx := context.Background()
	for account, role := range map[string]string{
		Merchant:   authorization.RoleMerchant,
		Arbitrator: authorization.RoleArbitrator,
		Oracle:     authorization.RoleOracle,
		Provider:   authorization.RoleProvider,
	} {
		require.NoError(t, h.Authz.GrantRole(ctx, Admin, account, role))
	}
	return h
}

// Amount parses an integer amount in minor units.
func Amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Fund deposits amount into account and approves the engine to pull
// allowance from it.
func (h *Harness) Fund(t testing.TB, account string, amount, allowance decimal.Decimal) {
	t.Helper()
	ctx := context.Background()
	if amount.IsPositive() {
		require.NoError(t, h.Assets.Deposit(ctx, Admin, account, Asset, amount))
	}
	require.NoError(t, h.Assets.Approve(ctx, account, Engine, Asset, allowance))
}

func (h *Harness) Balance(t testing.TB, account string) decimal.Decimal {
	t.Helper()
	balance, err := h.Assets.BalanceOf(context.Background(), account, Asset)
	require.NoError(t, err)
	return balance
}

// CreatePlan registers a plan for Merchant.
func (h *Harness) CreatePlan(t testing.TB, amount decimal.Decimal, period, trial time.Duration) *plandomain.Plan {
	t.Helper()
	plan, err := h.Plans.CreatePlan(context.Background(), Merchant, plandomain.CreatePlanRequest{
		AssetType:            Asset,
		Amount:               amount,
		BillingPeriodSeconds: int64(period / time.Second),
		TrialPeriodSeconds:   int64(trial / time.Second),
	})
	require.NoError(t, err)
	return plan
}

// OutboxTypes lists the event types queued for an aggregate in order.
func (h *Harness) OutboxTypes(t testing.TB, aggregateType, aggregateID string) []string {
	t.Helper()
	rows, err := events.ListByAggregate(context.Background(), h.DB, aggregateType, aggregateID)
	require.NoError(t, err)
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}
