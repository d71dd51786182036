package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	assetdomain "github.com/smallbiznis/recurra/internal/asset/domain"
	"github.com/smallbiznis/recurra/internal/authorization"
	"github.com/smallbiznis/recurra/internal/config"
	creditdomain "github.com/smallbiznis/recurra/internal/credit/domain"
	"github.com/smallbiznis/recurra/internal/observability"
	obslogger "github.com/smallbiznis/recurra/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/recurra/internal/observability/metrics"
	obstracing "github.com/smallbiznis/recurra/internal/observability/tracing"
	disputedomain "github.com/smallbiznis/recurra/internal/payment/dispute/domain"
	paymentdomain "github.com/smallbiznis/recurra/internal/payment/domain"
	plandomain "github.com/smallbiznis/recurra/internal/plan/domain"
	"github.com/smallbiznis/recurra/internal/ratelimit"
	riskdomain "github.com/smallbiznis/recurra/internal/risk/domain"
	subscriptiondomain "github.com/smallbiznis/recurra/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	Log       *zap.Logger
	Config    config.Config
	ObsConfig observability.Config
	Metrics   *obsmetrics.Metrics `optional:"true"`
	Gatherer  prometheus.Gatherer `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	if p.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(p.Log, obslogger.MiddlewareConfig{
		Debug:           p.ObsConfig.Debug(),
		Metrics:         p.Metrics,
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, srv *Server) {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	log             *zap.Logger
	limiter         *ratelimit.TokenBucket
	authzSvc        authorization.Service
	assetSvc        assetdomain.Service
	planSvc         plandomain.Service
	subscriptionSvc subscriptiondomain.Service
	paymentSvc      paymentdomain.Service
	creditSvc       creditdomain.Service
	riskSvc         riskdomain.Service
	disputeSvc      disputedomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Log             *zap.Logger
	Limiter         *ratelimit.TokenBucket `optional:"true"`
	AuthzSvc        authorization.Service
	AssetSvc        assetdomain.Service
	PlanSvc         plandomain.Service
	SubscriptionSvc subscriptiondomain.Service
	PaymentSvc      paymentdomain.Service
	CreditSvc       creditdomain.Service
	RiskSvc         riskdomain.Service
	DisputeSvc      disputedomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		log:             p.Log.Named("http.server"),
		limiter:         p.Limiter,
		authzSvc:        p.AuthzSvc,
		assetSvc:        p.AssetSvc,
		planSvc:         p.PlanSvc,
		subscriptionSvc: p.SubscriptionSvc,
		paymentSvc:      p.PaymentSvc,
		creditSvc:       p.CreditSvc,
		riskSvc:         p.RiskSvc,
		disputeSvc:      p.DisputeSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1", Caller())

	// -------- Plans --------
	api.POST("/plans", s.CreatePlan)
	api.GET("/plans/:id", s.GetPlan)
	api.PATCH("/plans/:id", s.UpdatePlan)
	api.GET("/plans/:id/subscriptions", s.ListPlanSubscriptions)

	// -------- Subscriptions --------
	api.POST("/subscriptions", s.Subscribe)
	api.GET("/subscriptions/:id", s.GetSubscription)
	api.POST("/subscriptions/:id/cancel", s.CancelSubscription)
	api.GET("/subscriptions/:id/payments", s.GetPaymentHistory)
	api.GET("/subscriptions/:id/disputes", s.ListSubscriptionDisputes)
	api.GET("/subscriptions/:id/prediction", s.GetPrediction)
	api.PUT("/subscriptions/:id/prediction", s.UpdatePrediction)
	api.POST("/subscriptions/:id/prediction/calculate", s.CalculateLikelihood)
	api.GET("/due-subscriptions", s.GetDueSubscriptions)

	// -------- Payments --------
	api.POST("/payments/process", s.TriggerRateLimit(), s.ProcessDuePayments)
	api.POST("/payments/external", s.RecordExternalPayment)

	// -------- Risk --------
	api.GET("/predictions/high-risk", s.GetHighRiskSubscriptions)

	// -------- Disputes --------
	api.POST("/disputes", s.OpenDispute)
	api.GET("/disputes/:id", s.GetDispute)
	api.POST("/disputes/:id/evidence", s.SubmitEvidence)
	api.POST("/disputes/:id/resolve", s.ResolveDispute)
	api.POST("/disputes/:id/cancel", s.CancelDispute)
	api.GET("/disputes/:id/auto-resolution", s.IsEligibleForAutoResolution)
	api.POST("/disputes/:id/auto-resolve", s.TriggerRateLimit(), s.AutoResolveDispute)
	api.GET("/auto-resolvable-disputes", s.ListAutoResolvable)

	// -------- Accounts --------
	api.GET("/accounts/:account/plans", s.ListMerchantPlans)
	api.GET("/accounts/:account/subscriptions", s.ListSubscriberSubscriptions)
	api.GET("/accounts/:account/payments", s.GetAccountPaymentHistory)
	api.GET("/accounts/:account/credit-score", s.GetCreditScore)
	api.GET("/accounts/:account/roles", s.ListRoles)
	api.GET("/accounts/:account/balances/:asset", s.GetBalance)
	api.GET("/accounts/:account/allowances/:spender/:asset", s.GetAllowance)

	// -------- Roles --------
	api.POST("/roles/grant", s.GrantRole)
	api.POST("/roles/revoke", s.RevokeRole)

	// -------- Assets --------
	api.POST("/assets/deposit", s.Deposit)
	api.POST("/assets/approve", s.Approve)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
