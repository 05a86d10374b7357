package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kudzimusar/stolen-pay/internal/api/handler"
	"github.com/kudzimusar/stolen-pay/internal/api/middleware"
	"github.com/kudzimusar/stolen-pay/internal/api/spec"
	"github.com/kudzimusar/stolen-pay/internal/anchor"
	"github.com/kudzimusar/stolen-pay/internal/config"
	"github.com/kudzimusar/stolen-pay/internal/idempotency"
	"github.com/kudzimusar/stolen-pay/internal/notify"
	"github.com/kudzimusar/stolen-pay/internal/repository"
	"github.com/kudzimusar/stolen-pay/internal/reputation"
	"github.com/kudzimusar/stolen-pay/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Router assembles the service graph and the HTTP surface.
type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *pgxpool.Pool
	repo      *repository.Repository
	idemStore *idempotency.Store
	redis     redis.Cmdable
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db *pgxpool.Pool, repo *repository.Repository, idemStore *idempotency.Store, redisClient redis.Cmdable) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		repo:      repo,
		idemStore: idemStore,
		redis:     redisClient,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))

	// Services
	limits := service.NewLimitValidator(api.repo)
	fees := service.NewFeeCalculator(service.DefaultFeeSchedule())
	risk := service.NewRiskScorer(api.repo, reputation.NewStaticProvider(nil), api.cfg.HighRiskCountries)
	anchorer := anchor.NewMockAnchorer()
	anchorer.FailureRate = api.cfg.AnchorFailureRate
	dispatcher := notify.NewDispatcher(notify.NewLogNotifier(), api.cfg.NotifyTimeout)

	transferSvc := service.NewTransferService(api.repo, api.repo, limits, fees, risk, anchorer, dispatcher, service.TransferConfig{
		Approvers:          api.approvers(),
		RequiredSignatures: api.cfg.RequiredSignatures,
		MultiSigTTL:        api.cfg.MultiSigTTL,
		AnchorTimeout:      api.cfg.AnchorTimeout,
	})
	multiSigSvc := service.NewMultiSigService(api.repo, transferSvc)
	accountSvc := service.NewAccountService(api.repo)

	// Handlers
	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	transferHandler := handler.NewTransferHandler(transferSvc, accountSvc)
	multiSigHandler := handler.NewMultiSigHandler(multiSigSvc)
	accountHandler := handler.NewAccountHandler(accountSvc)

	// Operational endpoints
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Get("/openapi.yaml", spec.OpenAPIHandler())
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).
			Post("/v1/transfers", transferHandler.CreateTransfer)

		r.Get("/v1/multisig/{id}", multiSigHandler.GetMultiSig)
		r.Post("/v1/multisig/{id}/sign", multiSigHandler.Sign)

		r.Get("/v1/accounts/{id}/balance", accountHandler.GetBalance)
		r.Get("/v1/accounts/{id}/limits", accountHandler.GetLimits)
		r.With(middleware.RequireRole("admin")).
			Get("/v1/accounts/{id}/risk-audit", accountHandler.GetRiskAudit)
	})

	return r
}

func (api *Router) approvers() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(api.cfg.MultiSigApprovers))
	for _, raw := range api.cfg.MultiSigApprovers {
		id, err := uuid.Parse(raw)
		if err != nil {
			api.logger.Warn("ignoring invalid multisig approver id", zap.String("value", raw))
			continue
		}
		out = append(out, id)
	}
	return out
}
