package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rentalytics/rei-gateway/internal/config"
	"github.com/rentalytics/rei-gateway/internal/http/middleware"
	"github.com/rentalytics/rei-gateway/internal/metrics"
	"github.com/rentalytics/rei-gateway/internal/payment"
	"github.com/rentalytics/rei-gateway/internal/repository"
	"github.com/rentalytics/rei-gateway/internal/service/billing"
	"github.com/rentalytics/rei-gateway/internal/service/gateway"
	"github.com/rentalytics/rei-gateway/internal/service/reports"
	"github.com/rentalytics/rei-gateway/internal/upstream"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client) *Server {
	// repos (MySQL)
	configsRepo := repository.NewUserConfigsRepository(mysqlDB)
	reportsRepo := repository.NewReportsRepository(mysqlDB)
	usageRepo := repository.NewUsageRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)

	// repos (Redis / ClickHouse)
	cacheRepo := repository.NewCacheRepository(rds)
	auditRepo := repository.NewAuditEventsRepository(clickhouseDB)

	// external clients
	rentcast := upstream.NewRentCastClient(
		cfg.Upstream.BaseURL,
		cfg.Upstream.APIKey,
		cfg.Upstream.TimeoutMs,
		cfg.Upstream.Breaker.FailThreshold,
		cfg.Upstream.Breaker.OpenForMs,
	)
	provider := payment.NewStripeProvider(cfg.Stripe.SecretKey)

	// services
	gatewaySvc := gateway.New(
		cacheRepo,
		usageRepo,
		outboxRepo,
		rentcast,
		cfg.Quota.APIName,
		cfg.Quota.MaxAPICallsPerMonth,
		cfg.Cache.TTL,
	)
	billingSvc := billing.New(mysqlDB, configsRepo, outboxRepo, provider, cfg.Stripe)
	reportsSvc := reports.New(mysqlDB, reportsRepo, configsRepo, outboxRepo)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger(), echoMid.CORS())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Route not found."})
	})

	// middlewares
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		RPS:            cfg.RateLimit.RPS,
		Burst:          cfg.RateLimit.Burst,
		KeyPrefix:      "rl:ip:",
		Window:         time.Second,
		RetryAfterHint: true,
	})
	adminMW := middleware.AdminKeyMiddleware(cfg.Admin.APIKey)

	// routes
	v1 := e.Group("/v1", rlMW)
	v1.POST("/property-data", propertyDataHandler(gatewaySvc))
	v1.POST("/rent-estimate", rentEstimateHandler(gatewaySvc))

	v1.POST("/billing/checkout-session", checkoutSessionHandler(billingSvc))
	v1.POST("/billing/cancel", cancelSubscriptionHandler(billingSvc))
	v1.POST("/billing/change-cycle", changeBillingCycleHandler(billingSvc))
	// webhook: signature-verified, no rate limit (provider retries are hostile to limits)
	e.POST("/v1/billing/webhook", webhookHandler(billingSvc, cfg.Stripe.WebhookSecret))

	v1.POST("/reports", reportsHandler(reportsSvc))

	v1.POST("/users/get", getUserConfigHandler(configsRepo))
	v1.POST("/users/create", createUserConfigHandler(configsRepo, cfg.Quota.FreeReports))

	admin := e.Group("/v1/admin", adminMW)
	admin.POST("/reset-usage", resetUsageHandler(gatewaySvc))
	admin.GET("/usage", currentUsageHandler(gatewaySvc))
	admin.GET("/audit-events", listAuditEventsHandler(auditRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
