package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/drople/metering/internal/api/handlers"
	"github.com/drople/metering/internal/config"
	"github.com/drople/metering/internal/middleware"
	"github.com/drople/metering/internal/services/account"
	"github.com/drople/metering/internal/services/billing"
	"github.com/drople/metering/internal/services/notify"
	"github.com/drople/metering/internal/services/usage"
)

type Config struct {
	Config        *config.Config
	Logger        *zap.Logger
	DB            *gorm.DB
	Engine        *billing.Engine
	Accounts      *account.Store
	Usage         *usage.Recorder
	Notifications *notify.Service
}

func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Config.CORS.AllowedOrigins,
		AllowedMethods:   cfg.Config.CORS.AllowedMethods,
		AllowedHeaders:   cfg.Config.CORS.AllowedHeaders,
		MaxAge:           cfg.Config.CORS.MaxAge,
		AllowCredentials: false,
	}))

	healthHandler := handlers.NewHealthHandler(cfg.DB)
	billingHandler := handlers.NewBillingHandler(cfg.Engine, cfg.Logger)
	accountHandler := handlers.NewAccountHandler(cfg.Accounts, cfg.Usage, cfg.Notifications, cfg.Logger)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/charge", billingHandler.Charge)
		r.Post("/credit", billingHandler.Credit)

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", accountHandler.Create)
			r.Get("/", accountHandler.List)
			r.Get("/{id}", accountHandler.Get)
			r.Get("/{id}/usage", accountHandler.Usage)
			r.Get("/{id}/notifications", accountHandler.Notifications)
		})

		r.Patch("/notifications/{id}/read", accountHandler.MarkNotificationRead)
	})

	return r
}
