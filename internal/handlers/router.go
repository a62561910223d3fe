package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"pvetax/internal/config"
	"pvetax/internal/db"
	"pvetax/internal/middleware"
	"pvetax/internal/store"
	"pvetax/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const requestTimeout = 30 * time.Second

type Handler struct {
	txRunner db.TxRunner
	cfg      config.Config
	ledger   LedgerService
	stats    StatsService
	settings SettingsService
	payments PaymentStore
	identity IdentityStore
	admin    AdminStore
	audit    AuditStore
	hub      *websocket.Hub
	logger   *slog.Logger
}

type Deps struct {
	TxRunner db.TxRunner
	Ledger   LedgerService
	Stats    StatsService
	Settings SettingsService
	Payments PaymentStore
	Identity IdentityStore
	Admin    AdminStore
	Audit    AuditStore
	Hub      *websocket.Hub
	Logger   *slog.Logger
}

func New(cfg config.Config, deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		txRunner: deps.TxRunner,
		cfg:      cfg,
		ledger:   deps.Ledger,
		stats:    deps.Stats,
		settings: deps.Settings,
		payments: deps.Payments,
		identity: deps.Identity,
		admin:    deps.Admin,
		audit:    deps.Audit,
		hub:      deps.Hub,
		logger:   logger,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/ws/balances", h.WSBalances)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Use(chimiddleware.Timeout(requestTimeout))
		r.Get("/characters", h.ListCharacters)
		r.Post("/characters", h.RegisterCharacter)
		r.Get("/characters/{id}/ledger", h.CharacterLedger)
		r.Get("/balance", h.GetBalance)
		r.Get("/stats", h.GetStats)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.With(middleware.RequireAdmin(h.admin, store.RoleLedger)).Get("/balances", h.AdminBalances)
		r.With(middleware.RequireAdmin(h.admin, store.RoleLedger)).Post("/balances/zero", h.ZeroBalances)
		r.With(middleware.RequireAdmin(h.admin, store.RoleLedger)).Post("/characters/{id}/credits", h.AdminCredit)
		r.With(middleware.RequireAdmin(h.admin, store.RoleLedger)).Get("/payments/unmatched", h.UnmatchedPayments)
		r.With(middleware.RequireAdmin(h.admin, store.RoleLedger)).Get("/self-check", h.SelfCheck)
		r.With(middleware.RequireAdmin(h.admin, store.RoleSettings)).Get("/settings", h.GetSettings)
		r.With(middleware.RequireAdmin(h.admin, store.RoleSettings)).Put("/settings", h.UpdateSettings)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/stats/refresh", h.RefreshStats)
		r.With(middleware.RequireAdmin(h.admin, "")).Get("/audit", h.ListAuditLogs)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/roles/grant", h.GrantRole)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/promote", h.PromoteAdmin)
	})
	return router
}
