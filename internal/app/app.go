// Package app wires stores, services and clients for the server and the
// operator CLI.
package app

import (
	"log/slog"
	"net/http"
	"time"

	"pvetax/internal/config"
	"pvetax/internal/db"
	"pvetax/internal/esi"
	"pvetax/internal/handlers"
	"pvetax/internal/jobs"
	"pvetax/internal/logging"
	"pvetax/internal/notify"
	"pvetax/internal/secrets"
	"pvetax/internal/services"
	"pvetax/internal/store"
	"pvetax/internal/tax"
	"pvetax/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type Stores struct {
	Characters      *store.CharacterStore
	Income          *store.IncomeStore
	Credits         *store.CreditStore
	Payments        *store.PaymentStore
	Settings        *store.SettingsStore
	Stats           *store.StatsStore
	Systems         *store.SystemStore
	Identity        *store.IdentityStore
	Tokens          *store.TokenStore
	Notifications   *store.NotificationStore
	AdminCharacters *store.AdminCharacterStore
	Admins          *store.AdminStore
	Audit           *store.AuditStore
}

type App struct {
	Config    config.Config
	Logger    *slog.Logger
	DB        *sqlx.DB
	TxRunner  db.TxRunner
	Stores    Stores
	Hub       *websocket.Hub
	Notifier  *notify.Fanout
	Ledger    *services.LedgerService
	Reconcile *services.ReconcileService
	Monthly   *services.MonthlyService
	Stats     *services.StatsService
	Settings  *services.SettingsService
	Updates   *services.UpdateService
}

// New connects to the database and builds every service. Close releases the
// connection pool.
func New(cfg config.Config) (*App, error) {
	logger := logging.New(cfg.LogLevel)
	database, err := db.Connect(cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		return nil, err
	}
	box, err := secrets.NewBox(cfg.SettingsKey)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	if box == nil {
		logger.Warn("SETTINGS_SECRET_KEY not set, bot token stored unsealed")
	}
	return build(cfg, logger, database, box), nil
}

func build(cfg config.Config, logger *slog.Logger, database *sqlx.DB, box *secrets.Box) *App {
	stores := Stores{
		Characters:      store.NewCharacterStore(database),
		Income:          store.NewIncomeStore(database),
		Credits:         store.NewCreditStore(database),
		Payments:        store.NewPaymentStore(database),
		Settings:        store.NewSettingsStore(database, box),
		Stats:           store.NewStatsStore(database),
		Systems:         store.NewSystemStore(database),
		Identity:        store.NewIdentityStore(database),
		Tokens:          store.NewTokenStore(database),
		Notifications:   store.NewNotificationStore(database),
		AdminCharacters: store.NewAdminCharacterStore(database),
		Admins:          store.NewAdminStore(database),
		Audit:           store.NewAuditStore(database),
	}
	txRunner := db.NewTxRunner(database)
	policy := cfg.Policy
	hub := websocket.NewHub()
	pool := jobs.NewPool(policy.Jobs.Workers, policy.Jobs.TimeLimit(), logger)

	esiClient := esi.NewClient(cfg.ESIBaseURL, cfg.ESIUserAgent, &http.Client{Timeout: 30 * time.Second})
	locations := services.NewLocationService(stores.Systems, esiClient, policy.SpecialRegionID, logger)
	resolver := tax.NewResolver(policy.TaxPolicy(), locations, logger)

	notifier := notify.NewFanout(logger).
		Add("inapp", notify.NewInApp(stores.Notifications)).
		Add("discord", notify.NewDiscord(cfg.DiscordAPIBase, stores.Settings, nil))

	ledger := services.NewLedgerService(txRunner, stores.Characters, stores.Income, stores.Credits,
		stores.Identity, stores.Audit, resolver, hub, pool, logger)
	reconcile := services.NewReconcileService(txRunner, stores.Payments, stores.Characters, stores.Settings, ledger, pool, logger)
	stats := services.NewStatsService(stores.Income, stores.Stats, policy.LeaderboardTaxableOnly, logger)
	monthly := services.NewMonthlyService(stores.Settings, ledger, notifier, stats, policy.Notifications, pool, logger)
	settings := services.NewSettingsService(txRunner, stores.Settings, stores.Audit)
	updates := services.NewUpdateService(services.UpdateDeps{
		Characters:    stores.Characters,
		Admins:        stores.AdminCharacters,
		Credentials:   services.NewTokenCredentials(stores.Tokens),
		Income:        esiClient,
		Payments:      esiClient,
		Ledger:        ledger,
		Reconcile:     reconcile,
		Stats:         stats,
		Identity:      stores.Identity,
		Notifications: stores.Notifications,
		Notifier:      notifier,
		Pool:          pool,
		Logger:        logger,
	}, policy.Jobs, policy.CorpWalletDivision)

	return &App{
		Config:    cfg,
		Logger:    logger,
		DB:        database,
		TxRunner:  txRunner,
		Stores:    stores,
		Hub:       hub,
		Notifier:  notifier,
		Ledger:    ledger,
		Reconcile: reconcile,
		Monthly:   monthly,
		Stats:     stats,
		Settings:  settings,
		Updates:   updates,
	}
}

// Handler builds the HTTP API over the app's services.
func (a *App) Handler() *handlers.Handler {
	return handlers.New(a.Config, handlers.Deps{
		TxRunner: a.TxRunner,
		Ledger:   a.Ledger,
		Stats:    a.Stats,
		Settings: a.Settings,
		Payments: a.Stores.Payments,
		Identity: a.Stores.Identity,
		Admin:    a.Stores.Admins,
		Audit:    a.Stores.Audit,
		Hub:      a.Hub,
		Logger:   a.Logger,
	})
}

func (a *App) Close() error {
	return a.DB.Close()
}
