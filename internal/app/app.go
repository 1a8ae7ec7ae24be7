// Package app assembles the engine from configuration. The HTTP server,
// the scheduler and the operator CLI all share one App.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tpia/config"
	"tpia/internal/cache"
	"tpia/internal/econ"
	"tpia/internal/ledger"
	"tpia/internal/metrics"
	"tpia/internal/repository"
	"tpia/internal/scheduler"
	"tpia/internal/service"
	"tpia/internal/txn"
	"tpia/internal/ws"
)

type App struct {
	Config  *config.Config
	DB      *gorm.DB
	Log     *zap.Logger
	Metrics *metrics.Collector
	Cache   cache.Store
	Runner  txn.Runner
	Econ    *econ.SettingsProvider
	Hub     *ws.Hub

	Ledger        *ledger.Ledger
	Notifications *service.NotificationService
	Audit         *service.AuditService
	Clusters      *service.ClusterService
	Units         *service.UnitService
	Cycles        *service.CycleProcessor
	Withdrawals   *service.WithdrawalService
	Deposits      *service.DepositService
	Settings      *service.SettingsService
	Scheduler     *scheduler.Scheduler

	Users       *repository.UserRepository
	Commodities *repository.CommodityRepository
}

func New(ctx context.Context, cfg *config.Config, db *gorm.DB, log *zap.Logger) (*App, error) {
	m := metrics.GetCollector()
	runner, err := txn.Detect(ctx, db, txn.Mode(cfg.Engine.TxMode), log)
	if err != nil {
		return nil, fmt.Errorf("detect transaction support: %w", err)
	}
	if d, ok := runner.(scheduler.Degradable); ok {
		m.SetTxDegraded(d.Degraded())
	} else {
		m.SetTxDegraded(runner.Mode() == txn.ModeBestEffort)
	}

	store := cache.New(cfg.Redis)
	settingRepo := repository.NewSettingRepository(db)
	provider := econ.NewSettingsProvider(settingRepo, store, cfg.Engine.ConfigTTL, log.Named("econ"))

	hub := ws.NewHub(m, log.Named("ws"))
	notifications := service.NewNotificationService(
		repository.NewNotificationRepository(db), hub,
		service.NewWebhookSender(cfg.Notification.WebhookURL, cfg.Notification.Timeout),
		log.Named("notify"),
	)
	audit := service.NewAuditService(repository.NewAuditLogRepository(db), log.Named("audit"))

	book := ledger.New(db, runner,
		ledger.WithLogger(log.Named("ledger")),
		ledger.WithMetrics(m),
		ledger.WithMaxRetries(cfg.Engine.MaxWriteRetries),
	)
	deps := service.Deps{
		DB:       db,
		Runner:   runner,
		Ledger:   book,
		Econ:     provider,
		Notifier: notifications,
		Audit:    audit,
		Log:      log,
		Metrics:  m,
	}
	clusters := service.NewClusterService(deps, cfg.Engine.ClusterCapacity)
	units := service.NewUnitService(deps, clusters)
	cycles := service.NewCycleProcessor(deps, clusters)

	a := &App{
		Config:        cfg,
		DB:            db,
		Log:           log,
		Metrics:       m,
		Cache:         store,
		Runner:        runner,
		Econ:          provider,
		Hub:           hub,
		Ledger:        book,
		Notifications: notifications,
		Audit:         audit,
		Clusters:      clusters,
		Units:         units,
		Cycles:        cycles,
		Withdrawals:   service.NewWithdrawalService(deps),
		Deposits:      service.NewDepositService(deps),
		Settings:      service.NewSettingsService(settingRepo, provider, audit, log),
		Users:         repository.NewUserRepository(db),
		Commodities:   repository.NewCommodityRepository(db),
	}
	var degradable scheduler.Degradable
	if d, ok := runner.(scheduler.Degradable); ok {
		degradable = d
	}
	a.Scheduler = scheduler.New(scheduler.Options{
		Processor: cycles,
		Clusters:  clusters,
		Units:     units,
		Refresher: provider,
		Tx:        degradable,
		Metrics:   m,
		Log:       log.Named("scheduler"),
	})
	return a, nil
}

// Seed writes the default economic settings that are not yet stored.
func Seed(ctx context.Context, db *gorm.DB) error {
	return repository.NewSettingRepository(db).SeedDefaults(ctx, econ.Defaults().Settings())
}
