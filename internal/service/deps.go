package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tpia/internal/econ"
	"tpia/internal/ledger"
	"tpia/internal/metrics"
	"tpia/internal/txn"
)

// Notifier is fire-and-forget: implementations log their own failures.
type Notifier interface {
	Notify(ctx context.Context, userID uint, kind, title, body string, data map[string]any)
}

// Auditor records admin-triggered state changes on a best-effort basis.
type Auditor interface {
	Record(ctx context.Context, actorID *uint, action, resource, resourceID string, meta map[string]any)
}

// Deps are the collaborators shared by the engine services.
type Deps struct {
	DB       *gorm.DB
	Runner   txn.Runner
	Ledger   *ledger.Ledger
	Econ     econ.Provider
	Notifier Notifier
	Audit    Auditor
	Log      *zap.Logger
	Metrics  *metrics.Collector
	Now      func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Audit == nil {
		d.Audit = nopAuditor{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return d
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, uint, string, string, string, map[string]any) {}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, *uint, string, string, string, map[string]any) {}
