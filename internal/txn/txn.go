// Package txn selects how multi-statement writes are grouped: inside one
// database transaction, or statement by statement when the store cannot
// provide transactions.
package txn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tpia/internal/domain"
)

type Mode string

const (
	ModeAuto       Mode = "auto"
	ModeAtomic     Mode = "atomic"
	ModeBestEffort Mode = "best_effort"
)

// Runner executes fn against a database handle. Inside fn only the handle
// passed in may be used.
type Runner interface {
	Run(ctx context.Context, fn func(tx *gorm.DB) error) error
	Mode() Mode
}

// Atomic runs fn inside a single transaction.
type Atomic struct {
	db *gorm.DB
}

func NewAtomic(db *gorm.DB) *Atomic {
	return &Atomic{db: db}
}

func (a *Atomic) Mode() Mode { return ModeAtomic }

func (a *Atomic) Run(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := a.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return classify(tx.Error)
	}
	done := false
	defer func() {
		if !done {
			tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return classify(err)
	}
	done = true
	if err := tx.Commit().Error; err != nil {
		return classify(err)
	}
	return nil
}

// BestEffort runs fn directly against the pool. Callers rely on optimistic
// version checks for per-row safety.
type BestEffort struct {
	db *gorm.DB
}

func NewBestEffort(db *gorm.DB) *BestEffort {
	return &BestEffort{db: db}
}

func (b *BestEffort) Mode() Mode { return ModeBestEffort }

func (b *BestEffort) Run(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(b.db.WithContext(ctx))
}

// Adaptive starts atomic and permanently switches to best effort the first
// time the store reports that transactions are unsupported. The operation
// that hit the error is retried in best-effort mode.
type Adaptive struct {
	atomic   Runner
	fallback Runner
	degraded atomic.Bool
	log      *zap.Logger
}

func NewAdaptive(primary, fallback Runner, log *zap.Logger) *Adaptive {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adaptive{atomic: primary, fallback: fallback, log: log}
}

func (a *Adaptive) Mode() Mode {
	if a.degraded.Load() {
		return a.fallback.Mode()
	}
	return a.atomic.Mode()
}

func (a *Adaptive) Degraded() bool { return a.degraded.Load() }

func (a *Adaptive) Run(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if a.degraded.Load() {
		return a.fallback.Run(ctx, fn)
	}
	err := a.atomic.Run(ctx, fn)
	if !errors.Is(err, domain.ErrTransactionUnsupported) {
		return err
	}
	if a.degraded.CompareAndSwap(false, true) {
		a.log.Warn("transactions unsupported by store, switching to best-effort writes", zap.Error(err))
	}
	return a.fallback.Run(ctx, fn)
}

var unsupportedMarkers = []string{
	"transactions are not supported",
	"transaction numbers are only allowed",
	"does not support transactions",
	"not supported in this configuration",
}

// IsUnsupported reports whether err means the store cannot run transactions.
func IsUnsupported(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrTransactionUnsupported) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range unsupportedMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func classify(err error) error {
	if IsUnsupported(err) && !errors.Is(err, domain.ErrTransactionUnsupported) {
		return fmt.Errorf("%w: %v", domain.ErrTransactionUnsupported, err)
	}
	return err
}

// Detect probes the store once and returns the runner to use for the
// process lifetime. ModeAtomic and ModeBestEffort skip the probe.
func Detect(ctx context.Context, db *gorm.DB, mode Mode, log *zap.Logger) (Runner, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch mode {
	case ModeAtomic:
		return NewAtomic(db), nil
	case ModeBestEffort:
		return NewBestEffort(db), nil
	case ModeAuto, "":
	default:
		return nil, fmt.Errorf("unknown tx mode %q", mode)
	}

	fallback := NewBestEffort(db)
	supported, err := probe(ctx, db)
	if err != nil {
		return nil, err
	}
	if !supported {
		log.Warn("store has no transaction support, using best-effort writes")
		return fallback, nil
	}
	log.Info("store supports transactions, using atomic writes")
	return NewAdaptive(NewAtomic(db), fallback, log), nil
}

func probe(ctx context.Context, db *gorm.DB) (bool, error) {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		if IsUnsupported(tx.Error) {
			return false, nil
		}
		return false, tx.Error
	}
	if err := tx.Rollback().Error; err != nil && IsUnsupported(err) {
		return false, nil
	}

	// MyISAM accepts BEGIN and silently ignores it.
	if db.Dialector.Name() == "mysql" {
		var engine string
		err := db.WithContext(ctx).Raw(
			"SELECT ENGINE FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?", "wallets",
		).Scan(&engine).Error
		if err != nil {
			return false, err
		}
		if engine != "" && !strings.EqualFold(engine, "InnoDB") {
			return false, nil
		}
	}
	return true, nil
}
