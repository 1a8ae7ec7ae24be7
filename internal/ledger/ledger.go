// Package ledger owns wallet balances. Every balance change goes through
// here and leaves exactly one append-only movement row.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tpia/internal/domain"
	"tpia/internal/metrics"
	"tpia/internal/models"
	"tpia/internal/repository"
	"tpia/internal/txn"
)

const defaultMaxRetries = 5

// Movement describes the ledger row written alongside a balance change.
type Movement struct {
	Type        string
	Description string
	Metadata    map[string]any
	UnitID      *uint
	Pending     bool
}

type Ledger struct {
	runner     txn.Runner
	tx         *gorm.DB // set on a ledger bound to a caller's transaction
	wallets    *repository.WalletRepository
	log        *zap.Logger
	metrics    *metrics.Collector
	now        func() time.Time
	maxRetries int
}

type Option func(*Ledger)

func WithLogger(l *zap.Logger) Option { return func(x *Ledger) { x.log = l } }

func WithMetrics(c *metrics.Collector) Option { return func(x *Ledger) { x.metrics = c } }

func WithClock(now func() time.Time) Option { return func(x *Ledger) { x.now = now } }

// WithMaxRetries bounds how often a write is retried after losing a version race.
func WithMaxRetries(n int) Option { return func(x *Ledger) { x.maxRetries = n } }

func New(db *gorm.DB, runner txn.Runner, opts ...Option) *Ledger {
	l := &Ledger{
		runner:     runner,
		wallets:    repository.NewWalletRepository(db),
		log:        zap.NewNop(),
		now:        time.Now,
		maxRetries: defaultMaxRetries,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// WithTx returns a ledger whose operations run on tx and take part in the
// caller's transaction. Version conflicts are returned, not retried.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	cp := *l
	cp.tx = tx
	return &cp
}

// OpenWallet creates the user's wallet if it does not exist yet.
func (l *Ledger) OpenWallet(ctx context.Context, userID uint) (*models.Wallet, error) {
	var out *models.Wallet
	err := l.run(ctx, func(tx *gorm.DB) error {
		repo := l.wallets.WithTx(tx)
		w, err := repo.GetByUserID(ctx, userID)
		if err == nil {
			out = w
			return nil
		}
		if !errors.Is(err, domain.ErrWalletNotFound) {
			return err
		}
		w = &models.Wallet{UserID: userID, Currency: "NGN"}
		if err := repo.Create(ctx, w); err != nil {
			return err
		}
		out = w
		return nil
	})
	return out, err
}

func (l *Ledger) GetWallet(ctx context.Context, userID uint) (*models.Wallet, error) {
	if l.tx != nil {
		return l.wallets.WithTx(l.tx).GetByUserID(ctx, userID)
	}
	return l.wallets.GetByUserID(ctx, userID)
}

func (l *Ledger) History(ctx context.Context, userID uint, limit, offset int) ([]models.WalletTransaction, int64, error) {
	return l.wallets.ListEntries(ctx, userID, limit, offset)
}

// Credit adds funds. Profit types land in earnings, everything else in balance.
func (l *Ledger) Credit(ctx context.Context, userID uint, amount decimal.Decimal, m Movement) (*models.WalletTransaction, error) {
	toEarnings := domain.IsProfitType(m.Type)
	return l.apply(ctx, userID, amount, amount, m, func(b domain.Balances) (domain.Balances, error) {
		return b.Credit(amount, toEarnings)
	})
}

// Debit removes free funds, earnings first.
func (l *Ledger) Debit(ctx context.Context, userID uint, amount decimal.Decimal, m Movement) (*models.WalletTransaction, error) {
	return l.apply(ctx, userID, amount, amount.Neg(), m, func(b domain.Balances) (domain.Balances, error) {
		return b.Debit(amount)
	})
}

// Lock reserves principal for a pending purchase.
func (l *Ledger) Lock(ctx context.Context, userID uint, amount decimal.Decimal, m Movement) (*models.WalletTransaction, error) {
	m = withType(m, domain.TxTypeLock)
	return l.apply(ctx, userID, amount, amount.Neg(), m, func(b domain.Balances) (domain.Balances, error) {
		return b.Lock(amount)
	})
}

func (l *Ledger) Unlock(ctx context.Context, userID uint, amount decimal.Decimal, m Movement) (*models.WalletTransaction, error) {
	m = withType(m, domain.TxTypeUnlock)
	return l.apply(ctx, userID, amount, amount, m, func(b domain.Balances) (domain.Balances, error) {
		return b.Unlock(amount)
	})
}

// SettleLocked converts a reservation into a permanent deduction.
func (l *Ledger) SettleLocked(ctx context.Context, userID uint, amount decimal.Decimal, m Movement) (*models.WalletTransaction, error) {
	m = withType(m, domain.TxTypePurchase)
	return l.apply(ctx, userID, amount, amount.Neg(), m, func(b domain.Balances) (domain.Balances, error) {
		return b.SettleLocked(amount)
	})
}

func (l *Ledger) LockForWithdrawal(ctx context.Context, userID uint, amount decimal.Decimal, m Movement) (*models.WalletTransaction, error) {
	m = withType(m, domain.TxTypeWithdrawalHold)
	return l.apply(ctx, userID, amount, amount.Neg(), m, func(b domain.Balances) (domain.Balances, error) {
		return b.HoldForWithdrawal(amount)
	})
}

func (l *Ledger) UnlockForWithdrawal(ctx context.Context, userID uint, amount decimal.Decimal, m Movement) (*models.WalletTransaction, error) {
	m = withType(m, domain.TxTypeWithdrawalRelease)
	return l.apply(ctx, userID, amount, amount, m, func(b domain.Balances) (domain.Balances, error) {
		return b.ReleaseWithdrawal(amount)
	})
}

func (l *Ledger) CompleteWithdrawal(ctx context.Context, userID uint, amount decimal.Decimal, m Movement) (*models.WalletTransaction, error) {
	m = withType(m, domain.TxTypeWithdrawal)
	return l.apply(ctx, userID, amount, amount.Neg(), m, func(b domain.Balances) (domain.Balances, error) {
		return b.CompleteWithdrawal(amount)
	})
}

func withType(m Movement, t string) Movement {
	if m.Type == "" {
		m.Type = t
	}
	return m
}

// apply locks the wallet row, applies mutate, writes the new balances under a
// version check and appends the movement. signed is the amount recorded on
// the movement row.
func (l *Ledger) apply(ctx context.Context, userID uint, amount, signed decimal.Decimal, m Movement,
	mutate func(domain.Balances) (domain.Balances, error)) (*models.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if m.Type == "" {
		m.Type = domain.TxTypeAdjustment
	}
	meta, err := encodeMetadata(m.Metadata)
	if err != nil {
		return nil, err
	}

	var entry *models.WalletTransaction
	op := func(tx *gorm.DB) error {
		repo := l.wallets.WithTx(tx)
		w, err := repo.GetByUserIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		next, err := mutate(w.Balances())
		if err != nil {
			return err
		}
		w.SetBalances(next)
		if err := repo.UpdateBalances(ctx, w); err != nil {
			return err
		}
		status := domain.TxStatusCompleted
		if m.Pending {
			status = domain.TxStatusPending
		}
		entry = &models.WalletTransaction{
			WalletID:         w.ID,
			UserID:           userID,
			Type:             m.Type,
			Amount:           signed,
			ResultingBalance: next.Available(),
			Reference:        NewReference(),
			Status:           status,
			Description:      m.Description,
			UnitID:           m.UnitID,
			Metadata:         meta,
			CreatedAt:        l.now(),
		}
		return repo.CreateEntry(ctx, entry)
	}

	if err := l.run(ctx, op); err != nil {
		return nil, err
	}
	if l.metrics != nil {
		l.metrics.RecordMovement(m.Type, signed.InexactFloat64())
	}
	l.log.Debug("ledger movement",
		zap.Uint("user_id", userID),
		zap.String("type", m.Type),
		zap.String("amount", signed.String()),
		zap.String("reference", entry.Reference),
	)
	return entry, nil
}

// run executes op on the bound transaction, or through the runner with
// bounded retries on version conflicts.
func (l *Ledger) run(ctx context.Context, op func(tx *gorm.DB) error) error {
	if l.tx != nil {
		return op(l.tx)
	}
	var err error
	for attempt := 0; ; attempt++ {
		err = l.runner.Run(ctx, op)
		if !errors.Is(err, domain.ErrConcurrentUpdate) || attempt >= l.maxRetries {
			return err
		}
		if l.metrics != nil {
			l.metrics.RecordConflict()
		}
		l.log.Debug("wallet version conflict, retrying", zap.Int("attempt", attempt+1))
	}
}

func encodeMetadata(m map[string]any) (datatypes.JSON, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// NewReference returns a globally unique movement reference.
func NewReference() string {
	return "TX-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Summary is the derived view of a wallet.
type Summary struct {
	domain.Balances
	Available decimal.Decimal `json:"available_balance"`
	Total     decimal.Decimal `json:"total_balance"`
}

// CalculateBalances derives available and total balances. Never negative.
func CalculateBalances(w *models.Wallet) Summary {
	b := w.Balances()
	return Summary{Balances: b, Available: b.Available(), Total: b.Total()}
}
