package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tpia/internal/domain"
	"tpia/internal/models"
	"tpia/internal/testutil"
	"tpia/internal/txn"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func setup(t *testing.T, runner func(*gorm.DB) txn.Runner, opts ...Option) (*gorm.DB, *Ledger, uint) {
	t.Helper()
	db := testutil.NewDB(t)
	l := New(db, runner(db), opts...)
	u := testutil.SeedUser(t, db, "alice", true)
	_, err := l.OpenWallet(context.Background(), u.ID)
	require.NoError(t, err)
	return db, l, u.ID
}

func atomicRunner(db *gorm.DB) txn.Runner     { return txn.NewAtomic(db) }
func bestEffortRunner(db *gorm.DB) txn.Runner { return txn.NewBestEffort(db) }

func wallet(t *testing.T, l *Ledger, userID uint) *models.Wallet {
	t.Helper()
	w, err := l.GetWallet(context.Background(), userID)
	require.NoError(t, err)
	return w
}

func TestOpenWalletIsIdempotent(t *testing.T) {
	_, l, uid := setup(t, atomicRunner)
	w1 := wallet(t, l, uid)
	w2, err := l.OpenWallet(context.Background(), uid)
	require.NoError(t, err)
	require.Equal(t, w1.ID, w2.ID)
}

func TestCreditRoutesProfitToEarnings(t *testing.T) {
	_, l, uid := setup(t, atomicRunner)
	ctx := context.Background()

	_, err := l.Credit(ctx, uid, d(500), Movement{Type: domain.TxTypeDeposit})
	require.NoError(t, err)
	e, err := l.Credit(ctx, uid, d(37), Movement{Type: domain.TxTypeProfit, Metadata: map[string]any{"cycle": 1}})
	require.NoError(t, err)
	require.Equal(t, "37", e.Amount.String())
	require.Equal(t, "537", e.ResultingBalance.String())
	require.Equal(t, domain.TxStatusCompleted, e.Status)
	require.JSONEq(t, `{"cycle":1}`, string(e.Metadata))

	w := wallet(t, l, uid)
	require.Equal(t, "500", w.Balance.String())
	require.Equal(t, "37", w.EarningsBalance.String())
}

func TestCreditErrors(t *testing.T) {
	_, l, uid := setup(t, atomicRunner)
	ctx := context.Background()

	_, err := l.Credit(ctx, uid, d(0), Movement{Type: domain.TxTypeDeposit})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = l.Credit(ctx, uid+100, d(10), Movement{Type: domain.TxTypeDeposit})
	require.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestDebitTakesEarningsFirst(t *testing.T) {
	_, l, uid := setup(t, atomicRunner)
	ctx := context.Background()
	_, err := l.Credit(ctx, uid, d(100), Movement{Type: domain.TxTypeDeposit})
	require.NoError(t, err)
	_, err = l.Credit(ctx, uid, d(30), Movement{Type: domain.TxTypeProfit})
	require.NoError(t, err)

	e, err := l.Debit(ctx, uid, d(50), Movement{Type: domain.TxTypeAdjustment})
	require.NoError(t, err)
	require.Equal(t, "-50", e.Amount.String())

	w := wallet(t, l, uid)
	require.True(t, w.EarningsBalance.IsZero())
	require.Equal(t, "80", w.Balance.String())

	_, err = l.Debit(ctx, uid, d(81), Movement{})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestLockUnlockRoundTrip(t *testing.T) {
	_, l, uid := setup(t, atomicRunner)
	ctx := context.Background()
	_, err := l.Credit(ctx, uid, d(1_000_000), Movement{Type: domain.TxTypeDeposit})
	require.NoError(t, err)
	before := CalculateBalances(wallet(t, l, uid))

	_, err = l.Lock(ctx, uid, d(400_000), Movement{Pending: true})
	require.NoError(t, err)
	mid := CalculateBalances(wallet(t, l, uid))
	require.Equal(t, "600000", mid.Available.String())
	require.Equal(t, "400000", mid.Locked.String())

	_, err = l.Unlock(ctx, uid, d(400_000), Movement{})
	require.NoError(t, err)
	after := CalculateBalances(wallet(t, l, uid))
	require.True(t, before.Balance.Equal(after.Balance))
	require.True(t, before.Earnings.Equal(after.Earnings))
	require.True(t, before.Locked.Equal(after.Locked))
	require.True(t, before.Available.Equal(after.Available))

	_, err = l.Unlock(ctx, uid, d(1), Movement{})
	require.ErrorIs(t, err, domain.ErrInsufficientLockedBalance)
	_, err = l.Lock(ctx, uid, d(1_000_001), Movement{})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestWithdrawalThreePhase(t *testing.T) {
	_, l, uid := setup(t, atomicRunner)
	ctx := context.Background()
	_, err := l.Credit(ctx, uid, d(100), Movement{Type: domain.TxTypeDeposit})
	require.NoError(t, err)
	_, err = l.Credit(ctx, uid, d(20), Movement{Type: domain.TxTypeProfit})
	require.NoError(t, err)
	_, err = l.Lock(ctx, uid, d(50), Movement{})
	require.NoError(t, err)

	// available = 120 - 50
	_, err = l.LockForWithdrawal(ctx, uid, d(71), Movement{})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	_, err = l.LockForWithdrawal(ctx, uid, d(60), Movement{})
	require.NoError(t, err)
	_, err = l.LockForWithdrawal(ctx, uid, d(20), Movement{})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance, "second request cannot double spend")

	_, err = l.UnlockForWithdrawal(ctx, uid, d(10), Movement{})
	require.NoError(t, err)
	_, err = l.CompleteWithdrawal(ctx, uid, d(50), Movement{})
	require.NoError(t, err)
	_, err = l.CompleteWithdrawal(ctx, uid, d(1), Movement{})
	require.ErrorIs(t, err, domain.ErrInsufficientPendingWithdrawalBalance)

	w := wallet(t, l, uid)
	require.True(t, w.PendingWithdrawalBalance.IsZero())
	require.True(t, w.EarningsBalance.IsZero())
	require.Equal(t, "70", w.Balance.String())
	require.Equal(t, "50", w.LockedBalance.String())
}

func TestEveryMutationWritesOneUniqueEntry(t *testing.T) {
	db, l, uid := setup(t, atomicRunner)
	ctx := context.Background()
	_, err := l.Credit(ctx, uid, d(100), Movement{Type: domain.TxTypeDeposit})
	require.NoError(t, err)
	_, err = l.Lock(ctx, uid, d(10), Movement{})
	require.NoError(t, err)
	_, err = l.SettleLocked(ctx, uid, d(10), Movement{})
	require.NoError(t, err)
	_, err = l.Debit(ctx, uid, d(1000), Movement{})
	require.Error(t, err)

	var entries []models.WalletTransaction
	require.NoError(t, db.Order("id ASC").Find(&entries).Error)
	require.Len(t, entries, 3)
	seen := map[string]bool{}
	for _, e := range entries {
		require.False(t, seen[e.Reference])
		seen[e.Reference] = true
	}
	require.Equal(t, []string{domain.TxTypeDeposit, domain.TxTypeLock, domain.TxTypePurchase},
		[]string{entries[0].Type, entries[1].Type, entries[2].Type})
}

func TestWithTxRollsBackWithCaller(t *testing.T) {
	db, l, uid := setup(t, atomicRunner)
	ctx := context.Background()
	boom := errors.New("boom")

	err := txn.NewAtomic(db).Run(ctx, func(tx *gorm.DB) error {
		if _, err := l.WithTx(tx).Credit(ctx, uid, d(10), Movement{Type: domain.TxTypeDeposit}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.True(t, wallet(t, l, uid).Balance.IsZero())

	var n int64
	require.NoError(t, db.Model(&models.WalletTransaction{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestConcurrentCreditsNoLostUpdates(t *testing.T) {
	const workers = 20
	modes := map[string]func(*gorm.DB) txn.Runner{
		"atomic":      atomicRunner,
		"best_effort": bestEffortRunner,
	}
	for name, runner := range modes {
		t.Run(name, func(t *testing.T) {
			// A conflict means another writer committed, so one retry per competing write suffices.
			_, l, uid := setup(t, runner, WithMaxRetries(workers*2))
			ctx := context.Background()
			_, err := l.Credit(ctx, uid, d(1000), Movement{Type: domain.TxTypeDeposit})
			require.NoError(t, err)

			var wg sync.WaitGroup
			errs := make(chan error, workers*2)
			for i := 0; i < workers; i++ {
				wg.Add(2)
				go func() {
					defer wg.Done()
					_, err := l.Credit(ctx, uid, d(10), Movement{Type: domain.TxTypeDeposit})
					errs <- err
				}()
				go func() {
					defer wg.Done()
					_, err := l.Lock(ctx, uid, d(5), Movement{})
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			w := wallet(t, l, uid)
			require.Equal(t, "1200", w.Balance.String())
			require.Equal(t, "100", w.LockedBalance.String())
			require.EqualValues(t, 1+workers*2, w.Version)
		})
	}
}

func TestCalculateBalancesNeverNegative(t *testing.T) {
	s := CalculateBalances(&models.Wallet{Balance: d(10), LockedBalance: d(50)})
	require.True(t, s.Available.IsZero())
	require.Equal(t, "10", s.Total.String())
}
