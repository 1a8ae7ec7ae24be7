package txn

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tpia/internal/domain"
	"tpia/internal/models"
	"tpia/internal/testutil"
)

type failingRunner struct {
	calls atomic.Int32
	err   error
}

func (f *failingRunner) Mode() Mode { return ModeAtomic }

func (f *failingRunner) Run(context.Context, func(*gorm.DB) error) error {
	f.calls.Add(1)
	return f.err
}

func TestAtomicRollsBackOnError(t *testing.T) {
	db := testutil.NewDB(t)
	r := NewAtomic(db)
	boom := errors.New("boom")

	err := r.Run(context.Background(), func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&models.SystemSetting{Key: "k", Value: "v"}).Error)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&models.SystemSetting{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestAtomicCommits(t *testing.T) {
	db := testutil.NewDB(t)
	err := NewAtomic(db).Run(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&models.SystemSetting{Key: "k", Value: "v"}).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.SystemSetting{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestAdaptiveFlipsOnceAndRetries(t *testing.T) {
	db := testutil.NewDB(t)
	primary := &failingRunner{err: fmt.Errorf("%w: begin", domain.ErrTransactionUnsupported)}
	a := NewAdaptive(primary, NewBestEffort(db), nil)
	require.Equal(t, ModeAtomic, a.Mode())

	var ran int
	for i := 0; i < 3; i++ {
		err := a.Run(context.Background(), func(tx *gorm.DB) error {
			ran++
			return nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, 3, ran)
	require.EqualValues(t, 1, primary.calls.Load())
	require.True(t, a.Degraded())
	require.Equal(t, ModeBestEffort, a.Mode())
}

func TestAdaptiveFlipsOnUnsupportedStatement(t *testing.T) {
	db := testutil.NewDB(t)
	a := NewAdaptive(NewAtomic(db), NewBestEffort(db), nil)

	var calls int
	err := a.Run(context.Background(), func(tx *gorm.DB) error {
		calls++
		if calls == 1 {
			return errors.New("Transaction numbers are only allowed on a replica set member or mongos")
		}
		return tx.Create(&models.SystemSetting{Key: "k", Value: "v"}).Error
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.True(t, a.Degraded())

	var count int64
	require.NoError(t, db.Model(&models.SystemSetting{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestAtomicClassifiesBodyErrors(t *testing.T) {
	db := testutil.NewDB(t)
	err := NewAtomic(db).Run(context.Background(), func(*gorm.DB) error {
		return errors.New("this store does not support transactions")
	})
	require.ErrorIs(t, err, domain.ErrTransactionUnsupported)
}

func TestAdaptiveKeepsModeOnOrdinaryErrors(t *testing.T) {
	db := testutil.NewDB(t)
	boom := errors.New("boom")
	primary := &failingRunner{err: boom}
	a := NewAdaptive(primary, NewBestEffort(db), nil)

	require.ErrorIs(t, a.Run(context.Background(), func(*gorm.DB) error { return nil }), boom)
	require.ErrorIs(t, a.Run(context.Background(), func(*gorm.DB) error { return nil }), boom)
	require.False(t, a.Degraded())
	require.EqualValues(t, 2, primary.calls.Load())
}

func TestIsUnsupported(t *testing.T) {
	require.True(t, IsUnsupported(domain.ErrTransactionUnsupported))
	require.True(t, IsUnsupported(errors.New("Transaction numbers are only allowed on a replica set member")))
	require.False(t, IsUnsupported(errors.New("duplicate key")))
	require.False(t, IsUnsupported(nil))
}

func TestDetect(t *testing.T) {
	db := testutil.NewDB(t)

	r, err := Detect(context.Background(), db, ModeAuto, nil)
	require.NoError(t, err)
	require.IsType(t, &Adaptive{}, r)
	require.Equal(t, ModeAtomic, r.Mode())

	r, err = Detect(context.Background(), db, ModeBestEffort, nil)
	require.NoError(t, err)
	require.Equal(t, ModeBestEffort, r.Mode())

	_, err = Detect(context.Background(), db, Mode("bogus"), nil)
	require.Error(t, err)
}
