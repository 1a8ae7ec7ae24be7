package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tpia/internal/cache"
	"tpia/internal/domain"
	"tpia/internal/econ"
	"tpia/internal/repository"
	"tpia/internal/testutil"
)

func TestSettingsUpdateValidatesAndRefreshes(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := repository.NewSettingRepository(db)
	require.NoError(t, repo.SeedDefaults(ctx, econ.Defaults().Settings()))
	provider := econ.NewSettingsProvider(repo, cache.NewMemoryStore(), time.Hour, nil)
	svc := NewSettingsService(repo, provider, nil, nil)

	before, err := provider.Snapshot(ctx)
	require.NoError(t, err)
	require.False(t, before.AutoApproveEnabled)

	snap, err := svc.Update(ctx, map[string]string{econ.KeyAutoApproveEnabled: "true"}, nil)
	require.NoError(t, err)
	require.True(t, snap.AutoApproveEnabled)

	cached, err := provider.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, cached.AutoApproveEnabled)

	// increasing penalties are rejected and nothing is written
	_, err = svc.Update(ctx, map[string]string{econ.KeyExitPenalties: `{"12":"0.1","15":"0.4"}`}, nil)
	require.ErrorIs(t, err, domain.ErrInvalidSettings)
	v, _, err := repo.Get(ctx, econ.KeyExitPenalties)
	require.NoError(t, err)
	require.Contains(t, v, `"12":"0.5"`)

	_, err = svc.Update(ctx, map[string]string{"econ.moon_phase": "full"}, nil)
	require.ErrorIs(t, err, domain.ErrInvalidSettings)

	current, err := svc.Current(ctx)
	require.NoError(t, err)
	require.True(t, current.AutoApproveEnabled)
}
