package econ

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"tpia/internal/cache"
	"tpia/internal/models"
)

const snapshotCacheKey = "econ:snapshot"

type Provider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Static always returns the same snapshot.
type Static Snapshot

func (s Static) Snapshot(context.Context) (Snapshot, error) { return Snapshot(s), nil }

type SettingsSource interface {
	GetAll(ctx context.Context) ([]models.SystemSetting, error)
}

// SettingsProvider reads system_settings and keeps the resulting snapshot in
// a cache for ttl. Refresh forces a reload.
type SettingsProvider struct {
	source SettingsSource
	cache  cache.Store
	ttl    time.Duration
	log    *zap.Logger
}

func NewSettingsProvider(source SettingsSource, store cache.Store, ttl time.Duration, log *zap.Logger) *SettingsProvider {
	if log == nil {
		log = zap.NewNop()
	}
	if store == nil {
		store = cache.NewMemoryStore()
	}
	return &SettingsProvider{source: source, cache: store, ttl: ttl, log: log}
}

func (p *SettingsProvider) Snapshot(ctx context.Context) (Snapshot, error) {
	raw, ok, err := p.cache.Get(ctx, snapshotCacheKey)
	if err != nil {
		p.log.Warn("econ snapshot cache read failed", zap.Error(err))
	}
	if ok {
		var s Snapshot
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil
		}
		p.log.Warn("econ snapshot cache entry unreadable, reloading")
	}
	return p.Refresh(ctx)
}

func (p *SettingsProvider) Refresh(ctx context.Context) (Snapshot, error) {
	rows, err := p.source.GetAll(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	kv := make(map[string]string, len(rows))
	var version int64
	for _, r := range rows {
		kv[r.Key] = r.Value
		if v := r.UpdatedAt.UnixMilli(); v > version {
			version = v
		}
	}
	s, err := FromSettings(kv)
	if err != nil {
		return Snapshot{}, err
	}
	s.Version = version

	raw, err := json.Marshal(s)
	if err == nil {
		err = p.cache.Set(ctx, snapshotCacheKey, raw, p.ttl)
	}
	if err != nil {
		p.log.Warn("econ snapshot cache write failed", zap.Error(err))
	}
	return s, nil
}
