package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tpia/internal/domain"
	"tpia/internal/econ"
	"tpia/internal/repository"
)

// SnapshotRefresher reloads the cached economic snapshot.
type SnapshotRefresher interface {
	Refresh(ctx context.Context) (econ.Snapshot, error)
}

// SettingsService edits the economic parameters. A change is applied only
// if the resulting snapshot validates, and takes effect for operations that
// start after it.
type SettingsService struct {
	repo      *repository.SettingRepository
	refresher SnapshotRefresher
	audit     Auditor
	log       *zap.Logger
}

func NewSettingsService(repo *repository.SettingRepository, refresher SnapshotRefresher, audit Auditor, log *zap.Logger) *SettingsService {
	if audit == nil {
		audit = nopAuditor{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SettingsService{repo: repo, refresher: refresher, audit: audit, log: log}
}

// Current returns the stored values overlaid on the defaults.
func (s *SettingsService) Current(ctx context.Context) (econ.Snapshot, error) {
	kv, err := s.stored(ctx)
	if err != nil {
		return econ.Snapshot{}, err
	}
	return econ.FromSettings(kv)
}

func (s *SettingsService) Update(ctx context.Context, changes map[string]string, actorID *uint) (econ.Snapshot, error) {
	kv, err := s.stored(ctx)
	if err != nil {
		return econ.Snapshot{}, err
	}
	known := econ.Defaults().Settings()
	for k, v := range changes {
		if _, ok := known[k]; !ok {
			return econ.Snapshot{}, fmt.Errorf("%w: unknown key %s", domain.ErrInvalidSettings, k)
		}
		kv[k] = strings.TrimSpace(v)
	}
	if _, err := econ.FromSettings(kv); err != nil {
		return econ.Snapshot{}, fmt.Errorf("%w: %v", domain.ErrInvalidSettings, err)
	}
	for k := range changes {
		if err := s.repo.Set(ctx, k, kv[k]); err != nil {
			return econ.Snapshot{}, err
		}
	}
	snap, err := s.refresher.Refresh(ctx)
	if err != nil {
		return econ.Snapshot{}, err
	}
	meta := make(map[string]any, len(changes))
	for k := range changes {
		meta[k] = kv[k]
	}
	s.audit.Record(ctx, actorID, "settings.update", "system_setting", "econ", meta)
	s.log.Info("economic settings updated", zap.Int("keys", len(changes)), zap.Int64("version", snap.Version))
	return snap, nil
}

func (s *SettingsService) stored(ctx context.Context) (map[string]string, error) {
	rows, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	kv := make(map[string]string, len(rows))
	for _, r := range rows {
		kv[r.Key] = r.Value
	}
	return kv, nil
}
