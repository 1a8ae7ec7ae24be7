package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"tpia/internal/models"
	"tpia/internal/repository"
)

type AuditService struct {
	repo *repository.AuditLogRepository
	log  *zap.Logger
}

func NewAuditService(repo *repository.AuditLogRepository, log *zap.Logger) *AuditService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditService{repo: repo, log: log}
}

// Record writes an audit row. Failures are logged and dropped.
func (s *AuditService) Record(ctx context.Context, actorID *uint, action, resource, resourceID string, meta map[string]any) {
	entry := &models.AuditLog{ActorID: actorID, Action: action, Resource: resource, ResourceID: resourceID}
	if meta != nil {
		b, _ := json.Marshal(meta)
		entry.Metadata = datatypes.JSON(b)
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.String("resource_id", resourceID), zap.Error(err))
	}
}

func (s *AuditService) List(ctx context.Context, resource string, limit, offset int) ([]models.AuditLog, error) {
	return s.repo.List(ctx, resource, limit, offset)
}
