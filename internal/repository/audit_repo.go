package repository

import (
	"context"

	"gorm.io/gorm"

	"tpia/internal/models"
)

type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Create(ctx context.Context, log *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *AuditLogRepository) List(ctx context.Context, resource string, limit, offset int) ([]models.AuditLog, error) {
	q := r.db.WithContext(ctx).Model(&models.AuditLog{})
	if resource != "" {
		q = q.Where("resource = ?", resource)
	}
	var list []models.AuditLog
	err := q.Order("id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}
