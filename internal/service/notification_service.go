package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"tpia/internal/models"
	"tpia/internal/repository"
)

// Pusher delivers a payload to a connected user, if any.
type Pusher interface {
	BroadcastToUser(userID uint, payload interface{})
}

type NotificationService struct {
	repo    *repository.NotificationRepository
	hub     Pusher
	webhook *WebhookSender
	log     *zap.Logger
	now     func() time.Time
}

func NewNotificationService(repo *repository.NotificationRepository, hub Pusher, webhook *WebhookSender, log *zap.Logger) *NotificationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationService{repo: repo, hub: hub, webhook: webhook, log: log, now: time.Now}
}

// Notify stores the notification and pushes it to open sockets and the
// webhook. Errors are logged, never returned.
func (s *NotificationService) Notify(ctx context.Context, userID uint, kind, title, body string, data map[string]any) {
	n := &models.Notification{UserID: userID, Type: kind, Title: title, Body: body}
	if data != nil {
		b, _ := json.Marshal(data)
		n.Data = datatypes.JSON(b)
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.log.Warn("notification store failed", zap.Uint("user_id", userID), zap.String("type", kind), zap.Error(err))
	}
	if s.hub != nil {
		s.hub.BroadcastToUser(userID, map[string]interface{}{"type": "notification", "notification": n})
	}
	if s.webhook != nil {
		payload := WebhookPayload{Event: kind, UserID: userID, Title: title, Body: body, Data: data}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.webhook.Timeout)
			defer cancel()
			if err := s.webhook.Send(ctx, payload); err != nil {
				s.log.Warn("notification webhook failed", zap.Uint("user_id", userID), zap.String("type", kind), zap.Error(err))
			}
		}()
	}
}

func (s *NotificationService) List(ctx context.Context, userID uint, limit, offset int) ([]models.Notification, error) {
	return s.repo.ListByUserID(ctx, userID, limit, offset)
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID uint) error {
	return s.repo.MarkRead(ctx, id, userID, s.now())
}
