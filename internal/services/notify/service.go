package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/drople/metering/internal/models"
)

// Service persists user-facing notifications. Callers treat delivery as
// fire-and-forget; a failed insert is their problem to log, never to
// propagate into a billing outcome.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

func (s *Service) Notify(ctx context.Context, accountID uuid.UUID, title, body string) error {
	n := &models.Notification{
		AccountID: accountID,
		Type:      models.NotificationSystem,
		Title:     title,
		Body:      body,
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	s.logger.Info("notification created",
		zap.String("account_id", accountID.String()),
		zap.String("title", title))
	return nil
}

func (s *Service) List(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var notifications []models.Notification
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&notifications).Error
	return notifications, err
}

func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ?", id).
		Update("read_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
