package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/valdigley/studio-booking/internal/model"
)

type NotificationRepository interface {
	Create(ctx context.Context, notification *model.Notification) error
	// Queued notifications across all tenants, oldest first.
	ListQueued(ctx context.Context, limit int) ([]model.Notification, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkSkipped(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

type GormNotificationRepository struct {
	db *gorm.DB
}

func NewGormNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db}
}

func (r *GormNotificationRepository) Create(ctx context.Context, notification *model.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *GormNotificationRepository) ListQueued(ctx context.Context, limit int) ([]model.Notification, error) {
	var notifications []model.Notification
	q := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("status = ?", model.NotificationStatusQueued).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *GormNotificationRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": model.NotificationStatusSent, "sent_at": at}).
		Error
}

func (r *GormNotificationRepository) MarkSkipped(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ?", id).
		Update("status", model.NotificationStatusSkipped).
		Error
}

func (r *GormNotificationRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": model.NotificationStatusFailed, "error": reason}).
		Error
}
