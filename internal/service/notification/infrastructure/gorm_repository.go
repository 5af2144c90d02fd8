package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/pkg/database"
	"storefront/internal/service/notification/domain"
)

// NotificationModel 对应 notifications 表
type NotificationModel struct {
	ID         string    `gorm:"primaryKey;type:char(36)"`
	EventID    string    `gorm:"type:char(36);uniqueIndex"`
	EventType  string    `gorm:"size:64"`
	CustomerID string    `gorm:"type:char(36);index:idx_customer_created,priority:1"`
	Recipient  string    `gorm:"size:255"`
	Subject    string    `gorm:"size:255"`
	Body       string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index:idx_customer_created,priority:2"`
}

func (NotificationModel) TableName() string {
	return "notifications"
}

type GormNotificationRepository struct {
	db *gorm.DB
}

func NewGormNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db}
}

func (r *GormNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	m := &NotificationModel{
		ID:         n.ID,
		EventID:    n.EventID,
		EventType:  n.EventType,
		CustomerID: n.CustomerID,
		Recipient:  n.Recipient,
		Subject:    n.Subject,
		Body:       n.Body,
		CreatedAt:  n.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return domain.ErrAlreadyRecorded
		}
		return errors.Wrap(err, "create notification")
	}
	return nil
}

func (r *GormNotificationRepository) ExistsForEvent(ctx context.Context, eventID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&NotificationModel{}).Where("event_id = ?", eventID).Count(&n).Error
	return n > 0, errors.Wrap(err, "check notification")
}

func (r *GormNotificationRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*domain.Notification, error) {
	var models []NotificationModel
	if err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	out := make([]*domain.Notification, 0, len(models))
	for _, m := range models {
		out = append(out, &domain.Notification{
			ID:         m.ID,
			EventID:    m.EventID,
			EventType:  m.EventType,
			CustomerID: m.CustomerID,
			Recipient:  m.Recipient,
			Subject:    m.Subject,
			Body:       m.Body,
			CreatedAt:  m.CreatedAt,
		})
	}
	return out, nil
}
