package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/service/livestream/domain"
)

// GormStreamRepository 是 domain.Repository 的 GORM 实现
type GormStreamRepository struct {
	db *gorm.DB
}

func NewGormStreamRepository(db *gorm.DB) *GormStreamRepository {
	return &GormStreamRepository{db: db}
}

func (r *GormStreamRepository) Create(ctx context.Context, s *domain.Stream) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(FromDomainStream(s)).Error, "create stream")
}

// Update 以状态为条件整体更新，没有命中时回读区分不存在和并发改动
func (r *GormStreamRepository) Update(ctx context.Context, s *domain.Stream, from domain.Status) error {
	m := FromDomainStream(s)
	res := r.db.WithContext(ctx).Model(&StreamModel{}).
		Where("id = ? AND status = ?", s.ID, string(from)).
		Updates(map[string]any{
			"title":        m.Title,
			"status":       m.Status,
			"started_at":   m.StartedAt,
			"ended_at":     m.EndedAt,
			"product_ids":  productIDsColumn(m.ProductIDs),
			"peak_viewers": m.PeakViewers,
			"updated_at":   m.UpdatedAt,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "update stream")
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := r.FindByID(ctx, s.ID); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

func (r *GormStreamRepository) FindByID(ctx context.Context, id string) (*domain.Stream, error) {
	var m StreamModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrStreamNotFound
		}
		return nil, errors.Wrap(err, "find stream")
	}
	return ToDomainStream(&m), nil
}

// List 按计划时间倒序
func (r *GormStreamRepository) List(ctx context.Context, status domain.Status, limit int) ([]*domain.Stream, error) {
	q := r.db.WithContext(ctx)
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var models []StreamModel
	if err := q.Order("scheduled_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list streams")
	}
	return toDomainStreams(models), nil
}

func (r *GormStreamRepository) ListLiveStartedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Stream, error) {
	var models []StreamModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", string(domain.StatusLive), cutoff).
		Order("started_at").
		Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list stale streams")
	}
	return toDomainStreams(models), nil
}

func toDomainStreams(models []StreamModel) []*domain.Stream {
	out := make([]*domain.Stream, 0, len(models))
	for i := range models {
		out = append(out, ToDomainStream(&models[i]))
	}
	return out
}
