package infrastructure

import (
	"encoding/json"
	"time"

	"storefront/internal/service/livestream/domain"
)

// StreamModel 对应 live_streams 表，挂播商品以 JSON 数组保存
type StreamModel struct {
	ID          string `gorm:"primaryKey;type:char(36)"`
	Title       string `gorm:"size:120"`
	HostID      string `gorm:"type:char(36);index"`
	Status      string `gorm:"size:16;index:idx_status_started,priority:1"`
	ScheduledAt time.Time
	StartedAt   *time.Time `gorm:"index:idx_status_started,priority:2"`
	EndedAt     *time.Time
	ProductIDs  []string `gorm:"serializer:json;type:json"`
	PeakViewers int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (StreamModel) TableName() string {
	return "live_streams"
}

func ToDomainStream(m *StreamModel) *domain.Stream {
	ids := m.ProductIDs
	if ids == nil {
		ids = []string{}
	}
	return &domain.Stream{
		ID:          m.ID,
		Title:       m.Title,
		HostID:      m.HostID,
		Status:      domain.Status(m.Status),
		ScheduledAt: m.ScheduledAt,
		StartedAt:   m.StartedAt,
		EndedAt:     m.EndedAt,
		ProductIDs:  ids,
		PeakViewers: m.PeakViewers,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func FromDomainStream(s *domain.Stream) *StreamModel {
	return &StreamModel{
		ID:          s.ID,
		Title:       s.Title,
		HostID:      s.HostID,
		Status:      string(s.Status),
		ScheduledAt: s.ScheduledAt,
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
		ProductIDs:  s.ProductIDs,
		PeakViewers: s.PeakViewers,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// productIDsColumn 按列更新时不经过 serializer，需要自己编码
func productIDsColumn(ids []string) string {
	if ids == nil {
		ids = []string{}
	}
	b, _ := json.Marshal(ids)
	return string(b)
}
