package application

import (
	"time"

	"storefront/internal/service/livestream/domain"
)

type CreateRequest struct {
	Title       string    `json:"title"`
	ScheduledAt time.Time `json:"scheduled_at"`
	ProductIDs  []string  `json:"product_ids"`
}

type FeatureRequest struct {
	ProductID string `json:"product_id"`
}

// StreamDTO 直播中的场次附带实时在线人数
type StreamDTO struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	HostID      string     `json:"host_id"`
	Status      string     `json:"status"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	ProductIDs  []string   `json:"product_ids"`
	PeakViewers int64      `json:"peak_viewers"`
	Viewers     int64      `json:"viewers"`
}

func ToStreamDTO(s *domain.Stream, viewers int64) *StreamDTO {
	return &StreamDTO{
		ID:          s.ID,
		Title:       s.Title,
		HostID:      s.HostID,
		Status:      string(s.Status),
		ScheduledAt: s.ScheduledAt,
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
		ProductIDs:  s.ProductIDs,
		PeakViewers: s.PeakViewers,
		Viewers:     viewers,
	}
}

// StreamStarted 是 stream.started 事件的负载
type StreamStarted struct {
	StreamID   string    `json:"streamId"`
	Title      string    `json:"title"`
	HostID     string    `json:"hostId"`
	ProductIDs []string  `json:"productIds"`
	StartedAt  time.Time `json:"startedAt"`
}
