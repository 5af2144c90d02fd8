// Package domain 定义直播带货的直播间。
package domain

import (
	"context"
	"time"

	"storefront/internal/pkg/apperr"
)

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusLive      Status = "LIVE"
	StatusEnded     Status = "ENDED"
)

func (s Status) Valid() bool {
	return s == StatusScheduled || s == StatusLive || s == StatusEnded
}

const (
	MaxTitleLen    = 120
	MaxProducts    = 50
	MaxChatMessage = 500
)

var (
	ErrStreamNotFound    = apperr.New(apperr.CodeNotFound, "stream not found")
	ErrInvalidTransition = apperr.New(apperr.CodeConflict, "stream cannot move to the requested status")
	ErrStreamNotLive     = apperr.New(apperr.CodeConflict, "stream is not live")
	ErrStreamEnded       = apperr.New(apperr.CodeConflict, "stream has ended")
	ErrTooManyProducts   = apperr.New(apperr.CodeUnprocessable, "too many featured products")
)

// Stream 是一场直播。PeakViewers 在结束时从 Redis 计数器落库。
type Stream struct {
	ID          string
	Title       string
	HostID      string
	Status      Status
	ScheduledAt time.Time
	StartedAt   *time.Time
	EndedAt     *time.Time
	ProductIDs  []string
	PeakViewers int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s *Stream) Start(now time.Time) error {
	if s.Status != StatusScheduled {
		return ErrInvalidTransition
	}
	s.Status = StatusLive
	s.StartedAt = &now
	s.UpdatedAt = now
	return nil
}

// End 峰值只增不减
func (s *Stream) End(peak int64, now time.Time) error {
	if s.Status != StatusLive {
		return ErrInvalidTransition
	}
	s.Status = StatusEnded
	s.EndedAt = &now
	s.UpdatedAt = now
	if peak > s.PeakViewers {
		s.PeakViewers = peak
	}
	return nil
}

// Feature 把商品挂到直播间，已挂过的返回 false
func (s *Stream) Feature(productID string, now time.Time) (bool, error) {
	if s.Status == StatusEnded {
		return false, ErrStreamEnded
	}
	for _, id := range s.ProductIDs {
		if id == productID {
			return false, nil
		}
	}
	if len(s.ProductIDs) >= MaxProducts {
		return false, ErrTooManyProducts
	}
	s.ProductIDs = append(s.ProductIDs, productID)
	s.UpdatedAt = now
	return true, nil
}

type Repository interface {
	Create(ctx context.Context, s *Stream) error
	// Update 仅当库里状态仍为 from 时生效
	Update(ctx context.Context, s *Stream, from Status) error
	FindByID(ctx context.Context, id string) (*Stream, error)
	// List status 为空时返回全部
	List(ctx context.Context, status Status, limit int) ([]*Stream, error)
	ListLiveStartedBefore(ctx context.Context, cutoff time.Time) ([]*Stream, error)
}
