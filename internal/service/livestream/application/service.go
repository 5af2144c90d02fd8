package application

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/apperr"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/mq"
	catalog "storefront/internal/service/catalog/domain"
	"storefront/internal/service/livestream/domain"
	"storefront/internal/service/livestream/domain/port"
)

const listLimit = 100

// ProductCatalog 由 catalog 服务实现
type ProductCatalog interface {
	GetProduct(ctx context.Context, id string, public bool) (*catalog.Product, error)
}

// LivestreamService 管理直播场次和在线人数
type LivestreamService struct {
	repo     domain.Repository
	viewers  port.ViewerCounter
	products ProductCatalog
	events   mq.Publisher
	tracer   trace.Tracer
	now      func() time.Time
}

func NewLivestreamService(repo domain.Repository, viewers port.ViewerCounter, products ProductCatalog, events mq.Publisher, tracer trace.Tracer) *LivestreamService {
	return &LivestreamService{
		repo:     repo,
		viewers:  viewers,
		products: products,
		events:   events,
		tracer:   tracer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *LivestreamService) Create(ctx context.Context, hostID string, req CreateRequest) (*domain.Stream, error) {
	ctx, span := s.tracer.Start(ctx, "livestream.Create")
	defer span.End()

	title := strings.TrimSpace(req.Title)
	if title == "" || utf8.RuneCountInString(title) > domain.MaxTitleLen {
		return nil, apperr.InvalidInput("title must be 1-%d characters", domain.MaxTitleLen)
	}
	now := s.now()
	if req.ScheduledAt.IsZero() {
		req.ScheduledAt = now
	}
	st := &domain.Stream{
		ID:          uuid.NewString(),
		Title:       title,
		HostID:      hostID,
		Status:      domain.StatusScheduled,
		ScheduledAt: req.ScheduledAt.UTC(),
		ProductIDs:  []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, id := range req.ProductIDs {
		if err := s.feature(ctx, st, id); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Create(ctx, st); err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("stream_id", st.ID).Str("host_id", hostID).Msg("stream scheduled")
	return st, nil
}

// Start 开播前清掉可能残留的计数
func (s *LivestreamService) Start(ctx context.Context, id string) (*domain.Stream, error) {
	ctx, span := s.tracer.Start(ctx, "livestream.Start")
	defer span.End()
	span.SetAttributes(attribute.String("stream.id", id))

	st, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := st.Start(s.now()); err != nil {
		return nil, err
	}
	if _, err := s.viewers.Reset(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, st, domain.StatusScheduled); err != nil {
		span.RecordError(err)
		return nil, err
	}
	metrics.LiveViewers.WithLabelValues(id).Set(0)
	s.publish(ctx, mq.EventStreamStarted, id, StreamStarted{
		StreamID:   st.ID,
		Title:      st.Title,
		HostID:     st.HostID,
		ProductIDs: st.ProductIDs,
		StartedAt:  *st.StartedAt,
	})
	logger.Ctx(ctx).Info().Str("stream_id", id).Msg("stream started")
	return st, nil
}

// End 峰值从计数器落库后计数器被清空
func (s *LivestreamService) End(ctx context.Context, id string) (*domain.Stream, error) {
	ctx, span := s.tracer.Start(ctx, "livestream.End")
	defer span.End()
	span.SetAttributes(attribute.String("stream.id", id))

	st, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Status != domain.StatusLive {
		return nil, domain.ErrInvalidTransition
	}
	peak, err := s.viewers.Reset(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := st.End(peak, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, st, domain.StatusLive); err != nil {
		span.RecordError(err)
		return nil, err
	}
	metrics.LiveViewers.DeleteLabelValues(id)
	logger.Ctx(ctx).Info().Str("stream_id", id).Int64("peak_viewers", st.PeakViewers).Msg("stream ended")
	return st, nil
}

func (s *LivestreamService) FeatureProduct(ctx context.Context, id, productID string) (*domain.Stream, error) {
	ctx, span := s.tracer.Start(ctx, "livestream.FeatureProduct")
	defer span.End()
	span.SetAttributes(attribute.String("stream.id", id), attribute.String("product.id", productID))

	st, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := st.Status
	before := len(st.ProductIDs)
	if err := s.feature(ctx, st, productID); err != nil {
		return nil, err
	}
	if len(st.ProductIDs) == before {
		return st, nil
	}
	if err := s.repo.Update(ctx, st, from); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return st, nil
}

func (s *LivestreamService) feature(ctx context.Context, st *domain.Stream, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return apperr.InvalidInput("product_id is required")
	}
	if _, err := s.products.GetProduct(ctx, productID, true); err != nil {
		return err
	}
	_, err := st.Feature(productID, s.now())
	return err
}

func (s *LivestreamService) List(ctx context.Context, status string) ([]*StreamDTO, error) {
	ctx, span := s.tracer.Start(ctx, "livestream.List")
	defer span.End()

	st := domain.Status(strings.ToUpper(strings.TrimSpace(status)))
	if st != "" && !st.Valid() {
		return nil, apperr.InvalidInput("unknown stream status %q", status)
	}
	streams, err := s.repo.List(ctx, st, listLimit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out := make([]*StreamDTO, 0, len(streams))
	for _, item := range streams {
		out = append(out, ToStreamDTO(item, s.liveCount(ctx, item)))
	}
	return out, nil
}

func (s *LivestreamService) Get(ctx context.Context, id string) (*StreamDTO, error) {
	ctx, span := s.tracer.Start(ctx, "livestream.Get")
	defer span.End()

	st, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToStreamDTO(st, s.liveCount(ctx, st)), nil
}

// liveCount 读不到计数时返回 0，不影响详情展示
func (s *LivestreamService) liveCount(ctx context.Context, st *domain.Stream) int64 {
	if st.Status != domain.StatusLive {
		return 0
	}
	n, err := s.viewers.Count(ctx, st.ID)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("stream_id", st.ID).Msg("failed to read viewer count")
		return 0
	}
	return n
}

// Join 只有直播中的场次可以进入
func (s *LivestreamService) Join(ctx context.Context, id string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "livestream.Join")
	defer span.End()

	st, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if st.Status != domain.StatusLive {
		return 0, domain.ErrStreamNotLive
	}
	count, peak, err := s.viewers.Join(ctx, id)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int64("stream.viewers", count), attribute.Int64("stream.peak", peak))
	metrics.LiveViewers.WithLabelValues(id).Set(float64(count))
	return count, nil
}

func (s *LivestreamService) Leave(ctx context.Context, id string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "livestream.Leave")
	defer span.End()

	count, err := s.viewers.Leave(ctx, id)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	metrics.LiveViewers.WithLabelValues(id).Set(float64(count))
	return count, nil
}

func (s *LivestreamService) Viewers(ctx context.Context, id string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "livestream.Viewers")
	defer span.End()

	st, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if st.Status != domain.StatusLive {
		return 0, nil
	}
	return s.viewers.Count(ctx, id)
}

// EndStale 结束开播超过 maxAge 的场次，返回结束的数量
func (s *LivestreamService) EndStale(ctx context.Context, maxAge time.Duration) (int, error) {
	ctx, span := s.tracer.Start(ctx, "livestream.EndStale")
	defer span.End()

	streams, err := s.repo.ListLiveStartedBefore(ctx, s.now().Add(-maxAge))
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	ended := 0
	for _, st := range streams {
		if _, err := s.End(ctx, st.ID); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("stream_id", st.ID).Msg("failed to end stale stream")
			continue
		}
		ended++
	}
	span.SetAttributes(attribute.Int("streams.ended", ended))
	return ended, nil
}

func (s *LivestreamService) publish(ctx context.Context, eventType, key string, payload any) {
	if s.events == nil {
		return
	}
	ev, err := mq.NewEvent(eventType, key, payload)
	if err == nil {
		err = s.events.Publish(ctx, ev)
	}
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
