package mq

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
)

const (
	HeaderRealTopic      = "real-topic"
	HeaderDelayTimestamp = "delay-timestamp"
)

// MessageFetcher 是 *kafka.Reader 中延迟调度用到的部分
type MessageFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ProduceDelayed 把消息写入延迟 topic，到期后由 DelayScheduler 转投到 realTopic
func ProduceDelayed(ctx context.Context, writer MessageWriter, realTopic string, deliverAt time.Time, key, value []byte) error {
	return ProduceMessage(ctx, writer, key, value,
		kafka.Header{Key: HeaderRealTopic, Value: []byte(realTopic)},
		kafka.Header{Key: HeaderDelayTimestamp, Value: []byte(deliverAt.UTC().Format(time.RFC3339Nano))},
	)
}

// DelayScheduler 消费一个延迟等级的 topic，消息到期后投递到 real-topic 头指定的业务 topic。
// 同一分区内消息按写入时间有序，所以队头未到期时后面的也一定未到期。
type DelayScheduler struct {
	level  string
	delay  time.Duration
	reader MessageFetcher
	writer MessageWriter // 不绑定 topic
	tracer trace.Tracer
}

func NewDelayScheduler(level string, delay time.Duration, reader MessageFetcher, writer MessageWriter) *DelayScheduler {
	return &DelayScheduler{
		level:  level,
		delay:  delay,
		reader: reader,
		writer: writer,
		tracer: otel.Tracer("delay-scheduler"),
	}
}

// Run 阻塞运行直到 ctx 取消
func (s *DelayScheduler) Run(ctx context.Context) {
	logger.L().Info().Str("level", s.level).Dur("delay", s.delay).Msg("✅ delay scheduler started")
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.L().Info().Str("level", s.level).Msg("🛑 delay scheduler shutting down")
				return
			}
			logger.L().Error().Err(err).Str("level", s.level).Msg("fetch delayed message failed")
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}

		// 队头没到期就等着，不能跳过去读下一条
		if wait := time.Until(s.deliveryTime(msg)); wait > 0 {
			if !sleepCtx(ctx, wait) {
				return
			}
		}

		for !s.forward(ctx, msg) {
			if !sleepCtx(ctx, time.Second) {
				return
			}
		}
	}
}

func (s *DelayScheduler) deliveryTime(msg kafka.Message) time.Time {
	if ts := HeaderValue(msg.Headers, HeaderDelayTimestamp); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return t
		}
	}
	return msg.Time.Add(s.delay)
}

// forward 返回 false 表示需要重试
func (s *DelayScheduler) forward(parent context.Context, msg kafka.Message) bool {
	ctx, span := s.tracer.Start(ExtractTraceContext(parent, msg.Headers), "scheduler.Forward", trace.WithAttributes(
		attribute.String("delay.level", s.level),
		attribute.String("msg.time", msg.Time.Format(time.DateTime)),
	))
	defer span.End()

	realTopic := HeaderValue(msg.Headers, HeaderRealTopic)
	if realTopic == "" {
		logger.Ctx(ctx).Error().Str("level", s.level).Msg("'real-topic' header missing, skipping")
		if err := s.reader.CommitMessages(parent, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("commit skipped message failed")
		}
		return true
	}

	out := kafka.Message{Topic: realTopic, Key: msg.Key, Value: msg.Value}
	InjectTraceContext(ctx, &out.Headers)
	if err := s.writer.WriteMessages(ctx, out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish to real topic failed")
		logger.Ctx(ctx).Error().Err(err).Str("topic", realTopic).Msg("publish delayed message failed")
		return false
	}
	if err := s.reader.CommitMessages(parent, msg); err != nil {
		// 已经投递，提交失败只会导致重复投递，由下游幂等处理
		logger.Ctx(ctx).Error().Err(err).Str("level", s.level).Msg("commit after publish failed")
	}
	span.AddEvent("MessagePublishedAndCommitted", trace.WithAttributes(attribute.String("real.topic", realTopic)))
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
