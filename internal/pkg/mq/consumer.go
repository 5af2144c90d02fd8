package mq

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/logger"
)

// MessageReader 是 *kafka.Reader 中消费者用到的部分
type MessageReader interface {
	MessageFetcher
	io.Closer
}

// HandlerFunc 处理一条消息，返回 error 时交给 FailureHandler
type HandlerFunc func(ctx context.Context, msg kafka.Message) error

const maxHandoffBackoff = 30 * time.Second

// Consumer 是一个通用的 Kafka 消费循环：拉取、恢复链路、处理、失败转交、提交 offset
type Consumer struct {
	name    string
	reader  MessageReader
	handle  HandlerFunc
	failure *FailureHandler
	backoff time.Duration // 转交失败后的首次等待

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewConsumer(name string, reader MessageReader, handle HandlerFunc, failure *FailureHandler) *Consumer {
	return &Consumer{name: name, reader: reader, handle: handle, failure: failure, backoff: time.Second}
}

// Start 在后台 goroutine 中开始消费
func (c *Consumer) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.L().Info().Str("consumer", c.name).Msg("✅ Kafka consumer started")
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.L().Info().Str("consumer", c.name).Msg("🛑 Kafka consumer shutting down")
					return
				}
				logger.L().Error().Err(err).Str("consumer", c.name).Msg("could not read message, retrying")
				if !sleepCtx(ctx, time.Second) {
					return
				}
				continue
			}
			c.process(ctx, msg)
		}
	}()
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	msgCtx := ExtractTraceContext(ctx, msg.Headers)
	if err := c.handle(msgCtx, msg); err != nil {
		if c.failure == nil {
			logger.Ctx(msgCtx).Error().Err(err).Str("consumer", c.name).Msg("message processing failed, dropped")
		} else {
			// 转交成功前不能继续拉取，否则后续消息的提交会越过这一条
			for backoff := c.backoff; c.failure.Handle(msgCtx, msg, err) != nil; backoff = min(backoff*2, maxHandoffBackoff) {
				if !sleepCtx(ctx, backoff) {
					return
				}
			}
		}
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		logger.Ctx(msgCtx).Error().Err(err).Str("consumer", c.name).Msg("failed to commit message")
	}
}

// Stop 停止消费并等待后台 goroutine 退出
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if err := c.reader.Close(); err != nil {
		logger.L().Error().Err(err).Str("consumer", c.name).Msg("close reader failed")
	}
	logger.L().Info().Str("consumer", c.name).Msg("✅ Kafka consumer stopped")
}
