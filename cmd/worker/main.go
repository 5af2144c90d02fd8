// cmd/worker/main.go
package main

import (
	"context"

	"github.com/robfig/cron/v3"

	"storefront/internal/app"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	notificationapp "storefront/internal/service/notification/application"
	notificationinfra "storefront/internal/service/notification/infrastructure"
	notificationapi "storefront/internal/service/notification/interfaces"
	orderapi "storefront/internal/service/order/interfaces"
)

const (
	serviceName = "storefront-worker"
	delayLevel  = "15m"
)

// worker 负责所有异步任务：延迟消息转投、支付超时、通知、死信以及定时维护
func main() {
	rt, err := bootstrap.Init(serviceName)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to initialize runtime")
	}
	ctx, cancel := context.WithCancel(context.Background())
	rt.OnShutdown("background", func(context.Context) error { cancel(); return nil })

	a, err := app.New(ctx, rt)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to assemble storefront")
	}
	cfg := rt.Config
	kafkaCfg := cfg.Infra.Kafka
	brokers := mq.SplitBrokers(kafkaCfg.Brokers)

	// 重投、死信、延迟转投共用一个不绑定 topic 的 writer
	writer := mq.NewTopiclessWriter(brokers)
	rt.OnShutdown("kafka-writer", func(context.Context) error { return writer.Close() })
	failure := mq.NewFailureHandler(writer, kafkaCfg.MaxRetries)

	// 1. 延迟调度：delay topic 到期后转投到超时 topic
	delayReader := mq.NewKafkaReader(brokers, kafkaCfg.DelayTopic, serviceName+"-"+kafkaCfg.DelayTopic)
	delayCtx, stopDelay := context.WithCancel(ctx)
	delayDone := make(chan struct{})
	go func() {
		defer close(delayDone)
		mq.NewDelayScheduler(delayLevel, cfg.Checkout.PaymentTimeout, delayReader, writer).Run(delayCtx)
	}()
	rt.OnShutdown("delay-scheduler", func(context.Context) error {
		stopDelay()
		<-delayDone
		return delayReader.Close()
	})

	// 2. 支付超时检查
	startConsumer(ctx, rt, "order-timeout", mq.NewConsumer("order-timeout",
		mq.NewKafkaReader(brokers, kafkaCfg.TimeoutTopic, serviceName+"-order-timeout"),
		orderapi.NewOrderTimeoutHandler(a.Orders), failure))

	// 3. 领域事件生成通知
	notifications := notificationapp.NewNotificationService(a.NotificationRepo, forwarder(rt, a), a.Tracer)
	startConsumer(ctx, rt, "notifications", mq.NewConsumer("notifications",
		mq.NewKafkaReader(brokers, kafkaCfg.EventsTopic, serviceName+"-notifications"),
		notificationapi.NewEventHandler(notifications), failure))

	// 4. 死信只记录，不再重试
	for _, topic := range []string{kafkaCfg.EventsTopic, kafkaCfg.TimeoutTopic} {
		dlt := mq.DLTTopic(topic)
		startConsumer(ctx, rt, dlt, mq.NewConsumer(dlt,
			mq.NewKafkaReader(brokers, dlt, serviceName+"-"+dlt),
			notificationapi.NewDeadLetterHandler(), nil))
	}

	// 5. 定时维护
	scheduler := cron.New()
	jobs := a.MaintenanceJobs(cfg.Worker.ExpirePromotionsSpec, cfg.Worker.EndStaleStreamsSpec,
		cfg.Worker.CancelOverdueSpec, cfg.Worker.StaleStreamAfter)
	if err := app.ScheduleJobs(ctx, scheduler, jobs); err != nil {
		logger.L().Fatal().Err(err).Msg("failed to schedule jobs")
	}
	scheduler.Start()
	rt.OnShutdown("cron", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	bootstrap.StartService(rt, bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.Worker.Port,
		Readiness:   a.Readiness(),
	})
}

func startConsumer(ctx context.Context, rt *bootstrap.Runtime, name string, c *mq.Consumer) {
	c.Start(ctx)
	rt.OnShutdown(name, func(context.Context) error { c.Stop(); return nil })
}

// forwarder 按配置组合 webhook 与 RabbitMQ 两种出口，都没有时只落库
func forwarder(rt *bootstrap.Runtime, a *app.App) notificationapp.Forwarder {
	cfg := rt.Config
	var fs notificationinfra.Forwarders
	if cfg.App.FeatureFlags.EnableWebhooks && cfg.Worker.WebhookURL != "" {
		fs = append(fs, notificationinfra.NewWebhookForwarder(httpclient.NewClient(a.Tracer), cfg.Worker.WebhookURL))
	}
	if cfg.Infra.AMQP.Enabled {
		publisher, conn, err := mq.DialAMQP(cfg.Infra.AMQP.URL, cfg.Infra.AMQP.Queue)
		if err != nil {
			logger.L().Fatal().Err(err).Msg("failed to connect rabbitmq")
		}
		rt.OnShutdown("rabbitmq", func(context.Context) error { return conn.Close() })
		fs = append(fs, notificationinfra.NewQueueForwarder(publisher))
	}
	if len(fs) == 0 {
		return nil
	}
	return fs
}
