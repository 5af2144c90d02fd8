// Package app 组装 storefront 的所有组件，供 HTTP 进程和 worker 进程共用。
package app

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"storefront/internal/pkg/auth"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/database"
	"storefront/internal/pkg/httpx"
	"storefront/internal/pkg/lock"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/objectstore"
	"storefront/internal/pkg/redis"
	"storefront/internal/pkg/session"
	accountapp "storefront/internal/service/account/application"
	accountinfra "storefront/internal/service/account/infrastructure"
	cartapp "storefront/internal/service/cart/application"
	cartinfra "storefront/internal/service/cart/infrastructure"
	catalogapp "storefront/internal/service/catalog/application"
	cataloginfra "storefront/internal/service/catalog/infrastructure"
	giftcardapp "storefront/internal/service/giftcard/application"
	giftcardinfra "storefront/internal/service/giftcard/infrastructure"
	liveapp "storefront/internal/service/livestream/application"
	liveinfra "storefront/internal/service/livestream/infrastructure"
	liveadapter "storefront/internal/service/livestream/infrastructure/adapter"
	loyaltyapp "storefront/internal/service/loyalty/application"
	loyaltyinfra "storefront/internal/service/loyalty/infrastructure"
	notificationinfra "storefront/internal/service/notification/infrastructure"
	orderapp "storefront/internal/service/order/application"
	orderdomain "storefront/internal/service/order/domain"
	orderinfra "storefront/internal/service/order/infrastructure"
	orderadapter "storefront/internal/service/order/infrastructure/adapter"
	paymentapp "storefront/internal/service/payment/application"
	paymentinfra "storefront/internal/service/payment/infrastructure"
	paymentadapter "storefront/internal/service/payment/infrastructure/adapter"
	"storefront/internal/service/payment/infrastructure/processor"
	promotionapp "storefront/internal/service/promotion/application"
	promotioninfra "storefront/internal/service/promotion/infrastructure"
	"storefront/internal/service/promotion/infrastructure/rule"
	wishlistapp "storefront/internal/service/wishlist/application"
	wishlistinfra "storefront/internal/service/wishlist/infrastructure"
)

const (
	productCacheTTL = 5 * time.Minute
	attemptWindow   = time.Hour
	sweepInterval   = 5 * time.Minute
)

// App 持有进程内所有共享组件和业务服务。连接的关闭都已注册到 Runtime 的关停钩子。
type App struct {
	DB         *gorm.DB
	Redis      *redis.Client
	Events     mq.Publisher
	Locker     lock.Locker
	Tokens     *auth.TokenManager
	Middleware *auth.Middleware
	Tracer     trace.Tracer

	GiftCardLimiter *httpx.KeyedLimiter

	Catalog     *catalogapp.CatalogService
	Accounts    *accountapp.AccountService
	Carts       *cartapp.CartService
	Promotions  *promotionapp.PromotionService
	GiftCards   *giftcardapp.GiftCardService
	Loyalty     *loyaltyapp.LoyaltyService
	Orders      *orderapp.OrderApplicationService
	Payments    *paymentapp.PaymentService
	Wishlists   *wishlistapp.WishlistService
	Livestreams *liveapp.LivestreamService

	NotificationRepo *notificationinfra.GormNotificationRepository
}

// New 按依赖顺序建立连接并组装服务，ctx 取消时后台任务随之退出
func New(ctx context.Context, rt *bootstrap.Runtime) (*App, error) {
	cfg := rt.Config
	a := &App{Tracer: otel.Tracer(rt.ServiceName)}

	// 1. 基础设施
	db, err := openDB(ctx, cfg.Infra.MySQL)
	if err != nil {
		return nil, err
	}
	rt.OnShutdown("mysql", func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	a.DB = db

	a.Redis, err = redis.NewClient(cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		return nil, err
	}
	rt.OnShutdown("redis", func(context.Context) error { return a.Redis.Close() })

	brokers := mq.SplitBrokers(cfg.Infra.Kafka.Brokers)
	eventWriter := mq.NewKafkaWriter(brokers, cfg.Infra.Kafka.EventsTopic)
	rt.OnShutdown("kafka-events", func(context.Context) error { return eventWriter.Close() })
	delayWriter := mq.NewKafkaWriter(brokers, cfg.Infra.Kafka.DelayTopic)
	rt.OnShutdown("kafka-delay", func(context.Context) error { return delayWriter.Close() })
	a.Events = mq.NewKafkaPublisher(eventWriter)

	a.Locker = lock.NewLocalLocker()
	if cfg.Infra.ZooKeeper.Enabled {
		zkLocker, closeZK, err := lock.DialZooKeeper(cfg.Infra.ZooKeeper.Servers, cfg.Infra.ZooKeeper.SessionTimeout)
		if err != nil {
			return nil, err
		}
		rt.OnShutdown("zookeeper", func(context.Context) error { closeZK(); return nil })
		a.Locker = zkLocker
	}

	// 未配置 MinIO 时商品图片上传不可用
	var images objectstore.Store
	if m := cfg.Infra.MinIO; m.Endpoint != "" {
		store, err := objectstore.NewMinIOStore(ctx, m.Endpoint, m.AccessKey, m.SecretKey, m.Bucket, m.UseSSL)
		if err != nil {
			return nil, err
		}
		images = store
	}

	sessions := session.NewManager(a.Redis.GetClient())
	a.Tokens, err = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid auth configuration: %w", err)
	}
	a.Middleware = auth.NewMiddleware(a.Tokens, sessions, cfg.Auth.CookieName)

	loginLimiter := httpx.NewPerMinute(cfg.RateLimit.LoginPerMinute)
	promoLimiter := httpx.NewPerMinute(cfg.RateLimit.PromoPerMinute)
	a.GiftCardLimiter = httpx.NewPerMinute(cfg.RateLimit.GiftCardPerMinute)
	for _, l := range []*httpx.KeyedLimiter{loginLimiter, promoLimiter, a.GiftCardLimiter} {
		l.StartSweeper(sweepInterval, ctx.Done())
	}

	// 2. 业务服务
	currency := cfg.App.Currency
	a.Catalog = catalogapp.NewCatalogService(
		cataloginfra.NewGormProductRepository(db),
		cataloginfra.NewGormCategoryRepository(db),
		cataloginfra.NewRedisProductCache(a.Redis, productCacheTTL),
		images, currency, a.Tracer,
	)

	a.Accounts = accountapp.NewAccountService(
		accountinfra.NewGormCustomerRepository(db),
		accountinfra.NewGormAddressRepository(db),
		a.Tokens, sessions, loginLimiter, a.Events, a.Tracer,
	)

	cartStore, err := cartinfra.NewRedisStore(a.Redis)
	if err != nil {
		return nil, fmt.Errorf("load cart scripts: %w", err)
	}
	a.Carts = cartapp.NewCartService(cartStore, a.Catalog, currency, a.Tracer)

	rules, err := rule.NewCELEngine()
	if err != nil {
		return nil, fmt.Errorf("init promotion rule engine: %w", err)
	}
	a.Promotions = promotionapp.NewPromotionService(
		promotioninfra.NewGormPromotionRepository(db), rules, promoLimiter,
		promotioninfra.NewRedisAttemptCounter(a.Redis, attemptWindow), a.Tracer,
	)

	a.GiftCards = giftcardapp.NewGiftCardService(giftcardinfra.NewGormGiftCardRepository(db), a.Locker, a.Events, currency, a.Tracer)

	a.Loyalty = loyaltyapp.NewLoyaltyService(loyaltyinfra.NewGormLoyaltyRepository(db), a.Locker, loyaltyapp.Options{
		RedeemCentsPerPoint: cfg.Loyalty.RedeemCentsPerPoint,
		MinRedeemPoints:     cfg.Loyalty.MinRedeemPoints,
	}, a.Tracer)

	a.Orders = orderapp.NewOrderApplicationService(orderinfra.NewGormOrderRepository(db), orderapp.Ports{
		Cart:       a.Carts,
		Inventory:  a.Catalog,
		Promotions: orderadapter.NewPromotionAdapter(a.Promotions),
		Loyalty:    orderadapter.NewLoyaltyAdapter(a.Loyalty),
		GiftCards:  a.GiftCards,
		Addresses:  a.Accounts,
		Scheduler:  orderadapter.NewSchedulerKafkaAdapter(delayWriter, cfg.Infra.Kafka.TimeoutTopic),
	}, orderapp.Options{
		Currency: currency,
		Pricing: orderdomain.PricingRules{
			TaxRateBps:            cfg.Checkout.TaxRateBps,
			FlatShippingCents:     cfg.Checkout.FlatShippingCents,
			FreeShippingThreshold: cfg.Checkout.FreeShippingThreshold,
		},
		PaymentTimeout: cfg.Checkout.PaymentTimeout,
	}, a.Locker, a.Events, a.Tracer)

	a.Payments = paymentapp.NewPaymentService(
		paymentinfra.NewGormPaymentRepository(db),
		paymentadapter.NewOrderAdapter(a.Orders),
		paymentadapter.NewRewardAdapter(a.Loyalty),
		processor.NewLocalProcessor(),
		a.Locker, a.Events, paymentapp.Options{
			CryptoEnabled:    cfg.App.FeatureFlags.EnableCryptoPay,
			CryptoCurrencies: cfg.Payment.CryptoCurrencies,
			DepositSecret:    []byte(cfg.Payment.DepositSecret),
		}, a.Tracer,
	)

	a.Wishlists = wishlistapp.NewWishlistService(wishlistinfra.NewGormWishlistRepository(db), a.Catalog, a.Carts, a.Tracer)

	viewers, err := liveadapter.NewViewerRedisAdapter(a.Redis)
	if err != nil {
		return nil, fmt.Errorf("load viewer scripts: %w", err)
	}
	a.Livestreams = liveapp.NewLivestreamService(liveinfra.NewGormStreamRepository(db), viewers, a.Catalog, a.Events, a.Tracer)

	a.NotificationRepo = notificationinfra.NewGormNotificationRepository(db)
	return a, nil
}

// Readiness 是 /readyz 要检查的依赖
func (a *App) Readiness() map[string]bootstrap.ReadinessCheck {
	return map[string]bootstrap.ReadinessCheck{
		"mysql": func(ctx context.Context) error { return database.Ping(ctx, a.DB) },
		"redis": a.Redis.Ping,
	}
}

// openDB 连接 MySQL，开启 AutoMigrate 时同步所有表结构
func openDB(ctx context.Context, m bootstrap.MySQLConfig) (*gorm.DB, error) {
	db, err := database.Open(ctx, database.Options{
		Addr:            m.Addr,
		User:            m.User,
		Password:        m.Password,
		Database:        m.Database,
		MaxOpenConns:    m.MaxOpenConns,
		MaxIdleConns:    m.MaxIdleConns,
		ConnMaxLifetime: m.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if !m.AutoMigrate {
		return db, nil
	}
	err = db.WithContext(ctx).AutoMigrate(
		&cataloginfra.ProductModel{}, &cataloginfra.CategoryModel{},
		&accountinfra.CustomerModel{}, &accountinfra.AddressModel{},
		&promotioninfra.PromotionModel{}, &promotioninfra.RedemptionModel{},
		&giftcardinfra.GiftCardModel{}, &giftcardinfra.TransactionModel{},
		&loyaltyinfra.AccountModel{}, &loyaltyinfra.TransactionModel{},
		&orderinfra.OrderModel{}, &orderinfra.OrderLineModel{},
		&paymentinfra.PaymentModel{},
		&wishlistinfra.WishlistItemModel{},
		&liveinfra.StreamModel{},
		&notificationinfra.NotificationModel{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	logger.L().Info().Msg("schema migrated")
	return db, nil
}
