// cmd/storefront/main.go
package main

import (
	"context"

	"storefront/internal/app"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/logger"
	accountapi "storefront/internal/service/account/interfaces"
	cartapi "storefront/internal/service/cart/interfaces"
	catalogapi "storefront/internal/service/catalog/interfaces"
	giftcardapi "storefront/internal/service/giftcard/interfaces"
	liveapi "storefront/internal/service/livestream/interfaces"
	loyaltyapi "storefront/internal/service/loyalty/interfaces"
	notificationapp "storefront/internal/service/notification/application"
	notificationapi "storefront/internal/service/notification/interfaces"
	orderapi "storefront/internal/service/order/interfaces"
	paymentapi "storefront/internal/service/payment/interfaces"
	promotionapi "storefront/internal/service/promotion/interfaces"
	wishlistapi "storefront/internal/service/wishlist/interfaces"
)

const serviceName = "storefront"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
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

	// 通知在 worker 中生成，这里只提供查询
	notifications := notificationapp.NewNotificationService(a.NotificationRepo, nil, a.Tracer)

	var live *liveapi.LivestreamHandler
	if cfg.App.FeatureFlags.EnableLiveShopping {
		hub := liveapi.NewHub()
		go hub.Run(ctx)
		live = liveapi.NewLivestreamHandler(a.Livestreams, hub)
	}

	bootstrap.StartService(rt, bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			r, mw := appCtx.Router, a.Middleware
			catalogapi.NewCatalogHandler(a.Catalog).RegisterRoutes(r, mw)
			accountapi.NewAccountHandler(a.Accounts, accountapi.CookieOptions{
				Name:   cfg.Auth.CookieName,
				Secure: cfg.Auth.SecureCookie,
			}).RegisterRoutes(r, mw)
			cartapi.NewCartHandler(a.Carts).RegisterRoutes(r, mw)
			promotionapi.NewPromotionHandler(a.Promotions, a.Orders).RegisterRoutes(r, mw)
			giftcardapi.NewGiftCardHandler(a.GiftCards, a.GiftCardLimiter).RegisterRoutes(r, mw)
			loyaltyapi.NewLoyaltyHandler(a.Loyalty).RegisterRoutes(r, mw)
			orderapi.NewOrderHandler(a.Orders).RegisterRoutes(r, mw)
			paymentapi.NewPaymentHandler(a.Payments).RegisterRoutes(r, mw)
			wishlistapi.NewWishlistHandler(a.Wishlists).RegisterRoutes(r, mw)
			notificationapi.NewNotificationHandler(notifications).RegisterRoutes(r, mw)
			if live != nil {
				live.RegisterRoutes(r, mw)
			}
		},
		Readiness: a.Readiness(),
	})
}
