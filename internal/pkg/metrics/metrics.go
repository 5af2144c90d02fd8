// Package metrics 集中注册进程内所有 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	HTTPInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_http_in_flight_requests",
		Help: "Requests currently being served.",
	})

	CheckoutOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkout_total",
		Help: "Checkout attempts by outcome (pending_payment, paid, failed).",
	}, []string{"outcome"})

	DiscountCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_discount_cents_total",
		Help: "Discount granted in minor units by source (promotion, points, giftcard).",
	}, []string{"source"})

	GiftCardMovements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_giftcard_ledger_cents_total",
		Help: "Gift card ledger movement in minor units by type.",
	}, []string{"type"})

	LoyaltyMovements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_loyalty_ledger_points_total",
		Help: "Loyalty points moved by type.",
	}, []string{"type"})

	PaymentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_payments_total",
		Help: "Payments by method and resulting status.",
	}, []string{"method", "status"})

	LiveViewers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storefront_live_viewers",
		Help: "Current viewers per live stream.",
	}, []string{"stream"})

	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_events_consumed_total",
		Help: "Domain events consumed by the worker, by type and result.",
	}, []string{"type", "result"})

	CronRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cron_runs_total",
		Help: "Maintenance job runs by job and result.",
	}, []string{"job", "result"})
)

// Abs 用于把带符号的账本金额记为正数计数
func Abs(v int64) float64 {
	if v < 0 {
		return float64(-v)
	}
	return float64(v)
}
