package obs

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartItemsAdded counts line items added to carts.
	CartItemsAdded prometheus.Counter
	// CartItemsRemoved counts line items removed from carts.
	CartItemsRemoved prometheus.Counter
	// CheckoutTotal counts checkout attempts by outcome kind.
	CheckoutTotal *prometheus.CounterVec
	// GatewaySessionLatency records hosted-session creation latency in milliseconds.
	GatewaySessionLatency *prometheus.HistogramVec
	// PersistenceWarnings counts degraded cart and configuration loads or saves.
	PersistenceWarnings *prometheus.CounterVec
	// ReceiptsTotal counts receipt task enqueue and processing outcomes.
	ReceiptsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartItemsAdded = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_items_added_total",
			Help:      "Number of configured countertops added to carts.",
		})
		CartItemsRemoved = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_items_removed_total",
			Help:      "Number of line items removed from carts.",
		})
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by result.",
		}, []string{"result"})
		GatewaySessionLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_session_duration_ms",
			Help:      "Latency for hosted checkout session creation in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"result"})
		PersistenceWarnings = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_warnings_total",
			Help:      "Count of degraded session state loads and saves.",
		}, []string{"op"})
		ReceiptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipts_total",
			Help:      "Count of receipt task outcomes.",
		}, []string{"stage", "result"})

		mustRegisterCollector(reg, CartItemsAdded, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CartItemsAdded = v
			}
		})
		mustRegisterCollector(reg, CartItemsRemoved, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CartItemsRemoved = v
			}
		})
		mustRegisterCollector(reg, CheckoutTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutTotal = v
			}
		})
		mustRegisterCollector(reg, GatewaySessionLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				GatewaySessionLatency = v
			}
		})
		mustRegisterCollector(reg, PersistenceWarnings, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PersistenceWarnings = v
			}
		})
		mustRegisterCollector(reg, ReceiptsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReceiptsTotal = v
			}
		})
	})
}

// ObserveCheckout records one checkout outcome and, when the gateway was
// contacted, its latency.
func ObserveCheckout(result string, gatewayLatency time.Duration) {
	if CheckoutTotal != nil {
		CheckoutTotal.WithLabelValues(result).Inc()
	}
	if gatewayLatency > 0 && GatewaySessionLatency != nil {
		GatewaySessionLatency.WithLabelValues(result).Observe(DurationMillis(gatewayLatency))
	}
}

// ObservePersistenceWarning records a degraded load or save.
func ObservePersistenceWarning(op string) {
	if PersistenceWarnings != nil {
		PersistenceWarnings.WithLabelValues(op).Inc()
	}
}

// ObserveReceipt records a receipt task outcome for stage "enqueue" or "process".
func ObserveReceipt(stage, result string) {
	if ReceiptsTotal != nil {
		ReceiptsTotal.WithLabelValues(stage, result).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
