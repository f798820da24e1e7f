package services

import (
	"github.com/aihub/commerce-go/internal/models"
	"github.com/aihub/commerce-go/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CommerceMetrics 订单与权益指标，nil 接收者安全
type CommerceMetrics struct {
	ordersCreated   *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	paymentEvents   *prometheus.CounterVec
	reconcileErrors *prometheus.CounterVec
	doubleCharges   prometheus.Counter
	grants          prometheus.Counter
	revokes         prometheus.Counter
	sweptOrders     prometheus.Counter
	publishFailures prometheus.Counter
	assets          *prometheus.GaugeVec
}

// NewCommerceMetrics 创建指标，reg 为 nil 时不注册
func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	factory := promauto.With(reg)
	return &CommerceMetrics{
		ordersCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "commerce_orders_created_total",
			Help: "Orders created, by payment method",
		}, []string{"payment_method"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "commerce_order_transitions_total",
			Help: "Committed order status transitions",
		}, []string{"from", "to"}),
		paymentEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "commerce_payment_events_total",
			Help: "Gateway events reconciled, by type and outcome",
		}, []string{"event_type", "outcome", "duplicate"}),
		reconcileErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "commerce_reconcile_errors_total",
			Help: "Gateway events rejected by the reconciler, by error code",
		}, []string{"code"}),
		doubleCharges: factory.NewCounter(prometheus.CounterOpts{
			Name: "commerce_double_charges_total",
			Help: "Payments received for orders already paid by another transaction",
		}),
		grants: factory.NewCounter(prometheus.CounterOpts{
			Name: "commerce_entitlement_grants_total",
			Help: "Orders whose entitlements were granted",
		}),
		revokes: factory.NewCounter(prometheus.CounterOpts{
			Name: "commerce_entitlement_revokes_total",
			Help: "Orders whose entitlements were revoked",
		}),
		sweptOrders: factory.NewCounter(prometheus.CounterOpts{
			Name: "commerce_orders_timed_out_total",
			Help: "Pending orders cancelled by the timeout sweeper",
		}),
		publishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "commerce_order_event_publish_failures_total",
			Help: "Order events that could not be published",
		}),
		assets: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "commerce_user_assets",
			Help: "User assets by validity state at the last sweep",
		}, []string{"state"}),
	}
}

func (m *CommerceMetrics) OrderCreated(method models.PaymentMethod) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(string(method)).Inc()
}

func (m *CommerceMetrics) Transition(from, to models.OrderStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *CommerceMetrics) PaymentEvent(result *models.ReconcileResult) {
	if m == nil || result == nil {
		return
	}
	duplicate := "false"
	if result.Duplicate {
		duplicate = "true"
	}
	m.paymentEvents.WithLabelValues(string(result.EventType), string(result.Outcome), duplicate).Inc()
}

func (m *CommerceMetrics) ReconcileError(code string) {
	if m == nil {
		return
	}
	m.reconcileErrors.WithLabelValues(code).Inc()
}

func (m *CommerceMetrics) DoubleCharge() {
	if m == nil {
		return
	}
	m.doubleCharges.Inc()
}

func (m *CommerceMetrics) Granted() {
	if m == nil {
		return
	}
	m.grants.Inc()
}

func (m *CommerceMetrics) Revoked() {
	if m == nil {
		return
	}
	m.revokes.Inc()
}

func (m *CommerceMetrics) OrdersTimedOut(n int) {
	if m == nil {
		return
	}
	m.sweptOrders.Add(float64(n))
}

func (m *CommerceMetrics) PublishFailed() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}

// SetAssetStats 更新资产有效性分布
func (m *CommerceMetrics) SetAssetStats(stats repository.AssetExpiryStats) {
	if m == nil {
		return
	}
	m.assets.WithLabelValues("active").Set(float64(stats.Active))
	m.assets.WithLabelValues("expired").Set(float64(stats.Expired))
	m.assets.WithLabelValues("depleted").Set(float64(stats.Depleted))
}
