// Package metrics 节点的 Prometheus 指标
//
// 指标名统一以 meshchat_ 开头:
//
//	meshchat_connections                         当前连接数
//	meshchat_connections_opened_total{direction}
//	meshchat_connections_closed_total{direction}
//	meshchat_dial_attempts_total{result}         success|failure
//	meshchat_handshake_failures_total
//	meshchat_handshake_duration_seconds
//	meshchat_pubsub_messages_total{event}        published|received|delivered|duplicate|invalid|dropped
//	meshchat_pubsub_mesh_peers{topic}
//
// 所有方法对 nil *Metrics 安全，未启用指标时组件无需判断。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "meshchat"

// 消息事件标签
const (
	EventPublished = "published"
	EventReceived  = "received"
	EventDelivered = "delivered"
	EventDuplicate = "duplicate"
	EventInvalid   = "invalid"
	EventDropped   = "dropped"
)

// Metrics 指标集合
type Metrics struct {
	connections       prometheus.Gauge
	connectionsOpened *prometheus.CounterVec
	connectionsClosed *prometheus.CounterVec
	dialAttempts      *prometheus.CounterVec
	handshakeFailures prometheus.Counter
	handshakeDuration prometheus.Histogram
	messages          *prometheus.CounterVec
	meshPeers         *prometheus.GaugeVec
}

// New 创建指标并注册到 reg；reg 为 nil 时不注册
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of live peer connections",
		}),
		connectionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_opened_total",
			Help:      "Connections registered, by direction",
		}, []string{"direction"}),
		connectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_closed_total",
			Help:      "Connections torn down, by direction",
		}, []string{"direction"}),
		dialAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dial_attempts_total",
			Help:      "Outbound dial attempts, by result",
		}, []string{"result"}),
		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_failures_total",
			Help:      "Secure channel handshakes that failed",
		}),
		handshakeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_duration_seconds",
			Help:      "Duration of successful connection upgrades",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pubsub",
			Name:      "messages_total",
			Help:      "Gossip messages, by event",
		}, []string{"event"}),
		meshPeers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pubsub",
			Name:      "mesh_peers",
			Help:      "Mesh size per topic after the last heartbeat",
		}, []string{"topic"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.connections, m.connectionsOpened, m.connectionsClosed,
			m.dialAttempts, m.handshakeFailures, m.handshakeDuration,
			m.messages, m.meshPeers,
		)
	}
	return m
}

func (m *Metrics) ConnOpened(direction string) {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.connectionsOpened.WithLabelValues(direction).Inc()
}

func (m *Metrics) ConnClosed(direction string) {
	if m == nil {
		return
	}
	m.connections.Dec()
	m.connectionsClosed.WithLabelValues(direction).Inc()
}

func (m *Metrics) DialResult(ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.dialAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) HandshakeFailed() {
	if m == nil {
		return
	}
	m.handshakeFailures.Inc()
}

func (m *Metrics) HandshakeDone(d time.Duration) {
	if m == nil {
		return
	}
	m.handshakeDuration.Observe(d.Seconds())
}

// Message 记录一次消息事件
func (m *Metrics) Message(event string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(event).Inc()
}

// MeshSize 更新主题 mesh 大小，size<0 表示删除该主题
func (m *Metrics) MeshSize(topic string, size int) {
	if m == nil {
		return
	}
	if size < 0 {
		m.meshPeers.DeleteLabelValues(topic)
		return
	}
	m.meshPeers.WithLabelValues(topic).Set(float64(size))
}
