package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// 队列标签
const (
	QueueInbound  = "inbound"
	QueueOutbound = "outbound"
)

// AppMetrics 网关指标
type AppMetrics struct {
	TCPAccepted      prometheus.Counter
	TCPBytesReceived prometheus.Counter
	FramesTotal      *prometheus.CounterVec // labels: result=ok|overrun|rate_limited|dropped
	DispatchTotal    *prometheus.CounterVec // labels: cmd, status
	QueueDepth       *prometheus.GaugeVec   // labels: queue
	QueueRejects     *prometheus.CounterVec // labels: queue, reason
	SendTotal        *prometheus.CounterVec // labels: mode, result
	OnlineGauge      prometheus.Gauge       // 当前会话数
}

// NewAppMetrics 注册并返回网关指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		TCPAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_accept_total",
			Help: "Total accepted TCP connections.",
		}),
		TCPBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_bytes_received_total",
			Help: "Total bytes received over TCP.",
		}),
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcmd_frames_total",
			Help: "Inbound frames by admission result.",
		}, []string{"result"}),
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcmd_dispatch_total",
			Help: "Processed frames by command and status.",
		}, []string{"cmd", "status"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pcmd_queue_depth",
			Help: "Packets waiting across all session queues.",
		}, []string{"queue"}),
		QueueRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcmd_queue_rejects_total",
			Help: "Queue operations rejected.",
		}, []string{"queue", "reason"}),
		SendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcmd_send_total",
			Help: "Outbound sends by mode and result.",
		}, []string{"mode", "result"}),
		OnlineGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "session_online_count",
			Help: "Current number of connected sessions.",
		}),
	}
	reg.MustRegister(
		m.TCPAccepted,
		m.TCPBytesReceived,
		m.FramesTotal,
		m.DispatchTotal,
		m.QueueDepth,
		m.QueueRejects,
		m.SendTotal,
		m.OnlineGauge,
	)
	return m
}
