package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 前端进程的 Prometheus 指标
// 所有方法对 nil 接收者安全，便于测试中省略
type Metrics struct {
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	gridCells        prometheus.Gauge
	cellToggles      *prometheus.CounterVec
}

// New 创建并注册指标
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance_admin",
			Name:      "upstream_requests_total",
			Help:      "Requests issued to the school API, by operation and outcome.",
		}, []string{"op", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "attendance_admin",
			Name:      "upstream_request_seconds",
			Help:      "Latency of requests to the school API.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		gridCells: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "attendance_admin",
			Name:      "grid_cells",
			Help:      "Cell count of the most recently rendered attendance grid.",
		}),
		cellToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance_admin",
			Name:      "cell_toggles_total",
			Help:      "Attendance cell transitions, by resulting status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.upstreamRequests, m.upstreamLatency, m.gridCells, m.cellToggles)
	return m
}

// ObserveUpstream 记录一次上游请求
func (m *Metrics) ObserveUpstream(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(op, outcome).Inc()
	m.upstreamLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// SetGridCells 记录最近渲染的单元格数量
func (m *Metrics) SetGridCells(n int) {
	if m == nil {
		return
	}
	m.gridCells.Set(float64(n))
}

// IncToggle 记录一次单元格状态切换
func (m *Metrics) IncToggle(status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unset"
	}
	m.cellToggles.WithLabelValues(status).Inc()
}
