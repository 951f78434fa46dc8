// Package metrics 暴露 FIX 会话引擎的 Prometheus 指标，结构沿用
// metrics.Metrics 的独立注册表模式（spec §11 ambient stack）。
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 聚合会话引擎关心的标准指标。
type Metrics struct {
	registry *prometheus.Registry

	MessagesSentTotal     *prometheus.CounterVec
	MessagesReceivedTotal *prometheus.CounterVec
	ResendRequestsTotal   prometheus.Counter
	SessionPhase          *prometheus.GaugeVec
	GapBufferDepth        prometheus.Gauge
	StoreAppendDuration   prometheus.Histogram
}

// New 构造一个独立的指标注册表并注册标准 Go 运行时/进程采集器。
func New(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.MessagesSentTotal = m.counterVec(prometheus.CounterOpts{
		Name: "fix_messages_sent_total",
		Help: "Total FIX messages written to the wire, by msg_type.",
	}, []string{"msg_type"})

	m.MessagesReceivedTotal = m.counterVec(prometheus.CounterOpts{
		Name: "fix_messages_received_total",
		Help: "Total FIX messages parsed off the wire, by msg_type.",
	}, []string{"msg_type"})

	m.ResendRequestsTotal = m.counter(prometheus.CounterOpts{
		Name: "fix_resend_requests_total",
		Help: "Total ResendRequest messages issued due to sequence gaps.",
	})

	m.SessionPhase = m.gaugeVec(prometheus.GaugeOpts{
		Name: "fix_session_phase",
		Help: "1 if the session is currently in the labeled phase, else 0.",
	}, []string{"phase"})

	m.GapBufferDepth = m.gauge(prometheus.GaugeOpts{
		Name: "fix_gap_buffer_depth",
		Help: "Number of out-of-order inbound messages currently buffered awaiting resend.",
	})

	m.StoreAppendDuration = m.histogram(prometheus.HistogramOpts{
		Name:    "fix_store_append_duration_seconds",
		Help:    "Latency of persisting a message to the Store before it is written to the wire.",
		Buckets: prometheus.DefBuckets,
	})

	slog.Info("fix engine metrics registry initialized", "service", serviceName)
	return m
}

func (m *Metrics) counterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	m.registry.MustRegister(c)
	return c
}

func (m *Metrics) counter(opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	m.registry.MustRegister(c)
	return c
}

func (m *Metrics) gaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(opts, labels)
	m.registry.MustRegister(g)
	return g
}

func (m *Metrics) gauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	g := prometheus.NewGauge(opts)
	m.registry.MustRegister(g)
	return g
}

func (m *Metrics) histogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	h := prometheus.NewHistogram(opts)
	m.registry.MustRegister(h)
	return h
}

// Handler 返回暴露指标的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ExposeHTTP 在独立端口启动指标服务器，返回优雅关闭函数。
func (m *Metrics) ExposeHTTP(port string) func() {
	srv := &http.Server{Addr: ":" + port, Handler: m.Handler()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown metrics server", "error", err)
		}
	}
}
