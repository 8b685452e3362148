// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 运行指标
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	// 节点指标
	nodeExecutionsTotal   *prometheus.CounterVec
	nodeExecutionDuration *prometheus.HistogramVec
	nodeRetriesTotal      *prometheus.CounterVec

	// 调度指标
	readyNodes     prometheus.Gauge
	dispatchJitter *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 运行指标
	c.runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of workflow runs by terminal state",
		},
		[]string{"state"},
	)

	c.runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60, 300},
		},
		[]string{"state"},
	)

	// 节点指标
	c.nodeExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of node executions",
		},
		[]string{"kind", "status"},
	)

	c.nodeExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_execution_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	c.nodeRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_retries_total",
			Help:      "Total number of node retry attempts",
		},
		[]string{"kind"},
	)

	// 调度指标
	c.readyNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready_nodes",
			Help:      "Number of nodes currently ready for dispatch",
		},
	)

	c.dispatchJitter = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_wait_seconds",
			Help:      "Time a ready node waited before dispatch",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
		},
		[]string{"kind"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordRun 记录一次运行的终态与时长
func (c *Collector) RecordRun(state string, duration time.Duration) {
	c.runsTotal.WithLabelValues(state).Inc()
	c.runDuration.WithLabelValues(state).Observe(duration.Seconds())
}

// RecordNodeExecution 记录一次节点执行
func (c *Collector) RecordNodeExecution(kind, status string, duration time.Duration) {
	c.nodeExecutionsTotal.WithLabelValues(kind, status).Inc()
	c.nodeExecutionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordRetry 记录一次节点重试
func (c *Collector) RecordRetry(kind string) {
	c.nodeRetriesTotal.WithLabelValues(kind).Inc()
}

// SetReadyNodes 更新就绪集大小
func (c *Collector) SetReadyNodes(n int) {
	c.readyNodes.Set(float64(n))
}

// RecordDispatchWait 记录节点从就绪到派发的等待时间
func (c *Collector) RecordDispatchWait(kind string, wait time.Duration) {
	c.dispatchJitter.WithLabelValues(kind).Observe(wait.Seconds())
}
