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
	// 查询指标
	queriesTotal  *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	iterations    prometheus.Histogram

	// 推理器指标
	reasonerRuns     *prometheus.CounterVec
	reasonerDuration *prometheus.HistogramVec

	// 门控指标
	gatingDecisions *prometheus.CounterVec

	// 工作区指标
	workspaceItems prometheus.Gauge

	// 记忆指标
	memoryOps    *prometheus.CounterVec
	memoryHits   prometheus.Counter
	memoryMisses prometheus.Counter

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
	logger   *zap.Logger
}

// NewCollector 创建指标收集器（使用独立 registry，便于测试隔离）
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	c := &Collector{
		registry: registry,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.queriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of query cycles",
		},
		[]string{"status"},
	)
	c.queryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Query cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
	c.iterations = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "iterations_per_query",
			Help:      "Pipeline iterations per query cycle",
			Buckets:   []float64{1, 2, 3, 5, 8},
		},
	)

	c.reasonerRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reasoner_runs_total",
			Help:      "Reasoner executions by agent type and status",
		},
		[]string{"agent", "status"},
	)
	c.reasonerDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reasoner_duration_seconds",
			Help:      "Reasoner execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"agent"},
	)

	c.gatingDecisions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gating_decisions_total",
			Help:      "Gating decisions by outcome (admitted, rejected, quarantined)",
		},
		[]string{"outcome"},
	)

	c.workspaceItems = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workspace_items",
			Help:      "Current broadcast items in the global workspace",
		},
	)

	c.memoryOps = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_operations_total",
			Help:      "Memory operations by action and status",
		},
		[]string{"action", "status"},
	)
	c.memoryHits = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_retrieval_hits_total",
			Help:      "Memory retrievals that returned results",
		},
	)
	c.memoryMisses = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_retrieval_misses_total",
			Help:      "Memory retrievals that returned nothing",
		},
	)

	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "LLM requests by provider and status",
		},
		[]string{"provider", "status"},
	)
	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	return c
}

// Registry 返回底层 registry（供 /metrics handler 使用）
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RecordQuery 记录一次查询周期
func (c *Collector) RecordQuery(mode string, duration time.Duration, iterations int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.queriesTotal.WithLabelValues(status).Inc()
	c.queryDuration.WithLabelValues(mode).Observe(duration.Seconds())
	c.iterations.Observe(float64(iterations))
}

// RecordReasoner 记录一次推理器执行
func (c *Collector) RecordReasoner(agent string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.reasonerRuns.WithLabelValues(agent, status).Inc()
	c.reasonerDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordGating 记录门控结果
func (c *Collector) RecordGating(outcome string) {
	c.gatingDecisions.WithLabelValues(outcome).Inc()
}

// SetWorkspaceItems 更新工作区大小
func (c *Collector) SetWorkspaceItems(n int) {
	c.workspaceItems.Set(float64(n))
}

// RecordMemoryOp 记录记忆操作
func (c *Collector) RecordMemoryOp(action string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.memoryOps.WithLabelValues(action, status).Inc()
}

// RecordMemoryRetrieval 记录检索命中/未命中
func (c *Collector) RecordMemoryRetrieval(hit bool) {
	if hit {
		c.memoryHits.Inc()
	} else {
		c.memoryMisses.Inc()
	}
}

// RecordLLMRequest 记录一次 LLM 请求
func (c *Collector) RecordLLMRequest(provider string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.llmRequestsTotal.WithLabelValues(provider, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}
