package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// 调仓批次指标
	runTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bondrotor_run_total",
			Help: "Total number of rebalance runs",
		},
		[]string{"trigger", "state"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bondrotor_run_duration_seconds",
			Help:    "Rebalance run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"trigger"},
	)

	// 订单指标
	orderTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bondrotor_order_total",
			Help: "Total number of orders submitted",
		},
		[]string{"side", "status"},
	)

	orderFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bondrotor_order_failure_total",
			Help: "Total number of failed orders",
		},
		[]string{"side", "reason"},
	)

	orderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bondrotor_order_duration_seconds",
			Help:    "Time from submission to terminal order state",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"side"},
	)

	// 持仓与资金指标
	positionCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bondrotor_position_count",
			Help: "Number of managed positions",
		},
	)

	positionPnLPercent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bondrotor_position_pnl_percent",
			Help: "Position unrealized PnL percent against average cost",
		},
		[]string{"instrument"},
	)

	cashBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bondrotor_cash_balance",
			Help: "Available cash in the trading account",
		},
	)

	// 盯盘触发指标
	monitorTriggerTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bondrotor_monitor_trigger_total",
			Help: "Total number of stop-loss / take-profit triggers",
		},
		[]string{"kind"},
	)

	refillTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bondrotor_refill_total",
			Help: "Total number of refill buy attempts",
		},
		[]string{"status"},
	)

	// 策略数据源指标
	sourceCallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bondrotor_source_call_total",
			Help: "Total number of strategy source API calls",
		},
		[]string{"endpoint", "status"},
	)

	sourceCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bondrotor_source_call_duration_seconds",
			Help:    "Strategy source API call duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// 券商通道指标
	brokerConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bondrotor_broker_connected",
			Help: "Broker gateway connectivity (1 = connected)",
		},
	)

	// 执行锁指标
	lockAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bondrotor_lock_acquire_total",
			Help: "Total number of execution lock acquisitions",
		},
		[]string{"key", "status"},
	)

	lockConflictTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bondrotor_lock_conflict_total",
			Help: "Total number of execution lock conflicts",
		},
		[]string{"key"},
	)

	// 运行时指标
	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bondrotor_goroutine_count",
			Help: "Number of goroutines",
		},
	)

	memoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bondrotor_memory_alloc_bytes",
			Help: "Heap memory currently allocated",
		},
	)

	gcPauseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bondrotor_gc_pause_duration_seconds",
			Help:    "GC pause duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	processCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bondrotor_process_cpu_percent",
			Help: "Process CPU usage percent",
		},
	)

	processMemoryMB = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bondrotor_process_memory_mb",
			Help: "Process RSS memory in MB",
		},
	)
)

// PrometheusMetrics Prometheus 指标收集器
type PrometheusMetrics struct{}

// NewPrometheusMetrics 创建 Prometheus 指标收集器
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{}
}

// RecordRun 记录一次调仓批次
func (pm *PrometheusMetrics) RecordRun(trigger, state string, duration time.Duration) {
	runTotal.WithLabelValues(trigger, state).Inc()
	runDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// RecordOrder 记录订单终态
func (pm *PrometheusMetrics) RecordOrder(side, status string, duration time.Duration) {
	orderTotal.WithLabelValues(side, status).Inc()
	orderDuration.WithLabelValues(side).Observe(duration.Seconds())
}

// RecordOrderFailure 记录订单失败
func (pm *PrometheusMetrics) RecordOrderFailure(side, reason string) {
	orderFailureTotal.WithLabelValues(side, reason).Inc()
}

// SetPositionCount 设置托管持仓数量
func (pm *PrometheusMetrics) SetPositionCount(count int) {
	positionCount.Set(float64(count))
}

// SetPositionPnL 设置单个持仓的浮动盈亏比例
func (pm *PrometheusMetrics) SetPositionPnL(instrument string, pnlPct float64) {
	positionPnLPercent.WithLabelValues(instrument).Set(pnlPct)
}

// SetCashBalance 设置可用资金
func (pm *PrometheusMetrics) SetCashBalance(cash float64) {
	cashBalance.Set(cash)
}

// RecordMonitorTrigger 记录止盈/止损触发
func (pm *PrometheusMetrics) RecordMonitorTrigger(kind string) {
	monitorTriggerTotal.WithLabelValues(kind).Inc()
}

// RecordRefill 记录补仓
func (pm *PrometheusMetrics) RecordRefill(status string) {
	refillTotal.WithLabelValues(status).Inc()
}

// RecordSourceCall 记录策略数据源调用
func (pm *PrometheusMetrics) RecordSourceCall(endpoint, status string, duration time.Duration) {
	sourceCallTotal.WithLabelValues(endpoint, status).Inc()
	sourceCallDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// SetBrokerConnected 设置券商通道连接状态
func (pm *PrometheusMetrics) SetBrokerConnected(connected bool) {
	if connected {
		brokerConnected.Set(1)
	} else {
		brokerConnected.Set(0)
	}
}

// RecordLockAcquire 记录执行锁获取
func (pm *PrometheusMetrics) RecordLockAcquire(key, status string) {
	lockAcquireTotal.WithLabelValues(key, status).Inc()
}

// RecordLockConflict 记录执行锁冲突
func (pm *PrometheusMetrics) RecordLockConflict(key string) {
	lockConflictTotal.WithLabelValues(key).Inc()
}

// SetGoroutineCount 设置 goroutine 数量
func (pm *PrometheusMetrics) SetGoroutineCount(count int) {
	goroutineCount.Set(float64(count))
}

// SetMemoryAlloc 设置堆内存占用
func (pm *PrometheusMetrics) SetMemoryAlloc(bytes uint64) {
	memoryAllocBytes.Set(float64(bytes))
}

// RecordGCPause 记录 GC 停顿
func (pm *PrometheusMetrics) RecordGCPause(duration time.Duration) {
	gcPauseDuration.Observe(duration.Seconds())
}

// SetProcessStats 设置进程级资源占用
func (pm *PrometheusMetrics) SetProcessStats(cpuPercent, memoryMB float64) {
	processCPUPercent.Set(cpuPercent)
	processMemoryMB.Set(memoryMB)
}

// 全局实例
var globalPrometheusMetrics *PrometheusMetrics

// GetPrometheusMetrics 获取全局 Prometheus 指标收集器
func GetPrometheusMetrics() *PrometheusMetrics {
	once.Do(func() {
		globalPrometheusMetrics = NewPrometheusMetrics()
	})
	return globalPrometheusMetrics
}
