package monitor

import (
	"context"
	"sync"
	"time"

	"bondrotor/broker"
	"bondrotor/config"
	"bondrotor/event"
	"bondrotor/logger"
	"bondrotor/metrics"
	"bondrotor/storage"
)

const (
	sampleInterval  = 2 * time.Minute
	cleanupInterval = time.Hour
	// 资源告警冷却，避免持续超限时刷屏
	alertCooldown = 30 * time.Minute

	// 细粒度采样保留 7 天，每日汇总保留 90 天
	detailRetentionDays = 7
	dailyRetentionDays  = 90
	logRetentionDays    = 30
)

// Watchdog 系统看门狗
//
// 三件事：定期采样进程资源并落库、资源超限时发告警事件、
// 定期探测券商通道连通性并在状态翻转时发事件。
type Watchdog struct {
	cfg            *config.Config
	storageService *storage.StorageService
	gateway        broker.Gateway
	events         *event.EventBus

	mu            sync.Mutex
	lastAlertTime map[string]time.Time
	brokerOK      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatchdog 创建看门狗
func NewWatchdog(cfg *config.Config, storageService *storage.StorageService, gateway broker.Gateway, events *event.EventBus) *Watchdog {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watchdog{
		cfg:            cfg,
		storageService: storageService,
		gateway:        gateway,
		events:         events,
		lastAlertTime:  make(map[string]time.Time),
		brokerOK:       true,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start 启动看门狗
func (w *Watchdog) Start() {
	if !w.cfg.Watchdog.Enabled {
		logger.Info("ℹ️ 看门狗监控未启用")
		return
	}

	w.wg.Add(3)
	go w.samplingLoop()
	go w.healthLoop()
	go w.maintenanceLoop()
	logger.Info("✅ 看门狗监控已启动 (采样间隔: %v, 券商探测间隔: %ds)",
		sampleInterval, w.cfg.Watchdog.HealthCheckInterval)
}

// Stop 停止看门狗
func (w *Watchdog) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	logger.Info("✅ 看门狗监控已停止")
}

// samplingLoop 资源采样循环
func (w *Watchdog) samplingLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			sample, err := CollectSystemMetrics()
			if err != nil {
				logger.Error("❌ 采集系统指标失败: %v", err)
				continue
			}

			if w.storageService != nil {
				w.storageService.SaveMetrics(sample)
			}
			metrics.GetPrometheusMetrics().SetProcessStats(sample.CPUPercent, sample.MemoryMB)

			w.checkThresholds(sample)
		}
	}
}

// checkThresholds 资源超限告警
func (w *Watchdog) checkThresholds(sample *storage.SystemMetrics) {
	if w.cfg.Watchdog.CPUPercent > 0 && sample.CPUPercent >= w.cfg.Watchdog.CPUPercent {
		if w.shouldAlert("cpu") {
			logger.Warn("🚨 CPU 占用超过阈值: %.2f%% (阈值 %.2f%%)", sample.CPUPercent, w.cfg.Watchdog.CPUPercent)
			w.publish(event.EventTypeError, map[string]interface{}{
				"error": "CPU 占用过高",
				"value": sample.CPUPercent,
			})
		}
	}

	if w.cfg.Watchdog.MemoryMB > 0 && sample.MemoryMB >= w.cfg.Watchdog.MemoryMB {
		if w.shouldAlert("memory") {
			logger.Warn("🚨 内存占用超过阈值: %.2f MB (阈值 %.2f MB)", sample.MemoryMB, w.cfg.Watchdog.MemoryMB)
			w.publish(event.EventTypeError, map[string]interface{}{
				"error": "内存占用过高",
				"value": sample.MemoryMB,
			})
		}
	}
}

func (w *Watchdog) shouldAlert(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if last, ok := w.lastAlertTime[key]; ok && time.Since(last) < alertCooldown {
		return false
	}
	w.lastAlertTime[key] = time.Now()
	return true
}

// healthLoop 券商通道连通性探测
func (w *Watchdog) healthLoop() {
	defer w.wg.Done()
	if w.gateway == nil {
		return
	}

	interval := time.Duration(w.cfg.Watchdog.HealthCheckInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			connected := w.gateway.IsConnected(w.ctx)
			metrics.GetPrometheusMetrics().SetBrokerConnected(connected)

			w.mu.Lock()
			wasOK := w.brokerOK
			w.brokerOK = connected
			w.mu.Unlock()

			if wasOK && !connected {
				logger.Error("❌ 券商通道连接断开")
				w.publish(event.EventTypeBrokerLost, map[string]interface{}{
					"broker": w.gateway.GetName(),
				})
				// 探测循环里顺手触发重连，成功与否由下一轮探测判定
				if err := w.gateway.EnsureConnected(w.ctx, 3, 5); err != nil {
					logger.Error("❌ 券商通道重连失败: %v", err)
				}
			} else if !wasOK && connected {
				logger.Info("✅ 券商通道连接恢复")
				w.publish(event.EventTypeBrokerRecovered, map[string]interface{}{
					"broker": w.gateway.GetName(),
				})
			}
		}
	}
}

// BrokerHealthy 当前券商通道状态
func (w *Watchdog) BrokerHealthy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.brokerOK
}

// maintenanceLoop 周期清理与每日汇总
func (w *Watchdog) maintenanceLoop() {
	defer w.wg.Done()
	if w.storageService == nil {
		return
	}

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	lastAggregated := ""
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			store := w.storageService.GetStorage()
			if store == nil {
				continue
			}

			if err := store.CleanupSystemMetrics(time.Now().AddDate(0, 0, -detailRetentionDays)); err != nil {
				logger.Warn("⚠️ 清理细粒度采样失败: %v", err)
			}
			if err := store.CleanupDailySystemMetrics(time.Now().AddDate(0, 0, -dailyRetentionDays)); err != nil {
				logger.Warn("⚠️ 清理每日汇总失败: %v", err)
			}
			if logs := w.storageService.GetLogStorage(); logs != nil {
				if err := logs.CleanOldLogs(logRetentionDays); err != nil {
					logger.Warn("⚠️ 清理历史日志失败: %v", err)
				}
			}

			// 跨天后汇总前一天的采样，每天只做一次
			yesterday := time.Now().AddDate(0, 0, -1)
			key := yesterday.Format("2006-01-02")
			if key != lastAggregated {
				if _, err := store.AggregateDaily(yesterday); err != nil {
					logger.Warn("⚠️ 每日汇总失败: %v", err)
				} else {
					lastAggregated = key
					logger.Debug("📊 已汇总 %s 的系统监控数据", key)
				}
			}
		}
	}
}

func (w *Watchdog) publish(t event.EventType, data map[string]interface{}) {
	if w.events == nil {
		return
	}
	w.events.Publish(&event.Event{Type: t, Timestamp: time.Now(), Data: data})
}
