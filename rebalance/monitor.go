package rebalance

import (
	"fmt"
	"sync"
	"time"

	"context"

	"bondrotor/broker"
	"bondrotor/database"
	"bondrotor/event"
	"bondrotor/lock"
	"bondrotor/logger"
	"bondrotor/metrics"
	"bondrotor/source"
	"bondrotor/utils"
)

// Threshold 单只标的的止盈止损阈值
// nil 表示该方向不触发
type Threshold struct {
	TakeProfit *float64
	StopLoss   *float64
}

// MonitorConfig 监控循环配置
type MonitorConfig struct {
	Interval time.Duration
	// 目标条目未带阈值时的默认值，<=0 表示该方向默认关闭
	DefaultTakeProfit float64
	DefaultStopLoss   float64
	OrderStyle        broker.OrderStyle
	// 卖出后是否加入补仓队列
	RefillEnabled bool
	// 补仓入队截止时间 HH:MM，过点的卖出当日不再补
	RefillDeadline string
	LockKey        string
	LockTTL        time.Duration
}

// Monitor 持仓监控循环
//
// 交易时段内按固定间隔检查托管持仓的浮动盈亏，触发止盈止损时
// 把当次全部触发标的合并为一个只卖计划，整体交给执行器一次执行。
// 执行锁被编排器占用时放弃本次检查，不排队等待。
type Monitor struct {
	snapshotter *Snapshotter
	executor    *Executor
	execLock    lock.DistributedLock
	db          database.Database
	events      *event.EventBus
	clock       Clock
	config      *MonitorConfig

	mu         sync.RWMutex
	thresholds map[string]*Threshold
	// 默认阈值支持热更新，读写都走 mu
	defaultTakeProfit float64
	defaultStopLoss   float64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor 创建监控循环
func NewMonitor(snapshotter *Snapshotter, executor *Executor, execLock lock.DistributedLock,
	db database.Database, events *event.EventBus, config *MonitorConfig, clock Clock) *Monitor {
	if clock == nil {
		clock = RealClock()
	}
	return &Monitor{
		snapshotter:       snapshotter,
		executor:          executor,
		execLock:          execLock,
		db:                db,
		events:            events,
		clock:             clock,
		config:            config,
		thresholds:        make(map[string]*Threshold),
		defaultTakeProfit: config.DefaultTakeProfit,
		defaultStopLoss:   config.DefaultStopLoss,
		stopCh:            make(chan struct{}),
	}
}

// SetDefaultThresholds 热更新默认止盈止损阈值，<=0 表示该方向关闭
func (m *Monitor) SetDefaultThresholds(takeProfit, stopLoss float64) {
	m.mu.Lock()
	m.defaultTakeProfit = takeProfit
	m.defaultStopLoss = stopLoss
	m.mu.Unlock()
	logger.Info("📋 默认阈值已更新：止盈 %.2f%%，止损 %.2f%%", takeProfit*100, stopLoss*100)
}

// SetTargets 用当日目标列表刷新阈值表
// 条目未携带的阈值用配置默认值补齐
func (m *Monitor) SetTargets(targets []*source.TargetEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	thresholds := make(map[string]*Threshold, len(targets))
	for _, entry := range targets {
		th := &Threshold{}
		if entry.TakeProfitPct != nil {
			th.TakeProfit = entry.TakeProfitPct
		} else if m.defaultTakeProfit > 0 {
			v := m.defaultTakeProfit
			th.TakeProfit = &v
		}
		if entry.StopLossPct != nil {
			th.StopLoss = entry.StopLossPct
		} else if m.defaultStopLoss > 0 {
			v := m.defaultStopLoss
			th.StopLoss = &v
		}
		thresholds[entry.InstrumentID] = th
	}
	m.thresholds = thresholds
	logger.Info("📋 监控阈值表已更新，共 %d 只", len(thresholds))
}

// threshold 查找标的阈值，没有目标信息时回落到配置默认值
func (m *Monitor) threshold(instrumentID string) *Threshold {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if th, ok := m.thresholds[instrumentID]; ok {
		return th
	}
	th := &Threshold{}
	if m.defaultTakeProfit > 0 {
		v := m.defaultTakeProfit
		th.TakeProfit = &v
	}
	if m.defaultStopLoss > 0 {
		v := m.defaultStopLoss
		th.StopLoss = &v
	}
	return th
}

// Start 启动监控循环
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.config.Interval)
		defer ticker.Stop()

		logger.Info("👀 持仓监控已启动，间隔 %s", m.config.Interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				if _, err := m.Tick(ctx); err != nil {
					logger.Error("❌ 监控检查失败: %v", err)
				}
			}
		}
	}()
}

// Stop 停止监控循环
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	logger.Info("👀 持仓监控已停止")
}

// triggered 一次检查中命中的触发
type triggered struct {
	item   *PlanItem
	reason event.EventType // stop_loss / take_profit
	pnlPct float64
	price  float64
}

// Tick 执行一次监控检查
// 非交易时段直接跳过（不读快照）；无触发时为只读检查，
// 不产生任何下单调用，返回 (nil, nil)
func (m *Monitor) Tick(ctx context.Context) (*RunSummary, error) {
	now := m.clock.Now()
	if !utils.IsTradingTime(now) {
		return nil, nil
	}

	snap, err := m.snapshotter.Take(ctx)
	if err != nil {
		return nil, err
	}

	var hits []*triggered
	var skipped []*SkipEntry
	for _, pos := range snap.Positions {
		if pos.AverageCost <= 0 || pos.LastPrice <= 0 {
			continue
		}
		th := m.threshold(pos.InstrumentID)
		pnlPct := (pos.LastPrice - pos.AverageCost) / pos.AverageCost

		var reason event.EventType
		switch {
		case th.TakeProfit != nil && pnlPct >= *th.TakeProfit:
			reason = event.EventTypeTakeProfit
		case th.StopLoss != nil && pnlPct <= -*th.StopLoss:
			reason = event.EventTypeStopLoss
		default:
			continue
		}

		if snap.Suspended[pos.InstrumentID] {
			skipped = append(skipped, &SkipEntry{InstrumentID: pos.InstrumentID, Reason: KindSuspended})
			continue
		}
		quantity := pos.Available
		if quantity <= 0 {
			logger.Warn("⚠️ %s 触发 %s 但无可卖数量，跳过", pos.InstrumentID, reason)
			continue
		}

		hits = append(hits, &triggered{
			item: &PlanItem{
				InstrumentID: pos.InstrumentID,
				Name:         pos.Name,
				Side:         broker.SideSell,
				Style:        m.config.OrderStyle,
				Quantity:     quantity,
			},
			reason: reason,
			pnlPct: pnlPct,
			price:  pos.LastPrice,
		})
		logger.Info("🎯 %s(%s) 触发 %s：成本 %.3f 现价 %.3f 盈亏 %.2f%%",
			pos.Name, pos.InstrumentID, reason, pos.AverageCost, pos.LastPrice, pnlPct*100)
	}

	if len(hits) == 0 && len(skipped) == 0 {
		return nil, nil
	}

	summary := &RunSummary{
		RunID:     NewRunID(m.clock),
		Trigger:   "monitor",
		StartedAt: now,
	}

	if len(hits) > 0 {
		// 当次全部触发合并为一个计划，执行锁只竞争一次
		ok, err := m.execLock.TryLock(ctx, m.config.LockKey, m.config.LockTTL)
		if err != nil {
			return nil, NewRunError(KindGatewayError, "", "获取执行锁失败: %v", err)
		}
		if !ok {
			logger.Warn("⏭️ 执行锁被占用，放弃本次监控卖出")
			metrics.GetPrometheusMetrics().RecordLockConflict(m.config.LockKey)
			summary.State = StateDone
			summary.Errors = append(summary.Errors, NewRunError(KindSkippedBusy, "", "执行锁被占用，本次触发已放弃"))
			for _, hit := range hits {
				summary.Skipped = append(summary.Skipped, &SkipEntry{InstrumentID: hit.item.InstrumentID, Reason: KindSkippedBusy})
			}
			m.publish(event.EventTypeExecutionBusy, map[string]interface{}{
				"count": len(hits),
			})
			summary.FinishedAt = m.clock.Now()
			m.persistRun(ctx, summary)
			return summary, nil
		}

		items := make([]*PlanItem, 0, len(hits))
		for _, hit := range hits {
			items = append(items, hit.item)
		}
		plan := SellPlan(items)
		plan.Skipped = skipped

		func() {
			defer m.execLock.Unlock(ctx, m.config.LockKey)
			summary.State = StateExecuting
			m.executor.Execute(ctx, summary, plan)
		}()

		m.afterExecute(ctx, summary, hits)
	} else {
		summary.Plan = &RebalancePlan{Skipped: skipped}
		summary.Skipped = skipped
	}

	summary.State = StateDone
	summary.FinishedAt = m.clock.Now()
	m.persistRun(ctx, summary)
	return summary, nil
}

// afterExecute 发布触发事件并登记补仓队列
func (m *Monitor) afterExecute(ctx context.Context, summary *RunSummary, hits []*triggered) {
	filled := make(map[string]*broker.Order)
	for _, r := range summary.Orders {
		if r.Order != nil && r.Order.FilledQty > 0 {
			filled[r.Order.InstrumentID] = r.Order
		}
	}

	refillOpen := m.config.RefillEnabled && m.db != nil
	if refillOpen && m.config.RefillDeadline != "" {
		if hour, minute, err := parseHHMM(m.config.RefillDeadline); err == nil &&
			utils.AfterTimeOfDay(m.clock.Now(), hour, minute) {
			logger.Warn("⚠️ 已过补仓截止时间 %s，本次卖出不入补仓队列", m.config.RefillDeadline)
			refillOpen = false
		}
	}

	for _, hit := range hits {
		m.publish(hit.reason, map[string]interface{}{
			"instrument": hit.item.InstrumentID,
			"name":       hit.item.Name,
			"pnl_pct":    hit.pnlPct,
			"price":      hit.price,
		})
		if hit.reason == event.EventTypeStopLoss {
			metrics.GetPrometheusMetrics().RecordMonitorTrigger("stop_loss")
		} else {
			metrics.GetPrometheusMetrics().RecordMonitorTrigger("take_profit")
		}

		order, ok := filled[hit.item.InstrumentID]
		if !ok || !refillOpen {
			continue
		}
		reason := "take_profit"
		if hit.reason == event.EventTypeStopLoss {
			reason = "stop_loss"
		}
		item := &database.RefillItem{
			Date:         utils.TradeDate(m.clock.Now()),
			InstrumentID: hit.item.InstrumentID,
			Name:         hit.item.Name,
			SellPrice:    order.AvgPrice,
			Reason:       reason,
			CreatedAt:    m.clock.Now(),
		}
		if err := m.db.EnqueueRefill(ctx, item); err != nil {
			logger.Error("❌ 补仓入队失败 %s: %v", hit.item.InstrumentID, err)
		}
	}
}

// persistRun 落库执行历史
func (m *Monitor) persistRun(ctx context.Context, summary *RunSummary) {
	if m.db == nil {
		return
	}
	if err := m.db.SaveRunRecord(ctx, summaryToRecord(summary)); err != nil {
		logger.Error("❌ 写入监控执行记录失败: %v", err)
	}
}

func (m *Monitor) publish(t event.EventType, data map[string]interface{}) {
	if m.events == nil {
		return
	}
	m.events.Publish(&event.Event{Type: t, Timestamp: m.clock.Now(), Data: data})
}

// NewRunID 生成一次执行的唯一标识
func NewRunID(clock Clock) string {
	return fmt.Sprintf("run-%s", clock.Now().Format("20060102-150405.000000"))
}
