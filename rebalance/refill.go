package rebalance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bondrotor/broker"
	"bondrotor/database"
	"bondrotor/event"
	"bondrotor/lock"
	"bondrotor/logger"
	"bondrotor/metrics"
	"bondrotor/source"
	"bondrotor/utils"
)

// RefillConfig 补仓配置
type RefillConfig struct {
	StrategyID int
	Rule       *AllocationRule
	LockKey    string
	LockTTL    time.Duration
}

// RefillWorker 补仓执行器
//
// 止盈止损卖出腾出的资金，用当日目标列表中的候选标的补回：
// 按列表顺序跳过已持有和停牌的，取与队列条目数相同的前 N 只买入。
// 队列只记录卖出数量，买什么由当日目标列表决定。
type RefillWorker struct {
	src         source.Source
	snapshotter *Snapshotter
	executor    *Executor
	execLock    lock.DistributedLock
	db          database.Database
	events      *event.EventBus
	clock       Clock
	config      *RefillConfig
}

// NewRefillWorker 创建补仓执行器
func NewRefillWorker(src source.Source, snapshotter *Snapshotter, executor *Executor,
	execLock lock.DistributedLock, db database.Database, events *event.EventBus,
	config *RefillConfig, clock Clock) *RefillWorker {
	if clock == nil {
		clock = RealClock()
	}
	return &RefillWorker{
		src:         src,
		snapshotter: snapshotter,
		executor:    executor,
		execLock:    execLock,
		db:          db,
		events:      events,
		clock:       clock,
		config:      config,
	}
}

// Run 执行一次补仓
// 队列为空或无可用候选时返回 (nil, nil)；入队截止由监控侧把关
func (w *RefillWorker) Run(ctx context.Context) (*RunSummary, error) {
	now := w.clock.Now()
	if !utils.IsTradingTime(now) {
		return nil, nil
	}

	date := utils.TradeDate(now)
	pending, err := w.db.GetPendingRefills(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("查询补仓队列失败: %v", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	targets, err := w.src.GetTargetList(ctx, w.config.StrategyID, date)
	if err != nil {
		return nil, NewRunError(KindSourceUnavailable, "", "获取目标列表失败: %v", err)
	}
	if len(targets) == 0 {
		logger.Warn("⚠️ 当日目标列表为空，无法补仓")
		return nil, nil
	}

	snap, err := w.snapshotter.Take(ctx)
	if err != nil {
		return nil, err
	}

	// 刚卖出的代码可能尚未从持仓列表消失，候选判定时不当作已持有
	queued := make(map[string]bool, len(pending))
	for _, p := range pending {
		queued[p.InstrumentID] = true
	}

	// 候选保持目标列表原始顺序，补仓数量 = 队列条目数
	var items []*PlanItem
	for _, tgt := range targets {
		if len(items) >= len(pending) {
			break
		}
		if snap.AllHeld[tgt.InstrumentID] && !queued[tgt.InstrumentID] {
			continue
		}
		if snap.Suspended[tgt.InstrumentID] {
			continue
		}
		items = append(items, &PlanItem{
			InstrumentID: tgt.InstrumentID,
			Name:         tgt.Name,
			Side:         broker.SideBuy,
			Style:        w.config.Rule.OrderStyle,
		})
	}
	if len(items) == 0 {
		logger.Warn("⚠️ 目标列表中无可补仓的候选标的")
		return nil, nil
	}

	// 买入金额与调仓买入同一套分配规则，资金在计划内只取一次
	notional := w.config.Rule.Amount
	if w.config.Rule.Mode == BalanceShare {
		notional = snap.Cash / float64(len(items))
	}
	for _, item := range items {
		item.Notional = notional
	}

	summary := &RunSummary{
		RunID:     NewRunID(w.clock),
		Trigger:   "refill",
		StartedAt: now,
	}
	logger.Info("🔄 补仓开始 [%s]：卖出 %d 只，候选买入 %d 只，每只约 %.2f",
		summary.RunID, len(pending), len(items), notional)

	if err := w.execLock.Lock(ctx, w.config.LockKey, w.config.LockTTL); err != nil {
		return nil, fmt.Errorf("获取执行锁失败: %v", err)
	}
	func() {
		defer w.execLock.Unlock(ctx, w.config.LockKey)
		summary.State = StateExecuting
		w.executor.Execute(ctx, summary, &RebalancePlan{Buys: items})
	}()

	filledCount := 0
	for _, r := range summary.Orders {
		if r.Order != nil && r.Order.FilledQty > 0 {
			filledCount++
			metrics.GetPrometheusMetrics().RecordRefill("filled")
		} else {
			metrics.GetPrometheusMetrics().RecordRefill("failed")
		}
	}

	// 队列整体出清：当日补仓只执行一次，不对失败的买入重试
	for _, p := range pending {
		if err := w.db.MarkRefillDone(ctx, p.ID); err != nil {
			logger.Error("❌ 补仓条目出队失败 %s: %v", p.InstrumentID, err)
		}
	}
	if filledCount > 0 {
		w.publish(event.EventTypeRefillDone, map[string]interface{}{
			"run_id": summary.RunID,
			"count":  filledCount,
		})
	}

	summary.State = StateDone
	summary.FinishedAt = w.clock.Now()
	if err := w.db.SaveRunRecord(ctx, summaryToRecord(summary)); err != nil {
		logger.Error("❌ 写入补仓执行记录失败: %v", err)
	}
	logger.Info("🔄 补仓完成 [%s]：买入成交 %d / %d", summary.RunID, filledCount, len(items))
	return summary, nil
}

func (w *RefillWorker) publish(t event.EventType, data map[string]interface{}) {
	if w.events == nil {
		return
	}
	w.events.Publish(&event.Event{Type: t, Timestamp: w.clock.Now(), Data: data})
}

// parseHHMM 解析 HH:MM
func parseHHMM(s string) (int, int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("格式应为 HH:MM")
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("小时无效")
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("分钟无效")
	}
	return hour, minute, nil
}
