package rebalance

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"bondrotor/database"
	"bondrotor/event"
	"bondrotor/lock"
	"bondrotor/logger"
	"bondrotor/metrics"
	"bondrotor/source"
	"bondrotor/utils"
)

// OrchestratorConfig 调仓编排配置
type OrchestratorConfig struct {
	StrategyID int
	Rule       *AllocationRule
	LockKey    string
	LockTTL    time.Duration
}

// Orchestrator 调仓编排器
//
// 状态机：IDLE → RESOLVING_TARGET → SNAPSHOTTING → PLANNING →
// EXECUTING → DONE，任一非终态遇到账户级错误转入 FAILED。
// 每次运行无论成败都产出且只产出一份 RunSummary。
type Orchestrator struct {
	source      source.Source
	snapshotter *Snapshotter
	executor    *Executor
	execLock    lock.DistributedLock
	db          database.Database
	events      *event.EventBus
	monitor     *Monitor
	clock       Clock
	config      *OrchestratorConfig
}

// NewOrchestrator 创建调仓编排器
// monitor 可为 nil，传入时每次解析目标后会刷新其阈值表
func NewOrchestrator(src source.Source, snapshotter *Snapshotter, executor *Executor,
	execLock lock.DistributedLock, db database.Database, events *event.EventBus,
	monitor *Monitor, config *OrchestratorConfig, clock Clock) *Orchestrator {
	if clock == nil {
		clock = RealClock()
	}
	return &Orchestrator{
		source:      src,
		snapshotter: snapshotter,
		executor:    executor,
		execLock:    execLock,
		db:          db,
		events:      events,
		monitor:     monitor,
		clock:       clock,
		config:      config,
	}
}

// Run 执行一次完整调仓
func (o *Orchestrator) Run(ctx context.Context, trigger string) *RunSummary {
	summary := &RunSummary{
		RunID:     NewRunID(o.clock),
		Trigger:   trigger,
		State:     StateIdle,
		StartedAt: o.clock.Now(),
	}
	logger.Info("🚀 调仓开始 [%s] 触发方式=%s 策略=%d", summary.RunID, trigger, o.config.StrategyID)
	o.publish(event.EventTypeRebalanceStarted, map[string]interface{}{
		"run_id":  summary.RunID,
		"trigger": trigger,
	})

	// 目标解析与快照采集都是只读操作，可以并行，
	// 但两者都完成后才进入规划阶段
	o.setState(summary, StateResolvingTarget)
	var (
		targets []*source.TargetEntry
		snap    *Snapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := o.source.GetTargetList(gctx, o.config.StrategyID, utils.TradeDate(o.clock.Now()))
		if err != nil {
			return NewRunError(KindSourceUnavailable, "", "获取目标列表失败: %v", err)
		}
		targets = list
		return nil
	})
	g.Go(func() error {
		s, err := o.snapshotter.Take(gctx)
		if err != nil {
			return err
		}
		snap = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return o.fail(ctx, summary, err)
	}
	o.setState(summary, StateSnapshotting)
	logger.Info("📷 快照完成：托管持仓 %d 只，可用资金 %.2f；目标 %d 只",
		len(snap.Positions), snap.Cash, len(targets))

	o.setState(summary, StatePlanning)
	plan := Plan(snap, targets, o.config.Rule)
	logger.Info("📝 计划生成：卖出 %d、买入 %d、跳过 %d", len(plan.Sells), len(plan.Buys), len(plan.Skipped))

	if o.monitor != nil {
		o.monitor.SetTargets(targets)
	}

	if plan.Empty() {
		summary.Plan = plan
		summary.Skipped = append(summary.Skipped, plan.Skipped...)
		return o.done(ctx, summary)
	}

	// 执行阶段全程持有执行锁，监控触发在此期间会被拒绝
	o.setState(summary, StateExecuting)
	if err := o.execLock.Lock(ctx, o.config.LockKey, o.config.LockTTL); err != nil {
		metrics.GetPrometheusMetrics().RecordLockAcquire(o.config.LockKey, "failed")
		return o.fail(ctx, summary, NewRunError(KindGatewayError, "", "获取执行锁失败: %v", err))
	}
	metrics.GetPrometheusMetrics().RecordLockAcquire(o.config.LockKey, "acquired")
	func() {
		defer o.execLock.Unlock(ctx, o.config.LockKey)
		o.executor.Execute(ctx, summary, plan)
	}()

	return o.done(ctx, summary)
}

// setState 状态转移
func (o *Orchestrator) setState(summary *RunSummary, state RunState) {
	logger.Debug("🔁 [%s] %s → %s", summary.RunID, summary.State, state)
	summary.State = state
}

// done 正常收尾
func (o *Orchestrator) done(ctx context.Context, summary *RunSummary) *RunSummary {
	o.setState(summary, StateDone)
	summary.FinishedAt = o.clock.Now()
	o.persistRun(ctx, summary)
	metrics.GetPrometheusMetrics().RecordRun(summary.Trigger, string(summary.State), summary.FinishedAt.Sub(summary.StartedAt))

	data := map[string]interface{}{
		"run_id": summary.RunID,
		"filled": summary.FilledCount(),
		"failed": summary.FailedCount(),
	}
	if summary.Plan != nil {
		data["sell_count"] = len(summary.Plan.Sells)
		data["buy_count"] = len(summary.Plan.Buys)
	}
	o.publish(event.EventTypeRebalanceDone, data)
	logger.Info("🏁 调仓完成 [%s]：成交 %d、失败 %d、跳过 %d",
		summary.RunID, summary.FilledCount(), summary.FailedCount(), len(summary.Skipped))
	return summary
}

// fail 账户级错误收尾，计划不再执行
func (o *Orchestrator) fail(ctx context.Context, summary *RunSummary, err error) *RunSummary {
	var runErr *RunError
	if !errors.As(err, &runErr) {
		runErr = NewRunError(Classify(err), "", "%v", err)
	}
	summary.Errors = append(summary.Errors, runErr)
	o.setState(summary, StateFailed)
	summary.FinishedAt = o.clock.Now()
	o.persistRun(ctx, summary)
	metrics.GetPrometheusMetrics().RecordRun(summary.Trigger, string(summary.State), summary.FinishedAt.Sub(summary.StartedAt))

	logger.Error("❌ 调仓失败 [%s]: %v", summary.RunID, err)
	o.publish(event.EventTypeRebalanceFailed, map[string]interface{}{
		"run_id": summary.RunID,
		"error":  err.Error(),
	})
	return summary
}

// persistRun 落库执行历史
func (o *Orchestrator) persistRun(ctx context.Context, summary *RunSummary) {
	if o.db == nil {
		return
	}
	if err := o.db.SaveRunRecord(context.WithoutCancel(ctx), summaryToRecord(summary)); err != nil {
		logger.Error("❌ 写入执行记录失败: %v", err)
	}
}

func (o *Orchestrator) publish(t event.EventType, data map[string]interface{}) {
	if o.events == nil {
		return
	}
	o.events.Publish(&event.Event{Type: t, Timestamp: o.clock.Now(), Data: data})
}
