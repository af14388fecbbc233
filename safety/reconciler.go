package safety

import (
	"context"
	"sync"
	"time"

	"bondrotor/broker"
	"bondrotor/config"
	"bondrotor/database"
	"bondrotor/event"
	"bondrotor/lock"
	"bondrotor/logger"
	"bondrotor/utils"
)

// DriftKind 对账差异类型
type DriftKind string

const (
	// 买入记录存在但券商账户已无持仓（多为人工卖出）
	DriftMissing DriftKind = "missing"
	// 券商持仓数量少于买入记录
	DriftShrunk DriftKind = "shrunk"
)

// Drift 一条对账差异
type Drift struct {
	Kind         DriftKind
	InstrumentID string
	Name         string
	RecordQty    int64
	ActualQty    int64
}

// Reconciler 持仓对账器
//
// 买入记录是卖出范围的唯一依据，人工在券商终端卖出后记录会悬空，
// 下次调仓会对不存在的持仓下卖单。对账器定期比对买入记录与券商
// 实际持仓，发现差异时告警，开启自动修正后直接收敛记录。
type Reconciler struct {
	cfg      *config.Config
	gateway  broker.Gateway
	db       database.Database
	events   *event.EventBus
	execLock lock.DistributedLock

	mu                sync.Mutex
	lastReconcileTime time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewReconciler 创建对账器
func NewReconciler(cfg *config.Config, gateway broker.Gateway, db database.Database,
	events *event.EventBus, execLock lock.DistributedLock) *Reconciler {
	return &Reconciler{
		cfg:      cfg,
		gateway:  gateway,
		db:       db,
		events:   events,
		execLock: execLock,
		stopCh:   make(chan struct{}),
	}
}

// Start 启动对账协程
func (r *Reconciler) Start(ctx context.Context) {
	if !r.cfg.Reconcile.Enabled {
		logger.Info("ℹ️ 持仓对账未启用")
		return
	}

	interval := time.Duration(r.cfg.Reconcile.IntervalMinutes) * time.Minute
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				if _, err := r.Reconcile(ctx); err != nil {
					logger.Error("❌ 持仓对账失败: %v", err)
				}
			}
		}
	}()
	logger.Info("✅ 持仓对账已启动 (间隔: %d分钟)", r.cfg.Reconcile.IntervalMinutes)
}

// Stop 停止对账协程
func (r *Reconciler) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

// Reconcile 执行一次对账，返回发现的差异
// 非交易时段跳过；执行锁被占用时跳过，避免和正在执行的调仓互相干扰
func (r *Reconciler) Reconcile(ctx context.Context) ([]*Drift, error) {
	if !utils.IsTradingTime(time.Now()) {
		return nil, nil
	}

	r.mu.Lock()
	if time.Since(r.lastReconcileTime) < 30*time.Second {
		r.mu.Unlock()
		return nil, nil
	}
	r.lastReconcileTime = time.Now()
	r.mu.Unlock()

	lockKey := r.cfg.Rebalance.LockKey
	ok, err := r.execLock.TryLock(ctx, lockKey, time.Duration(r.cfg.Rebalance.LockTTLSec)*time.Second)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Debug("⏭️ 执行锁被占用，跳过本次对账")
		return nil, nil
	}
	defer r.execLock.Unlock(ctx, lockKey)

	return r.compare(ctx)
}

// compare 比对买入记录与券商持仓
func (r *Reconciler) compare(ctx context.Context) ([]*Drift, error) {
	records, err := r.db.GetPositionRecords(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	positions, err := r.gateway.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	held := make(map[string]int64, len(positions))
	for _, pos := range positions {
		held[pos.InstrumentID] = pos.Quantity
	}

	var drifts []*Drift
	for _, record := range records {
		actual := held[record.InstrumentID]
		switch {
		case actual == 0:
			drifts = append(drifts, &Drift{
				Kind:         DriftMissing,
				InstrumentID: record.InstrumentID,
				Name:         record.Name,
				RecordQty:    record.Quantity,
			})
		case actual < record.Quantity:
			drifts = append(drifts, &Drift{
				Kind:         DriftShrunk,
				InstrumentID: record.InstrumentID,
				Name:         record.Name,
				RecordQty:    record.Quantity,
				ActualQty:    actual,
			})
		}
	}

	for _, drift := range drifts {
		logger.Warn("⚖️ 对账差异 [%s] %s(%s)：记录 %d 实际 %d",
			drift.Kind, drift.Name, drift.InstrumentID, drift.RecordQty, drift.ActualQty)
		r.publish(drift)

		if r.cfg.Reconcile.AutoFix {
			r.fix(ctx, drift)
		}
	}

	if len(drifts) == 0 {
		logger.Debug("⚖️ 对账完成，记录与持仓一致（%d 条）", len(records))
	}
	return drifts, nil
}

// fix 把买入记录收敛到券商实际持仓
func (r *Reconciler) fix(ctx context.Context, drift *Drift) {
	switch drift.Kind {
	case DriftMissing:
		if err := r.db.DeletePositionRecord(ctx, drift.InstrumentID); err != nil {
			logger.Error("❌ 修正对账差异失败 %s: %v", drift.InstrumentID, err)
			return
		}
		logger.Info("🔧 已摘除悬空买入记录 %s", drift.InstrumentID)
	case DriftShrunk:
		record, err := r.db.GetPositionRecord(ctx, drift.InstrumentID)
		if err != nil || record == nil {
			return
		}
		record.Quantity = drift.ActualQty
		if err := r.db.SavePositionRecord(ctx, record); err != nil {
			logger.Error("❌ 修正对账差异失败 %s: %v", drift.InstrumentID, err)
			return
		}
		logger.Info("🔧 已修正买入记录 %s 数量为 %d", drift.InstrumentID, drift.ActualQty)
	}
}

func (r *Reconciler) publish(drift *Drift) {
	if r.events == nil {
		return
	}
	r.events.Publish(&event.Event{
		Type:      event.EventTypeError,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"error":      "持仓对账差异",
			"instrument": drift.InstrumentID,
			"name":       drift.Name,
			"reason":     string(drift.Kind),
		},
	})
}
