package rebalance

import (
	"context"
	"testing"
	"time"

	"bondrotor/broker"
	"bondrotor/database"
	"bondrotor/lock"
	"bondrotor/source"
	"bondrotor/utils"
)

func newTestMonitor(gw broker.Gateway, clock *fakeClock, execLock lock.DistributedLock) *Monitor {
	snapshotter := NewSnapshotter(gw, nil, clock)
	exec := newTestExecutor(gw, clock)
	if execLock == nil {
		execLock = lock.NewLocalLock()
	}
	return NewMonitor(snapshotter, exec, execLock, nil, nil, &MonitorConfig{
		Interval:   time.Minute,
		OrderStyle: broker.OrderStyleLimit,
		LockKey:    "execute",
		LockTTL:    time.Minute,
	}, clock)
}

func TestMonitorTakeProfitTrigger(t *testing.T) {
	// 成本 100 现价 112，止盈 10% → 触发卖出
	gw := broker.NewSimGateway(0)
	gw.SetPosition("110081", 10, 100, 112)
	clock := newFakeClock(tradingTime())
	m := newTestMonitor(gw, clock, nil)
	m.SetTargets([]*source.TargetEntry{
		{InstrumentID: "110081", TakeProfitPct: floatPtr(0.10)},
	})

	summary, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("监控检查失败: %v", err)
	}
	if summary == nil {
		t.Fatal("应产生卖出计划")
	}
	if len(summary.Orders) != 1 || summary.Orders[0].Order.Side != broker.SideSell {
		t.Fatalf("应有一条卖出委托: %+v", summary.Orders)
	}
	if summary.Orders[0].Order.Status != broker.OrderStatusFilled {
		t.Errorf("模拟网关应立即成交: %+v", summary.Orders[0].Order)
	}
	t.Log("✅ 止盈触发卖出")
}

func TestMonitorNoTrigger(t *testing.T) {
	// 现价 105 未达阈值 → 只读检查，不产生计划
	gw := broker.NewSimGateway(0)
	gw.SetPosition("110081", 10, 100, 105)
	clock := newFakeClock(tradingTime())
	m := newTestMonitor(gw, clock, nil)
	m.SetTargets([]*source.TargetEntry{
		{InstrumentID: "110081", TakeProfitPct: floatPtr(0.10)},
	})

	summary, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("监控检查失败: %v", err)
	}
	if summary != nil {
		t.Fatalf("未触发时不应产生任何结果: %+v", summary)
	}
	t.Log("✅ 未触发时为只读检查")
}

func TestMonitorStopLossTrigger(t *testing.T) {
	// 成本 100 现价 94，止损 5% → 触发卖出
	gw := broker.NewSimGateway(0)
	gw.SetPosition("113050", 20, 100, 94)
	clock := newFakeClock(tradingTime())
	m := newTestMonitor(gw, clock, nil)
	m.SetTargets([]*source.TargetEntry{
		{InstrumentID: "113050", StopLossPct: floatPtr(0.05)},
	})

	summary, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("监控检查失败: %v", err)
	}
	if summary == nil || len(summary.Orders) != 1 {
		t.Fatalf("应产生一条止损卖出: %+v", summary)
	}
	t.Log("✅ 止损触发卖出")
}

func TestMonitorThresholdAbsent(t *testing.T) {
	// 未配置阈值（无默认值）→ 任何涨跌都不触发
	gw := broker.NewSimGateway(0)
	gw.SetPosition("110081", 10, 100, 150)
	clock := newFakeClock(tradingTime())
	m := newTestMonitor(gw, clock, nil)
	m.SetTargets([]*source.TargetEntry{{InstrumentID: "110081"}})

	summary, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("监控检查失败: %v", err)
	}
	if summary != nil {
		t.Fatalf("无阈值不应触发: %+v", summary)
	}
	t.Log("✅ 缺失的阈值方向永不触发")
}

func TestMonitorOutsideTradingHours(t *testing.T) {
	gw := broker.NewSimGateway(0)
	gw.SetPosition("110081", 10, 100, 150)
	// 周二晚上 20:00，非交易时段
	clock := newFakeClock(time.Date(2026, 9, 1, 20, 0, 0, 0, utils.GlobalLocation))
	m := newTestMonitor(gw, clock, nil)
	m.SetTargets([]*source.TargetEntry{
		{InstrumentID: "110081", TakeProfitPct: floatPtr(0.10)},
	})

	summary, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("监控检查失败: %v", err)
	}
	if summary != nil {
		t.Fatal("非交易时段应完全跳过")
	}
	t.Log("✅ 非交易时段不做任何检查")
}

func TestMonitorCombinedPlan(t *testing.T) {
	// 同一次检查的多个触发合并为一个计划，执行器只调用一次
	gw := broker.NewSimGateway(0)
	gw.SetPosition("110081", 10, 100, 112)
	gw.SetPosition("113050", 20, 100, 94)
	clock := newFakeClock(tradingTime())
	m := newTestMonitor(gw, clock, nil)
	m.SetTargets([]*source.TargetEntry{
		{InstrumentID: "110081", TakeProfitPct: floatPtr(0.10)},
		{InstrumentID: "113050", StopLossPct: floatPtr(0.05)},
	})

	summary, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("监控检查失败: %v", err)
	}
	if summary == nil {
		t.Fatal("应产生合并卖出计划")
	}
	if len(summary.Plan.Sells) != 2 || len(summary.Plan.Buys) != 0 {
		t.Fatalf("计划应只含 2 条卖出: %+v", summary.Plan)
	}
	if len(summary.Orders) != 2 {
		t.Fatalf("两条卖出应在同一次执行中完成: %+v", summary.Orders)
	}
	t.Log("✅ 多个触发合并为单个只卖计划")
}

func TestMonitorSkippedBusy(t *testing.T) {
	// 执行锁被占用 → 放弃本次触发并记录 SKIPPED_BUSY
	gw := broker.NewSimGateway(0)
	gw.SetPosition("110081", 10, 100, 112)
	clock := newFakeClock(tradingTime())
	execLock := lock.NewLocalLock()
	m := newTestMonitor(gw, clock, execLock)
	m.SetTargets([]*source.TargetEntry{
		{InstrumentID: "110081", TakeProfitPct: floatPtr(0.10)},
	})

	if err := execLock.Lock(context.Background(), "execute", time.Minute); err != nil {
		t.Fatalf("预占执行锁失败: %v", err)
	}
	defer execLock.Unlock(context.Background(), "execute")

	summary, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("监控检查失败: %v", err)
	}
	if summary == nil {
		t.Fatal("放弃执行也应产生结果记录")
	}
	if len(summary.Orders) != 0 {
		t.Fatalf("锁被占用时不应提交任何委托: %+v", summary.Orders)
	}
	found := false
	for _, e := range summary.Errors {
		if e.Kind == KindSkippedBusy {
			found = true
		}
	}
	if !found {
		t.Fatalf("应记录 SKIPPED_BUSY: %+v", summary.Errors)
	}
	t.Log("✅ 锁竞争时放弃本次触发")
}

func TestMonitorSuspendedPosition(t *testing.T) {
	// 触发但停牌 → 跳过，下次检查重新评估
	gw := broker.NewSimGateway(0)
	gw.SetPosition("110081", 10, 100, 112)
	gw.SetSuspended("110081", true)
	clock := newFakeClock(tradingTime())
	m := newTestMonitor(gw, clock, nil)
	m.SetTargets([]*source.TargetEntry{
		{InstrumentID: "110081", TakeProfitPct: floatPtr(0.10)},
	})

	summary, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("监控检查失败: %v", err)
	}
	if summary == nil {
		t.Fatal("停牌跳过也应产生结果记录")
	}
	if len(summary.Orders) != 0 {
		t.Fatalf("停牌标的不应下单: %+v", summary.Orders)
	}
	if len(summary.Skipped) != 1 || summary.Skipped[0].Reason != KindSuspended {
		t.Fatalf("应记录 SUSPENDED 跳过: %+v", summary.Skipped)
	}

	// 复牌后下次检查正常触发
	gw.SetSuspended("110081", false)
	summary, err = m.Tick(context.Background())
	if err != nil {
		t.Fatalf("复牌后检查失败: %v", err)
	}
	if summary == nil || len(summary.Orders) != 1 {
		t.Fatalf("复牌后应触发卖出: %+v", summary)
	}
	t.Log("✅ 停牌触发被跳过，复牌后重新评估")
}

func newRefillMonitor(gw broker.Gateway, db database.Database, clock *fakeClock) *Monitor {
	snapshotter := NewSnapshotter(gw, db, clock)
	exec := newTestExecutor(gw, clock)
	return NewMonitor(snapshotter, exec, lock.NewLocalLock(), db, nil, &MonitorConfig{
		Interval:       time.Minute,
		OrderStyle:     broker.OrderStyleLimit,
		RefillEnabled:  true,
		RefillDeadline: "14:50",
		LockKey:        "execute",
		LockTTL:        time.Minute,
	}, clock)
}

func TestMonitorEnqueuesRefillBeforeDeadline(t *testing.T) {
	// 截止时间前的止盈卖出进入补仓队列
	gw := broker.NewSimGateway(0)
	gw.SetPosition("110081", 10, 100, 112)
	clock := newFakeClock(tradingTime())
	db := newRefillTestDB(t, "monitor_enqueue")
	db.SavePositionRecord(context.Background(), &database.PositionRecord{
		InstrumentID: "110081", Quantity: 10, BuyPrice: 100,
	})
	m := newRefillMonitor(gw, db, clock)
	m.SetTargets([]*source.TargetEntry{
		{InstrumentID: "110081", TakeProfitPct: floatPtr(0.10)},
	})

	summary, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("监控检查失败: %v", err)
	}
	if summary == nil || len(summary.Orders) != 1 {
		t.Fatalf("应触发一笔止盈卖出: %+v", summary)
	}
	pending, _ := db.GetPendingRefills(context.Background(), utils.TradeDate(clock.Now()))
	if len(pending) != 1 || pending[0].InstrumentID != "110081" {
		t.Fatalf("止盈卖出应入补仓队列: %+v", pending)
	}
	t.Log("✅ 截止时间前的卖出入队补仓")
}

func TestMonitorNoRefillEnqueueAfterDeadline(t *testing.T) {
	// 14:50 之后的止盈卖出当日不再补仓，不入队
	gw := broker.NewSimGateway(0)
	gw.SetPosition("110081", 10, 100, 112)
	clock := newFakeClock(time.Date(2026, 9, 1, 14, 55, 0, 0, utils.GlobalLocation))
	db := newRefillTestDB(t, "monitor_deadline")
	db.SavePositionRecord(context.Background(), &database.PositionRecord{
		InstrumentID: "110081", Quantity: 10, BuyPrice: 100,
	})
	m := newRefillMonitor(gw, db, clock)
	m.SetTargets([]*source.TargetEntry{
		{InstrumentID: "110081", TakeProfitPct: floatPtr(0.10)},
	})

	summary, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("监控检查失败: %v", err)
	}
	if summary == nil || len(summary.Orders) != 1 {
		t.Fatalf("卖出本身不受截止时间影响: %+v", summary)
	}
	pending, _ := db.GetPendingRefills(context.Background(), utils.TradeDate(clock.Now()))
	if len(pending) != 0 {
		t.Fatalf("截止时间后的卖出不应入队: %+v", pending)
	}
	t.Log("✅ 截止时间后的卖出不再入补仓队列")
}

func TestMonitorHotReloadDefaultThresholds(t *testing.T) {
	// 默认阈值热更新后，下一次检查立即使用新值
	gw := broker.NewSimGateway(0)
	gw.SetPosition("110081", 10, 100, 112)
	clock := newFakeClock(tradingTime())
	snapshotter := NewSnapshotter(gw, nil, clock)
	exec := newTestExecutor(gw, clock)
	m := NewMonitor(snapshotter, exec, lock.NewLocalLock(), nil, nil, &MonitorConfig{
		Interval:          time.Minute,
		DefaultTakeProfit: 0.20,
		OrderStyle:        broker.OrderStyleLimit,
		LockKey:           "execute",
		LockTTL:           time.Minute,
	}, clock)

	summary, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("监控检查失败: %v", err)
	}
	if summary != nil {
		t.Fatalf("12%% 盈利未达默认 20%% 阈值，不应触发: %+v", summary)
	}

	m.SetDefaultThresholds(0.10, 0)

	summary, err = m.Tick(context.Background())
	if err != nil {
		t.Fatalf("更新阈值后检查失败: %v", err)
	}
	if summary == nil || len(summary.Orders) != 1 {
		t.Fatalf("阈值降到 10%% 后应触发止盈卖出: %+v", summary)
	}
	t.Log("✅ 默认阈值热更新即时生效")
}
