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

func newRefillTestDB(t *testing.T, name string) database.Database {
	db, err := database.NewGormDatabase(&database.DBConfig{
		Type:     "sqlite",
		DSN:      "file:" + name + "?mode=memory&cache=shared",
		LogLevel: "silent",
	})
	if err != nil {
		t.Fatalf("创建测试数据库失败: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRefillWorker(gw broker.Gateway, db database.Database, clock *fakeClock,
	targets []*source.TargetEntry) *RefillWorker {
	snapshotter := NewSnapshotter(gw, db, clock)
	exec := newTestExecutor(gw, clock)
	return NewRefillWorker(&fakeSource{targets: targets}, snapshotter, exec,
		lock.NewLocalLock(), db, nil, &RefillConfig{
			StrategyID: 42,
			Rule:       limitRule(),
			LockKey:    "execute",
			LockTTL:    time.Minute,
		}, clock)
}

func TestRefillBuysReplacementFromTargetList(t *testing.T) {
	// 止损卖出 123045，补仓买入当日目标列表中的候选，而不是买回原标的
	gw := broker.NewSimGateway(20000)
	gw.SetQuote("123045", 115.5)
	gw.SetQuote("113027", 108.2)
	clock := newFakeClock(tradingTime())
	db := newRefillTestDB(t, "refill_candidate")
	w := newTestRefillWorker(gw, db, clock, targetList("113027", "110081"))

	ctx := context.Background()
	date := utils.TradeDate(clock.Now())
	if err := db.EnqueueRefill(ctx, &database.RefillItem{
		Date: date, InstrumentID: "123045", Name: "九洲转2", SellPrice: 120, Reason: "stop_loss",
	}); err != nil {
		t.Fatalf("入队失败: %v", err)
	}

	summary, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("补仓执行失败: %v", err)
	}
	if summary == nil || len(summary.Orders) != 1 {
		t.Fatalf("卖出 1 只应补入 1 只候选: %+v", summary)
	}
	order := summary.Orders[0].Order
	if order.InstrumentID != "113027" {
		t.Fatalf("应买入目标列表首位候选 113027，实际 %s", order.InstrumentID)
	}
	if order.Status != broker.OrderStatusFilled {
		t.Fatalf("候选买入应成交: %+v", order)
	}

	pending, _ := db.GetPendingRefills(ctx, date)
	if len(pending) != 0 {
		t.Fatalf("补仓执行后队列应出清: %+v", pending)
	}
	t.Log("✅ 补仓按目标列表顺序买入候选并出清队列")
}

func TestRefillSkipsHeldCandidates(t *testing.T) {
	// 目标列表首位已持有 → 顺延到下一个候选
	gw := broker.NewSimGateway(20000)
	gw.SetPosition("110081", 100, 100, 102)
	gw.SetQuote("113027", 108.2)
	clock := newFakeClock(tradingTime())
	db := newRefillTestDB(t, "refill_held")
	w := newTestRefillWorker(gw, db, clock, targetList("110081", "113027"))

	ctx := context.Background()
	date := utils.TradeDate(clock.Now())
	db.EnqueueRefill(ctx, &database.RefillItem{
		Date: date, InstrumentID: "123045", Reason: "take_profit",
	})

	summary, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("补仓执行失败: %v", err)
	}
	if summary == nil || len(summary.Orders) != 1 {
		t.Fatalf("应补入 1 只候选: %+v", summary)
	}
	if summary.Orders[0].Order.InstrumentID != "113027" {
		t.Fatalf("已持有的 110081 应被跳过，实际买入 %s", summary.Orders[0].Order.InstrumentID)
	}
	t.Log("✅ 已持有的候选被跳过")
}

func TestRefillSoldCodeStillEligible(t *testing.T) {
	// 刚卖出的代码若仍在目标列表中，不按已持有处理，可以被重新买入
	gw := broker.NewSimGateway(20000)
	gw.SetPosition("123045", 100, 115, 110) // 卖出成交后持仓列表尚未刷新
	gw.SetQuote("123045", 110)
	clock := newFakeClock(tradingTime())
	db := newRefillTestDB(t, "refill_requeue")
	w := newTestRefillWorker(gw, db, clock, targetList("123045"))

	ctx := context.Background()
	date := utils.TradeDate(clock.Now())
	db.EnqueueRefill(ctx, &database.RefillItem{
		Date: date, InstrumentID: "123045", Reason: "stop_loss",
	})

	summary, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("补仓执行失败: %v", err)
	}
	if summary == nil || len(summary.Orders) != 1 || summary.Orders[0].Order.InstrumentID != "123045" {
		t.Fatalf("仍在目标列表中的卖出标的应可买回: %+v", summary)
	}
	t.Log("✅ 目标列表仍包含的卖出标的可被买回")
}

func TestRefillRunsAtScheduledMinute(t *testing.T) {
	// 14:50 定时触发时队列必须被消费，截止判断只在入队侧生效
	gw := broker.NewSimGateway(20000)
	gw.SetQuote("113027", 108.2)
	clock := newFakeClock(time.Date(2026, 9, 1, 14, 50, 0, 0, utils.GlobalLocation))
	db := newRefillTestDB(t, "refill_sched")
	w := newTestRefillWorker(gw, db, clock, targetList("113027"))

	ctx := context.Background()
	date := utils.TradeDate(clock.Now())
	db.EnqueueRefill(ctx, &database.RefillItem{
		Date: date, InstrumentID: "123045", Reason: "take_profit",
	})

	summary, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("补仓执行失败: %v", err)
	}
	if summary == nil || len(summary.Orders) != 1 {
		t.Fatalf("定时触发应消费队列: %+v", summary)
	}
	pending, _ := db.GetPendingRefills(ctx, date)
	if len(pending) != 0 {
		t.Fatal("定时补仓后队列应为空")
	}
	t.Log("✅ 定时触发的补仓正常消费队列")
}

func TestRefillEmptyTargetListKeepsQueue(t *testing.T) {
	// 目标列表为空时无法选候选，队列保留
	gw := broker.NewSimGateway(20000)
	clock := newFakeClock(tradingTime())
	db := newRefillTestDB(t, "refill_notarget")
	w := newTestRefillWorker(gw, db, clock, nil)

	ctx := context.Background()
	date := utils.TradeDate(clock.Now())
	db.EnqueueRefill(ctx, &database.RefillItem{
		Date: date, InstrumentID: "123045", Reason: "stop_loss",
	})

	summary, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("补仓执行失败: %v", err)
	}
	if summary != nil {
		t.Fatalf("无候选时不应产生执行结果: %+v", summary)
	}
	pending, _ := db.GetPendingRefills(ctx, date)
	if len(pending) != 1 {
		t.Fatal("无候选时队列应保留待下次调度")
	}
	t.Log("✅ 目标列表为空时队列保留")
}

func TestParseHHMM(t *testing.T) {
	hour, minute, err := parseHHMM("14:50")
	if err != nil || hour != 14 || minute != 50 {
		t.Fatalf("解析 14:50 失败: %d:%d %v", hour, minute, err)
	}
	for _, bad := range []string{"", "14", "25:00", "14:60", "ab:cd"} {
		if _, _, err := parseHHMM(bad); err == nil {
			t.Errorf("%q 应解析失败", bad)
		}
	}
	t.Log("✅ 时间解析校验正确")
}
