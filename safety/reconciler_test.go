package safety

import (
	"context"
	"testing"

	"bondrotor/broker"
	"bondrotor/config"
	"bondrotor/database"
	"bondrotor/event"
	"bondrotor/lock"
)

func newTestDB(t *testing.T, name string) database.Database {
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

func newTestReconciler(t *testing.T, name string, autoFix bool) (*Reconciler, *broker.SimGateway, database.Database) {
	cfg := &config.Config{}
	cfg.Reconcile.Enabled = true
	cfg.Reconcile.IntervalMinutes = 10
	cfg.Reconcile.AutoFix = autoFix
	cfg.Rebalance.LockKey = "execute"
	cfg.Rebalance.LockTTLSec = 300

	gw := broker.NewSimGateway(100000)
	db := newTestDB(t, name)
	r := NewReconciler(cfg, gw, db, event.NewEventBus(16), lock.NewLocalLock())
	return r, gw, db
}

func TestReconcileNoDrift(t *testing.T) {
	r, gw, db := newTestReconciler(t, "reconcile_clean", false)
	ctx := context.Background()

	gw.SetPosition("110081", 100, 100, 105)
	db.SavePositionRecord(ctx, &database.PositionRecord{
		InstrumentID: "110081", Name: "闻泰转债", Quantity: 100, BuyPrice: 100,
	})

	drifts, err := r.compare(ctx)
	if err != nil {
		t.Fatalf("对账失败: %v", err)
	}
	if len(drifts) != 0 {
		t.Errorf("记录与持仓一致时不应有差异: %+v", drifts)
	}

	t.Log("✅ 无差异对账测试通过")
}

func TestReconcileMissingPosition(t *testing.T) {
	r, _, db := newTestReconciler(t, "reconcile_missing", false)
	ctx := context.Background()

	// 记录存在但账户无持仓（人工卖出）
	db.SavePositionRecord(ctx, &database.PositionRecord{
		InstrumentID: "110081", Name: "闻泰转债", Quantity: 100, BuyPrice: 100,
	})

	drifts, err := r.compare(ctx)
	if err != nil {
		t.Fatalf("对账失败: %v", err)
	}
	if len(drifts) != 1 || drifts[0].Kind != DriftMissing {
		t.Fatalf("应发现悬空记录差异: %+v", drifts)
	}

	// 未开启自动修正，记录应保留
	record, _ := db.GetPositionRecord(ctx, "110081")
	if record == nil {
		t.Error("未开启自动修正时不应删除记录")
	}

	t.Log("✅ 悬空记录对账测试通过")
}

func TestReconcileAutoFixMissing(t *testing.T) {
	r, _, db := newTestReconciler(t, "reconcile_fix_missing", true)
	ctx := context.Background()

	db.SavePositionRecord(ctx, &database.PositionRecord{
		InstrumentID: "110081", Name: "闻泰转债", Quantity: 100, BuyPrice: 100,
	})

	drifts, err := r.compare(ctx)
	if err != nil {
		t.Fatalf("对账失败: %v", err)
	}
	if len(drifts) != 1 {
		t.Fatalf("应发现 1 条差异，实际 %d", len(drifts))
	}

	record, _ := db.GetPositionRecord(ctx, "110081")
	if record != nil {
		t.Error("自动修正后悬空记录应被摘除")
	}

	t.Log("✅ 自动摘除悬空记录测试通过")
}

func TestReconcileAutoFixShrunk(t *testing.T) {
	r, gw, db := newTestReconciler(t, "reconcile_fix_shrunk", true)
	ctx := context.Background()

	// 账户只剩 40，记录还是 100（部分人工卖出）
	gw.SetPosition("123045", 40, 118, 120)
	db.SavePositionRecord(ctx, &database.PositionRecord{
		InstrumentID: "123045", Name: "九洲转2", Quantity: 100, BuyPrice: 118,
	})

	drifts, err := r.compare(ctx)
	if err != nil {
		t.Fatalf("对账失败: %v", err)
	}
	if len(drifts) != 1 || drifts[0].Kind != DriftShrunk {
		t.Fatalf("应发现数量缩水差异: %+v", drifts)
	}

	record, _ := db.GetPositionRecord(ctx, "123045")
	if record == nil || record.Quantity != 40 {
		t.Errorf("记录数量应修正为 40: %+v", record)
	}

	t.Log("✅ 自动修正缩水记录测试通过")
}

func TestReconcileExtraManualHolding(t *testing.T) {
	r, gw, db := newTestReconciler(t, "reconcile_manual", false)
	ctx := context.Background()

	// 人工买入的持仓没有记录，对账不应报差异
	gw.SetPosition("600036", 200, 35, 36)
	gw.SetPosition("110081", 100, 100, 105)
	db.SavePositionRecord(ctx, &database.PositionRecord{
		InstrumentID: "110081", Name: "闻泰转债", Quantity: 100, BuyPrice: 100,
	})

	drifts, err := r.compare(ctx)
	if err != nil {
		t.Fatalf("对账失败: %v", err)
	}
	if len(drifts) != 0 {
		t.Errorf("无记录的人工持仓不属于对账范围: %+v", drifts)
	}

	t.Log("✅ 人工持仓不参与对账测试通过")
}
