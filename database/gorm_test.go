package database

import (
	"context"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *GormDatabase {
	db, err := NewGormDatabase(&DBConfig{
		Type:     "sqlite",
		DSN:      "file::memory:?cache=shared&_pragma=foreign_keys(1)",
		LogLevel: "silent",
	})
	if err != nil {
		t.Fatalf("创建测试数据库失败: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPositionRecordLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	record := &PositionRecord{
		InstrumentID: "123045",
		Name:         "九洲转2",
		Quantity:     100,
		BuyPrice:     115.5,
		BuyTime:      time.Now(),
		StrategyName: "低溢价轮动",
	}
	if err := db.SavePositionRecord(ctx, record); err != nil {
		t.Fatalf("保存持仓记录失败: %v", err)
	}

	// 重复保存同一标的应更新而非新增
	record2 := &PositionRecord{
		InstrumentID: "123045",
		Name:         "九洲转2",
		Quantity:     200,
		BuyPrice:     116.0,
		BuyTime:      time.Now(),
	}
	if err := db.SavePositionRecord(ctx, record2); err != nil {
		t.Fatalf("更新持仓记录失败: %v", err)
	}

	got, err := db.GetPositionRecord(ctx, "123045")
	if err != nil {
		t.Fatalf("查询持仓记录失败: %v", err)
	}
	if got == nil || got.Quantity != 200 {
		t.Fatalf("持仓记录未按标的更新: %+v", got)
	}

	all, err := db.GetPositionRecords(ctx)
	if err != nil {
		t.Fatalf("查询全部持仓记录失败: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("期望 1 条记录，实际 %d", len(all))
	}

	if err := db.DeletePositionRecord(ctx, "123045"); err != nil {
		t.Fatalf("删除持仓记录失败: %v", err)
	}
	got, err = db.GetPositionRecord(ctx, "123045")
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if got != nil {
		t.Error("删除后不应再查到记录")
	}
	t.Log("✅ 持仓记录增删改查正常")
}

func TestRefillQueue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	item := &RefillItem{
		Date:         "2026-08-28",
		InstrumentID: "113050",
		Name:         "南银转债",
		SellPrice:    120.3,
		Reason:       "take_profit",
	}
	if err := db.EnqueueRefill(ctx, item); err != nil {
		t.Fatalf("入队失败: %v", err)
	}

	pending, err := db.GetPendingRefills(ctx, "2026-08-28")
	if err != nil {
		t.Fatalf("查询待补仓失败: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("期望 1 条待补仓，实际 %d", len(pending))
	}

	if err := db.MarkRefillDone(ctx, pending[0].ID); err != nil {
		t.Fatalf("标记完成失败: %v", err)
	}
	pending, _ = db.GetPendingRefills(ctx, "2026-08-28")
	if len(pending) != 0 {
		t.Error("完成后不应再出现在待补仓列表")
	}

	// 其他日期的队列互不影响
	other, _ := db.GetPendingRefills(ctx, "2026-08-29")
	if len(other) != 0 {
		t.Error("不同交易日的队列应隔离")
	}
	t.Log("✅ 补仓队列按日期隔离且可标记完成")
}

func TestRunRecordIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run := &RunRecord{
		RunID:     "run-20260828-001",
		Trigger:   "schedule",
		State:     "EXECUTING",
		StartedAt: time.Now(),
	}
	if err := db.SaveRunRecord(ctx, run); err != nil {
		t.Fatalf("保存执行记录失败: %v", err)
	}

	finished := time.Now()
	run.State = "DONE"
	run.FinishedAt = &finished
	if err := db.SaveRunRecord(ctx, run); err != nil {
		t.Fatalf("更新执行记录失败: %v", err)
	}

	got, err := db.GetRunByID(ctx, "run-20260828-001")
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if got.State != "DONE" || got.FinishedAt == nil {
		t.Errorf("执行记录应被更新为终态: %+v", got)
	}

	runs, err := db.GetRunRecords(ctx, &RunFilter{Trigger: "schedule"})
	if err != nil {
		t.Fatalf("过滤查询失败: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("同一 run_id 应只有一条记录，实际 %d", len(runs))
	}
	t.Log("✅ 执行记录按 run_id 幂等更新")
}

func TestOrderRecordFilter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	orders := []*OrderRecord{
		{RunID: "run-1", OrderID: "1001", InstrumentID: "123045", Side: "sell", Status: "filled", CreatedAt: time.Now()},
		{RunID: "run-1", OrderID: "1002", InstrumentID: "113050", Side: "buy", Status: "rejected", CreatedAt: time.Now()},
		{RunID: "run-2", OrderID: "1003", InstrumentID: "123045", Side: "buy", Status: "filled", CreatedAt: time.Now()},
	}
	for _, o := range orders {
		if err := db.SaveOrderRecord(ctx, o); err != nil {
			t.Fatalf("保存委托记录失败: %v", err)
		}
	}

	got, err := db.GetOrderRecords(ctx, &OrderFilter{RunID: "run-1"})
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("run-1 应有 2 条委托，实际 %d", len(got))
	}

	got, _ = db.GetOrderRecords(ctx, &OrderFilter{Status: "rejected"})
	if len(got) != 1 || got[0].OrderID != "1002" {
		t.Errorf("状态过滤结果错误: %+v", got)
	}
	t.Log("✅ 委托记录过滤查询正常")
}

func TestEventCleanup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		event := &EventRecord{
			Type:      "order_filled",
			Severity:  "info",
			Title:     "测试事件",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := db.SaveEvent(ctx, event); err != nil {
			t.Fatalf("保存事件失败: %v", err)
		}
	}

	// 按数量清理：只保留最新 5 条
	if err := db.CleanupOldEvents(ctx, "info", 5, 365); err != nil {
		t.Fatalf("清理失败: %v", err)
	}

	events, err := db.GetEvents(ctx, &EventFilter{Severity: "info"})
	if err != nil {
		t.Fatalf("查询事件失败: %v", err)
	}
	if len(events) != 5 {
		t.Errorf("期望保留 5 条，实际 %d", len(events))
	}

	stats, err := db.GetEventStats(ctx)
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if stats.InfoCount != 5 {
		t.Errorf("统计数量错误: %+v", stats)
	}
	t.Log("✅ 事件清理与统计正常")
}
