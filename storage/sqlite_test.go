package storage

import (
	"os"
	"testing"
	"time"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	dbPath := "./test_bondrotor_metrics.db"
	t.Cleanup(func() {
		os.Remove(dbPath)
		os.Remove(dbPath + "-shm")
		os.Remove(dbPath + "-wal")
	})

	storage, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	return storage
}

func TestSystemMetricsLifecycle(t *testing.T) {
	storage := newTestStorage(t)

	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		m := &SystemMetrics{
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			CPUPercent:   10.0 + float64(i)*5,
			MemoryMB:     100.0 + float64(i)*10,
			GoroutineNum: 50,
			ProcessID:    1234,
		}
		if err := storage.SaveSystemMetrics(m); err != nil {
			t.Fatalf("保存采样失败: %v", err)
		}
	}

	metrics, err := storage.QuerySystemMetrics(base.Add(-time.Minute), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("查询采样失败: %v", err)
	}
	if len(metrics) != 3 {
		t.Fatalf("期望 3 条采样，实际 %d", len(metrics))
	}
	if metrics[0].CPUPercent != 10.0 {
		t.Errorf("采样应按时间升序: 首条 CPU %.1f", metrics[0].CPUPercent)
	}

	latest, err := storage.GetLatestSystemMetrics()
	if err != nil {
		t.Fatalf("查询最新采样失败: %v", err)
	}
	if latest == nil || latest.CPUPercent != 20.0 {
		t.Errorf("最新采样不正确: %+v", latest)
	}

	t.Log("✅ 系统监控采样读写测试通过")
}

func TestGetLatestSystemMetricsEmpty(t *testing.T) {
	storage := newTestStorage(t)

	latest, err := storage.GetLatestSystemMetrics()
	if err != nil {
		t.Fatalf("空表查询不应报错: %v", err)
	}
	if latest != nil {
		t.Errorf("空表应返回 nil: %+v", latest)
	}

	t.Log("✅ 空表查询测试通过")
}

func TestAggregateDaily(t *testing.T) {
	storage := newTestStorage(t)

	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	for i, cpu := range []float64{10, 20, 30} {
		m := &SystemMetrics{
			Timestamp:  day.Add(time.Duration(i) * time.Hour),
			CPUPercent: cpu,
			MemoryMB:   200,
			ProcessID:  1234,
		}
		if err := storage.SaveSystemMetrics(m); err != nil {
			t.Fatalf("保存采样失败: %v", err)
		}
	}

	daily, err := storage.AggregateDaily(day)
	if err != nil {
		t.Fatalf("每日汇总失败: %v", err)
	}
	if daily.SampleCount != 3 {
		t.Errorf("期望 3 条采样，实际 %d", daily.SampleCount)
	}
	if daily.AvgCPUPercent != 20.0 || daily.MaxCPUPercent != 30.0 {
		t.Errorf("汇总计算错误: avg=%.1f max=%.1f", daily.AvgCPUPercent, daily.MaxCPUPercent)
	}

	// 重复汇总应幂等
	if _, err := storage.AggregateDaily(day); err != nil {
		t.Fatalf("重复汇总失败: %v", err)
	}

	dailies, err := storage.QueryDailySystemMetrics(7)
	if err != nil {
		t.Fatalf("查询每日汇总失败: %v", err)
	}
	if len(dailies) != 1 {
		t.Errorf("重复汇总不应新增记录，实际 %d 条", len(dailies))
	}

	t.Log("✅ 每日汇总测试通过")
}

func TestCleanupSystemMetrics(t *testing.T) {
	storage := newTestStorage(t)

	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC()
	storage.SaveSystemMetrics(&SystemMetrics{Timestamp: old, CPUPercent: 1, MemoryMB: 1})
	storage.SaveSystemMetrics(&SystemMetrics{Timestamp: recent, CPUPercent: 2, MemoryMB: 2})

	if err := storage.CleanupSystemMetrics(time.Now().UTC().Add(-24 * time.Hour)); err != nil {
		t.Fatalf("清理失败: %v", err)
	}

	metrics, err := storage.QuerySystemMetrics(old.Add(-time.Hour), recent.Add(time.Hour))
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(metrics) != 1 {
		t.Errorf("清理后应剩 1 条，实际 %d", len(metrics))
	}

	t.Log("✅ 过期采样清理测试通过")
}

func TestLogStorageWriteAndQuery(t *testing.T) {
	dbPath := "./test_bondrotor_logs.db"
	defer os.Remove(dbPath)
	defer os.Remove(dbPath + "-shm")
	defer os.Remove(dbPath + "-wal")

	ls, err := NewLogStorage(dbPath)
	if err != nil {
		t.Fatalf("创建日志存储失败: %v", err)
	}
	defer ls.Close()

	sub := ls.Subscribe()

	ls.WriteLog("INFO", "调仓开始")
	ls.WriteLog("WARN", "标的停牌，跳过卖出")
	ls.WriteLog("ERROR", "下单被拒绝")

	// 等待异步批量写入（1 秒定时刷新）
	deadline := time.Now().Add(3 * time.Second)
	var logs []*LogRecord
	var total int
	for time.Now().Before(deadline) {
		logs, total, err = ls.GetLogs(LogQueryParams{Limit: 10})
		if err != nil {
			t.Fatalf("查询日志失败: %v", err)
		}
		if total == 3 {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	if total != 3 {
		t.Fatalf("期望 3 条日志，实际 %d", total)
	}

	// 按级别过滤
	logs, total, err = ls.GetLogs(LogQueryParams{Level: "ERROR", Limit: 10})
	if err != nil {
		t.Fatalf("按级别查询失败: %v", err)
	}
	if total != 1 || logs[0].Message != "下单被拒绝" {
		t.Errorf("级别过滤结果不正确: total=%d", total)
	}

	// 关键字过滤
	_, total, err = ls.GetLogs(LogQueryParams{Keyword: "停牌", Limit: 10})
	if err != nil {
		t.Fatalf("关键字查询失败: %v", err)
	}
	if total != 1 {
		t.Errorf("关键字过滤结果不正确: total=%d", total)
	}

	// 订阅者应收到推送
	received := 0
	timeout := time.After(2 * time.Second)
drain:
	for received < 3 {
		select {
		case _, ok := <-sub:
			if !ok {
				break drain
			}
			received++
		case <-timeout:
			break drain
		}
	}
	if received != 3 {
		t.Errorf("订阅者应收到 3 条推送，实际 %d", received)
	}
	ls.Unsubscribe(sub)

	t.Log("✅ 日志存储读写与订阅测试通过")
}
