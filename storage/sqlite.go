package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"bondrotor/utils"
)

// SQLiteStorage SQLite 监控数据存储实现
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage 创建 SQLite 存储
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	// WAL 模式提高并发性能
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// SQLite 单写连接
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("创建表失败: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func createTables(db *sql.DB) error {
	metricsSQL := `
	CREATE TABLE IF NOT EXISTS system_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		cpu_percent REAL NOT NULL,
		memory_mb REAL NOT NULL,
		memory_percent REAL,
		goroutine_num INTEGER,
		process_id INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_system_metrics_timestamp ON system_metrics(timestamp);`

	dailySQL := `
	CREATE TABLE IF NOT EXISTS daily_system_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date DATE NOT NULL UNIQUE,
		avg_cpu_percent REAL,
		max_cpu_percent REAL,
		avg_memory_mb REAL,
		max_memory_mb REAL,
		sample_count INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_daily_system_metrics_date ON daily_system_metrics(date);`

	for _, stmt := range []string{metricsSQL, dailySQL} {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveSystemMetrics 保存一次系统监控采样
func (s *SQLiteStorage) SaveSystemMetrics(m *SystemMetrics) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = utils.NowUTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO system_metrics (timestamp, cpu_percent, memory_mb, memory_percent, goroutine_num, process_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.Timestamp, m.CPUPercent, m.MemoryMB, m.MemoryPercent, m.GoroutineNum, m.ProcessID)
	return err
}

// QuerySystemMetrics 查询时间区间内的细粒度采样
func (s *SQLiteStorage) QuerySystemMetrics(startTime, endTime time.Time) ([]*SystemMetrics, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, cpu_percent, memory_mb, memory_percent, goroutine_num, process_id, created_at
		FROM system_metrics
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, startTime, endTime)
	if err != nil {
		return nil, fmt.Errorf("查询系统监控数据失败: %w", err)
	}
	defer rows.Close()

	var metrics []*SystemMetrics
	for rows.Next() {
		m := &SystemMetrics{}
		var memoryPercent sql.NullFloat64
		var goroutineNum sql.NullInt64
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.CPUPercent, &m.MemoryMB,
			&memoryPercent, &goroutineNum, &m.ProcessID, &m.CreatedAt); err != nil {
			continue
		}
		if memoryPercent.Valid {
			m.MemoryPercent = memoryPercent.Float64
		}
		if goroutineNum.Valid {
			m.GoroutineNum = int(goroutineNum.Int64)
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

// GetLatestSystemMetrics 获取最新的一次采样
func (s *SQLiteStorage) GetLatestSystemMetrics() (*SystemMetrics, error) {
	row := s.db.QueryRow(`
		SELECT id, timestamp, cpu_percent, memory_mb, memory_percent, goroutine_num, process_id, created_at
		FROM system_metrics
		ORDER BY timestamp DESC
		LIMIT 1
	`)

	m := &SystemMetrics{}
	var memoryPercent sql.NullFloat64
	var goroutineNum sql.NullInt64
	err := row.Scan(&m.ID, &m.Timestamp, &m.CPUPercent, &m.MemoryMB,
		&memoryPercent, &goroutineNum, &m.ProcessID, &m.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("查询最新监控数据失败: %w", err)
	}
	if memoryPercent.Valid {
		m.MemoryPercent = memoryPercent.Float64
	}
	if goroutineNum.Valid {
		m.GoroutineNum = int(goroutineNum.Int64)
	}
	return m, nil
}

// AggregateDaily 汇总指定日期的采样并写入每日汇总表（幂等）
func (s *SQLiteStorage) AggregateDaily(date time.Time) (*DailySystemMetrics, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	row := s.db.QueryRow(`
		SELECT COALESCE(AVG(cpu_percent), 0), COALESCE(MAX(cpu_percent), 0),
		       COALESCE(AVG(memory_mb), 0), COALESCE(MAX(memory_mb), 0), COUNT(*)
		FROM system_metrics
		WHERE timestamp >= ? AND timestamp < ?
	`, utils.ToUTC(dayStart), utils.ToUTC(dayEnd))

	daily := &DailySystemMetrics{Date: dayStart}
	if err := row.Scan(&daily.AvgCPUPercent, &daily.MaxCPUPercent,
		&daily.AvgMemoryMB, &daily.MaxMemoryMB, &daily.SampleCount); err != nil {
		return nil, fmt.Errorf("汇总监控数据失败: %w", err)
	}

	if daily.SampleCount == 0 {
		return daily, nil
	}

	_, err := s.db.Exec(`
		INSERT INTO daily_system_metrics (date, avg_cpu_percent, max_cpu_percent, avg_memory_mb, max_memory_mb, sample_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			avg_cpu_percent = excluded.avg_cpu_percent,
			max_cpu_percent = excluded.max_cpu_percent,
			avg_memory_mb = excluded.avg_memory_mb,
			max_memory_mb = excluded.max_memory_mb,
			sample_count = excluded.sample_count
	`, daily.Date.Format("2006-01-02"), daily.AvgCPUPercent, daily.MaxCPUPercent,
		daily.AvgMemoryMB, daily.MaxMemoryMB, daily.SampleCount)
	if err != nil {
		return nil, fmt.Errorf("写入每日汇总失败: %w", err)
	}
	return daily, nil
}

// QueryDailySystemMetrics 查询最近 N 天的每日汇总
func (s *SQLiteStorage) QueryDailySystemMetrics(days int) ([]*DailySystemMetrics, error) {
	startDate := time.Now().AddDate(0, 0, -days).Format("2006-01-02")

	rows, err := s.db.Query(`
		SELECT id, date, avg_cpu_percent, max_cpu_percent, avg_memory_mb, max_memory_mb, sample_count, created_at
		FROM daily_system_metrics
		WHERE date >= ?
		ORDER BY date ASC
	`, startDate)
	if err != nil {
		return nil, fmt.Errorf("查询每日汇总失败: %w", err)
	}
	defer rows.Close()

	var metrics []*DailySystemMetrics
	for rows.Next() {
		m := &DailySystemMetrics{}
		var dateStr string
		if err := rows.Scan(&m.ID, &dateStr, &m.AvgCPUPercent, &m.MaxCPUPercent,
			&m.AvgMemoryMB, &m.MaxMemoryMB, &m.SampleCount, &m.CreatedAt); err != nil {
			continue
		}
		m.Date, _ = time.Parse("2006-01-02", dateStr)
		metrics = append(metrics, m)
	}
	return metrics, nil
}

// CleanupSystemMetrics 清理过期的细粒度采样
func (s *SQLiteStorage) CleanupSystemMetrics(beforeTime time.Time) error {
	_, err := s.db.Exec(`DELETE FROM system_metrics WHERE timestamp < ?`, beforeTime)
	return err
}

// CleanupDailySystemMetrics 清理过期的每日汇总
func (s *SQLiteStorage) CleanupDailySystemMetrics(beforeDate time.Time) error {
	_, err := s.db.Exec(`DELETE FROM daily_system_metrics WHERE date < ?`, beforeDate.Format("2006-01-02"))
	return err
}

// Vacuum 回收数据库空间
func (s *SQLiteStorage) Vacuum() error {
	_, err := s.db.Exec("VACUUM")
	return err
}

// Close 关闭数据库连接
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
