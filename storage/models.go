package storage

import "time"

// SystemMetrics 系统监控细粒度采样
type SystemMetrics struct {
	ID            int64
	Timestamp     time.Time
	CPUPercent    float64
	MemoryMB      float64
	MemoryPercent float64
	GoroutineNum  int
	ProcessID     int
	CreatedAt     time.Time
}

// DailySystemMetrics 系统监控每日汇总
type DailySystemMetrics struct {
	ID            int64
	Date          time.Time
	AvgCPUPercent float64
	MaxCPUPercent float64
	AvgMemoryMB   float64
	MaxMemoryMB   float64
	SampleCount   int
	CreatedAt     time.Time
}
