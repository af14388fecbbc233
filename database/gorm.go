package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDatabase GORM 数据库实现
type GormDatabase struct {
	db *gorm.DB
}

// DBConfig 数据库配置
type DBConfig struct {
	Type            string        // sqlite, postgres, mysql
	DSN             string        // 数据源名称
	MaxOpenConns    int           // 最大打开连接数
	MaxIdleConns    int           // 最大空闲连接数
	ConnMaxLifetime time.Duration // 连接最大生命周期
	LogLevel        string        // 日志级别: silent, error, warn, info
}

// NewGormDatabase 创建 GORM 数据库实例
func NewGormDatabase(config *DBConfig) (*GormDatabase, error) {
	var dialector gorm.Dialector

	switch config.Type {
	case "sqlite":
		dialector = sqlite.Open(config.DSN)
	case "postgres", "postgresql":
		dialector = postgres.Open(config.DSN)
	case "mysql":
		dialector = mysql.Open(config.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	// 日志级别
	logLevel := logger.Silent
	switch config.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	// 打开数据库
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 获取底层 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 配置连接池
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	// 自动迁移
	if err := db.AutoMigrate(
		&PositionRecord{},
		&RefillItem{},
		&OrderRecord{},
		&RunRecord{},
		&EventRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	return &GormDatabase{db: db}, nil
}

// SavePositionRecord 保存持仓记录（已存在则更新）
func (g *GormDatabase) SavePositionRecord(ctx context.Context, record *PositionRecord) error {
	var existing PositionRecord
	err := g.db.WithContext(ctx).
		Where("instrument_id = ?", record.InstrumentID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return g.db.WithContext(ctx).Create(record).Error
	}
	if err != nil {
		return err
	}

	record.ID = existing.ID
	record.CreatedAt = existing.CreatedAt
	return g.db.WithContext(ctx).Save(record).Error
}

// GetPositionRecord 按标的获取持仓记录
func (g *GormDatabase) GetPositionRecord(ctx context.Context, instrumentID string) (*PositionRecord, error) {
	var record PositionRecord
	err := g.db.WithContext(ctx).
		Where("instrument_id = ?", instrumentID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetPositionRecords 获取全部持仓记录
func (g *GormDatabase) GetPositionRecords(ctx context.Context) ([]*PositionRecord, error) {
	var records []*PositionRecord
	if err := g.db.WithContext(ctx).Order("buy_time ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// DeletePositionRecord 删除持仓记录
func (g *GormDatabase) DeletePositionRecord(ctx context.Context, instrumentID string) error {
	return g.db.WithContext(ctx).
		Where("instrument_id = ?", instrumentID).
		Delete(&PositionRecord{}).Error
}

// EnqueueRefill 加入补仓队列
func (g *GormDatabase) EnqueueRefill(ctx context.Context, item *RefillItem) error {
	return g.db.WithContext(ctx).Create(item).Error
}

// GetPendingRefills 获取指定交易日未完成的补仓条目
func (g *GormDatabase) GetPendingRefills(ctx context.Context, date string) ([]*RefillItem, error) {
	var items []*RefillItem
	if err := g.db.WithContext(ctx).
		Where("date = ? AND done = ?", date, false).
		Order("created_at ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// MarkRefillDone 标记补仓条目已完成
func (g *GormDatabase) MarkRefillDone(ctx context.Context, id int64) error {
	return g.db.WithContext(ctx).
		Model(&RefillItem{}).
		Where("id = ?", id).
		Update("done", true).Error
}

// SaveOrderRecord 保存委托记录
func (g *GormDatabase) SaveOrderRecord(ctx context.Context, order *OrderRecord) error {
	return g.db.WithContext(ctx).Create(order).Error
}

// GetOrderRecords 查询委托记录
func (g *GormDatabase) GetOrderRecords(ctx context.Context, filter *OrderFilter) ([]*OrderRecord, error) {
	query := g.db.WithContext(ctx).Model(&OrderRecord{})

	if filter.RunID != "" {
		query = query.Where("run_id = ?", filter.RunID)
	}
	if filter.InstrumentID != "" {
		query = query.Where("instrument_id = ?", filter.InstrumentID)
	}
	if filter.Side != "" {
		query = query.Where("side = ?", filter.Side)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.StartTime != nil {
		query = query.Where("created_at >= ?", filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("created_at <= ?", filter.EndTime)
	}

	query = query.Order("created_at DESC")

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var orders []*OrderRecord
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}

	return orders, nil
}

// SaveRunRecord 保存执行历史（按 run_id 幂等更新）
func (g *GormDatabase) SaveRunRecord(ctx context.Context, run *RunRecord) error {
	var existing RunRecord
	err := g.db.WithContext(ctx).
		Where("run_id = ?", run.RunID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return g.db.WithContext(ctx).Create(run).Error
	}
	if err != nil {
		return err
	}

	run.ID = existing.ID
	return g.db.WithContext(ctx).Save(run).Error
}

// GetRunRecords 查询执行历史
func (g *GormDatabase) GetRunRecords(ctx context.Context, filter *RunFilter) ([]*RunRecord, error) {
	query := g.db.WithContext(ctx).Model(&RunRecord{})

	if filter.Trigger != "" {
		query = query.Where("trigger = ?", filter.Trigger)
	}
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}
	if filter.StartTime != nil {
		query = query.Where("started_at >= ?", filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("started_at <= ?", filter.EndTime)
	}

	query = query.Order("started_at DESC")

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var runs []*RunRecord
	if err := query.Find(&runs).Error; err != nil {
		return nil, err
	}

	return runs, nil
}

// GetRunByID 根据 run_id 获取执行记录
func (g *GormDatabase) GetRunByID(ctx context.Context, runID string) (*RunRecord, error) {
	var run RunRecord
	err := g.db.WithContext(ctx).
		Where("run_id = ?", runID).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// SaveEvent 保存事件记录
func (g *GormDatabase) SaveEvent(ctx context.Context, event *EventRecord) error {
	return g.db.WithContext(ctx).Create(event).Error
}

// GetEvents 获取事件记录
func (g *GormDatabase) GetEvents(ctx context.Context, filter *EventFilter) ([]*EventRecord, error) {
	query := g.db.WithContext(ctx).Model(&EventRecord{})

	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Instrument != "" {
		query = query.Where("instrument = ?", filter.Instrument)
	}
	if filter.StartTime != nil {
		query = query.Where("created_at >= ?", filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("created_at <= ?", filter.EndTime)
	}

	query = query.Order("created_at DESC")

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var events []*EventRecord
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}

	return events, nil
}

// GetEventStats 获取事件统计
func (g *GormDatabase) GetEventStats(ctx context.Context) (*EventStats, error) {
	stats := &EventStats{
		CountByType: make(map[string]int),
	}

	// 总数
	var totalCount int64
	g.db.WithContext(ctx).Model(&EventRecord{}).Count(&totalCount)
	stats.TotalCount = int(totalCount)

	// 按严重程度统计
	var criticalCount, warningCount, infoCount int64
	g.db.WithContext(ctx).Model(&EventRecord{}).Where("severity = ?", "critical").Count(&criticalCount)
	g.db.WithContext(ctx).Model(&EventRecord{}).Where("severity = ?", "warning").Count(&warningCount)
	g.db.WithContext(ctx).Model(&EventRecord{}).Where("severity = ?", "info").Count(&infoCount)
	stats.CriticalCount = int(criticalCount)
	stats.WarningCount = int(warningCount)
	stats.InfoCount = int(infoCount)

	// 最近24小时
	last24h := time.Now().Add(-24 * time.Hour)
	var last24hCount int64
	g.db.WithContext(ctx).Model(&EventRecord{}).Where("created_at >= ?", last24h).Count(&last24hCount)
	stats.Last24HoursCount = int(last24hCount)

	// 按类型统计（top 20）
	var typeStats []struct {
		Type  string
		Count int
	}
	g.db.WithContext(ctx).Model(&EventRecord{}).
		Select("type, COUNT(*) as count").
		Group("type").
		Order("count DESC").
		Limit(20).
		Scan(&typeStats)
	for _, ts := range typeStats {
		stats.CountByType[ts.Type] = ts.Count
	}

	return stats, nil
}

// CleanupOldEvents 清理旧事件
func (g *GormDatabase) CleanupOldEvents(ctx context.Context, severity string, keepCount int, keepDays int) error {
	// 按时间清理：删除超过指定天数的事件
	cutoffDate := time.Now().AddDate(0, 0, -keepDays)
	if err := g.db.WithContext(ctx).
		Where("severity = ? AND created_at < ?", severity, cutoffDate).
		Delete(&EventRecord{}).Error; err != nil {
		return err
	}

	// 按数量清理：保留最新的 keepCount 条
	var count int64
	g.db.WithContext(ctx).Model(&EventRecord{}).Where("severity = ?", severity).Count(&count)

	if int(count) > keepCount {
		// 第 keepCount+1 新的记录是第一条要删除的
		var cutoffID int64
		g.db.WithContext(ctx).Model(&EventRecord{}).
			Where("severity = ?", severity).
			Order("created_at DESC").
			Limit(1).
			Offset(keepCount).
			Pluck("id", &cutoffID)

		if cutoffID > 0 {
			if err := g.db.WithContext(ctx).
				Where("severity = ? AND id <= ?", severity, cutoffID).
				Delete(&EventRecord{}).Error; err != nil {
				return err
			}
		}
	}

	return nil
}

// Ping 健康检查
func (g *GormDatabase) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭连接
func (g *GormDatabase) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
