package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bondrotor/config"
	"bondrotor/logger"
	"bondrotor/utils"
)

// Storage 监控数据存储接口
type Storage interface {
	SaveSystemMetrics(m *SystemMetrics) error
	QuerySystemMetrics(startTime, endTime time.Time) ([]*SystemMetrics, error)
	GetLatestSystemMetrics() (*SystemMetrics, error)
	AggregateDaily(date time.Time) (*DailySystemMetrics, error)
	QueryDailySystemMetrics(days int) ([]*DailySystemMetrics, error)
	CleanupSystemMetrics(beforeTime time.Time) error
	CleanupDailySystemMetrics(beforeDate time.Time) error
	Vacuum() error
	Close() error
}

// storageEvent 待落库的采样事件
type storageEvent struct {
	eventType string
	data      *SystemMetrics
}

// StorageService 异步缓冲写入的监控数据存储服务
type StorageService struct {
	storage      Storage
	logs         *LogStorage
	cfg          *config.Config
	eventCh      chan *storageEvent
	buffer       []*storageEvent
	mu           sync.Mutex
	ctx          context.Context
	cancel       context.CancelFunc
	fallbackPath string
	stopped      bool
	stopMu       sync.Mutex
}

// NewStorageService 创建存储服务
func NewStorageService(ctx context.Context, cfg *config.Config) (*StorageService, error) {
	if !cfg.Storage.Enabled {
		return &StorageService{}, nil
	}

	ctx, cancel := context.WithCancel(ctx)

	ss := &StorageService{
		cfg:          cfg,
		eventCh:      make(chan *storageEvent, cfg.Storage.BufferSize),
		buffer:       make([]*storageEvent, 0, cfg.Storage.BatchSize),
		ctx:          ctx,
		cancel:       cancel,
		fallbackPath: "./data/storage_fallback.log",
	}

	dataDir := filepath.Dir(cfg.Storage.Path)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		cancel()
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	switch cfg.Storage.Type {
	case "sqlite":
		sqliteStorage, err := NewSQLiteStorage(cfg.Storage.Path)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("初始化 SQLite 存储失败: %w", err)
		}
		ss.storage = sqliteStorage
	default:
		cancel()
		return nil, fmt.Errorf("不支持的存储类型: %s", cfg.Storage.Type)
	}

	// 应用日志与监控数据共用数据目录，各自独立的 SQLite 文件
	logPath := filepath.Join(dataDir, "app_logs.db")
	logs, err := NewLogStorage(logPath)
	if err != nil {
		logger.Warn("⚠️ 初始化日志存储失败，日志仅输出到控制台: %v", err)
	} else {
		ss.logs = logs
	}

	return ss, nil
}

// GetStorage 获取底层监控存储（供 Web 查询接口直接使用）
func (ss *StorageService) GetStorage() Storage {
	return ss.storage
}

// GetLogStorage 获取日志存储（供 Web 日志接口与实时推送使用）
func (ss *StorageService) GetLogStorage() *LogStorage {
	return ss.logs
}

// Start 启动存储服务
func (ss *StorageService) Start() {
	if ss.storage == nil {
		return
	}

	if ss.logs != nil {
		// 把全局日志挂到异步日志存储上
		logger.InitLogStorage(ss.logs.WriteLog)
	}

	go ss.processEvents()
	logger.Info("✅ 存储服务已启动 (类型: %s, 路径: %s)", ss.cfg.Storage.Type, ss.cfg.Storage.Path)
}

// Stop 停止存储服务
func (ss *StorageService) Stop() {
	ss.stopMu.Lock()
	if ss.stopped {
		ss.stopMu.Unlock()
		return
	}
	ss.stopped = true
	ss.stopMu.Unlock()

	if ss.cancel != nil {
		ss.cancel()
	}

	// 等 processEvents 协程处理完队列中的事件
	time.Sleep(100 * time.Millisecond)
	ss.flush()

	if ss.logs != nil {
		ss.logs.Close()
	}
	if ss.storage != nil {
		ss.storage.Close()
	}
}

// SaveMetrics 保存一次采样（异步，不阻塞调用方）
func (ss *StorageService) SaveMetrics(m *SystemMetrics) {
	if ss.storage == nil || m == nil {
		return
	}

	ss.stopMu.Lock()
	stopped := ss.stopped
	ss.stopMu.Unlock()
	if stopped {
		return
	}

	select {
	case ss.eventCh <- &storageEvent{eventType: "system_metrics", data: m}:
	default:
		logger.Warn("⚠️ 存储队列已满，丢弃监控采样")
	}
}

// processEvents 后台批量落库
func (ss *StorageService) processEvents() {
	flushInterval := time.Duration(ss.cfg.Storage.FlushInterval) * time.Second
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ss.ctx.Done():
			ss.flush()
			return

		case event := <-ss.eventCh:
			ss.mu.Lock()
			ss.buffer = append(ss.buffer, event)
			bufferSize := len(ss.buffer)
			ss.mu.Unlock()

			if bufferSize >= ss.cfg.Storage.BatchSize {
				ss.flush()
			}

		case <-ticker.C:
			ss.flush()
		}
	}
}

// flush 刷新缓冲区到数据库
func (ss *StorageService) flush() {
	ss.mu.Lock()
	if len(ss.buffer) == 0 {
		ss.mu.Unlock()
		return
	}

	events := make([]*storageEvent, len(ss.buffer))
	copy(events, ss.buffer)
	ss.buffer = ss.buffer[:0]
	ss.mu.Unlock()

	if err := ss.batchSave(events); err != nil {
		logger.Error("❌ 监控数据写入失败: %v", err)
		ss.fallbackToLog(events)
	}
}

func (ss *StorageService) batchSave(events []*storageEvent) error {
	if ss.storage == nil {
		return fmt.Errorf("存储服务未初始化")
	}

	for _, event := range events {
		if err := ss.storage.SaveSystemMetrics(event.data); err != nil {
			return fmt.Errorf("保存 %s 失败: %w", event.eventType, err)
		}
	}
	return nil
}

// fallbackToLog 数据库不可用时退化为追加写文件
func (ss *StorageService) fallbackToLog(events []*storageEvent) {
	dataDir := filepath.Dir(ss.fallbackPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		logger.Error("❌ 创建日志目录失败: %v", err)
		return
	}

	file, err := os.OpenFile(ss.fallbackPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger.Error("❌ 打开保底日志文件失败: %v", err)
		return
	}
	defer file.Close()

	for _, event := range events {
		data, err := json.Marshal(event.data)
		if err != nil {
			continue
		}
		line := fmt.Sprintf("%s %s %s\n", utils.NowUTC().Format(time.RFC3339), event.eventType, string(data))
		file.WriteString(line)
	}
}
