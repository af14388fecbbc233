package database

import (
	"context"
	"time"
)

// Database 数据库接口
type Database interface {
	// 持仓记录：只卖出系统买入的持仓
	SavePositionRecord(ctx context.Context, record *PositionRecord) error
	GetPositionRecord(ctx context.Context, instrumentID string) (*PositionRecord, error)
	GetPositionRecords(ctx context.Context) ([]*PositionRecord, error)
	DeletePositionRecord(ctx context.Context, instrumentID string) error

	// 补仓队列
	EnqueueRefill(ctx context.Context, item *RefillItem) error
	GetPendingRefills(ctx context.Context, date string) ([]*RefillItem, error)
	MarkRefillDone(ctx context.Context, id int64) error

	// 委托审计记录
	SaveOrderRecord(ctx context.Context, order *OrderRecord) error
	GetOrderRecords(ctx context.Context, filter *OrderFilter) ([]*OrderRecord, error)

	// 调仓执行历史
	SaveRunRecord(ctx context.Context, run *RunRecord) error
	GetRunRecords(ctx context.Context, filter *RunFilter) ([]*RunRecord, error)
	GetRunByID(ctx context.Context, runID string) (*RunRecord, error)

	// 事件记录
	SaveEvent(ctx context.Context, event *EventRecord) error
	GetEvents(ctx context.Context, filter *EventFilter) ([]*EventRecord, error)
	GetEventStats(ctx context.Context) (*EventStats, error)
	CleanupOldEvents(ctx context.Context, severity string, keepCount int, keepDays int) error

	// 健康检查
	Ping(ctx context.Context) error

	// 关闭连接
	Close() error
}

// 数据模型

// PositionRecord 系统买入的持仓记录
// 调仓卖出时只处理此表中存在的标的，人工持仓不受影响
type PositionRecord struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	InstrumentID string    `gorm:"uniqueIndex;size:20" json:"instrument_id"`
	Name         string    `gorm:"size:50" json:"name"`
	Quantity     int64     `json:"quantity"`
	BuyPrice     float64   `json:"buy_price"`
	BuyTime      time.Time `json:"buy_time"`
	StrategyName string    `gorm:"size:100" json:"strategy_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RefillItem 补仓队列条目
// 卖出腾出资金后在截止时间前买回当日目标
type RefillItem struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Date         string    `gorm:"index:idx_refill_date_done;size:10" json:"date"`
	InstrumentID string    `gorm:"size:20" json:"instrument_id"`
	Name         string    `gorm:"size:50" json:"name"`
	SellPrice    float64   `json:"sell_price"`
	Reason       string    `gorm:"size:50" json:"reason"` // stop_loss, take_profit
	Done         bool      `gorm:"index:idx_refill_date_done" json:"done"`
	CreatedAt    time.Time `json:"created_at"`
}

// OrderRecord 委托审计记录
type OrderRecord struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID        string    `gorm:"index;size:40" json:"run_id"`
	OrderID      string    `gorm:"index;size:40" json:"order_id"`
	InstrumentID string    `gorm:"index;size:20" json:"instrument_id"`
	Name         string    `gorm:"size:50" json:"name"`
	Side         string    `gorm:"size:10" json:"side"`  // buy, sell
	Style        string    `gorm:"size:10" json:"style"` // limit, market
	Price        float64   `json:"price"`
	Quantity     int64     `json:"quantity"`
	FilledQty    int64     `json:"filled_qty"`
	AvgPrice     float64   `json:"avg_price"`
	Status       string    `gorm:"index;size:20" json:"status"`
	Reason       string    `gorm:"type:text" json:"reason"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RunRecord 调仓执行历史
type RunRecord struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID      string     `gorm:"uniqueIndex;size:40" json:"run_id"`
	Trigger    string     `gorm:"size:20" json:"trigger"` // schedule, manual, monitor, refill
	State      string     `gorm:"index;size:20" json:"state"`
	SellCount  int        `json:"sell_count"`
	BuyCount   int        `json:"buy_count"`
	FilledQty  int        `json:"filled_count"`
	FailedQty  int        `json:"failed_count"`
	SkipQty    int        `json:"skipped_count"`
	ErrorMsg   string     `gorm:"type:text" json:"error_msg"`
	Detail     string     `gorm:"type:text" json:"detail"` // JSON 序列化的完整结果
	StartedAt  time.Time  `gorm:"index" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

// EventRecord 事件记录
type EventRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Type       string    `gorm:"index;size:50" json:"type"`
	Severity   string    `gorm:"index;size:20" json:"severity"` // info, warning, critical
	Instrument string    `gorm:"index;size:20" json:"instrument"`
	Title      string    `gorm:"size:200" json:"title"`
	Message    string    `gorm:"type:text" json:"message"`
	Details    string    `gorm:"type:text" json:"details"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// EventStats 事件统计
type EventStats struct {
	TotalCount       int            `json:"total_count"`
	CriticalCount    int            `json:"critical_count"`
	WarningCount     int            `json:"warning_count"`
	InfoCount        int            `json:"info_count"`
	Last24HoursCount int            `json:"last_24_hours_count"`
	CountByType      map[string]int `json:"count_by_type"`
}

// 过滤器

// OrderFilter 委托记录过滤器
type OrderFilter struct {
	RunID        string
	InstrumentID string
	Side         string
	Status       string
	StartTime    *time.Time
	EndTime      *time.Time
	Limit        int
	Offset       int
}

// RunFilter 执行历史过滤器
type RunFilter struct {
	Trigger   string
	State     string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// EventFilter 事件记录过滤器
type EventFilter struct {
	Type       string
	Severity   string
	Instrument string
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int
	Offset     int
}
