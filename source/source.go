package source

import (
	"context"
	"fmt"
	"time"
)

// TargetEntry 目标持仓条目：策略当日希望持有的一只可转债
// 止盈止损阈值可选，缺省表示该侧不触发（由监控配置兜底）
type TargetEntry struct {
	InstrumentID  string
	Name          string
	TakeProfitPct *float64
	StopLossPct   *float64
}

// StrategyInfo 策略信息
type StrategyInfo struct {
	ID            int       `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	BacktestCount int       `json:"backtest_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// BacktestHistory 回测历史记录
type BacktestHistory struct {
	ID               int        `json:"id"`
	BacktestTime     *time.Time `json:"backtest_time"`
	StrategyReturn   *float64   `json:"strategy_return"`
	WinRate          *float64   `json:"win_rate"`
	AnnualizedReturn *float64   `json:"annualized_return"`
	MaxDrawdown      *float64   `json:"max_drawdown"`
	SharpeRatio      *float64   `json:"sharpe_ratio"`
}

// Source 策略数据源接口
type Source interface {
	// GetTargetList 获取指定策略在指定交易日的目标持仓列表
	GetTargetList(ctx context.Context, strategyID int, asOfDate string) ([]*TargetEntry, error)

	// GetStrategies 获取策略列表（运营接口，只读）
	GetStrategies(ctx context.Context) ([]*StrategyInfo, error)

	// GetHistories 获取策略的回测历史
	GetHistories(ctx context.Context, strategyID int) ([]*BacktestHistory, error)
}

// SourceError 策略数据源不可用
type SourceError struct {
	Op    string
	Cause error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("策略数据源不可用 [%s]: %v", e.Op, e.Cause)
}

func (e *SourceError) Unwrap() error {
	return e.Cause
}

// NewSourceError 包装数据源错误
func NewSourceError(op string, cause error) *SourceError {
	return &SourceError{Op: op, Cause: cause}
}
