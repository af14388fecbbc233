package rebalance

import (
	"context"
	"time"

	"bondrotor/broker"
)

// RunState 调仓周期状态
type RunState string

const (
	StateIdle            RunState = "IDLE"
	StateResolvingTarget RunState = "RESOLVING_TARGET"
	StateSnapshotting    RunState = "SNAPSHOTTING"
	StatePlanning        RunState = "PLANNING"
	StateExecuting       RunState = "EXECUTING"
	StateDone            RunState = "DONE"
	StateFailed          RunState = "FAILED"
)

// AllocationMode 买入金额分配方式
type AllocationMode string

const (
	// FixedAmount 每只固定金额
	FixedAmount AllocationMode = "fixed_amount"
	// BalanceShare 可用资金按买入数量均分
	BalanceShare AllocationMode = "balance_share"
)

// AllocationRule 买入分配规则
type AllocationRule struct {
	Mode AllocationMode
	// FixedAmount 模式下每只的买入金额
	Amount float64
	// 生成指令时透传的报价方式
	OrderStyle broker.OrderStyle
	// 资金不足时的处理策略，目前仅支持 reject（单笔拒绝，不影响其余指令）
	InsufficientCashPolicy string
}

// Snapshot 持仓快照
// 每个周期生成一份新的不可变快照，生成后不再修改
type Snapshot struct {
	// 纳入调仓管理的持仓（有买入记录的标的）
	Positions []*broker.Position
	Cash      float64
	// 账户全部持仓的标的集合，含人工持仓，用于买入去重
	AllHeld map[string]bool
	// 快照时各持仓的停牌状态，规划阶段不再访问网关
	Suspended map[string]bool
	TakenAt   time.Time
}

// PlanItem 单条调仓指令
type PlanItem struct {
	InstrumentID string
	Name         string
	Side         broker.Side
	Style        broker.OrderStyle
	// 卖出数量（卖出指令使用）
	Quantity int64
	// 买入金额（买入指令使用，执行时按现价换算为数量）
	Notional float64
}

// SkipEntry 被跳过的标的及原因
type SkipEntry struct {
	InstrumentID string
	Reason       ErrorKind
}

// RebalancePlan 调仓计划
// 同一标的不会同时出现在卖出和买入中
type RebalancePlan struct {
	Sells   []*PlanItem
	Buys    []*PlanItem
	Skipped []*SkipEntry
}

// Empty 计划是否为空（无任何交易指令）
func (p *RebalancePlan) Empty() bool {
	return len(p.Sells) == 0 && len(p.Buys) == 0
}

// OrderResult 单条指令的执行结果
type OrderResult struct {
	Order *broker.Order
	// 非空表示该指令的失败分类
	ErrKind ErrorKind
	Message string
}

// RunSummary 一次调仓或监控触发的完整结果
// 产出后不可变，交给事件中心与通知服务消费
type RunSummary struct {
	RunID      string
	Trigger    string // schedule, manual, monitor, refill
	State      RunState
	Plan       *RebalancePlan
	Orders     []*OrderResult
	Errors     []*RunError
	Skipped    []*SkipEntry
	StartedAt  time.Time
	FinishedAt time.Time
}

// FilledCount 统计完全成交的指令数
func (s *RunSummary) FilledCount() int {
	n := 0
	for _, r := range s.Orders {
		if r.Order != nil && r.Order.Status == broker.OrderStatusFilled {
			n++
		}
	}
	return n
}

// FailedCount 统计失败的指令数
func (s *RunSummary) FailedCount() int {
	n := 0
	for _, r := range s.Orders {
		if r.ErrKind != "" {
			n++
		}
	}
	return n
}

// Clock 时钟抽象，测试中可注入假时钟
type Clock interface {
	Now() time.Time
}

// Sleeper 休眠抽象，轮询间隔可在测试中瞬时返回
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock 系统时钟
func RealClock() Clock { return realClock{} }

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RealSleeper 真实休眠
func RealSleeper() Sleeper { return realSleeper{} }
