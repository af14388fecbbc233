package rebalance

import (
	"context"
	"sync"
	"time"

	"bondrotor/broker"
	"bondrotor/source"
	"bondrotor/utils"
)

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// tradingTime 返回一个交易时段内的基准时间（周二上午）
func tradingTime() time.Time {
	return time.Date(2026, 9, 1, 10, 0, 0, 0, utils.GlobalLocation)
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSleeper 不真正休眠，把等待时长直接推进到假时钟上
type fakeSleeper struct {
	clock *fakeClock
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.clock.Advance(d)
	return nil
}

// fakeSource 返回预置目标列表的策略源
type fakeSource struct {
	targets []*source.TargetEntry
	err     error
}

func (f *fakeSource) GetTargetList(ctx context.Context, strategyID int, asOfDate string) ([]*source.TargetEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.targets, nil
}

func (f *fakeSource) GetStrategies(ctx context.Context) ([]*source.StrategyInfo, error) {
	return nil, nil
}

func (f *fakeSource) GetHistories(ctx context.Context, strategyID int) ([]*source.BacktestHistory, error) {
	return nil, nil
}

// newTestExecutor 基于模拟网关的执行器，不落库
func newTestExecutor(gw broker.Gateway, clock *fakeClock) *Executor {
	return NewExecutor(gw, nil, nil, &ExecutorConfig{
		PollInterval:  2 * time.Second,
		OrderTimeout:  60 * time.Second,
		MarketPadding: 0.01,
	}, clock, &fakeSleeper{clock: clock})
}

// targetList 构造只含代码的目标列表
func targetList(ids ...string) []*source.TargetEntry {
	targets := make([]*source.TargetEntry, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, &source.TargetEntry{InstrumentID: id})
	}
	return targets
}

func floatPtr(v float64) *float64 { return &v }
