package rebalance

import (
	"reflect"
	"testing"
	"time"

	"bondrotor/broker"
	"bondrotor/source"
)

func limitRule() *AllocationRule {
	return &AllocationRule{
		Mode:       FixedAmount,
		Amount:     10000,
		OrderStyle: broker.OrderStyleLimit,
	}
}

func snapWith(cash float64, positions ...*broker.Position) *Snapshot {
	snap := &Snapshot{
		Positions: positions,
		Cash:      cash,
		AllHeld:   make(map[string]bool),
		Suspended: make(map[string]bool),
		TakenAt:   time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
	for _, p := range positions {
		snap.AllHeld[p.InstrumentID] = true
	}
	return snap
}

func TestPlanLiquidateAll(t *testing.T) {
	// 持有但目标为空 → 全量卖出
	snap := snapWith(0, &broker.Position{InstrumentID: "123045", Quantity: 10})
	plan := Plan(snap, nil, limitRule())

	if len(plan.Sells) != 1 || plan.Sells[0].InstrumentID != "123045" || plan.Sells[0].Quantity != 10 {
		t.Fatalf("期望全量卖出 123045 x10，实际 %+v", plan.Sells)
	}
	if len(plan.Buys) != 0 {
		t.Errorf("不应有买入指令")
	}
	t.Log("✅ 空目标时清仓全部持仓")
}

func TestPlanBuyOnly(t *testing.T) {
	// 空仓 + 固定金额 → 按配置金额买入
	snap := snapWith(100000)
	target := []*source.TargetEntry{{InstrumentID: "113050"}}
	plan := Plan(snap, target, limitRule())

	if len(plan.Buys) != 1 || plan.Buys[0].InstrumentID != "113050" || plan.Buys[0].Notional != 10000 {
		t.Fatalf("期望买入 113050 金额 10000，实际 %+v", plan.Buys)
	}
	if len(plan.Sells) != 0 {
		t.Errorf("不应有卖出指令")
	}
	t.Log("✅ 固定金额买入计划正确")
}

func TestPlanHoldUntouched(t *testing.T) {
	// 持有且在目标中 → 不买不卖
	snap := snapWith(0, &broker.Position{InstrumentID: "123045", Quantity: 10})
	target := []*source.TargetEntry{{InstrumentID: "123045"}}
	plan := Plan(snap, target, limitRule())

	if !plan.Empty() {
		t.Fatalf("持有且在目标中的标的不应产生指令: %+v", plan)
	}
	t.Log("✅ 持有的目标标的保持不动")
}

func TestPlanSuspendedSkipped(t *testing.T) {
	// 停牌持仓不强制卖出，记入 Skipped
	snap := snapWith(0, &broker.Position{InstrumentID: "127001", Quantity: 5})
	snap.Suspended["127001"] = true
	plan := Plan(snap, nil, limitRule())

	if len(plan.Sells) != 0 || len(plan.Buys) != 0 {
		t.Fatalf("停牌标的不应产生交易指令: %+v", plan)
	}
	if len(plan.Skipped) != 1 || plan.Skipped[0].InstrumentID != "127001" || plan.Skipped[0].Reason != KindSuspended {
		t.Fatalf("停牌标的应记入 Skipped: %+v", plan.Skipped)
	}
	t.Log("✅ 停牌持仓被跳过而非强制卖出")
}

func TestPlanEmptyBoth(t *testing.T) {
	plan := Plan(snapWith(0), nil, limitRule())
	if !plan.Empty() || len(plan.Skipped) != 0 {
		t.Fatalf("空仓空目标应产生空计划: %+v", plan)
	}
	t.Log("✅ 空仓空目标产生空计划")
}

func TestPlanBalanceShare(t *testing.T) {
	// 可用资金在整个计划中只计算一次，按买入数量均分
	snap := snapWith(30000)
	target := []*source.TargetEntry{
		{InstrumentID: "113050"},
		{InstrumentID: "123045"},
		{InstrumentID: "127007"},
	}
	rule := &AllocationRule{Mode: BalanceShare, OrderStyle: broker.OrderStyleLimit}
	plan := Plan(snap, target, rule)

	if len(plan.Buys) != 3 {
		t.Fatalf("期望 3 条买入，实际 %d", len(plan.Buys))
	}
	for _, buy := range plan.Buys {
		if buy.Notional != 10000 {
			t.Errorf("%s 的买入金额应为 10000，实际 %.2f", buy.InstrumentID, buy.Notional)
		}
	}
	t.Log("✅ 均分模式资金在计划内统一计算")
}

func TestPlanDeterministic(t *testing.T) {
	snap := snapWith(50000,
		&broker.Position{InstrumentID: "128100", Quantity: 20},
		&broker.Position{InstrumentID: "110081", Quantity: 10},
	)
	target := []*source.TargetEntry{
		{InstrumentID: "123045"},
		{InstrumentID: "113050"},
	}
	rule := &AllocationRule{Mode: BalanceShare, OrderStyle: broker.OrderStyleLimit}

	p1 := Plan(snap, target, rule)
	p2 := Plan(snap, target, rule)
	if !reflect.DeepEqual(p1, p2) {
		t.Fatalf("相同输入应产生完全相同的计划:\n%+v\n%+v", p1, p2)
	}

	// 输出有序，与输入顺序无关
	if p1.Sells[0].InstrumentID != "110081" || p1.Sells[1].InstrumentID != "128100" {
		t.Errorf("卖出指令应按代码排序: %+v", p1.Sells)
	}
	if p1.Buys[0].InstrumentID != "113050" || p1.Buys[1].InstrumentID != "123045" {
		t.Errorf("买入指令应按代码排序: %+v", p1.Buys)
	}
	t.Log("✅ 计划生成是确定性的")
}

func TestPlanNoOverlap(t *testing.T) {
	snap := snapWith(50000,
		&broker.Position{InstrumentID: "110081", Quantity: 10},
		&broker.Position{InstrumentID: "123045", Quantity: 20},
	)
	target := []*source.TargetEntry{
		{InstrumentID: "123045"},
		{InstrumentID: "113050"},
	}
	plan := Plan(snap, target, limitRule())

	sellSet := make(map[string]bool)
	for _, s := range plan.Sells {
		sellSet[s.InstrumentID] = true
	}
	for _, b := range plan.Buys {
		if sellSet[b.InstrumentID] {
			t.Fatalf("%s 同时出现在买卖两侧", b.InstrumentID)
		}
	}

	// 卖出 + 买入 + 不动 应恰好覆盖 持仓 ∪ 目标
	touched := make(map[string]bool)
	for _, s := range plan.Sells {
		touched[s.InstrumentID] = true
	}
	for _, b := range plan.Buys {
		touched[b.InstrumentID] = true
	}
	if !touched["110081"] || !touched["113050"] || touched["123045"] {
		t.Fatalf("指令集合不符合预期: %+v", touched)
	}
	t.Log("✅ 买卖集合不重叠且覆盖正确")
}

func TestPlanManualHoldingNotRebought(t *testing.T) {
	// 人工持有的目标标的不重复买入，但也不会被卖出
	snap := snapWith(50000)
	snap.AllHeld["113050"] = true // 人工持仓，不在托管列表
	target := []*source.TargetEntry{
		{InstrumentID: "113050"},
		{InstrumentID: "123045"},
	}
	plan := Plan(snap, target, limitRule())

	if len(plan.Buys) != 1 || plan.Buys[0].InstrumentID != "123045" {
		t.Fatalf("人工已持有的目标不应重复买入: %+v", plan.Buys)
	}
	if len(plan.Sells) != 0 {
		t.Errorf("人工持仓不应被卖出")
	}
	t.Log("✅ 人工持仓不参与调仓")
}
