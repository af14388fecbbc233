package rebalance

import (
	"sort"

	"bondrotor/broker"
	"bondrotor/source"
)

// Plan 根据持仓快照与目标列表计算调仓计划
//
// 纯函数：相同输入产生逐字节相同的计划，不读时钟、不访问网关，
// 因此同一计划可以安全重试。
//   - 卖出集合：持有但不在目标中的标的，按全部持仓数量卖出；
//     停牌持仓不强制卖出，记入 Skipped
//   - 买入集合：目标中但未持有的标的，金额按分配规则计算；
//     BalanceShare 模式的可用资金在整个计划中只取一次
//   - 同时持有且在目标中的标的不产生任何指令
func Plan(snap *Snapshot, target []*source.TargetEntry, rule *AllocationRule) *RebalancePlan {
	plan := &RebalancePlan{}

	targetSet := make(map[string]bool, len(target))
	for _, entry := range target {
		targetSet[entry.InstrumentID] = true
	}

	// 买入去重同时考虑非托管持仓，避免对人工已持有的目标重复买入
	heldSet := make(map[string]bool, len(snap.Positions)+len(snap.AllHeld))
	for id := range snap.AllHeld {
		heldSet[id] = true
	}
	for _, pos := range snap.Positions {
		heldSet[pos.InstrumentID] = true
		if pos.Quantity <= 0 || targetSet[pos.InstrumentID] {
			continue
		}
		if snap.Suspended[pos.InstrumentID] {
			plan.Skipped = append(plan.Skipped, &SkipEntry{
				InstrumentID: pos.InstrumentID,
				Reason:       KindSuspended,
			})
			continue
		}
		plan.Sells = append(plan.Sells, &PlanItem{
			InstrumentID: pos.InstrumentID,
			Name:         pos.Name,
			Side:         broker.SideSell,
			Style:        rule.OrderStyle,
			Quantity:     pos.Quantity,
		})
	}

	var buyTargets []*source.TargetEntry
	for _, entry := range target {
		if !heldSet[entry.InstrumentID] {
			buyTargets = append(buyTargets, entry)
		}
	}

	if len(buyTargets) > 0 {
		// 每只买入金额在计划内统一计算一次
		notional := rule.Amount
		if rule.Mode == BalanceShare {
			notional = snap.Cash / float64(len(buyTargets))
		}
		for _, entry := range buyTargets {
			plan.Buys = append(plan.Buys, &PlanItem{
				InstrumentID: entry.InstrumentID,
				Name:         entry.Name,
				Side:         broker.SideBuy,
				Style:        rule.OrderStyle,
				Notional:     notional,
			})
		}
	}

	// 排序保证确定性
	sort.Slice(plan.Sells, func(i, j int) bool {
		return plan.Sells[i].InstrumentID < plan.Sells[j].InstrumentID
	})
	sort.Slice(plan.Buys, func(i, j int) bool {
		return plan.Buys[i].InstrumentID < plan.Buys[j].InstrumentID
	})
	sort.Slice(plan.Skipped, func(i, j int) bool {
		return plan.Skipped[i].InstrumentID < plan.Skipped[j].InstrumentID
	})

	return plan
}

// SellPlan 构建只含卖出指令的计划（监控触发与手工清仓使用）
func SellPlan(items []*PlanItem) *RebalancePlan {
	sorted := make([]*PlanItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].InstrumentID < sorted[j].InstrumentID
	})
	return &RebalancePlan{Sells: sorted}
}
