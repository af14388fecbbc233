package rebalance

import (
	"context"
	"testing"

	"bondrotor/broker"
)

func TestExecutorSellBeforeBuy(t *testing.T) {
	gw := broker.NewSimGateway(100000)
	gw.SetPosition("110081", 20, 100, 102)
	gw.SetQuote("123045", 115.5)
	clock := newFakeClock(tradingTime())
	exec := newTestExecutor(gw, clock)

	snap := snapWith(100000, &broker.Position{InstrumentID: "110081", Quantity: 20, LastPrice: 102})
	plan := Plan(snap, targetList("123045"), limitRule())

	summary := &RunSummary{RunID: "run-test", Trigger: "manual", StartedAt: clock.Now()}
	exec.Execute(context.Background(), summary, plan)

	if len(summary.Orders) != 2 {
		t.Fatalf("期望 2 条委托记录，实际 %d", len(summary.Orders))
	}
	// 所有卖出的提交顺序先于所有买入
	if summary.Orders[0].Order.Side != broker.SideSell {
		t.Errorf("第一条应为卖出: %+v", summary.Orders[0].Order)
	}
	if summary.Orders[1].Order.Side != broker.SideBuy {
		t.Errorf("第二条应为买入: %+v", summary.Orders[1].Order)
	}
	t.Log("✅ 卖出全部先于买入提交")
}

func TestExecutorPartialFailureIsolation(t *testing.T) {
	// 3 条买入中第 2 条被拒，其余 2 条仍到达终态
	gw := broker.NewSimGateway(100000)
	gw.SetQuote("110081", 100)
	gw.SetQuote("113050", 100)
	gw.SetQuote("123045", 100)
	gw.SetReject("113050", "标的不可交易")
	clock := newFakeClock(tradingTime())
	exec := newTestExecutor(gw, clock)

	plan := Plan(snapWith(100000), targetList("110081", "113050", "123045"), limitRule())
	summary := &RunSummary{RunID: "run-test", Trigger: "manual", StartedAt: clock.Now()}
	exec.Execute(context.Background(), summary, plan)

	if len(summary.Orders) != 3 {
		t.Fatalf("三条指令都应出现在结果中，实际 %d", len(summary.Orders))
	}

	filled, rejected := 0, 0
	for _, r := range summary.Orders {
		switch {
		case r.ErrKind == KindBrokerRejected:
			rejected++
			if r.Order.InstrumentID != "113050" {
				t.Errorf("被拒的应是 113050: %+v", r.Order)
			}
		case r.Order.Status == broker.OrderStatusFilled:
			filled++
		}
	}
	if filled != 2 || rejected != 1 {
		t.Fatalf("期望 2 成交 1 拒单，实际成交 %d 拒单 %d", filled, rejected)
	}
	if len(summary.Errors) != 1 || summary.Errors[0].Kind != KindBrokerRejected {
		t.Errorf("错误记录不符: %+v", summary.Errors)
	}
	t.Log("✅ 单笔拒单不影响其余指令")
}

func TestExecutorQuoteFailureRecorded(t *testing.T) {
	// 行情查询失败的指令不进入提交流程，但仍计入结果与错误
	gw := broker.NewSimGateway(100000)
	gw.SetQuote("110081", 100)
	clock := newFakeClock(tradingTime())
	exec := newTestExecutor(gw, clock)

	plan := Plan(snapWith(100000), targetList("110081", "123045"), limitRule())
	summary := &RunSummary{RunID: "run-test", Trigger: "manual", StartedAt: clock.Now()}
	exec.Execute(context.Background(), summary, plan)

	if len(summary.Orders) != 2 {
		t.Fatalf("两条指令都应出现在结果中，实际 %d", len(summary.Orders))
	}
	var failed *OrderResult
	for _, r := range summary.Orders {
		if r.Order.InstrumentID == "123045" {
			failed = r
		}
	}
	if failed == nil || failed.Order.Status != broker.OrderStatusFailed {
		t.Fatalf("无行情的 123045 应记为失败: %+v", failed)
	}
	if failed.ErrKind != KindGatewayError {
		t.Errorf("失败分类应为网关错误，实际 %s", failed.ErrKind)
	}
	if len(summary.Errors) != 1 || summary.Errors[0].InstrumentID != "123045" {
		t.Errorf("错误记录不符: %+v", summary.Errors)
	}
	t.Log("✅ 行情缺失的指令被记录为网关错误且不阻断其余指令")
}

func TestExecutorTimeout(t *testing.T) {
	// 订单迟迟不到终态 → 超时记录 TIMEOUT，继续下一条，不自动重试
	gw := broker.NewSimGateway(100000)
	gw.SetQuote("110081", 100)
	gw.SetQuote("123045", 100)
	gw.FillDelayPolls = 1000
	clock := newFakeClock(tradingTime())
	exec := newTestExecutor(gw, clock)

	plan := Plan(snapWith(100000), targetList("110081", "123045"), limitRule())
	summary := &RunSummary{RunID: "run-test", Trigger: "manual", StartedAt: clock.Now()}
	exec.Execute(context.Background(), summary, plan)

	if len(summary.Orders) != 2 {
		t.Fatalf("超时后仍应继续执行剩余指令，实际 %d 条", len(summary.Orders))
	}
	for _, r := range summary.Orders {
		if r.ErrKind != KindTimeout {
			t.Errorf("期望 TIMEOUT，实际 %s", r.ErrKind)
		}
		// 保持最后观测到的状态，不撤单不重试
		if r.Order != nil && r.Order.Status.IsTerminal() {
			t.Errorf("超时订单不应被推进到终态: %+v", r.Order)
		}
	}
	t.Log("✅ 超时订单被隔离记录且不重试")
}

func TestExecutorPartialFillAccepted(t *testing.T) {
	// 部分成交在超时窗口后按本周期终态接受，剩余不重新提交
	gw := broker.NewSimGateway(100000)
	gw.SetQuote("110081", 100)
	gw.SetPartialFill("110081", 40)
	clock := newFakeClock(tradingTime())
	exec := newTestExecutor(gw, clock)

	plan := Plan(snapWith(10000), targetList("110081"), limitRule())
	summary := &RunSummary{RunID: "run-test", Trigger: "manual", StartedAt: clock.Now()}
	exec.Execute(context.Background(), summary, plan)

	if len(summary.Orders) != 1 {
		t.Fatalf("部分成交不应触发重新提交，实际 %d 条", len(summary.Orders))
	}
	r := summary.Orders[0]
	if r.ErrKind != "" {
		t.Errorf("部分成交不是错误: %s", r.ErrKind)
	}
	if r.Order.Status != broker.OrderStatusPartial || r.Order.FilledQty != 40 {
		t.Errorf("部分成交状态不符: %+v", r.Order)
	}
	t.Log("✅ 部分成交作为本周期终态接受")
}

func TestExecutorInsufficientCash(t *testing.T) {
	// 金额不足一手 → 单笔拒绝，不提交委托
	gw := broker.NewSimGateway(500)
	gw.SetQuote("110081", 100)
	clock := newFakeClock(tradingTime())
	exec := newTestExecutor(gw, clock)

	plan := Plan(snapWith(500), targetList("110081"),
		&AllocationRule{Mode: BalanceShare, OrderStyle: broker.OrderStyleLimit})
	summary := &RunSummary{RunID: "run-test", Trigger: "manual", StartedAt: clock.Now()}
	exec.Execute(context.Background(), summary, plan)

	if len(summary.Orders) != 1 || summary.Orders[0].ErrKind != KindBrokerRejected {
		t.Fatalf("资金不足应记录单笔拒绝: %+v", summary.Orders)
	}
	t.Log("✅ 资金不足一手时单笔拒绝")
}

func TestExecutorMarketPadding(t *testing.T) {
	gw := broker.NewSimGateway(100000)
	gw.SetQuote("110081", 100)
	clock := newFakeClock(tradingTime())
	exec := newTestExecutor(gw, clock)

	buy := &PlanItem{InstrumentID: "110081", Side: broker.SideBuy, Style: broker.OrderStyleMarket, Notional: 10000}
	req, err := exec.buildRequest(context.Background(), buy)
	if err != nil {
		t.Fatalf("构造买入请求失败: %v", err)
	}
	if req.Price != 101 {
		t.Errorf("市价买入应上浮护价: 期望 101 实际 %.3f", req.Price)
	}

	sell := &PlanItem{InstrumentID: "110081", Side: broker.SideSell, Style: broker.OrderStyleMarket, Quantity: 10}
	req, err = exec.buildRequest(context.Background(), sell)
	if err != nil {
		t.Fatalf("构造卖出请求失败: %v", err)
	}
	if req.Price != 99 {
		t.Errorf("市价卖出应下压护价: 期望 99 实际 %.3f", req.Price)
	}
	t.Log("✅ 市价单折算为护价限价单")
}

func TestLotSize(t *testing.T) {
	cases := []struct {
		notional, price float64
		want            int64
	}{
		{10000, 100, 100},  // 恰好整手
		{10000, 115.5, 80}, // 向下对齐到 10 的倍数
		{1100, 100, 10},    // 刚好一手
		{900, 100, 0},      // 不足一手
		{10000, 0, 0},      // 异常价格
	}
	for _, c := range cases {
		if got := LotSize(c.notional, c.price); got != c.want {
			t.Errorf("LotSize(%.2f, %.2f) = %d, 期望 %d", c.notional, c.price, got, c.want)
		}
	}
	t.Log("✅ 手数换算正确")
}
