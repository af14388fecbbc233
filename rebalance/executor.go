package rebalance

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"bondrotor/broker"
	"bondrotor/database"
	"bondrotor/event"
	"bondrotor/logger"
	"bondrotor/metrics"
)

// ExecutorConfig 执行器配置
type ExecutorConfig struct {
	// 订单状态轮询间隔
	PollInterval time.Duration
	// 单笔委托等待终态的时间上限
	OrderTimeout time.Duration
	// 每秒委托提交上限
	RateLimit float64
	RateBurst int
	// 市价单折算为限价单时的护价比例（买入上浮，卖出下压）
	MarketPadding float64
	// 买入成功后记入买入记录的策略名
	StrategyName string
}

// Executor 订单执行器
// 同一账户同一时刻只允许一个执行器运行，互斥由调用方持锁保证
type Executor struct {
	gateway broker.Gateway
	db      database.Database
	events  *event.EventBus
	limiter *rate.Limiter
	clock   Clock
	sleeper Sleeper
	config  *ExecutorConfig
}

// NewExecutor 创建订单执行器
func NewExecutor(gateway broker.Gateway, db database.Database, events *event.EventBus, config *ExecutorConfig, clock Clock, sleeper Sleeper) *Executor {
	if clock == nil {
		clock = RealClock()
	}
	if sleeper == nil {
		sleeper = RealSleeper()
	}
	limit := rate.Limit(config.RateLimit)
	if config.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := config.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Executor{
		gateway: gateway,
		db:      db,
		events:  events,
		limiter: rate.NewLimiter(limit, burst),
		clock:   clock,
		sleeper: sleeper,
		config:  config,
	}
}

// Execute 执行调仓计划，先卖后买
//
// 卖出先行腾出资金，买入才不会因余额不足失败。单条指令的失败
// （拒单、超时、停牌）只影响自身，剩余指令继续执行；超时的委托
// 保持最后观测到的状态，不做自动重试。
func (e *Executor) Execute(ctx context.Context, summary *RunSummary, plan *RebalancePlan) {
	summary.Plan = plan
	summary.Skipped = append(summary.Skipped, plan.Skipped...)
	for _, skip := range plan.Skipped {
		e.publish(event.EventTypeSuspended, map[string]interface{}{
			"instrument": skip.InstrumentID,
		})
	}

	for _, item := range plan.Sells {
		e.executeItem(ctx, summary, item)
	}
	for _, item := range plan.Buys {
		e.executeItem(ctx, summary, item)
	}
}

// executeItem 提交单条指令并等待终态
func (e *Executor) executeItem(ctx context.Context, summary *RunSummary, item *PlanItem) {
	req, err := e.buildRequest(ctx, item)
	if err != nil {
		e.recordFailure(summary, item, err)
		return
	}

	if err := e.limiter.Wait(ctx); err != nil {
		e.recordFailure(summary, item, NewRunError(KindGatewayError, item.InstrumentID, "等待限流中断: %v", err))
		return
	}

	submitted := e.clock.Now()
	orderID, err := e.gateway.PlaceOrder(ctx, req)
	if err != nil {
		e.recordFailure(summary, item, NewRunError(KindBrokerRejected, item.InstrumentID, "委托提交失败: %v", err))
		e.publish(event.EventTypeOrderRejected, map[string]interface{}{
			"instrument": item.InstrumentID,
			"name":       item.Name,
			"side":       string(item.Side),
			"reason":     err.Error(),
		})
		return
	}

	logger.Info("📤 已提交委托 %s: %s %s x%d @%.3f", orderID, item.Side, item.InstrumentID, req.Quantity, req.Price)
	e.publish(event.EventTypeOrderPlaced, map[string]interface{}{
		"instrument": item.InstrumentID,
		"name":       item.Name,
		"side":       string(item.Side),
		"quantity":   req.Quantity,
		"price":      req.Price,
	})

	order, errKind, message := e.awaitTerminal(ctx, orderID)
	result := &OrderResult{Order: order, ErrKind: errKind, Message: message}
	summary.Orders = append(summary.Orders, result)

	pm := metrics.GetPrometheusMetrics()
	if order != nil {
		pm.RecordOrder(string(item.Side), string(order.Status), e.clock.Now().Sub(submitted))
	}
	if errKind != "" {
		pm.RecordOrderFailure(string(item.Side), string(errKind))
	}

	switch errKind {
	case KindTimeout:
		summary.Errors = append(summary.Errors, NewRunError(KindTimeout, item.InstrumentID, "%s", message))
		e.publish(event.EventTypeOrderTimeout, map[string]interface{}{
			"instrument": item.InstrumentID,
			"name":       item.Name,
			"side":       string(item.Side),
		})
	case KindBrokerRejected:
		summary.Errors = append(summary.Errors, NewRunError(KindBrokerRejected, item.InstrumentID, "%s", message))
		e.publish(event.EventTypeOrderRejected, map[string]interface{}{
			"instrument": item.InstrumentID,
			"name":       item.Name,
			"side":       string(item.Side),
			"reason":     message,
		})
	case "":
		logger.Info("✅ 委托 %s 终态 %s，成交 %d @%.3f", orderID, order.Status, order.FilledQty, order.AvgPrice)
		if order.FilledQty > 0 {
			e.publish(event.EventTypeOrderFilled, map[string]interface{}{
				"instrument": item.InstrumentID,
				"name":       item.Name,
				"side":       string(item.Side),
				"quantity":   order.FilledQty,
				"price":      order.AvgPrice,
			})
		}
	}

	if order != nil {
		e.persistOrder(ctx, summary.RunID, item, req, order, errKind, message)
		if order.FilledQty > 0 {
			e.updatePositionRecord(ctx, item, order)
		}
	}
}

// buildRequest 将计划指令换算为具体委托
func (e *Executor) buildRequest(ctx context.Context, item *PlanItem) (*broker.OrderRequest, error) {
	quote, err := e.gateway.GetQuote(ctx, item.InstrumentID)
	if err != nil {
		return nil, NewRunError(KindGatewayError, item.InstrumentID, "查询行情失败: %v", err)
	}

	price := quote.LastPrice
	if item.Style == broker.OrderStyleMarket {
		// 市价以现价加护价折算为限价，保证成交又不穿越涨跌停
		if item.Side == broker.SideBuy {
			price = quote.LastPrice * (1 + e.config.MarketPadding)
		} else {
			price = quote.LastPrice * (1 - e.config.MarketPadding)
		}
	}

	quantity := item.Quantity
	if item.Side == broker.SideBuy {
		quantity = LotSize(item.Notional, price)
		if quantity <= 0 {
			return nil, NewRunError(KindBrokerRejected, item.InstrumentID,
				"可用资金 %.2f 不足一手（现价 %.3f），放弃该笔买入", item.Notional, price)
		}
	}

	return &broker.OrderRequest{
		InstrumentID: item.InstrumentID,
		Side:         item.Side,
		Style:        item.Style,
		Quantity:     quantity,
		Price:        price,
	}, nil
}

// awaitTerminal 轮询订单状态直到终态或超时
func (e *Executor) awaitTerminal(ctx context.Context, orderID string) (*broker.Order, ErrorKind, string) {
	deadline := e.clock.Now().Add(e.config.OrderTimeout)
	var last *broker.Order

	for {
		order, err := e.gateway.GetOrderStatus(ctx, orderID)
		if err != nil {
			logger.Warn("⚠️ 查询委托 %s 状态失败: %v", orderID, err)
		} else {
			last = order
			if order.Status.IsTerminal() {
				if order.Status == broker.OrderStatusRejected || order.Status == broker.OrderStatusFailed {
					return order, KindBrokerRejected, order.Reason
				}
				// 部分成交在超时窗口后作为本周期终态接受，剩余部分不重新提交
				return order, "", ""
			}
			if order.Status == broker.OrderStatusPartial && e.clock.Now().After(deadline) {
				return order, "", ""
			}
		}

		if e.clock.Now().After(deadline) {
			return last, KindTimeout, "委托 " + orderID + " 超时未到终态"
		}
		if err := e.sleeper.Sleep(ctx, e.config.PollInterval); err != nil {
			return last, KindTimeout, "等待被中断: " + err.Error()
		}
	}
}

// persistOrder 写入委托审计记录
func (e *Executor) persistOrder(ctx context.Context, runID string, item *PlanItem, req *broker.OrderRequest, order *broker.Order, errKind ErrorKind, message string) {
	if e.db == nil {
		return
	}
	reason := order.Reason
	if reason == "" {
		reason = message
	}
	record := &database.OrderRecord{
		RunID:        runID,
		OrderID:      order.OrderID,
		InstrumentID: item.InstrumentID,
		Name:         item.Name,
		Side:         string(item.Side),
		Style:        string(item.Style),
		Price:        req.Price,
		Quantity:     order.Quantity,
		FilledQty:    order.FilledQty,
		AvgPrice:     order.AvgPrice,
		Status:       string(order.Status),
		Reason:       reason,
		CreatedAt:    e.clock.Now(),
		UpdatedAt:    e.clock.Now(),
	}
	if err := e.db.SaveOrderRecord(ctx, record); err != nil {
		logger.Error("❌ 写入委托记录失败: %v", err)
	}
}

// updatePositionRecord 根据成交更新买入记录
// 买入成交登记为系统持仓，卖出全部成交后摘除记录
func (e *Executor) updatePositionRecord(ctx context.Context, item *PlanItem, order *broker.Order) {
	if e.db == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if item.Side == broker.SideBuy {
		record := &database.PositionRecord{
			InstrumentID: item.InstrumentID,
			Name:         item.Name,
			Quantity:     order.FilledQty,
			BuyPrice:     order.AvgPrice,
			BuyTime:      e.clock.Now(),
			StrategyName: e.config.StrategyName,
		}
		if err := e.db.SavePositionRecord(ctx, record); err != nil {
			logger.Error("❌ 写入买入记录失败: %v", err)
		}
		return
	}

	if order.FilledQty >= order.Quantity {
		if err := e.db.DeletePositionRecord(ctx, item.InstrumentID); err != nil {
			logger.Error("❌ 删除买入记录失败: %v", err)
		}
		return
	}

	// 部分卖出只扣减记录数量
	existing, err := e.db.GetPositionRecord(ctx, item.InstrumentID)
	if err != nil || existing == nil {
		return
	}
	existing.Quantity -= order.FilledQty
	if existing.Quantity <= 0 {
		e.db.DeletePositionRecord(ctx, item.InstrumentID)
		return
	}
	if err := e.db.SavePositionRecord(ctx, existing); err != nil {
		logger.Error("❌ 更新买入记录失败: %v", err)
	}
}

// recordFailure 记录未进入提交流程的失败
func (e *Executor) recordFailure(summary *RunSummary, item *PlanItem, err error) {
	var runErr *RunError
	if !errors.As(err, &runErr) {
		runErr = NewRunError(Classify(err), item.InstrumentID, "%v", err)
	}
	logger.Warn("⚠️ %s %s 指令失败: %s", item.Side, item.InstrumentID, runErr.Message)
	metrics.GetPrometheusMetrics().RecordOrderFailure(string(item.Side), string(runErr.Kind))
	summary.Orders = append(summary.Orders, &OrderResult{
		Order: &broker.Order{
			InstrumentID: item.InstrumentID,
			Side:         item.Side,
			Style:        item.Style,
			Status:       broker.OrderStatusFailed,
			Quantity:     item.Quantity,
			Reason:       runErr.Message,
		},
		ErrKind: runErr.Kind,
		Message: runErr.Message,
	})
	summary.Errors = append(summary.Errors, runErr)
}

// LotSize 按现价把买入金额换算为手数对齐的数量
// 转债一手 10 张，向下取整，不足一手返回 0
func LotSize(notional, price float64) int64 {
	if price <= 0 || notional <= 0 {
		return 0
	}
	lots := int64(notional / price / 10)
	return lots * 10
}

func (e *Executor) publish(t event.EventType, data map[string]interface{}) {
	if e.events == nil {
		return
	}
	e.events.Publish(&event.Event{
		Type:      t,
		Timestamp: e.clock.Now(),
		Data:      data,
	})
}
