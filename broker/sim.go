package broker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// SimGateway 内存模拟网关，用于测试和空跑模式
// 订单提交后立即进入已报状态，按配置的成交模式推进到终态
type SimGateway struct {
	mu sync.Mutex

	cash      float64
	positions map[string]*Position
	quotes    map[string]float64 // 最新价
	suspended map[string]bool
	rejects   map[string]string // 代码 -> 拒绝原因
	partials  map[string]int64  // 代码 -> 部分成交数量

	nextOrderID int64
	orders      map[string]*Order

	// FillDelayPolls 订单经过多少次状态查询后到达终态（默认0，立即终态）
	FillDelayPolls int
	pollCounts     map[string]int
}

// NewSimGateway 创建模拟网关
func NewSimGateway(cash float64) *SimGateway {
	return &SimGateway{
		cash:        cash,
		positions:   make(map[string]*Position),
		quotes:      make(map[string]float64),
		suspended:   make(map[string]bool),
		rejects:     make(map[string]string),
		partials:    make(map[string]int64),
		orders:      make(map[string]*Order),
		pollCounts:  make(map[string]int),
		nextOrderID: 1000,
	}
}

// SetPosition 预置持仓
func (g *SimGateway) SetPosition(instrumentID string, quantity int64, avgCost, lastPrice float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positions[instrumentID] = &Position{
		InstrumentID: instrumentID,
		Quantity:     quantity,
		Available:    quantity,
		AverageCost:  avgCost,
		LastPrice:    lastPrice,
	}
	g.quotes[instrumentID] = lastPrice
}

// SetQuote 预置行情
func (g *SimGateway) SetQuote(instrumentID string, lastPrice float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quotes[instrumentID] = lastPrice
}

// SetSuspended 预置停牌状态
func (g *SimGateway) SetSuspended(instrumentID string, suspended bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.suspended[instrumentID] = suspended
}

// SetReject 预置拒单行为
func (g *SimGateway) SetReject(instrumentID, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rejects[instrumentID] = reason
}

// SetPartialFill 预置部分成交数量
func (g *SimGateway) SetPartialFill(instrumentID string, filledQty int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.partials[instrumentID] = filledQty
}

// GetName 网关名称
func (g *SimGateway) GetName() string {
	return "SIM"
}

// IsConnected 模拟网关始终在线
func (g *SimGateway) IsConnected(ctx context.Context) bool {
	return true
}

// EnsureConnected 模拟网关无需重连
func (g *SimGateway) EnsureConnected(ctx context.Context, maxRetries int, retryInterval int) error {
	return nil
}

// GetPositions 查询当前持仓
func (g *SimGateway) GetPositions(ctx context.Context) ([]*Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	positions := make([]*Position, 0, len(g.positions))
	for _, p := range g.positions {
		cp := *p
		if last, ok := g.quotes[p.InstrumentID]; ok {
			cp.LastPrice = last
		}
		positions = append(positions, &cp)
	}
	return positions, nil
}

// GetAsset 查询账户资产
func (g *SimGateway) GetAsset(ctx context.Context) (*Asset, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var marketValue float64
	for _, p := range g.positions {
		marketValue += float64(p.Quantity) * g.quotes[p.InstrumentID]
	}
	return &Asset{
		Cash:        g.cash,
		MarketValue: marketValue,
		TotalAsset:  g.cash + marketValue,
	}, nil
}

// GetQuote 查询行情快照
func (g *SimGateway) GetQuote(ctx context.Context, instrumentID string) (*Quote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	last, ok := g.quotes[instrumentID]
	if !ok {
		return nil, NewGatewayError("get_quote", fmt.Errorf("无行情: %s", instrumentID))
	}
	return &Quote{
		InstrumentID: instrumentID,
		LastPrice:    last,
		LastClose:    last,
		Timestamp:    time.Now(),
	}, nil
}

// IsSuspended 查询是否停牌
func (g *SimGateway) IsSuspended(ctx context.Context, instrumentID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suspended[instrumentID], nil
}

// PlaceOrder 下单
func (g *SimGateway) PlaceOrder(ctx context.Context, req *OrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if reason, ok := g.rejects[req.InstrumentID]; ok {
		return "", fmt.Errorf("下单被拒绝: %s", reason)
	}

	g.nextOrderID++
	orderID := strconv.FormatInt(g.nextOrderID, 10)

	order := &Order{
		OrderID:      orderID,
		InstrumentID: req.InstrumentID,
		Side:         req.Side,
		Style:        req.Style,
		Status:       OrderStatusAcked,
		Quantity:     req.Quantity,
		CreatedAt:    time.Now(),
	}
	g.orders[orderID] = order
	return orderID, nil
}

// CancelOrder 撤单
func (g *SimGateway) CancelOrder(ctx context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[orderID]
	if !ok {
		return NewGatewayError("cancel_order", fmt.Errorf("订单不存在: %s", orderID))
	}
	if !order.Status.IsTerminal() {
		order.Status = OrderStatusCanceled
		order.UpdatedAt = time.Now()
	}
	return nil
}

// GetOrderStatus 查询订单状态，按 FillDelayPolls 推进成交
func (g *SimGateway) GetOrderStatus(ctx context.Context, orderID string) (*Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[orderID]
	if !ok {
		return nil, NewGatewayError("get_order_status", fmt.Errorf("订单不存在: %s", orderID))
	}

	if !order.Status.IsTerminal() && order.Status != OrderStatusPartial {
		g.pollCounts[orderID]++
		if g.pollCounts[orderID] > g.FillDelayPolls {
			g.fill(order)
		}
	}

	cp := *order
	return &cp, nil
}

// fill 推进订单到终态并更新资产持仓
// 注意：调用方必须已持有 g.mu
func (g *SimGateway) fill(order *Order) {
	price := g.quotes[order.InstrumentID]

	filled := order.Quantity
	if partial, ok := g.partials[order.InstrumentID]; ok && partial < order.Quantity {
		filled = partial
		order.Status = OrderStatusPartial
	} else {
		order.Status = OrderStatusFilled
	}
	order.FilledQty = filled
	order.AvgPrice = price
	order.UpdatedAt = time.Now()

	notional := float64(filled) * price
	if order.Side == SideBuy {
		g.cash -= notional
		p, ok := g.positions[order.InstrumentID]
		if !ok {
			p = &Position{InstrumentID: order.InstrumentID, AverageCost: price}
			g.positions[order.InstrumentID] = p
		}
		p.Quantity += filled
		p.Available += filled
	} else {
		g.cash += notional
		if p, ok := g.positions[order.InstrumentID]; ok {
			p.Quantity -= filled
			p.Available -= filled
			if p.Quantity <= 0 {
				delete(g.positions, order.InstrumentID)
			}
		}
	}
}

// Close 释放资源
func (g *SimGateway) Close() error {
	return nil
}
