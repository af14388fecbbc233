package broker

import (
	"time"
)

// Side 买卖方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStyle 订单类型
type OrderStyle string

const (
	OrderStyleLimit  OrderStyle = "limit"
	OrderStyleMarket OrderStyle = "market"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"   // 已创建未提交
	OrderStatusAcked    OrderStatus = "acked"     // 券商已接受
	OrderStatusPartial  OrderStatus = "partial"   // 部分成交
	OrderStatusFilled   OrderStatus = "filled"    // 全部成交
	OrderStatusCanceled OrderStatus = "canceled"  // 已撤单
	OrderStatusRejected OrderStatus = "rejected"  // 券商拒绝
	OrderStatusFailed   OrderStatus = "failed"    // 提交失败
)

// IsTerminal 判断订单状态是否为终态
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusFailed:
		return true
	}
	return false
}

// Position 持仓信息
type Position struct {
	InstrumentID string  // 证券代码（6位纯代码）
	Name         string  // 证券名称
	Quantity     int64   // 持仓数量
	Available    int64   // 可用数量（T+0 可卖部分）
	AverageCost  float64 // 成本价
	LastPrice    float64 // 最新价
}

// Asset 账户资产
type Asset struct {
	Cash        float64 // 可用资金
	FrozenCash  float64 // 冻结资金
	MarketValue float64 // 持仓市值
	TotalAsset  float64 // 总资产
}

// Quote 行情快照
type Quote struct {
	InstrumentID string
	Name         string
	LastPrice    float64 // 最新价
	LastClose    float64 // 昨收价
	Open         float64
	High         float64
	Low          float64
	Volume       int64
	Timestamp    time.Time
}

// OrderRequest 下单请求
type OrderRequest struct {
	InstrumentID string
	Side         Side
	Style        OrderStyle
	Quantity     int64   // 股数（可转债以10张为一手）
	Price        float64 // 限价；市价单按最新价加减滑点模拟
}

// Order 订单
type Order struct {
	OrderID      string
	InstrumentID string
	Side         Side
	Style        OrderStyle
	Status       OrderStatus
	Quantity     int64   // 委托数量
	FilledQty    int64   // 已成交数量
	AvgPrice     float64 // 成交均价
	Reason       string  // 拒绝/失败原因
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
