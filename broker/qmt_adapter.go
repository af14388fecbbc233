package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"bondrotor/broker/qmt"
	"bondrotor/logger"
	"bondrotor/utils"
)

// QMT 数字状态码（xtquant 约定）
const (
	qmtStatusUnreported     = 48 // 未报
	qmtStatusWaitReport     = 49 // 待报
	qmtStatusReported       = 50 // 已报
	qmtStatusReportedCancel = 51 // 已报待撤
	qmtStatusPartialCancel  = 52 // 部成待撤
	qmtStatusPartCanceled   = 53 // 部撤
	qmtStatusCanceled       = 54 // 已撤
	qmtStatusPartialFilled  = 55 // 部成
	qmtStatusFilled         = 56 // 已成
	qmtStatusJunk           = 57 // 废单
)

// 停牌状态码（QMT instrument_status）
var suspendedStatus = map[int]bool{
	17: true,
	20: true,
}

// QMTGateway 基于 MiniQMT 桥接服务的券商网关
type QMTGateway struct {
	client *qmt.QMTClient
	quotes *qmt.QuoteClient
}

// NewQMTGateway 创建 QMT 网关
func NewQMTGateway(baseURL, quoteURL, accountID string, timeout time.Duration) *QMTGateway {
	return &QMTGateway{
		client: qmt.NewQMTClient(baseURL, accountID, timeout),
		quotes: qmt.NewQuoteClient(quoteURL, timeout),
	}
}

// GetName 网关名称
func (g *QMTGateway) GetName() string {
	return "QMT"
}

// IsConnected 当前连接状态
func (g *QMTGateway) IsConnected(ctx context.Context) bool {
	ok, err := g.client.Health(ctx)
	if err != nil {
		return false
	}
	return ok
}

// EnsureConnected 确认连接可用，必要时重连
func (g *QMTGateway) EnsureConnected(ctx context.Context, maxRetries int, retryInterval int) error {
	if g.IsConnected(ctx) {
		return nil
	}

	for i := 1; i <= maxRetries; i++ {
		logger.Warn("⚠️ [QMT] 连接不可用，第 %d/%d 次重连...", i, maxRetries)
		if err := g.client.Connect(ctx); err != nil {
			logger.Error("❌ [QMT] 重连失败: %v", err)
		} else if g.IsConnected(ctx) {
			logger.Info("✅ [QMT] 重连成功")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(retryInterval) * time.Second):
		}
	}

	return NewGatewayError("ensure_connected", fmt.Errorf("重试 %d 次后仍无法连接", maxRetries))
}

// GetPositions 查询当前持仓（带行情补全）
func (g *QMTGateway) GetPositions(ctx context.Context) ([]*Position, error) {
	items, err := g.client.GetPositions(ctx)
	if err != nil {
		return nil, NewGatewayError("get_positions", err)
	}

	positions := make([]*Position, 0, len(items))
	for _, item := range items {
		// 桥接层可能带市场后缀，内部统一用 6 位纯代码
		bare := utils.BareCode(item.StockCode)
		p := &Position{
			InstrumentID: bare,
			Name:         item.StockName,
			Quantity:     item.Volume,
			Available:    item.CanUseVolume,
			AverageCost:  item.AvgPrice,
		}

		// 行情补全最新价；失败不阻塞持仓查询
		if quote, err := g.quotes.GetQuote(ctx, bare); err == nil {
			p.LastPrice = quote.LastPrice
			if p.Name == "" {
				p.Name = quote.Name
			}
		} else {
			logger.Warn("⚠️ [QMT] 获取 %s 行情失败: %v", bare, err)
		}

		positions = append(positions, p)
	}
	return positions, nil
}

// GetAsset 查询账户资产
func (g *QMTGateway) GetAsset(ctx context.Context) (*Asset, error) {
	result, err := g.client.GetAsset(ctx)
	if err != nil {
		return nil, NewGatewayError("get_asset", err)
	}
	return &Asset{
		Cash:        result.Cash,
		FrozenCash:  result.FrozenCash,
		MarketValue: result.MarketValue,
		TotalAsset:  result.TotalAsset,
	}, nil
}

// GetQuote 查询行情快照
func (g *QMTGateway) GetQuote(ctx context.Context, instrumentID string) (*Quote, error) {
	q, err := g.quotes.GetQuote(ctx, instrumentID)
	if err != nil {
		return nil, NewGatewayError("get_quote", err)
	}
	return &Quote{
		InstrumentID: instrumentID,
		Name:         q.Name,
		LastPrice:    q.LastPrice,
		LastClose:    q.LastClose,
		Open:         q.Open,
		High:         q.High,
		Low:          q.Low,
		Volume:       q.Volume,
		Timestamp:    time.Now(),
	}, nil
}

// IsSuspended 查询是否停牌
func (g *QMTGateway) IsSuspended(ctx context.Context, instrumentID string) (bool, error) {
	detail, err := g.client.GetInstrumentDetail(ctx, instrumentID)
	if err != nil {
		return false, NewGatewayError("is_suspended", err)
	}
	return suspendedStatus[detail.InstrumentStatus], nil
}

// PlaceOrder 下单，返回订单ID
func (g *QMTGateway) PlaceOrder(ctx context.Context, req *OrderRequest) (string, error) {
	// QMT 报单要求带市场后缀的完整代码，非可转债代码在此拦截
	code, err := utils.NormalizeBondCode(req.InstrumentID)
	if err != nil {
		return "", err
	}
	// QMT 对可转债不支持真正的市价单，市价委托由执行器换算为
	// 带滑点的限价后再进入网关，这里统一按限价报单
	orderID, err := g.client.PlaceOrder(ctx, code, string(req.Side), "limit", req.Price, req.Quantity)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(orderID, 10), nil
}

// CancelOrder 撤单
func (g *QMTGateway) CancelOrder(ctx context.Context, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("无效的订单ID: %s", orderID)
	}
	if err := g.client.CancelOrder(ctx, id); err != nil {
		return NewGatewayError("cancel_order", err)
	}
	return nil
}

// GetOrderStatus 查询订单状态
func (g *QMTGateway) GetOrderStatus(ctx context.Context, orderID string) (*Order, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("无效的订单ID: %s", orderID)
	}

	result, err := g.client.GetOrderStatus(ctx, id)
	if err != nil {
		return nil, NewGatewayError("get_order_status", err)
	}

	return &Order{
		OrderID:      orderID,
		InstrumentID: utils.BareCode(result.StockCode),
		Side:         Side(result.Side),
		Status:       mapQMTStatus(result.Status),
		Quantity:     result.Volume,
		FilledQty:    result.TradedVolume,
		AvgPrice:     result.TradedPrice,
		Reason:       result.StatusMsg,
		UpdatedAt:    time.Now(),
	}, nil
}

// mapQMTStatus 将 QMT 数字状态映射为订单状态
func mapQMTStatus(status int) OrderStatus {
	switch status {
	case qmtStatusUnreported, qmtStatusWaitReport, qmtStatusReported, qmtStatusReportedCancel:
		return OrderStatusAcked
	case qmtStatusPartialFilled, qmtStatusPartialCancel:
		return OrderStatusPartial
	case qmtStatusFilled:
		return OrderStatusFilled
	case qmtStatusCanceled, qmtStatusPartCanceled:
		return OrderStatusCanceled
	case qmtStatusJunk:
		return OrderStatusRejected
	default:
		return OrderStatusAcked
	}
}

// Close 释放资源
func (g *QMTGateway) Close() error {
	return nil
}
