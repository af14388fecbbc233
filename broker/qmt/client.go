package qmt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// QMTClient MiniQMT 本地桥接服务的 HTTP 客户端
// 桥接服务运行在交易终端同机，将 QMT 的交易接口以 JSON 形式暴露出来
type QMTClient struct {
	baseURL    string
	accountID  string
	httpClient *http.Client
}

// NewQMTClient 创建 QMT 客户端
func NewQMTClient(baseURL, accountID string, timeout time.Duration) *QMTClient {
	return &QMTClient{
		baseURL:   baseURL,
		accountID: accountID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// apiResponse 桥接服务统一响应格式
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// doRequest 执行请求并解析统一响应
func (c *QMTClient) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("构造请求失败: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return fmt.Errorf("解析响应失败: %v", err)
	}
	if apiResp.Code != 0 {
		return fmt.Errorf("桥接服务返回错误 [%d]: %s", apiResp.Code, apiResp.Message)
	}

	if out != nil && len(apiResp.Data) > 0 {
		if err := json.Unmarshal(apiResp.Data, out); err != nil {
			return fmt.Errorf("解析数据失败: %v", err)
		}
	}
	return nil
}

// connectRequest 连接请求
type connectRequest struct {
	AccountID string `json:"account_id"`
}

// Connect 连接交易终端并订阅账户
func (c *QMTClient) Connect(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/connect", &connectRequest{AccountID: c.accountID}, nil)
}

// healthResult 健康检查结果
type healthResult struct {
	Connected bool `json:"connected"`
}

// Health 健康检查
func (c *QMTClient) Health(ctx context.Context) (bool, error) {
	var result healthResult
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &result); err != nil {
		return false, err
	}
	return result.Connected, nil
}

// AssetResult 资产查询结果
type AssetResult struct {
	Cash        float64 `json:"cash"`
	FrozenCash  float64 `json:"frozen_cash"`
	MarketValue float64 `json:"market_value"`
	TotalAsset  float64 `json:"total_asset"`
}

// GetAsset 查询账户资产
func (c *QMTClient) GetAsset(ctx context.Context) (*AssetResult, error) {
	var result AssetResult
	if err := c.doRequest(ctx, http.MethodGet, "/asset", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PositionItem 持仓条目
type PositionItem struct {
	StockCode    string  `json:"stock_code"`
	StockName    string  `json:"stock_name"`
	Volume       int64   `json:"volume"`
	CanUseVolume int64   `json:"can_use_volume"`
	AvgPrice     float64 `json:"avg_price"`
}

// GetPositions 查询持仓
func (c *QMTClient) GetPositions(ctx context.Context) ([]*PositionItem, error) {
	var result []*PositionItem
	if err := c.doRequest(ctx, http.MethodGet, "/positions", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// InstrumentDetail 证券详情
type InstrumentDetail struct {
	InstrumentID     string `json:"instrument_id"`
	InstrumentStatus int    `json:"instrument_status"`
}

// GetInstrumentDetail 查询证券详情（用于停牌判断）
func (c *QMTClient) GetInstrumentDetail(ctx context.Context, code string) (*InstrumentDetail, error) {
	var result InstrumentDetail
	path := fmt.Sprintf("/instrument?code=%s", code)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// orderRequest 下单请求
type orderRequest struct {
	StockCode string  `json:"stock_code"`
	Side      string  `json:"side"` // buy / sell
	PriceType string  `json:"price_type"`
	Price     float64 `json:"price"`
	Volume    int64   `json:"volume"`
}

// orderResult 下单结果
type orderResult struct {
	OrderID int64 `json:"order_id"` // >0 成功，-1 失败
}

// PlaceOrder 下单，返回订单ID
func (c *QMTClient) PlaceOrder(ctx context.Context, code, side, priceType string, price float64, volume int64) (int64, error) {
	req := &orderRequest{
		StockCode: code,
		Side:      side,
		PriceType: priceType,
		Price:     price,
		Volume:    volume,
	}
	var result orderResult
	if err := c.doRequest(ctx, http.MethodPost, "/order", req, &result); err != nil {
		return -1, err
	}
	if result.OrderID <= 0 {
		return -1, fmt.Errorf("下单被拒绝")
	}
	return result.OrderID, nil
}

// cancelRequest 撤单请求
type cancelRequest struct {
	OrderID int64 `json:"order_id"`
}

// CancelOrder 撤单
func (c *QMTClient) CancelOrder(ctx context.Context, orderID int64) error {
	return c.doRequest(ctx, http.MethodPost, "/cancel", &cancelRequest{OrderID: orderID}, nil)
}

// OrderStatusResult 订单状态查询结果
type OrderStatusResult struct {
	OrderID      int64   `json:"order_id"`
	StockCode    string  `json:"stock_code"`
	Side         string  `json:"side"`
	Status       int     `json:"status"` // QMT 数字状态码
	Volume       int64   `json:"volume"`
	TradedVolume int64   `json:"traded_volume"`
	TradedPrice  float64 `json:"traded_price"`
	StatusMsg    string  `json:"status_msg"`
}

// GetOrderStatus 查询订单状态
func (c *QMTClient) GetOrderStatus(ctx context.Context, orderID int64) (*OrderStatusResult, error) {
	var result OrderStatusResult
	path := fmt.Sprintf("/order?order_id=%d", orderID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
