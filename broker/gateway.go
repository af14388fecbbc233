package broker

import (
	"context"
	"fmt"
)

// Gateway 券商网关接口
// 所有下单、撤单、持仓、行情访问都通过该接口，核心逻辑不依赖具体券商协议
type Gateway interface {
	// GetName 网关名称
	GetName() string

	// IsConnected 当前连接状态
	IsConnected(ctx context.Context) bool

	// EnsureConnected 确认连接可用，必要时重连
	EnsureConnected(ctx context.Context, maxRetries int, retryInterval int) error

	// GetPositions 查询当前持仓
	GetPositions(ctx context.Context) ([]*Position, error)

	// GetAsset 查询账户资产
	GetAsset(ctx context.Context) (*Asset, error)

	// GetQuote 查询行情快照
	GetQuote(ctx context.Context, instrumentID string) (*Quote, error)

	// IsSuspended 查询是否停牌
	IsSuspended(ctx context.Context, instrumentID string) (bool, error)

	// PlaceOrder 下单，返回订单ID
	PlaceOrder(ctx context.Context, req *OrderRequest) (string, error)

	// CancelOrder 撤单
	CancelOrder(ctx context.Context, orderID string) error

	// GetOrderStatus 查询订单状态
	GetOrderStatus(ctx context.Context, orderID string) (*Order, error)

	// Close 释放资源
	Close() error
}

// GatewayError 网关调用失败（连接级错误，非单笔订单被拒）
type GatewayError struct {
	Op    string // 失败的操作，如 "get_positions"
	Cause error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("券商网关调用失败 [%s]: %v", e.Op, e.Cause)
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// NewGatewayError 包装网关错误
func NewGatewayError(op string, cause error) *GatewayError {
	return &GatewayError{Op: op, Cause: cause}
}
