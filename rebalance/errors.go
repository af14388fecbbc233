package rebalance

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind 失败分类
type ErrorKind string

const (
	// KindGatewayError 券商网关调用失败
	KindGatewayError ErrorKind = "GATEWAY_ERROR"
	// KindSourceUnavailable 策略数据源不可达
	KindSourceUnavailable ErrorKind = "SOURCE_UNAVAILABLE"
	// KindBrokerRejected 委托被券商拒绝
	KindBrokerRejected ErrorKind = "BROKER_REJECTED"
	// KindTimeout 委托在限定时间内未到达终态
	KindTimeout ErrorKind = "TIMEOUT"
	// KindSuspended 标的停牌，主动跳过
	KindSuspended ErrorKind = "SUSPENDED"
	// KindSkippedBusy 执行锁被占用，放弃本次触发
	KindSkippedBusy ErrorKind = "SKIPPED_BUSY"
)

// RunError 运行期错误记录
type RunError struct {
	Kind         ErrorKind
	InstrumentID string
	Message      string
}

func (e *RunError) Error() string {
	if e.InstrumentID != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.InstrumentID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// NewRunError 创建运行期错误
func NewRunError(kind ErrorKind, instrumentID, format string, args ...interface{}) *RunError {
	return &RunError{
		Kind:         kind,
		InstrumentID: instrumentID,
		Message:      fmt.Sprintf(format, args...),
	}
}

// Classify 归类任意错误，未知错误一律视为网关错误
func Classify(err error) ErrorKind {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindGatewayError
}
