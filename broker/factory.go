package broker

import (
	"fmt"
	"time"

	"bondrotor/config"
	"bondrotor/logger"
)

// NewGateway 根据配置创建券商网关实例
func NewGateway(cfg *config.Config) (Gateway, error) {
	switch cfg.Broker.Type {
	case "qmt":
		if cfg.App.AccountID == "" {
			return nil, fmt.Errorf("QMT 网关需要配置证券账号 app.account_id")
		}
		gateway := NewQMTGateway(
			cfg.Broker.BaseURL,
			cfg.Broker.QuoteURL,
			cfg.App.AccountID,
			time.Duration(cfg.Broker.Timeout)*time.Second,
		)
		logger.Info("✅ 券商网关已创建: QMT (%s)", cfg.Broker.BaseURL)
		return gateway, nil

	case "sim":
		logger.Info("🌐 券商网关已创建: SIM（模拟盘模式）")
		return NewSimGateway(1000000), nil

	default:
		return nil, fmt.Errorf("不支持的券商网关类型: %s", cfg.Broker.Type)
	}
}
