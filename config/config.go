package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 全局配置
type Config struct {
	// 应用配置
	App struct {
		Name      string `yaml:"name"`       // 应用名称，默认 bondrotor
		AccountID string `yaml:"account_id"` // 证券账号
	} `yaml:"app"`

	// 券商网关配置
	Broker struct {
		Type          string `yaml:"type"`           // 网关类型: qmt, sim，默认 qmt
		BaseURL       string `yaml:"base_url"`       // QMT 本地桥接服务地址，默认 http://127.0.0.1:58610
		QuoteURL      string `yaml:"quote_url"`      // 行情接口地址，默认 http://qt.gtimg.cn
		Timeout       int    `yaml:"timeout"`        // 请求超时（秒，默认10）
		MaxRetries    int    `yaml:"max_retries"`    // 连接重试次数，默认3
		RetryInterval int    `yaml:"retry_interval"` // 重试间隔（秒，默认5）

		// 本地保存的登录凭据（EncryptCredential 加密）
		Credential struct {
			Username          string `yaml:"username"`
			EncryptedPassword string `yaml:"encrypted_password"`
		} `yaml:"credential"`
	} `yaml:"broker"`

	// 策略数据源配置
	Source struct {
		BaseURL             string `yaml:"base_url"`              // 策略平台地址
		Username            string `yaml:"username"`              // 平台账号
		EncryptedPassword   string `yaml:"encrypted_password"`    // 加密后的密码
		StrategyID          int    `yaml:"strategy_id"`           // 当前运行的策略ID
		Timeout             int    `yaml:"timeout"`               // 请求超时（秒，默认15）
		TokenRefreshMinutes int    `yaml:"token_refresh_minutes"` // 令牌刷新间隔（分钟，默认30）
		PageSize            int    `yaml:"page_size"`             // 分页大小，默认50
	} `yaml:"source"`

	// 买入金额分配规则
	Allocation struct {
		Mode        string  `yaml:"mode"`         // fixed_amount / balance_share，默认 balance_share
		FixedAmount float64 `yaml:"fixed_amount"` // 固定金额模式下每只买入金额（元，默认10000）
		OrderStyle  string  `yaml:"order_style"`  // limit / market，默认 limit

		// 可用资金不足以覆盖全部买入时的策略
		// reject: 不裁剪计划，超额买入由券商逐笔拒绝（默认）
		InsufficientCashPolicy string `yaml:"insufficient_cash_policy"`
	} `yaml:"allocation"`

	// 调仓配置
	Rebalance struct {
		// 执行锁
		LockKey    string `yaml:"lock_key"`    // 锁键，默认 "execute"
		LockTTLSec int    `yaml:"lock_ttl"`    // 锁过期时间（秒，默认300）

		// 调仓触发时间（由调度器解析）
		Schedule struct {
			Frequency string `yaml:"frequency"` // daily / weekly / monthly，默认 daily
			At        string `yaml:"at"`        // 触发时间 HH:MM，默认 14:50
			Weekday   int    `yaml:"weekday"`   // weekly 模式: 0=周日..6=周六，默认5（周五）
			MonthDay  int    `yaml:"month_day"` // monthly 模式: 1-28，默认1
		} `yaml:"schedule"`
	} `yaml:"rebalance"`

	// 止盈止损监控配置
	Monitor struct {
		Enabled         bool    `yaml:"enabled"`           // 默认true
		IntervalSeconds int     `yaml:"interval_seconds"`  // 检查间隔（秒，默认60）
		TakeProfitPct   float64 `yaml:"take_profit_pct"`   // 默认止盈比例（目标未提供时使用，默认0.10）
		StopLossPct     float64 `yaml:"stop_loss_pct"`     // 默认止损比例（默认0.05）
	} `yaml:"monitor"`

	// 补仓配置
	Refill struct {
		Enabled  bool   `yaml:"enabled"`  // 默认true
		At       string `yaml:"at"`       // 补仓时间 HH:MM，默认 14:50
		Deadline string `yaml:"deadline"` // 当日截止时间，过点不补，默认 14:50
	} `yaml:"refill"`

	// 订单执行配置
	Executor struct {
		PollIntervalMS     int     `yaml:"poll_interval_ms"`      // 订单状态轮询间隔（毫秒，默认2000）
		OrderTimeoutSec    int     `yaml:"order_timeout_seconds"` // 单笔订单等待终态上限（秒，默认60）
		RateLimitPerSecond float64 `yaml:"rate_limit_per_second"` // 下单速率限制（默认5）
		RateBurst          int     `yaml:"rate_burst"`            // 速率突发容量（默认10）
		MarketPricePadding float64 `yaml:"market_price_padding"`  // 市价单按限价模拟的滑点系数（默认0.01）
	} `yaml:"executor"`

	System struct {
		LogLevel         string `yaml:"log_level"`          // 默认 info
		Timezone         string `yaml:"timezone"`           // 时区，默认 Asia/Shanghai
		LogRetentionDays int    `yaml:"log_retention_days"` // 日志保留天数（默认30天，0表示不清理）
	} `yaml:"system"`

	// 数据库配置（支持 SQLite、PostgreSQL、MySQL）
	Database struct {
		Type            string `yaml:"type"`              // 数据库类型: sqlite, postgres, mysql，默认 sqlite
		DSN             string `yaml:"dsn"`               // 数据源名称，默认 ./data/bondrotor.db
		MaxOpenConns    int    `yaml:"max_open_conns"`    // 最大打开连接数，默认100
		MaxIdleConns    int    `yaml:"max_idle_conns"`    // 最大空闲连接数，默认10
		ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // 连接最大生命周期（秒），默认3600
		LogLevel        string `yaml:"log_level"`         // 日志级别: silent, error, warn, info，默认 error
	} `yaml:"database"`

	// 执行锁配置（多实例部署时启用 redis）
	DistributedLock struct {
		Enabled    bool   `yaml:"enabled"`     // 是否启用分布式锁，默认false（单实例模式，进程内互斥）
		Type       string `yaml:"type"`        // 锁类型: redis, local，默认 redis
		Prefix     string `yaml:"prefix"`      // 锁键前缀，默认 "bondrotor:lock:"
		DefaultTTL int    `yaml:"default_ttl"` // 默认锁过期时间（秒），默认300

		Redis struct {
			Addr     string `yaml:"addr"`      // Redis 地址，默认 localhost:6379
			Password string `yaml:"password"`  // Redis 密码，默认为空
			DB       int    `yaml:"db"`        // Redis 数据库，默认0
			PoolSize int    `yaml:"pool_size"` // 连接池大小，默认10
		} `yaml:"redis"`
	} `yaml:"distributed_lock"`

	// 通知配置
	Notifications struct {
		Enabled bool `yaml:"enabled"`

		Webhook struct {
			Enabled bool   `yaml:"enabled"`
			URL     string `yaml:"url"`
			Timeout int    `yaml:"timeout"` // 超时时间（秒，默认3）
		} `yaml:"webhook"`

		Email struct {
			Enabled  bool   `yaml:"enabled"`
			Provider string `yaml:"provider"` // smtp/resend/mailgun

			// SMTP 配置
			SMTP struct {
				Host     string `yaml:"host"`
				Port     int    `yaml:"port"`
				Username string `yaml:"username"`
				Password string `yaml:"password"`
			} `yaml:"smtp"`

			// Resend 配置
			Resend struct {
				APIKey string `yaml:"api_key"`
			} `yaml:"resend"`

			// Mailgun 配置
			Mailgun struct {
				APIKey string `yaml:"api_key"`
				Domain string `yaml:"domain"`
			} `yaml:"mailgun"`

			From    string `yaml:"from"`
			To      string `yaml:"to"`
			Subject string `yaml:"subject"`
		} `yaml:"email"`

		// 飞书（Feishu/Lark）配置
		Feishu struct {
			Enabled bool   `yaml:"enabled"`
			Webhook string `yaml:"webhook"` // 飞书机器人 Webhook URL
		} `yaml:"feishu"`

		// 钉钉配置
		DingTalk struct {
			Enabled bool   `yaml:"enabled"`
			Webhook string `yaml:"webhook"` // 钉钉机器人 Webhook URL
			Secret  string `yaml:"secret"`  // 加签密钥（可选）
		} `yaml:"dingtalk"`

		// 企业微信配置
		WeChatWork struct {
			Enabled bool   `yaml:"enabled"`
			Webhook string `yaml:"webhook"` // 企业微信机器人 Webhook URL
		} `yaml:"wechat_work"`

		// 通知规则：哪些事件需要通知
		Rules struct {
			OrderPlaced   bool `yaml:"order_placed"`
			OrderFilled   bool `yaml:"order_filled"`
			OrderRejected bool `yaml:"order_rejected"`
			OrderTimeout  bool `yaml:"order_timeout"`
			StopLoss      bool `yaml:"stop_loss"`
			TakeProfit    bool `yaml:"take_profit"`
			Suspended     bool `yaml:"suspended"`
			RebalanceDone bool `yaml:"rebalance_done"`
			Error         bool `yaml:"error"`
		} `yaml:"rules"`
	} `yaml:"notifications"`

	// 存储配置（交易日志异步落盘）
	Storage struct {
		Enabled       bool   `yaml:"enabled"`
		Type          string `yaml:"type"`           // sqlite
		Path          string `yaml:"path"`           // 数据库文件路径
		BufferSize    int    `yaml:"buffer_size"`    // 缓冲区大小（默认1000）
		BatchSize     int    `yaml:"batch_size"`     // 批量写入大小（默认100）
		FlushInterval int    `yaml:"flush_interval"` // 刷新间隔（秒，默认5）
	} `yaml:"storage"`

	// Web 服务配置
	Web struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`    // 监听地址（默认 0.0.0.0）
		Port    int    `yaml:"port"`    // 监听端口（默认 8080）
		APIKey  string `yaml:"api_key"` // API 密钥（可选，用于认证）
	} `yaml:"web"`

	// 事件中心配置
	EventCenter struct {
		Enabled bool `yaml:"enabled"` // 默认true

		// 事件保留策略
		Retention struct {
			CriticalDays int `yaml:"critical_days"` // Critical 事件保留天数，默认365
			WarningDays  int `yaml:"warning_days"`  // Warning 事件保留天数，默认90
			InfoDays     int `yaml:"info_days"`     // Info 事件保留天数，默认30

			CriticalMaxCount int `yaml:"critical_max_count"` // 默认1000000
			WarningMaxCount  int `yaml:"warning_max_count"`  // 默认500000
			InfoMaxCount     int `yaml:"info_max_count"`     // 默认300000
		} `yaml:"retention"`

		CleanupInterval int `yaml:"cleanup_interval"` // 清理间隔（小时），默认24
	} `yaml:"event_center"`

	// 监控指标配置
	Metrics struct {
		Enabled         bool `yaml:"enabled"`
		CollectInterval int  `yaml:"collect_interval"` // 收集间隔（秒，默认60）
	} `yaml:"metrics"`

	// 看门狗配置（券商连接 + 系统资源）
	Watchdog struct {
		Enabled             bool    `yaml:"enabled"`               // 默认true
		HealthCheckInterval int     `yaml:"health_check_interval"` // 券商健康检查间隔（秒，默认30）
		CPUPercent          float64 `yaml:"cpu_percent"`           // CPU占用超过此值时通知（默认90）
		MemoryMB            float64 `yaml:"memory_mb"`             // 内存占用超过此值时通知（0表示不检查）
	} `yaml:"watchdog"`

	// 持仓对账配置（买入记录 vs 券商实际持仓）
	Reconcile struct {
		Enabled         bool `yaml:"enabled"`          // 默认true
		IntervalMinutes int  `yaml:"interval_minutes"` // 对账间隔（分钟，默认10）
		AutoFix         bool `yaml:"auto_fix"`         // 记录与实际不符时自动修正买入记录，默认false
	} `yaml:"reconcile"`
}

// LoadConfig 从文件加载配置
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %v", err)
	}

	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes 从字节数组加载配置（用于测试）
func LoadConfigFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %v", err)
	}

	return &cfg, nil
}

// SaveConfig 保存配置到文件
func SaveConfig(cfg *Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %v", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %v", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %v", err)
	}

	return nil
}

// CreateMinimalConfig 创建最小化配置（仅用于首次启动时生成初始配置文件）
func CreateMinimalConfig() *Config {
	cfg := &Config{}
	cfg.App.Name = "bondrotor"
	cfg.Web.Enabled = true
	cfg.Web.Host = "0.0.0.0"
	cfg.Web.Port = 8080
	// 填充其余默认值
	cfg.Validate()
	return cfg
}

// Validate 验证配置并填充默认值
func (c *Config) Validate() error {
	// 应用配置
	if c.App.Name == "" {
		c.App.Name = "bondrotor"
	}

	// 券商网关
	if c.Broker.Type == "" {
		c.Broker.Type = "qmt"
	}
	if c.Broker.Type != "qmt" && c.Broker.Type != "sim" {
		return fmt.Errorf("不支持的券商网关类型: %s", c.Broker.Type)
	}
	if c.Broker.BaseURL == "" {
		c.Broker.BaseURL = "http://127.0.0.1:58610"
	}
	if c.Broker.QuoteURL == "" {
		c.Broker.QuoteURL = "http://qt.gtimg.cn"
	}
	if c.Broker.Timeout <= 0 {
		c.Broker.Timeout = 10
	}
	if c.Broker.MaxRetries <= 0 {
		c.Broker.MaxRetries = 3
	}
	if c.Broker.RetryInterval <= 0 {
		c.Broker.RetryInterval = 5
	}

	// 策略数据源
	if c.Source.Timeout <= 0 {
		c.Source.Timeout = 15
	}
	if c.Source.TokenRefreshMinutes <= 0 {
		c.Source.TokenRefreshMinutes = 30
	}
	if c.Source.PageSize <= 0 {
		c.Source.PageSize = 50
	}

	// 分配规则
	if c.Allocation.Mode == "" {
		c.Allocation.Mode = "balance_share"
	}
	if c.Allocation.Mode != "fixed_amount" && c.Allocation.Mode != "balance_share" {
		return fmt.Errorf("不支持的买入金额模式: %s", c.Allocation.Mode)
	}
	if c.Allocation.FixedAmount <= 0 {
		c.Allocation.FixedAmount = 10000
	}
	if c.Allocation.OrderStyle == "" {
		c.Allocation.OrderStyle = "limit"
	}
	if c.Allocation.OrderStyle != "limit" && c.Allocation.OrderStyle != "market" {
		return fmt.Errorf("不支持的订单类型: %s", c.Allocation.OrderStyle)
	}
	if c.Allocation.InsufficientCashPolicy == "" {
		c.Allocation.InsufficientCashPolicy = "reject"
	}

	// 调仓配置
	if c.Rebalance.LockKey == "" {
		c.Rebalance.LockKey = "execute"
	}
	if c.Rebalance.LockTTLSec <= 0 {
		c.Rebalance.LockTTLSec = 300
	}
	if c.Rebalance.Schedule.Frequency == "" {
		c.Rebalance.Schedule.Frequency = "daily"
	}
	switch c.Rebalance.Schedule.Frequency {
	case "daily", "weekly", "monthly":
	default:
		return fmt.Errorf("不支持的调仓频率: %s", c.Rebalance.Schedule.Frequency)
	}
	if c.Rebalance.Schedule.At == "" {
		c.Rebalance.Schedule.At = "14:50"
	}
	if c.Rebalance.Schedule.Weekday < 0 || c.Rebalance.Schedule.Weekday > 6 {
		c.Rebalance.Schedule.Weekday = 5
	}
	if c.Rebalance.Schedule.MonthDay < 1 || c.Rebalance.Schedule.MonthDay > 28 {
		c.Rebalance.Schedule.MonthDay = 1
	}

	// 监控配置
	if c.Monitor.IntervalSeconds <= 0 {
		c.Monitor.IntervalSeconds = 60
	}
	if c.Monitor.TakeProfitPct <= 0 {
		c.Monitor.TakeProfitPct = 0.10
	}
	if c.Monitor.StopLossPct <= 0 {
		c.Monitor.StopLossPct = 0.05
	}

	// 补仓配置
	if c.Refill.At == "" {
		c.Refill.At = "14:50"
	}
	if c.Refill.Deadline == "" {
		c.Refill.Deadline = "14:50"
	}

	// 订单执行配置
	if c.Executor.PollIntervalMS <= 0 {
		c.Executor.PollIntervalMS = 2000
	}
	if c.Executor.OrderTimeoutSec <= 0 {
		c.Executor.OrderTimeoutSec = 60
	}
	if c.Executor.RateLimitPerSecond <= 0 {
		c.Executor.RateLimitPerSecond = 5
	}
	if c.Executor.RateBurst <= 0 {
		c.Executor.RateBurst = 10
	}
	if c.Executor.MarketPricePadding <= 0 {
		c.Executor.MarketPricePadding = 0.01
	}

	// 系统配置
	if c.System.LogLevel == "" {
		c.System.LogLevel = "info"
	}
	if c.System.Timezone == "" {
		c.System.Timezone = "Asia/Shanghai"
	}
	if c.System.LogRetentionDays < 0 {
		c.System.LogRetentionDays = 30
	}
	if c.System.LogRetentionDays == 0 {
		c.System.LogRetentionDays = 30
	}

	// 数据库配置
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	switch c.Database.Type {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("不支持的数据库类型: %s", c.Database.Type)
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "./data/bondrotor.db"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 100
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = 3600
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "error"
	}

	// 执行锁配置
	if c.DistributedLock.Type == "" {
		c.DistributedLock.Type = "redis"
	}
	if c.DistributedLock.Prefix == "" {
		c.DistributedLock.Prefix = "bondrotor:lock:"
	}
	if c.DistributedLock.DefaultTTL <= 0 {
		c.DistributedLock.DefaultTTL = 300
	}
	if c.DistributedLock.Redis.Addr == "" {
		c.DistributedLock.Redis.Addr = "localhost:6379"
	}
	if c.DistributedLock.Redis.PoolSize <= 0 {
		c.DistributedLock.Redis.PoolSize = 10
	}

	// 通知配置
	if c.Notifications.Webhook.Timeout <= 0 {
		c.Notifications.Webhook.Timeout = 3
	}
	if c.Notifications.Email.Enabled {
		switch c.Notifications.Email.Provider {
		case "smtp", "resend", "mailgun":
		case "":
			c.Notifications.Email.Provider = "smtp"
		default:
			return fmt.Errorf("不支持的邮件服务商: %s", c.Notifications.Email.Provider)
		}
		if c.Notifications.Email.Subject == "" {
			c.Notifications.Email.Subject = "BondRotor 交易通知"
		}
	}

	// 存储配置
	if c.Storage.Type == "" {
		c.Storage.Type = "sqlite"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./data/trade_logs.db"
	}
	if c.Storage.BufferSize <= 0 {
		c.Storage.BufferSize = 1000
	}
	if c.Storage.BatchSize <= 0 {
		c.Storage.BatchSize = 100
	}
	if c.Storage.FlushInterval <= 0 {
		c.Storage.FlushInterval = 5
	}

	// Web 配置
	if c.Web.Host == "" {
		c.Web.Host = "0.0.0.0"
	}
	if c.Web.Port <= 0 {
		c.Web.Port = 8080
	}

	// 事件中心配置
	if c.EventCenter.CleanupInterval <= 0 {
		c.EventCenter.CleanupInterval = 24
	}
	if c.EventCenter.Retention.CriticalDays <= 0 {
		c.EventCenter.Retention.CriticalDays = 365
	}
	if c.EventCenter.Retention.WarningDays <= 0 {
		c.EventCenter.Retention.WarningDays = 90
	}
	if c.EventCenter.Retention.InfoDays <= 0 {
		c.EventCenter.Retention.InfoDays = 30
	}
	if c.EventCenter.Retention.CriticalMaxCount <= 0 {
		c.EventCenter.Retention.CriticalMaxCount = 1000000
	}
	if c.EventCenter.Retention.WarningMaxCount <= 0 {
		c.EventCenter.Retention.WarningMaxCount = 500000
	}
	if c.EventCenter.Retention.InfoMaxCount <= 0 {
		c.EventCenter.Retention.InfoMaxCount = 300000
	}

	// 监控指标配置
	if c.Metrics.CollectInterval <= 0 {
		c.Metrics.CollectInterval = 60
	}

	// 看门狗配置
	if c.Watchdog.HealthCheckInterval <= 0 {
		c.Watchdog.HealthCheckInterval = 30
	}
	if c.Watchdog.CPUPercent <= 0 {
		c.Watchdog.CPUPercent = 90
	}

	// 对账配置
	if c.Reconcile.IntervalMinutes <= 0 {
		c.Reconcile.IntervalMinutes = 10
	}

	return nil
}
