package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bondrotor/broker"
	"bondrotor/config"
	"bondrotor/database"
	"bondrotor/event"
	"bondrotor/i18n"
	"bondrotor/lock"
	"bondrotor/logger"
	"bondrotor/metrics"
	"bondrotor/monitor"
	"bondrotor/notify"
	"bondrotor/rebalance"
	"bondrotor/safety"
	"bondrotor/scheduler"
	"bondrotor/source"
	"bondrotor/storage"
	"bondrotor/utils"
	"bondrotor/web"
)

// Version 版本号
var Version = "1.2.0"

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-version" || os.Args[1] == "--version") {
		fmt.Printf("BondRotor 可转债轮动调仓系统\n")
		fmt.Printf("Version: %s\n", Version)
		os.Exit(0)
	}

	// 解析调试参数（-debug / --debug）
	debugMode := false
	filteredArgs := []string{os.Args[0]}
	for _, arg := range os.Args[1:] {
		switch arg {
		case "-debug", "--debug":
			debugMode = true
		default:
			filteredArgs = append(filteredArgs, arg)
		}
	}
	os.Args = filteredArgs

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
		// 首次启动：生成初始配置文件，由运维补全后再启动
		if err := config.SaveConfig(config.CreateMinimalConfig(), configPath); err != nil {
			logger.Fatalf("❌ 生成初始配置失败: %v", err)
		}
		logger.Info("📝 已生成初始配置文件 %s，请补全券商与数据源配置后重新启动", configPath)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatalf("❌ 加载配置失败: %v", err)
	}
	if debugMode {
		cfg.System.LogLevel = "debug"
	}

	// 时区必须在任何时间操作之前就位，调度、交易时段判断都依赖它
	if err := utils.SetLocation(cfg.System.Timezone); err != nil {
		logger.Warn("⚠️ 加载时区 %s 失败: %v，使用默认时区 Asia/Shanghai", cfg.System.Timezone, err)
	}
	logger.SetLevel(logger.ParseLogLevel(cfg.System.LogLevel))
	logger.SetLocation(utils.GlobalLocation)

	if err := i18n.Init("zh-CN"); err != nil {
		logger.Warn("⚠️ 初始化多语言失败: %v", err)
	}

	logger.Info("🚀 BondRotor 可转债轮动调仓系统启动...")
	logger.Info("📦 版本号: %s", Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 存储服务：系统指标落盘 + 应用日志入库（含 WebSocket 推送源）
	storageService, err := storage.NewStorageService(ctx, cfg)
	if err != nil {
		logger.Warn("⚠️ 初始化存储服务失败: %v，系统指标与日志查询不可用", err)
	} else {
		storageService.Start()
	}

	// 业务数据库：持仓记录、补仓队列、委托审计、执行历史、事件
	db, err := database.NewGormDatabase(&database.DBConfig{
		Type:            cfg.Database.Type,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		logger.Fatalf("❌ 初始化数据库失败: %v", err)
	}
	defer db.Close()

	// 事件总线 + 通知 + 事件中心
	eventBus := event.NewEventBus(256)
	notifier := notify.NewNotificationService(cfg)
	eventCenter := event.NewEventCenter(db, eventBus, notifier, &event.EventCenterConfig{
		Enabled:         cfg.EventCenter.Enabled,
		CleanupInterval: cfg.EventCenter.CleanupInterval,
		Retention: event.RetentionConfig{
			CriticalDays:     cfg.EventCenter.Retention.CriticalDays,
			WarningDays:      cfg.EventCenter.Retention.WarningDays,
			InfoDays:         cfg.EventCenter.Retention.InfoDays,
			CriticalMaxCount: cfg.EventCenter.Retention.CriticalMaxCount,
			WarningMaxCount:  cfg.EventCenter.Retention.WarningMaxCount,
			InfoMaxCount:     cfg.EventCenter.Retention.InfoMaxCount,
		},
	})
	if err := eventCenter.Start(); err != nil {
		logger.Warn("⚠️ 启动事件中心失败: %v", err)
	}

	// 执行锁：单实例进程内互斥，多实例部署切 Redis
	execLock, err := lock.NewDistributedLock(&lock.Config{
		Enabled:    cfg.DistributedLock.Enabled,
		Type:       cfg.DistributedLock.Type,
		Prefix:     cfg.DistributedLock.Prefix,
		DefaultTTL: time.Duration(cfg.DistributedLock.DefaultTTL) * time.Second,
		Redis: lock.RedisConfig{
			Addr:     cfg.DistributedLock.Redis.Addr,
			Password: cfg.DistributedLock.Redis.Password,
			DB:       cfg.DistributedLock.Redis.DB,
			PoolSize: cfg.DistributedLock.Redis.PoolSize,
		},
	})
	if err != nil {
		logger.Fatalf("❌ 初始化执行锁失败: %v", err)
	}

	// 券商网关
	gateway, err := broker.NewGateway(cfg)
	if err != nil {
		logger.Fatalf("❌ 创建券商网关失败: %v", err)
	}
	defer gateway.Close()
	if err := gateway.EnsureConnected(ctx, cfg.Broker.MaxRetries, cfg.Broker.RetryInterval); err != nil {
		// 启动时连不上不致命，健康检查会持续重连并告警
		logger.Warn("⚠️ 券商网关暂不可用: %v", err)
	}

	// 策略数据源
	sourcePassword := resolveCredential(cfg.Source.EncryptedPassword)
	factorCat := source.NewFactorCatClient(
		cfg.Source.BaseURL,
		cfg.Source.Username,
		sourcePassword,
		cfg.Source.PageSize,
		time.Duration(cfg.Source.Timeout)*time.Second,
	)
	if err := factorCat.Login(ctx); err != nil {
		logger.Warn("⚠️ 策略数据源登录失败: %v，请求时将自动重试", err)
	}

	// 调仓核心
	clock := rebalance.RealClock()
	sleeper := rebalance.RealSleeper()
	rule := &rebalance.AllocationRule{
		Mode:                   rebalance.AllocationMode(cfg.Allocation.Mode),
		Amount:                 cfg.Allocation.FixedAmount,
		OrderStyle:             broker.OrderStyle(cfg.Allocation.OrderStyle),
		InsufficientCashPolicy: cfg.Allocation.InsufficientCashPolicy,
	}
	lockTTL := time.Duration(cfg.Rebalance.LockTTLSec) * time.Second

	snapshotter := rebalance.NewSnapshotter(gateway, db, clock)
	executor := rebalance.NewExecutor(gateway, db, eventBus, &rebalance.ExecutorConfig{
		PollInterval:  time.Duration(cfg.Executor.PollIntervalMS) * time.Millisecond,
		OrderTimeout:  time.Duration(cfg.Executor.OrderTimeoutSec) * time.Second,
		RateLimit:     cfg.Executor.RateLimitPerSecond,
		RateBurst:     cfg.Executor.RateBurst,
		MarketPadding: cfg.Executor.MarketPricePadding,
		StrategyName:  fmt.Sprintf("strategy-%d", cfg.Source.StrategyID),
	}, clock, sleeper)

	monitorCfg := &rebalance.MonitorConfig{
		Interval:          time.Duration(cfg.Monitor.IntervalSeconds) * time.Second,
		DefaultTakeProfit: cfg.Monitor.TakeProfitPct,
		DefaultStopLoss:   cfg.Monitor.StopLossPct,
		OrderStyle:        broker.OrderStyle(cfg.Allocation.OrderStyle),
		RefillEnabled:     cfg.Refill.Enabled,
		RefillDeadline:    cfg.Refill.Deadline,
		LockKey:           cfg.Rebalance.LockKey,
		LockTTL:           lockTTL,
	}
	posMonitor := rebalance.NewMonitor(snapshotter, executor, execLock, db, eventBus, monitorCfg, clock)

	orchestrator := rebalance.NewOrchestrator(factorCat, snapshotter, executor, execLock,
		db, eventBus, posMonitor, &rebalance.OrchestratorConfig{
			StrategyID: cfg.Source.StrategyID,
			Rule:       rule,
			LockKey:    cfg.Rebalance.LockKey,
			LockTTL:    lockTTL,
		}, clock)

	refillWorker := rebalance.NewRefillWorker(factorCat, snapshotter, executor, execLock,
		db, eventBus, &rebalance.RefillConfig{
			StrategyID: cfg.Source.StrategyID,
			Rule:       rule,
			LockKey:    cfg.Rebalance.LockKey,
			LockTTL:    lockTTL,
		}, clock)

	if cfg.Monitor.Enabled {
		posMonitor.Start(ctx)
	}

	// 定时调度：调仓 / 补仓 / 令牌刷新
	sched := scheduler.NewScheduler(ctx, cfg, orchestrator, refillWorker, factorCat)
	if err := sched.Start(); err != nil {
		logger.Fatalf("❌ 启动调度器失败: %v", err)
	}

	// 持仓对账：发现人工操作造成的记录漂移
	reconciler := safety.NewReconciler(cfg, gateway, db, eventBus, execLock)
	reconciler.Start(ctx)

	// 看门狗：资源采样、阈值告警、券商连通性、数据保留
	watchdog := monitor.NewWatchdog(cfg, storageService, gateway, eventBus)
	watchdog.Start()

	// 运行时指标采集（Prometheus）
	var collector *metrics.SystemMetricsCollector
	if cfg.Metrics.Enabled {
		collector = metrics.NewSystemMetricsCollector(
			time.Duration(cfg.Metrics.CollectInterval) * time.Second)
		collector.Start()
	}

	// 运维 API
	webServer := web.NewServer(cfg, db, gateway, factorCat, sched, storageService)
	webServer.Start(ctx)

	// 配置热更新：阈值、通知规则等不重启生效
	startConfigWatcher(ctx, configPath, cfg, posMonitor)

	logger.Info("✅ 系统启动完成 (策略 #%d, 调仓 %s @ %s)",
		cfg.Source.StrategyID, cfg.Rebalance.Schedule.Frequency, cfg.Rebalance.Schedule.At)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("🛑 收到信号 %v，开始优雅关闭...", sig)

	cancel()
	sched.Stop()
	if cfg.Monitor.Enabled {
		posMonitor.Stop()
	}
	reconciler.Stop()
	watchdog.Stop()
	if collector != nil {
		collector.Stop()
	}
	webServer.Stop()
	eventCenter.Stop()
	eventBus.Close()
	if storageService != nil {
		storageService.Stop()
	}

	logger.Info("👋 BondRotor 已退出")
	logger.Close()
}

// resolveCredential 解密本地保存的凭据
// 密钥取自环境变量 BONDROTOR_SECRET；未设置或解密失败时按明文使用
func resolveCredential(stored string) string {
	if stored == "" {
		return ""
	}
	passphrase := os.Getenv("BONDROTOR_SECRET")
	if passphrase == "" {
		return stored
	}
	plain, err := utils.DecryptCredential(stored, passphrase)
	if err != nil {
		logger.Warn("⚠️ 解密凭据失败: %v，按明文处理", err)
		return stored
	}
	return plain
}

// startConfigWatcher 监听配置文件变化，热更新可动态调整的配置
func startConfigWatcher(ctx context.Context, configPath string, cfg *config.Config,
	posMonitor *rebalance.Monitor) {
	hotReloader := config.NewHotReloader(cfg)
	hotReloader.RegisterCallback(func(oldCfg, newCfg *config.Config, changes []config.ConfigChange) error {
		// 止盈止损默认阈值即时生效，下一个监控周期使用新值；
		// 其余配置项由差异检查提示重启生效，不在运行中改写
		posMonitor.SetDefaultThresholds(newCfg.Monitor.TakeProfitPct, newCfg.Monitor.StopLossPct)
		logger.Info("🔄 配置热更新完成 (%d 处变更)", len(changes))
		return nil
	})

	watcher, err := config.NewConfigWatcher(configPath, hotReloader, config.NewBackupManager())
	if err != nil {
		logger.Warn("⚠️ 初始化配置监听失败: %v，热更新不可用", err)
		return
	}
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("⚠️ 启动配置监听失败: %v", err)
	}
}
