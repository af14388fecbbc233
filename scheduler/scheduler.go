package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"bondrotor/config"
	"bondrotor/logger"
	"bondrotor/rebalance"
	"bondrotor/utils"
)

// TokenRefresher 需要定期刷新凭证的数据源
type TokenRefresher interface {
	RefreshToken(ctx context.Context) error
}

// Scheduler 定时任务调度器
// 负责按配置触发调仓、补仓和令牌刷新，所有任务按配置时区解析
type Scheduler struct {
	cfg       *config.Config
	orch      *rebalance.Orchestrator
	refill    *rebalance.RefillWorker
	refresher TokenRefresher

	cron        *cron.Cron
	rebalanceID cron.EntryID
	baseCtx     context.Context
}

func NewScheduler(baseCtx context.Context, cfg *config.Config, orch *rebalance.Orchestrator,
	refill *rebalance.RefillWorker, refresher TokenRefresher) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Scheduler{
		cfg:       cfg,
		orch:      orch,
		refill:    refill,
		refresher: refresher,
		cron:      cron.New(cron.WithLocation(utils.GlobalLocation)),
		baseCtx:   baseCtx,
	}
}

// Start 注册并启动全部定时任务
func (s *Scheduler) Start() error {
	spec, err := rebalanceSpec(s.cfg)
	if err != nil {
		return err
	}
	s.rebalanceID, err = s.cron.AddFunc(spec, s.runRebalance)
	if err != nil {
		return fmt.Errorf("注册调仓任务失败: %w", err)
	}
	logger.Info("📅 调仓任务已注册 (%s @ %s)", s.cfg.Rebalance.Schedule.Frequency, spec)

	if s.refill != nil && s.cfg.Refill.Enabled {
		refillSpec, err := dailySpec(s.cfg.Refill.At)
		if err != nil {
			return fmt.Errorf("补仓时间无效: %w", err)
		}
		if _, err := s.cron.AddFunc(refillSpec, s.runRefill); err != nil {
			return fmt.Errorf("注册补仓任务失败: %w", err)
		}
		logger.Info("📅 补仓任务已注册 (每交易日 %s)", s.cfg.Refill.At)
	}

	if s.refresher != nil {
		refreshSpec := fmt.Sprintf("@every %dm", s.cfg.Source.TokenRefreshMinutes)
		if _, err := s.cron.AddFunc(refreshSpec, s.runTokenRefresh); err != nil {
			return fmt.Errorf("注册令牌刷新任务失败: %w", err)
		}
		logger.Info("📅 令牌刷新任务已注册 (每 %d 分钟)", s.cfg.Source.TokenRefreshMinutes)
	}

	s.cron.Start()
	logger.Info("✅ 调度器已启动")
	return nil
}

// Stop 停止调度器并等待进行中的任务结束
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("📅 调度器已停止")
}

// NextRebalance 下一次计划调仓的触发时间
func (s *Scheduler) NextRebalance() time.Time {
	return s.cron.Entry(s.rebalanceID).Next
}

// TriggerNow 手动触发一次调仓，阻塞直到本次运行结束
// 与定时触发共用执行锁，正在执行时返回占用错误
func (s *Scheduler) TriggerNow(ctx context.Context) *rebalance.RunSummary {
	logger.Info("🔘 手动触发调仓")
	return s.orch.Run(ctx, "manual")
}

func (s *Scheduler) runRebalance() {
	now := utils.NowConfiguredTimezone()
	if !utils.IsTradingDay(now) {
		logger.Info("📅 非交易日，跳过本次调仓")
		return
	}
	summary := s.orch.Run(s.baseCtx, "scheduled")
	logger.Info("📅 定时调仓结束: %s", summary.State)
}

func (s *Scheduler) runRefill() {
	now := utils.NowConfiguredTimezone()
	if !utils.IsTradingDay(now) {
		return
	}
	if _, err := s.refill.Run(s.baseCtx); err != nil {
		logger.Error("❌ 定时补仓失败: %v", err)
	}
}

func (s *Scheduler) runTokenRefresh() {
	ctx, cancel := context.WithTimeout(s.baseCtx, 30*time.Second)
	defer cancel()
	if err := s.refresher.RefreshToken(ctx); err != nil {
		logger.Error("❌ 数据源令牌刷新失败: %v", err)
	}
}

// rebalanceSpec 把调仓频率配置翻译成 cron 表达式
// 节假日在任务内判断，表达式只处理频率和时间
func rebalanceSpec(cfg *config.Config) (string, error) {
	hour, minute, err := parseHHMM(cfg.Rebalance.Schedule.At)
	if err != nil {
		return "", fmt.Errorf("调仓时间无效: %w", err)
	}
	switch cfg.Rebalance.Schedule.Frequency {
	case "daily":
		return fmt.Sprintf("%d %d * * 1-5", minute, hour), nil
	case "weekly":
		return fmt.Sprintf("%d %d * * %d", minute, hour, cfg.Rebalance.Schedule.Weekday), nil
	case "monthly":
		return fmt.Sprintf("%d %d %d * *", minute, hour, cfg.Rebalance.Schedule.MonthDay), nil
	default:
		return "", fmt.Errorf("不支持的调仓频率: %s", cfg.Rebalance.Schedule.Frequency)
	}
}

// dailySpec 每个工作日 HH:MM 触发的 cron 表达式
func dailySpec(at string) (string, error) {
	hour, minute, err := parseHHMM(at)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * 1-5", minute, hour), nil
}

func parseHHMM(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("时间格式应为 HH:MM: %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("小时无效: %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("分钟无效: %q", s)
	}
	return hour, minute, nil
}
