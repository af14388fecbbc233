package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"bondrotor/database"
	"bondrotor/logger"
)

// EventSeverity 事件严重级别
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityCritical EventSeverity = "critical"
)

// GetEventSeverity 返回事件类型对应的严重级别
func GetEventSeverity(t EventType) EventSeverity {
	switch t {
	case EventTypeRebalanceFailed, EventTypeBrokerLost, EventTypeSourceError, EventTypeError:
		return SeverityCritical
	case EventTypeOrderRejected, EventTypeOrderTimeout, EventTypeSuspended,
		EventTypeExecutionBusy, EventTypeStopLoss, EventTypeTakeProfit:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// GetEventTitle 返回事件类型的展示标题
func GetEventTitle(t EventType) string {
	switch t {
	case EventTypeRebalanceStarted:
		return "调仓开始"
	case EventTypeRebalanceDone:
		return "调仓完成"
	case EventTypeRebalanceFailed:
		return "调仓失败"
	case EventTypeOrderPlaced:
		return "订单已提交"
	case EventTypeOrderFilled:
		return "订单已成交"
	case EventTypeOrderRejected:
		return "订单被拒绝"
	case EventTypeOrderTimeout:
		return "订单超时"
	case EventTypeStopLoss:
		return "止损触发"
	case EventTypeTakeProfit:
		return "止盈触发"
	case EventTypeSuspended:
		return "标的停牌"
	case EventTypeExecutionBusy:
		return "执行冲突跳过"
	case EventTypeRefillDone:
		return "补仓完成"
	case EventTypeBrokerLost:
		return "券商连接断开"
	case EventTypeBrokerRecovered:
		return "券商连接恢复"
	case EventTypeSourceError:
		return "策略数据源异常"
	case EventTypeSystemStart:
		return "系统启动"
	case EventTypeSystemStop:
		return "系统停止"
	default:
		return "系统事件"
	}
}

// EventCenter 事件中心：消费事件总线，落库并按级别转发通知
type EventCenter struct {
	db       database.Database
	eventBus *EventBus
	notifier NotificationService
	config   *EventCenterConfig
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// EventCenterConfig 事件中心配置
type EventCenterConfig struct {
	Enabled         bool
	CleanupInterval int // 小时
	Retention       RetentionConfig
}

// RetentionConfig 保留策略配置
type RetentionConfig struct {
	CriticalDays     int
	WarningDays      int
	InfoDays         int
	CriticalMaxCount int
	WarningMaxCount  int
	InfoMaxCount     int
}

// NotificationService 通知服务接口
type NotificationService interface {
	Send(event *Event)
}

// NewEventCenter 创建事件中心
func NewEventCenter(db database.Database, eventBus *EventBus, notifier NotificationService, config *EventCenterConfig) *EventCenter {
	ctx, cancel := context.WithCancel(context.Background())

	return &EventCenter{
		db:       db,
		eventBus: eventBus,
		notifier: notifier,
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 启动事件中心
func (ec *EventCenter) Start() error {
	if !ec.config.Enabled {
		logger.Info("⏸️ 事件中心未启用")
		return nil
	}

	logger.Info("🚀 启动事件中心...")

	ec.wg.Add(1)
	go ec.processEvents()

	ec.wg.Add(1)
	go ec.cleanupTask()

	logger.Info("✅ 事件中心已启动")
	return nil
}

// Stop 停止事件中心
func (ec *EventCenter) Stop() {
	logger.Info("🛑 停止事件中心...")
	ec.cancel()
	ec.wg.Wait()
	logger.Info("✅ 事件中心已停止")
}

// processEvents 处理事件
func (ec *EventCenter) processEvents() {
	defer ec.wg.Done()

	eventCh := ec.eventBus.Subscribe()

	for {
		select {
		case <-ec.ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			ec.handleEvent(event)
		}
	}
}

// handleEvent 处理单个事件
func (ec *EventCenter) handleEvent(event *Event) {
	if event == nil {
		return
	}

	severity := GetEventSeverity(event.Type)
	title := GetEventTitle(event.Type)
	instrument := ec.extractString(event.Data, "instrument")
	message := ec.buildMessage(event)

	detailsJSON, err := json.Marshal(event.Data)
	if err != nil {
		logger.Warn("⚠️ 序列化事件详情失败: %v", err)
		detailsJSON = []byte("{}")
	}

	record := &database.EventRecord{
		Type:       string(event.Type),
		Severity:   string(severity),
		Instrument: instrument,
		Title:      title,
		Message:    message,
		Details:    string(detailsJSON),
		CreatedAt:  event.Timestamp,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ec.db.SaveEvent(ctx, record); err != nil {
		logger.Error("❌ 保存事件失败: %v", err)
		return
	}

	if ec.shouldNotify(event.Type, severity) {
		ec.notifier.Send(event)
	}
}

// extractString 从事件数据中提取字符串字段
func (ec *EventCenter) extractString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// buildMessage 构建事件消息
func (ec *EventCenter) buildMessage(event *Event) string {
	switch event.Type {
	case EventTypeOrderPlaced, EventTypeOrderFilled, EventTypeOrderRejected, EventTypeOrderTimeout:
		return ec.buildOrderMessage(event)
	case EventTypeStopLoss, EventTypeTakeProfit:
		return ec.buildTriggerMessage(event)
	case EventTypeRebalanceDone, EventTypeRebalanceFailed:
		return ec.buildRunMessage(event)
	default:
		if msg, ok := event.Data["message"].(string); ok {
			return msg
		}
		if err, ok := event.Data["error"].(string); ok {
			return err
		}
		return fmt.Sprintf("事件类型: %s", event.Type)
	}
}

// buildOrderMessage 构建订单消息
func (ec *EventCenter) buildOrderMessage(event *Event) string {
	instrument := ec.extractString(event.Data, "instrument")
	side := ec.extractString(event.Data, "side")
	quantity := event.Data["quantity"]
	price := event.Data["price"]
	reason := ec.extractString(event.Data, "reason")

	msg := fmt.Sprintf("%s %s %v @ %v", instrument, side, quantity, price)
	if reason != "" {
		msg += "，原因: " + reason
	}
	return msg
}

// buildTriggerMessage 构建止盈止损消息
func (ec *EventCenter) buildTriggerMessage(event *Event) string {
	instrument := ec.extractString(event.Data, "instrument")
	pnl := event.Data["pnl_pct"]
	last := event.Data["last_price"]
	cost := event.Data["average_cost"]

	return fmt.Sprintf("%s 盈亏 %.2f%%（现价 %v，成本 %v）", instrument, toPercent(pnl), last, cost)
}

// buildRunMessage 构建调仓结果消息
func (ec *EventCenter) buildRunMessage(event *Event) string {
	sells := event.Data["sells"]
	buys := event.Data["buys"]
	errors := event.Data["errors"]
	if msg, ok := event.Data["message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprintf("卖出 %v 笔，买入 %v 笔，异常 %v 笔", sells, buys, errors)
}

func toPercent(v interface{}) float64 {
	if f, ok := v.(float64); ok {
		return f * 100
	}
	return 0
}

// shouldNotify 判断是否需要发送通知
func (ec *EventCenter) shouldNotify(eventType EventType, severity EventSeverity) bool {
	// Critical 级别的事件总是通知
	if severity == SeverityCritical {
		return true
	}

	// Warning 级别里人工需要关注的事件需要通知
	if severity == SeverityWarning {
		switch eventType {
		case EventTypeOrderRejected, EventTypeOrderTimeout, EventTypeSuspended,
			EventTypeStopLoss, EventTypeTakeProfit:
			return true
		}
	}

	// 调仓完成作为运行回执通知
	return eventType == EventTypeRebalanceDone
}

// cleanupTask 清理任务
func (ec *EventCenter) cleanupTask() {
	defer ec.wg.Done()

	// 首次等待1小时后再开始清理
	timer := time.NewTimer(1 * time.Hour)
	defer timer.Stop()

	for {
		select {
		case <-ec.ctx.Done():
			return
		case <-timer.C:
			ec.performCleanup()
			timer.Reset(time.Duration(ec.config.CleanupInterval) * time.Hour)
		}
	}
}

// performCleanup 执行清理
func (ec *EventCenter) performCleanup() {
	logger.Info("🧹 开始清理旧事件...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cleanups := []struct {
		severity string
		maxCount int
		days     int
	}{
		{"critical", ec.config.Retention.CriticalMaxCount, ec.config.Retention.CriticalDays},
		{"warning", ec.config.Retention.WarningMaxCount, ec.config.Retention.WarningDays},
		{"info", ec.config.Retention.InfoMaxCount, ec.config.Retention.InfoDays},
	}
	for _, c := range cleanups {
		if err := ec.db.CleanupOldEvents(ctx, c.severity, c.maxCount, c.days); err != nil {
			logger.Error("❌ 清理 %s 事件失败: %v", c.severity, err)
		}
	}

	logger.Info("✅ 事件清理完成")
}

// PublishEvent 发布事件（便捷方法）
func (ec *EventCenter) PublishEvent(eventType EventType, data map[string]interface{}) {
	ec.eventBus.Publish(&Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	})
}
