package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bondrotor/config"
	"bondrotor/event"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Notifications.Enabled = true
	cfg.Notifications.Rules.OrderFilled = true
	cfg.Notifications.Rules.StopLoss = true
	cfg.Notifications.Rules.RebalanceDone = true
	return cfg
}

func TestShouldNotifyRules(t *testing.T) {
	ns := NewNotificationService(testConfig())

	tests := []struct {
		eventType event.EventType
		want      bool
	}{
		{event.EventTypeOrderFilled, true},
		{event.EventTypeStopLoss, true},
		{event.EventTypeRebalanceDone, true},
		{event.EventTypeOrderPlaced, false},   // 规则未开启
		{event.EventTypeRebalanceFailed, true}, // 账户级故障始终通知
		{event.EventTypeBrokerLost, true},
		{event.EventTypeSourceError, true},
		{event.EventTypeRebalanceStarted, false},
		{event.EventTypeExecutionBusy, false},
	}

	for _, tt := range tests {
		if got := ns.shouldNotify(tt.eventType); got != tt.want {
			t.Errorf("shouldNotify(%s) = %v, 期望 %v", tt.eventType, got, tt.want)
		}
	}

	t.Log("✅ 通知规则过滤测试通过")
}

func TestShouldNotifyDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Notifications.Enabled = false
	ns := NewNotificationService(cfg)

	if ns.shouldNotify(event.EventTypeRebalanceFailed) {
		t.Error("通知总开关关闭时不应通知")
	}

	t.Log("✅ 通知总开关测试通过")
}

func TestFormatMessage(t *testing.T) {
	evt := &event.Event{
		Type:      event.EventTypeStopLoss,
		Timestamp: time.Date(2026, 9, 1, 10, 30, 0, 0, time.Local),
		Data: map[string]interface{}{
			"instrument": "110081",
			"name":       "闻泰转债",
			"pnl_pct":    -0.062,
			"quantity":   int64(100),
		},
	}

	msg := FormatMessage(evt)

	if !strings.Contains(msg, "止损触发") {
		t.Errorf("消息缺少标题: %s", msg)
	}
	if !strings.Contains(msg, "代码: 110081") {
		t.Errorf("消息缺少标的代码: %s", msg)
	}
	if !strings.Contains(msg, "盈亏: -6.20%") {
		t.Errorf("盈亏格式不正确: %s", msg)
	}
	// 名称应排在代码之前
	if strings.Index(msg, "名称") > strings.Index(msg, "代码") {
		t.Errorf("字段顺序不正确: %s", msg)
	}

	t.Log("✅ 消息格式化测试通过")
}

func TestFormatMessageSideLabel(t *testing.T) {
	evt := &event.Event{
		Type:      event.EventTypeOrderFilled,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"instrument": "123045",
			"side":       "buy",
			"price":      118.5,
		},
	}

	msg := FormatMessage(evt)

	if !strings.Contains(msg, "方向: 买入") {
		t.Errorf("方向未翻译: %s", msg)
	}
	if !strings.Contains(msg, "价格: 118.500") {
		t.Errorf("价格格式不正确: %s", msg)
	}

	t.Log("✅ 字段取值格式化测试通过")
}

func TestWebhookNotifierSend(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Notifications.Webhook.Enabled = true
	cfg.Notifications.Webhook.URL = server.URL
	cfg.Notifications.Webhook.Timeout = 3

	notifier, err := NewWebhookNotifier(cfg)
	if err != nil {
		t.Fatalf("创建 Webhook 通知器失败: %v", err)
	}

	evt := &event.Event{
		Type:      event.EventTypeOrderFilled,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"instrument": "110081",
			"side":       "sell",
		},
	}

	if err := notifier.Send(evt); err != nil {
		t.Fatalf("发送通知失败: %v", err)
	}

	if received["type"] != string(event.EventTypeOrderFilled) {
		t.Errorf("事件类型不匹配: %v", received["type"])
	}
	if received["title"] != "订单已成交" {
		t.Errorf("标题不匹配: %v", received["title"])
	}
	data, ok := received["data"].(map[string]interface{})
	if !ok || data["instrument"] != "110081" {
		t.Errorf("事件数据不完整: %v", received["data"])
	}

	t.Log("✅ Webhook 通知发送测试通过")
}

func TestWebhookNotifierServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Notifications.Webhook.URL = server.URL
	cfg.Notifications.Webhook.Timeout = 3

	notifier, err := NewWebhookNotifier(cfg)
	if err != nil {
		t.Fatalf("创建 Webhook 通知器失败: %v", err)
	}

	if err := notifier.Send(&event.Event{Type: event.EventTypeError, Timestamp: time.Now()}); err == nil {
		t.Error("服务端返回 500 时应返回错误")
	}

	t.Log("✅ Webhook 错误处理测试通过")
}

func TestDingTalkSign(t *testing.T) {
	dn := &DingTalkNotifier{secret: "test-secret"}

	sign1 := dn.generateSign(1700000000000)
	sign2 := dn.generateSign(1700000000000)
	sign3 := dn.generateSign(1700000000001)

	if sign1 != sign2 {
		t.Error("相同时间戳应产生相同签名")
	}
	if sign1 == sign3 {
		t.Error("不同时间戳应产生不同签名")
	}
	if sign1 == "" {
		t.Error("签名不应为空")
	}

	t.Log("✅ 钉钉签名测试通过")
}
