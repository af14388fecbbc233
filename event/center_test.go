package event

import (
	"testing"
	"time"
)

// MockNotifier 模拟通知服务
type MockNotifier struct {
	notifications []*Event
}

func (m *MockNotifier) Send(event *Event) {
	m.notifications = append(m.notifications, event)
}

func TestEventBusPublishSubscribe(t *testing.T) {
	eventBus := NewEventBus(10)

	eventBus.Publish(&Event{
		Type: EventTypeOrderPlaced,
		Data: map[string]interface{}{"instrument": "113027.SH"},
	})

	select {
	case ev := <-eventBus.Subscribe():
		if ev.Type != EventTypeOrderPlaced {
			t.Errorf("期望事件类型 %s，实际 %s", EventTypeOrderPlaced, ev.Type)
		}
		if ev.Timestamp.IsZero() {
			t.Error("发布时应补齐时间戳")
		}
	case <-time.After(time.Second):
		t.Fatal("未收到已发布的事件")
	}

	t.Log("✅ 事件总线发布订阅测试通过")
}

func TestEventBusFullDrops(t *testing.T) {
	eventBus := NewEventBus(1)

	eventBus.Publish(&Event{Type: EventTypeOrderPlaced})
	// 队列已满，第二条应被丢弃而不是阻塞
	done := make(chan struct{})
	go func() {
		eventBus.Publish(&Event{Type: EventTypeOrderFilled})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("队列满时 Publish 不应阻塞")
	}

	t.Log("✅ 事件队列满时非阻塞测试通过")
}

func TestEventSeverity(t *testing.T) {
	tests := []struct {
		eventType EventType
		expected  EventSeverity
	}{
		{EventTypeBrokerLost, SeverityCritical},
		{EventTypeRebalanceFailed, SeverityCritical},
		{EventTypeOrderRejected, SeverityWarning},
		{EventTypeSuspended, SeverityWarning},
		{EventTypeOrderPlaced, SeverityInfo},
		{EventTypeSystemStart, SeverityInfo},
	}

	for _, tt := range tests {
		severity := GetEventSeverity(tt.eventType)
		if severity != tt.expected {
			t.Errorf("GetEventSeverity(%s) = %s, want %s", tt.eventType, severity, tt.expected)
		}
	}

	t.Log("✅ 事件严重程度测试通过")
}

func TestEventTitle(t *testing.T) {
	for _, eventType := range []EventType{
		EventTypeOrderPlaced,
		EventTypeStopLoss,
		EventTypeTakeProfit,
		EventTypeSuspended,
		EventTypeRebalanceDone,
		EventTypeBrokerLost,
	} {
		title := GetEventTitle(eventType)
		if title == "" {
			t.Errorf("GetEventTitle(%s) returned empty string", eventType)
		}
		t.Logf("✅ %s: %s", eventType, title)
	}
}

func TestShouldNotify(t *testing.T) {
	ec := &EventCenter{config: &EventCenterConfig{}}

	cases := []struct {
		eventType EventType
		want      bool
	}{
		{EventTypeBrokerLost, true},      // critical 必通知
		{EventTypeOrderRejected, true},   // 人工需关注
		{EventTypeStopLoss, true},        // 触发即通知
		{EventTypeRebalanceDone, true},   // 运行回执
		{EventTypeOrderPlaced, false},    // 普通 info 不打扰
		{EventTypeExecutionBusy, false},  // 仅记录
	}

	for _, c := range cases {
		got := ec.shouldNotify(c.eventType, GetEventSeverity(c.eventType))
		if got != c.want {
			t.Errorf("shouldNotify(%s) = %v, want %v", c.eventType, got, c.want)
		}
	}

	t.Log("✅ 通知规则测试通过")
}
