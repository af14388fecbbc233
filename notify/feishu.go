package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"bondrotor/config"
	"bondrotor/event"
)

// FeishuNotifier 飞书通知器
type FeishuNotifier struct {
	webhook string
	client  *http.Client
}

// NewFeishuNotifier 创建飞书通知器
func NewFeishuNotifier(cfg *config.Config) (*FeishuNotifier, error) {
	if cfg.Notifications.Feishu.Webhook == "" {
		return nil, fmt.Errorf("飞书 Webhook URL 未配置")
	}

	return &FeishuNotifier{
		webhook: cfg.Notifications.Feishu.Webhook,
		client: &http.Client{
			Timeout: 3 * time.Second,
		},
	}, nil
}

// Name 返回通知器名称
func (fn *FeishuNotifier) Name() string {
	return "Feishu"
}

// Send 发送通知
func (fn *FeishuNotifier) Send(evt *event.Event) error {
	payload := map[string]interface{}{
		"msg_type": "text",
		"content": map[string]string{
			"text": FormatMessage(evt),
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", fn.webhook, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := fn.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("飞书 API 返回错误: %d", resp.StatusCode)
	}

	return nil
}
