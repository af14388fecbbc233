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

// WeChatWorkNotifier 企业微信通知器
type WeChatWorkNotifier struct {
	webhook string
	client  *http.Client
}

// NewWeChatWorkNotifier 创建企业微信通知器
func NewWeChatWorkNotifier(cfg *config.Config) (*WeChatWorkNotifier, error) {
	if cfg.Notifications.WeChatWork.Webhook == "" {
		return nil, fmt.Errorf("企业微信 Webhook URL 未配置")
	}

	return &WeChatWorkNotifier{
		webhook: cfg.Notifications.WeChatWork.Webhook,
		client: &http.Client{
			Timeout: 3 * time.Second,
		},
	}, nil
}

// Name 返回通知器名称
func (wn *WeChatWorkNotifier) Name() string {
	return "WeChatWork"
}

// Send 发送通知
func (wn *WeChatWorkNotifier) Send(evt *event.Event) error {
	payload := map[string]interface{}{
		"msgtype": "text",
		"text": map[string]string{
			"content": FormatMessage(evt),
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", wn.webhook, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := wn.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("企业微信 API 返回错误: %d", resp.StatusCode)
	}

	return nil
}
