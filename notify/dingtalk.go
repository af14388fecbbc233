package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"bondrotor/config"
	"bondrotor/event"
)

// DingTalkNotifier 钉钉通知器
type DingTalkNotifier struct {
	webhook string
	secret  string
	client  *http.Client
}

// NewDingTalkNotifier 创建钉钉通知器
func NewDingTalkNotifier(cfg *config.Config) (*DingTalkNotifier, error) {
	if cfg.Notifications.DingTalk.Webhook == "" {
		return nil, fmt.Errorf("钉钉 Webhook URL 未配置")
	}

	return &DingTalkNotifier{
		webhook: cfg.Notifications.DingTalk.Webhook,
		secret:  cfg.Notifications.DingTalk.Secret,
		client: &http.Client{
			Timeout: 3 * time.Second,
		},
	}, nil
}

// Name 返回通知器名称
func (dn *DingTalkNotifier) Name() string {
	return "DingTalk"
}

// Send 发送通知
func (dn *DingTalkNotifier) Send(evt *event.Event) error {
	// 配置了加签密钥时需要附加签名参数
	requestURL := dn.webhook
	if dn.secret != "" {
		timestamp := time.Now().UnixNano() / 1e6 // 毫秒时间戳
		sign := dn.generateSign(timestamp)
		requestURL = fmt.Sprintf("%s&timestamp=%d&sign=%s", dn.webhook, timestamp, sign)
	}

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

	req, err := http.NewRequestWithContext(ctx, "POST", requestURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := dn.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("钉钉 API 返回错误: %d", resp.StatusCode)
	}

	return nil
}

// generateSign 生成钉钉签名
func (dn *DingTalkNotifier) generateSign(timestamp int64) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, dn.secret)
	h := hmac.New(sha256.New, []byte(dn.secret))
	h.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
