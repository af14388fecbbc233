package qmt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// QuoteData 行情数据（腾讯行情接口）
type QuoteData struct {
	Code      string
	Name      string
	LastPrice float64
	LastClose float64
	Open      float64
	High      float64
	Low       float64
	Volume    int64
}

// QuoteClient 腾讯行情客户端
// 接口形如 GET http://qt.gtimg.cn/q=sz123045，返回 ~ 分隔的字段串
type QuoteClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewQuoteClient 创建行情客户端
func NewQuoteClient(baseURL string, timeout time.Duration) *QuoteClient {
	return &QuoteClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// marketPrefix 根据代码推断市场前缀：11 开头上交所，12 开头深交所
func marketPrefix(code string) (string, error) {
	switch {
	case strings.HasPrefix(code, "11"):
		return "sh", nil
	case strings.HasPrefix(code, "12"):
		return "sz", nil
	default:
		return "", fmt.Errorf("无法识别市场: %s", code)
	}
}

// GetQuote 获取单只证券的行情快照
func (c *QuoteClient) GetQuote(ctx context.Context, code string) (*QuoteData, error) {
	prefix, err := marketPrefix(code)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/q=%s%s", c.baseURL, prefix, code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("构造行情请求失败: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("行情请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取行情响应失败: %v", err)
	}

	return parseQuote(code, string(body))
}

// parseQuote 解析腾讯行情响应
// 格式: v_sz123045="51~名称~123045~最新价~昨收~今开~...";
func parseQuote(code, body string) (*QuoteData, error) {
	start := strings.IndexByte(body, '"')
	end := strings.LastIndexByte(body, '"')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("行情响应格式无效: %s", body)
	}

	fields := strings.Split(body[start+1:end], "~")
	if len(fields) < 35 {
		return nil, fmt.Errorf("行情字段不足: %d", len(fields))
	}

	q := &QuoteData{
		Code:      code,
		Name:      fields[1],
		LastPrice: parseFloat(fields[3]),
		LastClose: parseFloat(fields[4]),
		Open:      parseFloat(fields[5]),
		High:      parseFloat(fields[33]),
		Low:       parseFloat(fields[34]),
	}
	if len(fields) > 36 {
		q.Volume = parseInt(fields[36])
	}

	if q.LastPrice <= 0 {
		return nil, fmt.Errorf("未取到有效价格: %s", code)
	}
	return q, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v
}
