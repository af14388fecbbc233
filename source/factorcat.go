package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"bondrotor/logger"
	"bondrotor/metrics"
	"bondrotor/utils"
)

// FactorCatClient 策略平台客户端
// 认证采用 Bearer Token，登录后由调度器定期刷新
type FactorCatClient struct {
	baseURL    string
	username   string
	password   string
	pageSize   int
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// NewFactorCatClient 创建策略平台客户端
func NewFactorCatClient(baseURL, username, password string, pageSize int, timeout time.Duration) *FactorCatClient {
	return &FactorCatClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		pageSize: pageSize,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// loginResult 登录结果
type loginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
}

// Login 登录并缓存令牌
func (c *FactorCatClient) Login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return NewSourceError("login", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NewSourceError("login", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return NewSourceError("login", fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body)))
	}

	var result loginResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return NewSourceError("login", fmt.Errorf("解析登录响应失败: %v", err))
	}
	if result.AccessToken == "" {
		return NewSourceError("login", fmt.Errorf("登录响应缺少令牌"))
	}

	c.mu.Lock()
	c.accessToken = result.AccessToken
	c.mu.Unlock()

	logger.Info("✅ [策略平台] 登录成功: %s", result.Username)
	return nil
}

// RefreshToken 刷新令牌（重新登录即可）
func (c *FactorCatClient) RefreshToken(ctx context.Context) error {
	return c.Login(ctx)
}

// token 读取当前令牌
func (c *FactorCatClient) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// doGet 带认证的 GET 请求，401 时自动重新登录一次
func (c *FactorCatClient) doGet(ctx context.Context, path string, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out, true)
}

// doJSON 执行 JSON 请求
func (c *FactorCatClient) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}, retryAuth bool) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	// 指标里的 endpoint 去掉查询参数，避免标签基数膨胀
	endpoint := path
	if idx := strings.IndexByte(endpoint, '?'); idx >= 0 {
		endpoint = endpoint[:idx]
	}
	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.GetPrometheusMetrics().RecordSourceCall(endpoint, "error", time.Since(started))
		return err
	}
	defer resp.Body.Close()
	metrics.GetPrometheusMetrics().RecordSourceCall(endpoint, resp.Status, time.Since(started))

	if resp.StatusCode == http.StatusUnauthorized && retryAuth {
		logger.Warn("⚠️ [策略平台] 令牌失效，尝试重新登录...")
		if err := c.Login(ctx); err != nil {
			return err
		}
		return c.doJSON(ctx, method, path, body, out, false)
	}

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("解析响应失败: %v", err)
		}
	}
	return nil
}

// pagedStrategies 策略分页响应
type pagedStrategies struct {
	Items []*StrategyInfo `json:"items"`
	Total int             `json:"total"`
}

// GetStrategies 获取全部策略（自动翻页）
func (c *FactorCatClient) GetStrategies(ctx context.Context) ([]*StrategyInfo, error) {
	var all []*StrategyInfo
	for page := 1; ; page++ {
		var result pagedStrategies
		path := fmt.Sprintf("/strategies/?page=%d&page_size=%d", page, c.pageSize)
		if err := c.doGet(ctx, path, &result); err != nil {
			return nil, NewSourceError("get_strategies", err)
		}
		all = append(all, result.Items...)
		if len(all) >= result.Total || len(result.Items) == 0 {
			break
		}
	}
	return all, nil
}

// GetHistories 获取策略的回测历史
func (c *FactorCatClient) GetHistories(ctx context.Context, strategyID int) ([]*BacktestHistory, error) {
	var result struct {
		Items []*BacktestHistory `json:"items"`
	}
	path := fmt.Sprintf("/strategies/%d/histories", strategyID)
	if err := c.doGet(ctx, path, &result); err != nil {
		return nil, NewSourceError("get_histories", err)
	}
	return result.Items, nil
}

// selectionRequest 当日选债请求
type selectionRequest struct {
	StrategyID int    `json:"strategy_id"`
	TradeDate  string `json:"trade_date"`
}

// selectedBond 选债结果条目
type selectedBond struct {
	KzzCode       string   `json:"kzz_code"`
	Name          string   `json:"name"`
	TakeProfitPct *float64 `json:"take_profit_pct"`
	StopLossPct   *float64 `json:"stop_loss_pct"`
}

// selectionResult 当日选债响应
type selectionResult struct {
	SelectedBonds []*selectedBond `json:"selected_bonds"`
	TradeDate     string          `json:"trade_date"`
}

// GetTargetList 获取指定策略当日的目标持仓列表
// 非可转债代码会被过滤并告警
func (c *FactorCatClient) GetTargetList(ctx context.Context, strategyID int, asOfDate string) ([]*TargetEntry, error) {
	req := &selectionRequest{StrategyID: strategyID, TradeDate: asOfDate}

	var result selectionResult
	if err := c.doJSON(ctx, http.MethodPost, "/bond-selection/today-bond-selection", req, &result, true); err != nil {
		return nil, NewSourceError("get_target_list", err)
	}

	entries := make([]*TargetEntry, 0, len(result.SelectedBonds))
	for _, bond := range result.SelectedBonds {
		code := utils.BareCode(bond.KzzCode)
		if !utils.IsConvertibleBond(code) {
			logger.Warn("⚠️ [策略平台] 忽略非可转债代码: %s", bond.KzzCode)
			continue
		}
		entries = append(entries, &TargetEntry{
			InstrumentID:  code,
			Name:          bond.Name,
			TakeProfitPct: bond.TakeProfitPct,
			StopLossPct:   bond.StopLossPct,
		})
	}

	logger.Info("📊 [策略平台] 策略 %d 当日目标 %d 只", strategyID, len(entries))
	return entries, nil
}
