package qmt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// 腾讯行情接口的真实响应样例（截断到测试所需字段）
const sampleQuoteBody = `v_sz123045="51~九洲转2~123045~115.500~114.800~115.000~12345~0~0~115.49~1~115.48~2~115.47~3~115.46~4~115.45~5~115.51~1~115.52~2~115.53~3~115.54~4~115.55~5~~20240510150000~0.70~0.61~116.20~114.50~115.50/12345/142000000~12345~14200~0.52~-1.23~~116.20~114.50~1.47~27.42~27.42~0~0~0~0~0~0~0~0~0~0~0~";`

func TestParseQuote(t *testing.T) {
	q, err := parseQuote("123045", sampleQuoteBody)
	if err != nil {
		t.Fatalf("解析行情失败: %v", err)
	}

	if q.Name != "九洲转2" {
		t.Errorf("期望名称 九洲转2, 得到 %s", q.Name)
	}
	if q.LastPrice != 115.5 {
		t.Errorf("期望最新价 115.5, 得到 %.3f", q.LastPrice)
	}
	if q.LastClose != 114.8 {
		t.Errorf("期望昨收 114.8, 得到 %.3f", q.LastClose)
	}
	if q.Open != 115.0 {
		t.Errorf("期望今开 115.0, 得到 %.3f", q.Open)
	}

	t.Log("✅ 行情解析测试通过")
}

func TestParseQuoteInvalid(t *testing.T) {
	if _, err := parseQuote("123045", "v_pv_none_match"); err == nil {
		t.Error("无引号的响应应该报错")
	}
	if _, err := parseQuote("123045", `v_sz123045="1~2~3";`); err == nil {
		t.Error("字段不足应该报错")
	}

	t.Log("✅ 异常行情响应测试通过")
}

func TestMarketPrefix(t *testing.T) {
	cases := []struct {
		code   string
		prefix string
		ok     bool
	}{
		{"113027", "sh", true},
		{"123045", "sz", true},
		{"600000", "", false},
	}

	for _, c := range cases {
		prefix, err := marketPrefix(c.code)
		if c.ok && (err != nil || prefix != c.prefix) {
			t.Errorf("marketPrefix(%s) = %s, %v; 期望 %s", c.code, prefix, err, c.prefix)
		}
		if !c.ok && err == nil {
			t.Errorf("marketPrefix(%s) 应该报错", c.code)
		}
	}
}

func TestQuoteClientGetQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			t.Errorf("意外的查询参数: %s", r.URL.RawQuery)
		}
		w.Write([]byte(sampleQuoteBody))
	}))
	defer server.Close()

	client := NewQuoteClient(server.URL, 3*time.Second)
	q, err := client.GetQuote(context.Background(), "123045")
	if err != nil {
		t.Fatalf("获取行情失败: %v", err)
	}
	if q.LastPrice != 115.5 {
		t.Errorf("期望最新价 115.5, 得到 %.3f", q.LastPrice)
	}

	t.Log("✅ 行情客户端测试通过")
}
