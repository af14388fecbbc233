package web

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	bri18n "bondrotor/i18n"
	"bondrotor/logger"
)

// apiKeyMiddleware API 密钥认证
// 密钥为空时放行（单机内网部署场景）；支持 Header 和 query 两种携带方式
func apiKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		provided := c.GetHeader("X-API-Key")
		if provided == "" {
			provided = c.Query("api_key")
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			respondError(c, http.StatusUnauthorized, "error.unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GinLoggerMiddleware 请求日志中间件
// logAll=true 时全量输出；否则仅记录错误请求（状态码 >= 400）
func GinLoggerMiddleware(logAll bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		statusCode := c.Writer.Status()
		if !logAll && statusCode < 400 {
			return
		}

		latency := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}
		logger.WriteWebLog(fmt.Sprintf("[GIN] %d | %v | %s | %-7s %s",
			statusCode, latency, c.ClientIP(), c.Request.Method, path))
	}
}

// I18nMiddleware 解析 Accept-Language 头并设置到上下文
func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("language", parseAcceptLanguage(c.GetHeader("Accept-Language")))
		c.Next()
	}
}

// parseAcceptLanguage 解析 Accept-Language 头
// 示例: "zh-CN,zh;q=0.9,en;q=0.8" -> "zh-CN"
func parseAcceptLanguage(acceptLang string) string {
	if acceptLang == "" {
		return "zh-CN"
	}
	first := strings.TrimSpace(strings.SplitN(acceptLang, ",", 2)[0])
	if idx := strings.Index(first, ";"); idx != -1 {
		first = first[:idx]
	}
	switch {
	case strings.HasPrefix(strings.ToLower(first), "en"):
		return "en-US"
	default:
		return "zh-CN"
	}
}

// T 翻译消息（取请求语言）
func T(c *gin.Context, key string) string {
	lang := "zh-CN"
	if v, exists := c.Get("language"); exists {
		if l, ok := v.(string); ok {
			lang = l
		}
	}
	return bri18n.TWithLang(lang, key)
}

func respondError(c *gin.Context, status int, msgKey string, details ...string) {
	body := gin.H{"error": T(c, msgKey)}
	if len(details) > 0 {
		body["detail"] = strings.Join(details, "; ")
	}
	c.JSON(status, body)
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}
