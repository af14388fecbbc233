package notify

import (
	"fmt"
	"strings"

	"bondrotor/event"
)

// 消息字段的展示顺序与中文标签
var fieldOrder = []struct {
	key   string
	label string
}{
	{"name", "名称"},
	{"instrument", "代码"},
	{"side", "方向"},
	{"quantity", "数量"},
	{"price", "价格"},
	{"pnl_pct", "盈亏"},
	{"sell_count", "卖出"},
	{"buy_count", "买入"},
	{"filled", "成交"},
	{"failed", "失败"},
	{"count", "数量"},
	{"trigger", "触发方式"},
	{"run_id", "批次"},
	{"reason", "原因"},
	{"error", "错误"},
}

var sideLabels = map[string]string{
	"buy":  "买入",
	"sell": "卖出",
}

// FormatMessage 把事件格式化为各渠道共用的文本消息
func FormatMessage(evt *event.Event) string {
	var sb strings.Builder
	sb.WriteString(event.GetEventTitle(evt.Type))
	sb.WriteString("\n\n时间: ")
	sb.WriteString(evt.Timestamp.Format("2006-01-02 15:04:05"))
	sb.WriteString("\n")

	if len(evt.Data) == 0 {
		return sb.String()
	}

	shown := make(map[string]bool)
	for _, f := range fieldOrder {
		value, ok := evt.Data[f.key]
		if !ok {
			continue
		}
		shown[f.key] = true
		sb.WriteString(fmt.Sprintf("%s: %s\n", f.label, formatValue(f.key, value)))
	}
	// 未知字段附在已知字段之后
	for key, value := range evt.Data {
		if !shown[key] {
			sb.WriteString(fmt.Sprintf("%s: %v\n", key, value))
		}
	}
	return sb.String()
}

func formatValue(key string, value interface{}) string {
	switch key {
	case "side":
		if label, ok := sideLabels[fmt.Sprint(value)]; ok {
			return label
		}
	case "pnl_pct":
		if pct, ok := value.(float64); ok {
			return fmt.Sprintf("%+.2f%%", pct*100)
		}
	case "price":
		if price, ok := value.(float64); ok {
			return fmt.Sprintf("%.3f", price)
		}
	}
	return fmt.Sprint(value)
}
