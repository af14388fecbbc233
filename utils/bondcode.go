package utils

import (
	"fmt"
	"strings"
)

// 可转债代码规则：11 开头为上交所，12 开头为深交所

// IsConvertibleBond 判断证券代码是否为可转债
func IsConvertibleBond(code string) bool {
	code = BareCode(code)
	if len(code) != 6 {
		return false
	}
	return strings.HasPrefix(code, "11") || strings.HasPrefix(code, "12")
}

// BareCode 去掉市场后缀，返回 6 位纯代码
func BareCode(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.IndexByte(code, '.'); i >= 0 {
		code = code[:i]
	}
	return code
}

// NormalizeBondCode 补全市场后缀（113027 -> 113027.SH，123045 -> 123045.SZ）
func NormalizeBondCode(code string) (string, error) {
	bare := BareCode(code)
	if len(bare) != 6 {
		return "", fmt.Errorf("无效的证券代码: %s", code)
	}
	switch {
	case strings.HasPrefix(bare, "11"):
		return bare + ".SH", nil
	case strings.HasPrefix(bare, "12"):
		return bare + ".SZ", nil
	default:
		return "", fmt.Errorf("非可转债代码: %s", code)
	}
}
