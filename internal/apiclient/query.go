package apiclient

import (
	"fmt"
	"net/url"
	"strings"
)

// Param 查询参数键值对；Value 为 nil 时整个条目被丢弃。
type Param struct {
	Key   string
	Value any
}

// P 是 Param 的简写构造。
func P(key string, value any) Param { return Param{Key: key, Value: value} }

// BuildQueryString 把参数渲染为带前导 ? 的查询串，保持传入顺序，
// 过滤掉 Value 为 nil 的条目；全部被过滤时返回空串而不是 "?"。
func BuildQueryString(params []Param) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.Value == nil || p.Key == "" {
			continue
		}
		parts = append(parts, url.QueryEscape(p.Key)+"="+url.QueryEscape(fmt.Sprint(p.Value)))
	}
	if len(parts) == 0 {
		return ""
	}
	return "?" + strings.Join(parts, "&")
}
