// Package timerange 负责回测时间窗口的解析与校验：把用户输入的日期
// 字符串转成毫秒时间戳，并对照数据可用区间给出结论。
package timerange

import (
	"fmt"
	"strings"
	"time"
)

const (
	layoutDate     = "2006-01-02"
	layoutDateTime = "2006-01-02 15:04:05"
)

// Verdict 表达一次窗口校验的结论。非法时只有 Error，合法但越出数据
// 区间时只有 Warning，两者不会同时出现。
type Verdict struct {
	IsValid bool   `json:"is_valid"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

func invalid(msg string) Verdict { return Verdict{IsValid: false, Error: msg} }

// ParseDate 解析 YYYY-MM-DD 或 YYYY-MM-DD HH:MM:SS（按 UTC），返回
// Unix 毫秒。格式不匹配时返回错误。
func ParseDate(text string) (int64, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, fmt.Errorf("日期为空")
	}
	layout := layoutDate
	if strings.ContainsRune(trimmed, ' ') {
		layout = layoutDateTime
	}
	t, err := time.ParseInLocation(layout, trimmed, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("无法解析日期 %q: %w", text, err)
	}
	return t.UnixMilli(), nil
}

// FormatTimestamp 将 Unix 毫秒渲染为 YYYY-MM-DD HH:MM:SS（UTC）。与
// ParseDate 往返时日期部分保持一致。
func FormatTimestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(layoutDateTime)
}

// FormatDate 只渲染日期部分。
func FormatDate(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(layoutDate)
}

// Validate 校验 [start, end] 请求窗口与数据可用窗口 [dataStart, dataEnd]
// 的关系。start/end 允许为空串（表示该端不约束）；解析失败的输入会以
// error 形式返回，不折叠进 Verdict。
func Validate(start, end string, dataStart, dataEnd int64) (Verdict, error) {
	hasStart := strings.TrimSpace(start) != ""
	hasEnd := strings.TrimSpace(end) != ""
	if !hasStart && !hasEnd {
		return Verdict{IsValid: true}, nil
	}

	var startTS, endTS int64
	var err error
	if hasStart {
		if startTS, err = ParseDate(start); err != nil {
			return Verdict{}, err
		}
	}
	if hasEnd {
		if endTS, err = ParseDate(end); err != nil {
			return Verdict{}, err
		}
	}

	// 窗口自身非法：与数据区间无关，先行判定。
	if hasStart && hasEnd && startTS > endTS {
		return invalid(fmt.Sprintf("时间范围无效：开始时间 %s 晚于结束时间 %s", start, end)), nil
	}

	// 完全不相交。
	if hasEnd && endTS < dataStart {
		return invalid(fmt.Sprintf("请求区间与数据区间不相交：结束时间早于数据起点 %s", FormatDate(dataStart))), nil
	}
	if hasStart && startTS > dataEnd {
		return invalid(fmt.Sprintf("请求区间与数据区间不相交：开始时间晚于数据终点 %s", FormatDate(dataEnd))), nil
	}

	var warnings []string
	if hasStart && startTS < dataStart {
		warnings = append(warnings, fmt.Sprintf("开始时间早于数据起点 %s，将从数据起点开始", FormatDate(dataStart)))
	}
	if hasEnd && endTS > dataEnd {
		warnings = append(warnings, fmt.Sprintf("结束时间晚于数据终点 %s，将在数据终点截止", FormatDate(dataEnd)))
	}
	return Verdict{IsValid: true, Warning: strings.Join(warnings, "；")}, nil
}
