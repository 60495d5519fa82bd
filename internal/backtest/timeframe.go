package backtest

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe 描述回测使用的周期信息（内部 duration + 数据源 interval）。
type Timeframe struct {
	Key            string
	Duration       time.Duration
	SourceInterval string
}

// timeframeTable 按从小到大排列，SupportedTimeframes 直接沿用这个顺序。
var timeframeTable = []Timeframe{
	{Key: "1m", Duration: time.Minute, SourceInterval: "1m"},
	{Key: "5m", Duration: 5 * time.Minute, SourceInterval: "5m"},
	{Key: "15m", Duration: 15 * time.Minute, SourceInterval: "15m"},
	{Key: "30m", Duration: 30 * time.Minute, SourceInterval: "30m"},
	{Key: "1h", Duration: time.Hour, SourceInterval: "1h"},
	{Key: "4h", Duration: 4 * time.Hour, SourceInterval: "4h"},
	{Key: "1d", Duration: 24 * time.Hour, SourceInterval: "1d"},
}

var timeframesByKey = func() map[string]Timeframe {
	m := make(map[string]Timeframe, len(timeframeTable))
	for _, tf := range timeframeTable {
		m[tf.Key] = tf
	}
	return m
}()

// ParseTimeframe 返回标准化周期定义，输入大小写与首尾空白不敏感。
func ParseTimeframe(input string) (Timeframe, error) {
	tf, ok := timeframesByKey[strings.ToLower(strings.TrimSpace(input))]
	if !ok {
		return Timeframe{}, fmt.Errorf("不支持的周期: %s", input)
	}
	return tf, nil
}

// SupportedTimeframes 返回所有支持的周期 key，从小到大。
func SupportedTimeframes() []string {
	keys := make([]string, len(timeframeTable))
	for i, tf := range timeframeTable {
		keys[i] = tf.Key
	}
	return keys
}

func (tf Timeframe) durationMillis() int64 {
	return tf.Duration.Milliseconds()
}

// AlignRange 将输入的毫秒时间对齐到周期网格，保证 start<=end。
func (tf Timeframe) AlignRange(start, end int64) (int64, int64) {
	if end < start {
		start, end = end, start
	}
	step := tf.durationMillis()
	alignedStart := alignDown(start, step)
	alignedEnd := alignDown(end, step)
	if alignedEnd < alignedStart {
		alignedEnd = alignedStart
	}
	return alignedStart, alignedEnd
}

// ExpectedCandles 计算 start~end（含两端）区间对应的网格 K 线数量。
func (tf Timeframe) ExpectedCandles(start, end int64) int64 {
	if end < start {
		return 0
	}
	step := tf.durationMillis()
	if step == 0 {
		return 0
	}
	return (end-start)/step + 1
}

func alignDown(ts, step int64) int64 {
	if step <= 0 {
		return ts
	}
	rem := ts % step
	if rem < 0 {
		rem += step
	}
	return ts - rem
}
