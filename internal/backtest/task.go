package backtest

import (
	"time"

	"backview/internal/timerange"
)

const (
	TaskStatusPending = "pending"
	TaskStatusRunning = "running"
	TaskStatusDone    = "done"
	TaskStatusFailed  = "failed"
)

// FetchParams HTTP 提交的拉取参数；Start/End 为日期串
// （YYYY-MM-DD 或 YYYY-MM-DD HH:MM:SS），End 为空表示拉到当前。
type FetchParams struct {
	Exchange  string `json:"exchange"`
	Symbol    string `json:"symbol" binding:"required"`
	Timeframe string `json:"timeframe" binding:"required"`
	Start     string `json:"start" binding:"required"`
	End       string `json:"end"`
}

// Task 一次 K 线拉取任务。Verdict 记录提交时请求窗口与已有数据
// 窗口的对照结论，供前端提示。
type Task struct {
	ID          string            `json:"id"`
	Exchange    string            `json:"exchange"`
	Symbol      string            `json:"symbol"`
	Timeframe   string            `json:"timeframe"`
	StartTS     int64             `json:"start_ts"`
	EndTS       int64             `json:"end_ts"`
	Status      string            `json:"status"`
	Expected    int64             `json:"expected"`
	Fetched     int64             `json:"fetched"`
	Message     string            `json:"message,omitempty"`
	Verdict     timerange.Verdict `json:"verdict"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt time.Time         `json:"completed_at,omitzero"`
}
