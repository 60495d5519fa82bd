package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backview/internal/apiclient"
	"backview/internal/config"
	"backview/internal/market"
)

// RemoteSource 把另一个 backview 实例（或兼容 API）当作数据源，
// 走统一的 apiclient 请求通道。
type RemoteSource struct {
	client *apiclient.Client
}

func NewRemoteSource(cfg config.UpstreamConfig) (*RemoteSource, error) {
	client, err := apiclient.New(apiclient.Config{
		BaseURL: cfg.BaseURL,
		Prefix:  cfg.Prefix,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("upstream source: %w", err)
	}
	return &RemoteSource{client: client}, nil
}

func (r *RemoteSource) Name() string { return "upstream" }

func (r *RemoteSource) Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error) {
	if req.Symbol == "" || req.Interval == "" {
		return nil, fmt.Errorf("symbol/interval 不能为空")
	}
	var start, end any
	if req.Start > 0 {
		start = req.Start
	}
	if req.End > 0 {
		end = req.End
	}
	var limit any
	if req.Limit > 0 {
		limit = req.Limit
	}
	qs := apiclient.BuildQueryString([]apiclient.Param{
		apiclient.P("symbol", req.Symbol),
		apiclient.P("timeframe", req.Interval),
		apiclient.P("start_ts", start),
		apiclient.P("end_ts", end),
		apiclient.P("limit", limit),
	})
	raw, err := r.client.Get(ctx, "/backtest/candles"+qs, nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Candles []market.Candle `json:"candles"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("解析 upstream 响应失败: %w", err)
	}
	return payload.Candles, nil
}
