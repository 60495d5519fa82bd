package app

import (
	"context"
	"fmt"
	"time"

	"backview/internal/backtest"
	bvcfg "backview/internal/config"
	"backview/internal/datasets"
	"backview/internal/logger"
)

// AppBuilder 按配置装配存储、数据源、任务服务与 HTTP 接口。
type AppBuilder struct {
	cfg *bvcfg.Config

	storeFn    func(bvcfg.DataConfig) (*backtest.Store, error)
	tasksFn    func(bvcfg.DataConfig) (*backtest.TaskStore, error)
	sourcesFn  func(*bvcfg.Config) (map[string]backtest.CandleSource, error)
	registryFn func(bvcfg.DatasetsConfig) (*datasets.Registry, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *bvcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		storeFn:    buildStore,
		tasksFn:    buildTaskStore,
		sourcesFn:  buildSources,
		registryFn: buildRegistry,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithSources 覆盖数据源装配（测试用）。
func WithSources(fn func(*bvcfg.Config) (map[string]backtest.CandleSource, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.sourcesFn = fn }
}

// Build 完成全部装配，返回可 Run 的 App。
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b == nil || b.cfg == nil {
		return nil, fmt.Errorf("nil builder/config")
	}
	cfg := b.cfg

	store, err := b.storeFn(cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("初始化 K 线库失败: %w", err)
	}
	taskStore, err := b.tasksFn(cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("初始化任务库失败: %w", err)
	}
	sources, err := b.sourcesFn(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := backtest.NewService(backtest.ServiceConfig{
		Store:           store,
		Tasks:           taskStore,
		Sources:         sources,
		DefaultExchange: cfg.Fetch.DefaultExchange,
		RateLimitPerMin: cfg.Fetch.RateLimitPerMin,
		MaxBatch:        cfg.Fetch.MaxBatch,
		MaxConcurrent:   cfg.Fetch.MaxConcurrent,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化任务服务失败: %w", err)
	}
	svc.SetContext(ctx)

	registry, err := b.registryFn(cfg.Datasets)
	if err != nil {
		return nil, err
	}

	httpSrv, err := backtest.NewHTTPServer(backtest.HTTPConfig{
		Addr:     cfg.Server.Addr,
		Svc:      svc,
		Registry: registry,
		Snapshot: cfg.Chart.Snapshot,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	return &App{
		cfg:       cfg,
		store:     store,
		taskStore: taskStore,
		svc:       svc,
		httpSrv:   httpSrv,
	}, nil
}

func buildStore(cfg bvcfg.DataConfig) (*backtest.Store, error) {
	return backtest.NewStore(cfg.Root)
}

func buildTaskStore(cfg bvcfg.DataConfig) (*backtest.TaskStore, error) {
	return backtest.NewTaskStore(cfg.TasksDB)
}

func buildSources(cfg *bvcfg.Config) (map[string]backtest.CandleSource, error) {
	sources := make(map[string]backtest.CandleSource)
	if cfg.Binance.Enabled {
		src := backtest.NewBinanceSource(cfg.Binance)
		sources[src.Name()] = src
	}
	if cfg.Upstream.Enabled {
		src, err := backtest.NewRemoteSource(cfg.Upstream)
		if err != nil {
			return nil, err
		}
		sources[src.Name()] = src
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("没有启用任何数据源")
	}
	return sources, nil
}

func buildRegistry(cfg bvcfg.DatasetsConfig) (*datasets.Registry, error) {
	if cfg.Path == "" {
		return nil, nil // 清单可选
	}
	started := time.Now()
	registry, err := datasets.NewRegistry(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("加载数据集清单失败: %w", err)
	}
	logger.Debugf("datasets registry ready in %s", time.Since(started))
	return registry, nil
}
