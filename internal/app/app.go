package app

import (
	"context"
	"fmt"

	"backview/internal/backtest"
	bvcfg "backview/internal/config"
	"backview/internal/logger"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务。
type App struct {
	cfg       *bvcfg.Config
	store     *backtest.Store
	taskStore *backtest.TaskStore
	svc       *backtest.Service
	httpSrv   *backtest.HTTPServer
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *bvcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动服务，阻塞直到 ctx 取消或出错。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	a.svc.SetContext(ctx)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("HTTP 服务监听 %s", a.cfg.Server.Addr)
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	err := group.Wait()
	a.close()
	return err
}

func (a *App) close() {
	if a.taskStore != nil {
		if err := a.taskStore.Close(); err != nil {
			logger.Warnf("关闭任务库失败: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("关闭 K 线库失败: %v", err)
		}
	}
}

// Service 暴露任务服务实例（测试/回放用）。
func (a *App) Service() *backtest.Service {
	if a == nil {
		return nil
	}
	return a.svc
}
