package backtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"backview/internal/chart"
	"backview/internal/datasets"
	"backview/internal/market"

	"github.com/gin-gonic/gin"
)

// HTTPServer 提供 Gin 接口，供前端校验窗口、触发拉取、查询数据与图表。
type HTTPServer struct {
	addr     string
	svc      *Service
	registry *datasets.Registry
	snapshot bool
	router   *gin.Engine
}

type HTTPConfig struct {
	Addr     string
	Svc      *Service
	Registry *datasets.Registry
	// Snapshot 开启 /chart.png（需要本机 headless Chrome）。
	Snapshot bool
}

func NewHTTPServer(cfg HTTPConfig) (*HTTPServer, error) {
	if cfg.Svc == nil {
		return nil, errors.New("service 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &HTTPServer{
		addr:     cfg.Addr,
		svc:      cfg.Svc,
		registry: cfg.Registry,
		snapshot: cfg.Snapshot,
		router:   router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *HTTPServer) registerRoutes() {
	api := s.router.Group("/api/backtest")
	api.POST("/validate", s.handleValidate)
	api.POST("/tasks", s.handleTaskSubmit)
	api.GET("/tasks", s.handleTaskList)
	api.GET("/tasks/:id", s.handleTaskStatus)
	api.GET("/window", s.handleWindow)
	api.GET("/candles", s.handleCandles)
	api.GET("/timeframes", s.handleTimeframes)
	api.GET("/datasets", s.handleDatasets)
	api.POST("/datasets/:id/import", s.handleDatasetImport)
	api.GET("/chart", s.handleChart)
	api.GET("/chart.png", s.handleChartPNG)
}

func (s *HTTPServer) handleValidate(c *gin.Context) {
	var req struct {
		Symbol    string `json:"symbol" binding:"required"`
		Timeframe string `json:"timeframe" binding:"required"`
		Start     string `json:"start"`
		End       string `json:"end"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	verdict, err := s.svc.ValidateWindow(c.Request.Context(), req.Symbol, req.Timeframe, req.Start, req.End)
	if err != nil {
		// 解析失败等输入错误；窗口冲突不会走到这里，它在 verdict 里。
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"verdict": verdict})
}

func (s *HTTPServer) handleTaskSubmit(c *gin.Context) {
	var req FetchParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := s.svc.SubmitFetch(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task": task})
}

func (s *HTTPServer) handleTaskStatus(c *gin.Context) {
	id := c.Param("id")
	task, ok := s.svc.TaskSnapshot(c.Request.Context(), id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

func (s *HTTPServer) handleTaskList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	c.JSON(http.StatusOK, gin.H{"tasks": s.svc.TasksSnapshot(c.Request.Context(), limit)})
}

func (s *HTTPServer) handleWindow(c *gin.Context) {
	symbol := c.Query("symbol")
	tf := c.Query("timeframe")
	if symbol == "" || tf == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/timeframe 必填"})
		return
	}
	w, err := s.svc.Store().Window(c.Request.Context(), symbol, tf)
	if err == ErrNoData {
		c.JSON(http.StatusNotFound, gin.H{"error": "暂无数据"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"window": w})
}

func (s *HTTPServer) handleCandles(c *gin.Context) {
	candles, _, ok := s.queryCandles(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"candles": candles,
		"stats":   market.Candles(candles).Stats(),
	})
}

func (s *HTTPServer) handleTimeframes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"timeframes": SupportedTimeframes()})
}

func (s *HTTPServer) handleDatasets(c *gin.Context) {
	if s.registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "数据集清单未启用"})
		return
	}
	snap := s.registry.Snapshot()
	list := make([]datasets.Dataset, 0, len(snap.Datasets))
	for _, id := range s.registry.IDs() {
		list = append(list, snap.Datasets[id])
	}
	c.JSON(http.StatusOK, gin.H{"datasets": list, "version": snap.Version})
}

func (s *HTTPServer) handleDatasetImport(c *gin.Context) {
	if s.registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "数据集清单未启用"})
		return
	}
	ds, ok := s.registry.Dataset(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
		return
	}
	results := make([]CSVImportResult, 0, len(ds.Files))
	for _, file := range ds.Files {
		res, err := ImportCSV(c.Request.Context(), s.svc.Store(), ds.Symbol, ds.Timeframe, file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", file, err), "imported": results})
			return
		}
		results = append(results, res)
	}
	c.JSON(http.StatusOK, gin.H{"imported": results})
}

func (s *HTTPServer) handleChart(c *gin.Context) {
	html, ok := s.buildChart(c)
	if !ok {
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (s *HTTPServer) handleChartPNG(c *gin.Context) {
	if !s.snapshot {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "图表截图未启用"})
		return
	}
	html, ok := s.buildChart(c)
	if !ok {
		return
	}
	png, err := chart.RenderPNG(c.Request.Context(), html)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *HTTPServer) buildChart(c *gin.Context) ([]byte, bool) {
	candles, tf, ok := s.queryCandles(c)
	if !ok {
		return nil, false
	}
	html, err := chart.BuildHTML(chart.Input{
		Symbol:    c.Query("symbol"),
		Timeframe: tf,
		Candles:   candles,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return html, true
}

func (s *HTTPServer) queryCandles(c *gin.Context) ([]market.Candle, string, bool) {
	symbol := c.Query("symbol")
	tf := c.Query("timeframe")
	if symbol == "" || tf == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/timeframe 必填"})
		return nil, "", false
	}
	start, _ := strconv.ParseInt(c.Query("start_ts"), 10, 64)
	end, _ := strconv.ParseInt(c.Query("end_ts"), 10, 64)
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit 非法"})
		return nil, "", false
	}
	candles, err := s.svc.Store().QueryCandles(c.Request.Context(), symbol, tf, start, end, limit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, "", false
	}
	return candles, tf, true
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *HTTPServer) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Router 暴露底层路由（测试用）。
func (s *HTTPServer) Router() http.Handler { return s.router }
