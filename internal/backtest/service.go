package backtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"backview/internal/logger"
	"backview/internal/timerange"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ServiceConfig 配置 Service。
type ServiceConfig struct {
	Store           *Store
	Tasks           *TaskStore
	Sources         map[string]CandleSource
	DefaultExchange string
	RateLimitPerMin int
	MaxBatch        int
	MaxConcurrent   int
}

// Service 负责任务管理：窗口校验→排队→限速拉取→写库。
type Service struct {
	store           *Store
	taskStore       *TaskStore
	sources         map[string]CandleSource
	defaultExchange string
	maxBatch        int

	limiter *rate.Limiter
	sem     chan struct{}

	mu    sync.RWMutex
	tasks map[string]*Task

	baseCtx context.Context
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store 不能为空")
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("至少需要一个数据源")
	}
	ratePerSec := rate.Limit(float64(cfg.RateLimitPerMin) / 60.0)
	if cfg.RateLimitPerMin <= 0 {
		ratePerSec = 8
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	svc := &Service{
		store:           cfg.Store,
		taskStore:       cfg.Tasks,
		sources:         make(map[string]CandleSource, len(cfg.Sources)),
		defaultExchange: strings.ToLower(cfg.DefaultExchange),
		maxBatch:        maxBatch,
		limiter:         rate.NewLimiter(ratePerSec, 1),
		sem:             make(chan struct{}, maxConcurrent),
		tasks:           make(map[string]*Task),
		baseCtx:         context.Background(),
	}
	for k, v := range cfg.Sources {
		svc.sources[strings.ToLower(k)] = v
	}
	if svc.defaultExchange == "" {
		for k := range svc.sources {
			svc.defaultExchange = k
			break
		}
	}
	return svc, nil
}

// SetContext 注入宿主 ctx，用于任务取消。
func (s *Service) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

// Store 暴露底层 K 线库（图表与查询接口使用）。
func (s *Service) Store() *Store { return s.store }

// ValidateWindow 对照已有数据窗口校验请求窗口；还没有数据时直接放行，
// 解析失败的输入以 error 返回。
func (s *Service) ValidateWindow(ctx context.Context, symbol, tfKey, start, end string) (timerange.Verdict, error) {
	tf, err := ParseTimeframe(tfKey)
	if err != nil {
		return timerange.Verdict{}, err
	}
	w, err := s.store.Window(ctx, symbol, tf.Key)
	if err == ErrNoData {
		// 没有对照基准，只检查窗口自身（借 0~now 的宽区间跳过相交判断）。
		return timerange.Validate(start, end, 0, time.Now().UnixMilli())
	}
	if err != nil {
		return timerange.Verdict{}, err
	}
	return timerange.Validate(start, end, w.Start, w.End)
}

// SubmitFetch 提交拉取任务。窗口先过校验：格式非法直接报错；
// 校验结论随任务保存，前端据此提示。
func (s *Service) SubmitFetch(params FetchParams) (Task, error) {
	if strings.TrimSpace(params.Symbol) == "" {
		return Task{}, fmt.Errorf("symbol 不能为空")
	}
	tf, err := ParseTimeframe(params.Timeframe)
	if err != nil {
		return Task{}, err
	}
	exchange := strings.ToLower(params.Exchange)
	if exchange == "" {
		exchange = s.defaultExchange
	}
	src := s.sources[exchange]
	if src == nil {
		return Task{}, fmt.Errorf("未知数据源: %s", exchange)
	}

	startTS, err := timerange.ParseDate(params.Start)
	if err != nil {
		return Task{}, err
	}
	endTS := time.Now().UnixMilli()
	if strings.TrimSpace(params.End) != "" {
		if endTS, err = timerange.ParseDate(params.End); err != nil {
			return Task{}, err
		}
	}
	if startTS > endTS {
		return Task{}, fmt.Errorf("时间范围无效：开始时间晚于结束时间")
	}
	start, end := tf.AlignRange(startTS, endTS)
	if start == end {
		return Task{}, fmt.Errorf("start 与 end 需要构成区间")
	}

	verdict, err := s.ValidateWindow(s.ctx(), params.Symbol, tf.Key, params.Start, params.End)
	if err != nil {
		return Task{}, err
	}

	now := time.Now()
	task := Task{
		ID:        uuid.NewString(),
		Exchange:  exchange,
		Symbol:    strings.ToUpper(params.Symbol),
		Timeframe: tf.Key,
		StartTS:   start,
		EndTS:     end,
		Status:    TaskStatusPending,
		Expected:  tf.ExpectedCandles(start, end),
		Verdict:   verdict,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.tasks[task.ID] = &task
	s.mu.Unlock()
	s.persist(task, params)

	go s.runFetch(task.ID, src, tf, params)
	return task, nil
}

func (s *Service) runFetch(id string, src CandleSource, tf Timeframe, params FetchParams) {
	ctx := s.ctx()
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		s.finishTask(id, params, ctx.Err())
		return
	}

	task, ok := s.snapshot(id)
	if !ok {
		return
	}
	s.updateTask(id, params, func(t *Task) { t.Status = TaskStatusRunning })

	step := tf.Duration.Milliseconds()
	cursor := task.StartTS
	for cursor <= task.EndTS {
		if err := s.limiter.Wait(ctx); err != nil {
			s.finishTask(id, params, err)
			return
		}
		candles, err := src.Fetch(ctx, FetchRequest{
			Symbol:   task.Symbol,
			Interval: tf.SourceInterval,
			Start:    cursor,
			End:      task.EndTS,
			Limit:    s.maxBatch,
		})
		if err != nil {
			s.finishTask(id, params, err)
			return
		}
		if len(candles) == 0 {
			break
		}
		n, err := s.store.InsertCandles(ctx, task.Symbol, tf.Key, candles)
		if err != nil {
			s.finishTask(id, params, err)
			return
		}
		s.updateTask(id, params, func(t *Task) { t.Fetched += int64(n) })
		last := candles[len(candles)-1].OpenTime
		if last < cursor {
			break // 数据源没有推进，避免死循环
		}
		cursor = last + step
	}
	s.finishTask(id, params, nil)
}

func (s *Service) finishTask(id string, params FetchParams, cause error) {
	s.updateTask(id, params, func(t *Task) {
		t.CompletedAt = time.Now()
		if cause != nil {
			t.Status = TaskStatusFailed
			t.Message = cause.Error()
			logger.Errorf("任务 %s 失败: %v", id, cause)
			return
		}
		t.Status = TaskStatusDone
		logger.Infof("任务 %s 完成：%s@%s 共 %d 根", id, t.Symbol, t.Timeframe, t.Fetched)
	})
}

func (s *Service) updateTask(id string, params FetchParams, fn func(*Task)) {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if ok {
		fn(task)
		task.UpdatedAt = time.Now()
	}
	var copied Task
	if ok {
		copied = *task
	}
	s.mu.Unlock()
	if ok {
		s.persist(copied, params)
	}
}

func (s *Service) persist(task Task, params FetchParams) {
	if s.taskStore == nil {
		return
	}
	if err := s.taskStore.Save(s.ctx(), task, params); err != nil {
		logger.Warnf("任务 %s 落库失败: %v", task.ID, err)
	}
}

func (s *Service) snapshot(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// TaskSnapshot 返回单个任务快照，内存里没有时回查持久层。
func (s *Service) TaskSnapshot(ctx context.Context, id string) (Task, bool) {
	if t, ok := s.snapshot(id); ok {
		return t, true
	}
	if s.taskStore == nil {
		return Task{}, false
	}
	t, ok, err := s.taskStore.Get(ctx, id)
	if err != nil {
		logger.Warnf("读取任务 %s 失败: %v", id, err)
		return Task{}, false
	}
	return t, ok
}

// TasksSnapshot 列出任务（优先持久层，降级为内存视图）。
func (s *Service) TasksSnapshot(ctx context.Context, limit int) []Task {
	if s.taskStore != nil {
		if list, err := s.taskStore.List(ctx, limit); err == nil {
			return list
		} else {
			logger.Warnf("列出任务失败: %v", err)
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		list = append(list, *t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list
}

func (s *Service) ctx() context.Context {
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}
