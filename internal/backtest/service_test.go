package backtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"backview/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]market.Candle), args.Error(1)
}

func (m *mockSource) Name() string { return "mock" }

func newTestService(t *testing.T, src CandleSource) *Service {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc, err := NewService(ServiceConfig{
		Store:           store,
		Sources:         map[string]CandleSource{"mock": src},
		DefaultExchange: "mock",
		RateLimitPerMin: 6000,
		MaxBatch:        1000,
		MaxConcurrent:   1,
	})
	require.NoError(t, err)
	return svc
}

func waitForTask(t *testing.T, svc *Service, id string) Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, ok := svc.TaskSnapshot(context.Background(), id)
		require.True(t, ok)
		if task.Status == TaskStatusDone || task.Status == TaskStatusFailed {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("任务 %s 未在超时内结束", id)
	return Task{}
}

func TestSubmitFetchHappyPath(t *testing.T) {
	tf, _ := ParseTimeframe("1m")
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	src := &mockSource{}
	src.On("Fetch", mock.Anything, mock.Anything).Return(makeCandles(tf, start, 61), nil).Once()

	svc := newTestService(t, src)
	task, err := svc.SubmitFetch(FetchParams{
		Symbol:    "btcusdt",
		Timeframe: "1m",
		Start:     "2025-01-01",
		End:       "2025-01-01 01:00:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", task.Symbol)
	assert.Equal(t, int64(61), task.Expected)
	assert.True(t, task.Verdict.IsValid)

	done := waitForTask(t, svc, task.ID)
	assert.Equal(t, TaskStatusDone, done.Status)
	assert.Equal(t, int64(61), done.Fetched)
	assert.False(t, done.CompletedAt.IsZero())

	w, err := svc.Store().Window(context.Background(), "BTCUSDT", "1m")
	require.NoError(t, err)
	assert.Equal(t, int64(61), w.Rows)
	src.AssertExpectations(t)
}

func TestSubmitFetchSourceFailure(t *testing.T) {
	src := &mockSource{}
	src.On("Fetch", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("exchange unavailable"))

	svc := newTestService(t, src)
	task, err := svc.SubmitFetch(FetchParams{
		Symbol:    "BTCUSDT",
		Timeframe: "1m",
		Start:     "2025-01-01",
		End:       "2025-01-02",
	})
	require.NoError(t, err)

	done := waitForTask(t, svc, task.ID)
	assert.Equal(t, TaskStatusFailed, done.Status)
	assert.Contains(t, done.Message, "exchange unavailable")
}

func TestSubmitFetchRejectsBadInput(t *testing.T) {
	svc := newTestService(t, &mockSource{})

	_, err := svc.SubmitFetch(FetchParams{Timeframe: "1m", Start: "2025-01-01"})
	assert.Error(t, err)

	_, err = svc.SubmitFetch(FetchParams{Symbol: "BTCUSDT", Timeframe: "2h", Start: "2025-01-01"})
	assert.Error(t, err)

	_, err = svc.SubmitFetch(FetchParams{Symbol: "BTCUSDT", Timeframe: "1m", Start: "01/01/2025"})
	assert.Error(t, err)

	_, err = svc.SubmitFetch(FetchParams{
		Symbol: "BTCUSDT", Timeframe: "1m",
		Start: "2025-02-01", End: "2025-01-01",
	})
	assert.Error(t, err)

	_, err = svc.SubmitFetch(FetchParams{
		Symbol: "BTCUSDT", Timeframe: "1m", Exchange: "nope",
		Start: "2025-01-01", End: "2025-01-02",
	})
	assert.Error(t, err)
}

func TestValidateWindowAgainstExistingData(t *testing.T) {
	tf, _ := ParseTimeframe("1m")
	svc := newTestService(t, &mockSource{})
	ctx := context.Background()

	// 空库：只要窗口自身合法就放行
	v, err := svc.ValidateWindow(ctx, "BTCUSDT", "1m", "2025-01-01", "2025-01-02")
	require.NoError(t, err)
	assert.True(t, v.IsValid)

	base := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC).UnixMilli()
	_, err = svc.Store().InsertCandles(ctx, "BTCUSDT", "1m", makeCandles(tf, base, 60))
	require.NoError(t, err)

	// 完全不相交
	v, err = svc.ValidateWindow(ctx, "BTCUSDT", "1m", "2025-03-01", "2025-03-02")
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.NotEmpty(t, v.Error)

	// 相交但越界：有效 + 提醒
	v, err = svc.ValidateWindow(ctx, "BTCUSDT", "1m", "2025-01-09", "2025-01-11")
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	assert.NotEmpty(t, v.Warning)

	// 非法格式以 error 返回
	_, err = svc.ValidateWindow(ctx, "BTCUSDT", "1m", "not-a-date", "")
	assert.Error(t, err)
}
