package backtest

import (
	"context"
	"testing"
	"time"

	"backview/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeCandles(tf Timeframe, start int64, n int) []market.Candle {
	step := tf.Duration.Milliseconds()
	out := make([]market.Candle, 0, n)
	for i := 0; i < n; i++ {
		open := start + int64(i)*step
		out = append(out, market.Candle{
			OpenTime:  open,
			CloseTime: open + step - 1,
			Open:      100 + float64(i),
			High:      101 + float64(i),
			Low:       99 + float64(i),
			Close:     100.5 + float64(i),
			Volume:    10,
			Trades:    5,
		})
	}
	return out
}

func TestStoreInsertAndWindow(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	_, err = store.Window(ctx, "BTCUSDT", "1m")
	assert.ErrorIs(t, err, ErrNoData)

	tf, _ := ParseTimeframe("1m")
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	n, err := store.InsertCandles(ctx, "BTCUSDT", "1m", makeCandles(tf, base, 10))
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	w, err := store.Window(ctx, "btcusdt", "1M")
	require.NoError(t, err)
	assert.Equal(t, base, w.Start)
	assert.Equal(t, base+9*tf.Duration.Milliseconds(), w.End)
	assert.Equal(t, int64(10), w.Rows)
}

func TestStoreUpsertOverwrites(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	tf, _ := ParseTimeframe("1m")
	candles := makeCandles(tf, 0, 3)
	_, err = store.InsertCandles(ctx, "ETHUSDT", "1m", candles)
	require.NoError(t, err)

	candles[1].Close = 42
	_, err = store.InsertCandles(ctx, "ETHUSDT", "1m", candles)
	require.NoError(t, err)

	got, err := store.QueryCandles(ctx, "ETHUSDT", "1m", 0, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 42.0, got[1].Close)
}

func TestStoreQueryRange(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	tf, _ := ParseTimeframe("1h")
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	step := tf.Duration.Milliseconds()
	_, err = store.InsertCandles(ctx, "BTCUSDT", "1h", makeCandles(tf, base, 24))
	require.NoError(t, err)

	got, err := store.QueryCandles(ctx, "BTCUSDT", "1h", base+2*step, base+5*step, 100)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, base+2*step, got[0].OpenTime)
	assert.Equal(t, base+5*step, got[len(got)-1].OpenTime)
}

func TestStoreMissingOpenTimes(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	tf, _ := ParseTimeframe("1m")
	step := tf.Duration.Milliseconds()
	candles := makeCandles(tf, 0, 5)
	// 挖掉中间一根
	candles = append(candles[:2], candles[3:]...)
	_, err = store.InsertCandles(ctx, "BTCUSDT", "1m", candles)
	require.NoError(t, err)

	missing, err := store.MissingOpenTimes(ctx, "BTCUSDT", tf, 0, 4*step)
	require.NoError(t, err)
	assert.Equal(t, []int64{2 * step}, missing)
}
