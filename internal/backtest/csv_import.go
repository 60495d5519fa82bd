package backtest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"backview/internal/logger"
	"backview/internal/market"
	"backview/internal/timerange"
)

// CSVImportResult 一次本地文件导入的摘要。
type CSVImportResult struct {
	Symbol    string                  `json:"symbol"`
	Timeframe string                  `json:"timeframe"`
	Rows      int                     `json:"rows"`
	Range     timerange.FilenameRange `json:"range"`
}

// ImportCSV 把本地 CSV 导入 K 线库。文件名内嵌区间
// （如 binance_btcusdt_1m_20250101_to_20251113.csv）用于标注与抽查，
// 列顺序约定为 open_time,open,high,low,close,volume[,close_time,trades]。
func ImportCSV(ctx context.Context, store *Store, symbol, timeframe, path string) (CSVImportResult, error) {
	res := CSVImportResult{Symbol: strings.ToUpper(symbol), Timeframe: strings.ToLower(timeframe)}
	if store == nil {
		return res, fmt.Errorf("store 不能为空")
	}
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return res, err
	}
	f, err := os.Open(path)
	if err != nil {
		return res, fmt.Errorf("打开数据文件失败: %w", err)
	}
	defer f.Close()

	res.Range = timerange.ExtractRangeFromFilename(filepath.Base(path))

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	var batch []market.Candle
	total := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, fmt.Errorf("读取 CSV 失败: %w", err)
		}
		c, ok := parseCSVRow(record, tf)
		if !ok {
			continue // 表头或坏行
		}
		batch = append(batch, c)
		if len(batch) >= 1000 {
			n, err := store.InsertCandles(ctx, symbol, timeframe, batch)
			if err != nil {
				return res, err
			}
			total += n
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		n, err := store.InsertCandles(ctx, symbol, timeframe, batch)
		if err != nil {
			return res, err
		}
		total += n
	}
	res.Rows = total

	if res.Range.Start != "" {
		if w, err := store.Window(ctx, symbol, timeframe); err == nil {
			if timerange.FormatDate(w.Start) != res.Range.Start || timerange.FormatDate(w.End) != res.Range.End {
				logger.Warnf("%s 文件名标注区间 %s~%s 与实际数据 %s~%s 不一致",
					filepath.Base(path), res.Range.Start, res.Range.End,
					timerange.FormatDate(w.Start), timerange.FormatDate(w.End))
			}
		}
	}
	return res, nil
}

func parseCSVRow(record []string, tf Timeframe) (market.Candle, bool) {
	if len(record) < 6 {
		return market.Candle{}, false
	}
	openTime, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	if err != nil || openTime <= 0 {
		return market.Candle{}, false
	}
	c := market.Candle{
		OpenTime: openTime,
		Open:     parsePrice(record[1]),
		High:     parsePrice(record[2]),
		Low:      parsePrice(record[3]),
		Close:    parsePrice(record[4]),
		Volume:   parsePrice(record[5]),
	}
	if len(record) > 6 {
		c.CloseTime = parseCount(record[6])
	}
	if c.CloseTime == 0 {
		c.CloseTime = openTime + tf.durationMillis() - 1
	}
	if len(record) > 7 {
		c.Trades = parseCount(record[7])
	}
	return c, true
}
