// Package chart 把存储里的 K 线渲染成 echarts 页面，供前端内嵌或
// 通过 headless Chrome 截成 PNG。
package chart

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	talib "github.com/markcheno/go-talib"

	"backview/internal/market"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorMAFast        = "#3b82f6"
	colorMASlow        = "#fbbf24"

	chartWidthPx   = 1600
	klineHeightPx  = 600
	volumeHeightPx = 260

	maFastPeriod = 7
	maSlowPeriod = 25
)

// Input 一次图表渲染的输入。
type Input struct {
	Symbol    string
	Timeframe string
	Candles   []market.Candle
}

// BuildHTML 生成 K 线 + 成交量两段图的独立 HTML 页面。
func BuildHTML(input Input) ([]byte, error) {
	if input.Symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	if len(input.Candles) == 0 {
		return nil, fmt.Errorf("没有可渲染的 K 线: %s@%s", input.Symbol, input.Timeframe)
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	xAxis := buildXAxis(input.Candles)
	page.AddCharts(
		buildKline(input, xAxis),
		buildVolume(input, xAxis),
	)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildKline(input Input, xAxis []string) *charts.Kline {
	candles := input.Candles
	minPrice, maxPrice := priceBounds(candles)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}

	stats := market.Candles(candles).Stats()
	subtitle := fmt.Sprintf("%s ~ %s | chg %s%%",
		time.UnixMilli(stats.First).UTC().Format("2006-01-02 15:04"),
		time.UnixMilli(stats.Last).UTC().Format("2006-01-02 15:04"),
		stats.ChangePct)

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", klineHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s %s", strings.ToUpper(input.Symbol), input.Timeframe),
			Subtitle:      subtitle,
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minPrice-padding, 4),
			Max:       round(maxPrice+padding, 4),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	data := make([]opts.KlineData, 0, len(candles))
	for _, c := range candles {
		data = append(data, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", data)

	if ma := buildMALines(candles, xAxis); ma != nil {
		kline.Overlap(ma)
	}
	return kline
}

// buildMALines 叠加 SMA 快慢线；K 线数量不足周期时直接跳过。
func buildMALines(candles []market.Candle, xAxis []string) *charts.Line {
	if len(candles) <= maSlowPeriod {
		return nil
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	line := charts.NewLine()
	line.SetXAxis(xAxis)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	line.AddSeries(fmt.Sprintf("MA%d", maFastPeriod), toLineData(talib.Sma(closes, maFastPeriod)),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorMAFast, Width: 2}))
	line.AddSeries(fmt.Sprintf("MA%d", maSlowPeriod), toLineData(talib.Sma(closes, maSlowPeriod)),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorMASlow, Width: 2}))
	return line
}

func buildVolume(input Input, xAxis []string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", volumeHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Volume", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			SplitNumber: 6,
			AxisLabel:   &opts.AxisLabel{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	vols := make([]opts.BarData, len(input.Candles))
	for i, c := range input.Candles {
		color := colorBear
		if c.Close >= c.Open {
			color = colorBull
		}
		vols[i] = opts.BarData{
			Value:     c.Volume,
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.6)},
		}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("Volume", vols)
	return bar
}

func buildXAxis(candles []market.Candle) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		ts := c.CloseTime
		if ts == 0 {
			ts = c.OpenTime
		}
		x[i] = time.UnixMilli(ts).UTC().Format("01-02 15:04")
	}
	return x
}

func toLineData(series []float64) []opts.LineData {
	data := make([]opts.LineData, len(series))
	for i, v := range series {
		if v == 0 || math.IsNaN(v) {
			data[i] = opts.LineData{Value: nil} // 周期没填满前留空
			continue
		}
		data[i] = opts.LineData{Value: round(v, 4)}
	}
	return data
}

func priceBounds(candles []market.Candle) (float64, float64) {
	min, max := math.MaxFloat64, -math.MaxFloat64
	for _, c := range candles {
		if c.Low < min {
			min = c.Low
		}
		if c.High > max {
			max = c.High
		}
	}
	return min, max
}

func round(v float64, digits int) float64 {
	pow := math.Pow10(digits)
	return math.Round(v*pow) / pow
}
