package market

import (
	"github.com/shopspring/decimal"
)

// WindowStats 汇总一个窗口内的关键价格信息，供 API/图表展示。
type WindowStats struct {
	First     int64   `json:"first_open_time"`
	Last      int64   `json:"last_open_time"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	ChangePct string  `json:"change_pct"`
	Volume    string  `json:"volume"`
	Count     int     `json:"count"`
}

// Stats 用 decimal 计算涨跌幅与累计成交量，避免长区间浮点漂移。
func (cs Candles) Stats() WindowStats {
	if len(cs) == 0 {
		return WindowStats{}
	}
	first := cs[0]
	last := cs[len(cs)-1]
	st := WindowStats{
		First: first.OpenTime,
		Last:  last.OpenTime,
		High:  first.High,
		Low:   first.Low,
		Close: last.Close,
		Count: len(cs),
	}
	volume := decimal.Zero
	for _, c := range cs {
		if c.High > st.High {
			st.High = c.High
		}
		if c.Low < st.Low {
			st.Low = c.Low
		}
		volume = volume.Add(decimal.NewFromFloat(c.Volume))
	}
	st.Volume = volume.Round(4).String()
	base := decimal.NewFromFloat(first.Open)
	if !base.IsZero() {
		chg := decimal.NewFromFloat(last.Close).Sub(base).Div(base).Mul(decimal.NewFromInt(100))
		st.ChangePct = chg.Round(2).String()
	}
	return st
}
