package backtest

import (
	"fmt"

	"candlevault/internal/market"

	"github.com/shopspring/decimal"
)

// TradeMark 是外部策略在某根 K 线上成交的标记；本包只做格式化，
// 不评估策略本身。
type TradeMark struct {
	Timestamp int64
	Side      string // buy / sell
	Price     decimal.Decimal
	Size      decimal.Decimal
}

// SummaryRow 是面向展示层的一行：OHLCV 加上资金曲线与买卖点。
// Edge 字段对消费方是不透明元数据，这里不读也不改。
type SummaryRow struct {
	Timestamp     int64           `json:"timestamp"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Close         decimal.Decimal `json:"close"`
	Volume        decimal.Decimal `json:"volume"`
	Cash          decimal.Decimal `json:"cash"`
	PercentChange decimal.Decimal `json:"percent_change"`
	Buy           decimal.Decimal `json:"buy"`
	Sell          decimal.Decimal `json:"sell"`
}

type Summary struct {
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
	Rows      []SummaryRow `json:"rows"`
	Stats     RunStats     `json:"stats"`
}

var hundred = decimal.NewFromInt(100)

// Summarize 把检索引擎产出的序列与成交标记拼成资金曲线。
// 持仓按收盘价计入权益；不含手续费与滑点。
func Summarize(series market.Series, symbol, timeframe string, initialCash decimal.Decimal, marks []TradeMark) (Summary, error) {
	if initialCash.LessThanOrEqual(decimal.Zero) {
		return Summary{}, fmt.Errorf("initial cash 需为正数: %s", initialCash)
	}
	byTS := make(map[int64][]TradeMark, len(marks))
	for _, m := range marks {
		byTS[m.Timestamp] = append(byTS[m.Timestamp], m)
	}

	out := Summary{Symbol: symbol, Timeframe: timeframe, Rows: make([]SummaryRow, 0, len(series))}
	cash := initialCash
	position := decimal.Zero
	buys, sells := 0, 0
	for _, c := range series {
		row := SummaryRow{
			Timestamp: c.Timestamp,
			Open:      c.Open, High: c.High, Low: c.Low, Close: c.Close,
			Volume: c.Volume,
		}
		for _, m := range byTS[c.Timestamp] {
			notional := m.Price.Mul(m.Size)
			switch m.Side {
			case "buy":
				cash = cash.Sub(notional)
				position = position.Add(m.Size)
				row.Buy = m.Price
				buys++
			case "sell":
				cash = cash.Add(notional)
				position = position.Sub(m.Size)
				row.Sell = m.Price
				sells++
			default:
				return Summary{}, fmt.Errorf("未知成交方向: %q", m.Side)
			}
		}
		equity := cash.Add(position.Mul(c.Close))
		row.Cash = equity
		row.PercentChange = equity.Div(initialCash).Sub(decimal.NewFromInt(1)).Mul(hundred).Round(2)
		out.Rows = append(out.Rows, row)
	}

	if n := len(out.Rows); n > 0 {
		last := out.Rows[n-1]
		finalEquity, _ := last.Cash.Float64()
		initial, _ := initialCash.Float64()
		returnPct, _ := last.PercentChange.Float64()
		out.Stats = RunStats{
			FinalEquity: finalEquity,
			Profit:      finalEquity - initial,
			ReturnPct:   returnPct,
			Buys:        buys,
			Sells:       sells,
			Rows:        n,
			FirstTS:     out.Rows[0].Timestamp,
			LastTS:      last.Timestamp,
		}
	}
	return out, nil
}
