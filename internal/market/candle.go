package market

import (
	"github.com/shopspring/decimal"
)

// Edge 标记缓存区间端点的三态：未知 / 确认非端点 / 确认端点。
// 显式枚举避免把「false」与「未计算」混为一谈。
type Edge int8

const (
	EdgeUnknown Edge = iota
	EdgeOpen         // 数据源在该方向上仍有更多数据
	EdgeFinal        // 数据源已证明该方向没有更多数据
)

func (e Edge) String() string {
	switch e {
	case EdgeOpen:
		return "open"
	case EdgeFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Candle 表示一根 OHLCV K 线，Timestamp 为 UTC 毫秒开盘时间。
type Candle struct {
	Timestamp int64           `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	Symbol    string          `json:"symbol"`
	Edge      Edge            `json:"edge"`
}
