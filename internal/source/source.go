package source

import (
	"context"
	"time"

	"candlevault/internal/market"
)

// Request 以日历日期界定一次拉取；毫秒换算由各实现共用 RangeMillis 完成。
type Request struct {
	Symbol    string
	Timeframe market.Timeframe
	From      time.Time
	To        time.Time
}

// Source 统一文件、本地库、远端 API 三类数据源的拉取能力。
// 区间内无数据时返回空序列而非错误；返回值不得越出请求窗口。
type Source interface {
	Fetch(ctx context.Context, req Request) (market.Series, error)
	Name() string
}

// RangeMillis 把日期边界换算为 UTC 毫秒瞬时：from 取当日零点，
// to 取次日零点减一个周期，保证任意细于一天的粒度都被完整覆盖。
func RangeMillis(tf market.Timeframe, from, to time.Time) (int64, int64) {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return f.UnixMilli(), t.UnixMilli() - tf.Millis()
}
