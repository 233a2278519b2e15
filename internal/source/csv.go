package source

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"candlevault/internal/market"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

// csvRow 对应文件列 Timestamp,Open,High,Low,Close,Volume,Symbol。
type csvRow struct {
	Timestamp string `csv:"Timestamp"`
	Open      string `csv:"Open"`
	High      string `csv:"High"`
	Low       string `csv:"Low"`
	Close     string `csv:"Close"`
	Volume    string `csv:"Volume"`
	Symbol    string `csv:"Symbol"`
}

// CSVSource 从既有表格文件读取，按 symbol 与日期窗口过滤。
// 不分页、不联网；文件缺失是致命的配置错误。
type CSVSource struct {
	path string
}

func NewCSVSource(path string) (*CSVSource, error) {
	if path == "" {
		return nil, fmt.Errorf("csv path 不能为空")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("csv 文件不可用 (%s): %w", path, err)
	}
	return &CSVSource{path: path}, nil
}

func (s *CSVSource) Name() string { return "csv" }

func (s *CSVSource) Fetch(ctx context.Context, req Request) (market.Series, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("打开 csv 失败 (%s): %w", s.path, err)
	}
	defer f.Close()
	var rows []*csvRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("解析 csv 失败 (%s): %w", s.path, err)
	}
	fromMs, toMs := RangeMillis(req.Timeframe, req.From, req.To)
	out := make(market.Series, 0, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !strings.EqualFold(strings.TrimSpace(row.Symbol), req.Symbol) {
			continue
		}
		ts, err := parseCSVTimestamp(row.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("csv 时间戳不合法 (%q): %w", row.Timestamp, err)
		}
		if ts < fromMs || ts > toMs {
			continue
		}
		c, err := decodeCSVRow(row, ts, req.Symbol)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	out.Sort()
	return out, nil
}

func decodeCSVRow(row *csvRow, ts int64, sym string) (market.Candle, error) {
	c := market.Candle{Timestamp: ts, Symbol: sym, Edge: market.EdgeUnknown}
	var err error
	fields := []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&c.Open, row.Open}, {&c.High, row.High}, {&c.Low, row.Low},
		{&c.Close, row.Close}, {&c.Volume, row.Volume},
	}
	for _, f := range fields {
		if *f.dst, err = decimal.NewFromString(strings.TrimSpace(f.raw)); err != nil {
			return market.Candle{}, fmt.Errorf("csv 数值不合法 (%q): %w", f.raw, err)
		}
	}
	return c, nil
}

var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseCSVTimestamp 接受毫秒整数或常见日期写法（按 UTC 解释）。
func parseCSVTimestamp(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ms, nil
	}
	for _, layout := range csvTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("无法识别的时间格式")
}
