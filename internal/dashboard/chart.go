package dashboard

import (
	"fmt"
	"strings"
	"time"

	"candlevault/internal/market"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	talib "github.com/markcheno/go-talib"
)

const (
	colorBull   = "#34d399"
	colorBear   = "#f87171"
	colorEma7   = "#3b82f6"
	colorEma25  = "#fbbf24"
	colorEma99  = "#f472b6"
	colorVolume = "#a78bfa"

	chartWidthPx  = 1400
	klineHeightPx = 560
	volHeightPx   = 220
)

var emaPeriods = []struct {
	period int
	color  string
}{
	{7, colorEma7},
	{25, colorEma25},
	{99, colorEma99},
}

// BuildKlinePage 把一段序列渲染为 K 线 + 成交量的页面。
// 序列的 Edge 字段是检索引擎的内部元数据，这里不做任何解读。
func BuildKlinePage(symbol, timeframe string, series market.Series) (*components.Page, error) {
	if series.Empty() {
		return nil, fmt.Errorf("没有可渲染的数据: %s %s", symbol, timeframe)
	}
	xAxis := make([]string, len(series))
	klineData := make([]opts.KlineData, len(series))
	volData := make([]opts.BarData, len(series))
	closes := make([]float64, len(series))
	for i, c := range series {
		xAxis[i] = time.UnixMilli(c.Timestamp).UTC().Format("2006-01-02 15:04")
		open, _ := c.Open.Float64()
		cls, _ := c.Close.Float64()
		low, _ := c.Low.Float64()
		high, _ := c.High.Float64()
		vol, _ := c.Volume.Float64()
		klineData[i] = opts.KlineData{Value: [4]float64{open, cls, low, high}}
		volData[i] = opts.BarData{Value: vol, ItemStyle: &opts.ItemStyle{Color: colorVolume}}
		closes[i] = cls
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  fmt.Sprintf("%dpx", chartWidthPx),
			Height: fmt.Sprintf("%dpx", klineHeightPx),
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("%s %s", strings.ToUpper(symbol), timeframe),
			Left:  "left",
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", klineData)

	if emaLine := buildEMALine(xAxis, closes); emaLine != nil {
		kline.Overlap(emaLine)
	}

	volume := charts.NewBar()
	volume.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  fmt.Sprintf("%dpx", chartWidthPx),
			Height: fmt.Sprintf("%dpx", volHeightPx),
		}),
		charts.WithTitleOpts(opts.Title{Title: "Volume", Left: "left"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
	)
	volume.SetXAxis(xAxis)
	volume.AddSeries("Volume", volData)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(kline, volume)
	return page, nil
}

func buildEMALine(xAxis []string, closes []float64) *charts.Line {
	line := charts.NewLine()
	line.SetXAxis(xAxis)
	added := false
	for _, ema := range emaPeriods {
		if len(closes) <= ema.period {
			continue
		}
		values := talib.Ema(closes, ema.period)
		data := make([]opts.LineData, len(values))
		for i, v := range values {
			if i < ema.period-1 {
				data[i] = opts.LineData{Value: nil}
				continue
			}
			data[i] = opts.LineData{Value: v}
		}
		line.AddSeries(fmt.Sprintf("EMA%d", ema.period), data,
			charts.WithLineStyleOpts(opts.LineStyle{Color: ema.color, Width: 2}))
		added = true
	}
	if !added {
		return nil
	}
	return line
}
