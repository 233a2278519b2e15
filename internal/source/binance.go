package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"candlevault/internal/logger"
	"candlevault/internal/market"
	symbolpkg "candlevault/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// KlineAPI 是远端端点的最小接口；真实实现走 go-binance SDK，
// 测试用假实现驱动分页循环。
type KlineAPI interface {
	Klines(ctx context.Context, symbol, interval string, startMs int64, limit int) (market.Series, error)
}

// Options 配置远端源；RatePerMin 是端点级（而非调用点级）限速。
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	ProxyURL   string
	RatePerMin int
	PageSize   int
	MaxCalls   int
}

func (o *Options) withDefaults() Options {
	out := *o
	out.BaseURL = strings.TrimSpace(out.BaseURL)
	if out.BaseURL == "" {
		out.BaseURL = "https://api.binance.com"
	}
	if out.Timeout <= 0 {
		out.Timeout = 15 * time.Second
	}
	if out.RatePerMin <= 0 {
		out.RatePerMin = 60
	}
	if out.PageSize <= 0 || out.PageSize > 1000 {
		out.PageSize = 500
	}
	if out.MaxCalls <= 0 {
		out.MaxCalls = 10
	}
	return out
}

// BinanceSource 按页拉取远端 K 线：每次调用前等待共享限速器，
// 游标推进到末行时间戳 +1，命中调用上限时整段放弃（宁缺毋错标）。
type BinanceSource struct {
	api      KlineAPI
	limiter  *rate.Limiter
	pageSize int
	maxCalls int
}

func NewBinanceSource(opts Options) (*BinanceSource, error) {
	final := opts.withDefaults()
	client := binance.NewClient("", "")
	client.BaseURL = final.BaseURL
	httpClient := &http.Client{Timeout: final.Timeout}
	if final.ProxyURL != "" {
		proxyURL, err := url.Parse(final.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("代理地址不合法: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport 不是 *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return newPaginatedSource(&binanceAPI{client: client}, final), nil
}

func newPaginatedSource(api KlineAPI, opts Options) *BinanceSource {
	return &BinanceSource{
		api:      api,
		limiter:  rate.NewLimiter(rate.Limit(float64(opts.RatePerMin)/60.0), 1),
		pageSize: opts.PageSize,
		maxCalls: opts.MaxCalls,
	}
}

func (s *BinanceSource) Name() string { return "binance" }

func (s *BinanceSource) Fetch(ctx context.Context, req Request) (market.Series, error) {
	if req.Symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	fromMs, toMs := RangeMillis(req.Timeframe, req.From, req.To)
	exSymbol := symbolpkg.ToBinance(req.Symbol)
	cursor := fromMs
	calls := 0
	var acc market.Series
	for {
		// 限速是每次调用的前置条件，不是失败后的补救。
		if err := s.limiter.Wait(ctx); err != nil {
			logger.Warnf("[binance] 拉取被中断 (%s %s)，返回已累积的 %d 行: %v",
				req.Symbol, req.Timeframe.Key, len(acc), err)
			break
		}
		calls++
		logger.Debugf("[binance] 拉取 %s %s 第 %d 次 since=%d", req.Symbol, req.Timeframe.Key, calls, cursor)
		page, err := s.api.Klines(ctx, exSymbol, req.Timeframe.SourceInterval, cursor, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("binance 拉取失败 (%s %s): %w", req.Symbol, req.Timeframe.Key, err)
		}
		if len(page) == 0 {
			// 空页代表历史已尽，不是错误。
			break
		}
		acc = append(acc, page...)
		reachedEnd := false
		for _, c := range page {
			if c.Timestamp >= toMs {
				reachedEnd = true
				break
			}
		}
		if reachedEnd {
			break
		}
		if len(page) < s.pageSize {
			// 未满一页说明该方向数据已取尽。
			break
		}
		if calls >= s.maxCalls {
			logger.Warnf("[binance] 调用上限 %d 已到而区间未拉完，放弃整段 %s %s [%d,%d]",
				s.maxCalls, req.Symbol, req.Timeframe.Key, fromMs, toMs)
			return market.Series{}, nil
		}
		cursor = page[len(page)-1].Timestamp + 1
	}
	for i := range acc {
		acc[i].Symbol = req.Symbol
		acc[i].Edge = market.EdgeUnknown
	}
	acc.Sort()
	return acc.Clip(fromMs, toMs), nil
}

// binanceAPI 基于 go-binance 现货 REST /api/v3/klines。
type binanceAPI struct {
	client *binance.Client
}

func (a *binanceAPI) Klines(ctx context.Context, sym, interval string, startMs int64, limit int) (market.Series, error) {
	ks, err := a.client.NewKlinesService().
		Symbol(sym).
		Interval(interval).
		StartTime(startMs).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make(market.Series, 0, len(ks))
	for _, k := range ks {
		c := market.Candle{Timestamp: k.OpenTime}
		var convErr error
		if c.Open, convErr = decimal.NewFromString(k.Open); convErr != nil {
			return nil, fmt.Errorf("kline open 不合法 (%q): %w", k.Open, convErr)
		}
		if c.High, convErr = decimal.NewFromString(k.High); convErr != nil {
			return nil, fmt.Errorf("kline high 不合法 (%q): %w", k.High, convErr)
		}
		if c.Low, convErr = decimal.NewFromString(k.Low); convErr != nil {
			return nil, fmt.Errorf("kline low 不合法 (%q): %w", k.Low, convErr)
		}
		if c.Close, convErr = decimal.NewFromString(k.Close); convErr != nil {
			return nil, fmt.Errorf("kline close 不合法 (%q): %w", k.Close, convErr)
		}
		if c.Volume, convErr = decimal.NewFromString(k.Volume); convErr != nil {
			return nil, fmt.Errorf("kline volume 不合法 (%q): %w", k.Volume, convErr)
		}
		out = append(out, c)
	}
	return out, nil
}
