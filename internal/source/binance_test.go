package source

import (
	"context"
	"fmt"
	"testing"
	"time"

	"candlevault/internal/market"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKlineAPI 按固定网格供给历史，记录每次调用的游标。
type fakeKlineAPI struct {
	firstTs int64
	lastTs  int64
	step    int64
	err     error
	starts  []int64
}

func (f *fakeKlineAPI) Klines(ctx context.Context, sym, interval string, startMs int64, limit int) (market.Series, error) {
	f.starts = append(f.starts, startMs)
	if f.err != nil {
		return nil, f.err
	}
	ts := f.firstTs
	for ts < startMs {
		ts += f.step
	}
	one := decimal.NewFromInt(1)
	out := make(market.Series, 0, limit)
	for len(out) < limit && ts <= f.lastTs {
		out = append(out, market.Candle{Timestamp: ts, Open: one, High: one, Low: one, Close: one, Volume: one})
		ts += f.step
	}
	return out, nil
}

func fastOpts(pageSize, maxCalls int) Options {
	return Options{RatePerMin: 600_000, PageSize: pageSize, MaxCalls: maxCalls}
}

func dailyRequest(t *testing.T, fromDay, toDay int) Request {
	t.Helper()
	return Request{
		Symbol:    "ETH/BTC",
		Timeframe: mustTimeframe(t, "1d"),
		From:      time.Date(2020, 12, fromDay, 0, 0, 0, 0, time.UTC),
		To:        time.Date(2020, 12, toDay, 0, 0, 0, 0, time.UTC),
	}
}

func TestBinanceFetchClipsToWindow(t *testing.T) {
	// 历史覆盖窗口两侧，一页即可取完
	api := &fakeKlineAPI{firstTs: dec1st - 30*dayMs, lastTs: dec1st + 31*dayMs, step: dayMs}
	src := newPaginatedSource(api, fastOpts(1000, 10))

	got, err := src.Fetch(context.Background(), dailyRequest(t, 1, 3))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, dec1st, got[0].Timestamp)
	assert.Equal(t, dec1st+2*dayMs, got[2].Timestamp)
	for _, c := range got {
		assert.Equal(t, "ETH/BTC", c.Symbol)
		assert.Equal(t, market.EdgeUnknown, c.Edge)
	}
	require.Len(t, api.starts, 1)
	assert.Equal(t, dec1st, api.starts[0])
}

func TestBinanceFetchPagination(t *testing.T) {
	t.Run("游标推进到末行时间戳加一", func(t *testing.T) {
		api := &fakeKlineAPI{firstTs: dec1st, lastTs: dec1st + 5*dayMs, step: dayMs}
		src := newPaginatedSource(api, fastOpts(2, 10))

		got, err := src.Fetch(context.Background(), dailyRequest(t, 1, 6))
		require.NoError(t, err)
		assert.Len(t, got, 6)
		require.Len(t, api.starts, 3)
		assert.Equal(t, dec1st+dayMs+1, api.starts[1])
		assert.Equal(t, dec1st+3*dayMs+1, api.starts[2])
	})

	t.Run("命中调用上限放弃整段", func(t *testing.T) {
		api := &fakeKlineAPI{firstTs: dec1st, lastTs: dec1st + 10_000*dayMs, step: dayMs}
		src := newPaginatedSource(api, fastOpts(2, 3))

		got, err := src.Fetch(context.Background(), dailyRequest(t, 1, 31))
		require.NoError(t, err)
		assert.Empty(t, got) // 整段放弃，不返回截断的半截序列
		assert.Len(t, api.starts, 3)
	})

	t.Run("未满一页视为历史取尽", func(t *testing.T) {
		api := &fakeKlineAPI{firstTs: dec1st, lastTs: dec1st + dayMs, step: dayMs}
		src := newPaginatedSource(api, fastOpts(500, 10))

		got, err := src.Fetch(context.Background(), dailyRequest(t, 1, 10))
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Len(t, api.starts, 1)
	})

	t.Run("空页视为历史终点", func(t *testing.T) {
		api := &fakeKlineAPI{firstTs: dec1st - 10*dayMs, lastTs: dec1st - 5*dayMs, step: dayMs}
		src := newPaginatedSource(api, fastOpts(500, 10))

		got, err := src.Fetch(context.Background(), dailyRequest(t, 1, 3))
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Len(t, api.starts, 1)
	})
}

func TestBinanceFetchErrors(t *testing.T) {
	t.Run("symbol 为空", func(t *testing.T) {
		src := newPaginatedSource(&fakeKlineAPI{}, fastOpts(500, 10))
		req := dailyRequest(t, 1, 3)
		req.Symbol = ""
		_, err := src.Fetch(context.Background(), req)
		assert.Error(t, err)
	})

	t.Run("端点错误向上透传", func(t *testing.T) {
		api := &fakeKlineAPI{err: fmt.Errorf("rate limited")}
		src := newPaginatedSource(api, fastOpts(500, 10))
		_, err := src.Fetch(context.Background(), dailyRequest(t, 1, 3))
		require.Error(t, err)
		assert.ErrorContains(t, err, "rate limited")
	})

	t.Run("上下文取消返回已累积部分", func(t *testing.T) {
		api := &fakeKlineAPI{firstTs: dec1st, lastTs: dec1st + 30*dayMs, step: dayMs}
		src := newPaginatedSource(api, fastOpts(500, 10))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		got, err := src.Fetch(ctx, dailyRequest(t, 1, 3))
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Empty(t, api.starts) // 限速等待阶段即被打断，端点未被触达
	})
}
