package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"candlevault/internal/market"
	"candlevault/internal/source"
	"candlevault/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dayMs  = int64(86_400_000)
	dec1st = int64(1_606_780_800_000) // 2020-12-01 00:00 UTC
)

// fakeRemote 以固定历史应答，按请求窗口裁剪并记录每次请求。
type fakeRemote struct {
	history market.Series
	err     error

	mu   sync.Mutex
	reqs []source.Request
}

func (f *fakeRemote) Name() string { return "fake" }

func (f *fakeRemote) Fetch(ctx context.Context, req source.Request) (market.Series, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	fromMs, toMs := source.RangeMillis(req.Timeframe, req.From, req.To)
	return f.history.Clip(fromMs, toMs), nil
}

func (f *fakeRemote) requests() []source.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]source.Request, len(f.reqs))
	copy(out, f.reqs)
	return out
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "ohlcv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func daily(t *testing.T) market.Timeframe {
	t.Helper()
	tf, err := market.ParseTimeframe("1d")
	require.NoError(t, err)
	return tf
}

func dailySeries(startTs int64, n int) market.Series {
	out := make(market.Series, 0, n)
	for i := 0; i < n; i++ {
		d := decimal.NewFromInt(int64(i + 1))
		out = append(out, market.Candle{
			Timestamp: startTs + int64(i)*dayMs,
			Open:      d, High: d, Low: d, Close: d,
			Volume: decimal.NewFromInt(10),
			Symbol: "ETH/BTC",
		})
	}
	return out
}

func day(d int) time.Time {
	return time.Date(2020, 12, d, 0, 0, 0, 0, time.UTC)
}

// fixedNow 远在请求窗口之后，窗口内的尾部缺口必然过旧。
func fixedNow() time.Time {
	return time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
}

func newReconciler(t *testing.T, s *store.Store, remote source.Source) *Reconciler {
	t.Helper()
	r, err := New(Config{Store: s, Remote: remote, Now: fixedNow})
	require.NoError(t, err)
	return r
}

func TestRetrieveCacheFirst(t *testing.T) {
	s := newTestStore(t)
	tf := daily(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, tf, dailySeries(dec1st, 10))
	require.NoError(t, err)

	remote := &fakeRemote{}
	r := newReconciler(t, s, remote)

	got, err := r.Retrieve(ctx, "ETH/BTC", tf, day(1), day(10))
	require.NoError(t, err)
	assert.Len(t, got, 10)
	assert.Empty(t, remote.requests(), "缓存完整时不应触达远端")
}

func TestRetrieveEmptyStore(t *testing.T) {
	s := newTestStore(t)
	tf := daily(t)
	ctx := context.Background()

	remote := &fakeRemote{history: dailySeries(dec1st-30*dayMs, 100)}
	r := newReconciler(t, s, remote)

	got, err := r.Retrieve(ctx, "ETH/BTC", tf, day(1), day(5))
	require.NoError(t, err)
	assert.Len(t, got, 5)

	reqs := remote.requests()
	require.Len(t, reqs, 1, "空库整段算一个头部缺口")
	assert.Equal(t, day(1), reqs[0].From)
	assert.Equal(t, day(5), reqs[0].To)

	// 回填已入库，二次检索零远端调用
	n, err := s.Count(ctx, "ETH/BTC", tf)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	got, err = r.Retrieve(ctx, "ETH/BTC", tf, day(1), day(5))
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.Len(t, remote.requests(), 1)
}

func TestRetrieveTailGap(t *testing.T) {
	s := newTestStore(t)
	tf := daily(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, tf, dailySeries(dec1st, 5)) // 本地只到 12-05
	require.NoError(t, err)

	remote := &fakeRemote{history: dailySeries(dec1st, 31)}
	r := newReconciler(t, s, remote)

	got, err := r.Retrieve(ctx, "ETH/BTC", tf, day(1), day(10))
	require.NoError(t, err)
	assert.Len(t, got, 10)

	reqs := remote.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, time.UnixMilli(dec1st+5*dayMs).UTC(), reqs[0].From, "尾部缺口从本地末行的下一根开始")
	assert.Equal(t, day(10), reqs[0].To)
}

func TestRetrieveFreshTailSkipped(t *testing.T) {
	s := newTestStore(t)
	tf := daily(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, tf, dailySeries(dec1st, 5))
	require.NoError(t, err)

	remote := &fakeRemote{history: dailySeries(dec1st, 31)}
	// 末行距 now 不足阈值，视为尚未定稿
	r, err := New(Config{Store: s, Remote: remote, Now: func() time.Time {
		return time.UnixMilli(dec1st + 5*dayMs).UTC()
	}})
	require.NoError(t, err)

	got, err := r.Retrieve(ctx, "ETH/BTC", tf, day(1), day(10))
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.Empty(t, remote.requests())
}

func TestRetrieveHeadGapAndEdgeMark(t *testing.T) {
	s := newTestStore(t)
	tf := daily(t)
	ctx := context.Background()

	// 远端历史始于 12-05：整段请求只能回来 12-05 起的行，
	// 首行因此应被判定为「再无更早数据」。
	remote := &fakeRemote{history: dailySeries(dec1st+4*dayMs, 60)}
	r := newReconciler(t, s, remote)

	got, err := r.Retrieve(ctx, "ETH/BTC", tf, day(1), day(10))
	require.NoError(t, err)
	require.Len(t, got, 6)
	assert.Equal(t, market.EdgeFinal, got[0].Edge)

	// 标记已持久化
	persisted, err := s.Query(ctx, "ETH/BTC", tf, dec1st+4*dayMs, dec1st+4*dayMs)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, market.EdgeFinal, persisted[0].Edge)

	t.Run("EdgeFinal 端点不再触发头部拉取", func(t *testing.T) {
		before := len(remote.requests())
		got, err := r.Retrieve(ctx, "ETH/BTC", tf, day(1), day(10))
		require.NoError(t, err)
		assert.Len(t, got, 6)
		assert.Len(t, remote.requests(), before)
	})
}

func TestRetrieveRemoteFailure(t *testing.T) {
	s := newTestStore(t)
	tf := daily(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, tf, dailySeries(dec1st, 5))
	require.NoError(t, err)

	remote := &fakeRemote{err: fmt.Errorf("connection refused")}
	r := newReconciler(t, s, remote)

	got, err := r.Retrieve(ctx, "ETH/BTC", tf, day(1), day(10))
	require.NoError(t, err, "远端失败降级为部分结果，不向上抛错")
	assert.Len(t, got, 5)
	assert.NotEmpty(t, remote.requests())
}

func TestRetrieveCacheOnly(t *testing.T) {
	s := newTestStore(t)
	tf := daily(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, tf, dailySeries(dec1st, 3))
	require.NoError(t, err)

	r, err := New(Config{Store: s, Now: fixedNow})
	require.NoError(t, err)

	got, err := r.Retrieve(ctx, "ETH/BTC", tf, day(1), day(10))
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
