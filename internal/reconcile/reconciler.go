package reconcile

import (
	"context"
	"fmt"
	"time"

	"candlevault/internal/logger"
	"candlevault/internal/market"
	"candlevault/internal/source"
	"candlevault/internal/store"

	"golang.org/x/sync/errgroup"
)

// Config 组装一次检索所需的本地库与可选远端源。
type Config struct {
	Store  *store.Store
	Remote source.Source // 为 nil 时进入纯缓存模式

	// Staleness 控制尾部缺口的刷新阈值：本地最新一根距今不足该时长时
	// 视为「尚未定稿」而跳过重新拉取。0 取默认 48h。
	Staleness time.Duration
	Now       func() time.Time
}

// Reconciler 先查本地库，再对头/尾两个缺口各发至多一次远端拉取，
// 入库后合并返回。远端失败降级为尽力而为的部分结果。
type Reconciler struct {
	store     *store.Store
	remote    source.Source
	staleness time.Duration
	now       func() time.Time
}

func New(cfg Config) (*Reconciler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store 不能为空")
	}
	staleness := cfg.Staleness
	if staleness <= 0 {
		staleness = 48 * time.Hour
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		store:     cfg.Store,
		remote:    cfg.Remote,
		staleness: staleness,
		now:       now,
	}, nil
}

// Retrieve 返回 [from, to] 的完整升序序列，本地缺口由远端回填。
func (r *Reconciler) Retrieve(ctx context.Context, sym string, tf market.Timeframe, from, to time.Time) (market.Series, error) {
	fromMs, toMs := source.RangeMillis(tf, from, to)
	stored, err := r.store.Query(ctx, sym, tf, fromMs, toMs)
	if err != nil {
		return nil, err
	}
	if r.remote == nil {
		return stored, nil
	}

	headReq, tailReq := r.gaps(stored, sym, tf, from, to, fromMs, toMs)
	if headReq == nil && tailReq == nil {
		return stored, nil
	}

	var headRes, tailRes market.Series
	g, gctx := errgroup.WithContext(ctx)
	if headReq != nil {
		g.Go(func() error {
			headRes = r.fetchGap(gctx, *headReq)
			return nil
		})
	}
	if tailReq != nil {
		g.Go(func() error {
			tailRes = r.fetchGap(gctx, *tailReq)
			return nil
		})
	}
	_ = g.Wait()

	merged := stored
	for _, fetched := range []market.Series{headRes, tailRes} {
		if fetched.Empty() {
			continue
		}
		if _, err := r.store.Insert(ctx, tf, fetched); err != nil {
			logger.Warnf("[reconcile] 回填入库失败 (%s %s): %v", sym, tf.Key, err)
		}
		merged = market.Merge(merged, fetched)
	}
	return merged.Clip(fromMs, toMs), nil
}

// gaps 判定头/尾缺口。本地为空时整段算头部缺口；端点已带
// EdgeFinal 标记的方向不再打扰远端。
func (r *Reconciler) gaps(stored market.Series, sym string, tf market.Timeframe, from, to time.Time, fromMs, toMs int64) (head, tail *source.Request) {
	if stored.Empty() {
		return &source.Request{Symbol: sym, Timeframe: tf, From: from, To: to}, nil
	}
	step := tf.Millis()
	first := stored.First()
	if first.Timestamp > fromMs && first.Edge != market.EdgeFinal {
		head = &source.Request{
			Symbol:    sym,
			Timeframe: tf,
			From:      from,
			To:        time.UnixMilli(first.Timestamp - step).UTC(),
		}
	}
	last := stored.Last()
	stale := last.Timestamp < r.now().Add(-r.staleness).UnixMilli()
	if last.Timestamp < toMs && last.Edge != market.EdgeFinal && stale {
		tail = &source.Request{
			Symbol:    sym,
			Timeframe: tf,
			From:      time.UnixMilli(last.Timestamp + step).UTC(),
			To:        to,
		}
	}
	return head, tail
}

// fetchGap 拉取单个缺口并补算端点标记；失败只记日志，
// 让调用方继续返回已有数据。
func (r *Reconciler) fetchGap(ctx context.Context, req source.Request) market.Series {
	fetched, err := r.remote.Fetch(ctx, req)
	if err != nil {
		logger.Warnf("[reconcile] 缺口拉取失败 (%s %s %s~%s): %v",
			req.Symbol, req.Timeframe.Key,
			req.From.Format("2006-01-02"), req.To.Format("2006-01-02"), err)
		return nil
	}
	if fetched.Empty() {
		return nil
	}
	r.markEdges(fetched, req)
	return fetched
}

// markEdges 由请求窗口推断端点完备性：请求起点早于首行一个周期以上，
// 说明源头再无更早数据；终点同理，但需排除「最新一根尚未收盘」的情形。
// 端点分类需要知道原始请求窗口，所以在这里做而不在 Source 里做。
func (r *Reconciler) markEdges(fetched market.Series, req source.Request) {
	step := req.Timeframe.Millis()
	winFrom, winTo := source.RangeMillis(req.Timeframe, req.From, req.To)
	if winFrom < fetched.First().Timestamp-step {
		fetched[0].Edge = market.EdgeFinal
	}
	nowMs := r.now().UnixMilli()
	if winTo > fetched.Last().Timestamp+step && winTo < nowMs-2*step {
		fetched[len(fetched)-1].Edge = market.EdgeFinal
	}
}
