package source

import (
	"context"

	"candlevault/internal/market"
	"candlevault/internal/store"
)

// StoreSource 把本地库当作普通数据源，便于组合与测试对称。
type StoreSource struct {
	store *store.Store
}

func NewStoreSource(st *store.Store) *StoreSource {
	return &StoreSource{store: st}
}

func (s *StoreSource) Name() string { return "store" }

func (s *StoreSource) Fetch(ctx context.Context, req Request) (market.Series, error) {
	fromMs, toMs := RangeMillis(req.Timeframe, req.From, req.To)
	return s.store.Query(ctx, req.Symbol, req.Timeframe, fromMs, toMs)
}
