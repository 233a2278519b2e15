package backtest

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusPending = "pending"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunStats 汇总一次回测格式化的结果，供前端展示。
type RunStats struct {
	FinalEquity float64 `json:"final_equity"`
	Profit      float64 `json:"profit"`
	ReturnPct   float64 `json:"return_pct"`
	Buys        int     `json:"buys"`
	Sells       int     `json:"sells"`
	Rows        int     `json:"rows"`
	FirstTS     int64   `json:"first_ts"`
	LastTS      int64   `json:"last_ts"`
}

// Run 表示一次回测格式化任务的记录。
type Run struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Timeframe   string    `json:"timeframe"`
	Status      string    `json:"status"`
	StartTS     int64     `json:"start_ts"`
	EndTS       int64     `json:"end_ts"`
	InitialCash float64   `json:"initial_cash"`
	Message     string    `json:"message,omitempty"`
	Stats       RunStats  `json:"stats"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewRun 创建 pending 状态的新任务。
func NewRun(symbol, timeframe string, startTS, endTS int64, initialCash float64) Run {
	now := time.Now()
	return Run{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Timeframe:   timeframe,
		Status:      RunStatusPending,
		StartTS:     startTS,
		EndTS:       endTS,
		InitialCash: initialCash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
