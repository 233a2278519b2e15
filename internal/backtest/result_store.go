package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// runRecord 是 Run 的持久化形态，stats 以 JSON 文本落库。
type runRecord struct {
	ID          string `gorm:"primaryKey;size:36"`
	Symbol      string `gorm:"size:32;index"`
	Timeframe   string `gorm:"size:8"`
	Status      string `gorm:"size:16"`
	StartTS     int64
	EndTS       int64
	InitialCash float64
	Message     string `gorm:"type:text"`
	StatsJSON   string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (runRecord) TableName() string { return "backtest_runs" }

// ResultStore 持久化回测任务记录（独立于 OHLCV 库的 runs.db）。
type ResultStore struct {
	db *gorm.DB
}

func NewResultStore(path string) (*ResultStore, error) {
	if path == "" {
		return nil, fmt.Errorf("results path 不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("打开 results 库失败 (%s): %w", path, err)
	}
	if err := db.AutoMigrate(&runRecord{}); err != nil {
		return nil, fmt.Errorf("迁移 results 库失败: %w", err)
	}
	return &ResultStore{db: db}, nil
}

// Save 以 ID 为键保存或覆盖任务记录。
func (s *ResultStore) Save(run Run) error {
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return err
	}
	rec := runRecord{
		ID:          run.ID,
		Symbol:      run.Symbol,
		Timeframe:   run.Timeframe,
		Status:      run.Status,
		StartTS:     run.StartTS,
		EndTS:       run.EndTS,
		InitialCash: run.InitialCash,
		Message:     run.Message,
		StatsJSON:   string(stats),
		CreatedAt:   run.CreatedAt,
		UpdatedAt:   run.UpdatedAt,
	}
	return s.db.Save(&rec).Error
}

func (s *ResultStore) Get(id string) (Run, error) {
	var rec runRecord
	if err := s.db.First(&rec, "id = ?", id).Error; err != nil {
		return Run{}, err
	}
	return recordToRun(rec)
}

// List 返回最近的任务记录，按创建时间倒序。
func (s *ResultStore) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []runRecord
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(recs))
	for _, rec := range recs {
		run, err := recordToRun(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func recordToRun(rec runRecord) (Run, error) {
	run := Run{
		ID:          rec.ID,
		Symbol:      rec.Symbol,
		Timeframe:   rec.Timeframe,
		Status:      rec.Status,
		StartTS:     rec.StartTS,
		EndTS:       rec.EndTS,
		InitialCash: rec.InitialCash,
		Message:     rec.Message,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	if rec.StatsJSON != "" {
		if err := json.Unmarshal([]byte(rec.StatsJSON), &run.Stats); err != nil {
			return Run{}, fmt.Errorf("解析 run stats 失败 (%s): %w", rec.ID, err)
		}
	}
	return run, nil
}
