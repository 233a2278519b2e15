package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"candlevault/internal/backtest"
	"candlevault/internal/config"
	"candlevault/internal/dashboard"
	"candlevault/internal/logger"
	"candlevault/internal/market"
	"candlevault/internal/reconcile"
	"candlevault/internal/source"
	"candlevault/internal/store"

	"github.com/shopspring/decimal"
)

func main() {
	ctx := context.Background()
	cfgPath := os.Getenv("CANDLEVAULT_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		log.Fatalf("打开本地库失败: %v", err)
	}
	defer st.Close()

	remote, err := source.NewBinanceSource(source.Options{
		BaseURL:    cfg.Binance.BaseURL,
		Timeout:    time.Duration(cfg.Binance.HTTPTimeoutSec) * time.Second,
		ProxyURL:   cfg.Binance.ProxyURL,
		RatePerMin: cfg.Fetch.RatePerMin,
		PageSize:   cfg.Fetch.PageSize,
		MaxCalls:   cfg.Fetch.MaxCalls,
	})
	if err != nil {
		log.Fatalf("初始化远端源失败: %v", err)
	}

	rec, err := reconcile.New(reconcile.Config{
		Store:     st,
		Remote:    remote,
		Staleness: time.Duration(cfg.Fetch.StalenessHours) * time.Hour,
	})
	if err != nil {
		log.Fatalf("初始化检索器失败: %v", err)
	}

	args := os.Args[1:]
	if len(args) == 0 {
		usage()
	}
	switch args[0] {
	case "fetch":
		runFetch(ctx, st, rec, args[1:])
	case "backtest":
		runBacktest(ctx, cfg, rec, args[1:])
	case "serve":
		runServe(cfg, rec)
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `用法:
  candlevault fetch    <symbol> <timeframe> <from> <to>
  candlevault backtest <symbol> <timeframe> <from> <to> [initial_cash]
  candlevault serve

日期格式 YYYY-MM-DD；支持周期: `+strings.Join(market.SupportedTimeframes(), ","))
	os.Exit(2)
}

func parseRangeArgs(args []string) (sym string, tf market.Timeframe, from, to time.Time) {
	if len(args) < 4 {
		usage()
	}
	sym = args[0]
	tf, err := market.ParseTimeframe(args[1])
	if err != nil {
		log.Fatalf("%v", err)
	}
	from, err = time.ParseInLocation("2006-01-02", args[2], time.UTC)
	if err != nil {
		log.Fatalf("from 日期不合法: %v", err)
	}
	to, err = time.ParseInLocation("2006-01-02", args[3], time.UTC)
	if err != nil {
		log.Fatalf("to 日期不合法: %v", err)
	}
	return sym, tf, from, to
}

func runFetch(ctx context.Context, st *store.Store, rec *reconcile.Reconciler, args []string) {
	sym, tf, from, to := parseRangeArgs(args)
	series, err := rec.Retrieve(ctx, sym, tf, from, to)
	if err != nil {
		log.Fatalf("检索失败: %v", err)
	}
	if series.Empty() {
		logger.Warnf("区间内没有数据: %s %s", sym, tf.Key)
		return
	}
	logger.Infof("%s %s 共 %d 行，%s ~ %s", sym, tf.Key, len(series),
		time.UnixMilli(series.First().Timestamp).UTC().Format("2006-01-02 15:04"),
		time.UnixMilli(series.Last().Timestamp).UTC().Format("2006-01-02 15:04"))

	fromMs, toMs := source.RangeMillis(tf, from, to)
	if minTs, maxTs, ok, err := st.CoverageBounds(ctx, sym, tf, fromMs, toMs); err == nil && ok {
		logger.Infof("本地库已覆盖 %s ~ %s",
			time.UnixMilli(minTs).UTC().Format("2006-01-02 15:04"),
			time.UnixMilli(maxTs).UTC().Format("2006-01-02 15:04"))
	}
}

// runBacktest 做一次买入持有的格式化演示：首行收盘买入一单位、
// 末行收盘卖出，结果写入 runs 库。
func runBacktest(ctx context.Context, cfg *config.Config, rec *reconcile.Reconciler, args []string) {
	sym, tf, from, to := parseRangeArgs(args)
	initialCash := decimal.NewFromInt(10000)
	if len(args) >= 5 {
		v, err := decimal.NewFromString(args[4])
		if err != nil {
			log.Fatalf("initial_cash 不合法: %v", err)
		}
		initialCash = v
	}
	series, err := rec.Retrieve(ctx, sym, tf, from, to)
	if err != nil {
		log.Fatalf("检索失败: %v", err)
	}
	if series.Empty() {
		log.Fatalf("区间内没有数据: %s %s", sym, tf.Key)
	}
	one := decimal.NewFromInt(1)
	marks := []backtest.TradeMark{
		{Timestamp: series.First().Timestamp, Side: "buy", Price: series.First().Close, Size: one},
		{Timestamp: series.Last().Timestamp, Side: "sell", Price: series.Last().Close, Size: one},
	}
	summary, err := backtest.Summarize(series, sym, tf.Key, initialCash, marks)
	if err != nil {
		log.Fatalf("汇总失败: %v", err)
	}
	run := backtest.NewRun(sym, tf.Key, series.First().Timestamp, series.Last().Timestamp, mustFloat(initialCash))
	run.Status = backtest.RunStatusDone
	run.Stats = summary.Stats
	run.UpdatedAt = time.Now()

	results, err := backtest.NewResultStore(cfg.Backtest.ResultsPath)
	if err != nil {
		log.Fatalf("打开 results 库失败: %v", err)
	}
	if err := results.Save(run); err != nil {
		log.Fatalf("保存 run 失败: %v", err)
	}
	logger.Infof("run %s 完成：收益 %.2f（%.2f%%），行数 %d",
		run.ID, run.Stats.Profit, run.Stats.ReturnPct, run.Stats.Rows)
}

func runServe(cfg *config.Config, rec *reconcile.Reconciler) {
	results, err := backtest.NewResultStore(cfg.Backtest.ResultsPath)
	if err != nil {
		log.Fatalf("打开 results 库失败: %v", err)
	}
	srv, err := dashboard.NewServer(dashboard.ServerConfig{
		Addr:      cfg.Dashboard.Listen,
		Retriever: rec,
		Results:   results,
		PageLimit: cfg.Dashboard.PageLimit,
	})
	if err != nil {
		log.Fatalf("初始化 dashboard 失败: %v", err)
	}
	logger.Infof("dashboard 监听 %s", cfg.Dashboard.Listen)
	if err := srv.Run(); err != nil {
		log.Fatalf("dashboard 退出: %v", err)
	}
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
