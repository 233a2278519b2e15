package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"candlevault/internal/logger"
	"candlevault/internal/market"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Store 以单个 sqlite 文件持久化 OHLCV，按周期分表，
// 主键 (symbol, timestamp)，写入幂等。路径由构造参数显式传入。
type Store struct {
	path string

	mu     sync.Mutex
	db     *sql.DB
	tables map[string]bool
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path 不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &Store{path: path, db: db, tables: make(map[string]bool)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) Path() string { return s.path }

func tableName(tf market.Timeframe) string {
	return "ohlcv_" + tf.Key
}

// ensureTable 按需建表；is_edge 约束为 {0,1,NULL} 三态。
func (s *Store) ensureTable(ctx context.Context, tf market.Timeframe) error {
	name := tableName(tf)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tables[name] {
		return nil
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		symbol    TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		open      TEXT NOT NULL,
		high      TEXT NOT NULL,
		low       TEXT NOT NULL,
		close     TEXT NOT NULL,
		volume    TEXT NOT NULL,
		is_edge   INTEGER CHECK (is_edge IN (0, 1) OR is_edge IS NULL),
		PRIMARY KEY (symbol, timestamp)
	);`, name)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("建表 %s 失败: %w", name, err)
	}
	s.tables[name] = true
	return nil
}

func encodeEdge(e market.Edge) any {
	switch e {
	case market.EdgeOpen:
		return int64(0)
	case market.EdgeFinal:
		return int64(1)
	default:
		return nil
	}
}

func decodeEdge(v sql.NullInt64) market.Edge {
	if !v.Valid {
		return market.EdgeUnknown
	}
	if v.Int64 == 1 {
		return market.EdgeFinal
	}
	return market.EdgeOpen
}

// Insert 幂等写入：主键冲突视为「已存在」而非错误，缓存在重叠处权威。
// 不同 symbol 的并发回填互不阻塞（单行 upsert 粒度，无跨行事务需求）。
func (s *Store) Insert(ctx context.Context, tf market.Timeframe, series market.Series) (int, error) {
	if len(series) == 0 {
		return 0, nil
	}
	if err := s.ensureTable(ctx, tf); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (symbol, timestamp, open, high, low, close, volume, is_edge)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timestamp) DO NOTHING`, tableName(tf)))
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	count := 0
	for _, c := range series {
		res, err := stmt.ExecContext(ctx,
			c.Symbol, c.Timestamp,
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(),
			c.Volume.String(), encodeEdge(c.Edge))
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			count++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// Query 返回 [fromMs, toMs] 内升序的逻辑序列：与前一行间距不等于
// 一个周期的行被剔除（首行恒保留）。查询层面的失败降级为空序列
// 加日志，不向上抛出底层错误。
func (s *Store) Query(ctx context.Context, sym string, tf market.Timeframe, fromMs, toMs int64) (market.Series, error) {
	if sym == "" {
		logger.Warnf("[store] 查询缺少 symbol，返回空序列")
		return market.Series{}, nil
	}
	if err := s.ensureTable(ctx, tf); err != nil {
		logger.Warnf("[store] 查询准备失败: %v", err)
		return market.Series{}, nil
	}
	s.mu.Lock()
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT symbol, timestamp, open, high, low, close, volume, is_edge
		FROM %s
		WHERE symbol = ? AND timestamp BETWEEN ? AND ?
		ORDER BY timestamp ASC`, tableName(tf)), sym, fromMs, toMs)
	s.mu.Unlock()
	if err != nil {
		logger.Warnf("[store] 查询失败 (%s %s [%d,%d]): %v", sym, tf.Key, fromMs, toMs, err)
		return market.Series{}, nil
	}
	defer rows.Close()
	var out market.Series
	for rows.Next() {
		var (
			c                            market.Candle
			open, high, low, cls, volume string
			edge                         sql.NullInt64
		)
		if err := rows.Scan(&c.Symbol, &c.Timestamp, &open, &high, &low, &cls, &volume, &edge); err != nil {
			logger.Warnf("[store] 行解码失败，丢弃结果: %v", err)
			return market.Series{}, nil
		}
		var convErr error
		if c.Open, convErr = decimal.NewFromString(open); convErr == nil {
			if c.High, convErr = decimal.NewFromString(high); convErr == nil {
				if c.Low, convErr = decimal.NewFromString(low); convErr == nil {
					if c.Close, convErr = decimal.NewFromString(cls); convErr == nil {
						c.Volume, convErr = decimal.NewFromString(volume)
					}
				}
			}
		}
		if convErr != nil {
			logger.Warnf("[store] 数值解码失败 (%s@%d): %v", c.Symbol, c.Timestamp, convErr)
			return market.Series{}, nil
		}
		c.Edge = decodeEdge(edge)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		logger.Warnf("[store] 结果遍历失败: %v", err)
		return market.Series{}, nil
	}
	return out.TrimToGrid(tf), nil
}

// CoverageBounds 返回某 symbol 在窗口内已存行的最早/最晚时间戳，
// ok 为 false 表示窗口内没有任何行。
func (s *Store) CoverageBounds(ctx context.Context, sym string, tf market.Timeframe, fromMs, toMs int64) (int64, int64, bool, error) {
	if err := s.ensureTable(ctx, tf); err != nil {
		return 0, 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT MIN(timestamp), MAX(timestamp) FROM %s WHERE symbol = ? AND timestamp BETWEEN ? AND ?`,
		tableName(tf)), sym, fromMs, toMs)
	var minTs, maxTs sql.NullInt64
	if err := row.Scan(&minTs, &maxTs); err != nil {
		return 0, 0, false, err
	}
	if !minTs.Valid {
		return 0, 0, false, nil
	}
	return minTs.Int64, maxTs.Int64, true, nil
}

// Count 返回某 symbol 在周期表内的物理行数（测试与诊断用）。
func (s *Store) Count(ctx context.Context, sym string, tf market.Timeframe) (int64, error) {
	if err := s.ensureTable(ctx, tf); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(1) FROM %s WHERE symbol = ?`, tableName(tf)), sym)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
