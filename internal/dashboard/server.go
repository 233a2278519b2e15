package dashboard

import (
	"context"
	"errors"
	"net/http"
	"time"

	"candlevault/internal/backtest"
	"candlevault/internal/market"

	"github.com/gin-gonic/gin"
)

// Retriever 是展示层对检索引擎的唯一依赖。
type Retriever interface {
	Retrieve(ctx context.Context, sym string, tf market.Timeframe, from, to time.Time) (market.Series, error)
}

type ServerConfig struct {
	Addr      string
	Retriever Retriever
	Results   *backtest.ResultStore
	PageLimit int
}

// Server 提供图表页与只读 JSON 接口；检索/缓存逻辑全部在引擎侧。
type Server struct {
	addr      string
	retriever Retriever
	results   *backtest.ResultStore
	pageLimit int
	router    *gin.Engine
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Retriever == nil {
		return nil, errors.New("retriever 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 1000
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s := &Server{
		addr:      cfg.Addr,
		retriever: cfg.Retriever,
		results:   cfg.Results,
		pageLimit: cfg.PageLimit,
		router:    router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/", s.handleIndex)
	s.router.GET("/chart", s.handleChart)
	api := s.router.Group("/api")
	api.GET("/candles", s.handleCandles)
	api.GET("/runs", s.handleRuns)
}

func (s *Server) Run() error {
	return s.router.Run(s.addr)
}

func (s *Server) handleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"endpoints":  []string{"/chart", "/api/candles", "/api/runs"},
		"params":     "symbol, timeframe, from, to (YYYY-MM-DD)",
		"timeframes": market.SupportedTimeframes(),
	})
}

type rangeQuery struct {
	symbol string
	tf     market.Timeframe
	from   time.Time
	to     time.Time
}

func (s *Server) parseRangeQuery(c *gin.Context) (rangeQuery, bool) {
	var q rangeQuery
	q.symbol = c.Query("symbol")
	if q.symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 必填"})
		return q, false
	}
	tf, err := market.ParseTimeframe(c.DefaultQuery("timeframe", "1d"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return q, false
	}
	q.tf = tf
	q.from, err = time.ParseInLocation("2006-01-02", c.Query("from"), time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from 需为 YYYY-MM-DD"})
		return q, false
	}
	q.to, err = time.ParseInLocation("2006-01-02", c.Query("to"), time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to 需为 YYYY-MM-DD"})
		return q, false
	}
	return q, true
}

func (s *Server) handleChart(c *gin.Context) {
	q, ok := s.parseRangeQuery(c)
	if !ok {
		return
	}
	series, err := s.retriever.Retrieve(c.Request.Context(), q.symbol, q.tf, q.from, q.to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	page, err := BuildKlinePage(q.symbol, q.tf.Key, series)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := page.Render(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleCandles(c *gin.Context) {
	q, ok := s.parseRangeQuery(c)
	if !ok {
		return
	}
	series, err := s.retriever.Retrieve(c.Request.Context(), q.symbol, q.tf, q.from, q.to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(series) > s.pageLimit {
		series = series[len(series)-s.pageLimit:]
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":    q.symbol,
		"timeframe": q.tf.Key,
		"count":     len(series),
		"candles":   series,
	})
}

func (s *Server) handleRuns(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []backtest.Run{}})
		return
	}
	runs, err := s.results.List(50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
