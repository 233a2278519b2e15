package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并校验 yaml 配置。配置错误属于致命错误，由调用方中止进程。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path 不能为空")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败 (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/ohlcv.db"
	}
	if c.Binance.BaseURL == "" {
		c.Binance.BaseURL = "https://api.binance.com"
	}
	if c.Binance.HTTPTimeoutSec <= 0 {
		c.Binance.HTTPTimeoutSec = 15
	}
	if c.Fetch.RatePerMin <= 0 {
		c.Fetch.RatePerMin = 60
	}
	if c.Fetch.PageSize <= 0 {
		c.Fetch.PageSize = 500
	}
	if c.Fetch.MaxCalls <= 0 {
		c.Fetch.MaxCalls = 10
	}
	if c.Fetch.StalenessHours <= 0 {
		c.Fetch.StalenessHours = 48
	}
	if c.Backtest.ResultsPath == "" {
		c.Backtest.ResultsPath = "data/runs.db"
	}
	if c.Dashboard.Listen == "" {
		c.Dashboard.Listen = ":9980"
	}
	if c.Dashboard.PageLimit <= 0 {
		c.Dashboard.PageLimit = 1000
	}
}

func validate(c *Config) error {
	if c.Fetch.PageSize > 1000 {
		return fmt.Errorf("fetch.page_size 超过 binance 单次上限 1000: %d", c.Fetch.PageSize)
	}
	if c.Fetch.MaxCalls > 1000 {
		return fmt.Errorf("fetch.max_calls 过大: %d", c.Fetch.MaxCalls)
	}
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("未知日志级别: %s", c.App.LogLevel)
	}
	return nil
}
