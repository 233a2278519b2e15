package config

// Config 汇总进程级配置，所有路径均为显式传入（不依赖隐式全局状态）。
type Config struct {
	App       AppConfig       `toml:"app"`
	Store     StoreConfig     `toml:"store"`
	Binance   BinanceConfig   `toml:"binance"`
	Fetch     FetchConfig     `toml:"fetch"`
	CSV       CSVConfig       `toml:"csv"`
	Backtest  BacktestConfig  `toml:"backtest"`
	Dashboard DashboardConfig `toml:"dashboard"`
}

type AppConfig struct {
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
}

// StoreConfig 指定本地 OHLCV 库文件位置。
type StoreConfig struct {
	Path string `toml:"path"`
}

type BinanceConfig struct {
	BaseURL        string `toml:"base_url"`
	HTTPTimeoutSec int    `toml:"http_timeout_sec"`
	ProxyURL       string `toml:"proxy_url"`
}

// FetchConfig 控制远端拉取循环的分页与限速行为。
type FetchConfig struct {
	RatePerMin     int `toml:"rate_per_min"`
	PageSize       int `toml:"page_size"`
	MaxCalls       int `toml:"max_calls"`
	StalenessHours int `toml:"staleness_hours"`
}

// CSVConfig 可选的文件数据源。
type CSVConfig struct {
	Path string `toml:"path"`
}

type BacktestConfig struct {
	ResultsPath string `toml:"results_path"`
}

type DashboardConfig struct {
	Listen    string `toml:"listen"`
	PageLimit int    `toml:"page_limit"`
}
