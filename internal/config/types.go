package config

// Config 顶层配置。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Data     DataConfig     `mapstructure:"data"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Binance  BinanceConfig  `mapstructure:"binance"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Datasets DatasetsConfig `mapstructure:"datasets"`
	Chart    ChartConfig    `mapstructure:"chart"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// DataConfig K 线库与任务库的落盘位置。
type DataConfig struct {
	Root    string `mapstructure:"root"`
	TasksDB string `mapstructure:"tasks_db"`
}

// UpstreamConfig 指向另一个 backview 实例（或兼容 API），作为远端数据源。
type UpstreamConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	Prefix         string `mapstructure:"prefix"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type BinanceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	RESTBaseURL    string `mapstructure:"rest_base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type FetchConfig struct {
	DefaultExchange string `mapstructure:"default_exchange"`
	RateLimitPerMin int    `mapstructure:"rate_limit_per_min"`
	MaxBatch        int    `mapstructure:"max_batch"`
	MaxConcurrent   int    `mapstructure:"max_concurrent"`
}

type DatasetsConfig struct {
	Path string `mapstructure:"path"`
}

type ChartConfig struct {
	// Snapshot 开启后 /chart.png 走 headless Chrome 截图。
	Snapshot bool `mapstructure:"snapshot"`
}
