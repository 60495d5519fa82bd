package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取 YAML 配置并套用默认值与校验。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":9991"
	}
	if c.Data.Root == "" {
		c.Data.Root = "data/klines"
	}
	if c.Data.TasksDB == "" {
		c.Data.TasksDB = "data/tasks.db"
	}
	if c.Upstream.Prefix == "" {
		c.Upstream.Prefix = "/api"
	}
	if c.Upstream.TimeoutSeconds <= 0 {
		c.Upstream.TimeoutSeconds = 30
	}
	if c.Binance.RESTBaseURL == "" {
		c.Binance.RESTBaseURL = "https://fapi.binance.com"
	}
	if c.Binance.TimeoutSeconds <= 0 {
		c.Binance.TimeoutSeconds = 15
	}
	if c.Fetch.DefaultExchange == "" {
		c.Fetch.DefaultExchange = "binance"
	}
	if c.Fetch.RateLimitPerMin <= 0 {
		c.Fetch.RateLimitPerMin = 480
	}
	if c.Fetch.MaxBatch <= 0 {
		c.Fetch.MaxBatch = 1000
	}
	if c.Fetch.MaxConcurrent <= 0 {
		c.Fetch.MaxConcurrent = 2
	}
}

func validate(c *Config) error {
	if c.Upstream.Enabled && strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return fmt.Errorf("upstream.base_url 不能为空（upstream.enabled=true 时）")
	}
	if !c.Upstream.Enabled && !c.Binance.Enabled {
		return fmt.Errorf("至少启用一个数据源（binance 或 upstream）")
	}
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("未知日志级别: %s", c.App.LogLevel)
	}
	return nil
}
