package config

import (
	"fmt"

	"web3-swaps/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config 定义整个配置的结构
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Chain   ChainConfig   `mapstructure:"chain"`
	Range   RangeConfig   `mapstructure:"range"`
	Pools   PoolsConfig   `mapstructure:"pools"`
	Assets  AssetsConfig  `mapstructure:"assets"`
	Output  OutputConfig  `mapstructure:"output"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Monitor MonitorConfig `mapstructure:"monitor"`
}

// LogConfig Log 日志配置
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ChainConfig 链与上游节点凭证配置
type ChainConfig struct {
	Name    string   `mapstructure:"name"`
	APIBase string   `mapstructure:"api_base"`
	APIKeys []string `mapstructure:"api_keys"`
}

// Endpoints 拼出每个凭证的完整 RPC 地址
func (c ChainConfig) Endpoints() []string {
	endpoints := make([]string, 0, len(c.APIKeys))
	for _, key := range c.APIKeys {
		endpoints = append(endpoints, c.APIBase+key)
	}
	return endpoints
}

// RangeConfig 日期范围，start 含、end 不含，均为 UTC 零点
type RangeConfig struct {
	StartDate string `mapstructure:"start_date"`
	EndDate   string `mapstructure:"end_date"`
}

// PoolsConfig 建池事件采集（cmd/pools）的配置
type PoolsConfig struct {
	Factory    string `mapstructure:"factory"`
	StartBlock uint64 `mapstructure:"start_block"`
	EndBlock   uint64 `mapstructure:"end_block"`
	Step       uint64 `mapstructure:"step"`
}

// AssetsConfig 定价用的参考资产与稳定币
type AssetsConfig struct {
	Reference        string   `mapstructure:"reference"`
	Stables          []string `mapstructure:"stables"`
	ReferenceUSDPool string   `mapstructure:"reference_usd_pool"`
}

type OutputConfig struct {
	Root string `mapstructure:"root"`
}

type WorkerConfig struct {
	RateLimit int `mapstructure:"rate_limit"` // 每个凭证每分钟请求数
}

type MonitorConfig struct {
	Enable         bool   `mapstructure:"enable"`
	PrometheusAddr string `mapstructure:"prometheus_addr"`
}

func InitConfig() Config {
	var config Config

	viper.SetConfigName("config.harvester")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config/")

	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}

	if err := mapstructure.Decode(viper.AllSettings(), &config); err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}

	return config
}

func WatchConfig(config *Config) {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig := InitConfig()
		*config = newConfig
		logger.SetLogLevel(config.Log.Level)
	})
}
