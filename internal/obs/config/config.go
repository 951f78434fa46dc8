// Package config 提供 FIX 会话引擎的全量配置加载，在 viper + validator
// 的基础上叠加了会话身份字段的热更新保护（spec §11 ambient stack）。
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/wyfcoding/pkg/connectivity/fix"
)

// LogConfig 日志输出配置，字段集对齐 logging.Config 支持的维度。
type LogConfig struct {
	Level      string `mapstructure:"level"       toml:"level"`
	Format     string `mapstructure:"format"      toml:"format"`
	File       string `mapstructure:"file"        toml:"file"`
	MaxSize    int    `mapstructure:"max_size"    toml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"     toml:"max_age"`
	Compress   bool   `mapstructure:"compress"    toml:"compress"`
}

// MetricsConfig 普罗米修斯指标暴露配置。
type MetricsConfig struct {
	Port    string `mapstructure:"port"    toml:"port"`
	Path    string `mapstructure:"path"    toml:"path"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// TracingConfig 分布式链路追踪配置。
type TracingConfig struct {
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint"`
	SamplerRatio float64 `mapstructure:"sampler_ratio" toml:"sampler_ratio"`
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
}

// CircuitBreakerConfig 熔断参数配置段；SQL Store 使用 NewSQLStore 内置的
// 熔断参数，不读取本段。
type CircuitBreakerConfig struct {
	Interval    time.Duration `mapstructure:"interval"     toml:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"      toml:"timeout"`
	MaxRequests uint32        `mapstructure:"max_requests" toml:"max_requests"`
	Enabled     bool          `mapstructure:"enabled"      toml:"enabled"`
}

// KafkaConfig 会话事件旁路发布的可选 Kafka 参数，未配置 Brokers 时完全关闭。
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"       toml:"brokers"`
	Topic        string        `mapstructure:"topic"         toml:"topic"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"  toml:"dial_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" toml:"write_timeout"`
	Async        bool          `mapstructure:"async"         toml:"async"`
}

// StoreConfig 选择并配置 Store 后端实现。
type StoreConfig struct {
	Kind string `mapstructure:"kind" toml:"kind" validate:"required,oneof=badger sql"`
	DSN  string `mapstructure:"dsn"  toml:"dsn"`
}

// EngineConfig 是单个 FIX 会话引擎进程的完整配置，Session 段承载
// spec §6 的会话身份与参数，其余字段是 spec §11 所需的环境设施。
type EngineConfig struct {
	Service    string         `mapstructure:"service"     toml:"service"     validate:"required"`
	HealthPort string         `mapstructure:"health_port" toml:"health_port"`
	Session    fix.Settings   `mapstructure:"session"     toml:"session"`
	Store      StoreConfig    `mapstructure:"store"       toml:"store"`
	Log        LogConfig      `mapstructure:"log"         toml:"log"`
	Metrics    MetricsConfig  `mapstructure:"metrics"     toml:"metrics"`
	Tracing    TracingConfig  `mapstructure:"tracing"     toml:"tracing"`
	Breaker    CircuitBreakerConfig `mapstructure:"circuit_breaker" toml:"circuit_breaker"`
	Kafka      KafkaConfig    `mapstructure:"kafka"       toml:"kafka"`
}

// identitySnapshot 固化会话身份字段，用于拒绝会改变身份的热更新（spec §11：
// "会话身份字段在 start() 之后不可变，触及它们的热更新被拒绝并记录，而非生效"）。
type identitySnapshot struct {
	senderCompID string
	targetCompID string
	beginString  string
	socketAddr   string
	storePath    string
}

func snapshotIdentity(s fix.Settings) identitySnapshot {
	return identitySnapshot{
		senderCompID: s.SenderCompID,
		targetCompID: s.TargetCompID,
		beginString:  s.BeginString,
		socketAddr:   s.SocketAddr,
		storePath:    s.StorePath,
	}
}

func (a identitySnapshot) changed(b identitySnapshot) bool {
	return a != b
}

var vInstance = viper.New()

// ParseFlags 注册 "-conf" 标志并返回配置文件路径，供 cmd/fixengine 的
// main 包在调用 Load 前解析命令行参数。
func ParseFlags(defaultPath string) string {
	var path string
	flag.StringVar(&path, "conf", defaultPath, "path to engine config file")
	flag.Parse()
	return path
}

// Load 读取 TOML 配置文件、做结构体校验，并注册一个拒绝身份字段变更的
// fsnotify 热更新回调。返回值可安全地在进程生命周期内被并发读取。
func Load(path string) (*EngineConfig, error) {
	vInstance.SetConfigFile(path)
	vInstance.SetConfigType("toml")
	vInstance.SetEnvPrefix("FIXENGINE")
	vInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vInstance.AutomaticEnv()

	if err := vInstance.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &EngineConfig{}
	if err := vInstance.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	identity := snapshotIdentity(cfg.Session)

	vInstance.WatchConfig()
	vInstance.OnConfigChange(func(event fsnotify.Event) {
		const debounce = 300 * time.Millisecond
		time.Sleep(debounce)

		next := &EngineConfig{}
		if err := vInstance.Unmarshal(next); err != nil {
			slog.Error("reload config unmarshal failed", "error", err)
			return
		}
		if err := validate.Struct(next); err != nil {
			slog.Error("reload config validation failed", "error", err)
			return
		}

		if identity.changed(snapshotIdentity(next.Session)) {
			slog.Error("reload rejected: session identity fields are immutable after start",
				"file", event.Name)
			return
		}

		*cfg = *next
		slog.Info("config hot-reloaded", "file", event.Name)
	})

	return cfg, nil
}
