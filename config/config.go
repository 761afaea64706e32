// Package config 提供了统一的配置加载、校验与热更新能力.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 FANGOOST_PRICING_NUM_FREQUENCIES.
const EnvPrefix = "FANGOOST"

// Config 全局顶级配置结构.
type Config struct {
	Version   string          `mapstructure:"version"   toml:"version"`
	Server    ServerConfig    `mapstructure:"server"    toml:"server"`
	Log       LogConfig       `mapstructure:"log"       toml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   toml:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"   toml:"tracing"`
	Pricing   PricingConfig   `mapstructure:"pricing"   toml:"pricing"`
	Cache     CacheConfig     `mapstructure:"cache"     toml:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" toml:"ratelimit"`
	Snowflake SnowflakeConfig `mapstructure:"snowflake" toml:"snowflake"`
}

// ServerConfig 定义 HTTP 服务的基础网络参数.
type ServerConfig struct {
	Name            string        `mapstructure:"name"             toml:"name"             validate:"required"`
	Environment     string        `mapstructure:"environment"      toml:"environment"      validate:"oneof=dev test prod"`
	Addr            string        `mapstructure:"addr"             toml:"addr"             validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     toml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    toml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" toml:"shutdown_timeout"`
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level      string `mapstructure:"level"       toml:"level"       validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format"      toml:"format"      validate:"oneof=json text"`
	File       string `mapstructure:"file"        toml:"file"`
	MaxSize    int    `mapstructure:"max_size"    toml:"max_size"    validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups" validate:"gte=0"`
	MaxAge     int    `mapstructure:"max_age"     toml:"max_age"     validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"    toml:"compress"`
	Stdout     bool   `mapstructure:"stdout"      toml:"stdout"`
}

// MetricsConfig Prometheus 指标暴露配置.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	Path    string `mapstructure:"path"    toml:"path"`
}

// TracingConfig 分布式链路追踪（OpenTelemetry）配置.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SampleRatio  float64 `mapstructure:"sample_ratio"  toml:"sample_ratio"  validate:"gte=0,lte=1"`
}

// PricingConfig COS 定价引擎参数.
type PricingConfig struct {
	NumFrequencies int `mapstructure:"num_frequencies" toml:"num_frequencies" validate:"gte=1,lte=65536"`
	Workers        int `mapstructure:"workers"         toml:"workers"         validate:"gte=0"`
	ChunkSize      int `mapstructure:"chunk_size"      toml:"chunk_size"      validate:"gte=1"`
	MaxStrikes     int `mapstructure:"max_strikes"     toml:"max_strikes"     validate:"gte=2"`
	MaxConcurrent  int `mapstructure:"max_concurrent"  toml:"max_concurrent"  validate:"gte=0"` // 0 表示不限制
}

// CacheConfig 报价结果本地缓存配置.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled" toml:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"     toml:"ttl"     validate:"required_if=Enabled true"`
	MaxMB   int           `mapstructure:"max_mb"  toml:"max_mb"  validate:"gte=0"`
}

// RateLimitConfig 按客户端 IP 的令牌桶限流配置.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled" toml:"enabled"`
	Rate    int  `mapstructure:"rate"    toml:"rate"    validate:"required_if=Enabled true,gte=0"`
	Burst   int  `mapstructure:"burst"   toml:"burst"   validate:"required_if=Enabled true,gte=0"`
}

// SnowflakeConfig 请求 ID 生成器参数.
type SnowflakeConfig struct {
	StartTime string `mapstructure:"start_time" toml:"start_time"`
	Type      string `mapstructure:"type"       toml:"type"       validate:"omitempty,oneof=snowflake sonyflake"`
	MachineID int64  `mapstructure:"machine_id" toml:"machine_id" validate:"gte=0,lte=1023"`
}

var (
	validate = validator.New()

	hooksMu  sync.Mutex
	onReload []func(*Config)
)

// SetDefaults 写入所有配置项的默认值.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("version", "dev")
	v.SetDefault("server.name", "fangoost")
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("tracing.service_name", "fangoost")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("pricing.num_frequencies", 128)
	v.SetDefault("pricing.workers", 0)
	v.SetDefault("pricing.chunk_size", 256)
	v.SetDefault("pricing.max_strikes", 100000)
	v.SetDefault("pricing.max_concurrent", 0)
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.rate", 50)
	v.SetDefault("ratelimit.burst", 100)
	v.SetDefault("snowflake.type", "snowflake")
	v.SetDefault("snowflake.machine_id", 1)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", time.Minute)
	v.SetDefault("cache.max_mb", 64)
}

// Validate 执行结构体标签校验.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// RegisterReloadHook 注册配置热更新回调，回调收到的是一份新的、已通过校验的配置.
func RegisterReloadHook(hook func(*Config)) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	onReload = append(onReload, hook)
}

// newViper 构造带默认值与环境变量绑定的 viper 实例.
func newViper(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("toml")
		}
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load 读取配置文件（为空时只使用默认值与环境变量），返回校验后的配置.
func Load(path string) (*Config, error) {
	cfg, _, err := load(path)
	return cfg, err
}

func load(path string) (*Config, *viper.Viper, error) {
	v := newViper(path)
	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("read config error: %w", err)
		}
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// LoadAndWatch 读取配置并监听文件变更，变更通过校验后依次调用已注册的回调.
func LoadAndWatch(path string) (*Config, error) {
	cfg, v, err := load(path)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	v.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name, "op", event.Op.String())
		next, err := decode(v)
		if err != nil {
			slog.Error("reload config failed, keeping previous config", "error", err)
			return
		}
		hooksMu.Lock()
		hooks := append([]func(*Config){}, onReload...)
		hooksMu.Unlock()
		for _, hook := range hooks {
			hook(next)
		}
		slog.Info("config hot-reloaded and validated successfully")
	})
	v.WatchConfig()
	return cfg, nil
}

// PrintWithMask 脱敏打印当前配置.
func PrintWithMask(conf any) {
	data, err := json.Marshal(conf)
	if err != nil {
		slog.Error("failed to marshal config for printing", "error", err)
		return
	}

	var configMap map[string]any
	if err := json.Unmarshal(data, &configMap); err != nil {
		slog.Error("failed to unmarshal config for masking", "error", err)
		return
	}
	mask(configMap)

	slog.Info("Current effective configuration", "config", configMap)
}

func mask(configMap map[string]any) {
	sensitiveKeys := []string{"password", "secret", "dsn", "key", "token"}

	for key, val := range configMap {
		if subMap, ok := val.(map[string]any); ok {
			mask(subMap)
			continue
		}
		for _, sensitiveKey := range sensitiveKeys {
			if strings.Contains(strings.ToLower(key), sensitiveKey) {
				configMap[key] = "******"
				break
			}
		}
	}
}
