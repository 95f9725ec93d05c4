// Package config loads the botfactory configuration from flags, environment and an
// optional YAML file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. BOTFACTORY_REDIS_ADDR.
const EnvPrefix = "BOTFACTORY"

// Config is the full runtime configuration.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	MCP      MCPConfig      `mapstructure:"mcp"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Specs    SpecsConfig    `mapstructure:"specs"`
	State    StateConfig    `mapstructure:"state"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
	I18n     I18nConfig     `mapstructure:"i18n"`
	AB       ABConfig       `mapstructure:"ab"`
	Log      LogConfig      `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type MCPConfig struct {
	// Addr serves the SSE transport; empty means stdio.
	Addr string `mapstructure:"addr"`
}

// RedisConfig selects the state and counter backend. An empty Addr starts an embedded server.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type SpecsConfig struct {
	Dir string `mapstructure:"dir"`
}

type StateConfig struct {
	TTL          time.Duration `mapstructure:"ttl"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
	MaxInputSize int           `mapstructure:"max_input_size"`
	// EncryptionKey is a base64 AES-256 key sealing stored wizards; empty stores them in clear.
	EncryptionKey string   `mapstructure:"encryption_key"`
	FallbackKeys  []string `mapstructure:"fallback_keys"`
}

// LLMConfig configures the completion backend. An empty BaseURL disables text improvement.
type LLMConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	Model            string        `mapstructure:"model"`
	Temperature      float64       `mapstructure:"temperature"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	TopP             float64       `mapstructure:"top_p"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	RateLimit        int           `mapstructure:"rate_limit"`
	RateWindow       time.Duration `mapstructure:"rate_window"`
	DailyTokenBudget int64         `mapstructure:"daily_token_budget"`
	Timezone         string        `mapstructure:"timezone"`
}

type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	TimeoutThreshold time.Duration `mapstructure:"timeout_threshold"`
}

type I18nConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// ABConfig grants LLM text improvement to a share of users.
type ABConfig struct {
	Experiment     string `mapstructure:"experiment"`
	ImprovePercent int    `mapstructure:"improve_percent"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Location resolves the budget timezone, defaulting to the local zone.
func (c LLMConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// SetDefaults registers the default of every key, so env overrides work for all of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("mcp.addr", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "botfactory:")
	v.SetDefault("database.dsn", ":memory:")
	v.SetDefault("specs.dir", "specs")
	v.SetDefault("state.ttl", 24*time.Hour)
	v.SetDefault("state.lock_ttl", 30*time.Second)
	v.SetDefault("state.max_input_size", 4096)
	v.SetDefault("state.encryption_key", "")
	v.SetDefault("state.fallback_keys", []string{})

	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("llm.top_p", 1.0)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.cache_ttl", 15*time.Minute)
	v.SetDefault("llm.rate_limit", 10)
	v.SetDefault("llm.rate_window", time.Minute)
	v.SetDefault("llm.daily_token_budget", 0)
	v.SetDefault("llm.timezone", "")

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_timeout", 30*time.Second)
	v.SetDefault("breaker.success_threshold", 2)
	v.SetDefault("breaker.timeout_threshold", 25*time.Second)

	v.SetDefault("i18n.cache_ttl", 5*time.Minute)
	v.SetDefault("ab.experiment", "llm_improve")
	v.SetDefault("ab.improve_percent", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"addr":       "http.addr",
	"mcp-addr":   "mcp.addr",
	"redis-addr": "redis.addr",
	"db":         "database.dsn",
	"specs":      "specs.dir",
	"llm-url":    "llm.base_url",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// BindFlags binds the known flags present in flags to their keys.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads file (if set), applies env overrides and decodes the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", file, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if c.AB.ImprovePercent < 0 || c.AB.ImprovePercent > 100 {
		return fmt.Errorf("ab.improve_percent must be within 0..100, got %d", c.AB.ImprovePercent)
	}
	if c.Breaker.FailureThreshold <= 0 || c.Breaker.SuccessThreshold <= 0 {
		return errors.New("breaker thresholds must be positive")
	}
	if _, err := c.LLM.Location(); err != nil {
		return fmt.Errorf("llm.timezone: %w", err)
	}
	return nil
}
