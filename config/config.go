package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"db"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Payment      PaymentConfig      `mapstructure:"payment"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Engine       EngineConfig       `mapstructure:"engine"`
	Notification NotificationConfig `mapstructure:"notification"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RateLimitPerMinute caps requests per client IP on the public API. 0 disables.
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // mysql | postgres | sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
}

// RedisConfig enables the shared config cache when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	AccessSecret string        `mapstructure:"access_secret"`
	AccessExpiry time.Duration `mapstructure:"access_expiry"`
	Issuer       string        `mapstructure:"issuer"`
}

type PaymentConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
	Provider      string `mapstructure:"provider"`
}

type SchedulerConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Sweep         string `mapstructure:"sweep"`
	ClusterStart  string `mapstructure:"cluster_start"`
	AutoApprove   string `mapstructure:"auto_approve"`
	ConfigRefresh string `mapstructure:"config_refresh"`
}

type EngineConfig struct {
	// TxMode forces a transaction strategy: auto | atomic | best_effort.
	TxMode          string        `mapstructure:"tx_mode"`
	ConfigTTL       time.Duration `mapstructure:"config_ttl"`
	MaxWriteRetries int           `mapstructure:"max_write_retries"`
	ClusterCapacity int           `mapstructure:"cluster_capacity"`
}

type NotificationConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Load reads path (YAML) overlaid by TPIA_* environment variables.
// With envOnly the file is skipped.
func Load(path string, envOnly bool) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TPIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "development")
	v.SetDefault("server.port", "8099")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.rate_limit_per_minute", 120)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "mysql")
	v.SetDefault("db.dsn", "tpia:tpia@tcp(localhost:3306)/tpia?charset=utf8mb4&parseTime=True&loc=UTC")
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.max_open_conns", 100)
	v.SetDefault("db.conn_max_lifetime", "1h")
	v.SetDefault("db.log_level", "error")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.access_secret", "change-me-in-production")
	v.SetDefault("jwt.access_expiry", "15m")
	v.SetDefault("jwt.issuer", "tpia")
	v.SetDefault("payment.provider", "gateway")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.sweep", "0 */5 * * * *")
	v.SetDefault("scheduler.cluster_start", "30 */5 * * * *")
	v.SetDefault("scheduler.auto_approve", "0 * * * * *")
	v.SetDefault("scheduler.config_refresh", "@every 1m")
	v.SetDefault("engine.tx_mode", "auto")
	v.SetDefault("engine.config_ttl", "30s")
	v.SetDefault("engine.max_write_retries", 5)
	v.SetDefault("engine.cluster_capacity", 10)
	v.SetDefault("notification.webhook_url", "")
	v.SetDefault("notification.timeout", "5s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
