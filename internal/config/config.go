package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Retest    RetestConfig    `mapstructure:"retest"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool   `mapstructure:"-"`
	MigrateOnly  bool   `mapstructure:"-"`
	ConfigFile   string `mapstructure:"-"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver    string
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	SSLMode   string `mapstructure:"sslmode"`
	// Path 仅 sqlite 驱动使用
	Path string
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	// Level 为空时按 server.mode 决定，debug 模式下为 debug，否则 info
	Level      string `mapstructure:"level"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Console    bool   `mapstructure:"console"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ServiceName       string `mapstructure:"service_name"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAgeSeconds  int      `mapstructure:"max_age_seconds"`
}

type RateLimitConfig struct {
	MaxRequests   int      `mapstructure:"max_requests"`
	WindowMinutes int      `mapstructure:"window_minutes"`
	Burst         int      `mapstructure:"burst"`
	ExemptPaths   []string `mapstructure:"exempt_paths"`
	// SubmitMaxRequests 每个学生在一个窗口内的提交次数上限，0 表示不单独限制
	SubmitMaxRequests int `mapstructure:"submit_max_requests"`
}

// RetestConfig 重测提交流程的可调参数，也是唯一支持热更新的配置段
type RetestConfig struct {
	DefaultPassingThreshold float64       `mapstructure:"default_passing_threshold"`
	OutboxInterval          time.Duration `mapstructure:"outbox_interval"`
	OutboxBatchSize         int           `mapstructure:"outbox_batch_size"`
	OutboxMaxAttempts       int           `mapstructure:"outbox_max_attempts"`
	SummaryCacheTTL         time.Duration `mapstructure:"summary_cache_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("log.filename", "logs/app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.console", true)
	v.SetDefault("tracing.service_name", "retest-backend")
	v.SetDefault("rate_limit.max_requests", 6000)
	v.SetDefault("rate_limit.window_minutes", 1)
	v.SetDefault("rate_limit.exempt_paths", []string{"/api/health", "/metrics"})
	v.SetDefault("rate_limit.submit_max_requests", 30)
	v.SetDefault("cors.max_age_seconds", 600)
	v.SetDefault("retest.default_passing_threshold", 50)
	v.SetDefault("retest.outbox_interval", "30s")
	v.SetDefault("retest.outbox_batch_size", 50)
	v.SetDefault("retest.outbox_max_attempts", 10)
	v.SetDefault("retest.summary_cache_ttl", "10m")
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("RETEST")
	v.AutomaticEnv()

	// 数据库
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")
	v.BindEnv("database.path", "DATABASE_PATH")

	// JWT配置
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis配置
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// 服务配置
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("server.port", "SERVER_PORT")

	// 链路追踪
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if err := cfg.Retest.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (r RetestConfig) Validate() error {
	if r.DefaultPassingThreshold <= 0 || r.DefaultPassingThreshold > 100 {
		return fmt.Errorf("retest.default_passing_threshold must be in (0, 100], got %v", r.DefaultPassingThreshold)
	}
	if r.OutboxMaxAttempts <= 0 {
		return fmt.Errorf("retest.outbox_max_attempts must be positive, got %d", r.OutboxMaxAttempts)
	}
	return nil
}
