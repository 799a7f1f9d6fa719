package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	Storage    StorageConfig    `yaml:"storage"`
	Tracing    TracingConfig    `mapstructure:"tracing" yaml:"tracing"`
	Redis      RedisConfig      `yaml:"redis"`
	CORS       CORSConfig       `mapstructure:"cors" yaml:"cors"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" yaml:"rate_limit"`
	Assessment AssessmentConfig `mapstructure:"assessment" yaml:"assessment"`

	// runtime flags, set from the command line rather than the config file
	ForceMigrate bool `mapstructure:"-" yaml:"-"` // run migrations even if the schema looks current
	MigrateOnly  bool `mapstructure:"-" yaml:"-"` // migrate, then exit
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests" yaml:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes" yaml:"window_minutes"`

	// per-user cap on answer submissions per minute
	ResponsesPerMinute int `mapstructure:"responses_per_minute" yaml:"responses_per_minute"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

type DatabaseConfig struct {
	Driver    string `yaml:"driver"` // mysql | postgres
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	DBName    string `yaml:"dbname"`
	Charset   string `yaml:"charset"`
	ParseTime bool   `mapstructure:"parsetime" yaml:"parsetime"`
	SSLMode   string `mapstructure:"sslmode" yaml:"sslmode"`
	TimeZone  string `mapstructure:"timezone" yaml:"timezone"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret" yaml:"secret"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type" yaml:"type"`
	LocalPath     string `mapstructure:"local_path" yaml:"local_path"`
	MaxUploadMB   int64  `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	MinioEndpoint string `mapstructure:"minio_endpoint" yaml:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key" yaml:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key" yaml:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket" yaml:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl" yaml:"minio_use_ssl"`
	OSSEndpoint   string `mapstructure:"oss_endpoint" yaml:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key" yaml:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key" yaml:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket" yaml:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled" yaml:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint" yaml:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AssessmentConfig tunes the attempt and grading engine.
type AssessmentConfig struct {
	TimeLimitGraceSeconds int `mapstructure:"time_limit_grace_seconds" yaml:"time_limit_grace_seconds"`
	LockWaitSeconds       int `mapstructure:"lock_wait_seconds" yaml:"lock_wait_seconds"`
	BankCacheTTLSeconds   int `mapstructure:"bank_cache_ttl_seconds" yaml:"bank_cache_ttl_seconds"`
}

func (c AssessmentConfig) TimeLimitGrace() time.Duration {
	return time.Duration(c.TimeLimitGraceSeconds) * time.Second
}

func (c AssessmentConfig) LockWait() time.Duration {
	if c.LockWaitSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.LockWaitSeconds) * time.Second
}

func (c AssessmentConfig) BankCacheTTL() time.Duration {
	return time.Duration(c.BankCacheTTLSeconds) * time.Second
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("LMS")
	v.AutomaticEnv()

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("log.level", "LOG_LEVEL")

	// Storage / OSS
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "uploads")
	v.SetDefault("storage.max_upload_mb", 20)
	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)
	v.SetDefault("rate_limit.responses_per_minute", 120)
	v.SetDefault("assessment.time_limit_grace_seconds", 30)
	v.SetDefault("assessment.lock_wait_seconds", 5)
	v.SetDefault("assessment.bank_cache_ttl_seconds", 300)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	// production needs a strong JWT secret
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Storage.Type {
	case "local", "minio", "oss":
	default:
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}
	if c.Assessment.TimeLimitGraceSeconds < 0 {
		return fmt.Errorf("assessment.time_limit_grace_seconds must not be negative")
	}
	return nil
}
