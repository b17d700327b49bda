package config

import (
	"os"
	"strconv"
	"time"
)

// DBConfig 数据库配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
	// 慢查询阈值（毫秒），0 表示使用默认 100ms
	SlowQueryMs int `yaml:"slow_query_ms"`
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port string `yaml:"port"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level"`
}

// TrackingConfig controls the tracked calendar window.
type TrackingConfig struct {
	Year       int    `yaml:"year"`
	MaxOrdinal int    `yaml:"max_ordinal"`
	Timezone   string `yaml:"timezone"`
}

// InsightConfig selects and configures the text generation provider.
type InsightConfig struct {
	Provider string        `yaml:"provider"` // openrouter | gemini | none
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// BillingConfig Stripe webhook 配置
type BillingConfig struct {
	WebhookSecret string `yaml:"webhook_secret"`
}

// OtelConfig OpenTelemetry 配置
type OtelConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// envString 环境变量非空时覆盖 dst
func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// envInt 环境变量为合法整数时覆盖 dst，非法值忽略
func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// OverrideDBFromEnv 从 DB_* 环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	envString(&cfg.Host, "DB_HOST")
	envInt(&cfg.Port, "DB_PORT")
	envString(&cfg.User, "DB_USER")
	envString(&cfg.Password, "DB_PASSWORD")
	envString(&cfg.Name, "DB_NAME")
	envString(&cfg.SSLMode, "DB_SSLMODE")
}

func OverrideMQFromEnv(cfg *MQConfig) {
	envString(&cfg.URL, "MQ_URL")
}

func OverrideRedisFromEnv(cfg *RedisConfig) {
	envString(&cfg.Addr, "REDIS_ADDR")
	envString(&cfg.Password, "REDIS_PASSWORD")
	envInt(&cfg.DB, "REDIS_DB")
}

func OverrideJWTFromEnv(cfg *JWTConfig) {
	envString(&cfg.Secret, "JWT_SECRET")
}

func OverrideServerFromEnv(cfg *ServerConfig) {
	envString(&cfg.Port, "SERVER_PORT")
}

func OverrideLogFromEnv(cfg *LogConfig) {
	envString(&cfg.Level, "LOG_LEVEL")
}

// OverrideTrackingFromEnv 从 TRACKING_* 覆盖追踪窗口
func OverrideTrackingFromEnv(cfg *TrackingConfig) {
	envInt(&cfg.Year, "TRACKING_YEAR")
	envString(&cfg.Timezone, "TRACKING_TIMEZONE")
}

// OverrideInsightFromEnv 从环境变量覆盖 AI 配置
func OverrideInsightFromEnv(cfg *InsightConfig) {
	envString(&cfg.Provider, "INSIGHT_PROVIDER")
	envString(&cfg.APIKey, "INSIGHT_API_KEY")
	envString(&cfg.Model, "INSIGHT_MODEL")
}

// OverrideBillingFromEnv 从环境变量覆盖 Stripe 配置
func OverrideBillingFromEnv(cfg *BillingConfig) {
	envString(&cfg.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
}

func OverrideOtelFromEnv(cfg *OtelConfig) {
	envBool(&cfg.Enabled, "OTEL_ENABLED")
	envString(&cfg.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}
