package config

import (
	"fmt"
	"strings"
	"time"

	"interruptd/pkg/config"
)

type Config struct {
	Server   config.ServerConfig   `yaml:"server"`
	DB       config.DBConfig       `yaml:"db"`
	MQ       config.MQConfig       `yaml:"mq"`
	Redis    config.RedisConfig    `yaml:"redis"`
	JWT      config.JWTConfig      `yaml:"jwt"`
	Log      config.LogConfig      `yaml:"log"`
	Tracking config.TrackingConfig `yaml:"tracking"`
	Insight  config.InsightConfig  `yaml:"insight"`
	Billing  config.BillingConfig  `yaml:"billing"`
	Otel     config.OtelConfig     `yaml:"otel"`
}

// Load reads config/<CONFIG_ENV>.yaml on top of config/base.yaml and applies
// environment overrides.
func Load(dir string) (*Config, error) {
	merged, err := config.LoadConfig(config.GetConfigEnv(), dir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := config.Decode(merged, &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideTrackingFromEnv(&cfg.Tracking)
	config.OverrideInsightFromEnv(&cfg.Insight)
	config.OverrideBillingFromEnv(&cfg.Billing)
	config.OverrideLogFromEnv(&cfg.Log)
	config.OverrideOtelFromEnv(&cfg.Otel)

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.JWT.TTL <= 0 {
		c.JWT.TTL = 24 * time.Hour
	}
	if c.Tracking.MaxOrdinal <= 0 {
		c.Tracking.MaxOrdinal = 364
	}
	if c.Tracking.Timezone == "" {
		c.Tracking.Timezone = "UTC"
	}
	if c.Insight.Timeout <= 0 {
		c.Insight.Timeout = 20 * time.Second
	}
	if c.Insight.CacheTTL <= 0 {
		c.Insight.CacheTTL = 6 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	// 未提供的可选密钥视为空
	for _, secret := range []*string{&c.DB.Password, &c.Redis.Password, &c.Insight.APIKey, &c.Billing.WebhookSecret} {
		if unresolved(*secret) {
			*secret = ""
		}
	}
}

// unresolved reports a ${VAR} placeholder that neither secrets.env nor the
// environment provided.
func unresolved(s string) bool {
	return strings.Contains(s, "${")
}

// Validate rejects configurations the services cannot start with.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" || unresolved(c.JWT.Secret) {
		return fmt.Errorf("jwt.secret is required")
	}
	if _, err := time.LoadLocation(c.Tracking.Timezone); err != nil {
		return fmt.Errorf("tracking.timezone: %w", err)
	}
	switch c.Insight.Provider {
	case "", "none", "openrouter", "gemini":
	default:
		return fmt.Errorf("insight.provider %q is not supported", c.Insight.Provider)
	}
	return nil
}

// Location returns the tracking time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Tracking.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
