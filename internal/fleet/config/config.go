// Package config loads the fleet service configuration from a YAML file and
// FLEET_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gartstein/fleet/internal/fleet/billing"
	"github.com/gartstein/fleet/internal/fleet/db"
	"github.com/spf13/viper"
)

// PathEnv names the environment variable holding the config file path.
const PathEnv = "FLEET_CONFIG"

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	GRPC    GRPCConfig    `mapstructure:"grpc"`
	DB      DBConfig      `mapstructure:"db"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Billing BillingConfig `mapstructure:"billing"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

// Development reports whether a development logger should be used.
func (a AppConfig) Development() bool {
	return a.Env == "development"
}

type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

type GRPCConfig struct {
	Port int `mapstructure:"port"`
}

type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
	Debug    bool   `mapstructure:"debug"`
}

// Repository converts the section into the repository configuration.
func (c DBConfig) Repository() *db.Config {
	return &db.Config{
		Driver:   c.Driver,
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		DBName:   c.Name,
		SSLMode:  c.SSLMode,
		Path:     c.Path,
		Debug:    c.Debug,
	}
}

type AuthConfig struct {
	TokenSecret string        `mapstructure:"token_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
}

type ProviderSettings struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type BillingConfig struct {
	Providers map[string]ProviderSettings `mapstructure:"providers"`
	// Checkout names the provider used for hosted checkout sessions.
	Checkout  string `mapstructure:"checkout"`
	TrialDays int    `mapstructure:"trial_days"`
	PlansFile string `mapstructure:"plans_file"`
}

// ProviderConfigs returns the provider credentials keyed by provider name.
func (b BillingConfig) ProviderConfigs() map[string]billing.ProviderConfig {
	out := make(map[string]billing.ProviderConfig, len(b.Providers))
	for name, p := range b.Providers {
		out[name] = billing.ProviderConfig{SecretKey: p.SecretKey, WebhookSecret: p.WebhookSecret}
	}
	return out
}

// TrialPeriod is the signup trial length.
func (b BillingConfig) TrialPeriod() time.Duration {
	return time.Duration(b.TrialDays) * 24 * time.Hour
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "production")
	v.SetDefault("http.port", 8080)
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("db.driver", db.DriverPostgres)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.name", "fleet")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.debug", false)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("billing.checkout", billing.ProviderStripe)
	v.SetDefault("billing.trial_days", 14)
	v.SetDefault("billing.plans_file", "plans.yaml")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "fleet-events")
	v.SetDefault("kafka.group_id", "fleet-auditor")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Minute)
}

// envOnlyKeys have no default but must still be readable from the
// environment, which viper only consults for keys it knows about.
var envOnlyKeys = []string{
	"db.password",
	"db.path",
	"auth.token_secret",
	"redis.password",
	"billing.providers.stripe.secret_key",
	"billing.providers.stripe.webhook_secret",
	"billing.providers.paystack.secret_key",
	"billing.providers.paystack.webhook_secret",
}

// Load reads the file at path, or at $FLEET_CONFIG when path is empty, and
// applies FLEET_* environment overrides (FLEET_DB_HOST for db.host). With
// neither a path nor the variable set, only defaults and the environment
// are used.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("FLEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth.token_secret is required")
	}
	switch c.DB.Driver {
	case db.DriverPostgres:
	case db.DriverSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("db.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported db.driver %q", c.DB.Driver)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Billing.TrialDays <= 0 {
		return fmt.Errorf("billing.trial_days must be positive")
	}
	return nil
}
