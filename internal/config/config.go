package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const envPrefix = "LOCALNOTIFY"

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Backend       BackendConfig       `mapstructure:"backend"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Log           LogConfig           `mapstructure:"log"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// BackendConfig selects where pending requests live.
type BackendConfig struct {
	Driver string `mapstructure:"driver"`
	// Decision is what the memory backend answers to the permission prompt.
	Decision string `mapstructure:"decision"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Channel string `mapstructure:"channel"`
}

type NotificationsConfig struct {
	ErrorClearDelay       time.Duration `mapstructure:"error_clear_delay"`
	TimeZone              string        `mapstructure:"timezone"`
	RecheckBeforeSchedule bool          `mapstructure:"recheck_before_schedule"`
	GranularRepeats       bool          `mapstructure:"granular_repeats"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// AuthConfig enables bearer-token checks when Secret is set.
type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type WorkerConfig struct {
	PruneInterval time.Duration `mapstructure:"prune_interval"`
	Retention     time.Duration `mapstructure:"retention"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `mapstructure:"prometheus_enabled"`
	Namespace         string `mapstructure:"namespace"`
}

// overrides are read from LOCALNOTIFY_* after the file, so deployments can
// flip a handful of settings without shipping a new config.yaml.
type overrides struct {
	Port         int    `envconfig:"PORT"`
	Driver       string `envconfig:"BACKEND_DRIVER"`
	DatabaseHost string `envconfig:"DATABASE_HOST"`
	DatabasePass string `envconfig:"DATABASE_PASSWORD"`
	RedisURL     string `envconfig:"REDIS_URL"`
	AuthSecret   string `envconfig:"AUTH_SECRET"`
	LogLevel     string `envconfig:"LOG_LEVEL"`
	TimeZone     string `envconfig:"TIMEZONE"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("backend.driver", "memory")
	v.SetDefault("backend.decision", "authorized")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.channel", "localnotify.events")
	v.SetDefault("notifications.error_clear_delay", 3*time.Second)
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("worker.prune_interval", time.Minute)
	v.SetDefault("worker.retention", 24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("monitoring.prometheus_enabled", true)
	v.SetDefault("monitoring.namespace", "localnotify")
}

// LoadConfig reads config.yaml from the given paths (or . and ./config),
// falls back to defaults when no file exists, then applies environment overrides.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env overrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	config.apply(env)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) apply(env overrides) {
	if env.Port != 0 {
		c.Server.Port = env.Port
	}
	if env.Driver != "" {
		c.Backend.Driver = env.Driver
	}
	if env.DatabaseHost != "" {
		c.Database.Host = env.DatabaseHost
	}
	if env.DatabasePass != "" {
		c.Database.Password = env.DatabasePass
	}
	if env.RedisURL != "" {
		c.Redis.URL = env.RedisURL
		c.Redis.Enabled = true
	}
	if env.AuthSecret != "" {
		c.Auth.Secret = env.AuthSecret
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	if env.TimeZone != "" {
		c.Notifications.TimeZone = env.TimeZone
	}
}

func (c *Config) Validate() error {
	switch c.Backend.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown backend driver %q", c.Backend.Driver)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Notifications.ErrorClearDelay <= 0 {
		return fmt.Errorf("notifications.error_clear_delay must be positive")
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required when redis is enabled")
	}
	if c.Notifications.TimeZone != "" {
		if _, err := time.LoadLocation(c.Notifications.TimeZone); err != nil {
			return fmt.Errorf("invalid notifications.timezone: %w", err)
		}
	}
	return nil
}

// VolatileIntervals reports whether pending requests outlive a restart while
// the repeat intervals recorded for them do not.
func (c *Config) VolatileIntervals() bool {
	return c.Backend.Driver == "postgres" && !c.Redis.Enabled
}

// Location returns the zone scheduling uses, time.Local when unset.
func (c NotificationsConfig) Location() *time.Location {
	if c.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}
