package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"courier/internal/domain"
)

// EnvPrefix is prepended to every environment variable read by viper.
const EnvPrefix = "COURIER"

// Config is the server configuration.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Purge    PurgeConfig    `mapstructure:"purge"`
	Log      LogConfig      `mapstructure:"log"`
	Roster   RosterConfig   `mapstructure:"roster"`
}

type HTTPConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// DatabaseConfig selects the store. An empty URL keeps everything in memory.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig enables cross-node fan-out and the asynq purge worker.
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Channel string `mapstructure:"channel"`
}

type PurgeConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Env   string `mapstructure:"env"`
}

// RosterConfig seeds team membership and admins at startup.
type RosterConfig struct {
	Teams  map[string][]string `mapstructure:"teams"`
	Admins []string            `mapstructure:"admins"`
}

// LoadConfig reads .env (if present), then the optional YAML file at path,
// then COURIER_* environment variables, over built-in defaults.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return ParseConfig(v)
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "courier")
	v.SetDefault("database.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel", "")
	v.SetDefault("purge.interval", time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.env", "development")
	v.SetDefault("roster.admins", []string{})
	return v
}

// ParseConfig unmarshals v and validates the result.
func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("config: auth.jwt_secret is required")
	}
	if c.Purge.Interval <= 0 {
		return fmt.Errorf("config: purge.interval must be positive, got %s", c.Purge.Interval)
	}
	if c.HTTP.Addr == "" {
		return errors.New("config: http.addr is required")
	}
	return nil
}

// TeamMap converts the configured roster to domain identifiers.
func (r RosterConfig) TeamMap() map[domain.TeamID][]domain.UserID {
	out := make(map[domain.TeamID][]domain.UserID, len(r.Teams))
	for team, members := range r.Teams {
		ids := make([]domain.UserID, 0, len(members))
		for _, m := range members {
			ids = append(ids, domain.UserID(m))
		}
		out[domain.TeamID(team)] = ids
	}
	return out
}

// AdminIDs returns the configured admins as user identifiers.
func (r RosterConfig) AdminIDs() []domain.UserID {
	out := make([]domain.UserID, 0, len(r.Admins))
	for _, a := range r.Admins {
		out = append(out, domain.UserID(a))
	}
	return out
}
