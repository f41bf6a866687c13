package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts "2s" style values in YAML, which the yaml package does
// not do for time.Duration itself.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	v, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Tracking      TrackingConfig      `yaml:"tracking"`
	Geocode       GeocodeConfig       `yaml:"geocode"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// AuthConfig defines token settings. The secret may also come from
// APP_JWT_SECRET in the environment.
type AuthConfig struct {
	JWTSecret string   `yaml:"jwt_secret"`
	TokenTTL  Duration `yaml:"token_ttl"`
}

// TrackingConfig defines the simulation engine settings.
type TrackingConfig struct {
	TickInterval Duration `yaml:"tick_interval"`
}

// GeocodeConfig defines the geocoding/directions provider. The API key may
// also come from ORS_API_KEY in the environment. An empty key disables
// geocoding; orders then require raw coordinates.
type GeocodeConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	CachePath string `yaml:"cache_path"`
}

// NotificationsConfig defines the optional AMQP fanout. An empty URL
// disables the broker sink; websocket notifications always work.
type NotificationsConfig struct {
	AMQPURL string `yaml:"amqp_url"`
}

// Defaults returns a Config with sane defaults for local runs.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8081",
		},
		Auth: AuthConfig{
			TokenTTL: Duration(4 * time.Hour),
		},
		Tracking: TrackingConfig{
			TickInterval: Duration(2 * time.Second),
		},
		Geocode: GeocodeConfig{
			BaseURL:   "https://api.openrouteservice.org",
			CachePath: "geocode.db",
		},
	}
}

// Load reads a YAML config file and applies environment overrides.
// If the file doesn't exist, defaults are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// Secrets and deployment-specific values win from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("APP_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("ORS_API_KEY"); v != "" {
		c.Geocode.APIKey = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		c.Notifications.AMQPURL = v
	}
}
