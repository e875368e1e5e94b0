package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server       ServerConfig       `envPrefix:"SERVER_"`
	Database     DatabaseConfig     `envPrefix:"DATABASE_"`
	Cache        CacheConfig        `envPrefix:"CACHE_"`
	Kafka        KafkaConfig        `envPrefix:"KAFKA_"`
	Connectivity ConnectivityConfig `envPrefix:"CONNECTIVITY_"`
	Log          LogConfig          `envPrefix:"LOG_"`
}

type ServerConfig struct {
	Addr string `env:"ADDR" envDefault:"127.0.0.1:8080"`
	// CORSOrigin is a regexp of browser origins allowed to call the API.
	CORSOrigin string `env:"CORS_ORIGIN"`
	Pprof      bool   `env:"PPROF" envDefault:"false"`
}

type DatabaseConfig struct {
	Hosts      []string      `env:"HOSTS" envSeparator:"," envDefault:"localhost:27017"`
	Direct     bool          `env:"DIRECT" envDefault:"true"`
	Username   string        `env:"USERNAME"`
	Password   string        `env:"PASSWORD"`
	AuthDB     string        `env:"AUTH_DB" envDefault:"admin"`
	Database   string        `env:"DATABASE" envDefault:"chat"`
	Collection string        `env:"COLLECTION" envDefault:"messages"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type CacheConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	Path   string `env:"PATH" envDefault:"chat-cache.db"`
}

type KafkaConfig struct {
	Enabled  bool     `env:"ENABLED" envDefault:"false"`
	Brokers  []string `env:"BROKERS" envSeparator:","`
	Topic    string   `env:"TOPIC" envDefault:"chat.messages"`
	ClientID string   `env:"CLIENT_ID" envDefault:"chat-sync"`
}

type ConnectivityConfig struct {
	// Mode is "manual" (the host UI reports network status) or "probe".
	Mode      string        `env:"MODE" envDefault:"manual"`
	Initial   string        `env:"INITIAL" envDefault:"unknown"`
	ProbeURLs []string      `env:"PROBE_URLS" envSeparator:","`
	Interval  time.Duration `env:"INTERVAL" envDefault:"5s"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"2s"`
}

type LogConfig struct {
	Level       string `env:"LEVEL" envDefault:"info"`
	Development bool   `env:"DEVELOPMENT" envDefault:"false"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}
	return cfg
}

func (c *Config) validate() error {
	if c.Server.CORSOrigin != "" {
		if _, err := regexp.Compile(c.Server.CORSOrigin); err != nil {
			return fmt.Errorf("invalid SERVER_CORS_ORIGIN: %w", err)
		}
	}
	switch c.Cache.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}
	switch c.Connectivity.Mode {
	case "manual":
	case "probe":
		if len(c.Connectivity.ProbeURLs) == 0 {
			return fmt.Errorf("connectivity probe mode needs CONNECTIVITY_PROBE_URLS")
		}
	default:
		return fmt.Errorf("unknown connectivity mode %q", c.Connectivity.Mode)
	}
	switch c.Connectivity.Initial {
	case "unknown", "connected", "disconnected":
	default:
		return fmt.Errorf("unknown initial connectivity %q", c.Connectivity.Initial)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled without KAFKA_BROKERS")
	}
	return nil
}
