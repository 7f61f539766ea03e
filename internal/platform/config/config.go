// Package config loads service configuration from a TOML file plus
// environment overrides. Everything tunable lives here so main stays lean and
// nothing in the domain packages reads globals.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the injected configuration for the whole service.
type Config struct {
	Service  Service  `mapstructure:"service"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	NATS     NATS     `mapstructure:"nats"`
	Workflow Workflow `mapstructure:"workflow"`
}

type Service struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type Server struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type Database struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	Database    string        `mapstructure:"database"`
	SSLMode     string        `mapstructure:"ssl_mode"`
	MaxConns    int32         `mapstructure:"max_conns"`
	MinConns    int32         `mapstructure:"min_conns"`
	MaxConnTime time.Duration `mapstructure:"max_conn_time"`
	MaxIdleTime time.Duration `mapstructure:"max_idle_time"`
}

type NATS struct {
	URL string `mapstructure:"url"`
}

// Workflow carries the advisory SLA windows stamped onto proposals. The
// engine never enforces them; dashboards read them.
type Workflow struct {
	StageSLA       time.Duration `mapstructure:"stage_sla"`
	FulfillmentSLA time.Duration `mapstructure:"fulfillment_sla"`
}

// Load reads config.toml (CONFIG_NAME overrides the basename) and applies
// environment variables on top, e.g. SERVER_PORT or DATABASE_HOST.
func Load() (*Config, error) {
	_ = godotenv.Load()

	name := "config"
	if v := os.Getenv("CONFIG_NAME"); v != "" {
		name = v
	}

	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath("config")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults plus env cover dev runs.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "be-procurement")
	v.SetDefault("service.version", "dev")
	v.SetDefault("service.environment", "development")

	v.SetDefault("server.port", 8086)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "procurement")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_time", time.Hour)
	v.SetDefault("database.max_idle_time", 30*time.Minute)

	v.SetDefault("workflow.stage_sla", 48*time.Hour)
	v.SetDefault("workflow.fulfillment_sla", 14*24*time.Hour)
}
