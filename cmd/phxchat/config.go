package main

import (
	"os"
	"strings"
	"time"

	phx "github.com/go-phx-channels/phxclient"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix  = "PHXCHAT"
	defaultURL = "ws://localhost:4000/socket/websocket"
)

// Config is resolved from flags, PHXCHAT_* environment variables and an
// optional YAML file, in that order of precedence.
type Config struct {
	URL         string        `mapstructure:"url"`
	User        string        `mapstructure:"user"`
	Heartbeat   time.Duration `mapstructure:"heartbeat"`
	LogLevel    string        `mapstructure:"log-level"`
	MetricsAddr string        `mapstructure:"metrics-addr"`
	Insecure    bool          `mapstructure:"insecure"`
}

func registerFlags(flags *pflag.FlagSet) {
	flags.String("url", defaultURL, "socket endpoint (ws, wss, http or https)")
	flags.String("user", defaultUser(), "name sent with the join")
	flags.Duration("heartbeat", phx.DefaultHeartbeatInterval, "heartbeat interval")
	flags.String("log-level", "warn", "log level (trace, debug, info, warn, error)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")
	flags.Bool("insecure", false, "skip TLS certificate verification")
	flags.String("config", "", "path to a YAML config file")
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "anonymous"
}

func loadConfig(v *viper.Viper, flags *pflag.FlagSet) (*Config, error) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, errors.Wrap(err, "bind flags")
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	if cfg.URL == "" {
		return nil, errors.New("url must not be empty")
	}
	if cfg.User == "" {
		return nil, errors.New("user must not be empty")
	}
	if cfg.Heartbeat <= 0 {
		return nil, errors.Errorf("heartbeat must be positive, got %s", cfg.Heartbeat)
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return nil, errors.Wrapf(err, "log-level %q", cfg.LogLevel)
	}
	return &cfg, nil
}
