// Package config loads server settings from WHITEBOARD_* environment
// variables, with command-line flags taking precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
)

type Config struct {
	Addr    string `env:"WHITEBOARD_ADDR" envDefault:":8080"`
	DataDir string `env:"WHITEBOARD_DATA_DIR" envDefault:"./data"`

	// DBPath selects the SQLite backend; BoltPath the bbolt backend when
	// DBPath is empty. With neither, logs live as files under DataDir.
	DBPath   string `env:"WHITEBOARD_DB_PATH"`
	BoltPath string `env:"WHITEBOARD_BOLT_PATH"`

	LogLevel  string `env:"WHITEBOARD_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"WHITEBOARD_LOG_FORMAT" envDefault:"json"`

	ShutdownTimeout time.Duration `env:"WHITEBOARD_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	MessagesPerSecond float64 `env:"WHITEBOARD_MESSAGES_PER_SECOND" envDefault:"100"`
	MessageBurst      int     `env:"WHITEBOARD_MESSAGE_BURST" envDefault:"200"`
}

// Load reads the environment, then applies flags from args (without the
// program name).
func Load(args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	flagSet := pflag.NewFlagSet("whiteboard-server", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flagSet.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for the file backend")
	flagSet.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path (selects the SQLite backend)")
	flagSet.StringVar(&cfg.BoltPath, "bolt-path", cfg.BoltPath, "bbolt database path (selects the bbolt backend)")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flagSet.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "json or console")
	flagSet.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "grace period for open requests on shutdown")
	flagSet.Float64Var(&cfg.MessagesPerSecond, "messages-per-second", cfg.MessagesPerSecond, "sustained frames per second per connection")
	flagSet.IntVar(&cfg.MessageBurst, "message-burst", cfg.MessageBurst, "frame burst per connection")

	if err := flagSet.Parse(args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.DBPath == "" && c.BoltPath == "" && strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data dir is required for the file backend"))
	}
	if c.MessagesPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("messages per second must be positive, got %v", c.MessagesPerSecond))
	}
	if c.MessageBurst <= 0 {
		errs = append(errs, fmt.Errorf("message burst must be positive, got %d", c.MessageBurst))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
