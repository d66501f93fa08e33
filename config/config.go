// Package config resolves server settings from command-line flags with
// environment variable fallbacks. A flag given explicitly always wins over
// the environment.
//
//	-port             PORT              HTTP port (8080)
//	-db               DB_PATH           SQLite path, ":memory:" for in-memory (travel.db)
//	-log-level        LOG_LEVEL         debug|info|warn|error (info)
//	-replay           REPLAY_ENABLED    run the periodic ledger replay (true)
//	-replay-interval  REPLAY_INTERVAL   replay period (10m)
//	-cors-origins     CORS_ORIGINS      comma-separated allowed origins (*)
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/warp/travel-ledger/logging"
)

type Config struct {
	Port           int
	DBPath         string
	LogLevel       slog.Level
	ReplayEnabled  bool
	ReplayInterval time.Duration
	CORSOrigins    []string
}

// Addr is the listen address for Port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load parses args (without the program name) using os.Getenv for fallbacks.
func Load(args []string) (Config, error) {
	return LoadWithEnv(args, os.Getenv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(args []string, getenv func(string) string) (Config, error) {
	env := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fallback
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	port := fs.String("port", env("PORT", "8080"), "HTTP server port")
	dbPath := fs.String("db", env("DB_PATH", "travel.db"), "SQLite database path (\":memory:\" for in-memory)")
	level := fs.String("log-level", env("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	replay := fs.String("replay", env("REPLAY_ENABLED", "true"), "run the periodic ledger replay")
	interval := fs.String("replay-interval", env("REPLAY_INTERVAL", "10m"), "ledger replay period")
	origins := fs.String("cors-origins", env("CORS_ORIGINS", "*"), "comma-separated allowed CORS origins")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	var cfg Config
	var err error

	if cfg.Port, err = strconv.Atoi(*port); err != nil || cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid port %q", *port)
	}
	if strings.TrimSpace(*dbPath) == "" {
		return Config{}, fmt.Errorf("database path is required")
	}
	cfg.DBPath = *dbPath
	if cfg.LogLevel, err = logging.ParseLevel(*level); err != nil {
		return Config{}, err
	}
	if cfg.ReplayEnabled, err = strconv.ParseBool(*replay); err != nil {
		return Config{}, fmt.Errorf("invalid replay flag %q", *replay)
	}
	if cfg.ReplayInterval, err = time.ParseDuration(*interval); err != nil {
		return Config{}, fmt.Errorf("invalid replay interval %q: %w", *interval, err)
	}
	if cfg.ReplayEnabled && cfg.ReplayInterval <= 0 {
		return Config{}, fmt.Errorf("replay interval must be positive, got %s", cfg.ReplayInterval)
	}
	for _, o := range strings.Split(*origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	return cfg, nil
}
