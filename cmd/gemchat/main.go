package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"GemChat/internal/config"
	"GemChat/internal/gemini"
	"GemChat/internal/history"
	"GemChat/internal/session"
	"GemChat/internal/telemetry"
	"GemChat/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()

	// The config file is lower precedence than flags, so it has to be
	// located and loaded before flag defaults are registered.
	if path := configFlagValue(os.Args[1:]); path != "" {
		if err := config.LoadFile(path, &cfg); err != nil {
			return err
		}
	}

	flag.String("config", "", "Path to YAML config file")
	flag.StringVar(&cfg.Model, "model", cfg.Model, "Generation model name")
	flag.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "API endpoint base URL (empty for the default)")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "API call timeout")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	flag.StringVar(&cfg.HistoryDriver, "history-driver", cfg.HistoryDriver, "History store driver (memory|sqlite|redis)")
	flag.StringVar(&cfg.HistoryPath, "history-path", cfg.HistoryPath, "SQLite history database path")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for the redis history driver")
	flag.StringVar(&cfg.SessionID, "session-id", cfg.SessionID, "History record key (empty for the default slot)")
	flag.BoolVar(&cfg.Web, "web", cfg.Web, "Serve the websocket UI bridge instead of the REPL")
	flag.StringVar(&cfg.WebAddr, "web-addr", cfg.WebAddr, "Listen address for the web bridge")
	flag.Parse()

	apiKey, err := config.APIKey()
	if err != nil {
		return err
	}

	logger, err := telemetry.InitLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer cleanup()

	store, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize history store: %w", err)
	}
	defer store.Close()

	client := gemini.NewClient(cfg.Endpoint, cfg.Model, apiKey, cfg.Timeout, logger, tracer, meter)

	recordID := cfg.SessionID
	if recordID == "" {
		recordID = history.DefaultRecordID
	}
	manager := session.NewManager(client, store, recordID, logger)
	manager.Restore(ctx)

	if cfg.Web {
		return web.NewServer(cfg.WebAddr, manager, logger).ListenAndServe(ctx)
	}

	return newREPL(manager, logger).run(ctx)
}

// newStore builds the history store selected by the configuration
func newStore(cfg config.Config) (session.Store, error) {
	switch cfg.HistoryDriver {
	case config.DriverMemory:
		return history.New(history.DriverMemory)
	case config.DriverSQLite:
		return history.New(history.DriverSQLite, history.WithPath(cfg.HistoryPath))
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return history.New(history.DriverRedis, history.WithRedisClient(client))
	default:
		return nil, fmt.Errorf("unknown history driver: %s", cfg.HistoryDriver)
	}
}

// configFlagValue pre-scans arguments for the config file path
func configFlagValue(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "-config" || arg == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(arg, "-config="):
			return strings.TrimPrefix(arg, "-config=")
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}
