package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/sadopc/stackvault/internal/clock"
	"github.com/sadopc/stackvault/internal/config"
	"github.com/sadopc/stackvault/internal/metrics"
	"github.com/sadopc/stackvault/internal/storage"
	"github.com/sadopc/stackvault/internal/storage/bolt"
	"github.com/sadopc/stackvault/internal/storage/redis"
	"github.com/sadopc/stackvault/internal/store"
	"github.com/sadopc/stackvault/internal/timers"
)

// env is everything a command needs, opened from configuration.
type env struct {
	cfg      *config.Config
	logger   zerolog.Logger
	clock    clock.Clock
	store    *store.Store
	kv       storage.KV
	prefs    *storage.Prefs
	registry *timers.Registry
	metrics  *metrics.Server

	closers []func() error
}

type openOptions struct {
	configPath   string
	clock        clock.Clock
	serveMetrics bool
}

func openEnv(opts openOptions) (*env, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, logFile, err := setupLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger, clock: opts.clock}
	if e.clock == nil {
		e.clock = clock.Real{}
	}
	if logFile != nil {
		e.closers = append(e.closers, logFile.Close)
	}

	s, err := store.New(cfg.Database.Path)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s.SetClock(e.clock)
	e.store = s
	e.closers = append(e.closers, s.Close)

	logger.Debug().Str("path", cfg.Database.Path).Msg("Database opened")

	kv, closeKV, err := openState(cfg.State, s)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("failed to open state backend: %w", err)
	}
	e.kv = kv
	if closeKV != nil {
		e.closers = append(e.closers, closeKV)
	}

	logger.Debug().Str("backend", cfg.State.Backend).Msg("State backend opened")

	e.prefs = storage.NewPrefs(kv, logger)
	e.registry = timers.New(kv, e.clock, cfg.Timers.Interval(), logger)
	e.closers = append(e.closers, func() error {
		e.registry.Close()
		return nil
	})

	if opts.serveMetrics && cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr, logger)
		if err := srv.Start(); err != nil {
			e.close()
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		e.metrics = srv
		e.closers = append(e.closers, srv.Stop)
		logger.Info().Str("addr", srv.Addr()).Msg("Metrics server started")
	}

	return e, nil
}

// close releases resources in reverse order of opening.
func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Error().Err(err).Msg("Failed to close resource")
		}
	}
	e.closers = nil
}

// openState selects the KV backend for timers and preferences. The
// sqlite backend reuses the database's settings table.
func openState(cfg config.StateConfig, s *store.Store) (storage.KV, func() error, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return s, nil, nil
	case "bolt":
		b, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	case "redis":
		r, err := redis.Open(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	case "memory":
		return storage.NewMemoryKV(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported state backend: %s", cfg.Backend)
	}
}

// setupLogger configures the logger based on configuration. Logs go to
// the configured file so they never interleave with terminal output; an
// empty file means stderr.
func setupLogger(cfg config.LoggingConfig) (zerolog.Logger, *os.File, error) {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var out io.Writer = os.Stderr
	var file *os.File
	if cfg.File != "" {
		if err := storage.EnsureDir(filepath.Dir(cfg.File)); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		out, file = f, f
	}

	return newLogger(out, cfg.Format, level), file, nil
}

func newLogger(out io.Writer, format string, level zerolog.Level) zerolog.Logger {
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, NoColor: out != os.Stderr}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
