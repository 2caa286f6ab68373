package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dukahub/dukasync/internal/config"
	"github.com/dukahub/dukasync/internal/outbox"
	"github.com/dukahub/dukasync/internal/remote"
)

// setupLogging configures the default slog handler from the verbose flag.
func setupLogging(opts *RootOptions) {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// loadConfig reads the configuration named by the global --config flag.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}

// openOutbox opens the local SQLite outbox named by the configuration.
func openOutbox(cfg *config.Config) (*outbox.Store, error) {
	st, err := outbox.Open(cfg.StorePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open local store", err)
	}
	return st, nil
}

// newBackend builds the configured remote transport.
func newBackend(cfg *config.Config) (remote.Backend, func() error, error) {
	switch cfg.Remote.Kind {
	case "http":
		b := remote.NewHTTPBackend(cfg.Remote.BaseURL, cfg.Remote.APIKey, cfg.RemoteTimeout())
		return b, func() error { return nil }, nil
	case "mysql":
		b, err := remote.OpenMySQL(cfg.Remote.DSN)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to open mysql backend", err)
		}
		return b, b.Close, nil
	default:
		return nil, nil, WrapExitError(ExitCommandError,
			fmt.Sprintf("unknown remote kind %q", cfg.Remote.Kind), nil)
	}
}
