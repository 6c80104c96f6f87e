// Package cli holds the start-up steps shared by cmd/tally and cmd/tallyctl,
// plus the tallyctl command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tally/internal/backend"
	"tally/internal/config"
	"tally/internal/log"
	"tally/internal/services"
)

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig reads the environment and rejects bad settings.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger builds the process logger from cfg and installs it as the
// slog default.
func SetupLogger(cfg *config.Config, out io.Writer) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := log.New(log.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: log.ComponentApp,
		Output:    out,
	})
	log.SetDefault(logger)
	return logger, nil
}

// OpenBackend assembles the configured store and services. Import rows are
// reported through logger.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *log.Logger) (*backend.BackendResult, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("backend config: %w", err)
	}
	bc.Observer = services.NewLogObserver(logger)
	bc.Logger = logger.Logger.With(log.FieldComponent, log.ComponentBackend)

	result, err := backend.NewFactory(bc.Logger).CreateBackend(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}
	return result, nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
