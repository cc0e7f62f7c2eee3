// Package genapp wires configuration, telemetry, mappings and an optional
// database connection into the sqlgen command: it prints the statements
// generated for the sample model and can run them against a live database.
package genapp

import (
	"fmt"
	"os"
	"sync"

	"entitysql/internal/config"
	"entitysql/internal/dbexec"
	"entitysql/internal/logging"
	"entitysql/internal/mapping"
	"entitysql/internal/observability"
)

// App owns runtime resources for the sqlgen lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	meterProvider    *observability.MeterProvider
	statementMetrics *observability.StatementMetrics
	tracerProvider   *observability.TracerProvider

	db        *dbexec.Database
	overrides *mapping.Overrides

	cleanup cleanupStack

	stateMu     sync.Mutex
	initialized bool

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper. The mapping overrides file, when
// configured, is parsed here so that a bad document fails before any
// resource is acquired.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	app := &App{cfg: cfg, logger: logger}
	if path := cfg.Generate.OverridesFile; path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open mapping overrides: %w", err)
		}
		defer f.Close()
		app.overrides, err = mapping.ParseOverrides(f)
		if err != nil {
			return nil, err
		}
	}
	return app, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

func (a *App) isInitialized() bool {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.initialized
}
