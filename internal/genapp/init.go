package genapp

import (
	"context"
	"fmt"
	"log/slog"

	"entitysql/internal/dbexec"
)

// Init initializes telemetry and, when the smoke test is enabled, the
// database connection. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	if a.isInitialized() {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, statementMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	var db *dbexec.Database
	if a.cfg.Generate.SmokeTest {
		a.logger.Info("connecting to database",
			slog.String("dialect", a.cfg.Database.Dialect),
			slog.Bool("dsn_present", a.cfg.Database.DSN != ""),
		)

		db, err = connectDB(a.cfg, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		cleanup.push("database", func(_ context.Context) error {
			return db.Close()
		})

		if err := configureDatabase(ctx, a.cfg, a.logger, db); err != nil {
			return fmt.Errorf("failed to verify database connection: %w", err)
		}
	}

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.statementMetrics = statementMetrics
	a.tracerProvider = tracerProvider
	a.db = db
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
