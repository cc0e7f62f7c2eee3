package genapp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"entitysql/internal/config"
	"entitysql/internal/dbexec"
	"entitysql/internal/dialect"
	"entitysql/internal/logging"
	"entitysql/internal/mapping"
	"entitysql/internal/naming"
	"entitysql/internal/observability"
	"entitysql/internal/samplemodel"
)

// InitLogger builds the process logger and, when log export is enabled, the
// OTLP logger provider it fans out to.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	logger := logging.NewLogger(cfg.Observability.LoggingOptions(nil))
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(context.Background(), cfg.Observability.Telemetry(logsConfig))
	if err != nil {
		return nil, nil, err
	}

	logger.Info("OpenTelemetry logging initialized successfully")

	logger = logging.NewLogger(cfg.Observability.LoggingOptions(loggerProvider))
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.StatementMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
	)

	meterProvider, err := observability.InitMeterProvider(cfg.Observability.Telemetry(config.OTLPConfig{}))
	if err != nil {
		return nil, nil, err
	}

	statementMetrics, err := observability.InitStatementMetrics()
	if err != nil {
		return nil, nil, err
	}

	logger.Info("OpenTelemetry metrics initialized successfully")
	return meterProvider, statementMetrics, nil
}

func initTracing(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Bool("insecure", tracesConfig.Insecure),
	)

	tracerProvider, err := observability.InitTracerProvider(ctx, cfg.Observability.Telemetry(tracesConfig))
	if err != nil {
		return nil, err
	}

	logger.Info("OpenTelemetry tracing initialized successfully")
	return tracerProvider, nil
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*dbexec.Database, error) {
	open, err := cfg.OpenConfig()
	if err != nil {
		return nil, err
	}
	return dbexec.Open(open, logger)
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *dbexec.Database) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg, logger, db); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("dialect", db.Dialect.String()),
		slog.Int("pool_max_open", cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Database.Pool.MaxLifetime),
	)
	return nil
}

func waitForDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *dbexec.Database) error {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := cfg.Database.ConnectTimeout
	interval := cfg.Database.ConnectRetryInterval

	// A zero timeout tries once.
	if timeout == 0 {
		return db.PingContext(ctx)
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	deadline := time.Now().Add(timeout)
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}

		if dbexec.IsPermanentConnectError(err) {
			return fmt.Errorf("database rejected the connection: %w", err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		// Exponential backoff, capped at 30s
		interval = min(interval*2, 30*time.Second)
	}
}

// newRegistry returns a registry for d holding the sample entities, named by
// the configured strategies and adjusted by the overrides document.
func (a *App) newRegistry(d dialect.Dialect) (*mapping.Registry, error) {
	reg := mapping.NewRegistry(d,
		mapping.WithNamer(naming.New(a.cfg.Naming, a.logger.Logger)),
		mapping.WithLogger(a.logger.Logger),
	)
	for _, t := range samplemodel.Entities() {
		if _, err := reg.Mapping(t); err != nil {
			return nil, fmt.Errorf("failed to map %s: %w", t.Name(), err)
		}
	}
	if a.overrides != nil {
		if err := reg.ApplyOverrides(a.overrides); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
