// Package config loads configuration from files, env vars, and flags, and validates it.
package config

import (
	"maps"
	"time"

	"entitysql/internal/dbexec"
	"entitysql/internal/dialect"
	"entitysql/internal/logging"
	"entitysql/internal/naming"
	"entitysql/internal/observability"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Generate      GenerateConfig      `mapstructure:"generate"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Naming        naming.Config       `mapstructure:"naming"`
}

// DatabaseConfig holds the connection used for round trips.
type DatabaseConfig struct {
	Dialect          string        `mapstructure:"dialect"`
	Driver           string        `mapstructure:"driver"` // empty selects the dialect default
	DSN              string        `mapstructure:"dsn"`
	DSNFile          string        `mapstructure:"dsn_file"`   // use @- for stdin
	DSNPrompt        bool          `mapstructure:"dsn_prompt"` // read the DSN from the terminal without echo
	Pool             PoolConfig    `mapstructure:"pool"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`

	// ConnectTimeout bounds the wait for the database at startup; zero
	// tries once. Retries back off from ConnectRetryInterval.
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	ConnectRetryInterval time.Duration `mapstructure:"connect_retry_interval"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// GenerateConfig selects what the generator prints and runs.
type GenerateConfig struct {
	Dialects      []string `mapstructure:"dialects"`
	Entities      []string `mapstructure:"entities"`       // empty means every sample entity
	OverridesFile string   `mapstructure:"overrides_file"` // YAML mapping overrides
	SmokeTest     bool     `mapstructure:"smoke_test"`     // run statements against database.dsn
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName         string        `mapstructure:"service_name"`
	ServiceVersion      string        `mapstructure:"service_version"`
	Environment         string        `mapstructure:"environment"`
	MetricsEnabled      bool          `mapstructure:"metrics_enabled"`
	TracingEnabled      bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio    float64       `mapstructure:"trace_sample_ratio"`
	SQLCommenterEnabled bool          `mapstructure:"sqlcommenter_enabled"` // Inject trace context into SQL queries
	Logging             LoggingConfig `mapstructure:"logging"`

	// Global OTLP settings (defaults for all signals)
	OTLP OTLPConfig `mapstructure:"otlp"`

	// Signal-specific overrides (optional)
	Traces *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs   *OTLPConfig `mapstructure:"logs,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // "none", "gzip"
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}

// GetTracesConfig returns the effective OTLP config for traces
func (c *ObservabilityConfig) GetTracesConfig() OTLPConfig {
	if c.Traces != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Traces)
	}
	return c.OTLP
}

// GetLogsConfig returns the effective OTLP config for logs
func (c *ObservabilityConfig) GetLogsConfig() OTLPConfig {
	if c.Logs != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Logs)
	}
	return c.OTLP
}

// mergeOTLPConfigs merges signal-specific config over global defaults
func mergeOTLPConfigs(base OTLPConfig, override OTLPConfig) OTLPConfig {
	result := base

	if override.Endpoint != "" {
		result.Endpoint = override.Endpoint
	}
	if override.Protocol != "" {
		result.Protocol = override.Protocol
	}
	// Insecure cannot distinguish unset from false; a present override wins.
	result.Insecure = override.Insecure

	if override.TLSCertFile != "" {
		result.TLSCertFile = override.TLSCertFile
	}
	if override.TLSClientCertFile != "" {
		result.TLSClientCertFile = override.TLSClientCertFile
	}
	if override.TLSClientKeyFile != "" {
		result.TLSClientKeyFile = override.TLSClientKeyFile
	}

	if override.Headers != nil {
		result.Headers = make(map[string]string, len(base.Headers)+len(override.Headers))
		maps.Copy(result.Headers, base.Headers)
		maps.Copy(result.Headers, override.Headers)
	}

	if override.Timeout != 0 {
		result.Timeout = override.Timeout
	}
	if override.Compression != "" {
		result.Compression = override.Compression
	}
	if override.RetryMaxAttempts != 0 {
		result.RetryEnabled = override.RetryEnabled
		result.RetryMaxAttempts = override.RetryMaxAttempts
	}

	return result
}

// Telemetry returns the observability settings for one signal's exporter.
func (c *ObservabilityConfig) Telemetry(exporter OTLPConfig) observability.Config {
	return observability.Config{
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.ServiceVersion,
		Environment:      c.Environment,
		TraceSampleRatio: c.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          exporter.Endpoint,
			Protocol:          exporter.Protocol,
			Insecure:          exporter.Insecure,
			TLSCertFile:       exporter.TLSCertFile,
			TLSClientCertFile: exporter.TLSClientCertFile,
			TLSClientKeyFile:  exporter.TLSClientKeyFile,
			Headers:           exporter.Headers,
			Timeout:           exporter.Timeout,
			Compression:       exporter.Compression,
			RetryEnabled:      exporter.RetryEnabled,
			RetryMaxAttempts:  exporter.RetryMaxAttempts,
		},
	}
}

// LoggingOptions returns the logger settings. provider may be nil.
func (c *ObservabilityConfig) LoggingOptions(provider *observability.LoggerProvider) logging.Config {
	cfg := logging.Config{Level: c.Logging.Level, Format: c.Logging.Format}
	if provider != nil {
		cfg.LoggerProvider = provider.Provider()
	}
	return cfg
}

// ParsedDialect resolves the configured dialect name.
func (d *DatabaseConfig) ParsedDialect() (dialect.Dialect, error) {
	return dialect.Parse(d.Dialect)
}

// OpenConfig returns the settings dbexec.Open needs for this database.
func (c *Config) OpenConfig() (dbexec.OpenConfig, error) {
	d, err := c.Database.ParsedDialect()
	if err != nil {
		return dbexec.OpenConfig{}, err
	}
	return dbexec.OpenConfig{
		Dialect:      d,
		Driver:       c.Database.Driver,
		DSN:          c.Database.DSN,
		Tracing:      c.Observability.TracingEnabled,
		Metrics:      c.Observability.MetricsEnabled,
		SQLCommenter: c.Observability.SQLCommenterEnabled,
	}, nil
}

// GenerateDialects resolves generate.dialects. An empty list means every
// dialect.
func (g *GenerateConfig) GenerateDialects() ([]dialect.Dialect, error) {
	if len(g.Dialects) == 0 {
		return dialect.All(), nil
	}
	out := make([]dialect.Dialect, 0, len(g.Dialects))
	for _, name := range g.Dialects {
		d, err := dialect.Parse(name)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
