package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"entitysql/internal/dbexec"
	"entitysql/internal/dialect"
	"entitysql/internal/naming"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result, c.Generate.SmokeTest)
	c.Generate.validate(result)
	c.Observability.validate(result)
	validateNamingConfig(result, c.Naming)

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult, smokeTest bool) {
	parsed, err := d.ParsedDialect()
	if err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.dialect",
			Message: err.Error(),
			Hint:    "valid values are: mssql, mysql, postgres, sqlite, sqlanywhere",
		})
	}

	if err == nil && d.Driver != "" {
		if _, derr := dbexec.DriverFor(parsed, d.Driver); derr != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.driver",
				Message: derr.Error(),
				Hint:    "postgres accepts postgres (lib/pq) or pgx; leave empty for the default",
			})
		}
	}

	if smokeTest {
		if err == nil && d.Driver == "" && parsed.DriverName() == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.dialect",
				Message: fmt.Sprintf("dialect %s has no bundled driver", parsed),
				Hint:    "statements can still be generated; disable generate.smoke_test",
			})
		}
		if strings.TrimSpace(d.DSN) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.dsn",
				Message: "a DSN is required for the smoke test",
				Hint:    "set database.dsn, database.dsn_file or database.dsn_prompt",
			})
		}
	}

	if d.Pool.MaxOpen < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_open",
			Message: "max_open cannot be negative",
		})
	}
	if d.Pool.MaxIdle < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_idle",
			Message: "max_idle cannot be negative",
		})
	}
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.pool.max_idle",
			Message: fmt.Sprintf("max_idle (%d) exceeds max_open (%d)", d.Pool.MaxIdle, d.Pool.MaxOpen),
			Hint:    "database/sql lowers max_idle to max_open",
		})
	}
	if d.Pool.MaxLifetime < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_lifetime",
			Message: "max_lifetime cannot be negative",
		})
	}
	if d.ConnectTimeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connect_timeout",
			Message: "connect_timeout cannot be negative",
		})
	}
	if d.ConnectTimeout > 0 && d.ConnectRetryInterval <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connect_retry_interval",
			Message: "connect_retry_interval must be positive when connect_timeout is set",
		})
	}
	if d.StatementTimeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.statement_timeout",
			Message: "statement_timeout cannot be negative",
		})
	}
}

func (g *GenerateConfig) validate(result *ValidationResult) {
	for _, name := range g.Dialects {
		if _, err := dialect.Parse(name); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "generate.dialects",
				Message: err.Error(),
				Hint:    "valid values are: mssql, mysql, postgres, sqlite, sqlanywhere",
			})
		}
	}

	seen := make(map[string]bool, len(g.Entities))
	for _, name := range g.Entities {
		if strings.TrimSpace(name) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "generate.entities",
				Message: "entity name cannot be empty",
			})
			continue
		}
		if seen[name] {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "generate.entities",
				Message: fmt.Sprintf("entity %q listed more than once", name),
			})
		}
		seen[name] = true
	}

	if g.OverridesFile != "" {
		if _, err := os.Stat(g.OverridesFile); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "generate.overrides_file",
				Message: fmt.Sprintf("cannot read overrides file: %v", err),
			})
		}
	}
}

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	if !naming.ValidTableStrategy(cfg.Tables) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "naming.tables",
			Message: fmt.Sprintf("invalid table naming strategy %q", cfg.Tables),
			Hint:    "valid values are: as_is, plural, snake_plural",
		})
	}
	if !naming.ValidColumnStrategy(cfg.Columns) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "naming.columns",
			Message: fmt.Sprintf("invalid column naming strategy %q", cfg.Columns),
			Hint:    "valid values are: as_is, snake_case",
		})
	}
	for singular, plural := range cfg.PluralOverrides {
		if strings.TrimSpace(singular) == "" || strings.TrimSpace(plural) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "naming.plural_overrides",
				Message: fmt.Sprintf("override %q -> %q has an empty side", singular, plural),
			})
		}
	}
	if len(cfg.PluralOverrides) > 0 && cfg.Tables != naming.TablePlural && cfg.Tables != naming.TableSnakePlural {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "naming.plural_overrides",
			Message: "plural overrides have no effect unless tables are pluralized",
			Hint:    "set naming.tables to plural or snake_plural",
		})
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	// Log level validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("invalid log level %q", o.Logging.Level),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}

	// Log format validation
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("invalid log format %q", o.Logging.Format),
			Hint:    "valid values are: json, text",
		})
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("trace_sample_ratio %v is outside [0, 1]", o.TraceSampleRatio),
		})
	}

	if o.SQLCommenterEnabled && !o.TracingEnabled {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "observability.sqlcommenter_enabled",
			Message: "SQLCommenter has no effect without tracing",
			Hint:    "enable observability.tracing_enabled",
		})
	}

	// OTLP protocol validation
	o.OTLP.validate("observability.otlp", result)

	// Signal-specific OTLP validation
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".protocol",
			Message: fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			Hint:    "valid values are: grpc, http/protobuf",
		})
	}

	if o.Protocol == "http/protobuf" {
		if !validOTLPEndpoint(o.Endpoint) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   prefix + ".endpoint",
				Message: fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
				Hint:    "use host:port or a full URL",
			})
		}
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".compression",
			Message: fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			Hint:    "valid values are: none, gzip",
		})
	}

	if o.RetryMaxAttempts < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".retry_max_attempts",
			Message: "retry_max_attempts cannot be negative",
		})
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
