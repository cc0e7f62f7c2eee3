package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment variable, e.g. ENTITYSQL_DATABASE_DSN.
const EnvPrefix = "ENTITYSQL"

// Load loads configuration from multiple sources with the following precedence:
// 1. Explicit overrides (v.Set) – used only for the DSN file and prompt
// 2. Command line flags
// 3. Environment variables
// 4. Config file
// 5. Default values
//
// fs must have been created by NewFlagSet and parsed.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Defaults (lowest priority)
	setDefaults(v)

	// --- Config file ---
	cfgPath, _ := fs.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("entitysql")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/entitysql/")
		v.AddConfigPath("$HOME/.entitysql")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// --- Environment variables ---
	// Canonical keys: dot + snake_case
	// Env vars: ENTITYSQL_DATABASE_POOL_MAX_OPEN
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// --- Flags binding (highest normal priority) ---
	bindChangedFlagsToViper(fs, v)

	// --- DSN from file or terminal (explicit override) ---
	if v.GetString("database.dsn_file") != "" {
		dsn, err := readSecretFile(v.GetString("database.dsn_file"), os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read database DSN file: %w", err)
		}
		v.Set("database.dsn", dsn)
	}
	if v.GetString("database.dsn") == "" && v.GetBool("database.dsn_prompt") {
		dsn, err := promptDSN()
		if err != nil {
			return nil, fmt.Errorf("failed to read DSN: %w", err)
		}
		v.Set("database.dsn", dsn)
	}

	// --- Unmarshal (strict) ---
	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// bindChangedFlagsToViper copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(fs *pflag.FlagSet, v *viper.Viper) {
	fs.Visit(func(f *pflag.Flag) {
		if _, ok := f.Annotations[configKeyAnnotation]; !ok {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := fs.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := fs.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := fs.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := fs.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := fs.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := fs.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// configKeyAnnotation marks the flags that map onto configuration keys. Other
// flags of the set (config, command specific ones) are left alone.
const configKeyAnnotation = "entitysql_config_key"

// NewFlagSet returns a flag set defining every configuration key as a flag
// using the canonical snake_case key, plus --config.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "Path to a YAML config file")

	var keys []string
	key := func(name string) string {
		keys = append(keys, name)
		return name
	}

	// Database flags
	fs.String(key("database.dialect"), "", "SQL dialect (mssql, mysql, postgres, sqlite, sqlanywhere)")
	fs.String(key("database.driver"), "", "database/sql driver override (postgres: postgres or pgx)")
	fs.String(key("database.dsn"), "", "Data source name used for round trips")
	fs.String(key("database.dsn_file"), "", "Path to a file containing the DSN (use @- for stdin)")
	fs.Bool(key("database.dsn_prompt"), false, "Prompt for the DSN without echo")
	fs.Int(key("database.pool.max_open"), 0, "Maximum open database connections")
	fs.Int(key("database.pool.max_idle"), 0, "Maximum idle connections in pool")
	fs.Duration(key("database.pool.max_lifetime"), 0, "Connection max lifetime (e.g. 5m, 30s)")
	fs.Duration(key("database.statement_timeout"), 0, "Timeout applied to each statement")
	fs.Duration(key("database.connect_timeout"), 0, "How long to wait for the database at startup")
	fs.Duration(key("database.connect_retry_interval"), 0, "Initial interval between connection attempts")

	// Generation flags
	fs.StringSlice(key("generate.dialects"), nil, "Dialects to print statements for (comma-separated or repeated)")
	fs.StringSlice(key("generate.entities"), nil, "Sample entities to print statements for")
	fs.String(key("generate.overrides_file"), "", "YAML file of mapping overrides")
	fs.Bool(key("generate.smoke_test"), false, "Run an insert/select/update/delete round trip against database.dsn")

	// Naming flags
	fs.String(key("naming.tables"), "", "Table naming strategy (as_is, plural, snake_plural)")
	fs.String(key("naming.columns"), "", "Column naming strategy (as_is, snake_case)")

	// Observability flags
	fs.String(key("observability.service_name"), "", "Service name for observability")
	fs.String(key("observability.service_version"), "", "Service version for observability")
	fs.String(key("observability.environment"), "", "Environment name (dev, staging, prod)")
	fs.Bool(key("observability.metrics_enabled"), false, "Enable metrics collection")
	fs.Bool(key("observability.tracing_enabled"), false, "Enable distributed tracing")
	fs.Float64(key("observability.trace_sample_ratio"), 0, "Fraction of traces to sample (0-1)")
	fs.Bool(key("observability.sqlcommenter_enabled"), false, "Inject trace context into SQL queries")

	// Logging flags (under observability)
	fs.String(key("observability.logging.level"), "", "Log level (debug, info, warn, error)")
	fs.String(key("observability.logging.format"), "", "Log format (json, text)")
	fs.Bool(key("observability.logging.exports_enabled"), false, "Enable OTLP log export")

	// Global OTLP flags
	fs.String(key("observability.otlp.endpoint"), "", "OTLP endpoint for all signals (e.g., localhost:4317)")
	fs.String(key("observability.otlp.protocol"), "", "OTLP protocol for all signals (grpc, http/protobuf)")
	fs.Bool(key("observability.otlp.insecure"), false, "Use insecure connection (no TLS)")
	fs.String(key("observability.otlp.tls_cert_file"), "", "Path to TLS certificate file for server verification")
	fs.String(key("observability.otlp.tls_client_cert_file"), "", "Path to client certificate file for mTLS")
	fs.String(key("observability.otlp.tls_client_key_file"), "", "Path to client key file for mTLS")
	fs.Duration(key("observability.otlp.timeout"), 0, "OTLP export timeout")
	fs.String(key("observability.otlp.compression"), "", "OTLP compression (none, gzip)")
	fs.Bool(key("observability.otlp.retry_enabled"), false, "Enable retry on transient errors")
	fs.Int(key("observability.otlp.retry_max_attempts"), 0, "Maximum retry attempts")

	// Signal-specific OTLP flags
	fs.String(key("observability.traces.endpoint"), "", "OTLP endpoint for traces only")
	fs.String(key("observability.traces.protocol"), "", "OTLP protocol for traces (grpc, http/protobuf)")
	fs.String(key("observability.logs.endpoint"), "", "OTLP endpoint for logs only")
	fs.String(key("observability.logs.protocol"), "", "OTLP protocol for logs (grpc, http/protobuf)")

	for _, name := range keys {
		_ = fs.SetAnnotation(name, configKeyAnnotation, []string{"true"})
	}
	return fs
}

// setDefaults sets default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.dialect", "sqlite")
	v.SetDefault("database.driver", "")
	v.SetDefault("database.dsn", "file:entitysql?mode=memory&cache=shared")
	v.SetDefault("database.dsn_file", "")
	v.SetDefault("database.dsn_prompt", false)
	v.SetDefault("database.pool.max_open", 10)
	v.SetDefault("database.pool.max_idle", 2)
	v.SetDefault("database.pool.max_lifetime", 30*time.Minute)
	v.SetDefault("database.statement_timeout", 30*time.Second)
	v.SetDefault("database.connect_timeout", time.Duration(0))
	v.SetDefault("database.connect_retry_interval", 500*time.Millisecond)

	// Generation defaults
	v.SetDefault("generate.dialects", []string{})
	v.SetDefault("generate.entities", []string{})
	v.SetDefault("generate.overrides_file", "")
	v.SetDefault("generate.smoke_test", false)

	// Naming defaults
	v.SetDefault("naming.tables", "as_is")
	v.SetDefault("naming.columns", "as_is")
	v.SetDefault("naming.plural_overrides", map[string]string{})

	// Observability defaults
	v.SetDefault("observability.service_name", "entitysql")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.sqlcommenter_enabled", false)

	// Logging defaults (under observability)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "text")
	v.SetDefault("observability.logging.exports_enabled", false)

	// Global OTLP defaults
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
	v.SetDefault("observability.otlp.retry_max_attempts", 3)
}

// promptDSN reads the DSN from the terminal without echoing it.
func promptDSN() (string, error) {
	fmt.Fprint(os.Stderr, "Enter data source name: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// readSecretFile reads a trimmed secret from path, or from stdin for "@-".
func readSecretFile(path string, stdin io.Reader) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
