package naming

import "log/slog"

// Namer derives default database names for entity types and fields.
type Namer struct {
	config Config
	logger *slog.Logger
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tables == "" {
		cfg.Tables = TableAsIs
	}
	if cfg.Columns == "" {
		cfg.Columns = ColumnAsIs
	}
	return &Namer{
		config: cfg,
		logger: logger,
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// TableName returns the default table name for an entity type name.
// Example (plural): "Building" -> "Buildings"
// Example (snake_plural): "WorkStation" -> "work_stations"
func (n *Namer) TableName(typeName string) string {
	switch n.config.Tables {
	case TablePlural:
		return n.Pluralize(typeName)
	case TableSnakePlural:
		return n.Pluralize(Underscore(typeName))
	case TableAsIs:
		return typeName
	default:
		n.logger.Warn("unknown table naming strategy, using type name",
			slog.String("strategy", n.config.Tables),
			slog.String("type", typeName),
		)
		return typeName
	}
}

// ColumnName returns the default column name for a field name.
// Example (snake_case): "FirstName" -> "first_name"
func (n *Namer) ColumnName(fieldName string) string {
	if n.config.Columns == ColumnSnake {
		return Underscore(fieldName)
	}
	return fieldName
}
