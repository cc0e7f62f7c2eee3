// Package naming provides the conventions used to derive default table and
// column names from Go entity type and field names.
package naming

// Table naming strategies.
const (
	// TableAsIs uses the entity type name unchanged.
	TableAsIs = "as_is"
	// TablePlural pluralizes the entity type name ("Building" -> "Buildings").
	TablePlural = "plural"
	// TableSnakePlural pluralizes and converts to snake_case ("WorkStation" -> "work_stations").
	TableSnakePlural = "snake_plural"
)

// Column naming strategies.
const (
	// ColumnAsIs uses the field name unchanged.
	ColumnAsIs = "as_is"
	// ColumnSnake converts the field name to snake_case ("FirstName" -> "first_name").
	ColumnSnake = "snake_case"
)

// Config holds naming customization options
type Config struct {
	// Tables selects the table naming strategy.
	Tables string `mapstructure:"tables"`

	// Columns selects the column naming strategy.
	Columns string `mapstructure:"columns"`

	// PluralOverrides maps singular -> custom plural
	// Example: {"person": "people", "status": "statuses"}
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Tables:          TableAsIs,
		Columns:         ColumnAsIs,
		PluralOverrides: make(map[string]string),
	}
}

// ValidTableStrategy reports whether s names a table naming strategy.
func ValidTableStrategy(s string) bool {
	switch s {
	case "", TableAsIs, TablePlural, TableSnakePlural:
		return true
	}
	return false
}

// ValidColumnStrategy reports whether s names a column naming strategy.
func ValidColumnStrategy(s string) bool {
	switch s {
	case "", ColumnAsIs, ColumnSnake:
		return true
	}
	return false
}
