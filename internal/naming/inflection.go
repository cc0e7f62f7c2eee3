package naming

import (
	"strings"

	"github.com/go-openapi/inflect"
	"github.com/jinzhu/inflection"
)

// Pluralize converts a singular word to its plural form.
// Checks custom overrides first, then falls back to the inflection library.
func (n *Namer) Pluralize(word string) string {
	if override, ok := n.config.PluralOverrides[word]; ok {
		return override
	}
	if override, ok := n.config.PluralOverrides[strings.ToLower(word)]; ok {
		return override
	}
	return inflection.Plural(word)
}

// Underscore converts a CamelCase identifier to snake_case.
func Underscore(word string) string {
	return inflect.Underscore(word)
}
