package dbexec

import (
	"database/sql"
	"fmt"
	"strings"

	"entitysql/internal/dialect"
	"entitysql/internal/ormerr"
)

// ErrMissingParameter reports a parameter marker without a value.
var ErrMissingParameter = fmt.Errorf("%w: missing parameter", ormerr.ErrConfiguration)

// Bind rewrites the @Name markers of query into the placeholder style of the
// dialect's driver and returns the matching arguments: "?" for MySql, SQLite
// and SqlAnywhere, "$n" for PostgreSql and named arguments for MsSql. "@@"
// sequences and text inside quotes or delimiters are copied unchanged.
func Bind(d dialect.Dialect, query string, params map[string]any) (string, []any, error) {
	var (
		out   strings.Builder
		args  []any
		named = make(map[string]bool)
	)
	for i := 0; i < len(query); {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || (c == '[' && d == dialect.MsSql):
			end := closingDelimiter(query, i)
			out.WriteString(query[i:end])
			i = end
		case c == '@' && i+1 < len(query) && query[i+1] == '@':
			end := i + 2
			for end < len(query) && isNameByte(query[end]) {
				end++
			}
			out.WriteString(query[i:end])
			i = end
		case c == '@' && i+1 < len(query) && isNameStart(query[i+1]):
			end := i + 1
			for end < len(query) && isNameByte(query[end]) {
				end++
			}
			name := query[i+1 : end]
			value, ok := params[name]
			if !ok {
				return "", nil, fmt.Errorf("%w: no value for @%s", ErrMissingParameter, name)
			}
			switch d {
			case dialect.MsSql:
				out.WriteString(query[i:end])
				if !named[name] {
					named[name] = true
					args = append(args, sql.Named(name, value))
				}
			case dialect.PostgreSql:
				args = append(args, value)
				fmt.Fprintf(&out, "$%d", len(args))
			default:
				out.WriteByte('?')
				args = append(args, value)
			}
			i = end
		default:
			out.WriteByte(c)
			i++
		}
	}

	return out.String(), args, nil
}

// closingDelimiter returns the index just past the quoted section starting at
// start. Doubled closing characters are escapes. An unterminated section runs
// to the end of query.
func closingDelimiter(query string, start int) int {
	closing := query[start]
	if closing == '[' {
		closing = ']'
	}
	for i := start + 1; i < len(query); i++ {
		if query[i] != closing {
			continue
		}
		if i+1 < len(query) && query[i+1] == closing {
			i++
			continue
		}
		return i + 1
	}
	return len(query)
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameByte(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
