// Package format resolves SQL templates whose placeholders name entities,
// properties and parameters symbolically.
//
// A placeholder is written {value:SPEC}; literal braces are written {{ and }}.
//
//	I   identifier    {Name:I}              -> [Name]
//	P   parameter     {Name:P}              -> @Name
//	T   table/alias   {:T} or {ref:T}       -> [Building] or [b]
//	C   column        {Name:C} {b.Name:C}   -> [Name]
//	TC  qualified     {Name:TC} {b.Name:TC} -> [b].[Name]
//
// A reference (the ref part) makes that participant the active one for the
// unqualified placeholders that follow it.
package format

import (
	"fmt"
	"strings"

	"entitysql/internal/ormerr"
)

var (
	// ErrSyntax reports a malformed template.
	ErrSyntax = fmt.Errorf("%w: template syntax", ormerr.ErrConfiguration)
	// ErrUnknownSpecifier reports a placeholder with an unsupported SPEC.
	ErrUnknownSpecifier = fmt.Errorf("%w: unknown format specifier", ormerr.ErrConfiguration)
)

// TokenKind tags the variants of Token.
type TokenKind int

const (
	TokenLiteral TokenKind = iota
	TokenIdentifier
	TokenParameter
	TokenTable
	TokenColumn
	TokenTableColumn
)

func (k TokenKind) String() string {
	switch k {
	case TokenLiteral:
		return "literal"
	case TokenIdentifier:
		return "I"
	case TokenParameter:
		return "P"
	case TokenTable:
		return "T"
	case TokenColumn:
		return "C"
	case TokenTableColumn:
		return "TC"
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Token is one element of a parsed template. Text holds the literal text,
// identifier, parameter name or property name; Reference holds the alias or
// table a T, C or TC placeholder names explicitly.
type Token struct {
	Kind      TokenKind
	Text      string
	Reference string
}

// Template is a parsed SQL template. It is immutable and can be formatted
// against any number of resolvers.
type Template struct {
	source string
	tokens []Token
}

var specifiers = map[string]TokenKind{
	"I":  TokenIdentifier,
	"P":  TokenParameter,
	"T":  TokenTable,
	"C":  TokenColumn,
	"TC": TokenTableColumn,
}

// Parse parses text into a Template.
func Parse(text string) (*Template, error) {
	t := &Template{source: text}
	var literal strings.Builder
	flush := func() {
		if literal.Len() > 0 {
			t.tokens = append(t.tokens, Token{Kind: TokenLiteral, Text: literal.String()})
			literal.Reset()
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '{':
			if i+1 < len(text) && text[i+1] == '{' {
				literal.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated placeholder at offset %d in %q", ErrSyntax, i, text)
			}
			body := text[i+1 : i+1+end]
			if strings.ContainsRune(body, '{') {
				return nil, fmt.Errorf("%w: nested placeholder at offset %d in %q", ErrSyntax, i, text)
			}
			tok, err := parsePlaceholder(body)
			if err != nil {
				return nil, err
			}
			flush()
			t.tokens = append(t.tokens, tok)
			i += end + 1
		case '}':
			if i+1 < len(text) && text[i+1] == '}' {
				literal.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("%w: unmatched '}' at offset %d in %q", ErrSyntax, i, text)
		default:
			literal.WriteByte(c)
		}
	}
	flush()
	return t, nil
}

// MustParse is like Parse but panics on error. It is meant for templates
// that are package level constants.
func MustParse(text string) *Template {
	t, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return t
}

func parsePlaceholder(body string) (Token, error) {
	sep := strings.LastIndexByte(body, ':')
	if sep < 0 {
		return Token{}, fmt.Errorf("%w: placeholder {%s} has no format specifier", ErrSyntax, body)
	}
	value, spec := strings.TrimSpace(body[:sep]), strings.TrimSpace(body[sep+1:])
	kind, ok := specifiers[spec]
	if !ok {
		return Token{}, fmt.Errorf("%w: %q in {%s}", ErrUnknownSpecifier, spec, body)
	}

	tok := Token{Kind: kind}
	switch kind {
	case TokenTable:
		tok.Reference = value
	case TokenColumn, TokenTableColumn:
		if dot := strings.LastIndexByte(value, '.'); dot >= 0 {
			tok.Reference, tok.Text = value[:dot], value[dot+1:]
			if tok.Reference == "" {
				return Token{}, fmt.Errorf("%w: empty reference in {%s}", ErrSyntax, body)
			}
		} else {
			tok.Text = value
		}
		if tok.Text == "" {
			return Token{}, fmt.Errorf("%w: {%s} names no property", ErrSyntax, body)
		}
	default:
		if value == "" {
			return Token{}, fmt.Errorf("%w: {%s} has an empty value", ErrSyntax, body)
		}
		tok.Text = value
	}
	return tok, nil
}

// Source returns the template text.
func (t *Template) Source() string { return t.source }

// Tokens returns the parsed tokens.
func (t *Template) Tokens() []Token { return t.tokens }

// Format interprets the template against r. Every explicit reference
// switches the active participant of r before the placeholder is resolved.
func (t *Template) Format(r Resolver) (string, error) {
	var out strings.Builder
	out.Grow(len(t.source))
	for _, tok := range t.tokens {
		if tok.Kind == TokenLiteral {
			out.WriteString(tok.Text)
			continue
		}
		s, err := evaluate(r, tok)
		if err != nil {
			return "", err
		}
		out.WriteString(s)
	}
	return out.String(), nil
}

// Format parses text and formats it against r.
func Format(r Resolver, text string) (string, error) {
	t, err := Parse(text)
	if err != nil {
		return "", err
	}
	return t.Format(r)
}

func evaluate(r Resolver, tok Token) (string, error) {
	switch tok.Kind {
	case TokenIdentifier:
		return r.Dialect().QuoteIdentifier(tok.Text), nil
	case TokenParameter:
		return r.Dialect().Parameter(tok.Text), nil
	}

	p, err := r.Resolve(tok.Reference)
	if err != nil {
		return "", err
	}
	switch tok.Kind {
	case TokenTable:
		return p.Builder.TableReference(p.Alias), nil
	case TokenColumn, TokenTableColumn:
		prop, ok := p.Builder.Registration().Property(tok.Text)
		if !ok {
			return "", fmt.Errorf("%w: entity %s has no mapped property %s",
				ErrUnknownProperty, p.Builder.Registration().EntityName(), tok.Text)
		}
		if tok.Kind == TokenColumn {
			return p.Builder.DelimitedIdentifier(prop.ColumnName()), nil
		}
		return p.Builder.QualifiedColumnName(prop, p.Alias), nil
	}
	return "", fmt.Errorf("%w: token kind %v", ErrUnknownSpecifier, tok.Kind)
}
