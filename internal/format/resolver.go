package format

import (
	"fmt"

	"entitysql/internal/builder"
	"entitysql/internal/dialect"
	"entitysql/internal/ormerr"
)

var (
	// ErrUnknownReference reports a placeholder naming an alias or table that
	// was never registered with the resolver.
	ErrUnknownReference = fmt.Errorf("%w: unknown reference", ormerr.ErrConfiguration)
	// ErrDuplicateAlias reports a second registration of the same alias or table.
	ErrDuplicateAlias = fmt.Errorf("%w: duplicate alias", ormerr.ErrConfiguration)
	// ErrUnknownProperty reports a column placeholder naming an unmapped property.
	ErrUnknownProperty = fmt.Errorf("%w: unknown property", ormerr.ErrConfiguration)
)

// Participant is an entity taking part in a statement, with its alias.
type Participant struct {
	Builder *builder.StatementBuilder
	Alias   string
}

// Reference returns the name placeholders use for the participant: the alias,
// or the table name when there is none.
func (p Participant) Reference() string {
	if p.Alias != "" {
		return p.Alias
	}
	return p.Builder.Registration().TableName()
}

// Resolver tracks the participants a template can refer to and which of them
// is active. Resolvers are used by one statement at a time.
type Resolver interface {
	// Resolve returns the active participant when reference is empty.
	// Otherwise it returns the named participant and makes it active.
	Resolve(reference string) (Participant, error)
	Dialect() dialect.Dialect
}

// SingleResolver resolves every placeholder against one entity.
type SingleResolver struct {
	p Participant
}

// NewSingleResolver returns a resolver for b, optionally aliased.
func NewSingleResolver(b *builder.StatementBuilder, alias string) *SingleResolver {
	return &SingleResolver{p: Participant{Builder: b, Alias: alias}}
}

// Resolve implements Resolver.
func (r *SingleResolver) Resolve(reference string) (Participant, error) {
	if reference != "" && reference != r.p.Reference() {
		return Participant{}, fmt.Errorf("%w: %q (only %q is known)", ErrUnknownReference, reference, r.p.Reference())
	}
	return r.p, nil
}

// Dialect implements Resolver.
func (r *SingleResolver) Dialect() dialect.Dialect { return r.p.Builder.Dialect() }

// MultiResolver resolves placeholders of statements joining several entities.
// The first registered participant starts out active.
type MultiResolver struct {
	dialect      dialect.Dialect
	participants []Participant
	byReference  map[string]int
	active       int
}

// NewMultiResolver returns an empty resolver for d.
func NewMultiResolver(d dialect.Dialect) *MultiResolver {
	return &MultiResolver{dialect: d, byReference: make(map[string]int), active: -1}
}

// AddAsKnownReference registers b under alias, or under its table name when
// alias is empty. Registering the same reference twice fails.
func (r *MultiResolver) AddAsKnownReference(b *builder.StatementBuilder, alias string) error {
	p := Participant{Builder: b, Alias: alias}
	ref := p.Reference()
	if _, dup := r.byReference[ref]; dup {
		return fmt.Errorf("%w: %q is already used by entity %s", ErrDuplicateAlias, ref,
			r.participants[r.byReference[ref]].Builder.Registration().EntityName())
	}
	r.byReference[ref] = len(r.participants)
	r.participants = append(r.participants, p)
	if r.active < 0 {
		r.active = 0
	}
	return nil
}

// Knows reports whether reference has been registered.
func (r *MultiResolver) Knows(reference string) bool {
	_, ok := r.byReference[reference]
	return ok
}

// Participants returns the registered participants in registration order.
func (r *MultiResolver) Participants() []Participant { return r.participants }

// Activate makes the named participant active.
func (r *MultiResolver) Activate(reference string) error {
	_, err := r.Resolve(reference)
	return err
}

// Resolve implements Resolver.
func (r *MultiResolver) Resolve(reference string) (Participant, error) {
	if reference == "" {
		if r.active < 0 {
			return Participant{}, fmt.Errorf("%w: no participant registered", ErrUnknownReference)
		}
		return r.participants[r.active], nil
	}
	i, ok := r.byReference[reference]
	if !ok {
		return Participant{}, fmt.Errorf("%w: %q", ErrUnknownReference, reference)
	}
	r.active = i
	return r.participants[i], nil
}

// Dialect implements Resolver.
func (r *MultiResolver) Dialect() dialect.Dialect { return r.dialect }
