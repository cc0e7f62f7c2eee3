// Package join resolves the JOIN clauses of multi-entity selects: which
// relationship links each joined entity to one introduced before it, the ON
// clause text, and the navigation properties results are mapped onto.
package join

import (
	"errors"
	"fmt"
	"strings"

	"entitysql/internal/builder"
	"entitysql/internal/format"
	"entitysql/internal/mapping"
	"entitysql/internal/ormerr"
)

var (
	// ErrJoinOrder reports a join anchored on a participant that has not been
	// introduced yet.
	ErrJoinOrder = fmt.Errorf("%w: join order", ormerr.ErrConfiguration)
	// ErrRelationshipNotFound reports a join without an ON clause whose
	// entities are not related.
	ErrRelationshipNotFound = fmt.Errorf("%w: relationship not found", ormerr.ErrConfiguration)
	// ErrInconsistentMapping reports a parent-children navigation without the
	// matching foreign key on the child.
	ErrInconsistentMapping = fmt.Errorf("%w: inconsistent relationship mapping", ormerr.ErrConfiguration)
	// ErrKeyCountMismatch reports foreign keys that do not pair with the
	// referenced primary key.
	ErrKeyCountMismatch = fmt.Errorf("%w: key count mismatch", ormerr.ErrConfiguration)
	// ErrAmbiguousRelationship reports several relationships matching a join
	// that navigation hints do not narrow down to one.
	ErrAmbiguousRelationship = fmt.Errorf("%w: ambiguous relationship", ormerr.ErrConfiguration)
)

// Kind is the join type.
type Kind int

const (
	Inner Kind = iota
	LeftOuter
)

// SQL returns the join keyword.
func (k Kind) SQL() string {
	if k == LeftOuter {
		return "LEFT OUTER JOIN"
	}
	return "INNER JOIN"
}

// Spec describes one joined entity.
type Spec struct {
	// Builder generates the joined entity's identifiers.
	Builder *builder.StatementBuilder
	// Alias of the joined table, optional.
	Alias string
	Kind  Kind
	// On is an explicit ON template in format syntax. Unqualified
	// placeholders resolve against the joined entity.
	On string
	// From names the participant (alias or table) the entity is joined to.
	// When empty every participant introduced so far is considered.
	From string
	// FromNavigation and ToNavigation name the navigation properties on the
	// From side and on the joined entity, to pick one of several relationships.
	FromNavigation string
	ToNavigation   string
	// MapResults requests that navigation properties are populated.
	MapResults bool
}

// Participant is one entity of the statement, in join order. The main entity
// comes first.
type Participant struct {
	Builder    *builder.StatementBuilder
	Alias      string
	Kind       Kind
	MapResults bool
}

// Reference returns the name the participant is referred to by.
func (p Participant) Reference() string {
	if p.Alias != "" {
		return p.Alias
	}
	return p.Builder.Registration().TableName()
}

// Relationship links a joined participant to the participant it hangs off.
// Child holds the foreign key properties ChildKeys, which pair positionally
// with the Parent's primary key ParentKeys.
type Relationship struct {
	Anchor int
	Joined int

	Child      int
	Parent     int
	ChildKeys  []*mapping.Property
	ParentKeys []*mapping.Property

	// ChildNavigation is the single-valued navigation on the child, if any.
	ChildNavigation *mapping.Navigation
	// ParentNavigation is the collection navigation on the parent, if any.
	ParentNavigation *mapping.Navigation

	MapResults bool

	childEntity  string
	parentEntity string
}

// Plan is the resolved form of a multi-entity select.
type Plan struct {
	Participants  []Participant
	Relationships []*Relationship
	Resolver      *format.MultiResolver

	joins []string
}

// FromClause returns the main table followed by every JOIN clause.
func (p *Plan) FromClause() string {
	main := p.Participants[0]
	parts := append([]string{main.Builder.TableName(main.Alias)}, p.joins...)
	return strings.Join(parts, " ")
}

// SelectClause lists every column of every participant, qualified, in
// participant order.
func (p *Plan) SelectClause() string {
	cols := make([]string, len(p.Participants))
	for i, part := range p.Participants {
		cols[i] = part.Builder.QualifiedColumnEnumerationForSelect(part.Alias)
	}
	return strings.Join(cols, ", ")
}

// Stages returns the relationships results are mapped through, breadth-first
// from the main entity, so a stage's anchor is always reached before it.
func (p *Plan) Stages() []*Relationship {
	byAnchor := make(map[int][]*Relationship)
	for _, rel := range p.Relationships {
		byAnchor[rel.Anchor] = append(byAnchor[rel.Anchor], rel)
	}
	var stages []*Relationship
	queue := []int{0}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, rel := range byAnchor[n] {
			if rel.MapResults {
				stages = append(stages, rel)
			}
			queue = append(queue, rel.Joined)
		}
	}
	return stages
}

// Resolve builds the plan joining specs, in order, onto the main entity.
func Resolve(main *builder.StatementBuilder, mainAlias string, specs []Spec) (*Plan, error) {
	plan := &Plan{Resolver: format.NewMultiResolver(main.Dialect())}
	if err := plan.add(Participant{Builder: main, Alias: mainAlias}); err != nil {
		return nil, err
	}

	for _, spec := range specs {
		if spec.Builder == nil {
			return nil, fmt.Errorf("%w: join without an entity", ormerr.ErrConfiguration)
		}
		joined := len(plan.Participants)
		anchors, err := plan.anchorsFor(spec)
		if err != nil {
			return nil, err
		}
		if err := plan.add(Participant{Builder: spec.Builder, Alias: spec.Alias, Kind: spec.Kind, MapResults: spec.MapResults}); err != nil {
			return nil, err
		}

		var rel *Relationship
		if spec.On == "" || spec.MapResults {
			rel, err = plan.discover(anchors, joined, spec)
			if err != nil && !(spec.On != "" && errors.Is(err, ErrRelationshipNotFound)) {
				return nil, err
			}
		}

		on, err := plan.onClause(joined, spec, rel)
		if err != nil {
			return nil, err
		}
		part := plan.Participants[joined]
		plan.joins = append(plan.joins, fmt.Sprintf("%s %s ON %s", spec.Kind.SQL(), part.Builder.TableName(part.Alias), on))
		if rel != nil {
			plan.Relationships = append(plan.Relationships, rel)
		}
	}
	return plan, nil
}

func (p *Plan) add(part Participant) error {
	if err := p.Resolver.AddAsKnownReference(part.Builder, part.Alias); err != nil {
		return err
	}
	p.Participants = append(p.Participants, part)
	return nil
}

func (p *Plan) anchorsFor(spec Spec) ([]int, error) {
	if spec.From == "" {
		anchors := make([]int, len(p.Participants))
		for i := range anchors {
			anchors[i] = i
		}
		return anchors, nil
	}
	for i, part := range p.Participants {
		if part.Reference() == spec.From {
			return []int{i}, nil
		}
	}
	return nil, fmt.Errorf("%w: entity %s is joined from %q, which is not introduced before it",
		ErrJoinOrder, spec.Builder.Registration().EntityName(), spec.From)
}

func (p *Plan) onClause(joined int, spec Spec, rel *Relationship) (string, error) {
	if spec.On != "" {
		if err := p.Resolver.Activate(p.Participants[joined].Reference()); err != nil {
			return "", err
		}
		return format.Format(p.Resolver, spec.On)
	}
	child, parent := p.Participants[rel.Child], p.Participants[rel.Parent]
	conds := make([]string, len(rel.ChildKeys))
	for i := range rel.ChildKeys {
		conds[i] = child.Builder.QualifiedColumnName(rel.ChildKeys[i], child.Alias) + " = " +
			parent.Builder.QualifiedColumnName(rel.ParentKeys[i], parent.Alias)
	}
	return strings.Join(conds, " AND "), nil
}
