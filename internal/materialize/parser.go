package materialize

import (
	"fmt"
	"reflect"

	"entitysql/internal/join"
	"entitysql/internal/mapping"
	"entitysql/internal/ormerr"
)

// stage populates the navigation properties of one join relationship.
type stage struct {
	child, parent int
	childNav      *mapping.Navigation
	parentNav     *mapping.Navigation
}

type collectionKey struct {
	owner      uintptr
	navigation string
}

// Parser incrementally turns rows of joined entities into deduplicated main
// entities of type T with their navigation properties wired. A row holds one
// slot per join participant, in join order: a *Entity or nil for an outer
// join without a match. Parsers are not safe for concurrent use.
type Parser[T any] struct {
	regs   []*mapping.Registration
	stages []stage

	canonical   map[reflect.Type]*identitySet
	collections map[collectionKey]*identitySet
	roots       *identitySet
	results     []*T
}

// NewParser returns a parser for rows shaped like plan's participants.
func NewParser[T any](plan *join.Plan) (*Parser[T], error) {
	regs := make([]*mapping.Registration, len(plan.Participants))
	for i, part := range plan.Participants {
		regs[i] = part.Builder.Registration()
	}
	if want := reflect.TypeFor[T](); len(regs) == 0 || regs[0].EntityType() != want {
		return nil, fmt.Errorf("%w: results of type %s cannot be read from a statement on %s",
			ormerr.ErrConfiguration, want.Name(), mainName(regs))
	}

	p := &Parser[T]{
		regs:        regs,
		canonical:   make(map[reflect.Type]*identitySet),
		collections: make(map[collectionKey]*identitySet),
		roots:       newIdentitySet(),
	}
	for _, rel := range plan.Stages() {
		p.stages = append(p.stages, stage{
			child:     rel.Child,
			parent:    rel.Parent,
			childNav:  rel.ChildNavigation,
			parentNav: rel.ParentNavigation,
		})
	}
	return p, nil
}

func mainName(regs []*mapping.Registration) string {
	if len(regs) == 0 {
		return "no entity"
	}
	return regs[0].EntityName()
}

// Add consumes one row.
func (p *Parser[T]) Add(row []any) error {
	if len(row) != len(p.regs) {
		return fmt.Errorf("%w: row has %d entities, the statement joins %d",
			ormerr.ErrConfiguration, len(row), len(p.regs))
	}

	// A rejected row must not leave canonical instances behind.
	slots := make([]InstanceWrapper, len(row))
	for i, instance := range row {
		w, err := Wrap(p.regs[i], instance)
		if err != nil {
			return fmt.Errorf("%w: row slot %d: %w", ormerr.ErrConfiguration, i, err)
		}
		slots[i] = w
	}
	for i, w := range slots {
		slots[i], _ = p.canonicalSet(p.regs[i].EntityType()).add(w)
	}

	for _, st := range p.stages {
		child, parent := slots[st.child], slots[st.parent]
		if child.IsNil() || parent.IsNil() {
			continue
		}
		if st.childNav != nil {
			field := st.childNav.Field(child.instance.Elem())
			if field.IsNil() {
				field.Set(parent.instance)
			}
		}
		if st.parentNav != nil {
			key := collectionKey{owner: parent.instance.Pointer(), navigation: st.parentNav.Name()}
			set, ok := p.collections[key]
			if !ok {
				set = newIdentitySet()
				p.collections[key] = set
			}
			if _, added := set.add(child); added {
				field := st.parentNav.Field(parent.instance.Elem())
				field.Set(reflect.Append(field, child.instance))
			}
		}
	}

	if _, added := p.roots.add(slots[0]); added {
		p.results = append(p.results, slots[0].Instance().(*T))
	}
	return nil
}

// Results returns the distinct main entities in first-seen order.
func (p *Parser[T]) Results() []*T { return p.results }

func (p *Parser[T]) canonicalSet(t reflect.Type) *identitySet {
	set, ok := p.canonical[t]
	if !ok {
		set = newIdentitySet()
		p.canonical[t] = set
	}
	return set
}
