package mapping

import (
	"fmt"
	"log/slog"
	"reflect"

	"entitysql/internal/ormerr"
)

// RelationshipKind tells which side of a foreign key the owning registration is on.
type RelationshipKind int

const (
	// ChildToParent: the owning entity holds the foreign key properties.
	ChildToParent RelationshipKind = iota
	// ParentToChildren: the owning entity exposes a collection of referencing entities.
	ParentToChildren
)

func (k RelationshipKind) String() string {
	if k == ParentToChildren {
		return "parent-children"
	}
	return "child-parent"
}

// Relationship is a relationship derived when a mapping is frozen.
//
// For ChildToParent, Keys are the foreign key properties of the owning entity
// in column order; they pair positionally with the referenced entity's primary
// key. For ParentToChildren, Keys are the owning entity's primary key.
type Relationship struct {
	Kind           RelationshipKind
	ReferencedType reflect.Type
	Keys           []*Property
	Navigation     *Navigation
}

// NavigationName returns the navigation property name, or "" when there is none.
func (r *Relationship) NavigationName() string {
	if r.Navigation == nil {
		return ""
	}
	return r.Navigation.name
}

func deriveChildParentRelationships(r *Registration) ([]*Relationship, error) {
	type group struct {
		navigation string
		props      []*Property
	}
	var typeOrder []reflect.Type
	groups := make(map[reflect.Type][]*group)

	// r.props is in column order, so grouped keys are too.
	for _, p := range r.props {
		if p.ref == nil {
			continue
		}
		refType := p.ref.Type
		gs, seen := groups[refType]
		if !seen {
			typeOrder = append(typeOrder, refType)
		}
		var target *group
		for _, g := range gs {
			if g.navigation == p.ref.Navigation {
				target = g
				break
			}
		}
		if target == nil {
			target = &group{navigation: p.ref.Navigation}
			gs = append(gs, target)
		}
		target.props = append(target.props, p)
		groups[refType] = gs
	}

	var rels []*Relationship
	for _, refType := range typeOrder {
		gs := groups[refType]
		if len(gs) > 1 {
			for _, g := range gs {
				if g.navigation != "" {
					continue
				}
				other := gs[0]
				if other == g {
					other = gs[1]
				}
				return nil, fmt.Errorf("%w: entity %s: properties %s and %s both reference %s; "+
					"name a navigation property on each to disambiguate",
					ormerr.ErrConfiguration, r.EntityName(), g.props[0].name, other.props[0].name, refType.Name())
			}
		}
		for _, g := range gs {
			rel := &Relationship{
				Kind:           ChildToParent,
				ReferencedType: refType,
				Keys:           g.props,
			}
			if g.navigation != "" {
				rel.Navigation = r.navs[g.navigation]
			}
			rels = append(rels, rel)
		}
	}
	return rels, nil
}

func deriveParentChildrenRelationships(r *Registration, logger *slog.Logger) []*Relationship {
	var rels []*Relationship
	for _, nav := range r.navOrder {
		if nav.kind != NavigationCollection {
			continue
		}
		if len(r.keys) == 0 {
			// Without a key the collection cannot take part in join discovery.
			if logger != nil {
				logger.Debug("skipping parent-children relationship of entity without primary key",
					slog.String("entity", r.EntityName()),
					slog.String("navigation", nav.name),
				)
			}
			continue
		}
		rels = append(rels, &Relationship{
			Kind:           ParentToChildren,
			ReferencedType: nav.target,
			Keys:           r.keys,
			Navigation:     nav,
		})
	}
	return rels
}

// ChildParentRelationshipsTo returns the child-parent relationships referencing target.
func (r *Registration) ChildParentRelationshipsTo(target reflect.Type) []*Relationship {
	var out []*Relationship
	for _, rel := range r.childParent {
		if rel.ReferencedType == target {
			out = append(out, rel)
		}
	}
	return out
}

// ParentChildrenRelationshipsTo returns the parent-children relationships whose
// collections hold target entities.
func (r *Registration) ParentChildrenRelationshipsTo(target reflect.Type) []*Relationship {
	var out []*Relationship
	for _, rel := range r.parentChildren {
		if rel.ReferencedType == target {
			out = append(out, rel)
		}
	}
	return out
}
