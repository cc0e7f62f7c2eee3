package join

import (
	"fmt"
	"strings"

	"entitysql/internal/mapping"
)

type candidate struct {
	rel *Relationship
	// collections lists competing parent collections when none could be picked.
	collections []string
}

func (c candidate) String() string {
	return fmt.Sprintf("%s(%s) -> %s", c.rel.childEntity, propertyNames(c.rel.ChildKeys), c.rel.parentEntity)
}

func propertyNames(props []*mapping.Property) string {
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Name()
	}
	return strings.Join(names, ", ")
}

func navigationMatches(hint string, nav *mapping.Navigation) bool {
	return hint == "" || (nav != nil && nav.Name() == hint)
}

// discover finds the single relationship between the joined participant and
// one of the anchors.
func (p *Plan) discover(anchors []int, joined int, spec Spec) (*Relationship, error) {
	var found []candidate
	for _, a := range anchors {
		found = append(found, p.candidatesBetween(a, joined, spec)...)
	}

	joinedName := p.Participants[joined].Builder.Registration().EntityName()
	switch len(found) {
	case 0:
		for _, a := range anchors {
			if err := p.checkReverseOnly(a, joined); err != nil {
				return nil, err
			}
		}
		names := make([]string, len(anchors))
		for i, a := range anchors {
			names[i] = p.Participants[a].Builder.Registration().EntityName()
		}
		return nil, fmt.Errorf("%w: entity %s is not related to %s; supply an ON clause",
			ErrRelationshipNotFound, joinedName, strings.Join(names, ", "))
	case 1:
	default:
		descs := make([]string, len(found))
		for i, c := range found {
			descs[i] = c.String()
		}
		return nil, fmt.Errorf("%w: entity %s can be joined through %s; name the navigation properties to pick one",
			ErrAmbiguousRelationship, joinedName, strings.Join(descs, "; "))
	}

	c := found[0]
	if len(c.collections) > 0 {
		return nil, fmt.Errorf("%w: entity %s has several collections of %s (%s); name the one to map results onto",
			ErrAmbiguousRelationship, c.rel.parentEntity, c.rel.childEntity, strings.Join(c.collections, ", "))
	}
	if len(c.rel.ChildKeys) == 0 || len(c.rel.ChildKeys) != len(c.rel.ParentKeys) {
		return nil, fmt.Errorf("%w: %s references %s with %d key properties (%s) but %s has %d primary key properties",
			ErrKeyCountMismatch, c.rel.childEntity, c.rel.parentEntity, len(c.rel.ChildKeys), propertyNames(c.rel.ChildKeys),
			c.rel.parentEntity, len(c.rel.ParentKeys))
	}
	return c.rel, nil
}

// candidatesBetween lists the relationships in which either side holds the
// foreign key, filtered by the navigation hints.
func (p *Plan) candidatesBetween(anchor, joined int, spec Spec) []candidate {
	a := p.Participants[anchor].Builder.Registration()
	j := p.Participants[joined].Builder.Registration()

	var out []candidate
	for _, fwd := range a.ChildParentRelationshipsTo(j.EntityType()) {
		c := p.pair(anchor, joined, fwd, spec.ToNavigation, spec.MapResults)
		if !navigationMatches(spec.FromNavigation, c.rel.ChildNavigation) || !navigationMatches(spec.ToNavigation, c.rel.ParentNavigation) {
			continue
		}
		c.rel.Anchor, c.rel.Joined = anchor, joined
		out = append(out, c)
	}
	for _, fwd := range j.ChildParentRelationshipsTo(a.EntityType()) {
		c := p.pair(joined, anchor, fwd, spec.FromNavigation, spec.MapResults)
		if !navigationMatches(spec.FromNavigation, c.rel.ParentNavigation) || !navigationMatches(spec.ToNavigation, c.rel.ChildNavigation) {
			continue
		}
		c.rel.Anchor, c.rel.Joined = anchor, joined
		out = append(out, c)
	}
	return out
}

// pair builds the relationship for the child-parent relationship fwd of
// the child participant, looking up the parent's matching collection.
func (p *Plan) pair(child, parent int, fwd *mapping.Relationship, collectionHint string, mapResults bool) candidate {
	childReg := p.Participants[child].Builder.Registration()
	parentReg := p.Participants[parent].Builder.Registration()
	rel := &Relationship{
		Child:           child,
		Parent:          parent,
		ChildKeys:       fwd.Keys,
		ParentKeys:      parentReg.KeyProperties(),
		ChildNavigation: fwd.Navigation,
		MapResults:      mapResults,
		childEntity:     childReg.EntityName(),
		parentEntity:    parentReg.EntityName(),
	}
	c := candidate{rel: rel}

	reverse := parentReg.ParentChildrenRelationshipsTo(childReg.EntityType())
	switch {
	case collectionHint != "":
		for _, r := range reverse {
			if r.NavigationName() == collectionHint {
				rel.ParentNavigation = r.Navigation
			}
		}
	case len(reverse) == 1:
		rel.ParentNavigation = reverse[0].Navigation
	case len(reverse) > 1 && mapResults:
		for _, r := range reverse {
			c.collections = append(c.collections, r.NavigationName())
		}
	}
	return c
}

// checkReverseOnly fails when one side exposes a collection of the other
// while the other side holds no foreign key back to it.
func (p *Plan) checkReverseOnly(anchor, joined int) error {
	a := p.Participants[anchor].Builder.Registration()
	j := p.Participants[joined].Builder.Registration()
	for _, pair := range [][2]*mapping.Registration{{a, j}, {j, a}} {
		parent, child := pair[0], pair[1]
		reverse := parent.ParentChildrenRelationshipsTo(child.EntityType())
		if len(reverse) == 0 || len(child.ChildParentRelationshipsTo(parent.EntityType())) > 0 {
			continue
		}
		return fmt.Errorf("%w: %s.%s holds %s entities but %s has no foreign key referencing %s",
			ErrInconsistentMapping, parent.EntityName(), reverse[0].NavigationName(), child.EntityName(),
			child.EntityName(), parent.EntityName())
	}
	return nil
}
