package mapping

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"

	"entitysql/internal/ormerr"
)

// Overrides is a document adjusting default mappings, keyed by Go type name.
//
//	entities:
//	  Building:
//	    table: buildings
//	    schema: dbo
//	    columns:
//	      Name: building_name
//	    exclude: [Description]
type Overrides struct {
	Entities map[string]EntityOverride `yaml:"entities"`
}

// EntityOverride adjusts one entity mapping.
type EntityOverride struct {
	Table    string            `yaml:"table"`
	Schema   string            `yaml:"schema"`
	Database string            `yaml:"database"`
	Columns  map[string]string `yaml:"columns"`
	Exclude  []string          `yaml:"exclude"`
}

// ParseOverrides decodes an overrides document.
func ParseOverrides(r io.Reader) (*Overrides, error) {
	var o Overrides
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&o); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse mapping overrides: %w", err)
	}
	return &o, nil
}

// ApplyOverrides applies the document to the default mappings. Every entity it
// names must already be known to the registry, and its mapping must not be
// frozen yet. The document is applied to copies which replace the defaults
// only when every entity succeeds, so a failing document changes nothing.
func (r *Registry) ApplyOverrides(o *Overrides) error {
	staged := make([]*EntityMapping, 0, len(o.Entities))
	for _, name := range slices.Sorted(maps.Keys(o.Entities)) {
		t, ok := r.Lookup(name)
		if !ok {
			return fmt.Errorf("%w: mapping overrides name unknown entity %s", ormerr.ErrConfiguration, name)
		}
		m, err := r.Mapping(t)
		if err != nil {
			return err
		}
		if m.IsFrozen() {
			return fmt.Errorf("%w: entity %s: mapping is frozen", ormerr.ErrState, name)
		}
		c := m.Clone()
		if err := o.Entities[name].apply(c); err != nil {
			return fmt.Errorf("entity %s: %w", name, err)
		}
		staged = append(staged, c)
	}
	for _, c := range staged {
		r.Register(c)
	}
	return nil
}

func (eo EntityOverride) apply(m *EntityMapping) error {
	if eo.Table != "" {
		if err := m.SetTableName(eo.Table); err != nil {
			return err
		}
	}
	if eo.Schema != "" {
		if err := m.SetSchemaName(eo.Schema); err != nil {
			return err
		}
	}
	if eo.Database != "" {
		if err := m.SetDatabaseName(eo.Database); err != nil {
			return err
		}
	}
	for prop, column := range eo.Columns {
		if err := m.UpdateProperty(prop, Column(column)); err != nil {
			return err
		}
	}
	if len(eo.Exclude) > 0 {
		if err := m.RemoveProperty(eo.Exclude...); err != nil {
			return err
		}
	}
	return nil
}
