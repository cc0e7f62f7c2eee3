// Package ormerr defines the error categories shared by the mapping, statement
// building, template resolution and join resolution packages.
//
// Package-specific errors wrap one of these categories, so callers can match on
// either the precise condition or its category:
//
//	errors.Is(err, format.ErrUnknownReference) // precise
//	errors.Is(err, ormerr.ErrConfiguration)    // category
package ormerr

import "errors"

var (
	// ErrConfiguration marks programmer errors in mappings, templates or joins.
	ErrConfiguration = errors.New("configuration error")
	// ErrState marks an operation attempted on a mapping in the wrong lifecycle state.
	ErrState = errors.New("invalid state")
	// ErrMappingShape marks operations the entity mapping cannot support,
	// such as by-key statements for an entity without a primary key.
	ErrMappingShape = errors.New("unsupported mapping shape")
)
