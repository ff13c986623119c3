package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity or location does not exist
	ErrNotFound = errors.New("not found")

	// ErrAmbiguousEntity is returned when an identity query matches more than one entity
	ErrAmbiguousEntity = errors.New("ambiguous entity")

	// ErrInvalidQuery is returned for malformed query expressions
	ErrInvalidQuery = errors.New("invalid query")

	// ErrUnknownAttribute is returned when writing an attribute the entity type does not have
	ErrUnknownAttribute = errors.New("unknown attribute")

	// ErrComponentInLocation is returned when adding a component a location already holds
	ErrComponentInLocation = errors.New("component already in location")

	// ErrComponentNotInLocation is returned when a location is asked for a component it lacks
	ErrComponentNotInLocation = errors.New("component not in location")
)

// AmbiguousEntityError reports an identity query with several matches.
type AmbiguousEntityError struct {
	Type  string
	Query string
	Count int
}

func (e *AmbiguousEntityError) Error() string {
	return fmt.Sprintf("ambiguous entity: %d %s entities match %q", e.Count, e.Type, e.Query)
}

// Is lets errors.Is match ErrAmbiguousEntity.
func (e *AmbiguousEntityError) Is(target error) bool {
	return target == ErrAmbiguousEntity
}
