package session

import "fmt"

// LocationKind says how a location stores component data.
type LocationKind string

const (
	// KindOrigin is the staging location: placements are the source paths.
	KindOrigin LocationKind = "origin"
	// KindUnmanaged records paths without touching the files.
	KindUnmanaged LocationKind = "unmanaged"
	// KindDisk copies data below Root.
	KindDisk LocationKind = "disk"
)

// Location is a named storage target for component placements.
type Location struct {
	ID       string       `json:"id" db:"id"`
	Name     string       `json:"name" db:"name"`
	Kind     LocationKind `json:"kind" db:"kind"`
	Root     string       `json:"root,omitempty" db:"root"`
	Priority int          `json:"priority" db:"priority"`
}

func (l *Location) String() string {
	if l == nil {
		return "<no location>"
	}
	if l.Root != "" {
		return fmt.Sprintf("<Location %s (%s at %s)>", l.Name, l.Kind, l.Root)
	}
	return fmt.Sprintf("<Location %s (%s)>", l.Name, l.Kind)
}

// Placement records a component held by a location.
type Placement struct {
	ComponentID        string `json:"component_id" db:"component_id"`
	LocationID         string `json:"location_id" db:"location_id"`
	ResourceIdentifier string `json:"resource_identifier" db:"resource_identifier"`
}

// Source is what AddComponent reads from: a filesystem path, or another
// location already holding the component.
type Source struct {
	Path     string
	Location *Location
}

// FromPath returns a Source reading a file or sequence pattern.
func FromPath(path string) Source {
	return Source{Path: path}
}

// FromLocation returns a Source transferring from loc.
func FromLocation(loc *Location) Source {
	return Source{Location: loc}
}

func (s Source) String() string {
	if s.Location != nil {
		return s.Location.Name
	}
	return s.Path
}
