package session

import (
	"fmt"
	"strconv"
)

// Entity types known to the publish protocol.
const (
	TypeProject           = "Project"
	TypeFolder            = "Folder"
	TypeEpisode           = "Episode"
	TypeSequence          = "Sequence"
	TypeShot              = "Shot"
	TypeAssetBuild        = "AssetBuild"
	TypeTask              = "Task"
	TypeAssetType         = "AssetType"
	TypeAsset             = "Asset"
	TypeAssetVersion      = "AssetVersion"
	TypeComponent         = "Component"
	TypeFileComponent     = "FileComponent"
	TypeSequenceComponent = "SequenceComponent"
)

// Well-known location names.
const (
	OriginLocation    = "ftrack.origin"
	UnmanagedLocation = "ftrack.unmanaged"
)

// Ref points at an entity.
type Ref struct {
	Type string `json:"__entity_type__"`
	ID   string `json:"id"`
}

// IsZero reports whether r points nowhere.
func (r Ref) IsZero() bool {
	return r.ID == ""
}

func (r Ref) String() string {
	return fmt.Sprintf("%s(%s)", r.Type, r.ID)
}

// Link is one item of a context entity's ancestry chain.
type Link struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Entity is a detached snapshot of a stored record. Changing it has no
// effect on the store; writes go through EntityStore.Update.
//
// Fields holds every attribute the entity type exposes. Unset attributes
// are present with a nil value so Has can answer schema questions.
// Reference attributes hold a Ref; "link" holds a []Link.
type Entity struct {
	Type     string         `json:"__entity_type__"`
	ID       string         `json:"id"`
	Fields   map[string]any `json:"fields,omitempty"`
	Metadata Metadata       `json:"metadata,omitempty"`
}

// Ref returns a reference to e.
func (e *Entity) Ref() Ref {
	return Ref{Type: e.Type, ID: e.ID}
}

// Has reports whether the entity exposes attr, set or not.
func (e *Entity) Has(attr string) bool {
	if attr == "id" {
		return true
	}
	_, ok := e.Fields[attr]
	return ok
}

// Get returns the raw value of attr.
func (e *Entity) Get(attr string) any {
	if attr == "id" {
		return e.ID
	}
	return e.Fields[attr]
}

// GetString returns attr formatted as a string; nil yields "".
func (e *Entity) GetString(attr string) string {
	switch v := e.Get(attr).(type) {
	case nil:
		return ""
	case string:
		return v
	case Ref:
		return v.ID
	default:
		return fmt.Sprint(v)
	}
}

// GetInt returns attr as an integer, or 0 when it is not numeric.
func (e *Entity) GetInt(attr string) int64 {
	switch v := e.Get(attr).(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

// GetRef returns attr when it holds an entity reference.
func (e *Entity) GetRef(attr string) (Ref, bool) {
	switch v := e.Get(attr).(type) {
	case Ref:
		return v, !v.IsZero()
	case *Entity:
		if v != nil {
			return v.Ref(), true
		}
	}
	return Ref{}, false
}

// Link returns the ancestry chain, root first and ending with e itself.
// Non-context entities return nil.
func (e *Entity) Link() []Link {
	links, _ := e.Fields["link"].([]Link)
	return links
}

func (e *Entity) String() string {
	if name := e.GetString("name"); name != "" {
		return fmt.Sprintf("<%s(%s) %q>", e.Type, e.ID, name)
	}
	return fmt.Sprintf("<%s(%s)>", e.Type, e.ID)
}
