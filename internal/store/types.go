package store

import (
	"fmt"
	"sort"

	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
)

type attrKind int

const (
	attrString attrKind = iota
	attrInt
	attrRef
)

func (k attrKind) String() string {
	switch k {
	case attrInt:
		return "integer"
	case attrRef:
		return "reference"
	}
	return "string"
}

// typeDef describes one concrete entity type.
type typeDef struct {
	name    string
	attrs   map[string]attrKind
	context bool // has a parent chain and exposes link
}

func (t *typeDef) attrNames() []string {
	names := make([]string, 0, len(t.attrs))
	for n := range t.attrs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func contextType(name string, thumbnail bool, extra map[string]attrKind) *typeDef {
	attrs := map[string]attrKind{
		"name":        attrString,
		"parent":      attrRef,
		"description": attrString,
	}
	if thumbnail {
		attrs["thumbnail"] = attrRef
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &typeDef{name: name, attrs: attrs, context: true}
}

var componentAttrs = map[string]attrKind{
	"name":      attrString,
	"version":   attrRef,
	"container": attrRef,
	"file_type": attrString,
	"size":      attrInt,
}

func componentType(name string, extra map[string]attrKind) *typeDef {
	attrs := make(map[string]attrKind, len(componentAttrs)+len(extra))
	for k, v := range componentAttrs {
		attrs[k] = v
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &typeDef{name: name, attrs: attrs}
}

// entityTypes is the schema of every concrete type the store holds.
var entityTypes = map[string]*typeDef{
	session.TypeProject: {
		name:    session.TypeProject,
		context: true,
		attrs: map[string]attrKind{
			"name":      attrString,
			"full_name": attrString,
			"thumbnail": attrRef,
		},
	},
	session.TypeFolder:     contextType(session.TypeFolder, false, nil),
	session.TypeEpisode:    contextType(session.TypeEpisode, true, nil),
	session.TypeSequence:   contextType(session.TypeSequence, true, nil),
	session.TypeShot:       contextType(session.TypeShot, true, nil),
	session.TypeAssetBuild: contextType(session.TypeAssetBuild, true, nil),
	session.TypeTask:       contextType(session.TypeTask, true, map[string]attrKind{"type": attrString}),
	session.TypeAssetType: {
		name: session.TypeAssetType,
		attrs: map[string]attrKind{
			"short": attrString,
			"name":  attrString,
		},
	},
	session.TypeAsset: {
		name: session.TypeAsset,
		attrs: map[string]attrKind{
			"name":        attrString,
			"type":        attrRef,
			"parent":      attrRef,
			"description": attrString,
		},
	},
	session.TypeAssetVersion: {
		name: session.TypeAssetVersion,
		attrs: map[string]attrKind{
			"version":   attrInt,
			"asset":     attrRef,
			"task":      attrRef,
			"comment":   attrString,
			"thumbnail": attrRef,
		},
	},
	session.TypeFileComponent:     componentType(session.TypeFileComponent, nil),
	session.TypeSequenceComponent: componentType(session.TypeSequenceComponent, map[string]attrKind{"padding": attrInt}),
}

// abstractTypes map a queryable base type to its concrete types.
var abstractTypes = map[string][]string{
	session.TypeComponent: {session.TypeFileComponent, session.TypeSequenceComponent},
	"Context": {
		session.TypeProject, session.TypeFolder, session.TypeEpisode, session.TypeSequence,
		session.TypeShot, session.TypeAssetBuild, session.TypeTask,
	},
}

// concreteTypes resolves a type name to the concrete types it covers.
func concreteTypes(name string) ([]string, error) {
	if _, ok := entityTypes[name]; ok {
		return []string{name}, nil
	}
	if subs, ok := abstractTypes[name]; ok {
		return subs, nil
	}
	return nil, fmt.Errorf("unknown entity type %q: %w", name, session.ErrInvalidQuery)
}

// lookupType returns the definition of a concrete type.
func lookupType(name string) (*typeDef, error) {
	if def, ok := entityTypes[name]; ok {
		return def, nil
	}
	if _, ok := abstractTypes[name]; ok {
		return nil, fmt.Errorf("cannot create abstract type %s: %w", name, session.ErrInvalidQuery)
	}
	return nil, fmt.Errorf("unknown entity type %q: %w", name, session.ErrInvalidQuery)
}

// attrKindFor returns the kind of attr on any of the given concrete types.
func attrKindFor(types []string, attr string) (attrKind, bool) {
	for _, t := range types {
		if kind, ok := entityTypes[t].attrs[attr]; ok {
			return kind, true
		}
	}
	return 0, false
}

// IsComponentType reports whether name is a component type.
func IsComponentType(name string) bool {
	return name == session.TypeComponent || name == session.TypeFileComponent || name == session.TypeSequenceComponent
}

// ContextTypes lists the concrete types that form the project hierarchy.
func ContextTypes() []string {
	return append([]string(nil), abstractTypes["Context"]...)
}
