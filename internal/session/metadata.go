package session

import (
	"fmt"
	"sort"
	"strings"
)

// Metadata is the free-form string mapping attached to an entity.
type Metadata map[string]string

// Merge returns m overlaid with update: keys in update win, keys only in
// m survive. Neither input is modified.
func (m Metadata) Merge(update Metadata) Metadata {
	out := make(Metadata, len(m)+len(update))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range update {
		out[k] = v
	}
	return out
}

// Clone returns a copy of m. Cloning nil yields an empty mapping.
func (m Metadata) Clone() Metadata {
	return Metadata(nil).Merge(m)
}

// Keys returns the sorted keys.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether both mappings hold the same pairs.
func (m Metadata) Equal(other Metadata) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (m Metadata) String() string {
	parts := make([]string, 0, len(m))
	for _, k := range m.Keys() {
		parts = append(parts, fmt.Sprintf("%s: %s", k, m[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
