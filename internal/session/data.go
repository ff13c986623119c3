package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Data is an insertion-ordered field mapping. Identity queries are built
// from it, so clause order follows the order keys were first set.
// A nil *Data behaves as an empty mapping for reads.
type Data struct {
	keys   []string
	values map[string]any
}

// NewData builds a Data from alternating key/value arguments.
// It panics on a non-string key or an odd argument count.
func NewData(kv ...any) *Data {
	if len(kv)%2 != 0 {
		panic("session.NewData: odd number of arguments")
	}
	d := &Data{}
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("session.NewData: key %v is not a string", kv[i]))
		}
		d.Set(key, kv[i+1])
	}
	return d
}

// Set assigns key. A new key is appended; an existing key keeps its position.
func (d *Data) Set(key string, value any) *Data {
	if d.values == nil {
		d.values = make(map[string]any)
	}
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
	return d
}

// Get returns the value for key.
func (d *Data) Get(key string) (any, bool) {
	if d == nil || d.values == nil {
		return nil, false
	}
	v, ok := d.values[key]
	return v, ok
}

// Has reports whether key is set.
func (d *Data) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Delete removes key and returns its previous value.
func (d *Data) Delete(key string) (any, bool) {
	if d == nil || d.values == nil {
		return nil, false
	}
	v, ok := d.values[key]
	if !ok {
		return nil, false
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i:i], d.keys[i+1:]...)
			break
		}
	}
	return v, true
}

// Keys returns the keys in insertion order.
func (d *Data) Keys() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Len returns the number of keys.
func (d *Data) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Range calls fn for every key in order until fn returns false.
func (d *Data) Range(fn func(key string, value any) bool) {
	if d == nil {
		return
	}
	for _, k := range d.keys {
		if !fn(k, d.values[k]) {
			return
		}
	}
}

// Clone returns a shallow copy. Cloning nil yields an empty Data.
func (d *Data) Clone() *Data {
	out := &Data{}
	d.Range(func(k string, v any) bool {
		out.Set(k, v)
		return true
	})
	return out
}

// Merge copies every key of other into d. Keys of other override existing
// values in place; new keys are appended in other's order.
func (d *Data) Merge(other *Data) *Data {
	other.Range(func(k string, v any) bool {
		d.Set(k, v)
		return true
	})
	return d
}

// Map returns the fields as a plain map.
func (d *Data) Map() map[string]any {
	out := make(map[string]any, d.Len())
	d.Range(func(k string, v any) bool {
		out[k] = v
		return true
	})
	return out
}

// String renders the mapping in key order, e.g. {name: foo, type: AssetType(1)}.
func (d *Data) String() string {
	var b strings.Builder
	b.WriteByte('{')
	i := 0
	d.Range(func(k string, v any) bool {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", k, v)
		i++
		return true
	})
	b.WriteByte('}')
	return b.String()
}

// MarshalJSON writes the fields as a JSON object in key order.
func (d *Data) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	var err error
	i := 0
	d.Range(func(k string, v any) bool {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++
		var kb, vb []byte
		if kb, err = json.Marshal(k); err != nil {
			return false
		}
		if vb, err = json.Marshal(v); err != nil {
			err = fmt.Errorf("field %s: %w", k, err)
			return false
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
		return true
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
