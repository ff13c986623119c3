package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestData_InsertionOrder(t *testing.T) {
	d := NewData("name", "foo", "type", Ref{Type: TypeAssetType, ID: "X"})
	d.Set("parent", "p")
	d.Set("name", "bar") // existing key keeps its slot

	assert.Equal(t, []string{"name", "type", "parent"}, d.Keys())
	v, ok := d.Get("name")
	require.True(t, ok)
	assert.Equal(t, "bar", v)
}

func TestData_MergeOverridesInPlaceAndAppends(t *testing.T) {
	identity := NewData("version", 0, "asset", "a", "task", "t")
	extra := NewData("task", "t2", "comment", "hi")

	merged := identity.Clone().Merge(extra)

	assert.Equal(t, []string{"version", "asset", "task", "comment"}, merged.Keys())
	task, _ := merged.Get("task")
	assert.Equal(t, "t2", task)

	// the source is untouched
	task, _ = identity.Get("task")
	assert.Equal(t, "t", task)
}

func TestData_Delete(t *testing.T) {
	d := NewData("a", 1, "b", 2, "c", 3)

	v, ok := d.Delete("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, []string{"a", "c"}, d.Keys())

	_, ok = d.Delete("missing")
	assert.False(t, ok)
}

func TestData_NilSafe(t *testing.T) {
	var d *Data
	assert.Equal(t, 0, d.Len())
	assert.Nil(t, d.Keys())
	_, ok := d.Get("x")
	assert.False(t, ok)
	assert.Equal(t, 0, d.Clone().Len())
	assert.Equal(t, "{}", d.String())
}

func TestData_MarshalJSONKeepsOrder(t *testing.T) {
	d := NewData("z", 1, "a", "x", "ref", Ref{Type: TypeAsset, ID: "42"})

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":"x","ref":{"__entity_type__":"Asset","id":"42"}}`, string(raw))
}

func TestNewData_OddArgsPanics(t *testing.T) {
	assert.Panics(t, func() { NewData("a") })
	assert.Panics(t, func() { NewData(1, "a") })
}
