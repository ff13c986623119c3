package publish

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
)

func TestBuildQuery(t *testing.T) {
	query, err := BuildQuery("Asset", session.NewData("name", "foo", "type", map[string]any{"id": "X"}))
	require.NoError(t, err)
	assert.Equal(t, `select id from Asset where name is "foo" and type.id is "X"`, query)
}

func TestBuildQuery_InsertionOrder(t *testing.T) {
	data := session.NewData("version", 0, "asset", session.Ref{Type: "Asset", ID: "a1"})
	data.Set("task", &session.Entity{Type: "Task", ID: "t1"})
	data.Set("version", 3)

	query, err := BuildQuery("AssetVersion", data)
	require.NoError(t, err)
	assert.Equal(t, `select id from AssetVersion where version is "3" and asset.id is "a1" and task.id is "t1"`, query)
}

func TestBuildQuery_Values(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "string", value: "main", want: `k is "main"`},
		{name: "quoted string", value: `say "hi"`, want: `k is "say \"hi\""`},
		{name: "backslash", value: `a\b`, want: `k is "a\\b"`},
		{name: "int", value: 42, want: `k is "42"`},
		{name: "int64", value: int64(7), want: `k is "7"`},
		{name: "float", value: 1.5, want: `k is "1.5"`},
		{name: "bool", value: true, want: `k is "true"`},
		{name: "nil", value: nil, want: `k is none`},
		{name: "ref", value: session.Ref{ID: "r"}, want: `k.id is "r"`},
		{name: "entity value", value: session.Entity{ID: "e"}, want: `k.id is "e"`},
		{name: "string map", value: map[string]string{"id": "m"}, want: `k.id is "m"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, err := BuildQuery("T", session.NewData("k", tt.value))
			require.NoError(t, err)
			assert.Equal(t, "select id from T where "+tt.want, query)
		})
	}
}

func TestBuildQuery_SkipsMetadata(t *testing.T) {
	query, err := BuildQuery("Component", session.NewData("name", "main", "metadata", map[string]string{"a": "1"}))
	require.NoError(t, err)
	assert.Equal(t, `select id from Component where name is "main"`, query)
}

func TestBuildQuery_MissingID(t *testing.T) {
	invalid := []any{
		map[string]any{"name": "no id"},
		map[string]string{},
		session.Ref{},
		(*session.Entity)(nil),
		[]string{"a"},
	}
	for _, value := range invalid {
		_, err := BuildQuery("Asset", session.NewData("type", value))
		assert.ErrorIs(t, err, ErrMissingID, "%#v", value)
		assert.Contains(t, err.Error(), "Asset.type")
	}
}

func TestBuildQuery_Empty(t *testing.T) {
	query, err := BuildQuery("Project", nil)
	require.NoError(t, err)
	assert.Equal(t, "select id from Project", query)
}
