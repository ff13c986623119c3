package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
)

func TestParseQuery(t *testing.T) {
	q, err := ParseQuery(`Shot where name is "sh010" and parent.id is "abc"`)
	require.NoError(t, err)
	assert.Equal(t, "Shot", q.Type)
	require.Len(t, q.Conditions, 2)
	assert.Equal(t, []string{"name"}, q.Conditions[0].Path)
	assert.Equal(t, "sh010", *q.Conditions[0].Value)
	assert.Equal(t, []string{"parent", "id"}, q.Conditions[1].Path)
	assert.False(t, q.Conditions[1].Negate)
}

func TestParseQuery_Forms(t *testing.T) {
	tests := []struct {
		name   string
		expr   string
		want   string
		negate bool
		isNone bool
	}{
		{name: "bare type", expr: "Project", want: "Project"},
		{name: "select list", expr: "select name, link from Task where id is x", want: `select name, link from Task where id is "x"`},
		{name: "equals", expr: `Asset where name = "model"`, want: `Asset where name is "model"`},
		{name: "is not", expr: `Asset where name is not "model"`, want: `Asset where name is_not "model"`, negate: true},
		{name: "bang equals", expr: `Asset where name!="model"`, want: `Asset where name is_not "model"`, negate: true},
		{name: "none", expr: "Shot where parent is none", want: "Shot where parent is none", isNone: true},
		{name: "single quotes", expr: `Shot where name is 'sh 010'`, want: `Shot where name is "sh 010"`},
		{name: "escaped quote", expr: `Shot where name is "a\"b"`, want: `Shot where name is "a\"b"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseQuery(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.String())
			if len(q.Conditions) > 0 {
				assert.Equal(t, tt.negate, q.Conditions[0].Negate)
				assert.Equal(t, tt.isNone, q.Conditions[0].Value == nil)
			}
		})
	}
}

func TestParseQuery_Invalid(t *testing.T) {
	exprs := []string{
		"",
		"Shot where",
		"Shot where name",
		`Shot where name like "x"`,
		`Shot where name is "unterminated`,
		`Shot where name is "a" or id is "b"`,
		"select from Shot",
		`Shot name is "x"`,
	}
	for _, expr := range exprs {
		_, err := ParseQuery(expr)
		assert.ErrorIs(t, err, session.ErrInvalidQuery, expr)
	}
}

func TestBuildSelect(t *testing.T) {
	q, err := ParseQuery(`Component where name is "main" and version.id is "v1"`)
	require.NoError(t, err)

	query, args, err := buildSelect(q)
	require.NoError(t, err)
	assert.Contains(t, query, "type IN (?, ?)")
	assert.Contains(t, query, "json_extract(data, ?)")
	assert.NotContains(t, query, "$")
	assert.Equal(t, []any{"FileComponent", "SequenceComponent", "$.name", "main", "$.version.id", "v1"}, args)
}

func TestBuildSelect_Invalid(t *testing.T) {
	exprs := []string{
		`Widget where name is "x"`,
		`AssetVersion where name is "x"`,
		`Shot where name.id is "x"`,
		`Shot where parent.bogus is "x"`,
		`Shot where parent.parent.id is "x"`,
		`select bogus from Shot`,
	}
	for _, expr := range exprs {
		q, err := ParseQuery(expr)
		require.NoError(t, err, expr)
		_, _, err = buildSelect(q)
		assert.ErrorIs(t, err, session.ErrInvalidQuery, expr)
	}
}
