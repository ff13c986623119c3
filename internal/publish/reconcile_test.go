package publish

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
	"github.com/nebukadhezer/pyblish-ftrack/internal/session/sessiontest"
)

func TestReconcile_CreatesThenFinds(t *testing.T) {
	f := newPublishFixture(t)
	ctx := t.Context()
	r := NewReconciler(f.store, nil)

	req := ReconcileRequest{
		Type:     session.TypeAssetType,
		Identity: session.NewData("short", "upload"),
		Extra:    session.NewData("name", "Upload"),
	}
	first, err := r.Reconcile(ctx, req)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, `select id from AssetType where short is "upload" and name is "Upload"`, first.Query)
	require.NoError(t, f.store.Commit(ctx))

	second, err := r.Reconcile(ctx, req)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Entity.ID, second.Entity.ID)
}

func TestReconcile_ExtraOverridesIdentity(t *testing.T) {
	f := newPublishFixture(t)
	r := NewReconciler(f.store, nil)

	result, err := r.Reconcile(t.Context(), ReconcileRequest{
		Type:     session.TypeAssetType,
		Identity: session.NewData("short", "upload"),
		Extra:    session.NewData("short", "geo"),
	})
	require.NoError(t, err)
	assert.Equal(t, `select id from AssetType where short is "geo"`, result.Query)
	assert.Equal(t, "geo", result.Entity.GetString("short"))
}

func TestReconcile_MetadataNotInQuery(t *testing.T) {
	f := newPublishFixture(t)
	ctx := t.Context()
	r := NewReconciler(f.store, nil)

	result, err := r.Reconcile(ctx, ReconcileRequest{
		Type:     session.TypeAssetType,
		Identity: session.NewData("short", "upload"),
		Extra:    session.NewData("metadata", map[string]any{"source": "maya"}),
		Metadata: session.Metadata{"artist": "kim"},
	})
	require.NoError(t, err)
	assert.Equal(t, `select id from AssetType where short is "upload"`, result.Query)
	assert.Equal(t, session.Metadata{"source": "maya", "artist": "kim"}, result.Entity.Metadata)
	require.NoError(t, f.store.Commit(ctx))

	md, err := f.store.Metadata(ctx, result.Entity.Ref())
	require.NoError(t, err)
	assert.Equal(t, "maya", md["source"])
}

func TestReconcile_UnchangedMetadataWritesNothing(t *testing.T) {
	f := newPublishFixture(t)
	ctx := t.Context()

	_, err := NewReconciler(f.store, nil).Reconcile(ctx, ReconcileRequest{
		Type:     session.TypeAssetType,
		Identity: session.NewData("short", "upload"),
		Metadata: session.Metadata{"a": "1"},
	})
	require.NoError(t, err)
	require.NoError(t, f.store.Commit(ctx))

	rec := sessiontest.NewRecorder(f.store)
	result, err := NewReconciler(rec, nil).Reconcile(ctx, ReconcileRequest{
		Type:     session.TypeAssetType,
		Identity: session.NewData("short", "upload"),
		Metadata: session.Metadata{"a": "1"},
	})
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Empty(t, rec.Writes())
}

func TestReconcile_Ambiguous(t *testing.T) {
	f := newPublishFixture(t)
	ctx := t.Context()
	for _, name := range []string{"a", "b"} {
		_, err := f.store.Create(ctx, session.TypeAssetType, session.NewData("short", "dup", "name", name))
		require.NoError(t, err)
	}
	require.NoError(t, f.store.Commit(ctx))

	req := ReconcileRequest{Type: session.TypeAssetType, Identity: session.NewData("short", "dup")}
	_, err := NewReconciler(f.store, nil).Reconcile(ctx, req)
	var ambiguous *session.AmbiguousEntityError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, 2, ambiguous.Count)

	lenient := NewReconciler(f.store, nil)
	lenient.Strict = false
	result, err := lenient.Reconcile(ctx, req)
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, "a", result.Entity.GetString("name"))
}

func TestReconcile_MissingReferenceID(t *testing.T) {
	f := newPublishFixture(t)

	_, err := NewReconciler(f.store, nil).Reconcile(t.Context(), ReconcileRequest{
		Type:     session.TypeAsset,
		Identity: session.NewData("name", "x", "parent", session.Ref{Type: session.TypeShot}),
	})
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestToMetadata(t *testing.T) {
	md, err := toMetadata(session.NewData("n", 3, "s", "x"))
	require.NoError(t, err)
	assert.Equal(t, session.Metadata{"n": "3", "s": "x"}, md)

	md, err = toMetadata(map[string]any{"flag": true})
	require.NoError(t, err)
	assert.Equal(t, session.Metadata{"flag": "true"}, md)

	_, err = toMetadata([]string{"nope"})
	assert.Error(t, err)
}
