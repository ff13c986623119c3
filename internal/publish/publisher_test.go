package publish

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
	"github.com/nebukadhezer/pyblish-ftrack/internal/store"
)

type publishFixture struct {
	store *store.Store
	root  string
	src   string
	shot  *session.Entity
	task  *session.Entity
}

// newPublishFixture opens a store with one disk location and commits
// show > sq01 > sh010 > lighting.
func newPublishFixture(t *testing.T) *publishFixture {
	t.Helper()
	root := t.TempDir()
	s, err := store.OpenWithOptions(filepath.Join(t.TempDir(), "ftrack.db"), &store.OpenOptions{
		Locations: []store.LocationConfig{{Name: "studio.disk", Root: root}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := t.Context()
	project, err := s.Create(ctx, session.TypeProject, session.NewData("name", "show"))
	require.NoError(t, err)
	seq, err := s.Create(ctx, session.TypeSequence, session.NewData("name", "sq01", "parent", project.Ref()))
	require.NoError(t, err)
	shot, err := s.Create(ctx, session.TypeShot, session.NewData("name", "sh010", "parent", seq.Ref()))
	require.NoError(t, err)
	task, err := s.Create(ctx, session.TypeTask, session.NewData("name", "lighting", "parent", shot.Ref(), "type", "Lighting"))
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx))

	task, err = s.Get(ctx, session.TypeTask, task.ID)
	require.NoError(t, err)
	return &publishFixture{store: s, root: root, src: t.TempDir(), shot: shot, task: task}
}

func (f *publishFixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.src, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (f *publishFixture) get(t *testing.T, entityType, id string) *session.Entity {
	t.Helper()
	e, err := f.store.Get(t.Context(), entityType, id)
	require.NoError(t, err)
	return e
}

func (f *publishFixture) count(t *testing.T, expr string) int {
	t.Helper()
	found, err := f.store.Query(t.Context(), expr)
	require.NoError(t, err)
	return len(found)
}

// diskResource returns the resource identifier of ref in studio.disk
func (f *publishFixture) diskResource(t *testing.T, ref session.Ref) string {
	t.Helper()
	disk, err := f.store.LocationByName(t.Context(), "studio.disk")
	require.NoError(t, err)
	placements, err := f.store.ComponentLocations(t.Context(), ref)
	require.NoError(t, err)
	for _, p := range placements {
		if p.LocationID == disk.ID {
			return p.ResourceIdentifier
		}
	}
	t.Fatalf("%s is not in studio.disk", ref)
	return ""
}

func TestPublish_CreatesChain(t *testing.T) {
	f := newPublishFixture(t)
	src := f.write(t, "main.abc", "geometry")

	d := &Deliverable{ComponentPath: src}
	result, err := New(f.store, nil).Publish(t.Context(), f.task, []*Deliverable{d})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Deliverables)
	assert.Equal(t, 1, result.Created[session.TypeAssetType])
	assert.Equal(t, 1, result.Created[session.TypeAsset])
	assert.Equal(t, 1, result.Created[session.TypeAssetVersion])
	assert.Equal(t, 1, result.Commits[ModeCreate])

	require.NotNil(t, d.Component)
	assert.Equal(t, session.TypeFileComponent, d.Component.Type)
	assert.Equal(t, "main", d.Component.GetString("name"))

	assets, err := f.store.Query(t.Context(), `Asset where name is "lighting"`)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	parent, ok := assets[0].GetRef("parent")
	require.True(t, ok)
	assert.Equal(t, f.shot.ID, parent.ID, "asset hangs off the task's parent")

	assetType, ok := assets[0].GetRef("type")
	require.True(t, ok)
	assert.Equal(t, "upload", f.get(t, session.TypeAssetType, assetType.ID).GetString("short"))

	disk, err := f.store.LocationByName(t.Context(), "studio.disk")
	require.NoError(t, err)
	placements, err := f.store.ComponentLocations(t.Context(), d.Component.Ref())
	require.NoError(t, err)
	var resource string
	for _, p := range placements {
		if p.LocationID == disk.ID {
			resource = p.ResourceIdentifier
		}
	}
	require.NotEmpty(t, resource)
	data, err := os.ReadFile(store.FilesystemPath(disk, resource))
	require.NoError(t, err)
	assert.Equal(t, "geometry", string(data))
}

func TestPublish_Idempotent(t *testing.T) {
	f := newPublishFixture(t)
	src := f.write(t, "main.abc", "geometry")
	publisher := New(f.store, nil)

	first := &Deliverable{ComponentPath: src}
	_, err := publisher.Publish(t.Context(), f.task, []*Deliverable{first})
	require.NoError(t, err)

	second := &Deliverable{ComponentPath: src}
	result, err := publisher.Publish(t.Context(), f.task, []*Deliverable{second})
	require.NoError(t, err)

	assert.Empty(t, result.Created)
	assert.Equal(t, 1, result.Reused[session.TypeAssetVersion])
	assert.Equal(t, 1, result.Commits[ModeNoop])
	assert.Equal(t, first.Component.ID, second.Component.ID)

	assert.Equal(t, 1, f.count(t, `AssetType where short is "upload"`))
	assert.Equal(t, 1, f.count(t, `Asset where name is "lighting"`))
	assert.Equal(t, 1, f.count(t, `AssetVersion where version is "0"`))
	assert.Equal(t, 1, f.count(t, `Component where name is "main"`))
}

func TestPublish_SharedChainAcrossDeliverables(t *testing.T) {
	f := newPublishFixture(t)
	single := f.write(t, "main.abc", "geometry")
	for _, name := range []string{"beauty.0001.exr", "beauty.0002.exr", "beauty.0003.exr"} {
		f.write(t, name, "px")
	}

	deliverables := []*Deliverable{
		{ComponentPath: single},
		{ComponentPath: filepath.Join(f.src, "beauty.%04d.exr"), ComponentData: session.NewData("name", "beauty")},
	}
	result, err := New(f.store, nil).Publish(t.Context(), f.task, deliverables)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Deliverables)
	assert.Equal(t, 1, result.Created[session.TypeAssetVersion])
	assert.Equal(t, 1, result.Reused[session.TypeAssetVersion])
	assert.Equal(t, 2, result.Commits[ModeCreate])

	assert.Equal(t, session.TypeFileComponent, deliverables[0].Component.Type)
	assert.Equal(t, session.TypeSequenceComponent, deliverables[1].Component.Type)

	members, err := f.store.Members(t.Context(), deliverables[1].Component.Ref())
	require.NoError(t, err)
	assert.Len(t, members, 3)
}

func TestPublish_OverwriteShrinksSequence(t *testing.T) {
	f := newPublishFixture(t)
	for _, name := range []string{"v1/beauty.0001.exr", "v1/beauty.0002.exr", "v1/beauty.0003.exr"} {
		f.write(t, name, "old")
	}
	for _, name := range []string{"v2/beauty.0001.exr", "v2/beauty.0002.exr"} {
		f.write(t, name, "new")
	}
	publisher := New(f.store, nil)

	first := &Deliverable{
		ComponentPath: filepath.Join(f.src, "v1", "beauty.%04d.exr"),
		ComponentData: session.NewData("name", "beauty"),
	}
	_, err := publisher.Publish(t.Context(), f.task, []*Deliverable{first})
	require.NoError(t, err)

	second := &Deliverable{
		ComponentPath:      filepath.Join(f.src, "v2", "beauty.%04d.exr"),
		ComponentData:      session.NewData("name", "beauty"),
		ComponentOverwrite: true,
	}
	result, err := publisher.Publish(t.Context(), f.task, []*Deliverable{second})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Commits[ModeOverwrite])
	assert.Equal(t, first.Component.ID, second.Component.ID, "overwrite keeps the component")

	members, err := f.store.Members(t.Context(), second.Component.Ref())
	require.NoError(t, err)
	require.Len(t, members, 2)

	disk, err := f.store.LocationByName(t.Context(), "studio.disk")
	require.NoError(t, err)
	for _, m := range members {
		placements, err := f.store.ComponentLocations(t.Context(), m.Ref())
		require.NoError(t, err)
		var found bool
		for _, p := range placements {
			if p.LocationID != disk.ID {
				continue
			}
			found = true
			data, err := os.ReadFile(store.FilesystemPath(disk, p.ResourceIdentifier))
			require.NoError(t, err)
			assert.Equal(t, "new", string(data))
		}
		assert.True(t, found, "member %s placed on disk", m.GetString("name"))
	}
	assert.Equal(t, 2, f.count(t, `FileComponent where container.id is "`+second.Component.ID+`"`))
}

func TestPublish_OverwriteSingleFile(t *testing.T) {
	f := newPublishFixture(t)
	publisher := New(f.store, nil)

	first := &Deliverable{ComponentPath: f.write(t, "a/main.abc", "v1")}
	_, err := publisher.Publish(t.Context(), f.task, []*Deliverable{first})
	require.NoError(t, err)

	second := &Deliverable{ComponentPath: f.write(t, "b/main.obj", "v2"), ComponentOverwrite: true}
	_, err = publisher.Publish(t.Context(), f.task, []*Deliverable{second})
	require.NoError(t, err)

	assert.Equal(t, first.Component.ID, second.Component.ID)
	assert.Equal(t, ".obj", second.Component.GetString("file_type"))

	disk, err := f.store.LocationByName(t.Context(), "studio.disk")
	require.NoError(t, err)
	placements, err := f.store.ComponentLocations(t.Context(), second.Component.Ref())
	require.NoError(t, err)
	for _, p := range placements {
		if p.LocationID == disk.ID {
			data, err := os.ReadFile(store.FilesystemPath(disk, p.ResourceIdentifier))
			require.NoError(t, err)
			assert.Equal(t, "v2", string(data))
		}
	}
}

func TestPublish_OverwriteSequenceWithSingleFile(t *testing.T) {
	f := newPublishFixture(t)
	for _, name := range []string{"v1/beauty.0001.exr", "v1/beauty.0002.exr"} {
		f.write(t, name, "old")
	}
	publisher := New(f.store, nil)

	first := &Deliverable{
		ComponentPath: filepath.Join(f.src, "v1", "beauty.%04d.exr"),
		ComponentData: session.NewData("name", "beauty"),
	}
	_, err := publisher.Publish(t.Context(), f.task, []*Deliverable{first})
	require.NoError(t, err)

	second := &Deliverable{
		ComponentPath:      f.write(t, "v2/final.mov", "final"),
		ComponentData:      session.NewData("name", "beauty"),
		ComponentOverwrite: true,
	}
	_, err = publisher.Publish(t.Context(), f.task, []*Deliverable{second})
	require.NoError(t, err)
	assert.Equal(t, first.Component.ID, second.Component.ID)
	assert.Equal(t, ".mov", second.Component.GetString("file_type"))
	assert.Equal(t, 0, f.count(t, `FileComponent where container.id is "`+second.Component.ID+`"`))

	resource := f.diskResource(t, second.Component.Ref())
	assert.Equal(t, "beauty.mov", filepath.Base(resource))

	disk, err := f.store.LocationByName(t.Context(), "studio.disk")
	require.NoError(t, err)
	data, err := os.ReadFile(store.FilesystemPath(disk, resource))
	require.NoError(t, err)
	assert.Equal(t, "final", string(data))
}

func TestPublish_MetadataMergesMonotonically(t *testing.T) {
	f := newPublishFixture(t)
	src := f.write(t, "main.abc", "geometry")
	publisher := New(f.store, nil)

	first := &Deliverable{ComponentPath: src, AssetVersionMetadata: session.Metadata{"a": "1", "b": "2"}}
	_, err := publisher.Publish(t.Context(), f.task, []*Deliverable{first})
	require.NoError(t, err)

	second := &Deliverable{ComponentPath: src, AssetVersionMetadata: session.Metadata{"b": "3", "c": "4"}}
	_, err = publisher.Publish(t.Context(), f.task, []*Deliverable{second})
	require.NoError(t, err)

	versions, err := f.store.Query(t.Context(), `AssetVersion where version is "0"`)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, session.Metadata{"a": "1", "b": "3", "c": "4"}, versions[0].Metadata)
}

func TestPublish_AmbiguousAssetType(t *testing.T) {
	f := newPublishFixture(t)
	ctx := t.Context()
	for _, name := range []string{"Upload", "Upload (legacy)"} {
		_, err := f.store.Create(ctx, session.TypeAssetType, session.NewData("short", "upload", "name", name))
		require.NoError(t, err)
	}
	require.NoError(t, f.store.Commit(ctx))
	src := f.write(t, "main.abc", "geometry")

	_, err := New(f.store, nil).Publish(ctx, f.task, []*Deliverable{{ComponentPath: src}})
	assert.ErrorIs(t, err, session.ErrAmbiguousEntity)

	result, err := New(f.store, &Config{AllowAmbiguous: true}).Publish(ctx, f.task, []*Deliverable{{ComponentPath: src}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reused[session.TypeAssetType])
}

func TestPublish_NamedLocation(t *testing.T) {
	f := newPublishFixture(t)
	src := f.write(t, "main.abc", "geometry")

	d := &Deliverable{ComponentPath: src, ComponentLocation: session.UnmanagedLocation}
	_, err := New(f.store, nil).Publish(t.Context(), f.task, []*Deliverable{d})
	require.NoError(t, err)

	unmanaged, err := f.store.LocationByName(t.Context(), session.UnmanagedLocation)
	require.NoError(t, err)
	placements, err := f.store.ComponentLocations(t.Context(), d.Component.Ref())
	require.NoError(t, err)
	var inUnmanaged bool
	for _, p := range placements {
		if p.LocationID == unmanaged.ID {
			inUnmanaged = true
		}
	}
	assert.True(t, inUnmanaged)

	bad := &Deliverable{ComponentPath: src, ComponentLocation: "nowhere"}
	_, err = New(f.store, nil).Publish(t.Context(), f.task, []*Deliverable{bad})
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestPublish_ThumbnailAndPropagation(t *testing.T) {
	f := newPublishFixture(t)
	src := f.write(t, "main.abc", "geometry")
	thumb := f.write(t, "thumb.png", "png")

	d := &Deliverable{ComponentPath: src, ThumbnailPath: thumb, PropagateThumbToParents: 2}
	result, err := New(f.store, nil).Publish(t.Context(), f.task, []*Deliverable{d})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Thumbnails)

	version := f.get(t, session.TypeAssetVersion, mustRef(t, d.Component, "version").ID)
	thumbnail, ok := version.GetRef("thumbnail")
	require.True(t, ok)

	task := f.get(t, session.TypeTask, f.task.ID)
	ref, ok := task.GetRef("thumbnail")
	require.True(t, ok)
	assert.Equal(t, thumbnail.ID, ref.ID)

	shot := f.get(t, session.TypeShot, f.shot.ID)
	ref, ok = shot.GetRef("thumbnail")
	require.True(t, ok)
	assert.Equal(t, thumbnail.ID, ref.ID)

	links := f.task.Link()
	require.Len(t, links, 4)
	seq := f.get(t, session.TypeSequence, links[1].ID)
	_, ok = seq.GetRef("thumbnail")
	assert.False(t, ok, "propagation stops after two entities")
}

func TestPublish_MissingComponentPath(t *testing.T) {
	f := newPublishFixture(t)

	_, err := New(f.store, nil).Publish(t.Context(), f.task, []*Deliverable{{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deliverable 0")
}

func mustRef(t *testing.T, e *session.Entity, attr string) session.Ref {
	t.Helper()
	ref, ok := e.GetRef(attr)
	require.True(t, ok, "%s has no %s", e, attr)
	return ref
}
