package sequence

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, fs afero.Fs, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, afero.WriteFile(fs, p, []byte(p), 0o644))
	}
}

func TestResolve_DiscoversMembersOnDisk(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs,
		"/renders/render.0001.exr",
		"/renders/render.0002.exr",
		"/renders/render.0003.exr",
		"/renders/render.01.exr",   // wrong padding
		"/renders/render.0004.jpg", // other tail
		"/renders/other.0001.exr",  // other head
	)

	c, err := Resolve(fs, "/renders/render.%04d.exr")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, c.Indexes)
	assert.Equal(t, ".exr", c.Tail)
}

func TestResolve_ExplicitRangesSkipDisk(t *testing.T) {
	fs := afero.NewMemMapFs()

	c, err := Resolve(fs, "/nowhere/a.%02d.exr [1-2]")
	require.NoError(t, err)
	assert.Equal(t, []string{"/nowhere/a.01.exr", "/nowhere/a.02.exr"}, c.Paths())
}

func TestResolve_NoMembersIsSingleFile(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := Resolve(fs, "/renders/render.%04d.exr")
	assert.True(t, errors.Is(err, ErrNotSequence))

	_, err = Resolve(fs, "/renders/render_final.mov")
	assert.True(t, errors.Is(err, ErrNotSequence))
}

func TestSplitHead(t *testing.T) {
	dir, prefix := splitHead("shot.")
	assert.Equal(t, ".", dir)
	assert.Equal(t, "shot.", prefix)

	dir, prefix = splitHead("/renders/sh010/")
	assert.Equal(t, "/renders/sh010/", dir)
	assert.Equal(t, "", prefix)
}

func TestAssemble(t *testing.T) {
	collections, remainder := Assemble([]string{
		"/a/shot.0001.exr",
		"/a/shot.0002.exr",
		"/a/shot.0003.exr",
		"/a/plate.1001.dpx",
		"/a/plate.1002.dpx",
		"/a/final.mov",
		"/a/take.1.wav",
	}, 2)

	require.Len(t, collections, 2)
	assert.Equal(t, "/a/plate.%d.dpx [1001-1002]", collections[0].String())
	assert.Equal(t, "/a/shot.%04d.exr [1-3]", collections[1].String())
	assert.Equal(t, []string{"/a/final.mov", "/a/take.1.wav"}, remainder)
}

func TestScanner_Scan(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs,
		"/shots/sh010/comp.0001.exr",
		"/shots/sh010/comp.0002.exr",
		"/shots/sh010/preview.mov",
		"/shots/sh010/.hidden.exr",
		"/shots/sh010/notes.txt",
	)

	scanner := NewScanner(&Config{Fs: fs, Extensions: []string{"exr", ".mov"}})
	result, err := scanner.Scan(context.Background(), "/shots")
	require.NoError(t, err)

	assert.Equal(t, 4, result.FilesSeen)
	assert.Equal(t, 1, result.FilesSkipped)
	require.Len(t, result.Collections, 1)
	assert.Equal(t, "/shots/sh010/comp.%04d.exr [1-2]", result.Collections[0].String())
	assert.Equal(t, []string{"/shots/sh010/preview.mov"}, result.Singles)
}
