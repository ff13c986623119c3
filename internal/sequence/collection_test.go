package sequence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PrintfWithRanges(t *testing.T) {
	c, err := Parse("/renders/shot.%04d.exr [1-3, 5]")
	require.NoError(t, err)

	assert.Equal(t, "/renders/shot.", c.Head)
	assert.Equal(t, ".exr", c.Tail)
	assert.Equal(t, 4, c.Padding)
	assert.Equal(t, []int{1, 2, 3, 5}, c.Indexes)
	assert.Equal(t, "/renders/shot.0005.exr", c.Member(5))
	assert.Equal(t, "/renders/shot.%04d.exr [1-3, 5]", c.String())
}

func TestParse_HashPadding(t *testing.T) {
	c, err := Parse("plate_###.dpx")
	require.NoError(t, err)

	assert.Equal(t, "plate_", c.Head)
	assert.Equal(t, ".dpx", c.Tail)
	assert.Equal(t, 3, c.Padding)
	assert.Empty(t, c.Indexes)
	assert.Equal(t, "plate_%03d.dpx", c.Pattern())
}

func TestParse_Unpadded(t *testing.T) {
	c, err := Parse("frame.%d.png [9-11]")
	require.NoError(t, err)

	assert.Equal(t, 0, c.Padding)
	assert.Equal(t, []string{"frame.9.png", "frame.10.png", "frame.11.png"}, c.Paths())
}

func TestParse_SingleFile(t *testing.T) {
	for _, p := range []string{"render_final.mov", "/tmp/shot_010_v002.mov", "notes.txt"} {
		_, err := Parse(p)
		assert.True(t, errors.Is(err, ErrNotSequence), "%s: got %v", p, err)
	}
}

func TestParse_BadRanges(t *testing.T) {
	_, err := Parse("a.%04d.exr [5-1]")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotSequence))
}

func TestCollection_Match(t *testing.T) {
	c := New("/r/shot.", ".exr", 4, 1, 2, 3)

	token, ok := c.Match("/r/shot.0002.exr")
	require.True(t, ok)
	assert.Equal(t, "0002", token)

	_, ok = c.Match("/r/shot.0004.exr") // not a member
	assert.False(t, ok)
	_, ok = c.Match("/r/shot.02.exr")   // wrong padding
	assert.False(t, ok)
	_, ok = c.Match("/r/other.0001.exr")
	assert.False(t, ok)
}

func TestCollection_Ranges(t *testing.T) {
	c := New("a.", ".exr", 0, 7, 1, 2, 3, 9, 8, 2)
	assert.Equal(t, []int{1, 2, 3, 7, 8, 9}, c.Indexes)
	assert.Equal(t, "1-3, 7-9", c.Ranges())
	assert.Equal(t, ".exr", c.Ext())
}
