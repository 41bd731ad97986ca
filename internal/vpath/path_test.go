package vpath

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToLocal(t *testing.T) {
	p, err := New("/tmp/data/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "file", p.Scheme())
	assert.False(t, p.IsRemote())
	assert.Equal(t, "file.txt", p.Name())
}

func TestNewUnknownSchemeTreatedAsLocal(t *testing.T) {
	// An unregistered scheme is an ordinary relative path with an odd name
	p, err := New("weird://something")
	require.NoError(t, err)
	assert.Equal(t, "file", p.Scheme())
}

func TestParentWalksToRootFixedPoint(t *testing.T) {
	p := MustNew("/a/b/c")

	parent := p.Parent()
	assert.Equal(t, "/a/b", parent.String())

	// Walk upward; the root is its own parent and terminates the loop
	for i := 0; i < 10; i++ {
		next := parent.Parent()
		if next.Equal(parent) {
			assert.Equal(t, "/", parent.String())
			return
		}
		parent = next
	}
	t.Fatal("walking up never reached a fixed point")
}

func TestParts(t *testing.T) {
	p := MustNew("/a/b/c.txt")
	assert.Equal(t, []string{"/", "a", "b", "c.txt"}, p.Parts())

	root := MustNew("/")
	assert.Equal(t, []string{"/"}, root.Parts())
}

func TestJoin(t *testing.T) {
	p := MustNew("/a")
	joined, err := p.Join("b", "c.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/a", "b", "c.txt"), joined.String())

	_, err = p.Join("")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestStemAndSuffix(t *testing.T) {
	tests := []struct {
		path     string
		stem     string
		suffix   string
		suffixes []string
	}{
		{"/a/archive.tar.gz", "archive.tar", ".gz", []string{".tar", ".gz"}},
		{"/a/file.txt", "file", ".txt", []string{".txt"}},
		{"/a/noext", "noext", "", nil},
		{"/a/.hidden", ".hidden", "", nil},
		{"/a/.hidden.txt", ".hidden", ".txt", nil},
	}
	for _, tt := range tests {
		p := MustNew(tt.path)
		assert.Equal(t, tt.stem, p.Stem(), "stem of %s", tt.path)
		assert.Equal(t, tt.suffix, p.Suffix(), "suffix of %s", tt.path)
		if tt.suffixes != nil {
			assert.Equal(t, tt.suffixes, p.Suffixes(), "suffixes of %s", tt.path)
		}
	}
}

func TestWithNameAndStemAndSuffix(t *testing.T) {
	p := MustNew("/a/report.txt")

	renamed, err := p.WithName("summary.md")
	require.NoError(t, err)
	assert.Equal(t, "/a/summary.md", renamed.String())

	restemmed, err := p.WithStem("draft")
	require.NoError(t, err)
	assert.Equal(t, "/a/draft.txt", restemmed.String())

	resuffixed, err := p.WithSuffix(".md")
	require.NoError(t, err)
	assert.Equal(t, "/a/report.md", resuffixed.String())

	_, err = p.WithName("bad/name")
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = p.WithName("")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestEqualNormalizesCleanedForms(t *testing.T) {
	a := MustNew("/a/b/../b/c")
	b := MustNew("/a/b/c")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(MustNew("/a/b")))
}

func TestLocalCapabilities(t *testing.T) {
	p := MustNew("/tmp/x")
	assert.True(t, p.SupportsDirectoryRename())
	assert.True(t, p.SupportsFileEditing())
}
