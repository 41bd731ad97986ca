package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofm/gofm/internal/kvstore"
	"github.com/gofm/gofm/internal/vpath"
)

// newMemBackend registers the "mem" scheme over one shared in-memory
// store and returns it for seeding and inspection.
func newMemBackend(t *testing.T) *kvstore.MemStore {
	t.Helper()
	store := kvstore.NewMemStore()
	Register("mem", func(space string) (kvstore.Store, error) {
		return store, nil
	})
	return store
}

func mustPath(t *testing.T, raw string) vpath.Path {
	t.Helper()
	p, err := vpath.New(raw)
	require.NoError(t, err)
	return p
}

func TestParseURI(t *testing.T) {
	newMemBackend(t)

	p := mustPath(t, "mem://space/a/b.txt")
	assert.Equal(t, "mem", p.Scheme())
	assert.True(t, p.IsRemote())
	assert.Equal(t, "b.txt", p.Name())

	_, err := vpath.New("mem://")
	assert.ErrorIs(t, err, vpath.ErrInvalidPath)

	_, err = vpath.New("mem://space/a//b")
	assert.ErrorIs(t, err, vpath.ErrInvalidPath)
}

func TestNavigation(t *testing.T) {
	newMemBackend(t)

	p := mustPath(t, "mem://space/a/b/c.txt")
	assert.Equal(t, "mem://space/a/b/", p.Parent().String())
	assert.Equal(t, []string{"mem://", "space", "a", "b", "c.txt"}, p.Parts())

	root := mustPath(t, "mem://space/")
	assert.True(t, root.Parent().Equal(root))
	assert.Equal(t, "space", root.Name())

	assert.True(t, mustPath(t, "mem://space/a").Equal(mustPath(t, "mem://space/a/")))
}

func TestCapabilities(t *testing.T) {
	newMemBackend(t)

	p := mustPath(t, "mem://space/a")
	assert.False(t, p.SupportsDirectoryRename())
	assert.False(t, p.SupportsFileEditing())
}

func TestWriteReadRoundTrip(t *testing.T) {
	newMemBackend(t)
	ctx := context.Background()

	p := mustPath(t, "mem://space/dir/file.txt")
	n, err := p.WriteText(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	text, err := p.ReadText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	isFile, err := p.IsFile(ctx)
	require.NoError(t, err)
	assert.True(t, isFile)
}

func TestAppend(t *testing.T) {
	newMemBackend(t)
	ctx := context.Background()

	p := mustPath(t, "mem://space/log.txt")
	_, err := p.WriteText(ctx, "one\n")
	require.NoError(t, err)

	w, err := p.OpenAppend(ctx)
	require.NoError(t, err)
	_, err = w.Write([]byte("two\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	text, err := p.ReadText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", text)
}

func TestIterdirGroupsFlatKeys(t *testing.T) {
	store := newMemBackend(t)
	ctx := context.Background()
	store.Write(ctx, "dir/", nil)
	store.Write(ctx, "dir/a.txt", []byte("a"))
	store.Write(ctx, "dir/sub/one.txt", []byte("1"))
	store.Write(ctx, "dir/sub/two.txt", []byte("2"))

	children, err := mustPath(t, "mem://space/dir/").Iterdir(ctx)
	require.NoError(t, err)

	var names []string
	for _, child := range children {
		require.NotEmpty(t, child.Name())
		names = append(names, child.Name())
	}
	assert.ElementsMatch(t, []string{"a.txt", "sub"}, names)
}

func TestMkdirAndRmdir(t *testing.T) {
	store := newMemBackend(t)
	ctx := context.Background()

	dir := mustPath(t, "mem://space/newdir")
	require.NoError(t, dir.Mkdir(ctx))
	assert.ErrorIs(t, dir.Mkdir(ctx), vpath.ErrExist)

	exists, err := store.Exists(ctx, "newdir/")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, dir.Rmdir(ctx))
	exists, err = store.Exists(ctx, "newdir/")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRmdirNotEmpty(t *testing.T) {
	store := newMemBackend(t)
	ctx := context.Background()
	store.Write(ctx, "full/", nil)
	store.Write(ctx, "full/file.txt", []byte("x"))

	assert.ErrorIs(t, mustPath(t, "mem://space/full").Rmdir(ctx), vpath.ErrNotEmpty)
	assert.ErrorIs(t, mustPath(t, "mem://space/ghost").Rmdir(ctx), vpath.ErrNotExist)
}

func TestUnlink(t *testing.T) {
	store := newMemBackend(t)
	ctx := context.Background()
	store.Write(ctx, "file.txt", []byte("x"))

	require.NoError(t, mustPath(t, "mem://space/file.txt").Unlink(ctx))
	exists, _ := store.Exists(ctx, "file.txt")
	assert.False(t, exists)

	assert.ErrorIs(t, mustPath(t, "mem://space/file.txt").Unlink(ctx), vpath.ErrNotExist)
	assert.ErrorIs(t, mustPath(t, "mem://space/dir/").Unlink(ctx), vpath.ErrUnsupported)
}

func TestRemoveAll(t *testing.T) {
	store := newMemBackend(t)
	ctx := context.Background()
	store.Write(ctx, "tree/", nil)
	store.Write(ctx, "tree/a.txt", []byte("a"))
	store.Write(ctx, "tree/sub/b.txt", []byte("b"))
	store.Write(ctx, "outside.txt", []byte("o"))

	require.NoError(t, mustPath(t, "mem://space/tree").RemoveAll(ctx))

	entries, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "outside.txt", entries[0].Key)
}

func TestRenameFile(t *testing.T) {
	store := newMemBackend(t)
	ctx := context.Background()
	store.Write(ctx, "old.txt", []byte("payload"))

	src := mustPath(t, "mem://space/old.txt")
	dest := mustPath(t, "mem://space/new.txt")
	require.NoError(t, src.Rename(ctx, dest))

	data, err := dest.ReadBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	exists, _ := store.Exists(ctx, "old.txt")
	assert.False(t, exists)
}

func TestRenameTargetExists(t *testing.T) {
	store := newMemBackend(t)
	ctx := context.Background()
	store.Write(ctx, "old.txt", []byte("old"))
	store.Write(ctx, "new.txt", []byte("existing"))

	src := mustPath(t, "mem://space/old.txt")
	dest := mustPath(t, "mem://space/new.txt")
	assert.ErrorIs(t, src.Rename(ctx, dest), vpath.ErrExist)

	require.NoError(t, src.Replace(ctx, dest))
	data, err := dest.ReadBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), data)
}

func TestRenameDirectoryRefused(t *testing.T) {
	store := newMemBackend(t)
	ctx := context.Background()
	store.Write(ctx, "dir/file.txt", []byte("x"))

	// Explicit handle: refused from the string alone
	err := mustPath(t, "mem://space/dir/").Rename(ctx, mustPath(t, "mem://space/other"))
	assert.ErrorIs(t, err, vpath.ErrUnsupported)

	// Virtual directory: refused after the existence check
	err = mustPath(t, "mem://space/dir").Rename(ctx, mustPath(t, "mem://space/other"))
	assert.ErrorIs(t, err, vpath.ErrUnsupported)

	exists, _ := store.Exists(ctx, "dir/file.txt")
	assert.True(t, exists)
}

func TestRenameAcrossSpacesRefused(t *testing.T) {
	newMemBackend(t)
	ctx := context.Background()

	src := mustPath(t, "mem://space/a.txt")
	dest := mustPath(t, "mem://otherspace/a.txt")
	assert.ErrorIs(t, src.Rename(ctx, dest), vpath.ErrUnsupported)
}

func TestStatVirtualDirectory(t *testing.T) {
	store := newMemBackend(t)
	ctx := context.Background()
	store.Write(ctx, "virtual/child.txt", []byte("y"))

	info, err := mustPath(t, "mem://space/virtual").Stat(ctx)
	require.NoError(t, err)
	assert.True(t, info.IsDir)
	assert.Equal(t, "virtual", info.Name)

	_, err = mustPath(t, "mem://space/missing").Stat(ctx)
	assert.ErrorIs(t, err, vpath.ErrNotExist)
}
