package s3

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofm/gofm/internal/s3client"
	"github.com/gofm/gofm/internal/vpath"
)

// newMockBackend registers the s3 scheme over one shared in-memory
// client and returns it for seeding and call assertions.
func newMockBackend(t *testing.T) *s3client.MockClient {
	t.Helper()
	mock := s3client.NewMockClient("bkt")
	RegisterWithFactory(func(bucket string) s3client.Interface { return mock })
	return mock
}

func mustPath(t *testing.T, raw string) vpath.Path {
	t.Helper()
	p, err := vpath.New(raw)
	require.NoError(t, err)
	return p
}

func TestParseURI(t *testing.T) {
	newMockBackend(t)

	p := mustPath(t, "s3://bkt/dir/file.txt")
	assert.Equal(t, "s3", p.Scheme())
	assert.True(t, p.IsRemote())
	assert.Equal(t, "file.txt", p.Name())

	_, err := vpath.New("s3://")
	assert.ErrorIs(t, err, vpath.ErrInvalidPath)

	_, err = vpath.New("s3://bkt/a//b")
	assert.ErrorIs(t, err, vpath.ErrInvalidPath)
}

func TestParentKeepsDirectoryForm(t *testing.T) {
	newMockBackend(t)

	// Parent of a file handle is its containing directory handle
	p := mustPath(t, "s3://bkt/a/b/c.txt")
	assert.Equal(t, "s3://bkt/a/b/", p.Parent().String())

	// Parent of a directory handle moves up one level, not back to itself
	d := mustPath(t, "s3://bkt/a/b/")
	assert.Equal(t, "s3://bkt/a/", d.Parent().String())

	top := mustPath(t, "s3://bkt/a/")
	assert.Equal(t, "s3://bkt/", top.Parent().String())
}

func TestParentRootFixedPoint(t *testing.T) {
	newMockBackend(t)

	root := mustPath(t, "s3://bkt/")
	assert.True(t, root.Parent().Equal(root))

	// Walking up from any depth terminates at the bucket root
	p := mustPath(t, "s3://bkt/a/b/c/d")
	for i := 0; i < 10; i++ {
		next := p.Parent()
		if next.Equal(p) {
			assert.Equal(t, "bkt", p.Name())
			return
		}
		p = next
	}
	t.Fatal("walking up never reached the bucket root")
}

func TestEqualIgnoresTrailingDelimiter(t *testing.T) {
	newMockBackend(t)

	assert.True(t, mustPath(t, "s3://bkt/a/b").Equal(mustPath(t, "s3://bkt/a/b/")))
	assert.False(t, mustPath(t, "s3://bkt/a/b").Equal(mustPath(t, "s3://bkt/a")))
}

func TestPartsAndJoin(t *testing.T) {
	newMockBackend(t)

	p := mustPath(t, "s3://bkt/a/b/c.txt")
	assert.Equal(t, []string{"s3://", "bkt", "a", "b", "c.txt"}, p.Parts())

	dir := mustPath(t, "s3://bkt/a/")
	joined, err := dir.Join("b", "c.txt")
	require.NoError(t, err)
	assert.True(t, joined.Equal(p))

	_, err = dir.Join("")
	assert.ErrorIs(t, err, vpath.ErrInvalidPath)
}

func TestCapabilities(t *testing.T) {
	newMockBackend(t)

	p := mustPath(t, "s3://bkt/a")
	assert.False(t, p.SupportsDirectoryRename())
	assert.False(t, p.SupportsFileEditing())
}

func TestExistsFileMarkerAndVirtual(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()
	mock.Seed("plain.txt", []byte("x"))
	mock.Seed("marked/", nil)
	mock.Seed("virtual/child.txt", []byte("y"))

	for _, raw := range []string{
		"s3://bkt/plain.txt",
		"s3://bkt/marked",
		"s3://bkt/marked/",
		"s3://bkt/virtual",
		"s3://bkt/virtual/",
		"s3://bkt/",
	} {
		exists, err := mustPath(t, raw).Exists(ctx)
		require.NoError(t, err, raw)
		assert.True(t, exists, raw)
	}

	exists, err := mustPath(t, "s3://bkt/missing").Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIsDirIsFile(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()
	mock.Seed("file.txt", []byte("x"))
	mock.Seed("virtual/child.txt", []byte("y"))

	isFile, err := mustPath(t, "s3://bkt/file.txt").IsFile(ctx)
	require.NoError(t, err)
	assert.True(t, isFile)

	isDir, err := mustPath(t, "s3://bkt/file.txt").IsDir(ctx)
	require.NoError(t, err)
	assert.False(t, isDir)

	isDir, err = mustPath(t, "s3://bkt/virtual").IsDir(ctx)
	require.NoError(t, err)
	assert.True(t, isDir)

	// The trailing delimiter alone settles IsFile without any I/O
	before := mock.TotalCalls()
	isFile, err = mustPath(t, "s3://bkt/virtual/").IsFile(ctx)
	require.NoError(t, err)
	assert.False(t, isFile)
	assert.Equal(t, before, mock.TotalCalls())
}

func TestStat(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()
	mock.Seed("file.txt", []byte("hello"))
	mock.Seed("virtual/child.txt", []byte("y"))

	info, err := mustPath(t, "s3://bkt/file.txt").Stat(ctx)
	require.NoError(t, err)
	assert.Equal(t, "file.txt", info.Name)
	assert.Equal(t, int64(5), info.Size)
	assert.False(t, info.IsDir)
	assert.False(t, info.ModTime.IsZero())

	info, err = mustPath(t, "s3://bkt/virtual").Stat(ctx)
	require.NoError(t, err)
	assert.True(t, info.IsDir)
	assert.Equal(t, "virtual", info.Name)

	_, err = mustPath(t, "s3://bkt/missing").Stat(ctx)
	assert.ErrorIs(t, err, vpath.ErrNotExist)
}

func TestIterdirGroupsByNextSegment(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()
	mock.Seed("dir/", nil)
	mock.Seed("dir/a.txt", []byte("a"))
	mock.Seed("dir/sub/one.txt", []byte("1"))
	mock.Seed("dir/sub/two.txt", []byte("2"))
	mock.Seed("dir/other/deep/x.txt", []byte("x"))

	children, err := mustPath(t, "s3://bkt/dir/").Iterdir(ctx)
	require.NoError(t, err)

	var names []string
	for _, child := range children {
		require.NotEmpty(t, child.Name())
		names = append(names, child.Name())
	}
	// "sub" appears once despite two contained keys, and the listing
	// prefix itself ("dir/") produces no entry
	assert.ElementsMatch(t, []string{"a.txt", "sub", "other"}, names)
}

// duplicatePrefixClient replays a two-page listing that reports the same
// common prefix on both pages, as the service can when a group straddles
// a page boundary.
type duplicatePrefixClient struct {
	*s3client.MockClient
}

func (c *duplicatePrefixClient) ListObjectsPage(ctx context.Context, prefix, delimiter string, token *string, maxKeys int32) (*s3client.ListPage, error) {
	if token == nil {
		tok := "dir/sub/0999"
		return &s3client.ListPage{Prefixes: []string{"dir/sub/"}, NextToken: &tok}, nil
	}
	return &s3client.ListPage{
		Prefixes: []string{"dir/sub/"},
		Objects:  []s3client.ObjectInfo{{Key: "dir/tail.txt"}},
	}, nil
}

func TestIterdirDedupesPrefixesAcrossPages(t *testing.T) {
	client := &duplicatePrefixClient{s3client.NewMockClient("bkt")}
	RegisterWithFactory(func(bucket string) s3client.Interface { return client })

	children, err := mustPath(t, "s3://bkt/dir/").Iterdir(context.Background())
	require.NoError(t, err)

	var names []string
	for _, child := range children {
		names = append(names, child.Name())
	}
	assert.ElementsMatch(t, []string{"sub", "tail.txt"}, names)
}

func TestIterdirBucketRoot(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()
	mock.Seed("top.txt", []byte("t"))
	mock.Seed("nested/file.txt", []byte("n"))

	children, err := mustPath(t, "s3://bkt/").Iterdir(ctx)
	require.NoError(t, err)

	var names []string
	for _, child := range children {
		names = append(names, child.Name())
	}
	assert.ElementsMatch(t, []string{"top.txt", "nested"}, names)
}

func TestMkdir(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()

	dir := mustPath(t, "s3://bkt/newdir")
	require.NoError(t, dir.Mkdir(ctx))
	assert.Contains(t, mock.Keys(), "newdir/")

	assert.ErrorIs(t, dir.Mkdir(ctx), vpath.ErrExist)

	assert.ErrorIs(t, mustPath(t, "s3://bkt/").Mkdir(ctx), vpath.ErrUnsupported)
}

func TestRmdir(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()
	mock.Seed("empty/", nil)
	mock.Seed("full/", nil)
	mock.Seed("full/file.txt", []byte("x"))
	mock.Seed("virtual/child.txt", []byte("y"))

	require.NoError(t, mustPath(t, "s3://bkt/empty").Rmdir(ctx))
	assert.NotContains(t, mock.Keys(), "empty/")

	assert.ErrorIs(t, mustPath(t, "s3://bkt/full").Rmdir(ctx), vpath.ErrNotEmpty)

	// A virtual directory still lists its children as contents
	assert.ErrorIs(t, mustPath(t, "s3://bkt/virtual").Rmdir(ctx), vpath.ErrNotEmpty)

	// Nothing under the prefix at all
	assert.ErrorIs(t, mustPath(t, "s3://bkt/ghost").Rmdir(ctx), vpath.ErrNotExist)

	assert.ErrorIs(t, mustPath(t, "s3://bkt/").Rmdir(ctx), vpath.ErrUnsupported)
}

func TestUnlink(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()
	mock.Seed("file.txt", []byte("x"))

	require.NoError(t, mustPath(t, "s3://bkt/file.txt").Unlink(ctx))
	assert.Empty(t, mock.Keys())

	assert.ErrorIs(t, mustPath(t, "s3://bkt/file.txt").Unlink(ctx), vpath.ErrNotExist)
	assert.ErrorIs(t, mustPath(t, "s3://bkt/dir/").Unlink(ctx), vpath.ErrUnsupported)
}

func TestRemoveAll(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()
	mock.Seed("tree/", nil)
	mock.Seed("tree/a.txt", []byte("a"))
	mock.Seed("tree/sub/b.txt", []byte("b"))
	mock.Seed("tree/sub/deep/c.txt", []byte("c"))
	mock.Seed("outside.txt", []byte("o"))

	require.NoError(t, mustPath(t, "s3://bkt/tree").RemoveAll(ctx))
	assert.Equal(t, []string{"outside.txt"}, mock.Keys())
}

func TestRemoveAllOnFileHandle(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()
	mock.Seed("solo.txt", []byte("s"))

	require.NoError(t, mustPath(t, "s3://bkt/solo.txt").RemoveAll(ctx))
	assert.Empty(t, mock.Keys())
}

func TestRenameFile(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()
	mock.Seed("old.txt", []byte("payload"))

	src := mustPath(t, "s3://bkt/old.txt")
	dest := mustPath(t, "s3://bkt/new.txt")
	require.NoError(t, src.Rename(ctx, dest))

	assert.Equal(t, []string{"new.txt"}, mock.Keys())
	data, err := dest.ReadBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestRenameTargetExists(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()
	mock.Seed("old.txt", []byte("old"))
	mock.Seed("new.txt", []byte("existing"))

	src := mustPath(t, "s3://bkt/old.txt")
	dest := mustPath(t, "s3://bkt/new.txt")
	assert.ErrorIs(t, src.Rename(ctx, dest), vpath.ErrExist)

	// Replace overwrites unconditionally
	require.NoError(t, src.Replace(ctx, dest))
	data, err := dest.ReadBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), data)
}

func TestRenameExplicitDirectoryRefusedWithoutIO(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()
	mock.Seed("dir/", nil)
	mock.Seed("dir/file.txt", []byte("x"))

	src := mustPath(t, "s3://bkt/dir/")
	dest := mustPath(t, "s3://bkt/renamed")
	assert.ErrorIs(t, src.Rename(ctx, dest), vpath.ErrUnsupported)

	// The trailing delimiter settles the refusal from the string alone
	assert.Equal(t, 0, mock.TotalCalls())
}

func TestRenameVirtualDirectoryRefusedAfterProbe(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()
	mock.Seed("dir/file.txt", []byte("x"))

	src := mustPath(t, "s3://bkt/dir")
	dest := mustPath(t, "s3://bkt/renamed")
	assert.ErrorIs(t, src.Rename(ctx, dest), vpath.ErrUnsupported)

	// The probe may head and list, but nothing is copied or deleted
	assert.Equal(t, 0, mock.CallCount("CopyObject"))
	assert.Equal(t, 0, mock.CallCount("DeleteObject"))
	assert.Contains(t, mock.Keys(), "dir/file.txt")
}

func TestRenameMissingSource(t *testing.T) {
	newMockBackend(t)
	ctx := context.Background()

	src := mustPath(t, "s3://bkt/missing.txt")
	dest := mustPath(t, "s3://bkt/new.txt")
	assert.ErrorIs(t, src.Rename(ctx, dest), vpath.ErrNotExist)
}

func TestRenameCrossSchemeRefused(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()
	mock.Seed("file.txt", []byte("x"))

	src := mustPath(t, "s3://bkt/file.txt")
	dest := mustPath(t, "/tmp/file.txt")
	assert.ErrorIs(t, src.Rename(ctx, dest), vpath.ErrUnsupported)
	assert.Equal(t, 0, mock.TotalCalls())
}

func TestRenameToDirectoryTargetRefused(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()
	mock.Seed("file.txt", []byte("x"))

	src := mustPath(t, "s3://bkt/file.txt")
	dest := mustPath(t, "s3://bkt/dir/")
	assert.ErrorIs(t, src.Rename(ctx, dest), vpath.ErrUnsupported)
	assert.Equal(t, 0, mock.TotalCalls())
}

func TestWriteReadRoundTrip(t *testing.T) {
	newMockBackend(t)
	ctx := context.Background()

	p := mustPath(t, "s3://bkt/data/blob.bin")
	payload := bytes.Repeat([]byte("0123456789abcdef"), 512)

	n, err := p.WriteBytes(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	got, err := p.ReadBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWriteEmptyObject(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()

	p := mustPath(t, "s3://bkt/empty.txt")
	w, err := p.OpenWrite(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Contains(t, mock.Keys(), "empty.txt")
	got, err := p.ReadBytes(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppendRewritesWholeObject(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()
	mock.Seed("log.txt", []byte("one\n"))

	p := mustPath(t, "s3://bkt/log.txt")
	w, err := p.OpenAppend(ctx)
	require.NoError(t, err)
	_, err = w.Write([]byte("two\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	text, err := p.ReadText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", text)
}

func TestAppendToMissingObjectCreatesIt(t *testing.T) {
	newMockBackend(t)
	ctx := context.Background()

	p := mustPath(t, "s3://bkt/fresh.txt")
	w, err := p.OpenAppend(ctx)
	require.NoError(t, err)
	_, err = w.Write([]byte("first"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	text, err := p.ReadText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", text)
}

func TestOpenReadDirectoryRefused(t *testing.T) {
	newMockBackend(t)
	_, err := mustPath(t, "s3://bkt/dir/").OpenRead(context.Background())
	assert.ErrorIs(t, err, vpath.ErrUnsupported)
}

func TestCopyLocalTreeToBucket(t *testing.T) {
	mock := newMockBackend(t)
	ctx := context.Background()

	srcRoot := mustPath(t, t.TempDir())
	for _, f := range []struct{ dir, name, content string }{
		{"", "root.txt", "r"},
		{"docs", "a.md", "aa"},
		{"docs", "b.md", "bb"},
		{"media", "c.bin", "cc"},
	} {
		dir := srcRoot
		if f.dir != "" {
			sub, err := srcRoot.Join(f.dir)
			require.NoError(t, err)
			if exists, _ := sub.Exists(ctx); !exists {
				require.NoError(t, sub.Mkdir(ctx))
			}
			dir = sub
		}
		p, err := dir.Join(f.name)
		require.NoError(t, err)
		_, err = p.WriteText(ctx, f.content)
		require.NoError(t, err)
	}

	dest := mustPath(t, "s3://bkt/backup")
	require.NoError(t, srcRoot.CopyTo(ctx, dest))

	keys := mock.Keys()
	assert.Contains(t, keys, "backup/root.txt")
	assert.Contains(t, keys, "backup/docs/a.md")
	assert.Contains(t, keys, "backup/docs/b.md")
	assert.Contains(t, keys, "backup/media/c.bin")

	got, err := mustPath(t, "s3://bkt/backup/docs/b.md").ReadText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bb", got)
}
