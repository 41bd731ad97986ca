package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gofm/gofm/internal/s3client"
	"github.com/gofm/gofm/internal/vpath"
)

// delimiter segments object keys into the synthetic hierarchy.
const delimiter = "/"

// s3Path is one handle into a bucket. The key may be empty (the bucket
// root), end with the delimiter (an explicit directory handle), or name
// an object. Handles are immutable; navigation returns new values.
type s3Path struct {
	bucket string
	key    string
	reg    *registry
}

func (p s3Path) client() s3client.Interface {
	return p.reg.client(p.bucket)
}

func (p s3Path) String() string {
	return "s3://" + p.bucket + "/" + p.key
}

// Normalized collapses the trailing delimiter so "s3://b/a/" and
// "s3://b/a" compare equal.
func (p s3Path) Normalized() string {
	return "s3://" + p.bucket + "/" + strings.TrimSuffix(p.key, delimiter)
}

func (p s3Path) Scheme() string { return "s3" }
func (p s3Path) IsRemote() bool { return true }

// isRoot reports whether the handle addresses the bucket itself, the
// fixed point that terminates upward traversal.
func (p s3Path) isRoot() bool { return p.key == "" }

// isDirHandle reports whether the string form already marks a directory.
func (p s3Path) isDirHandle() bool {
	return p.isRoot() || strings.HasSuffix(p.key, delimiter)
}

func (p s3Path) Name() string {
	if p.isRoot() {
		return p.bucket
	}
	trimmed := strings.TrimSuffix(p.key, delimiter)
	if i := strings.LastIndex(trimmed, delimiter); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// Parent strips any trailing delimiter first, then removes the last
// segment. Doing it in the other order would hand back the same key and
// turn "go up" into an infinite loop.
func (p s3Path) Parent() vpath.Impl {
	if p.isRoot() {
		return p
	}
	trimmed := strings.TrimSuffix(p.key, delimiter)
	i := strings.LastIndex(trimmed, delimiter)
	if i < 0 {
		return s3Path{bucket: p.bucket, key: "", reg: p.reg}
	}
	return s3Path{bucket: p.bucket, key: trimmed[:i+1], reg: p.reg}
}

func (p s3Path) Parts() []string {
	parts := []string{"s3://", p.bucket}
	trimmed := strings.TrimSuffix(p.key, delimiter)
	if trimmed != "" {
		parts = append(parts, strings.Split(trimmed, delimiter)...)
	}
	return parts
}

func (p s3Path) Join(segments ...string) (vpath.Impl, error) {
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("join with empty segment: %w", vpath.ErrInvalidPath)
		}
	}
	base := strings.TrimSuffix(p.key, delimiter)
	joined := strings.Join(segments, delimiter)
	key := joined
	if base != "" {
		key = base + delimiter + joined
	}
	child, err := parseURI("s3://"+p.bucket+"/"+key, p.reg)
	if err != nil {
		return nil, err
	}
	return child, nil
}

func (p s3Path) WithName(name string) (vpath.Impl, error) {
	if name == "" || strings.Contains(name, delimiter) {
		return nil, fmt.Errorf("with_name %q: %w", name, vpath.ErrInvalidPath)
	}
	if p.isRoot() {
		sibling, err := parseURI("s3://"+name+"/", p.reg)
		if err != nil {
			return nil, err
		}
		return sibling, nil
	}
	parent := p.Parent().(s3Path)
	return parent.Join(name)
}

// Capability flags are pure functions of the scheme. A correct directory
// rename here would be an unbounded copy-then-delete over every contained
// key, which this backend refuses to perform implicitly; and objects only
// support whole-body replacement, never partial in-place mutation.
func (p s3Path) SupportsDirectoryRename() bool { return false }
func (p s3Path) SupportsFileEditing() bool     { return false }

// dirPrefix is the listing prefix that covers this handle's children.
func (p s3Path) dirPrefix() string {
	if p.isRoot() {
		return ""
	}
	return strings.TrimSuffix(p.key, delimiter) + delimiter
}

func (p s3Path) Exists(ctx context.Context) (bool, error) {
	if p.isRoot() {
		if err := p.client().HeadBucket(ctx); err != nil {
			if s3client.IsNotFound(err) {
				return false, nil
			}
			return false, p.wrapErr(err)
		}
		return true, nil
	}

	if !p.isDirHandle() {
		if _, err := p.client().HeadObject(ctx, p.key); err == nil {
			return true, nil
		} else if !s3client.IsNotFound(err) {
			return false, p.wrapErr(err)
		}
	}
	return p.hasChildrenOrMarker(ctx)
}

// hasChildrenOrMarker reports whether the directory form of this handle
// exists, either as an explicit marker key or as a virtual prefix.
func (p s3Path) hasChildrenOrMarker(ctx context.Context) (bool, error) {
	page, err := p.client().ListObjectsPage(ctx, p.dirPrefix(), "", nil, 1)
	if err != nil {
		return false, p.wrapErr(err)
	}
	return len(page.Objects) > 0, nil
}

func (p s3Path) IsDir(ctx context.Context) (bool, error) {
	if p.isRoot() {
		return true, nil
	}
	if p.isDirHandle() {
		if _, err := p.client().HeadObject(ctx, p.key); err == nil {
			return true, nil
		} else if !s3client.IsNotFound(err) {
			return false, p.wrapErr(err)
		}
	}
	return p.hasChildrenOrMarker(ctx)
}

func (p s3Path) IsFile(ctx context.Context) (bool, error) {
	if p.isDirHandle() {
		return false, nil
	}
	if _, err := p.client().HeadObject(ctx, p.key); err != nil {
		if s3client.IsNotFound(err) {
			return false, nil
		}
		return false, p.wrapErr(err)
	}
	return true, nil
}

func (p s3Path) Stat(ctx context.Context) (vpath.FileInfo, error) {
	if p.isRoot() {
		return vpath.FileInfo{Name: p.bucket, IsDir: true}, nil
	}

	info, err := p.client().HeadObject(ctx, p.key)
	if err == nil {
		return vpath.FileInfo{
			Name:    p.Name(),
			Size:    info.Size,
			ModTime: info.LastModified,
			IsDir:   p.isDirHandle(),
		}, nil
	}
	if !s3client.IsNotFound(err) {
		return vpath.FileInfo{}, p.wrapErr(err)
	}

	// No exact object: the handle may still be a virtual directory.
	virtual, lerr := p.hasChildrenOrMarker(ctx)
	if lerr != nil {
		return vpath.FileInfo{}, lerr
	}
	if virtual {
		return vpath.FileInfo{Name: p.Name(), IsDir: true}, nil
	}
	return vpath.FileInfo{}, fmt.Errorf("stat %s: %w", p, vpath.ErrNotExist)
}

// List pages through the prefix with the delimiter, yielding one entry
// per distinct next segment. Multiple keys under the same sub-prefix
// collapse into a single directory entry, and any synthesized entry whose
// name would be empty (the prefix reappearing in its own listing) is
// discarded.
func (p s3Path) List(ctx context.Context) ([]vpath.Impl, error) {
	prefix := p.dirPrefix()
	var children []vpath.Impl
	var token *string
	// A common prefix can straddle a page boundary and be reported on
	// both pages; track them across the whole listing.
	seen := make(map[string]bool)
	for {
		page, err := p.client().ListObjectsPage(ctx, prefix, delimiter, token, 0)
		if err != nil {
			return nil, p.wrapErr(err)
		}
		for _, cp := range page.Prefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(cp, prefix), delimiter)
			if name == "" || seen[cp] {
				continue
			}
			seen[cp] = true
			children = append(children, s3Path{bucket: p.bucket, key: cp, reg: p.reg})
		}
		for _, obj := range page.Objects {
			name := strings.TrimPrefix(obj.Key, prefix)
			if name == "" || strings.Contains(name, delimiter) {
				continue
			}
			children = append(children, s3Path{bucket: p.bucket, key: obj.Key, reg: p.reg})
		}
		if page.NextToken == nil {
			return children, nil
		}
		token = page.NextToken
	}
}

func (p s3Path) Mkdir(ctx context.Context) error {
	if p.isRoot() {
		return fmt.Errorf("mkdir %s: cannot create a bucket: %w", p, vpath.ErrUnsupported)
	}
	exists, err := p.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("mkdir %s: %w", p, vpath.ErrExist)
	}
	marker := p.dirPrefix()
	if err := p.client().PutObjectStream(ctx, marker, strings.NewReader("")); err != nil {
		return p.wrapErr(err)
	}
	return nil
}

// Rmdir removes an empty directory. The backend has no native notion of
// directory emptiness, so emptiness is a listing that contains nothing
// but the marker key.
func (p s3Path) Rmdir(ctx context.Context) error {
	if p.isRoot() {
		return fmt.Errorf("rmdir %s: cannot remove a bucket: %w", p, vpath.ErrUnsupported)
	}

	marker := p.dirPrefix()
	page, err := p.client().ListObjectsPage(ctx, marker, "", nil, 2)
	if err != nil {
		return p.wrapErr(err)
	}
	markerExists := false
	for _, obj := range page.Objects {
		if obj.Key == marker {
			markerExists = true
			continue
		}
		return fmt.Errorf("rmdir %s: %w", p, vpath.ErrNotEmpty)
	}
	if !markerExists {
		return fmt.Errorf("rmdir %s: %w", p, vpath.ErrNotExist)
	}
	if err := p.client().DeleteObject(ctx, marker); err != nil {
		return p.wrapErr(err)
	}
	return nil
}

func (p s3Path) Unlink(ctx context.Context) error {
	if p.isDirHandle() {
		return fmt.Errorf("unlink %s: is a directory: %w", p, vpath.ErrUnsupported)
	}
	if _, err := p.client().HeadObject(ctx, p.key); err != nil {
		return p.wrapErr(err)
	}
	if err := p.client().DeleteObject(ctx, p.key); err != nil {
		return p.wrapErr(err)
	}
	return nil
}

// RemoveAll deletes everything under the prefix: paginate, batch-delete,
// re-list until the listing is exhausted, then drop the marker and the
// exact key, and verify nothing remains.
func (p s3Path) RemoveAll(ctx context.Context) error {
	if p.isRoot() {
		return fmt.Errorf("rmtree %s: cannot remove a bucket: %w", p, vpath.ErrUnsupported)
	}

	prefix := p.dirPrefix()
	for {
		page, err := p.client().ListObjectsPage(ctx, prefix, "", nil, 1000)
		if err != nil {
			return p.wrapErr(err)
		}
		if len(page.Objects) == 0 {
			break
		}
		keys := make([]string, 0, len(page.Objects))
		for _, obj := range page.Objects {
			keys = append(keys, obj.Key)
		}
		if err := p.client().DeleteObjects(ctx, keys); err != nil {
			return p.wrapErr(err)
		}
	}

	// A same-named object without the trailing delimiter is removed too,
	// so RemoveAll on a file handle behaves like unlink.
	if !p.isDirHandle() {
		if err := p.client().DeleteObject(ctx, p.key); err != nil {
			return p.wrapErr(err)
		}
	}

	page, err := p.client().ListObjectsPage(ctx, prefix, "", nil, 1)
	if err != nil {
		return p.wrapErr(err)
	}
	if len(page.Objects) > 0 {
		return fmt.Errorf("rmtree %s: keys remain after delete", p)
	}
	return nil
}

// Rename moves a single object via copy-then-delete. A handle that
// resolves to a directory, explicit or virtual, is refused before any
// copy or delete goes out: the explicit form fails on the string alone,
// the virtual form after the single existence probe.
func (p s3Path) Rename(ctx context.Context, target vpath.Impl, overwrite bool) error {
	if p.isDirHandle() {
		return fmt.Errorf("rename %s: directory rename is not supported on object storage: %w",
			p, vpath.ErrUnsupported)
	}
	dest, ok := target.(s3Path)
	if !ok {
		return fmt.Errorf("rename %s to non-s3 path: %w", p, vpath.ErrUnsupported)
	}
	if dest.bucket != p.bucket {
		return fmt.Errorf("rename %s across buckets: %w", p, vpath.ErrUnsupported)
	}
	if dest.isDirHandle() {
		return fmt.Errorf("rename %s to directory %s: %w", p, dest, vpath.ErrUnsupported)
	}

	if _, err := p.client().HeadObject(ctx, p.key); err != nil {
		if !s3client.IsNotFound(err) {
			return p.wrapErr(err)
		}
		virtual, lerr := p.hasChildrenOrMarker(ctx)
		if lerr != nil {
			return lerr
		}
		if virtual {
			return fmt.Errorf("rename %s: directory rename is not supported on object storage: %w",
				p, vpath.ErrUnsupported)
		}
		return fmt.Errorf("rename %s: %w", p, vpath.ErrNotExist)
	}

	if !overwrite {
		if _, err := p.client().HeadObject(ctx, dest.key); err == nil {
			return fmt.Errorf("rename %s to %s: %w", p, dest, vpath.ErrExist)
		} else if !s3client.IsNotFound(err) {
			return p.wrapErr(err)
		}
	}

	if err := p.client().CopyObject(ctx, p.key, dest.key); err != nil {
		return p.wrapErr(err)
	}
	if err := p.client().DeleteObject(ctx, p.key); err != nil {
		return p.wrapErr(err)
	}
	return nil
}

func (p s3Path) OpenRead(ctx context.Context) (io.ReadCloser, error) {
	if p.isDirHandle() {
		return nil, fmt.Errorf("open %s: is a directory: %w", p, vpath.ErrUnsupported)
	}
	r, err := p.client().GetObjectStream(ctx, p.key)
	if err != nil {
		return nil, p.wrapErr(err)
	}
	return r, nil
}

func (p s3Path) OpenWrite(ctx context.Context, appendMode bool) (io.WriteCloser, error) {
	if p.isDirHandle() {
		return nil, fmt.Errorf("open %s: is a directory: %w", p, vpath.ErrUnsupported)
	}
	if appendMode {
		return newAppendWriter(ctx, p)
	}
	return newStreamWriter(ctx, p), nil
}

// wrapErr translates client errors into the shared taxonomy. Anything
// that is neither a non-existence nor a permission response surfaces as
// the transport failure it is, already past the bounded retries.
func (p s3Path) wrapErr(err error) error {
	switch {
	case s3client.IsNotFound(err):
		return fmt.Errorf("%s: %w", p, vpath.ErrNotExist)
	case s3client.IsAccessDenied(err):
		return fmt.Errorf("%s: %w", p, vpath.ErrPermission)
	default:
		return fmt.Errorf("%s: %w", p, err)
	}
}
