// Package kv adapts any kvstore.Store into a path backend. The store's
// flat key namespace gets the same synthetic hierarchy as object
// storage: directories are marker keys ending in the delimiter, or
// virtual prefixes inferred from listings.
package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"sync"

	"github.com/gofm/gofm/internal/kvstore"
	"github.com/gofm/gofm/internal/vpath"
)

const delimiter = "/"

// registry owns one lazily created store per space. A space is the
// bucket analog, e.g. the first URI component of "pg://space/key".
type registry struct {
	scheme  string
	mu      sync.Mutex
	factory func(space string) (kvstore.Store, error)
	stores  map[string]kvstore.Store
}

func (r *registry) store(space string) (kvstore.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[space]; ok {
		return s, nil
	}
	s, err := r.factory(space)
	if err != nil {
		return nil, fmt.Errorf("open %s store for space %q: %w", r.scheme, space, err)
	}
	r.stores[space] = s
	return s, nil
}

// Register installs a URI scheme backed by per-space stores from the
// factory. Stores are created on first use and shared by all handles
// addressing that space.
func Register(scheme string, factory func(space string) (kvstore.Store, error)) {
	reg := &registry{
		scheme:  scheme,
		factory: factory,
		stores:  make(map[string]kvstore.Store),
	}
	vpath.RegisterScheme(scheme, func(raw string) (vpath.Impl, error) {
		p, err := parseURI(raw, reg)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

func parseURI(raw string, reg *registry) (kvPath, error) {
	rest, ok := strings.CutPrefix(raw, reg.scheme+"://")
	if !ok {
		return kvPath{}, fmt.Errorf("not a %s URI %q: %w", reg.scheme, raw, vpath.ErrInvalidPath)
	}
	space, key, _ := strings.Cut(rest, "/")
	if space == "" {
		return kvPath{}, fmt.Errorf("%s URI %q missing space: %w", reg.scheme, raw, vpath.ErrInvalidPath)
	}
	if strings.Contains(key, "//") {
		return kvPath{}, fmt.Errorf("%s URI %q has empty key segment: %w", reg.scheme, raw, vpath.ErrInvalidPath)
	}
	return kvPath{space: space, key: key, reg: reg}, nil
}

// kvPath is one handle into a space. Handles are immutable; navigation
// returns new values.
type kvPath struct {
	space string
	key   string
	reg   *registry
}

func (p kvPath) String() string {
	return p.reg.scheme + "://" + p.space + "/" + p.key
}

func (p kvPath) Normalized() string {
	return p.reg.scheme + "://" + p.space + "/" + strings.TrimSuffix(p.key, delimiter)
}

func (p kvPath) Scheme() string { return p.reg.scheme }
func (p kvPath) IsRemote() bool { return true }

func (p kvPath) isRoot() bool { return p.key == "" }

func (p kvPath) isDirHandle() bool {
	return p.isRoot() || strings.HasSuffix(p.key, delimiter)
}

func (p kvPath) Name() string {
	if p.isRoot() {
		return p.space
	}
	trimmed := strings.TrimSuffix(p.key, delimiter)
	if i := strings.LastIndex(trimmed, delimiter); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// Parent strips any trailing delimiter before removing the last
// segment, so directory handles move up instead of standing still.
func (p kvPath) Parent() vpath.Impl {
	if p.isRoot() {
		return p
	}
	trimmed := strings.TrimSuffix(p.key, delimiter)
	i := strings.LastIndex(trimmed, delimiter)
	if i < 0 {
		return kvPath{space: p.space, key: "", reg: p.reg}
	}
	return kvPath{space: p.space, key: trimmed[:i+1], reg: p.reg}
}

func (p kvPath) Parts() []string {
	parts := []string{p.reg.scheme + "://", p.space}
	trimmed := strings.TrimSuffix(p.key, delimiter)
	if trimmed != "" {
		parts = append(parts, strings.Split(trimmed, delimiter)...)
	}
	return parts
}

func (p kvPath) Join(segments ...string) (vpath.Impl, error) {
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
	child, err := parseURI(p.reg.scheme+"://"+p.space+"/"+key, p.reg)
	if err != nil {
		return nil, err
	}
	return child, nil
}

func (p kvPath) WithName(name string) (vpath.Impl, error) {
	if name == "" || strings.Contains(name, delimiter) {
		return nil, fmt.Errorf("with_name %q: %w", name, vpath.ErrInvalidPath)
	}
	if p.isRoot() {
		sibling, err := parseURI(p.reg.scheme+"://"+name+"/", p.reg)
		if err != nil {
			return nil, err
		}
		return sibling, nil
	}
	parent := p.Parent().(kvPath)
	return parent.Join(name)
}

// The store holds opaque values under flat keys, so directory renames
// and in-place edits get the same answers as object storage.
func (p kvPath) SupportsDirectoryRename() bool { return false }
func (p kvPath) SupportsFileEditing() bool     { return false }

func (p kvPath) dirPrefix() string {
	if p.isRoot() {
		return ""
	}
	return strings.TrimSuffix(p.key, delimiter) + delimiter
}

func (p kvPath) hasChildrenOrMarker(ctx context.Context) (bool, error) {
	store, err := p.reg.store(p.space)
	if err != nil {
		return false, err
	}
	entries, err := store.List(ctx, p.dirPrefix())
	if err != nil {
		return false, p.wrapErr(err)
	}
	return len(entries) > 0, nil
}

func (p kvPath) Exists(ctx context.Context) (bool, error) {
	if p.isRoot() {
		return true, nil
	}
	if !p.isDirHandle() {
		store, err := p.reg.store(p.space)
		if err != nil {
			return false, err
		}
		ok, err := store.Exists(ctx, p.key)
		if err != nil {
			return false, p.wrapErr(err)
		}
		if ok {
			return true, nil
		}
	}
	return p.hasChildrenOrMarker(ctx)
}

func (p kvPath) IsDir(ctx context.Context) (bool, error) {
	if p.isRoot() {
		return true, nil
	}
	if p.isDirHandle() {
		store, err := p.reg.store(p.space)
		if err != nil {
			return false, err
		}
		ok, err := store.Exists(ctx, p.key)
		if err != nil {
			return false, p.wrapErr(err)
		}
		if ok {
			return true, nil
		}
	}
	return p.hasChildrenOrMarker(ctx)
}

func (p kvPath) IsFile(ctx context.Context) (bool, error) {
	if p.isDirHandle() {
		return false, nil
	}
	store, err := p.reg.store(p.space)
	if err != nil {
		return false, err
	}
	ok, err := store.Exists(ctx, p.key)
	if err != nil {
		return false, p.wrapErr(err)
	}
	return ok, nil
}

func (p kvPath) Stat(ctx context.Context) (vpath.FileInfo, error) {
	if p.isRoot() {
		return vpath.FileInfo{Name: p.space, IsDir: true}, nil
	}
	store, err := p.reg.store(p.space)
	if err != nil {
		return vpath.FileInfo{}, err
	}

	entry, err := store.Stat(ctx, p.key)
	if err == nil {
		return vpath.FileInfo{
			Name:    p.Name(),
			Size:    entry.Size,
			ModTime: entry.ModTime,
			IsDir:   p.isDirHandle(),
		}, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return vpath.FileInfo{}, p.wrapErr(err)
	}

	virtual, lerr := p.hasChildrenOrMarker(ctx)
	if lerr != nil {
		return vpath.FileInfo{}, lerr
	}
	if virtual {
		return vpath.FileInfo{Name: p.Name(), IsDir: true}, nil
	}
	return vpath.FileInfo{}, fmt.Errorf("stat %s: %w", p, vpath.ErrNotExist)
}

// List groups the flat prefix listing by next segment on the client
// side: keys one level down become file entries, deeper keys collapse
// into one directory entry per distinct sub-prefix.
func (p kvPath) List(ctx context.Context) ([]vpath.Impl, error) {
	store, err := p.reg.store(p.space)
	if err != nil {
		return nil, err
	}
	prefix := p.dirPrefix()
	entries, err := store.List(ctx, prefix)
	if err != nil {
		return nil, p.wrapErr(err)
	}

	var children []vpath.Impl
	seenDirs := make(map[string]bool)
	for _, entry := range entries {
		rel := strings.TrimPrefix(entry.Key, prefix)
		if rel == "" {
			continue
		}
		if i := strings.Index(rel, delimiter); i >= 0 {
			name := rel[:i]
			if name == "" || seenDirs[name] {
				continue
			}
			seenDirs[name] = true
			children = append(children, kvPath{space: p.space, key: prefix + name + delimiter, reg: p.reg})
			continue
		}
		children = append(children, kvPath{space: p.space, key: entry.Key, reg: p.reg})
	}
	return children, nil
}

func (p kvPath) Mkdir(ctx context.Context) error {
	if p.isRoot() {
		return fmt.Errorf("mkdir %s: cannot create a space: %w", p, vpath.ErrUnsupported)
	}
	exists, err := p.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("mkdir %s: %w", p, vpath.ErrExist)
	}
	store, err := p.reg.store(p.space)
	if err != nil {
		return err
	}
	if err := store.Write(ctx, p.dirPrefix(), nil); err != nil {
		return p.wrapErr(err)
	}
	return nil
}

func (p kvPath) Rmdir(ctx context.Context) error {
	if p.isRoot() {
		return fmt.Errorf("rmdir %s: cannot remove a space: %w", p, vpath.ErrUnsupported)
	}
	store, err := p.reg.store(p.space)
	if err != nil {
		return err
	}

	marker := p.dirPrefix()
	entries, err := store.List(ctx, marker)
	if err != nil {
		return p.wrapErr(err)
	}
	markerExists := false
	for _, entry := range entries {
		if entry.Key == marker {
			markerExists = true
			continue
		}
		return fmt.Errorf("rmdir %s: %w", p, vpath.ErrNotEmpty)
	}
	if !markerExists {
		return fmt.Errorf("rmdir %s: %w", p, vpath.ErrNotExist)
	}
	if err := store.Delete(ctx, marker); err != nil {
		return p.wrapErr(err)
	}
	return nil
}

func (p kvPath) Unlink(ctx context.Context) error {
	if p.isDirHandle() {
		return fmt.Errorf("unlink %s: is a directory: %w", p, vpath.ErrUnsupported)
	}
	store, err := p.reg.store(p.space)
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, p.key); err != nil {
		return p.wrapErr(err)
	}
	return nil
}

func (p kvPath) RemoveAll(ctx context.Context) error {
	if p.isRoot() {
		return fmt.Errorf("rmtree %s: cannot remove a space: %w", p, vpath.ErrUnsupported)
	}
	store, err := p.reg.store(p.space)
	if err != nil {
		return err
	}

	entries, err := store.List(ctx, p.dirPrefix())
	if err != nil {
		return p.wrapErr(err)
	}
	for _, entry := range entries {
		if err := store.Delete(ctx, entry.Key); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return p.wrapErr(err)
		}
	}

	// A same-named key without the trailing delimiter is removed too,
	// so RemoveAll on a file handle behaves like unlink.
	if !p.isDirHandle() {
		if err := store.Delete(ctx, p.key); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return p.wrapErr(err)
		}
	}
	return nil
}

// Rename moves a single key. Handles that resolve to a directory,
// explicit or virtual, are refused the same way as on object storage.
func (p kvPath) Rename(ctx context.Context, target vpath.Impl, overwrite bool) error {
	if p.isDirHandle() {
		return fmt.Errorf("rename %s: directory rename is not supported on key-value storage: %w",
			p, vpath.ErrUnsupported)
	}
	dest, ok := target.(kvPath)
	if !ok || dest.reg != p.reg {
		return fmt.Errorf("rename %s to foreign path: %w", p, vpath.ErrUnsupported)
	}
	if dest.space != p.space {
		return fmt.Errorf("rename %s across spaces: %w", p, vpath.ErrUnsupported)
	}
	if dest.isDirHandle() {
		return fmt.Errorf("rename %s to directory %s: %w", p, dest, vpath.ErrUnsupported)
	}
	store, err := p.reg.store(p.space)
	if err != nil {
		return err
	}

	srcExists, err := store.Exists(ctx, p.key)
	if err != nil {
		return p.wrapErr(err)
	}
	if !srcExists {
		virtual, lerr := p.hasChildrenOrMarker(ctx)
		if lerr != nil {
			return lerr
		}
		if virtual {
			return fmt.Errorf("rename %s: directory rename is not supported on key-value storage: %w",
				p, vpath.ErrUnsupported)
		}
		return fmt.Errorf("rename %s: %w", p, vpath.ErrNotExist)
	}

	if !overwrite {
		destExists, err := store.Exists(ctx, dest.key)
		if err != nil {
			return p.wrapErr(err)
		}
		if destExists {
			return fmt.Errorf("rename %s to %s: %w", p, dest, vpath.ErrExist)
		}
	}

	if err := store.Rename(ctx, p.key, dest.key); err != nil {
		return p.wrapErr(err)
	}
	return nil
}

func (p kvPath) OpenRead(ctx context.Context) (io.ReadCloser, error) {
	if p.isDirHandle() {
		return nil, fmt.Errorf("open %s: is a directory: %w", p, vpath.ErrUnsupported)
	}
	store, err := p.reg.store(p.space)
	if err != nil {
		return nil, err
	}
	data, err := store.Read(ctx, p.key)
	if err != nil {
		return nil, p.wrapErr(err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (p kvPath) OpenWrite(ctx context.Context, appendMode bool) (io.WriteCloser, error) {
	if p.isDirHandle() {
		return nil, fmt.Errorf("open %s: is a directory: %w", p, vpath.ErrUnsupported)
	}
	store, err := p.reg.store(p.space)
	if err != nil {
		return nil, err
	}
	w := &kvWriter{ctx: ctx, store: store, key: p.key, path: p}
	if appendMode {
		data, err := store.Read(ctx, p.key)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, p.wrapErr(err)
		}
		w.buf.Write(data)
	}
	return w, nil
}

func (p kvPath) wrapErr(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", p, vpath.ErrNotExist)
	}
	return fmt.Errorf("%s: %w", p, err)
}

// kvWriter buffers the whole value and stores it on Close. Stores hold
// opaque values, so there is no partial upload to stream into.
type kvWriter struct {
	ctx    context.Context
	store  kvstore.Store
	key    string
	path   kvPath
	buf    bytes.Buffer
	closed bool
}

func (w *kvWriter) Write(b []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write %s: writer already closed", w.path)
	}
	return w.buf.Write(b)
}

func (w *kvWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.store.Write(w.ctx, w.key, w.buf.Bytes()); err != nil {
		return w.path.wrapErr(err)
	}
	return nil
}
