// Package vpath provides the path abstraction shared by every file
// operation in gofm. A Path is an immutable handle that parses its scheme
// once at construction, binds one backend implementation, and forwards all
// later operations to it. Local filesystem paths are the default; remote
// schemes (s3, key-value stores) are registered by their backend packages.
package vpath

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Path is the user-facing handle. The zero value is not usable; construct
// with New or by navigation from an existing handle. Handles are immutable
// and safe for concurrent use.
type Path struct {
	impl Impl
}

// New parses raw into a Path. An unknown or absent scheme resolves to the
// local backend with native path resolution. It fails with ErrInvalidPath
// only on structurally malformed URIs of a registered scheme.
func New(raw string) (Path, error) {
	if parse, ok := lookupScheme(raw); ok {
		impl, err := parse(raw)
		if err != nil {
			return Path{}, err
		}
		return Path{impl: impl}, nil
	}
	return Path{impl: newLocalPath(raw)}, nil
}

// MustNew is New for compile-time-constant paths; it panics on error.
func MustNew(raw string) Path {
	p, err := New(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// Wrap binds an already-constructed implementation. Backend packages use
// it to surface navigation results as handles.
func Wrap(impl Impl) Path { return Path{impl: impl} }

func (p Path) String() string { return p.impl.String() }

// Equal reports structural equality on the canonical form after
// backend-specific normalization (trailing-delimiter collapsing for
// object storage). Callers walking toward the root must use Equal against
// Parent to detect the fixed point.
func (p Path) Equal(other Path) bool {
	return p.impl.Normalized() == other.impl.Normalized()
}

// Scheme returns the backend scheme, e.g. "file" or "s3".
func (p Path) Scheme() string { return p.impl.Scheme() }

// IsRemote reports whether operations on this path go over the network.
func (p Path) IsRemote() bool { return p.impl.IsRemote() }

// Name returns the final component of the path.
func (p Path) Name() string { return p.impl.Name() }

// Stem returns the final component without its suffix.
func (p Path) Stem() string {
	name := p.Name()
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}

// Suffix returns the extension of the final component, including the dot,
// or "" when there is none.
func (p Path) Suffix() string {
	name := p.Name()
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[i:]
	}
	return ""
}

// Suffixes returns all extensions of the final component, e.g.
// [".tar", ".gz"] for "a.tar.gz".
func (p Path) Suffixes() []string {
	name := p.Name()
	parts := strings.Split(name, ".")
	if len(parts) < 2 || parts[0] == "" {
		return nil
	}
	out := make([]string, 0, len(parts)-1)
	for _, s := range parts[1:] {
		out = append(out, "."+s)
	}
	return out
}

// Parent returns the logical parent. The topmost addressable unit (the
// filesystem root, or a container with no key) is its own parent.
func (p Path) Parent() Path { return Path{impl: p.impl.Parent()} }

// Parts returns the path's components, anchor first.
func (p Path) Parts() []string { return p.impl.Parts() }

// Join appends segments to the path. No I/O; the result is re-validated.
func (p Path) Join(segments ...string) (Path, error) {
	impl, err := p.impl.Join(segments...)
	if err != nil {
		return Path{}, err
	}
	return Path{impl: impl}, nil
}

// WithName returns a sibling path with the final component replaced.
func (p Path) WithName(name string) (Path, error) {
	impl, err := p.impl.WithName(name)
	if err != nil {
		return Path{}, err
	}
	return Path{impl: impl}, nil
}

// WithStem returns a sibling path with the stem replaced, keeping the suffix.
func (p Path) WithStem(stem string) (Path, error) {
	return p.WithName(stem + p.Suffix())
}

// WithSuffix returns a sibling path with the suffix replaced.
func (p Path) WithSuffix(suffix string) (Path, error) {
	return p.WithName(p.Stem() + suffix)
}

// SupportsDirectoryRename reports whether this backend can rename
// directories. False for object storage, where a correct directory rename
// is an unbounded copy-then-delete this layer refuses to perform.
func (p Path) SupportsDirectoryRename() bool { return p.impl.SupportsDirectoryRename() }

// SupportsFileEditing reports whether the backend supports in-place,
// partial mutation of file content. False does not block whole-object
// writes, which remain fully supported.
func (p Path) SupportsFileEditing() bool { return p.impl.SupportsFileEditing() }

func (p Path) Exists(ctx context.Context) (bool, error) { return p.impl.Exists(ctx) }
func (p Path) IsDir(ctx context.Context) (bool, error)  { return p.impl.IsDir(ctx) }
func (p Path) IsFile(ctx context.Context) (bool, error) { return p.impl.IsFile(ctx) }

// Stat returns size and modification time for the path.
func (p Path) Stat(ctx context.Context) (FileInfo, error) { return p.impl.Stat(ctx) }

// Iterdir lists the direct children. Every call re-lists the backend; the
// result is never cached. Every returned entry has a non-empty Name.
func (p Path) Iterdir(ctx context.Context) ([]Path, error) {
	impls, err := p.impl.List(ctx)
	if err != nil {
		return nil, err
	}
	children := make([]Path, 0, len(impls))
	for _, impl := range impls {
		children = append(children, Path{impl: impl})
	}
	return children, nil
}

func (p Path) Mkdir(ctx context.Context) error  { return p.impl.Mkdir(ctx) }
func (p Path) Rmdir(ctx context.Context) error  { return p.impl.Rmdir(ctx) }
func (p Path) Unlink(ctx context.Context) error { return p.impl.Unlink(ctx) }

// RemoveAll removes the path and everything below it. Already-completed
// deletions are not rolled back when a later one fails.
func (p Path) RemoveAll(ctx context.Context) error { return p.impl.RemoveAll(ctx) }

// Rename moves the path to target within the same scheme. It fails with
// ErrExist when target exists, unless the backend is configured to
// overwrite. Use Replace for unconditional overwrite.
func (p Path) Rename(ctx context.Context, target Path) error {
	if err := p.checkSameScheme(target); err != nil {
		return err
	}
	return p.impl.Rename(ctx, target.impl, false)
}

// Replace moves the path to target, overwriting an existing entry.
func (p Path) Replace(ctx context.Context, target Path) error {
	if err := p.checkSameScheme(target); err != nil {
		return err
	}
	return p.impl.Rename(ctx, target.impl, true)
}

func (p Path) checkSameScheme(target Path) error {
	if p.impl.Scheme() != target.impl.Scheme() {
		return fmt.Errorf("rename from %s to %s scheme: %w",
			p.impl.Scheme(), target.impl.Scheme(), ErrUnsupported)
	}
	return nil
}

// OpenRead opens the file for streaming reads.
func (p Path) OpenRead(ctx context.Context) (io.ReadCloser, error) {
	return p.impl.OpenRead(ctx)
}

// OpenWrite opens the file for writing, truncating any existing content.
// The content becomes visible when the returned writer is closed.
func (p Path) OpenWrite(ctx context.Context) (io.WriteCloser, error) {
	return p.impl.OpenWrite(ctx, false)
}

// OpenAppend opens the file for appending. On backends without in-place
// editing this rewrites the whole object on close.
func (p Path) OpenAppend(ctx context.Context) (io.WriteCloser, error) {
	return p.impl.OpenWrite(ctx, true)
}

// ReadBytes reads the whole file.
func (p Path) ReadBytes(ctx context.Context) ([]byte, error) {
	r, err := p.impl.OpenRead(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ReadText reads the whole file as UTF-8 text.
func (p Path) ReadText(ctx context.Context) (string, error) {
	data, err := p.ReadBytes(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteBytes replaces the file content and returns the number of bytes
// written.
func (p Path) WriteBytes(ctx context.Context, data []byte) (int, error) {
	w, err := p.impl.OpenWrite(ctx, false)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	if err != nil {
		w.Close()
		return n, err
	}
	if err := w.Close(); err != nil {
		return n, err
	}
	return n, nil
}

// WriteText replaces the file content with UTF-8 text.
func (p Path) WriteText(ctx context.Context, data string) (int, error) {
	return p.WriteBytes(ctx, []byte(data))
}
