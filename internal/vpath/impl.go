package vpath

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"
)

// FileInfo describes a file or directory as reported by a backend.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Impl is the contract every storage backend implementation satisfies.
// Navigation methods are pure string derivation and perform no I/O; all
// I/O-bearing methods take a context and translate backend-native failures
// into the package error taxonomy.
//
// Implementations must be safe for concurrent use: navigation shares no
// mutable state, and each I/O call is independent, carrying no hidden
// cursor or buffer between invocations.
type Impl interface {
	// String returns the canonical form of the path.
	String() string
	// Normalized returns the canonical form used for equality: backends
	// with a directory delimiter collapse any trailing delimiter.
	Normalized() string
	Scheme() string
	IsRemote() bool

	Name() string
	Parent() Impl
	Parts() []string
	Join(segments ...string) (Impl, error)
	WithName(name string) (Impl, error)

	// Capability flags are pure functions of the scheme, consulted by
	// callers before offering an operation and re-checked by the backend
	// before performing it.
	SupportsDirectoryRename() bool
	SupportsFileEditing() bool

	Exists(ctx context.Context) (bool, error)
	IsDir(ctx context.Context) (bool, error)
	IsFile(ctx context.Context) (bool, error)
	Stat(ctx context.Context) (FileInfo, error)
	List(ctx context.Context) ([]Impl, error)

	Mkdir(ctx context.Context) error
	Rmdir(ctx context.Context) error
	Unlink(ctx context.Context) error
	RemoveAll(ctx context.Context) error
	Rename(ctx context.Context, target Impl, overwrite bool) error

	OpenRead(ctx context.Context) (io.ReadCloser, error)
	OpenWrite(ctx context.Context, appendMode bool) (io.WriteCloser, error)
}

// ParseFunc builds an implementation from the raw string of a registered
// scheme. The raw string still carries its scheme prefix.
type ParseFunc func(raw string) (Impl, error)

var (
	schemeMu sync.RWMutex
	schemes  = make(map[string]ParseFunc)
)

// RegisterScheme installs a parser for a URI scheme, e.g. "s3". Remote
// backend packages call this once at setup; registering the same scheme
// twice replaces the previous parser.
func RegisterScheme(scheme string, parse ParseFunc) {
	schemeMu.Lock()
	defer schemeMu.Unlock()
	schemes[scheme] = parse
}

// lookupScheme returns the parser for raw's scheme prefix, if any.
// A raw string with no "://" separator, or with an unregistered scheme,
// resolves to the local backend.
func lookupScheme(raw string) (ParseFunc, bool) {
	idx := strings.Index(raw, "://")
	if idx <= 0 {
		return nil, false
	}
	schemeMu.RLock()
	defer schemeMu.RUnlock()
	parse, ok := schemes[raw[:idx]]
	return parse, ok
}
