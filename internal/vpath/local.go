package vpath

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
)

// renameOverwrite controls whether Rename on the local backend replaces an
// existing target. Platform defaults differ, so this is an explicit
// configuration choice; Replace always overwrites regardless.
var renameOverwrite atomic.Bool

// SetLocalRenameOverwrite configures the local-backend rename policy.
func SetLocalRenameOverwrite(v bool) { renameOverwrite.Store(v) }

// localPath maps the Impl contract directly onto native filesystem calls.
// It is the reference implementation the remote backends are judged
// against for user-visible behavior.
type localPath struct {
	path string
}

func newLocalPath(raw string) localPath {
	cleaned := filepath.Clean(raw)
	if abs, err := filepath.Abs(cleaned); err == nil {
		cleaned = abs
	}
	return localPath{path: cleaned}
}

func (p localPath) String() string     { return p.path }
func (p localPath) Normalized() string { return p.path }
func (p localPath) Scheme() string     { return "file" }
func (p localPath) IsRemote() bool     { return false }

func (p localPath) Name() string {
	if p.isRoot() {
		return ""
	}
	return filepath.Base(p.path)
}

func (p localPath) isRoot() bool {
	return filepath.Dir(p.path) == p.path
}

func (p localPath) Parent() Impl {
	return localPath{path: filepath.Dir(p.path)}
}

func (p localPath) Parts() []string {
	if p.isRoot() {
		return []string{p.path}
	}
	sep := string(filepath.Separator)
	rel := strings.TrimPrefix(p.path, sep)
	parts := []string{sep}
	for _, seg := range strings.Split(rel, sep) {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return parts
}

func (p localPath) Join(segments ...string) (Impl, error) {
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("join with empty segment: %w", ErrInvalidPath)
		}
	}
	joined := filepath.Join(append([]string{p.path}, segments...)...)
	return localPath{path: joined}, nil
}

func (p localPath) WithName(name string) (Impl, error) {
	if name == "" || strings.ContainsRune(name, filepath.Separator) {
		return nil, fmt.Errorf("with_name %q: %w", name, ErrInvalidPath)
	}
	if p.isRoot() {
		return nil, fmt.Errorf("with_name on filesystem root: %w", ErrInvalidPath)
	}
	return localPath{path: filepath.Join(filepath.Dir(p.path), name)}, nil
}

func (p localPath) SupportsDirectoryRename() bool { return true }
func (p localPath) SupportsFileEditing() bool     { return true }

func (p localPath) Exists(ctx context.Context) (bool, error) {
	_, err := os.Stat(p.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (p localPath) IsDir(ctx context.Context) (bool, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (p localPath) IsFile(ctx context.Context) (bool, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (p localPath) Stat(ctx context.Context) (FileInfo, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Name:    p.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}, nil
}

func (p localPath) List(ctx context.Context) ([]Impl, error) {
	entries, err := os.ReadDir(p.path)
	if err != nil {
		return nil, err
	}
	children := make([]Impl, 0, len(entries))
	for _, entry := range entries {
		children = append(children, localPath{path: filepath.Join(p.path, entry.Name())})
	}
	return children, nil
}

func (p localPath) Mkdir(ctx context.Context) error {
	return os.Mkdir(p.path, 0o755)
}

func (p localPath) Rmdir(ctx context.Context) error {
	info, err := os.Stat(p.path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("rmdir %s: not a directory: %w", p.path, ErrUnsupported)
	}
	if err := os.Remove(p.path); err != nil {
		if errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST) {
			return fmt.Errorf("rmdir %s: %w", p.path, ErrNotEmpty)
		}
		return err
	}
	return nil
}

func (p localPath) Unlink(ctx context.Context) error {
	info, err := os.Stat(p.path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("unlink %s: is a directory: %w", p.path, ErrUnsupported)
	}
	return os.Remove(p.path)
}

func (p localPath) RemoveAll(ctx context.Context) error {
	return os.RemoveAll(p.path)
}

func (p localPath) Rename(ctx context.Context, target Impl, overwrite bool) error {
	dest, ok := target.(localPath)
	if !ok {
		return fmt.Errorf("rename to non-local path %s: %w", target, ErrUnsupported)
	}
	if !overwrite && !renameOverwrite.Load() {
		if _, err := os.Stat(dest.path); err == nil {
			return fmt.Errorf("rename %s to %s: %w", p.path, dest.path, ErrExist)
		}
	}
	return os.Rename(p.path, dest.path)
}

func (p localPath) OpenRead(ctx context.Context) (io.ReadCloser, error) {
	return os.Open(p.path)
}

func (p localPath) OpenWrite(ctx context.Context, appendMode bool) (io.WriteCloser, error) {
	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendMode {
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	return os.OpenFile(p.path, flag, 0o644)
}
