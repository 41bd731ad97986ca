package vpath

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

// copyWorkers bounds the concurrent per-file transfers inside a recursive
// copy. The CopyTo call itself stays synchronous.
const copyWorkers = 4

// CopyTo copies the path to dest, across backends. A file is streamed
// without holding the whole content in memory; a directory is recreated
// recursively at dest with its relative subtree structure. The copy aborts
// on the first unrecoverable error, reporting the path it failed on;
// already-completed sub-copies are not rolled back.
func (p Path) CopyTo(ctx context.Context, dest Path) error {
	isDir, err := p.IsDir(ctx)
	if err != nil {
		return fmt.Errorf("copy %s: %w", p, err)
	}
	if !isDir {
		return copyFile(ctx, p, dest)
	}
	return copyTree(ctx, p, dest)
}

func copyFile(ctx context.Context, src, dest Path) error {
	r, err := src.OpenRead(ctx)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	defer r.Close()

	w, err := dest.OpenWrite(ctx)
	if err != nil {
		return fmt.Errorf("copy to %s: %w", dest, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("copy %s to %s: %w", src, dest, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dest, err)
	}
	return nil
}

func copyTree(ctx context.Context, src, dest Path) error {
	if err := dest.Mkdir(ctx); err != nil && !errors.Is(err, ErrExist) {
		return fmt.Errorf("copy to %s: %w", dest, err)
	}

	children, err := src.Iterdir(ctx)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}

	// Subdirectories recurse on the calling goroutine; the worker pool
	// only ever holds file transfers.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(copyWorkers)
	var subdirs [][2]Path
	for _, child := range children {
		child := child
		target, err := dest.Join(child.Name())
		if err != nil {
			return fmt.Errorf("copy %s: %w", child, err)
		}
		isDir, err := child.IsDir(ctx)
		if err != nil {
			return fmt.Errorf("copy %s: %w", child, err)
		}
		if isDir {
			subdirs = append(subdirs, [2]Path{child, target})
			continue
		}
		g.Go(func() error {
			return copyFile(gctx, child, target)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, pair := range subdirs {
		if err := copyTree(ctx, pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}
