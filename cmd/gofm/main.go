// Command gofm is a small file manager over the path abstraction. It
// addresses local files and registered remote backends through one URI
// syntax, e.g. "gofm ls s3://bucket/prefix/".
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/gofm/gofm/internal/config"
	"github.com/gofm/gofm/internal/credentials"
	"github.com/gofm/gofm/internal/kvstore"
	"github.com/gofm/gofm/internal/kvstore/mongodb"
	"github.com/gofm/gofm/internal/kvstore/postgres"
	"github.com/gofm/gofm/internal/vpath"
	"github.com/gofm/gofm/internal/vpath/kv"
	s3backend "github.com/gofm/gofm/internal/vpath/s3"
)

const usage = `Usage: gofm [-config FILE] COMMAND ARGS...

Commands:
  ls PATH          list directory entries
  stat PATH        print file or directory metadata
  cat PATH         print file content
  write PATH       store stdin as file content
  append PATH      append stdin to file content
  mkdir PATH       create a directory
  cp SRC DEST      copy a file or directory tree
  mv SRC DEST      rename within one backend
  rm PATH          remove a file
  rmdir PATH       remove an empty directory
  rmtree PATH      remove a directory and its contents
`

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	setupLogger(cfg.Logger)
	registerBackends(cfg)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(context.Background(), args[0], args[1:]); err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

func setupLogger(cfg config.LoggerConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// registerBackends installs the remote schemes the config enables. The
// local backend needs no registration.
func registerBackends(cfg *config.Config) {
	vpath.SetLocalRenameOverwrite(cfg.Local.RenameOverwrite)

	var creds *credentials.Credentials
	var err error
	if cfg.S3.PasswdFile != "" {
		creds, err = credentials.FromPasswdFile(cfg.S3.PasswdFile)
	} else {
		creds, err = credentials.FromEnvironment()
	}
	if err != nil {
		log.Fatalf("Failed to load credentials: %v", err)
	}
	s3backend.Register(s3backend.Options{
		Region:      cfg.S3.Region,
		Endpoint:    cfg.S3.Endpoint,
		Credentials: creds,
	})

	if cfg.Postgres.Enabled {
		kv.Register("pg", func(space string) (kvstore.Store, error) {
			return postgres.New(cfg.Postgres.ConnStr, cfg.Postgres.Table, space)
		})
	}
	if cfg.Mongo.Enabled {
		kv.Register("mongo", func(space string) (kvstore.Store, error) {
			return mongodb.New(cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection, space)
		})
	}
}

func run(ctx context.Context, command string, args []string) error {
	switch command {
	case "ls":
		return cmdLs(ctx, args)
	case "stat":
		return cmdStat(ctx, args)
	case "cat":
		return cmdCat(ctx, args)
	case "write":
		return cmdWrite(ctx, args, false)
	case "append":
		return cmdWrite(ctx, args, true)
	case "mkdir":
		return cmdMkdir(ctx, args)
	case "cp":
		return cmdCp(ctx, args)
	case "mv":
		return cmdMv(ctx, args)
	case "rm":
		return cmdRm(ctx, args)
	case "rmdir":
		return cmdRmdir(ctx, args)
	case "rmtree":
		return cmdRmtree(ctx, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func onePath(args []string) (vpath.Path, error) {
	if len(args) != 1 {
		return vpath.Path{}, errors.New("expected exactly one path argument")
	}
	return vpath.New(args[0])
}

func twoPaths(args []string) (vpath.Path, vpath.Path, error) {
	if len(args) != 2 {
		return vpath.Path{}, vpath.Path{}, errors.New("expected source and destination arguments")
	}
	src, err := vpath.New(args[0])
	if err != nil {
		return vpath.Path{}, vpath.Path{}, err
	}
	dest, err := vpath.New(args[1])
	if err != nil {
		return vpath.Path{}, vpath.Path{}, err
	}
	return src, dest, nil
}

func cmdLs(ctx context.Context, args []string) error {
	p, err := onePath(args)
	if err != nil {
		return err
	}
	children, err := p.Iterdir(ctx)
	if err != nil {
		return err
	}
	for _, child := range children {
		name := child.Name()
		isDir, err := child.IsDir(ctx)
		if err == nil && isDir {
			name += "/"
		}
		fmt.Println(name)
	}
	return nil
}

func cmdStat(ctx context.Context, args []string) error {
	p, err := onePath(args)
	if err != nil {
		return err
	}
	info, err := p.Stat(ctx)
	if err != nil {
		return err
	}
	kind := "file"
	if info.IsDir {
		kind = "dir"
	}
	fmt.Printf("%s\t%s\t%d\t%s\n", info.Name, kind, info.Size, info.ModTime.Format("2006-01-02 15:04:05"))
	return nil
}

func cmdCat(ctx context.Context, args []string) error {
	p, err := onePath(args)
	if err != nil {
		return err
	}
	r, err := p.OpenRead(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = io.Copy(os.Stdout, r)
	return err
}

func cmdWrite(ctx context.Context, args []string, appendMode bool) error {
	p, err := onePath(args)
	if err != nil {
		return err
	}
	var w io.WriteCloser
	if appendMode {
		w, err = p.OpenAppend(ctx)
	} else {
		w, err = p.OpenWrite(ctx)
	}
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, os.Stdin); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func cmdMkdir(ctx context.Context, args []string) error {
	p, err := onePath(args)
	if err != nil {
		return err
	}
	return p.Mkdir(ctx)
}

func cmdCp(ctx context.Context, args []string) error {
	src, dest, err := twoPaths(args)
	if err != nil {
		return err
	}
	return src.CopyTo(ctx, dest)
}

func cmdMv(ctx context.Context, args []string) error {
	src, dest, err := twoPaths(args)
	if err != nil {
		return err
	}
	err = src.Rename(ctx, dest)
	if errors.Is(err, vpath.ErrUnsupported) && !src.SupportsDirectoryRename() {
		return fmt.Errorf("%w (use cp then rmtree for directories on this backend)", err)
	}
	return err
}

func cmdRm(ctx context.Context, args []string) error {
	p, err := onePath(args)
	if err != nil {
		return err
	}
	return p.Unlink(ctx)
}

func cmdRmdir(ctx context.Context, args []string) error {
	p, err := onePath(args)
	if err != nil {
		return err
	}
	return p.Rmdir(ctx)
}

func cmdRmtree(ctx context.Context, args []string) error {
	p, err := onePath(args)
	if err != nil {
		return err
	}
	return p.RemoveAll(ctx)
}
