// Package s3 implements the object-storage backend of the path layer.
// It synthesizes a hierarchical directory model over S3's flat key
// namespace: directories are explicit zero-byte marker keys ending in the
// delimiter, or virtual prefixes inferred from listing results.
package s3

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gofm/gofm/internal/credentials"
	"github.com/gofm/gofm/internal/s3client"
	"github.com/gofm/gofm/internal/vpath"
)

// Options configures the s3 scheme.
type Options struct {
	Region      string
	Endpoint    string
	Credentials *credentials.Credentials
}

// registry owns one lazily created client per bucket. Clients are
// logically read-only configuration after creation and are shared by all
// handles addressing that bucket.
type registry struct {
	mu      sync.Mutex
	factory func(bucket string) s3client.Interface
	clients map[string]s3client.Interface
}

func (r *registry) client(bucket string) s3client.Interface {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[bucket]; ok {
		return c
	}
	c := r.factory(bucket)
	r.clients[bucket] = c
	return c
}

// Register installs the "s3" scheme with clients built from opts.
func Register(opts Options) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	RegisterWithFactory(func(bucket string) s3client.Interface {
		return s3client.NewClientWithEndpoint(bucket, region, opts.Endpoint, opts.Credentials)
	})
}

// RegisterWithFactory installs the "s3" scheme with a custom per-bucket
// client factory. Tests use it to substitute the in-memory mock.
func RegisterWithFactory(factory func(bucket string) s3client.Interface) {
	reg := &registry{
		factory: factory,
		clients: make(map[string]s3client.Interface),
	}
	vpath.RegisterScheme("s3", func(raw string) (vpath.Impl, error) {
		p, err := parseURI(raw, reg)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// parseURI splits "s3://bucket/key" into its components. The bucket is
// required; the key may be empty or carry a trailing delimiter.
func parseURI(raw string, reg *registry) (s3Path, error) {
	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		return s3Path{}, fmt.Errorf("not an s3 URI %q: %w", raw, vpath.ErrInvalidPath)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return s3Path{}, fmt.Errorf("s3 URI %q missing bucket: %w", raw, vpath.ErrInvalidPath)
	}
	if strings.Contains(key, "//") {
		return s3Path{}, fmt.Errorf("s3 URI %q has empty key segment: %w", raw, vpath.ErrInvalidPath)
	}
	return s3Path{bucket: bucket, key: key, reg: reg}, nil
}
