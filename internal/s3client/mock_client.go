package s3client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/smithy-go"
)

// MockClient is an in-memory implementation of Interface for unit tests.
// It counts every call per method so tests can assert that an operation
// issued no network traffic.
type MockClient struct {
	bucket  string
	mu      sync.RWMutex
	objects map[string]*mockObject
	calls   map[string]int
}

type mockObject struct {
	data         []byte
	lastModified time.Time
}

// NewMockClient creates a new in-memory mock bound to bucket.
func NewMockClient(bucket string) *MockClient {
	return &MockClient{
		bucket:  bucket,
		objects: make(map[string]*mockObject),
		calls:   make(map[string]int),
	}
}

// Seed stores an object directly, bypassing the call counters.
func (m *MockClient) Seed(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = &mockObject{data: append([]byte(nil), data...), lastModified: time.Now()}
}

// Keys returns all stored keys, sorted, bypassing the call counters.
func (m *MockClient) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// CallCount returns how many times the named method was invoked.
func (m *MockClient) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

// TotalCalls returns the number of invocations across all methods.
func (m *MockClient) TotalCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

func (m *MockClient) record(method string) {
	m.calls[method]++
}

// ListObjectsPage lists keys under prefix, emulating delimiter grouping
// and continuation-token pagination.
func (m *MockClient) ListObjectsPage(ctx context.Context, prefix, delimiter string, token *string, maxKeys int32) (*ListPage, error) {
	m.mu.Lock()
	m.record("ListObjectsPage")
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start := 0
	if token != nil {
		for i, key := range keys {
			if key > *token {
				start = i
				break
			}
			start = i + 1
		}
	}

	if maxKeys <= 0 {
		maxKeys = 1000
	}

	page := &ListPage{}
	count := int32(0)
	i := start
	for i < len(keys) {
		if count >= maxKeys {
			// Resume after the last key this page consumed. Grouped
			// keys were consumed whole, so the token never lands
			// inside a common-prefix group.
			page.NextToken = &keys[i-1]
			break
		}
		key := keys[i]
		if delimiter != "" {
			rest := key[len(prefix):]
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				cp := prefix + rest[:idx+len(delimiter)]
				page.Prefixes = append(page.Prefixes, cp)
				count++
				for i < len(keys) && strings.HasPrefix(keys[i], cp) {
					i++
				}
				continue
			}
		}
		obj := m.objects[key]
		page.Objects = append(page.Objects, ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			LastModified: obj.lastModified,
		})
		count++
		i++
	}
	return page, nil
}

// HeadObject returns metadata for a stored object.
func (m *MockClient) HeadObject(ctx context.Context, key string) (*ObjectInfo, error) {
	m.mu.Lock()
	m.record("HeadObject")
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, exists := m.objects[key]
	if !exists {
		return nil, &notFoundError{key: key}
	}
	return &ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		LastModified: obj.lastModified,
	}, nil
}

// HeadBucket always succeeds for the mock.
func (m *MockClient) HeadBucket(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("HeadBucket")
	return nil
}

// GetObjectStream returns a reader over a copy of the stored data.
func (m *MockClient) GetObjectStream(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	m.record("GetObjectStream")
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, exists := m.objects[key]
	if !exists {
		return nil, &notFoundError{key: key}
	}
	data := append([]byte(nil), obj.data...)
	return io.NopCloser(bytes.NewReader(data)), nil
}

// PutObjectStream stores the reader's content.
func (m *MockClient) PutObjectStream(ctx context.Context, key string, body io.Reader) error {
	m.mu.Lock()
	m.record("PutObjectStream")
	m.mu.Unlock()

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = &mockObject{data: data, lastModified: time.Now()}
	return nil
}

// CopyObject copies a stored object to a new key.
func (m *MockClient) CopyObject(ctx context.Context, sourceKey, destKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CopyObject")

	src, exists := m.objects[sourceKey]
	if !exists {
		return &notFoundError{key: sourceKey}
	}
	m.objects[destKey] = &mockObject{
		data:         append([]byte(nil), src.data...),
		lastModified: time.Now(),
	}
	return nil
}

// DeleteObject removes a stored object. Like S3, deleting a missing key
// is not an error.
func (m *MockClient) DeleteObject(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteObject")
	delete(m.objects, key)
	return nil
}

// DeleteObjects removes all given keys.
func (m *MockClient) DeleteObjects(ctx context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteObjects")
	for _, key := range keys {
		delete(m.objects, key)
	}
	return nil
}

// notFoundError mimics the service's non-existence response shape so the
// path layer's classification treats mock and real errors alike.
type notFoundError struct {
	key string
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("object not found: %s", e.key)
}

func (e *notFoundError) ErrorCode() string           { return "NoSuchKey" }
func (e *notFoundError) ErrorMessage() string        { return e.Error() }
func (e *notFoundError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }
