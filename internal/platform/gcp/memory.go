package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// MemoryBucket is an in-process BucketService used in tests and in memory mode.
type MemoryBucket struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{objects: map[string][]byte{}}
}

func (m *MemoryBucket) Upload(ctx context.Context, key string, r io.Reader, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("memory bucket: read %s: %w", key, err)
	}
	m.mu.Lock()
	m.objects[key] = b
	m.mu.Unlock()
	return nil
}

func (m *MemoryBucket) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	b, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *MemoryBucket) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBucket) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []string{}
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryBucket) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	return deletePrefix(ctx, m, prefix)
}

func (m *MemoryBucket) PublicURL(key string) string {
	return "memory://" + strings.TrimLeft(key, "/")
}

// Len reports how many objects are stored.
func (m *MemoryBucket) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
