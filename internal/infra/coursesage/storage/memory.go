package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/yanqian/ai-helloworld/internal/domain/coursesage"
)

// Memory is an in-process ObjectStorage used when no R2/S3 endpoint is
// configured, so the service still boots in a degraded mode.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{objects: map[string][]byte{}}
}

// Put seeds an object so that a later Get for the same bucket and key returns it.
func (m *Memory) Put(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = data
}

// Get implements coursesage.ObjectStorage.
func (m *Memory) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, coursesage.WrapInput(fmt.Sprintf("object %s/%s not found", bucket, key), nil)
	}
	return data, nil
}
