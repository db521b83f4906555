package repo

import (
	"context"
	"sync"

	"github.com/yanqian/ai-helloworld/internal/domain/coursesage"
)

// Memory is an in-process PrimaryStore used when no Postgres DSN is
// configured, so the service still boots in a degraded mode.
type Memory struct {
	mu      sync.RWMutex
	threads map[string]coursesage.ConversationThread
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{threads: map[string]coursesage.ConversationThread{}}
}

// Get implements coursesage.PrimaryStore.
func (m *Memory) Get(_ context.Context, threadID string) (coursesage.ConversationThread, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	thread, ok := m.threads[threadID]
	return thread, ok, nil
}

// Upsert implements coursesage.PrimaryStore.
func (m *Memory) Upsert(_ context.Context, thread coursesage.ConversationThread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[thread.ThreadID] = thread
	return nil
}

// Delete implements coursesage.PrimaryStore.
func (m *Memory) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, threadID)
	return nil
}
