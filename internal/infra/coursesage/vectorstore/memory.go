package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/yanqian/ai-helloworld/internal/domain/coursesage"
)

// Memory is an in-process VectorStore used when no Qdrant endpoint is
// configured, so the service still boots in a degraded mode.
type Memory struct {
	mu     sync.RWMutex
	points map[string]coursesage.Chunk
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{points: map[string]coursesage.Chunk{}}
}

// Upsert implements coursesage.VectorStore.
func (m *Memory) Upsert(_ context.Context, chunks []coursesage.Chunk) (coursesage.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result coursesage.UpsertResult
	for _, c := range chunks {
		if _, exists := m.points[c.ID()]; exists {
			result.Duplicates++
		} else {
			result.Inserted++
		}
		m.points[c.ID()] = c
	}
	return result, nil
}

// Search implements coursesage.VectorStore with exact cosine similarity over
// the pre-filtered candidate set (no ANN approximation needed at this scale).
func (m *Memory) Search(_ context.Context, query []float32, filter coursesage.VectorFilter, numCandidates, limit int) ([]coursesage.VectorMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	slides := map[string]bool{}
	for _, s := range filter.SlideIDs {
		slides[s] = true
	}
	indices := map[int]bool{}
	for _, i := range filter.ChunkIndices {
		indices[i] = true
	}

	var matches []coursesage.VectorMatch
	for _, c := range m.points {
		if c.CourseID != filter.CourseID {
			continue
		}
		if len(slides) > 0 && !slides[c.SlideID] {
			continue
		}
		if len(indices) > 0 && !indices[c.ChunkIndex] {
			continue
		}
		matches = append(matches, coursesage.VectorMatch{ID: c.ID(), Score: cosine(query, c.Embedding), Metadata: c})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if numCandidates > 0 && len(matches) > numCandidates {
		matches = matches[:numCandidates]
	}
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Count implements coursesage.VectorStore.
func (m *Memory) Count(_ context.Context, courseID, slideID, s3FileName string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.points {
		if c.CourseID == courseID && c.SlideID == slideID && c.S3FileName == s3FileName {
			n++
		}
	}
	return n, nil
}

// Delete implements coursesage.VectorStore.
func (m *Memory) Delete(_ context.Context, courseID, slideID, s3FileName string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, c := range m.points {
		if c.CourseID == courseID && c.SlideID == slideID && c.S3FileName == s3FileName {
			delete(m.points, id)
			n++
		}
	}
	return n, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
