package coursesage

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeEmbedder is an in-process EmbeddingProvider returning a deterministic
// vector per text (length == input count) or a scripted error.
type fakeEmbedder struct {
	dim        int
	err        error
	failFirstN int // when err is set, fail only the first N calls then succeed
	calls      int
	lastInput  EmbeddingInputType
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string, inputType EmbeddingInputType) ([][]float32, error) {
	f.calls++
	f.lastInput = inputType
	if f.err != nil && (f.failFirstN <= 0 || f.calls <= f.failFirstN) {
		return nil, f.err
	}
	dim := f.dim
	if dim <= 0 {
		dim = 4
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(len(text)+j) / float32(dim+1)
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int {
	if f.dim <= 0 {
		return 4
	}
	return f.dim
}

// fakeVectorStore is an in-process VectorStore over a map, used by retriever
// and upserter tests.
type fakeVectorStore struct {
	mu          sync.Mutex
	points      map[string]Chunk
	searchErr   error
	upsertErr   error
	deleteErr   error
	searchStub  func(filter VectorFilter, numCandidates, limit int) []VectorMatch
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{points: map[string]Chunk{}}
}

func (f *fakeVectorStore) Upsert(_ context.Context, chunks []Chunk) (UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return UpsertResult{}, f.upsertErr
	}
	var res UpsertResult
	for _, c := range chunks {
		if _, exists := f.points[c.ID()]; exists {
			res.Duplicates++
		} else {
			res.Inserted++
		}
		f.points[c.ID()] = c
	}
	return res, nil
}

func (f *fakeVectorStore) Search(_ context.Context, _ []float32, filter VectorFilter, numCandidates, limit int) ([]VectorMatch, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.searchStub != nil {
		return f.searchStub(filter, numCandidates, limit), nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	slides := map[string]bool{}
	for _, s := range filter.SlideIDs {
		slides[s] = true
	}
	var matches []VectorMatch
	for _, c := range f.points {
		if c.CourseID != filter.CourseID {
			continue
		}
		if len(slides) > 0 && !slides[c.SlideID] {
			continue
		}
		matches = append(matches, VectorMatch{ID: c.ID(), Score: 1, Metadata: c})
	}
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (f *fakeVectorStore) Count(_ context.Context, courseID, slideID, s3FileName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.points {
		if c.CourseID == courseID && c.SlideID == slideID && c.S3FileName == s3FileName {
			n++
		}
	}
	return n, nil
}

func (f *fakeVectorStore) Delete(_ context.Context, courseID, slideID, s3FileName string) (int, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, c := range f.points {
		if c.CourseID == courseID && c.SlideID == slideID && c.S3FileName == s3FileName {
			delete(f.points, id)
			n++
		}
	}
	return n, nil
}

// fakePrimaryStore is an in-process PrimaryStore.
type fakePrimaryStore struct {
	mu      sync.Mutex
	threads map[string]ConversationThread
	getErr  error
	upsertErr error
}

func newFakePrimaryStore() *fakePrimaryStore {
	return &fakePrimaryStore{threads: map[string]ConversationThread{}}
}

func (f *fakePrimaryStore) Get(_ context.Context, threadID string) (ConversationThread, bool, error) {
	if f.getErr != nil {
		return ConversationThread{}, false, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[threadID]
	return t, ok, nil
}

func (f *fakePrimaryStore) Upsert(_ context.Context, thread ConversationThread) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads[thread.ThreadID] = thread
	return nil
}

func (f *fakePrimaryStore) Delete(_ context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.threads, threadID)
	return nil
}

// fakeCache is an in-process Cache.
type fakeCache struct {
	mu     sync.Mutex
	values map[string]string
	hashes map[string]map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]string{}, hashes: map[string]map[string]string{}}
}

func (f *fakeCache) GetString(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeCache) SetString(_ context.Context, key, value string, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *fakeCache) HashGetAll(_ context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeCache) HashSet(_ context.Context, key string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]string{}
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (f *fakeCache) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
		delete(f.hashes, k)
	}
	return nil
}

// fakeWebSearch is a scripted WebSearch collaborator.
type fakeWebSearch struct {
	results []WebResult
	err     error
	calls   int
}

func (f *fakeWebSearch) Search(_ context.Context, _ string, _ int) ([]WebResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// fakeLLM replays a scripted sequence of responses, one per Complete call.
type fakeLLM struct {
	responses []LLMResponse
	err       error
	calls     int
	seen      []LLMRequest
}

func (f *fakeLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	f.seen = append(f.seen, req)
	if f.err != nil {
		return LLMResponse{}, f.err
	}
	if f.calls >= len(f.responses) {
		return f.responses[len(f.responses)-1], nil
	}
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

// fakeChunker is a scripted Chunker.
type fakeChunker struct {
	chunks     []Chunk
	totalPages int
	err        error
}

func (f *fakeChunker) Chunk(_ []byte, courseID, slideID, s3FileName string, _ int) ([]Chunk, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	out := make([]Chunk, len(f.chunks))
	for i, c := range f.chunks {
		c.CourseID, c.SlideID, c.S3FileName = courseID, slideID, s3FileName
		out[i] = c
	}
	return out, f.totalPages, nil
}

// fakeObjectStorage is an in-process ObjectStorage.
type fakeObjectStorage struct {
	objects map[string][]byte
	err     error
}

func (f *fakeObjectStorage) Get(_ context.Context, bucket, key string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.objects[bucket+"/"+key], nil
}
