package coursesage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func seedChunk(course, slide string, idx int) Chunk {
	return Chunk{CourseID: course, SlideID: slide, ChunkIndex: idx, Text: "text", Embedding: []float32{0.1, 0.2}}
}

func TestRetrieverRequiresCourseID(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{}, newFakeVectorStore(), 0, testLogger())
	_, err := r.Retrieve(context.Background(), RetrieveRequest{QueryText: "q"})
	require.Error(t, err)
}

func TestRetrieverDefaultsNumCandidates(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{}, newFakeVectorStore(), 0, testLogger())
	require.Equal(t, defaultNumCandidates, r.numCandidates)

	r2 := NewRetriever(&fakeEmbedder{}, newFakeVectorStore(), 42, testLogger())
	require.Equal(t, 42, r2.numCandidates)
}

func TestRetrieverUsesQueryInputType(t *testing.T) {
	emb := &fakeEmbedder{}
	store := newFakeVectorStore()
	store.points["C1:S1:0"] = seedChunk("C1", "S1", 0)
	r := NewRetriever(emb, store, 0, testLogger())

	_, err := r.Retrieve(context.Background(), RetrieveRequest{CourseID: "C1", QueryText: "what is a monopoly?"})
	require.NoError(t, err)
	require.Equal(t, EmbedQuery, emb.lastInput)
}

func TestRetrieverPreFilterExactness(t *testing.T) {
	store := newFakeVectorStore()
	store.points["C1:S1:0"] = seedChunk("C1", "S1", 0)
	store.points["C1:S2:1"] = seedChunk("C1", "S2", 1)
	store.points["C2:S1:0"] = seedChunk("C2", "S1", 0)
	r := NewRetriever(&fakeEmbedder{}, store, 0, testLogger())

	matches, err := r.Retrieve(context.Background(), RetrieveRequest{CourseID: "C1", Slides: []string{"S1"}, QueryText: "q"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "C1:S1:0", matches[0].ID)
}

func TestRetrieverLimitsResultCardinality(t *testing.T) {
	store := newFakeVectorStore()
	for i := 0; i < 20; i++ {
		store.points[ChunkID("C1", "S1", i)] = seedChunk("C1", "S1", i)
	}
	r := NewRetriever(&fakeEmbedder{}, store, 0, testLogger())

	matches, err := r.Retrieve(context.Background(), RetrieveRequest{CourseID: "C1", QueryText: "q", Limit: 5})
	require.NoError(t, err)
	require.Len(t, matches, 5)
}

func TestRetrieverDefaultLimit(t *testing.T) {
	store := newFakeVectorStore()
	for i := 0; i < 20; i++ {
		store.points[ChunkID("C1", "S1", i)] = seedChunk("C1", "S1", i)
	}
	r := NewRetriever(&fakeEmbedder{}, store, 0, testLogger())

	matches, err := r.Retrieve(context.Background(), RetrieveRequest{CourseID: "C1", QueryText: "q"})
	require.NoError(t, err)
	require.Len(t, matches, 10)
}

func TestRetrieverPropagatesEmbeddingError(t *testing.T) {
	boom := WrapFatalExternal("bad key", nil)
	r := NewRetriever(&fakeEmbedder{err: boom}, newFakeVectorStore(), 0, testLogger())
	_, err := r.Retrieve(context.Background(), RetrieveRequest{CourseID: "C1", QueryText: "q"})
	require.Error(t, err)
}

func TestRetrieverPropagatesSearchError(t *testing.T) {
	store := newFakeVectorStore()
	store.searchErr = WrapTransient("store unavailable", nil)
	r := NewRetriever(&fakeEmbedder{}, store, 0, testLogger())
	_, err := r.Retrieve(context.Background(), RetrieveRequest{CourseID: "C1", QueryText: "q"})
	require.Error(t, err)
}
