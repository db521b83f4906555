package coursesage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func makeChunks(n int, course, slide string) []Chunk {
	out := make([]Chunk, n)
	for i := range out {
		out[i] = Chunk{CourseID: course, SlideID: slide, ChunkIndex: i, Text: "chunk text"}
	}
	return out
}

func TestEmbedAndSaveEmptyInput(t *testing.T) {
	u := NewUpserter(&fakeEmbedder{}, newFakeVectorStore(), testLogger())
	summary, err := u.EmbedAndSave(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, UpsertSummary{}, summary)
}

func TestEmbedAndSaveHappyPath(t *testing.T) {
	chunks := makeChunks(150, "C1", "S1")
	store := newFakeVectorStore()
	u := NewUpserter(&fakeEmbedder{}, store, testLogger())

	summary, err := u.EmbedAndSave(context.Background(), chunks)
	require.NoError(t, err)
	require.Equal(t, 150, summary.Embedded)
	require.Equal(t, 150, summary.Inserted)
	require.Equal(t, 0, summary.Duplicates)
	require.Empty(t, summary.Errors)
	require.Len(t, store.points, 150)
}

func TestEmbedAndSaveCountsDuplicatesNotErrors(t *testing.T) {
	chunks := makeChunks(10, "C1", "S1")
	store := newFakeVectorStore()
	u := NewUpserter(&fakeEmbedder{}, store, testLogger())

	_, err := u.EmbedAndSave(context.Background(), chunks)
	require.NoError(t, err)

	summary, err := u.EmbedAndSave(context.Background(), chunks)
	require.NoError(t, err)
	require.Equal(t, 10, summary.Duplicates)
	require.Equal(t, 0, summary.Inserted)
	require.Empty(t, summary.Errors)
}

func TestEmbedAndSaveSpansMultipleEmbedBatches(t *testing.T) {
	// 2500 chunks exceeds the 1000-document embed batch cap: exercise 3 batches.
	chunks := makeChunks(2500, "C1", "S1")
	store := newFakeVectorStore()
	u := NewUpserter(&fakeEmbedder{}, store, testLogger())

	summary, err := u.EmbedAndSave(context.Background(), chunks)
	require.NoError(t, err)
	require.Equal(t, 2500, summary.Embedded)
	require.Equal(t, 2500, summary.Inserted)
}

func TestEmbedAndSaveFatalEmbedErrorRecordedNotAborting(t *testing.T) {
	chunks := makeChunks(5, "C1", "S1")
	store := newFakeVectorStore()
	u := NewUpserter(&fakeEmbedder{err: WrapFatalExternal("bad api key", nil)}, store, testLogger())

	summary, err := u.EmbedAndSave(context.Background(), chunks)
	require.NoError(t, err)
	require.Equal(t, 0, summary.Embedded)
	require.NotEmpty(t, summary.Errors)
}

func TestEmbedAndSaveRetriesTransientThenSucceeds(t *testing.T) {
	chunks := makeChunks(5, "C1", "S1")
	store := newFakeVectorStore()
	// fails on the first call, succeeds on the retry.
	emb := &fakeEmbedder{err: WrapTransient("rate limited", nil), failFirstN: 1}
	u := NewUpserter(emb, store, testLogger())

	summary, err := u.EmbedAndSave(context.Background(), chunks)
	require.NoError(t, err)
	require.Equal(t, 5, summary.Embedded)
	require.Empty(t, summary.Errors)
}

func TestEmbedAndSaveUpsertErrorRecordedNotAborting(t *testing.T) {
	chunks := makeChunks(5, "C1", "S1")
	store := newFakeVectorStore()
	store.upsertErr = WrapTransient("store write failed", nil)
	u := NewUpserter(&fakeEmbedder{}, store, testLogger())

	summary, err := u.EmbedAndSave(context.Background(), chunks)
	require.NoError(t, err)
	require.Equal(t, 5, summary.Embedded)
	require.Equal(t, 0, summary.Inserted)
	require.NotEmpty(t, summary.Errors)
}
