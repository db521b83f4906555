package coursesage

import (
	"context"
	"log/slog"
)

const defaultNumCandidates = 10000

// Retriever embeds a query and runs a metadata-pre-filtered ANN search.
type Retriever struct {
	embedder      EmbeddingProvider
	store         VectorStore
	numCandidates int
	logger        *slog.Logger
}

// NewRetriever constructs a Retriever. numCandidates <= 0 falls back to the
// §4.3 default of 10,000.
func NewRetriever(embedder EmbeddingProvider, store VectorStore, numCandidates int, logger *slog.Logger) *Retriever {
	if numCandidates <= 0 {
		numCandidates = defaultNumCandidates
	}
	return &Retriever{embedder: embedder, store: store, numCandidates: numCandidates, logger: logger.With("component", "retriever")}
}

// RetrieveRequest carries the §4.3 retrieve(...) arguments.
type RetrieveRequest struct {
	CourseID     string
	Slides       []string
	ChunkIndices []int
	QueryText    string
	Limit        int
}

// Retrieve embeds QueryText with input_type=query and executes the
// pre-filtered ANN search, returning at most Limit matches ordered by
// decreasing score.
func (r *Retriever) Retrieve(ctx context.Context, req RetrieveRequest) ([]VectorMatch, error) {
	if req.CourseID == "" {
		return nil, WrapInput("retrieve requires course_id", nil)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	vectors, err := r.embedder.Embed(ctx, []string{req.QueryText}, EmbedQuery)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, WrapTransient("embedding provider returned no vector", nil)
	}
	filter := VectorFilter{CourseID: req.CourseID, SlideIDs: req.Slides, ChunkIndices: req.ChunkIndices}
	matches, err := r.store.Search(ctx, vectors[0], filter, r.numCandidates, limit)
	if err != nil {
		return nil, err
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
