package coursesage

import "context"

// ObjectStorage exposes whole-object byte access to the inbound collaborator (§6).
type ObjectStorage interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// EmbeddingInputType distinguishes the Voyage-style document/query embedding modes.
type EmbeddingInputType string

const (
	EmbedDocument EmbeddingInputType = "document"
	EmbedQuery    EmbeddingInputType = "query"
)

// EmbeddingProvider produces fixed-dimension vectors for a batch of texts.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string, inputType EmbeddingInputType) ([][]float32, error)
	Dimension() int
}

// VectorFilter is the metadata pre-filter applied before ANN similarity.
type VectorFilter struct {
	CourseID     string
	SlideIDs     []string
	ChunkIndices []int
}

// VectorMatch is a single ANN search result, embedding dropped.
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata Chunk
}

// UpsertResult reports the outcome of a single bulk-upsert batch.
type UpsertResult struct {
	Inserted   int
	Duplicates int
	Errors     []error
}

// VectorStore is the chunk-indexed ANN store collaborator (§6).
type VectorStore interface {
	Upsert(ctx context.Context, chunks []Chunk) (UpsertResult, error)
	Search(ctx context.Context, query []float32, filter VectorFilter, numCandidates, limit int) ([]VectorMatch, error)
	Count(ctx context.Context, courseID, slideID, s3FileName string) (int, error)
	Delete(ctx context.Context, courseID, slideID, s3FileName string) (int, error)
}

// PrimaryStore is the authoritative conversation document store (§4.5).
type PrimaryStore interface {
	Get(ctx context.Context, threadID string) (ConversationThread, bool, error)
	Upsert(ctx context.Context, thread ConversationThread) error
	Delete(ctx context.Context, threadID string) error
}

// Cache is the advisory TTL'd conversation/source cache (§4.5).
type Cache interface {
	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string, ttl int64) error
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	HashSet(ctx context.Context, key string, fields map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// LLMTool is a tool definition bound to the agent's LLM call.
type LLMTool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// LLMRequest is the tool-aware chat completion input.
type LLMRequest struct {
	System   string
	Messages []ConversationMessage
	Tools    []LLMTool
}

// LLMResponse is the assistant turn returned by the provider.
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// LLM is the tool-aware chat completion collaborator (§6).
type LLM interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// WebResult is a single hit from the web-search collaborator.
type WebResult struct {
	Title   string
	URL     string
	Content string
	Score   float64
}

// WebSearch is the external web-search collaborator (§6).
type WebSearch interface {
	Search(ctx context.Context, query string, maxResults int) ([]WebResult, error)
}

// Chunker transforms PDF bytes into an ordered, invariant-satisfying chunk
// sequence. It is a pure function of its inputs (§9 design notes).
type Chunker interface {
	Chunk(pdfBytes []byte, courseID, slideID, s3FileName string, maxWords int) ([]Chunk, int, error)
}
