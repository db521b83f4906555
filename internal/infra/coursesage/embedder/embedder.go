// Package embedder adapts the chatgpt client's embeddings endpoint to the
// coursesage EmbeddingProvider contract (§4.2), and provides a deterministic
// offline fallback.
package embedder

import (
	"context"
	"hash/fnv"

	"github.com/yanqian/ai-helloworld/internal/domain/coursesage"
	"github.com/yanqian/ai-helloworld/internal/infra/llm/chatgpt"
)

const dimension = 512

// Adapter implements coursesage.EmbeddingProvider against a Voyage-style
// embeddings endpoint exposed through the chatgpt client.
type Adapter struct {
	client *chatgpt.Client
	model  string
}

// New constructs an Adapter.
func New(client *chatgpt.Client, model string) *Adapter {
	return &Adapter{client: client, model: model}
}

// Dimension implements coursesage.EmbeddingProvider.
func (a *Adapter) Dimension() int { return dimension }

// Embed implements coursesage.EmbeddingProvider.
func (a *Adapter) Embed(ctx context.Context, texts []string, inputType coursesage.EmbeddingInputType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := a.client.CreateEmbeddings(ctx, chatgpt.EmbeddingRequest{
		Input:           texts,
		Model:           a.model,
		InputType:       string(inputType),
		OutputDimension: dimension,
	})
	if err != nil {
		return nil, coursesage.WrapTransient("embeddings request failed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, coursesage.WrapFatalExternal("embeddings provider returned a mismatched vector count", nil)
	}
	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// Fallback produces deterministic, content-derived vectors so the service
// remains operable (in a degraded, non-semantic mode) without a configured
// embeddings provider.
type Fallback struct{}

// Dimension implements coursesage.EmbeddingProvider.
func (Fallback) Dimension() int { return dimension }

// Embed implements coursesage.EmbeddingProvider.
func (Fallback) Embed(_ context.Context, texts []string, _ coursesage.EmbeddingInputType) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t)
	}
	return out, nil
}

func hashVector(text string) []float32 {
	v := make([]float32, dimension)
	h := fnv.New64a()
	seed := []byte(text)
	for i := 0; i < dimension; i++ {
		h.Reset()
		h.Write(seed)
		h.Write([]byte{byte(i), byte(i >> 8)})
		sum := h.Sum64()
		v[i] = float32(sum%2000)/1000 - 1
	}
	return v
}
