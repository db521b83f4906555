package coursesage

import (
	"context"
	"log/slog"
	"time"
)

const (
	embedBatchSize  = 1000
	upsertBatchSize = 100
	maxInFlight     = 6
	maxRetryAttempts = 5
)

// UpsertSummary is the §4.2 embed_and_save contract result.
type UpsertSummary struct {
	Embedded   int
	Inserted   int
	Duplicates int
	Errors     []string
}

// Upserter computes embeddings for a chunk batch and persists both vectors
// and metadata, batched and retried per §5/§7.
type Upserter struct {
	embedder EmbeddingProvider
	store    VectorStore
	logger   *slog.Logger
}

// NewUpserter constructs an Upserter.
func NewUpserter(embedder EmbeddingProvider, store VectorStore, logger *slog.Logger) *Upserter {
	return &Upserter{embedder: embedder, store: store, logger: logger.With("component", "upserter")}
}

// EmbedAndSave embeds every chunk and persists them in upsert batches. A
// batch that fails after retries is recorded in Errors and does not roll
// back prior successful batches (§7 propagation policy).
func (u *Upserter) EmbedAndSave(ctx context.Context, chunks []Chunk) (UpsertSummary, error) {
	var summary UpsertSummary
	if len(chunks) == 0 {
		return summary, nil
	}

	sem := make(chan struct{}, maxInFlight)
	type embedBatchResult struct {
		chunks []Chunk
		err    error
	}
	embedOut := make(chan embedBatchResult, (len(chunks)/embedBatchSize)+1)

	var pending int
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		pending++
		sem <- struct{}{}
		go func(batch []Chunk) {
			defer func() { <-sem }()
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}
			vectors, err := embedWithRetry(ctx, u.embedder, texts, u.logger)
			if err != nil {
				embedOut <- embedBatchResult{err: err}
				return
			}
			embedded := make([]Chunk, len(batch))
			for i, c := range batch {
				c.Embedding = vectors[i]
				embedded[i] = c
			}
			embedOut <- embedBatchResult{chunks: embedded}
		}(batch)
	}

	var embedded []Chunk
	for i := 0; i < pending; i++ {
		res := <-embedOut
		if res.err != nil {
			summary.Errors = append(summary.Errors, res.err.Error())
			continue
		}
		embedded = append(embedded, res.chunks...)
	}
	summary.Embedded = len(embedded)

	upsertSem := make(chan struct{}, maxInFlight)
	type upsertBatchResult struct {
		res UpsertResult
		err error
	}
	var upsertPending int
	upsertOut := make(chan upsertBatchResult, (len(embedded)/upsertBatchSize)+1)
	for start := 0; start < len(embedded); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(embedded) {
			end = len(embedded)
		}
		batch := embedded[start:end]
		upsertPending++
		upsertSem <- struct{}{}
		go func(batch []Chunk) {
			defer func() { <-upsertSem }()
			var res UpsertResult
			var err error
			backoff := 200 * time.Millisecond
			for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
				if res, err = u.store.Upsert(ctx, batch); err == nil || !IsTransient(err) || attempt == maxRetryAttempts {
					break
				}
				u.logger.Warn("upsert batch transient failure, retrying", "attempt", attempt, "error", err)
				select {
				case <-ctx.Done():
				case <-time.After(backoff):
				}
				backoff *= 2
			}
			upsertOut <- upsertBatchResult{res: res, err: err}
		}(batch)
	}
	for i := 0; i < upsertPending; i++ {
		r := <-upsertOut
		if r.err != nil {
			summary.Errors = append(summary.Errors, r.err.Error())
			continue
		}
		summary.Inserted += r.res.Inserted
		summary.Duplicates += r.res.Duplicates
		for _, e := range r.res.Errors {
			summary.Errors = append(summary.Errors, e.Error())
		}
	}

	return summary, nil
}

func embedWithRetry(ctx context.Context, embedder EmbeddingProvider, texts []string, logger *slog.Logger) ([][]float32, error) {
	var lastErr error
	backoff := 200 * time.Millisecond
	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		vectors, err := embedder.Embed(ctx, texts, EmbedDocument)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return nil, err
		}
		logger.Warn("embedding batch transient failure, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, lastErr
}
