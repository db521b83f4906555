package coursesage

import (
	"context"
	"log/slog"
)

// DeletionResult is the §4.7 delete(...) contract result.
type DeletionResult struct {
	Acknowledged bool
	DeletedCount int
}

// Deleter removes every chunk matching an exact (course, slide, file) triple.
type Deleter struct {
	store  VectorStore
	logger *slog.Logger
}

// NewDeleter constructs a Deleter.
func NewDeleter(store VectorStore, logger *slog.Logger) *Deleter {
	return &Deleter{store: store, logger: logger.With("component", "deleter")}
}

// Delete issues a single bulk delete against the vector store. Zero matches
// is reported as success, never an error.
func (d *Deleter) Delete(ctx context.Context, courseID, slideID, s3FileName string) (DeletionResult, error) {
	if courseID == "" || slideID == "" || s3FileName == "" {
		return DeletionResult{}, WrapInput("delete requires course_id, slide_id and s3_file_name", nil)
	}
	deleted, err := d.store.Delete(ctx, courseID, slideID, s3FileName)
	if err != nil {
		return DeletionResult{}, err
	}
	return DeletionResult{Acknowledged: true, DeletedCount: deleted}, nil
}
