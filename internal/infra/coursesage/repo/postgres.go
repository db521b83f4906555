// Package repo is the authoritative conversation store behind StateManager.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/ai-helloworld/internal/domain/coursesage"
)

// Postgres implements coursesage.PrimaryStore over a JSONB conversation
// document keyed by thread ID, in the teacher's pgx/pgxpool idiom.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New constructs a Postgres store. Callers are responsible for schema setup.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	return &Postgres{pool: pool, logger: logger.With("component", "conversation_store", "backend", "postgres")}
}

// Get implements coursesage.PrimaryStore.
func (p *Postgres) Get(ctx context.Context, threadID string) (coursesage.ConversationThread, bool, error) {
	const query = `
		SELECT thread_id, user_id, course_id, messages, message_count, created_at, updated_at
		FROM conversation_threads WHERE thread_id = $1`

	var thread coursesage.ConversationThread
	var raw []byte
	err := p.pool.QueryRow(ctx, query, threadID).Scan(
		&thread.ThreadID, &thread.UserID, &thread.CourseID, &raw, &thread.MessageCount, &thread.CreatedAt, &thread.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return coursesage.ConversationThread{}, false, nil
	}
	if err != nil {
		return coursesage.ConversationThread{}, false, coursesage.WrapTransient("conversation thread read failed", err)
	}
	if err := json.Unmarshal(raw, &thread.Messages); err != nil {
		return coursesage.ConversationThread{}, false, coursesage.WrapInvariant("stored conversation messages are corrupt", err)
	}
	return thread, true, nil
}

// Upsert implements coursesage.PrimaryStore.
func (p *Postgres) Upsert(ctx context.Context, thread coursesage.ConversationThread) error {
	raw, err := json.Marshal(thread.Messages)
	if err != nil {
		return coursesage.WrapInput("failed to encode conversation messages", err)
	}

	const query = `
		INSERT INTO conversation_threads (thread_id, user_id, course_id, messages, message_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (thread_id) DO UPDATE SET
			messages = EXCLUDED.messages,
			message_count = EXCLUDED.message_count,
			updated_at = EXCLUDED.updated_at`

	_, err = p.pool.Exec(ctx, query,
		thread.ThreadID, thread.UserID, thread.CourseID, raw, thread.MessageCount, thread.CreatedAt, thread.UpdatedAt,
	)
	if err != nil {
		return coursesage.WrapTransient("conversation thread write failed", err)
	}
	return nil
}

// Delete implements coursesage.PrimaryStore.
func (p *Postgres) Delete(ctx context.Context, threadID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM conversation_threads WHERE thread_id = $1`, threadID)
	if err != nil {
		return coursesage.WrapTransient("conversation thread delete failed", err)
	}
	return nil
}
