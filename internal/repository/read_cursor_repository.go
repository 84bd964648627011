package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/moving-chat/internal/domain"
)

// ReadCursorRepository persists per-conversation read positions.
type ReadCursorRepository interface {
	Upsert(ctx context.Context, cursor *domain.ReadCursor) error
	Get(ctx context.Context, userID, conversationID string) (*domain.ReadCursor, error)
}

type readCursorRepository struct {
	pool *pgxpool.Pool
}

// NewReadCursorRepository builds repository.
func NewReadCursorRepository(pool *pgxpool.Pool) ReadCursorRepository {
	return &readCursorRepository{pool: pool}
}

// Upsert moves the cursor forward; an older position never overwrites a newer one.
func (r *readCursorRepository) Upsert(ctx context.Context, cursor *domain.ReadCursor) error {
	const query = `
        INSERT INTO chat_read_cursors (user_id, conversation_id, last_message_id, last_created_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id, conversation_id) DO UPDATE
        SET last_message_id = EXCLUDED.last_message_id,
            last_created_at = EXCLUDED.last_created_at,
            updated_at = now()
        WHERE chat_read_cursors.last_created_at <= EXCLUDED.last_created_at
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		cursor.UserID,
		cursor.ConversationID,
		cursor.LastMessageID,
		cursor.LastCreatedAt,
	).Scan(&cursor.UpdatedAt)
	if err == pgx.ErrNoRows {
		// the stored cursor is already newer
		return nil
	}
	return err
}

func (r *readCursorRepository) Get(ctx context.Context, userID, conversationID string) (*domain.ReadCursor, error) {
	const query = `
        SELECT user_id, conversation_id, last_message_id, last_created_at, updated_at
        FROM chat_read_cursors WHERE user_id=$1 AND conversation_id=$2`
	var cursor domain.ReadCursor
	if err := r.pool.QueryRow(ctx, query, userID, conversationID).Scan(
		&cursor.UserID,
		&cursor.ConversationID,
		&cursor.LastMessageID,
		&cursor.LastCreatedAt,
		&cursor.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &cursor, nil
}
