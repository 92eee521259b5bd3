package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/converse-chat/converse/internal/apperr"
	"github.com/converse-chat/converse/internal/models"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

// Create appends a message. The timestamp is assigned by the server (now()),
// and the bigserial id breaks same-timestamp ties in insertion order.
// Content must be non-empty after trimming; the store enforces it even
// though callers validate first.
func (s *MessageStore) Create(ctx context.Context, userID uuid.UUID, threadID, role, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: message content is empty", apperr.ErrValidation)
	}

	query := `
		INSERT INTO messages (user_id, thread_id, role, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, thread_id, role, content, created_at`

	var msg models.Message
	err := s.pool.QueryRow(ctx, query, userID, threadID, role, content).Scan(
		&msg.ID,
		&msg.UserID,
		&msg.ThreadID,
		&msg.Role,
		&msg.Content,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

// ListByThread returns the whole thread, oldest first.
func (s *MessageStore) ListByThread(ctx context.Context, userID uuid.UUID, threadID string) ([]models.Message, error) {
	query := `
		SELECT id, user_id, thread_id, role, content, created_at
		FROM messages
		WHERE user_id = $1 AND thread_id = $2
		ORDER BY created_at ASC, id ASC`

	return s.queryMessages(ctx, query, userID, threadID)
}

// ListRecent returns up to limit of the newest messages, flipped back to
// chronological order for the completion prompt.
func (s *MessageStore) ListRecent(ctx context.Context, userID uuid.UUID, threadID string, limit int) ([]models.Message, error) {
	query := `
		SELECT id, user_id, thread_id, role, content, created_at
		FROM (
			SELECT id, user_id, thread_id, role, content, created_at
			FROM messages
			WHERE user_id = $1 AND thread_id = $2
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC, id ASC`

	return s.queryMessages(ctx, query, userID, threadID, limit)
}

func (s *MessageStore) CountByThread(ctx context.Context, userID uuid.UUID, threadID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM messages WHERE user_id = $1 AND thread_id = $2`,
		userID, threadID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func (s *MessageStore) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.UserID,
			&msg.ThreadID,
			&msg.Role,
			&msg.Content,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}
