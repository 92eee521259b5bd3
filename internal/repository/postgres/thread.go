package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/converse-chat/converse/internal/apperr"
	"github.com/converse-chat/converse/internal/models"
)

type ThreadStore struct {
	pool *pgxpool.Pool
}

func NewThreadStore(pool *pgxpool.Pool) *ThreadStore {
	return &ThreadStore{pool: pool}
}

// Create inserts a thread if its ID is free. Thread IDs are client-generated
// and globally unique, so two outcomes exist on conflict: the caller already
// owns the row (idempotent success, existing row returned unchanged), or a
// different user holds the ID (ErrConflict, no details leaked).
func (s *ThreadStore) Create(ctx context.Context, userID uuid.UUID, threadID, title string) (*models.Thread, error) {
	insert := `
		INSERT INTO threads (id, user_id, title)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
		RETURNING id, user_id, title, created_at, updated_at`

	var t models.Thread
	err := s.pool.QueryRow(ctx, insert, threadID, userID, title).Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("insert thread: %w", err)
	}

	// No row came back: the ID already exists. Idempotent only for the owner.
	existing, err := s.Get(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperr.ErrConflict
	}
	return existing, nil
}

func (s *ThreadStore) Get(ctx context.Context, userID uuid.UUID, threadID string) (*models.Thread, error) {
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM threads
		WHERE id = $1 AND user_id = $2`

	var t models.Thread
	err := s.pool.QueryRow(ctx, query, threadID, userID).Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return &t, nil
}

func (s *ThreadStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Thread, error) {
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM threads
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	threads := make([]models.Thread, 0)
	for rows.Next() {
		var t models.Thread
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.Title,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}

	return threads, nil
}

// Delete removes the thread and its messages in a single transaction, so the
// caller never observes a thread whose messages are half gone. Messages carry
// no FK to threads (they can precede the thread row), hence the explicit
// second delete.
func (s *ThreadStore) Delete(ctx context.Context, userID uuid.UUID, threadID string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin delete thread: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`DELETE FROM threads WHERE id = $1 AND user_id = $2`, threadID, userID)
	if err != nil {
		return false, fmt.Errorf("delete thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM messages WHERE thread_id = $1 AND user_id = $2`, threadID, userID); err != nil {
		return false, fmt.Errorf("delete thread messages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit delete thread: %w", err)
	}
	return true, nil
}

// Clear wipes every thread and message the user owns and reports the thread
// count. Clearing an empty account is a no-op success.
func (s *ThreadStore) Clear(ctx context.Context, userID uuid.UUID) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin clear threads: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM threads WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear threads: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE user_id = $1`, userID); err != nil {
		return 0, fmt.Errorf("clear messages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit clear threads: %w", err)
	}
	return tag.RowsAffected(), nil
}
