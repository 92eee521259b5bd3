package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/converse-chat/converse/internal/models"
)

// Every method takes a context (all of these hit the network) and, except for
// user lookup by email at login, a userID. The repositories never trust the
// caller: each query filters on the owning user, so even a guessed thread ID
// from another account matches nothing.

// UserRepository handles account records.
type UserRepository interface {
	// Create inserts a new user and returns it with ID and timestamps
	// populated. A duplicate email returns apperr.ErrConflict.
	Create(ctx context.Context, name, email, passwordHash, role string) (*models.User, error)

	// GetByEmail looks up a user for login. Returns nil, nil if absent.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByID returns a user by ID. Returns nil, nil if absent.
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// ThreadRepository handles conversation containers.
type ThreadRepository interface {
	// Create inserts a thread, or returns the existing row unchanged when the
	// owner already has one under that ID (idempotent). A thread ID held by a
	// different user returns apperr.ErrConflict.
	Create(ctx context.Context, userID uuid.UUID, threadID, title string) (*models.Thread, error)

	// Get returns the thread owned by userID. Returns nil, nil whether the
	// thread is absent or owned by someone else.
	Get(ctx context.Context, userID uuid.UUID, threadID string) (*models.Thread, error)

	// ListByUser returns the user's threads, newest first. Empty slice, not
	// nil, so JSON serializes to [].
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Thread, error)

	// Delete removes the thread and all its messages in one transaction.
	// Reports false without error when there was nothing owned to delete.
	Delete(ctx context.Context, userID uuid.UUID, threadID string) (bool, error)

	// Clear removes every thread and message owned by userID and returns the
	// number of threads removed. Zero is a success, not an error.
	Clear(ctx context.Context, userID uuid.UUID) (int64, error)
}

// MessageRepository handles the append-only message log.
type MessageRepository interface {
	// Create appends a message with a server-assigned timestamp.
	Create(ctx context.Context, userID uuid.UUID, threadID, role, content string) (*models.Message, error)

	// ListByThread returns the thread's messages, oldest first.
	ListByThread(ctx context.Context, userID uuid.UUID, threadID string) ([]models.Message, error)

	// ListRecent returns up to limit of the newest messages, oldest first.
	// Used to assemble conversational context for the completion call.
	ListRecent(ctx context.Context, userID uuid.UUID, threadID string, limit int) ([]models.Message, error)

	// CountByThread reports how many messages a thread holds.
	CountByThread(ctx context.Context, userID uuid.UUID, threadID string) (int64, error)
}
