// Package testutil provides in-memory implementations of the repository
// interfaces plus a scriptable completion stub, so service and handler tests
// run without Postgres or the remote API.
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/converse-chat/converse/internal/apperr"
	"github.com/converse-chat/converse/internal/models"
)

// MemoryStore backs all three repositories with slices behind one mutex.
// Setting Fail makes every operation return that error, which is how tests
// simulate an unreachable store.
type MemoryStore struct {
	mu        sync.Mutex
	users     []models.User
	threads   []models.Thread
	messages  []models.Message
	nextMsgID int64

	Fail error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Users() *MemoryUserRepo       { return &MemoryUserRepo{s: s} }
func (s *MemoryStore) Threads() *MemoryThreadRepo   { return &MemoryThreadRepo{s: s} }
func (s *MemoryStore) Messages() *MemoryMessageRepo { return &MemoryMessageRepo{s: s} }

type MemoryUserRepo struct{ s *MemoryStore }

func (r *MemoryUserRepo) Create(_ context.Context, name, email, passwordHash, role string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}

	for _, u := range r.s.users {
		if u.Email == email {
			return nil, apperr.ErrConflict
		}
	}

	now := time.Now()
	user := models.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.s.users = append(r.s.users, user)
	return &user, nil
}

func (r *MemoryUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}

	for _, u := range r.s.users {
		if u.Email == email {
			copied := u
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *MemoryUserRepo) GetByID(_ context.Context, userID uuid.UUID) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}

	for _, u := range r.s.users {
		if u.ID == userID {
			copied := u
			return &copied, nil
		}
	}
	return nil, nil
}

type MemoryThreadRepo struct{ s *MemoryStore }

func (r *MemoryThreadRepo) Create(_ context.Context, userID uuid.UUID, threadID, title string) (*models.Thread, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}

	for _, t := range r.s.threads {
		if t.ID == threadID {
			if t.UserID == userID {
				copied := t
				return &copied, nil
			}
			return nil, apperr.ErrConflict
		}
	}

	now := time.Now()
	thread := models.Thread{
		ID:        threadID,
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.s.threads = append(r.s.threads, thread)
	return &thread, nil
}

func (r *MemoryThreadRepo) Get(_ context.Context, userID uuid.UUID, threadID string) (*models.Thread, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}

	for _, t := range r.s.threads {
		if t.ID == threadID && t.UserID == userID {
			copied := t
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *MemoryThreadRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Thread, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}

	// Newest first, matching the Postgres store's ordering.
	threads := make([]models.Thread, 0)
	for i := len(r.s.threads) - 1; i >= 0; i-- {
		if r.s.threads[i].UserID == userID {
			threads = append(threads, r.s.threads[i])
		}
	}
	return threads, nil
}

func (r *MemoryThreadRepo) Delete(_ context.Context, userID uuid.UUID, threadID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return false, r.s.Fail
	}

	found := false
	kept := r.s.threads[:0]
	for _, t := range r.s.threads {
		if t.ID == threadID && t.UserID == userID {
			found = true
			continue
		}
		kept = append(kept, t)
	}
	r.s.threads = kept
	if !found {
		return false, nil
	}

	r.s.messages = deleteMessages(r.s.messages, func(m models.Message) bool {
		return m.ThreadID == threadID && m.UserID == userID
	})
	return true, nil
}

func (r *MemoryThreadRepo) Clear(_ context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return 0, r.s.Fail
	}

	var count int64
	kept := r.s.threads[:0]
	for _, t := range r.s.threads {
		if t.UserID == userID {
			count++
			continue
		}
		kept = append(kept, t)
	}
	r.s.threads = kept

	r.s.messages = deleteMessages(r.s.messages, func(m models.Message) bool {
		return m.UserID == userID
	})
	return count, nil
}

type MemoryMessageRepo struct{ s *MemoryStore }

func (r *MemoryMessageRepo) Create(_ context.Context, userID uuid.UUID, threadID, role, content string) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}
	if strings.TrimSpace(content) == "" {
		return nil, apperr.ErrValidation
	}

	r.s.nextMsgID++
	msg := models.Message{
		ID:        r.s.nextMsgID,
		UserID:    userID,
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	r.s.messages = append(r.s.messages, msg)
	return &msg, nil
}

func (r *MemoryMessageRepo) ListByThread(_ context.Context, userID uuid.UUID, threadID string) ([]models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}

	messages := make([]models.Message, 0)
	for _, m := range r.s.messages {
		if m.UserID == userID && m.ThreadID == threadID {
			messages = append(messages, m)
		}
	}
	return messages, nil
}

func (r *MemoryMessageRepo) ListRecent(ctx context.Context, userID uuid.UUID, threadID string, limit int) ([]models.Message, error) {
	messages, err := r.ListByThread(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

func (r *MemoryMessageRepo) CountByThread(ctx context.Context, userID uuid.UUID, threadID string) (int64, error) {
	messages, err := r.ListByThread(ctx, userID, threadID)
	if err != nil {
		return 0, err
	}
	return int64(len(messages)), nil
}

func deleteMessages(messages []models.Message, match func(models.Message) bool) []models.Message {
	kept := messages[:0]
	for _, m := range messages {
		if !match(m) {
			kept = append(kept, m)
		}
	}
	return kept
}
