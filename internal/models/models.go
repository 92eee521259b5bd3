package models

import (
	"time"

	"github.com/google/uuid"
)

// Roles a user account can hold. New accounts default to RoleUser.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Message sender roles. Every message is one turn by either side.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// User is a registered account. Email is stored lowercased and is unique
// across the whole system. PasswordHash never leaves the server: it is
// excluded from JSON and never returned by the API.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Thread is a conversation container. Its ID is client-generated and unique
// across all users; the owning user is the only one who can see it. Threads
// are usually created lazily, on the first message sent under a new ID.
type Thread struct {
	ID        string    `json:"threadId"`
	UserID    uuid.UUID `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single turn in a thread. Messages are append-only: they are
// never edited, and are deleted only as a cascade of thread deletion.
// Ordering within a thread is (created_at, id); the bigserial id breaks
// timestamp ties in insertion order.
type Message struct {
	ID        int64     `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	ThreadID  string    `json:"threadId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
