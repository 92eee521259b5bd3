// Package client implements the API client and its session state machine.
// All authenticated calls share one wrapper that refreshes the token pair at
// most once on a 401 before declaring the session expired.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"
)

// State is where the session currently stands. It only moves forward through
// Bootstrap (Unknown -> Checking -> Authenticated | Anonymous) and can fall
// back to Anonymous whenever a refresh fails.
type State int

const (
	StateUnknown State = iota
	StateChecking
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// ErrSessionExpired is returned when a 401 could not be recovered by a
// refresh. The session has already transitioned to Anonymous.
var ErrSessionExpired = errors.New("session expired, please log in again")

// ErrConfirmationRequired gates the irreversible clear-all operation.
var ErrConfirmationRequired = errors.New("confirmation required")

// APIError is a non-2xx response decoded into the server's error shape.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Identity is the authenticated user as the client knows it.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Thread mirrors the server's thread record.
type Thread struct {
	ThreadID  string    `json:"threadId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Message mirrors the server's message record.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatReply is the result of one chat turn.
type ChatReply struct {
	Reply   string    `json:"reply"`
	History []Message `json:"history"`
}

// IdentityStore persists the last-known identity between runs, used as a
// degraded fallback when the server cannot be reached during bootstrap.
type IdentityStore interface {
	Load() (*Identity, error)
	Store(*Identity) error
	Clear() error
}

// Session holds the connection to the server and the current auth state.
// Tokens live in the cookie jar; the session never sees them directly.
type Session struct {
	base       string
	http       *http.Client
	store      IdentityStore
	retryDelay time.Duration

	mu       sync.Mutex
	state    State
	identity *Identity
}

// Option tweaks a Session at construction time.
type Option func(*Session)

// WithRetryDelay overrides the pause before the bootstrap's second "who am
// I" attempt.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Session) { s.retryDelay = d }
}

// WithIdentityStore attaches persistent identity storage.
func WithIdentityStore(store IdentityStore) Option {
	return func(s *Session) { s.store = store }
}

// NewSession creates a session against the given server base URL, e.g.
// "http://localhost:8080".
func NewSession(baseURL string, opts ...Option) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	s := &Session{
		base: baseURL,
		http: &http.Client{
			Jar:     jar,
			Timeout: 60 * time.Second,
		},
		retryDelay: 300 * time.Millisecond,
		state:      StateUnknown,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State reports the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the current identity, or nil when anonymous.
func (s *Session) Identity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Bootstrap attempts silent re-authentication with whatever cookies the jar
// holds. On a 401 it retries once after a short delay (cookies may still be
// propagating right after a login elsewhere), then tries a refresh, then
// falls back to the stored last-known identity, then gives up as anonymous.
func (s *Session) Bootstrap(ctx context.Context) State {
	s.setState(StateChecking, nil)

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				s.setState(StateAnonymous, nil)
				return StateAnonymous
			}
		}
		if id, err := s.fetchMe(ctx); err == nil {
			s.becomeAuthenticated(id)
			return StateAuthenticated
		}
	}

	if id, err := s.refresh(ctx); err == nil {
		s.becomeAuthenticated(id)
		return StateAuthenticated
	}

	if s.store != nil {
		if cached, err := s.store.Load(); err == nil && cached != nil {
			s.setState(StateAuthenticated, cached)
			return StateAuthenticated
		}
	}

	s.setState(StateAnonymous, nil)
	return StateAnonymous
}

// Register creates an account and enters the authenticated state.
func (s *Session) Register(ctx context.Context, name, email, password string) error {
	var resp struct {
		User Identity `json:"user"`
	}
	err := s.call(ctx, http.MethodPost, "/api/auth/register",
		map[string]string{"name": name, "email": email, "password": password}, &resp)
	if err != nil {
		return err
	}
	s.becomeAuthenticated(&resp.User)
	return nil
}

// Login authenticates and enters the authenticated state.
func (s *Session) Login(ctx context.Context, email, password string) error {
	var resp struct {
		User Identity `json:"user"`
	}
	err := s.call(ctx, http.MethodPost, "/api/auth/login",
		map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return err
	}
	s.becomeAuthenticated(&resp.User)
	return nil
}

// Logout tells the server to clear the cookies (best effort) and
// unconditionally transitions to anonymous.
func (s *Session) Logout(ctx context.Context) {
	_ = s.call(ctx, http.MethodPost, "/api/auth/logout", nil, nil)

	if s.store != nil {
		_ = s.store.Clear()
	}
	s.setState(StateAnonymous, nil)
}

// Me asks the server who the session belongs to.
func (s *Session) Me(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := s.do(ctx, http.MethodGet, "/api/auth/me", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// Send posts one chat message to a thread.
func (s *Session) Send(ctx context.Context, threadID, message string) (*ChatReply, error) {
	var reply ChatReply
	err := s.do(ctx, http.MethodPost, "/api/chat",
		map[string]string{"threadId": threadID, "message": message}, &reply)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// Threads lists the user's threads, newest first.
func (s *Session) Threads(ctx context.Context) ([]Thread, error) {
	var threads []Thread
	if err := s.do(ctx, http.MethodGet, "/api/thread", nil, &threads); err != nil {
		return nil, err
	}
	return threads, nil
}

// History returns a thread's messages, oldest first.
func (s *Session) History(ctx context.Context, threadID string) ([]Message, error) {
	var messages []Message
	if err := s.do(ctx, http.MethodGet, "/api/history/"+url.PathEscape(threadID), nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// DeleteThread deletes one thread and all of its messages.
func (s *Session) DeleteThread(ctx context.Context, threadID string) error {
	return s.do(ctx, http.MethodDelete, "/api/thread/"+url.PathEscape(threadID), nil, nil)
}

// ClearThreads irreversibly deletes every thread. The caller must have
// confirmed with the user first; confirm=false never reaches the server.
func (s *Session) ClearThreads(ctx context.Context, confirm bool) error {
	if !confirm {
		return ErrConfirmationRequired
	}
	return s.do(ctx, http.MethodDelete, "/api/thread/clear", nil, nil)
}

// do is the authenticated-fetch wrapper: perform the call, and on a 401 run
// exactly one refresh and retry. A failed refresh forces the anonymous state
// and surfaces ErrSessionExpired. Every authenticated method goes through
// here so the retry policy cannot drift between call sites.
func (s *Session) do(ctx context.Context, method, path string, in, out any) error {
	err := s.call(ctx, method, path, in, out)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return err
	}

	if _, refreshErr := s.refresh(ctx); refreshErr != nil {
		s.setState(StateAnonymous, nil)
		return ErrSessionExpired
	}
	return s.call(ctx, method, path, in, out)
}

// refresh rotates the token pair using the refresh cookie and returns the
// refreshed identity.
func (s *Session) refresh(ctx context.Context) (*Identity, error) {
	var resp struct {
		User Identity `json:"user"`
	}
	if err := s.call(ctx, http.MethodPost, "/api/auth/refresh", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

func (s *Session) fetchMe(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := s.call(ctx, http.MethodGet, "/api/auth/me", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// call performs one HTTP round trip with no retry logic.
func (s *Session) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Error == "" {
			payload.Error = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: payload.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (s *Session) becomeAuthenticated(id *Identity) {
	if s.store != nil && id != nil {
		_ = s.store.Store(id)
	}
	s.setState(StateAuthenticated, id)
}

func (s *Session) setState(state State, id *Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.identity = id
}
