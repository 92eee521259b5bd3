package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend emulates the server's cookie behavior: login mints a token
// pair, me honors a valid access cookie, refresh rotates the pair. Tests
// invalidate tokens to simulate expiry.
type fakeBackend struct {
	mu           sync.Mutex
	validAccess  map[string]bool
	validRefresh map[string]bool
	nextToken    int

	meCalls      int
	refreshCalls int
	logoutCalls  int
	threadCalls  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		validAccess:  make(map[string]bool),
		validRefresh: make(map[string]bool),
	}
}

func (b *fakeBackend) mint(w http.ResponseWriter) {
	b.nextToken++
	access := fmt.Sprintf("access-%d", b.nextToken)
	refresh := fmt.Sprintf("refresh-%d", b.nextToken)
	b.validAccess[access] = true
	b.validRefresh[refresh] = true
	http.SetCookie(w, &http.Cookie{Name: "accessToken", Value: access, Path: "/"})
	http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: refresh, Path: "/"})
}

func (b *fakeBackend) authed(r *http.Request) bool {
	cookie, err := r.Cookie("accessToken")
	return err == nil && b.validAccess[cookie.Value]
}

func (b *fakeBackend) invalidateAccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.validAccess = make(map[string]bool)
}

func (b *fakeBackend) invalidateRefresh() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.validRefresh = make(map[string]bool)
}

func (b *fakeBackend) handler() http.Handler {
	user := map[string]any{"id": "u1", "name": "Alice", "email": "alice@example.com", "role": "user"}
	unauthorized := func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid or expired token"})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.mint(w)
		json.NewEncoder(w).Encode(map[string]any{"message": "logged in", "user": user})
	})
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.meCalls++
		if !b.authed(r) {
			unauthorized(w)
			return
		}
		json.NewEncoder(w).Encode(user)
	})
	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.refreshCalls++
		cookie, err := r.Cookie("refreshToken")
		if err != nil || !b.validRefresh[cookie.Value] {
			unauthorized(w)
			return
		}
		b.mint(w)
		json.NewEncoder(w).Encode(map[string]any{"message": "refreshed", "user": user})
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.logoutCalls++
		json.NewEncoder(w).Encode(map[string]string{"message": "logged out"})
	})
	mux.HandleFunc("GET /api/thread", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.threadCalls++
		if !b.authed(r) {
			unauthorized(w)
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{{"threadId": "t1", "title": "Hello"}})
	})
	mux.HandleFunc("DELETE /api/thread/clear", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if !b.authed(r) {
			unauthorized(w)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"message": "threads cleared", "deleted": 1})
	})
	return mux
}

// memIdentityStore is IdentityStore backed by a field.
type memIdentityStore struct {
	identity *Identity
}

func (m *memIdentityStore) Load() (*Identity, error) { return m.identity, nil }
func (m *memIdentityStore) Store(id *Identity) error { m.identity = id; return nil }
func (m *memIdentityStore) Clear() error             { m.identity = nil; return nil }

func newTestSession(t *testing.T, backend *fakeBackend, opts ...Option) *Session {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	opts = append([]Option{WithRetryDelay(time.Millisecond)}, opts...)
	session, err := NewSession(srv.URL, opts...)
	require.NoError(t, err)
	return session
}

func TestSession_LoginAndMe(t *testing.T) {
	backend := newFakeBackend()
	session := newTestSession(t, backend)

	require.NoError(t, session.Login(context.Background(), "alice@example.com", "secret1"))
	assert.Equal(t, StateAuthenticated, session.State())
	assert.Equal(t, "Alice", session.Identity().Name)

	id, err := session.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", id.Email)
}

func TestSession_RefreshesOnceOn401(t *testing.T) {
	backend := newFakeBackend()
	session := newTestSession(t, backend)
	require.NoError(t, session.Login(context.Background(), "alice@example.com", "secret1"))

	// The access token "expires" while the refresh token stays valid.
	backend.invalidateAccess()

	threads, err := session.Threads(context.Background())
	require.NoError(t, err)
	assert.Len(t, threads, 1)
	assert.Equal(t, 1, backend.refreshCalls)
	assert.Equal(t, 2, backend.threadCalls)
	assert.Equal(t, StateAuthenticated, session.State())
}

func TestSession_RefreshFailureForcesAnonymous(t *testing.T) {
	backend := newFakeBackend()
	session := newTestSession(t, backend)
	require.NoError(t, session.Login(context.Background(), "alice@example.com", "secret1"))

	backend.invalidateAccess()
	backend.invalidateRefresh()

	_, err := session.Threads(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, StateAnonymous, session.State())
	// Exactly one refresh attempt, no endless retry loop.
	assert.Equal(t, 1, backend.refreshCalls)
}

func TestSession_BootstrapWithoutCookiesIsAnonymous(t *testing.T) {
	backend := newFakeBackend()
	session := newTestSession(t, backend)

	state := session.Bootstrap(context.Background())
	assert.Equal(t, StateAnonymous, state)
	// Two me attempts (the second after the propagation delay), one refresh.
	assert.Equal(t, 2, backend.meCalls)
	assert.Equal(t, 1, backend.refreshCalls)
}

func TestSession_BootstrapRecoversViaRefresh(t *testing.T) {
	backend := newFakeBackend()
	session := newTestSession(t, backend)
	require.NoError(t, session.Login(context.Background(), "alice@example.com", "secret1"))

	backend.invalidateAccess()

	state := session.Bootstrap(context.Background())
	assert.Equal(t, StateAuthenticated, state)
	assert.Equal(t, "Alice", session.Identity().Name)
}

func TestSession_BootstrapFallsBackToCachedIdentity(t *testing.T) {
	backend := newFakeBackend()
	store := &memIdentityStore{identity: &Identity{ID: "u1", Name: "Alice"}}
	session := newTestSession(t, backend, WithIdentityStore(store))

	// No cookies and refresh fails: the stored identity is the last resort.
	state := session.Bootstrap(context.Background())
	assert.Equal(t, StateAuthenticated, state)
	assert.Equal(t, "Alice", session.Identity().Name)
}

func TestSession_EscapesThreadIDInPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		json.NewEncoder(w).Encode([]Message{})
	}))
	t.Cleanup(srv.Close)

	session, err := NewSession(srv.URL, WithRetryDelay(time.Millisecond))
	require.NoError(t, err)

	// A hostile or corrupted id must stay a single path segment.
	_, err = session.History(context.Background(), "a/b c")
	require.NoError(t, err)
	assert.Equal(t, "/api/history/a%2Fb%20c", gotPath)

	require.NoError(t, session.DeleteThread(context.Background(), "../clear"))
	assert.Equal(t, "/api/thread/..%2Fclear", gotPath)
}

func TestSession_ClearThreadsRequiresConfirmation(t *testing.T) {
	backend := newFakeBackend()
	session := newTestSession(t, backend)
	require.NoError(t, session.Login(context.Background(), "alice@example.com", "secret1"))

	err := session.ClearThreads(context.Background(), false)
	assert.ErrorIs(t, err, ErrConfirmationRequired)

	require.NoError(t, session.ClearThreads(context.Background(), true))
}

func TestSession_LogoutIsUnconditional(t *testing.T) {
	backend := newFakeBackend()
	store := &memIdentityStore{}
	session := newTestSession(t, backend, WithIdentityStore(store))
	require.NoError(t, session.Login(context.Background(), "alice@example.com", "secret1"))
	require.NotNil(t, store.identity)

	session.Logout(context.Background())
	assert.Equal(t, StateAnonymous, session.State())
	assert.Nil(t, session.Identity())
	assert.Nil(t, store.identity)
	assert.Equal(t, 1, backend.logoutCalls)
}
