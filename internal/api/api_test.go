package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/converse-chat/converse/internal/config"
	"github.com/converse-chat/converse/internal/core"
	"github.com/converse-chat/converse/internal/models"
	"github.com/converse-chat/converse/internal/testutil"
)

// scriptedAI stands in for the remote completion/speech service. One struct
// covers both core.Completer and SpeechService.
type scriptedAI struct {
	reply      string
	deltas     []string
	err        error
	transcript string
	language   string
}

func (a *scriptedAI) Complete(_ context.Context, _ []models.Message) (string, error) {
	return a.reply, a.err
}

// CompleteStream follows the real client's contract: deltas accumulate into
// the reply, and a failed delivery ends the stream with the partial text.
func (a *scriptedAI) CompleteStream(_ context.Context, _ []models.Message, onDelta func(string) error) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	deltas := a.deltas
	if len(deltas) == 0 && a.reply != "" {
		deltas = []string{a.reply}
	}
	var reply string
	for _, delta := range deltas {
		reply += delta
		if err := onDelta(delta); err != nil {
			return reply, nil
		}
	}
	return reply, nil
}

func (a *scriptedAI) Transcribe(_ context.Context, _ string) (string, string, error) {
	return a.transcript, a.language, a.err
}

func (a *scriptedAI) Speak(_ context.Context, _ string, outPath string) error {
	if a.err != nil {
		return a.err
	}
	return os.WriteFile(outPath, []byte("mp3"), 0o644)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:               "0",
		Env:                "development",
		AccessTokenSecret:  "access-secret",
		RefreshTokenSecret: "refresh-secret",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    7 * 24 * time.Hour,
		ClientURL:          "http://localhost:5173",
		UploadDir:          t.TempDir(),
	}
}

// testServer is a running server plus a cookie-aware client, the same way a
// browser would talk to it.
type testServer struct {
	t      *testing.T
	srv    *httptest.Server
	client *http.Client
	store  *testutil.MemoryStore
	ai     *scriptedAI
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := testutil.NewMemoryStore()
	ai := &scriptedAI{reply: "Hi there"}
	logger := zap.NewNop()

	chatService := core.NewChatService(store.Threads(), store.Messages(), ai, logger)
	router := NewRouter(cfg, Handlers{
		Auth:   NewAuthHandler(store.Users(), nil, cfg, logger),
		Chat:   NewChatHandler(chatService, cfg.ClientURL, logger),
		Thread: NewThreadHandler(store.Threads(), store.Messages(), logger),
		Voice:  NewVoiceHandler(ai, cfg.UploadDir, logger),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("create cookie jar: %v", err)
	}

	return &testServer{
		t:      t,
		srv:    srv,
		client: &http.Client{Jar: jar},
		store:  store,
		ai:     ai,
	}
}

// dialStream opens the streaming chat websocket, carrying the same cookies
// the HTTP client holds.
func (ts *testServer) dialStream(t *testing.T) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/api/chat/stream"
	dialer := websocket.Dialer{Jar: ts.client.Jar}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (ts *testServer) request(method, path string, body any) (*http.Response, map[string]any) {
	ts.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			ts.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	if err != nil {
		ts.t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.client.Do(req)
	if err != nil {
		ts.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

// requestList is request for endpoints whose success body is a JSON array.
func (ts *testServer) requestList(method, path string) (*http.Response, []map[string]any) {
	ts.t.Helper()

	req, err := http.NewRequest(method, ts.srv.URL+path, nil)
	if err != nil {
		ts.t.Fatalf("build request: %v", err)
	}
	resp, err := ts.client.Do(req)
	if err != nil {
		ts.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded []map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (ts *testServer) register(name, email, password string) {
	ts.t.Helper()
	resp, body := ts.request(http.MethodPost, "/api/auth/register",
		map[string]string{"name": name, "email": email, "password": password})
	if resp.StatusCode != http.StatusCreated {
		ts.t.Fatalf("register failed: status=%d body=%v", resp.StatusCode, body)
	}
}
