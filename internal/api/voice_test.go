package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (ts *testServer) uploadAudio(field, filename string, content []byte) (*http.Response, map[string]any) {
	ts.t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		ts.t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		ts.t.Fatalf("write form file: %v", err)
	}
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/voice", &buf)
	if err != nil {
		ts.t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := ts.client.Do(req)
	if err != nil {
		ts.t.Fatalf("POST /api/voice: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestVoice_FullPipeline(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	ts.register("Alice", "alice@example.com", "secret1")
	ts.ai.transcript = "what time is it"
	ts.ai.language = "english"
	ts.ai.reply = "It is noon."

	resp, body := ts.uploadAudio("audio", "recording.webm", []byte("fake-audio-bytes"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "what time is it", body["userText"])
	assert.Equal(t, "It is noon.", body["text"])
	assert.Equal(t, "english", body["language"])

	audioURL, _ := body["audioUrl"].(string)
	require.True(t, strings.HasPrefix(audioURL, "/uploads/"), "audioUrl %q", audioURL)

	// The synthesized reply is served statically.
	fileResp, err := ts.client.Get(ts.srv.URL + audioURL)
	require.NoError(t, err)
	defer fileResp.Body.Close()
	assert.Equal(t, http.StatusOK, fileResp.StatusCode)
}

func TestVoice_MissingFile(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	ts.register("Alice", "alice@example.com", "secret1")

	resp, _ := ts.uploadAudio("not-audio", "recording.webm", []byte("bytes"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVoice_BlankTranscript(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	ts.register("Alice", "alice@example.com", "secret1")
	ts.ai.transcript = "   "

	resp, _ := ts.uploadAudio("audio", "recording.webm", []byte("bytes"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
