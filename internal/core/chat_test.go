package core

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/converse-chat/converse/internal/apperr"
	"github.com/converse-chat/converse/internal/models"
	"github.com/converse-chat/converse/internal/testutil"
)

// stubCompleter is scriptable per test: fixed reply (or delta chunks for the
// streaming path), fixed error, and it records the history it was called
// with.
type stubCompleter struct {
	reply       string
	deltas      []string
	err         error
	seenHistory []models.Message
}

func (s *stubCompleter) Complete(_ context.Context, history []models.Message) (string, error) {
	s.seenHistory = history
	return s.reply, s.err
}

// CompleteStream mirrors the real client's contract: deltas accumulate into
// the reply, and a failed delivery ends the stream with whatever text was
// produced so far, not an error.
func (s *stubCompleter) CompleteStream(_ context.Context, history []models.Message, onDelta func(string) error) (string, error) {
	s.seenHistory = history
	if s.err != nil {
		return "", s.err
	}
	deltas := s.deltas
	if len(deltas) == 0 && s.reply != "" {
		deltas = []string{s.reply}
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

func newTestService(reply string, completeErr error) (*ChatService, *testutil.MemoryStore, *stubCompleter) {
	store := testutil.NewMemoryStore()
	completer := &stubCompleter{reply: reply, err: completeErr}
	svc := NewChatService(store.Threads(), store.Messages(), completer, zap.NewNop())
	return svc, store, completer
}

func TestSend_AppendsUserThenAssistant(t *testing.T) {
	svc, store, _ := newTestService("Hi there", nil)
	userID := uuid.New()

	result, err := svc.Send(context.Background(), userID, "t1", "Hello")
	require.NoError(t, err)

	assert.Equal(t, "Hi there", result.Reply)
	require.Len(t, result.History, 2)
	assert.Equal(t, models.SenderUser, result.History[0].Role)
	assert.Equal(t, "Hello", result.History[0].Content)
	assert.Equal(t, models.SenderAssistant, result.History[1].Role)
	assert.Equal(t, "Hi there", result.History[1].Content)

	stored, err := store.Messages().ListByThread(context.Background(), userID, "t1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, models.SenderUser, stored[0].Role)
	assert.Equal(t, models.SenderAssistant, stored[1].Role)
}

func TestSend_LazilyCreatesThreadWithDerivedTitle(t *testing.T) {
	svc, store, _ := newTestService("ok", nil)
	userID := uuid.New()

	_, err := svc.Send(context.Background(), userID, "t1", "what is the weather like in Lisbon today")
	require.NoError(t, err)

	thread, err := store.Threads().Get(context.Background(), userID, "t1")
	require.NoError(t, err)
	require.NotNil(t, thread)
	assert.Equal(t, "what is the weather like...", thread.Title)
}

func TestSend_SecondTurnKeepsExistingTitle(t *testing.T) {
	svc, store, _ := newTestService("ok", nil)
	userID := uuid.New()

	_, err := svc.Send(context.Background(), userID, "t1", "first message")
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), userID, "t1", "a totally different second message")
	require.NoError(t, err)

	thread, err := store.Threads().Get(context.Background(), userID, "t1")
	require.NoError(t, err)
	assert.Equal(t, "first message", thread.Title)
}

func TestSend_ValidationFailures(t *testing.T) {
	svc, _, _ := newTestService("ok", nil)
	userID := uuid.New()

	_, err := svc.Send(context.Background(), userID, "t1", "   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Send(context.Background(), userID, "", "hello")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSend_UpstreamFailureKeepsUserMessage(t *testing.T) {
	svc, store, _ := newTestService("", errors.New("model overloaded"))
	userID := uuid.New()

	_, err := svc.Send(context.Background(), userID, "t1", "Hello")
	require.ErrorIs(t, err, apperr.ErrUpstream)

	// The user turn stays put: at-least-once write, no compensating delete.
	stored, listErr := store.Messages().ListByThread(context.Background(), userID, "t1")
	require.NoError(t, listErr)
	require.Len(t, stored, 1)
	assert.Equal(t, models.SenderUser, stored[0].Role)
}

func TestSend_BlankReplyStoredAsFallback(t *testing.T) {
	svc, _, _ := newTestService("   \n", nil)

	result, err := svc.Send(context.Background(), uuid.New(), "t1", "Hello")
	require.NoError(t, err)
	assert.Equal(t, ReplyFallback, result.Reply)
	assert.Equal(t, ReplyFallback, result.History[1].Content)
}

func TestSend_ForwardsThreadHistoryToCompleter(t *testing.T) {
	svc, _, completer := newTestService("ok", nil)
	userID := uuid.New()

	_, err := svc.Send(context.Background(), userID, "t1", "first")
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), userID, "t1", "second")
	require.NoError(t, err)

	// Second call sees user+assistant from turn one plus the new user turn.
	require.Len(t, completer.seenHistory, 3)
	assert.Equal(t, "first", completer.seenHistory[0].Content)
	assert.Equal(t, "ok", completer.seenHistory[1].Content)
	assert.Equal(t, "second", completer.seenHistory[2].Content)
}

func TestSendStream_DeliversDeltasAndStoresFullReply(t *testing.T) {
	svc, store, completer := newTestService("", nil)
	completer.deltas = []string{"Hi ", "there"}
	userID := uuid.New()

	var seen []string
	result, err := svc.SendStream(context.Background(), userID, "t1", "Hello",
		func(delta string) error {
			seen = append(seen, delta)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hi ", "there"}, seen)
	assert.Equal(t, "Hi there", result.Reply)

	// The assistant turn is stored assembled, same as the non-streaming path.
	messages, err := store.Messages().ListByThread(context.Background(), userID, "t1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.SenderAssistant, messages[1].Role)
	assert.Equal(t, "Hi there", messages[1].Content)
}

func TestSendStream_StoresPartialReplyWhenDeliveryStops(t *testing.T) {
	svc, store, completer := newTestService("", nil)
	completer.deltas = []string{"He", "llo ", "world"}
	userID := uuid.New()

	// The peer goes away after the second delta.
	calls := 0
	result, err := svc.SendStream(context.Background(), userID, "t1", "Hello",
		func(delta string) error {
			calls++
			if calls == 2 {
				return errors.New("write: broken pipe")
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "Hello", result.Reply)

	messages, err := store.Messages().ListByThread(context.Background(), userID, "t1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "Hello", messages[1].Content)
}

func TestTitleFromMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short message", "Hello", "Hello"},
		{"exactly five words", "one two three four five", "one two three four five"},
		{"long message truncated", "one two three four five six", "one two three four five..."},
		{"collapses whitespace", "  spaced   out    words  ", "spaced out words"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TitleFromMessage(tt.in))
		})
	}
}
