// Package core implements the chat orchestration logic between the message
// store and the remote completion service.
package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/converse-chat/converse/internal/apperr"
	"github.com/converse-chat/converse/internal/models"
	"github.com/converse-chat/converse/internal/repository"
)

// ReplyFallback is stored in place of an empty or whitespace-only reply from
// the remote service, so the non-empty-content invariant on messages holds.
const ReplyFallback = "I'm sorry, I couldn't come up with a response. Please try again."

// historyWindow caps how many prior turns are forwarded to the remote
// service as conversational context.
const historyWindow = 20

// titleWords is how many leading words of the first message become the title
// of a lazily created thread.
const titleWords = 5

// Completer is the remote completion service as the orchestrator sees it.
type Completer interface {
	Complete(ctx context.Context, history []models.Message) (string, error)
	CompleteStream(ctx context.Context, history []models.Message, onDelta func(delta string) error) (string, error)
}

// ChatResult is what one chat turn produces: the reply text and the two
// message records that were appended.
type ChatResult struct {
	Reply   string           `json:"reply"`
	History []models.Message `json:"history"`
}

type ChatService struct {
	threads   repository.ThreadRepository
	messages  repository.MessageRepository
	completer Completer
	logger    *zap.Logger
}

func NewChatService(
	threads repository.ThreadRepository,
	messages repository.MessageRepository,
	completer Completer,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		threads:   threads,
		messages:  messages,
		completer: completer,
		logger:    logger,
	}
}

// Send runs one chat turn, strictly in order:
//
//  1. validate message and thread ID
//  2. append the user message
//  3. call the remote completion service with recent thread history
//  4. append the assistant reply (fallback text if the reply was blank)
//  5. lazily create the thread, titled from the user's message
//
// There is no transaction across these steps. If the remote call fails, the
// user message from step 2 stays put and the turn reports ErrUpstream; a
// retry re-appends the user message. At-least-once, by choice.
func (s *ChatService) Send(ctx context.Context, userID uuid.UUID, threadID, text string) (*ChatResult, error) {
	return s.send(ctx, userID, threadID, text, nil)
}

// SendStream is Send with the reply streamed through onDelta as it arrives.
// Persistence semantics are identical; the full reply is stored at the end.
func (s *ChatService) SendStream(ctx context.Context, userID uuid.UUID, threadID, text string, onDelta func(delta string) error) (*ChatResult, error) {
	return s.send(ctx, userID, threadID, text, onDelta)
}

func (s *ChatService) send(ctx context.Context, userID uuid.UUID, threadID, text string, onDelta func(delta string) error) (*ChatResult, error) {
	text = strings.TrimSpace(text)
	if text == "" || threadID == "" {
		return nil, fmt.Errorf("%w: message and threadId are required", apperr.ErrValidation)
	}

	userMsg, err := s.messages.Create(ctx, userID, threadID, models.SenderUser, text)
	if err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	history, err := s.messages.ListRecent(ctx, userID, threadID, historyWindow)
	if err != nil {
		// The turn can still proceed on the current message alone.
		s.logger.Warn("load thread history failed", zap.Error(err))
		history = []models.Message{*userMsg}
	}

	var reply string
	if onDelta != nil {
		reply, err = s.completer.CompleteStream(ctx, history, onDelta)
	} else {
		reply, err = s.completer.Complete(ctx, history)
	}
	if err != nil {
		s.logger.Error("completion call failed",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = ReplyFallback
	}

	botMsg, err := s.messages.Create(ctx, userID, threadID, models.SenderAssistant, reply)
	if err != nil {
		return nil, fmt.Errorf("store assistant message: %w", err)
	}

	// Lazy thread creation. Create is idempotent for the owner, so this is a
	// no-op on every turn after the first.
	if _, err := s.threads.Create(ctx, userID, threadID, TitleFromMessage(text)); err != nil {
		// The messages are already stored; a failed upsert only costs the
		// thread list entry until the next turn.
		s.logger.Warn("upsert thread failed",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
	}

	return &ChatResult{
		Reply:   reply,
		History: []models.Message{*userMsg, *botMsg},
	}, nil
}

// TitleFromMessage derives a short thread title from the first few words of
// a message.
func TitleFromMessage(text string) string {
	words := strings.Fields(text)
	if len(words) > titleWords {
		words = words[:titleWords]
		return strings.Join(words, " ") + "..."
	}
	return strings.Join(words, " ")
}
