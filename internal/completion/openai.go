// Package completion wraps the remote language-model API. Everything else in
// the server treats it as an opaque request/response dependency: turns go in,
// reply text comes out.
package completion

import (
	"context"
	"fmt"
	"io"
	"os"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/converse-chat/converse/internal/models"
)

const (
	defaultChatModel = openai.GPT4oMini

	systemInstruction = "You are a helpful assistant. Keep your answers concise " +
		"and directly related to the user's question."
)

type Client struct {
	api    *openai.Client
	model  string
	logger *zap.Logger
}

func New(apiKey string, logger *zap.Logger) *Client {
	return &Client{
		api:    openai.NewClient(apiKey),
		model:  defaultChatModel,
		logger: logger,
	}
}

// Complete sends the conversation history and returns the reply text. The
// history is expected oldest-first, ending with the user's latest turn.
func (c *Client) Complete(ctx context.Context, history []models.Message) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toChatMessages(history),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteStream streams the reply, invoking onDelta for every text chunk,
// and returns the assembled reply once the stream ends. An onDelta error
// (e.g. the websocket peer went away) stops the stream; the partial reply is
// still returned so the caller can persist it.
func (c *Client) CompleteStream(ctx context.Context, history []models.Message, onDelta func(delta string) error) (string, error) {
	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toChatMessages(history),
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion stream: %w", err)
	}
	defer stream.Close()

	var reply string
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return reply, nil
		}
		if err != nil {
			return reply, fmt.Errorf("receive completion chunk: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		reply += delta
		if err := onDelta(delta); err != nil {
			return reply, nil
		}
	}
}

// Transcribe runs speech-to-text on the audio file at path and returns the
// transcript plus the detected language.
func (c *Client) Transcribe(ctx context.Context, path string) (text, language string, err error) {
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: path,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return "", "", fmt.Errorf("transcription: %w", err)
	}
	return resp.Text, resp.Language, nil
}

// Speak synthesizes text to an mp3 written at outPath.
func (c *Client) Speak(ctx context.Context, text, outPath string) error {
	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: openai.TTSModel1,
		Input: text,
		Voice: openai.VoiceAlloy,
	})
	if err != nil {
		return fmt.Errorf("speech synthesis: %w", err)
	}
	defer resp.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create speech file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp); err != nil {
		return fmt.Errorf("write speech file: %w", err)
	}
	return nil
}

func toChatMessages(history []models.Message) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemInstruction,
	})
	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Role == models.SenderAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return messages
}
