package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/converse-chat/converse/internal/core"
	"github.com/converse-chat/converse/internal/middleware"
)

type ChatHandler struct {
	chat     *core.ChatService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewChatHandler(chat *core.ChatService, clientURL string, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chat: chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients send no Origin header.
				return origin == "" || origin == clientURL
			},
		},
		logger: logger,
	}
}

type chatRequest struct {
	Message  string `json:"message" binding:"required"`
	ThreadID string `json:"threadId" binding:"required"`
}

// Send handles POST /api/chat: one full request/response chat turn.
func (h *ChatHandler) Send(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.chat.Send(c.Request.Context(), middleware.GetUserID(c), req.ThreadID, req.Message)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// streamFrame is one websocket message on the streaming chat socket. Exactly
// one of Delta, Reply (with Done), or Error is set.
type streamFrame struct {
	Delta string `json:"delta,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

// Stream handles GET /api/chat/stream. The client upgrades to a websocket
// and sends one chatRequest; the reply arrives as delta frames followed by a
// done frame. Persistence matches Send: both turns are stored, and if the
// peer disconnects mid-stream the partial reply is stored anyway.
func (h *ChatHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var req chatRequest
	if err := conn.ReadJSON(&req); err != nil {
		conn.WriteJSON(streamFrame{Error: "expected {message, threadId}"})
		return
	}

	result, err := h.chat.SendStream(c.Request.Context(), middleware.GetUserID(c), req.ThreadID, req.Message,
		func(delta string) error {
			return conn.WriteJSON(streamFrame{Delta: delta})
		},
	)
	if err != nil {
		conn.WriteJSON(streamFrame{Error: err.Error()})
		return
	}

	conn.WriteJSON(streamFrame{Done: true, Reply: result.Reply})
}
