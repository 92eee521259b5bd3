package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/converse-chat/converse/internal/middleware"
	"github.com/converse-chat/converse/internal/repository"
)

type ThreadHandler struct {
	threads  repository.ThreadRepository
	messages repository.MessageRepository
	logger   *zap.Logger
}

func NewThreadHandler(
	threads repository.ThreadRepository,
	messages repository.MessageRepository,
	logger *zap.Logger,
) *ThreadHandler {
	return &ThreadHandler{
		threads:  threads,
		messages: messages,
		logger:   logger,
	}
}

type createThreadRequest struct {
	ThreadID string `json:"threadId" binding:"required"`
	Title    string `json:"title"`
}

// List handles GET /api/thread: the caller's threads, newest first.
func (h *ThreadHandler) List(c *gin.Context) {
	threads, err := h.threads.ListByUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, threads)
}

// Create handles POST /api/thread. Creating a thread the caller already owns
// returns the existing record unchanged.
func (h *ThreadHandler) Create(c *gin.Context) {
	var req createThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	thread, err := h.threads.Create(c.Request.Context(), middleware.GetUserID(c), req.ThreadID, req.Title)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

// Get handles GET /api/thread/:threadId: the thread plus its messages,
// oldest first. Absent and foreign-owned both read as 404.
func (h *ThreadHandler) Get(c *gin.Context) {
	userID := middleware.GetUserID(c)
	threadID := c.Param("threadId")

	thread, err := h.threads.Get(c.Request.Context(), userID, threadID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if thread == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		return
	}

	messages, err := h.messages.ListByThread(c.Request.Context(), userID, threadID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"thread":   thread,
		"messages": messages,
	})
}

// Delete handles DELETE /api/thread/:threadId. The thread and all of its
// messages go together.
func (h *ThreadHandler) Delete(c *gin.Context) {
	deleted, err := h.threads.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("threadId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "thread deleted"})
}

// Clear handles DELETE /api/thread/clear: wipes every thread the caller
// owns. Irreversible; the client confirms with the user before calling.
func (h *ThreadHandler) Clear(c *gin.Context) {
	count, err := h.threads.Clear(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "threads cleared",
		"deleted": count,
	})
}

// History handles GET /api/history/:threadId: just the messages, oldest
// first, 404 when there are none.
func (h *ThreadHandler) History(c *gin.Context) {
	messages, err := h.messages.ListByThread(c.Request.Context(), middleware.GetUserID(c), c.Param("threadId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if len(messages) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no history for this thread"})
		return
	}
	c.JSON(http.StatusOK, messages)
}
