package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/converse-chat/converse/internal/apperr"
	"github.com/converse-chat/converse/internal/models"
)

// maxAudioUpload caps the uploaded recording at 25 MB, the transcription
// API's own file limit.
const maxAudioUpload = 25 << 20

// uploadRetention is how long voice artifacts stay on disk before the
// deferred cleanup removes them. Cleanup is best effort: a crash before the
// timer fires leaves the file behind.
const uploadRetention = 10 * time.Minute

// SpeechService is the slice of the remote API the voice pipeline needs.
type SpeechService interface {
	Transcribe(ctx context.Context, path string) (text, language string, err error)
	Complete(ctx context.Context, history []models.Message) (string, error)
	Speak(ctx context.Context, text, outPath string) error
}

type VoiceHandler struct {
	speech    SpeechService
	uploadDir string
	logger    *zap.Logger
}

func NewVoiceHandler(speech SpeechService, uploadDir string, logger *zap.Logger) *VoiceHandler {
	return &VoiceHandler{
		speech:    speech,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// Handle implements POST /api/voice: multipart audio in, transcript plus
// reply plus synthesized speech out. The exchange is not persisted to a
// thread; voice turns are one-shot.
func (h *VoiceHandler) Handle(c *gin.Context) {
	file, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is required"})
		return
	}
	if file.Size > maxAudioUpload {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file too large"})
		return
	}

	inPath := filepath.Join(h.uploadDir, artifactName(file.Filename))
	if err := c.SaveUploadedFile(file, inPath); err != nil {
		h.logger.Error("save upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	h.scheduleCleanup(inPath)

	userText, language, err := h.speech.Transcribe(c.Request.Context(), inPath)
	if err != nil {
		respondError(c, h.logger, fmt.Errorf("%w: %v", apperr.ErrUpstream, err))
		return
	}
	if strings.TrimSpace(userText) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not understand the recording"})
		return
	}

	reply, err := h.speech.Complete(c.Request.Context(), []models.Message{{
		Role:    models.SenderUser,
		Content: userText,
	}})
	if err != nil {
		respondError(c, h.logger, fmt.Errorf("%w: %v", apperr.ErrUpstream, err))
		return
	}

	replyName := artifactName("reply.mp3")
	outPath := filepath.Join(h.uploadDir, replyName)
	if err := h.speech.Speak(c.Request.Context(), reply, outPath); err != nil {
		respondError(c, h.logger, fmt.Errorf("%w: %v", apperr.ErrUpstream, err))
		return
	}
	h.scheduleCleanup(outPath)

	c.JSON(http.StatusOK, gin.H{
		"userText": userText,
		"text":     reply,
		"language": language,
		"audioUrl": "/uploads/" + replyName,
	})
}

func (h *VoiceHandler) scheduleCleanup(path string) {
	time.AfterFunc(uploadRetention, func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			h.logger.Warn("remove voice artifact", zap.String("path", path), zap.Error(err))
		}
	})
}

// artifactName builds a collision-free filename: timestamp plus random
// suffix, keeping only the original extension. Concurrent uploads never
// share a name.
func artifactName(original string) string {
	suffix := make([]byte, 4)
	rand.Read(suffix)

	ext := filepath.Ext(original)
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), hex.EncodeToString(suffix), ext)
}
