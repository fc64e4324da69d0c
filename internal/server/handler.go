package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"analyst-rag/internal/config"
	"analyst-rag/internal/helper"
	"analyst-rag/internal/models"
	"analyst-rag/internal/parser"
	"analyst-rag/internal/rag"
	"analyst-rag/internal/response"
)

// Assistant is the part of the pipeline the HTTP API calls.
type Assistant interface {
	Ingest(ctx context.Context, filePath string) (*rag.IngestResult, error)
	Answer(ctx context.Context, query string, history []models.Turn) (*models.Answer, error)
	Summarize(ctx context.Context, source string) (string, error)
	Clear(ctx context.Context) error
}

var _ Assistant = (*rag.Pipeline)(nil)

type Handler struct {
	assistant Assistant
	cfg       config.ServerConfig
	startedAt time.Time
}

type AskRequest struct {
	Question string        `json:"question" binding:"required"`
	History  []models.Turn `json:"history"`
}

type SummaryResponse struct {
	Source  string `json:"source"`
	Summary string `json:"summary"`
}

func NewHandler(assistant Assistant, cfg config.ServerConfig) *Handler {
	return &Handler{assistant: assistant, cfg: cfg, startedAt: time.Now()}
}

func (h *Handler) Health(c *gin.Context) {
	OK(c, gin.H{
		"status":     "ok",
		"uptime_sec": int(time.Since(h.startedAt).Seconds()),
	})
}

// UploadDocument accepts a multipart form with "file", stores it under the
// upload directory and ingests it.
func (h *Handler) UploadDocument(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		Error(c, http.StatusBadRequest, CodeBadRequest, "missing file")
		return
	}
	maxSize := int64(h.cfg.MaxUploadMB) << 20
	if maxSize > 0 && file.Size > maxSize {
		Error(c, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("file too large (max %dMB)", h.cfg.MaxUploadMB))
		return
	}
	name := filepath.Base(file.Filename)
	if name == "." || name == string(filepath.Separator) {
		Error(c, http.StatusBadRequest, CodeBadRequest, "invalid file name")
		return
	}
	if !parser.Supported(name) {
		Error(c, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf(models.UnsupportedFileMessage, strings.ToLower(filepath.Ext(name))))
		return
	}

	if err := helper.CreateFolder(h.cfg.UploadDir); err != nil {
		Error(c, http.StatusInternalServerError, CodeInternalServer, "failed to store file")
		return
	}
	dst := filepath.Join(h.cfg.UploadDir, name)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		log.Error().Err(err).Str("file", dst).Msg("Error saving upload")
		Error(c, http.StatusInternalServerError, CodeInternalServer, "failed to store file")
		return
	}

	result, err := h.assistant.Ingest(c.Request.Context(), dst)
	if err != nil {
		h.fail(c, "ingest failed", err)
		return
	}
	OK(c, result)
}

func (h *Handler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		Error(c, http.StatusBadRequest, CodeBadRequest, "invalid request payload")
		return
	}

	ans, err := h.assistant.Answer(c.Request.Context(), req.Question, req.History)
	if err != nil {
		h.fail(c, "answer failed", err)
		return
	}
	OK(c, response.NewView(ans))
}

func (h *Handler) Summary(c *gin.Context) {
	source := c.Param("name")
	summary, err := h.assistant.Summarize(c.Request.Context(), source)
	if err != nil {
		h.fail(c, "summary failed", err)
		return
	}
	OK(c, SummaryResponse{Source: source, Summary: summary})
}

func (h *Handler) ClearDocuments(c *gin.Context) {
	if err := h.assistant.Clear(c.Request.Context()); err != nil {
		h.fail(c, "clear failed", err)
		return
	}
	OK(c, gin.H{"cleared": true})
}

func (h *Handler) fail(c *gin.Context, action string, err error) {
	switch {
	case errors.Is(err, parser.ErrUnsupportedFormat):
		Error(c, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, rag.ErrDocumentNotFound):
		Error(c, http.StatusNotFound, CodeDocumentNotFound, err.Error())
	case errors.Is(err, rag.ErrDocumentTooLarge):
		Error(c, http.StatusUnprocessableEntity, CodeDocumentTooLarge, err.Error())
	default:
		log.Error().Err(err).Msg(action)
		Error(c, http.StatusInternalServerError, CodeInternalServer, action+": "+err.Error())
	}
}
