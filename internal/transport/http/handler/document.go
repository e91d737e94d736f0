package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pdfchat/internal/app"
	"pdfchat/internal/transport/http/middleware"
	"pdfchat/internal/transport/http/response"
)

const ingestSuccessText = "Successfully embedded PDF."

type DocumentHandler struct {
	documentService *app.DocumentService
	log             *slog.Logger
}

type VectorizeRequest struct {
	PDFTitle string `json:"pdfTitle" binding:"required,max=256"`
	PDFURL   string `json:"pdfUrl" binding:"required,url,max=1024"`
}

type cleanupStatus struct {
	Step  string `json:"step"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func NewDocumentHandler(documentService *app.DocumentService, log *slog.Logger) *DocumentHandler {
	return &DocumentHandler{documentService: documentService, log: log}
}

func (h *DocumentHandler) Vectorize(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "You must be logged in to upload a PDF.")
		return
	}

	var req VectorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "pdfTitle and a valid pdfUrl are required")
		return
	}

	doc, err := h.documentService.Ingest(c.Request.Context(), app.IngestInput{
		UserID: userID,
		Title:  req.PDFTitle,
		URL:    req.PDFURL,
	})
	if err != nil {
		h.log.Error("ingest document failed", "user_id", userID, "url", req.PDFURL, "error", err)
		writeServiceError(c, err, ingestErrorMessage(err))
		return
	}

	response.OK(c, gin.H{"text": ingestSuccessText, "id": doc.ID})
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docs, err := h.documentService.List(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, err, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	doc, err := h.documentService.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeServiceError(c, err, "fetch document failed")
		return
	}
	response.OK(c, doc)
}

// Delete always reports success once the record is gone; vendor cleanup
// failures are listed and logged.
func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	id := c.Param("id")
	results, err := h.documentService.Delete(c.Request.Context(), userID, id)
	if err != nil {
		writeServiceError(c, err, "delete document failed")
		return
	}

	cleanup := make([]cleanupStatus, 0, len(results))
	for _, r := range results {
		status := cleanupStatus{Step: r.Step, OK: r.Err == nil}
		if r.Err != nil {
			status.Error = r.Err.Error()
			h.log.Warn("document cleanup step failed", "document_id", id, "step", r.Step, "error", r.Err)
		}
		cleanup = append(cleanup, status)
	}

	response.OK(c, gin.H{
		"message": "Document and associated chat messages deleted successfully.",
		"cleanup": cleanup,
	})
}

// ingestErrorMessage surfaces the underlying failure to the uploader, who
// cannot act on a generic message.
func ingestErrorMessage(err error) string {
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return "failed to process your document"
}
