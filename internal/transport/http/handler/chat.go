package handler

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"pdfchat/internal/app"
	"pdfchat/internal/model"
	"pdfchat/internal/rag"
	"pdfchat/internal/transport/http/middleware"
	"pdfchat/internal/transport/http/response"
)

const (
	HeaderMessageIndex  = "x-message-index"
	HeaderSources       = "x-sources"
	HeaderSourcesStatus = "x-sources-status"

	SourcesResolved = "resolved"
	SourcesTimeout  = "timeout"
)

type ChatHandler struct {
	chatService *app.ChatService
	log         *slog.Logger
}

type ChatRequest struct {
	Messages []rag.Message `json:"messages"`
	ChatID   string        `json:"chatId"`
}

func NewChatHandler(chatService *app.ChatService, log *slog.Logger) *ChatHandler {
	return &ChatHandler{chatService: chatService, log: log}
}

// Chat streams the answer as plain text. Retrieval results travel in the
// response headers, so they are awaited before the first token is written.
func (h *ChatHandler) Chat(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	ctx := c.Request.Context()
	turn, err := h.chatService.Start(ctx, app.ChatInput{
		UserID:     userID,
		DocumentID: req.ChatID,
		Messages:   req.Messages,
	})
	if err != nil {
		h.log.Error("start chat failed", "user_id", userID, "document_id", req.ChatID, "error", err)
		writeServiceError(c, err, "chat failed")
		return
	}

	sources, grounded, err := h.chatService.AwaitSources(ctx, turn)
	if err != nil {
		go discard(turn.Stream)
		h.log.Error("retrieve sources failed", "document_id", turn.DocumentID, "error", err)
		response.Error(c, http.StatusInternalServerError, response.CodeUpstream, "failed to retrieve document context")
		return
	}

	encoded, err := encodeSources(sources)
	if err != nil {
		go discard(turn.Stream)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "encode sources failed")
		return
	}
	status := SourcesResolved
	if !grounded {
		status = SourcesTimeout
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header(HeaderMessageIndex, strconv.Itoa(turn.MessageIndex))
	c.Header(HeaderSources, encoded)
	c.Header(HeaderSourcesStatus, status)
	c.Status(http.StatusOK)
	flusher.Flush()

	var answer strings.Builder
	for token := range turn.Stream.Tokens {
		answer.WriteString(token)
		if _, err := c.Writer.WriteString(token); err != nil {
			// Client went away; keep draining so the generator can exit.
			continue
		}
		flusher.Flush()
	}

	if err := turn.Stream.Err(); err != nil {
		h.log.Error("chat stream failed", "document_id", turn.DocumentID, "error", err)
		return
	}
	h.chatService.SaveAnswer(ctx, turn, answer.String())
}

func (h *ChatHandler) History(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	messages, err := h.chatService.History(c.Request.Context(), userID, c.Query("documentId"))
	if err != nil {
		writeServiceError(c, err, "Failed to fetch messages")
		return
	}
	if messages == nil {
		messages = []model.ChatMessage{}
	}
	response.OK(c, messages)
}

func encodeSources(sources []model.Source) (string, error) {
	if sources == nil {
		sources = []model.Source{}
	}
	raw, err := json.Marshal(sources)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func discard(s *rag.Stream) {
	for range s.Tokens {
	}
}
