package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfchat/internal/ai"
	"pdfchat/internal/app"
	"pdfchat/internal/filestore"
	"pdfchat/internal/transport/http/response"
	"pdfchat/internal/vectorstore"
)

func writeAuthError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrUsernameExists):
		response.Error(c, http.StatusBadRequest, response.CodeUsernameExists, err.Error())
	case errors.Is(err, app.ErrEmailExists):
		response.Error(c, http.StatusBadRequest, response.CodeEmailExists, err.Error())
	case errors.Is(err, app.ErrInvalidCredential):
		response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, err.Error())
	default:
		writeServiceError(c, err, fallback)
	}
}

// writeServiceError maps service errors onto status codes. fallback is used
// for anything unrecognised so internal details stay in the logs.
func writeServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrUnauthorized):
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "unauthorized")
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, app.ErrDocumentNotFound.Error())
	case errors.Is(err, app.ErrDocumentLimit):
		response.Error(c, http.StatusBadRequest, response.CodeDocumentLimit, app.ErrDocumentLimit.Error())
	case errors.Is(err, app.ErrInvalidDocument):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidDocument, err.Error())
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrMessageEmpty):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrIndexFailed):
		response.Error(c, http.StatusInternalServerError, response.CodeUpstream, app.ErrIndexFailed.Error())
	case errors.Is(err, app.ErrPersistMessage):
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, app.ErrPersistMessage.Error())
	case errors.Is(err, ai.ErrMissingAPIKey),
		errors.Is(err, ai.ErrInvalidAPIKey),
		errors.Is(err, ai.ErrLLMConfig),
		errors.Is(err, vectorstore.ErrMissingConfig),
		errors.Is(err, filestore.ErrMissingCredentials):
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, err.Error())
	case errors.Is(err, filestore.ErrFetch):
		response.Error(c, http.StatusInternalServerError, response.CodeUpstream, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
