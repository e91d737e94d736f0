package response

import "github.com/gin-gonic/gin"

const (
	CodeBadRequest         = 40000
	CodeUsernameExists     = 40001
	CodeEmailExists        = 40002
	CodeDocumentLimit      = 40003
	CodeInvalidDocument    = 40004
	CodeUnauthorized       = 40100
	CodeInvalidCredentials = 40101
	CodeDocumentNotFound   = 40401
	CodeRateLimited        = 42900
	CodeInternalServer     = 50000
	CodeUpstream           = 50200
)

// ErrorBody is the JSON shape of every failed request.
type ErrorBody struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

// OK writes data as the response body without an envelope.
func OK(c *gin.Context, data any) {
	c.JSON(200, data)
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, ErrorBody{
		Code:  code,
		Error: message,
	})
}
