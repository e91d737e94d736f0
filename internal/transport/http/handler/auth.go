package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfchat/internal/app"
	"pdfchat/internal/model"
	"pdfchat/internal/transport/http/middleware"
	"pdfchat/internal/transport/http/response"
)

// AuthHandler stands in for the hosted identity provider: it issues the
// bearer tokens every document and chat route requires.
type AuthHandler struct {
	authService *app.AuthService
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email,max=128"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

type userView struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type sessionView struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

func NewAuthHandler(authService *app.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Register(c.Request.Context(), app.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeAuthError(c, err, "register failed")
		return
	}
	response.OK(c, newSessionView(result))
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Login(c.Request.Context(), app.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		writeAuthError(c, err, "login failed")
		return
	}
	response.OK(c, newSessionView(result))
}

// Me resolves the token subject. A token for a deleted account is treated
// like any other invalid credential.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	user, err := h.authService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		writeAuthError(c, err, "fetch current user failed")
		return
	}
	if user == nil {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found")
		return
	}
	response.OK(c, newUserView(user))
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return false
	}
	return true
}

func newUserView(user *model.User) userView {
	return userView{ID: user.ID, Username: user.Username, Email: user.Email}
}

func newSessionView(result *app.AuthResult) sessionView {
	return sessionView{Token: result.Token, User: newUserView(result.User)}
}
