package http

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	appsvc "pdfchat/internal/app"
	"pdfchat/internal/bootstrap"
	"pdfchat/internal/config"
	"pdfchat/internal/repository"
	"pdfchat/internal/transport/http/handler"
	"pdfchat/internal/transport/http/middleware"
)

type Handlers struct {
	Auth     *handler.AuthHandler
	Document *handler.DocumentHandler
	Chat     *handler.ChatHandler
	Health   *handler.HealthHandler
}

// New wires repositories, services and handlers on top of the bootstrapped
// clients.
func New(app *bootstrap.App) *gin.Engine {
	cfg := app.Config
	userRepo := repository.NewUserRepository(app.MySQL)
	documentRepo := repository.NewDocumentRepository(app.MySQL)
	messageRepo := repository.NewChatMessageRepository(app.MySQL)

	authService := appsvc.NewAuthService(
		userRepo,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	documentService := appsvc.NewDocumentService(
		documentRepo,
		app.Fetcher,
		app.EmbeddingGateway,
		app.Vectors,
		app.Files,
		app.History,
		cfg.Ingest,
		app.Log.With("component", "documents"),
	)
	chatService := appsvc.NewChatService(
		documentRepo,
		messageRepo,
		app.Publisher,
		app.History,
		app.ChatGateway,
		app.EmbeddingGateway,
		app.Vectors,
		cfg.Chat,
		cfg.LLM.MaxContextMessage,
		app.Log.With("component", "chat"),
	)

	checks := map[string]handler.HealthCheck{
		"mysql": func(ctx context.Context) error {
			sqlDB, err := app.MySQL.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		},
		"rabbitmq": func(context.Context) error {
			if app.MQConn == nil || app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		},
		"vector_store": app.Vectors.Ping,
	}

	return NewRouter(cfg, app.Log, Handlers{
		Auth:     handler.NewAuthHandler(authService),
		Document: handler.NewDocumentHandler(documentService, app.Log.With("component", "http")),
		Chat:     handler.NewChatHandler(chatService, app.Log.With("component", "http")),
		Health:   handler.NewHealthHandler(cfg.App.Name, cfg.App.Env, app.StartedAt, checks),
	})
}

func NewRouter(cfg *config.Config, log *slog.Logger, h Handlers) *gin.Engine {
	gin.SetMode(cfg.App.GinMode)
	router := gin.New()
	router.Use(requestLogger(log), gin.Recovery())

	router.GET("/healthz", h.Health.Check)

	auth := middleware.AuthJWT(cfg.Auth.JWTSecret)
	limiter := middleware.NewUserRateLimiter(cfg.Chat.RatePerMinute)

	v1 := router.Group("/api/v1")
	v1.GET("/healthz", h.Health.Check)

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", h.Auth.Register)
	authGroup.POST("/login", h.Auth.Login)
	authGroup.GET("/me", auth, h.Auth.Me)

	protected := v1.Group("")
	protected.Use(auth)
	protected.POST("/vectorize", h.Document.Vectorize)
	protected.GET("/documents", h.Document.List)
	protected.GET("/documents/:id", h.Document.Get)
	protected.DELETE("/documents/:id", h.Document.Delete)
	protected.POST("/chat", middleware.RateLimit(limiter), h.Chat.Chat)
	protected.GET("/messages", h.Chat.History)

	return router
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}
