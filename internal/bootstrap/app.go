package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"pdfchat/internal/ai"
	"pdfchat/internal/cache"
	"pdfchat/internal/config"
	"pdfchat/internal/filestore"
	"pdfchat/internal/logger"
	"pdfchat/internal/model"
	mysqlClient "pdfchat/internal/platform/mysql"
	rabbitmqClient "pdfchat/internal/platform/rabbitmq"
	redisClient "pdfchat/internal/platform/redis"
	"pdfchat/internal/repository"
	"pdfchat/internal/vectorstore"
	"pdfchat/internal/worker"
)

type App struct {
	Config *config.Config
	Log    *slog.Logger

	MySQL   *gorm.DB
	Redis   *redis.Client
	MQConn  *amqp.Connection
	Vectors vectorstore.Store

	History          *cache.HistoryCache
	Publisher        *rabbitmqClient.MessagePublisher
	MessageWorker    *worker.MessagePersistWorker
	ChatGateway      *ai.ChatGateway
	EmbeddingGateway *ai.EmbeddingGateway
	Files            filestore.Deleter
	Fetcher          *filestore.Fetcher

	StartedAt time.Time
}

// New connects every dependency once. Anything opened before a failure is
// closed again.
func New(ctx context.Context) (_ *App, err error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log := logger.New(cfg.Log, cfg.App.Name, os.Stdout)
	a := &App{Config: cfg, Log: log, StartedAt: time.Now()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.MySQL, err = mysqlClient.New(ctx, cfg.MySQLDSN(), log)
	if err != nil {
		return nil, err
	}
	if err := a.MySQL.AutoMigrate(&model.User{}, &model.Document{}, &model.ChatMessage{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	a.Redis, err = redisClient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.History = cache.NewHistoryCache(
		a.Redis,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)

	a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}
	a.Publisher = rabbitmqClient.NewMessagePublisher(a.MQConn, cfg.RabbitMQ.MessagePersistQueue)

	a.Vectors, err = vectorstore.Open(ctx, cfg.VectorStore)
	if err != nil {
		return nil, fmt.Errorf("open vector store failed: %w", err)
	}

	a.Files, err = filestore.New(cfg.FileStore, &http.Client{Timeout: 15 * time.Second})
	if err != nil {
		return nil, err
	}
	a.Fetcher = filestore.NewFetcher(&http.Client{}, cfg.Ingest.MaxPDFSizeBytes())

	a.ChatGateway = ai.NewChatGateway(cfg.LLM)
	a.EmbeddingGateway = ai.NewEmbeddingGateway(cfg.LLM)
	for name, validate := range map[string]func() error{
		"chat model":      a.ChatGateway.Validate,
		"embedding model": a.EmbeddingGateway.Validate,
	} {
		if err := validate(); err != nil {
			log.Warn("llm gateway not usable until configured", "gateway", name, "error", err)
		}
	}

	messageRepo := repository.NewChatMessageRepository(a.MySQL)
	a.MessageWorker = worker.NewMessagePersistWorker(
		a.MQConn,
		messageRepo,
		repository.NewDocumentRepository(a.MySQL),
		a.History,
		cfg.RabbitMQ.MessagePersistQueue,
		log,
	)
	if err := a.MessageWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start message worker failed: %w", err)
	}

	log.Info("bootstrap complete",
		"vector_backend", cfg.VectorStore.Backend,
		"chat_model", a.ChatGateway.ModelName(),
		"file_store", cfg.FileStore.Provider,
	)
	return a, nil
}

// Close releases resources in reverse dependency order: stop consuming before
// the broker connection goes, and the database last.
func (a *App) Close() error {
	var errs []error
	if a.MessageWorker != nil {
		a.MessageWorker.Close()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Vectors != nil {
		a.Vectors.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MySQL != nil {
		if sqlDB, err := a.MySQL.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
