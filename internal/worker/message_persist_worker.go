package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"pdfchat/internal/model"
	"pdfchat/internal/platform/rabbitmq"
)

var (
	errMalformedMessage = errors.New("malformed chat message payload")
	errDocumentDeleted  = errors.New("document no longer exists")
)

type MessageStore interface {
	Create(ctx context.Context, message *model.ChatMessage) error
}

type DocumentChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type HistoryInvalidator interface {
	Invalidate(ctx context.Context, documentID string) error
}

// MessagePersistWorker drains the persistence queue into MySQL. It is the
// write side of the fire-and-forget assistant message path.
type MessagePersistWorker struct {
	conn      *amqp.Connection
	store     MessageStore
	docs      DocumentChecker
	history   HistoryInvalidator
	queueName string
	log       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMessagePersistWorker(
	conn *amqp.Connection,
	store MessageStore,
	docs DocumentChecker,
	history HistoryInvalidator,
	queueName string,
	log *slog.Logger,
) *MessagePersistWorker {
	return &MessagePersistWorker{
		conn:      conn,
		store:     store,
		docs:      docs,
		history:   history,
		queueName: queueName,
		log:       log.With("worker", "message_persist", "queue", queueName),
	}
}

func (w *MessagePersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.log.Warn("delivery channel closed")
					return
				}
				err := w.Handle(workerCtx, d.Body)
				if errors.Is(err, errDocumentDeleted) {
					w.log.Info("dropped message for deleted document", "error", err)
					_ = d.Ack(false)
					continue
				}
				if err != nil {
					w.log.Error("persist chat message failed", "error", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.log.Info("message persist worker started")
	return nil
}

// Handle decodes and persists one queued message. Messages whose document was
// deleted while the answer streamed are rejected with errDocumentDeleted; the
// chat_messages foreign key cascades deletes and refuses inserts that race
// past this check. Cache invalidation failures are logged only; the row is
// already durable at that point.
func (w *MessagePersistWorker) Handle(ctx context.Context, body []byte) error {
	var msg model.ChatMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", errMalformedMessage, err)
	}
	if msg.DocumentID == "" || msg.Role == "" {
		return errMalformedMessage
	}
	msg.ID = 0

	exists, err := w.docs.Exists(ctx, msg.DocumentID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", errDocumentDeleted, msg.DocumentID)
	}

	if err := w.store.Create(ctx, &msg); err != nil {
		return err
	}

	if w.history != nil {
		if err := w.history.Invalidate(ctx, msg.DocumentID); err != nil {
			w.log.Warn("invalidate history cache failed", "document_id", msg.DocumentID, "error", err)
		}
	}
	w.log.Debug("chat message persisted", "document_id", msg.DocumentID, "role", msg.Role, "id", msg.ID)
	return nil
}

func (w *MessagePersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
