package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"pdfchat/internal/model"
)

const prefetchCount = 16

type ConversationWriter interface {
	Save(ctx context.Context, conv *model.Conversation) error
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeRequeue
	outcomeDrop
)

// TurnPersistWorker drains conversation snapshots into durable storage.
// Writes are idempotent per message id, so redelivery is safe.
type TurnPersistWorker struct {
	conn      *amqp.Connection
	writer    ConversationWriter
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTurnPersistWorker(conn *amqp.Connection, writer ConversationWriter, queueName string) *TurnPersistWorker {
	return &TurnPersistWorker{
		conn:      conn,
		writer:    writer,
		queueName: queueName,
	}
}

func (w *TurnPersistWorker) Start(ctx context.Context) error {
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
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
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
					return
				}
				switch w.handle(workerCtx, d.Body, d.Redelivered) {
				case outcomeAck:
					_ = d.Ack(false)
				case outcomeRequeue:
					_ = d.Nack(false, true)
				default:
					_ = d.Nack(false, false)
				}
			}
		}
	}()

	return nil
}

// handle persists one snapshot. A storage failure is retried once through
// redelivery; a second failure or an undecodable body is dropped.
func (w *TurnPersistWorker) handle(ctx context.Context, body []byte, redelivered bool) outcome {
	var conv model.Conversation
	if err := json.Unmarshal(body, &conv); err != nil {
		log.Printf("worker decode conversation failed: %v", err)
		return outcomeDrop
	}
	if conv.ChatID == "" {
		log.Printf("worker dropped conversation without chat id")
		return outcomeDrop
	}

	if err := w.writer.Save(ctx, &conv); err != nil {
		log.Printf("worker persist chat %s turn %s failed: %v", conv.ChatID, conv.TurnID, err)
		if redelivered {
			return outcomeDrop
		}
		return outcomeRequeue
	}
	return outcomeAck
}

func (w *TurnPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
