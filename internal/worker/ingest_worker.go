package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"docintell/internal/app"
	"docintell/internal/model"
)

// Processor runs the ingestion pipeline for one queued document.
type Processor interface {
	Process(ctx context.Context, documentID string, data []byte) error
}

// IngestWorker consumes ingestion jobs. Every decodable job is acked once
// processed: failures are recorded on the document and the core never
// retries them.
type IngestWorker struct {
	conn      *amqp.Connection
	processor Processor
	queueName string
	prefetch  int
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, processor Processor, queueName string, prefetch int, logger *slog.Logger) *IngestWorker {
	if prefetch <= 0 {
		prefetch = 2
	}
	return &IngestWorker{
		conn:      conn,
		processor: processor,
		queueName: queueName,
		prefetch:  prefetch,
		logger:    logger,
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if _, err := ch.QueueDeclare(w.queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}
	if err := ch.Qos(w.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set worker qos failed: %w", err)
	}
	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	// prefetch bounds how many jobs are in flight at once.
	for i := 0; i < w.prefetch; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					if w.handle(workerCtx, d.Body) {
						_ = d.Ack(false)
					} else {
						_ = d.Nack(false, false)
					}
				}
			}
		}()
	}

	go func() {
		w.wg.Wait()
		_ = ch.Close()
	}()
	w.logger.Info("ingest worker started", "queue", w.queueName, "prefetch", w.prefetch)
	return nil
}

// handle reports whether the delivery should be acked.
func (w *IngestWorker) handle(ctx context.Context, body []byte) bool {
	var job model.IngestJob
	if err := json.Unmarshal(body, &job); err != nil || job.DocumentID == "" {
		w.logger.Error("decode ingest job failed", "error", err)
		return false
	}

	err := w.processor.Process(ctx, job.DocumentID, job.Data)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrInvalidTransition), errors.Is(err, app.ErrNotFound):
		w.logger.Info("skip stale ingest job", "document_id", job.DocumentID, "reason", err)
	default:
		w.logger.Warn("ingest job failed", "document_id", job.DocumentID, "error", err)
	}
	return true
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
