// Package events announces document status changes to other services.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

type DocumentStatusChanged struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	Status     string    `json:"status"`
	ChunkCount int       `json:"chunk_count,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Notifier is told about every document status transition. Delivery is best
// effort: implementations log failures instead of returning them.
type Notifier interface {
	DocumentStatusChanged(ctx context.Context, event DocumentStatusChanged)
}

type Nop struct{}

func (Nop) DocumentStatusChanged(context.Context, DocumentStatusChanged) {}

// Publisher is the slice of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type NATSNotifier struct {
	pub     Publisher
	subject string
	logger  *slog.Logger
}

func NewNATSNotifier(pub Publisher, subject string, logger *slog.Logger) *NATSNotifier {
	return &NATSNotifier{pub: pub, subject: subject, logger: logger}
}

var _ Publisher = (*nats.Conn)(nil)

func (n *NATSNotifier) DocumentStatusChanged(_ context.Context, event DocumentStatusChanged) {
	if err := n.publish(event); err != nil {
		n.logger.Warn("publish document status failed",
			"document_id", event.DocumentID, "status", event.Status, "error", err)
	}
}

func (n *NATSNotifier) publish(event DocumentStatusChanged) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return n.pub.Publish(n.subject, payload)
}
