package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docintell/internal/pkg/logging"
)

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func TestNATSNotifierPublishesJSON(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewNATSNotifier(pub, "docintell.documents.status", logging.Discard())

	n.DocumentStatusChanged(context.Background(), DocumentStatusChanged{
		DocumentID: "d1",
		Filename:   "fox.txt",
		FileType:   "txt",
		Status:     "completed",
		ChunkCount: 1,
		At:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})

	require.Len(t, pub.payloads, 1)
	assert.Equal(t, "docintell.documents.status", pub.subjects[0])
	var got map[string]any
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.Equal(t, "d1", got["document_id"])
	assert.Equal(t, "completed", got["status"])
	assert.NotContains(t, got, "error")
}

func TestNATSNotifierSwallowsPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats: connection closed")}
	n := NewNATSNotifier(pub, "s", logging.Discard())
	assert.NotPanics(t, func() {
		n.DocumentStatusChanged(context.Background(), DocumentStatusChanged{DocumentID: "d", Status: "failed"})
	})
	assert.Len(t, pub.payloads, 1)
}
