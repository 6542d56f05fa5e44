package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docintell/internal/model"
)

type fakeChannel struct {
	key    string
	msg    amqp.Publishing
	closed bool
	err    error
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.key = key
	c.msg = msg
	return c.err
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestJobPublisherPublish(t *testing.T) {
	ch := &fakeChannel{}
	p := &JobPublisher{open: func() (Channel, error) { return ch, nil }, queueName: "documents.ingest"}

	err := p.Publish(context.Background(), model.IngestJob{DocumentID: "d1", Filename: "a.txt", Data: []byte("hello")})
	require.NoError(t, err)

	assert.Equal(t, "documents.ingest", ch.key)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, "d1", ch.msg.MessageId)
	assert.True(t, ch.closed)

	var job model.IngestJob
	require.NoError(t, json.Unmarshal(ch.msg.Body, &job))
	assert.Equal(t, []byte("hello"), job.Data)
}

func TestJobPublisherErrors(t *testing.T) {
	p := &JobPublisher{open: func() (Channel, error) { return nil, errors.New("connection closed") }, queueName: "q"}
	assert.Error(t, p.Publish(context.Background(), model.IngestJob{DocumentID: "d"}))

	ch := &fakeChannel{err: errors.New("blocked")}
	p = &JobPublisher{open: func() (Channel, error) { return ch, nil }, queueName: "q"}
	assert.Error(t, p.Publish(context.Background(), model.IngestJob{DocumentID: "d"}))
	assert.True(t, ch.closed)
}
