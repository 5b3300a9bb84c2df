package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"truck-event-scorer/internal/models"
	"truck-event-scorer/internal/scoring"
)

type publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher emits scored records as JSON to a JetStream subject
type Publisher struct {
	js      publisher
	subject string
}

// NewPublisher creates a publisher for subject
func NewPublisher(js jetstream.JetStream, subject string) *Publisher {
	return &Publisher{js: js, subject: subject}
}

// Emit publishes rec and waits for the stream to store it
func (p *Publisher) Emit(ctx context.Context, rec *models.EmittedRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if _, err := p.js.Publish(ctx, p.subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.subject, err)
	}
	return nil
}

// WriterEmitter writes scored records as JSON lines
type WriterEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriterEmitter creates an emitter writing to w
func NewWriterEmitter(w io.Writer) *WriterEmitter {
	return &WriterEmitter{enc: json.NewEncoder(w)}
}

// Emit writes one record
func (w *WriterEmitter) Emit(_ context.Context, rec *models.EmittedRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(rec)
}

var (
	_ scoring.Emitter = (*Publisher)(nil)
	_ scoring.Emitter = (*WriterEmitter)(nil)
)
