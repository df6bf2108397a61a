package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type queuePayload struct {
	ID     string    `json:"id"`
	TaskID uuid.UUID `json:"taskId"`
}

// Publisher enqueues task ids for asynchronous dispatch.
type Publisher struct {
	queue queueClient
}

// NewPublisher wraps a queue client for producers.
func NewPublisher(queue queueClient) *Publisher {
	if queue == nil {
		panic("dispatch: queue cannot be nil")
	}
	return &Publisher{queue: queue}
}

// Publish enqueues one task for dispatch.
func (p *Publisher) Publish(ctx context.Context, taskID uuid.UUID) error {
	payload := queuePayload{ID: uuid.NewString(), TaskID: taskID}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dispatch: encode queue payload: %w", err)
	}
	if err := p.queue.Send(ctx, string(body)); err != nil {
		return fmt.Errorf("dispatch: enqueue task: %w", err)
	}
	return nil
}
