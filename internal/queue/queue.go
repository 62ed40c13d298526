package queue

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Topics
const (
	TopicRunExecutions = "run_executions"
	TopicCampaignSends = "campaign_sends"
)

const defaultMaxRetries = 3

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// Job asks a worker to process one run or campaign.
type Job struct {
	ID uuid.UUID `json:"id"`
}

// InMemoryQueue is an in-process queue with retry
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
	inflight sync.WaitGroup

	MaxRetries int
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]func(payload any) error),
		MaxRetries: defaultMaxRetries,
		Backoff:    500 * time.Millisecond,
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Topic      string
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		job := JobPayload{Topic: topic, Payload: payload, MaxRetries: q.MaxRetries}
		q.inflight.Add(1)
		go func() {
			defer q.inflight.Done()
			q.processJob(handler, job)
		}()
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	log := slog.With("topic", job.Topic, "payload", job.Payload)
	for {
		err := handler(job.Payload)
		if err == nil {
			log.Debug("job processed")
			return
		}

		job.RetryCount++
		if job.RetryCount > job.MaxRetries {
			log.Error("job permanently failed", "attempts", job.RetryCount, "error", err)
			return
		}
		log.Warn("job failed, retrying", "attempt", job.RetryCount, "max_retries", job.MaxRetries, "error", err)

		time.Sleep(time.Duration(job.RetryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has finished, retries included.
func (q *InMemoryQueue) Wait() {
	q.inflight.Wait()
}
