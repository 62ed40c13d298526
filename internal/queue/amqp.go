package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

const retryHeader = "x-retry-count"

// AMQPQueue publishes and consumes jobs on durable RabbitMQ queues named
// after their topic. Failed jobs are republished with an incremented retry
// header until MaxRetries is exceeded.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex

	MaxRetries int
}

func DialAMQP(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch, MaxRetries: defaultMaxRetries}, nil
}

func (q *AMQPQueue) declare(topic string) error {
	_, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	return nil
}

func (q *AMQPQueue) Publish(topic string, payload any) error {
	return q.publish(topic, payload, 0)
}

func (q *AMQPQueue) publish(topic string, payload any, retries int32) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.declare(topic); err != nil {
		return err
	}
	return q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: retries},
		Body:         body,
	})
}

// Subscribe consumes topic in the background until the connection closes.
func (q *AMQPQueue) Subscribe(topic string, handler func(payload any) error) error {
	deliveries, err := q.consume(topic)
	if err != nil {
		return err
	}
	go q.drain(context.Background(), topic, deliveries, handler)
	return nil
}

// Consume processes topic until ctx is done or the channel closes.
func (q *AMQPQueue) Consume(ctx context.Context, topic string, handler func(payload any) error) error {
	deliveries, err := q.consume(topic)
	if err != nil {
		return err
	}
	return q.drain(ctx, topic, deliveries, handler)
}

func (q *AMQPQueue) consume(topic string) (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.declare(topic); err != nil {
		return nil, err
	}
	deliveries, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer on %s: %w", topic, err)
	}
	return deliveries, nil
}

func (q *AMQPQueue) drain(ctx context.Context, topic string, deliveries <-chan amqp.Delivery, handler func(payload any) error) error {
	log := slog.With("topic", topic)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", topic)
			}
			q.handle(log, topic, d, handler)
		}
	}
}

func (q *AMQPQueue) handle(log *slog.Logger, topic string, d amqp.Delivery, handler func(payload any) error) {
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Error("invalid job", "error", err)
		d.Ack(false)
		return
	}

	if err := handler(job); err != nil {
		retries := retryCount(d.Headers)
		if int(retries) < q.MaxRetries {
			log.Warn("job failed, requeueing", "job_id", job.ID, "attempt", retries+1, "error", err)
			if perr := q.publish(topic, job, retries+1); perr != nil {
				log.Error("failed to requeue job", "job_id", job.ID, "error", perr)
				d.Nack(false, true)
				return
			}
		} else {
			log.Error("job permanently failed", "job_id", job.ID, "attempts", retries+1, "error", err)
		}
	}
	d.Ack(false)
}

func retryCount(h amqp.Table) int32 {
	switch v := h[retryHeader].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	case int:
		return int32(v)
	default:
		return 0
	}
}

func (q *AMQPQueue) Close() error {
	q.ch.Close()
	return q.conn.Close()
}
