package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"ragportal/pkg/domain"
)

// AMQPScheduler delivers jobs through a durable RabbitMQ queue with
// persistent messages and manual acknowledgement.
type AMQPScheduler struct {
	conn      *amqp.Connection
	pubCh     *amqp.Channel
	queueName string
}

// AMQPConfig configures the broker connection.
type AMQPConfig struct {
	URL   string
	Queue string
}

// NewAMQPScheduler dials the broker and declares the durable job queue.
func NewAMQPScheduler(cfg AMQPConfig) (*AMQPScheduler, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("amqp url required")
	}
	queueName := strings.TrimSpace(cfg.Queue)
	if queueName == "" {
		queueName = "ragportal.ingest"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &AMQPScheduler{conn: conn, pubCh: ch, queueName: queueName}, nil
}

func (q *AMQPScheduler) Enqueue(ctx context.Context, job domain.IngestJob) error {
	if strings.TrimSpace(job.User) == "" || strings.TrimSpace(job.Filename) == "" {
		return errors.New("job user and filename required")
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	err = q.pubCh.PublishWithContext(ctx, "", q.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

func (q *AMQPScheduler) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		go q.consumeLoop(ctx, fmt.Sprintf("indexer-%d", i), handler)
	}
}

func (q *AMQPScheduler) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	ch, err := q.conn.Channel()
	if err != nil {
		return
	}
	defer ch.Close()
	if err := ch.Qos(1, 0, false); err != nil {
		return
	}
	deliveries, err := ch.Consume(q.queueName, consumer, false, false, false, false, nil)
	if err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			var job domain.IngestJob
			if err := json.Unmarshal(d.Body, &job); err != nil || job.User == "" || job.Filename == "" {
				_ = d.Ack(false)
				continue
			}
			handler(ctx, job)
			_ = d.Ack(false)
		}
	}
}

// Close releases the broker connection.
func (q *AMQPScheduler) Close() error {
	return q.conn.Close()
}
