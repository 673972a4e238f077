package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kestrelhq/scrapegate/internal/domain/repository"
)

// RabbitMQConfig holds configuration for the C7→C8 transport, adapted from
// the teacher's queue.ClientConfig (transcode_tasks → upload_tasks).
type RabbitMQConfig struct {
	URL        string
	QueueName  string
	Exchange   string
	RoutingKey string
	Prefetch   int
}

// DefaultRabbitMQConfig returns sensible defaults; Prefetch=1 gives fair
// dispatch across multiple cmd/worker processes.
func DefaultRabbitMQConfig(url string) RabbitMQConfig {
	return RabbitMQConfig{
		URL:        url,
		QueueName:  "upload_tasks",
		RoutingKey: "upload_tasks",
		Prefetch:   1,
	}
}

type amqpConnection interface {
	Channel() (*amqp.Channel, error)
	Close() error
	IsClosed() bool
}

type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Close() error
}

// RabbitMQTransport implements repository.UploadTaskQueue over AMQP.
type RabbitMQTransport struct {
	conn    amqpConnection
	channel amqpChannel
	config  RabbitMQConfig
	logger  *slog.Logger
}

var _ repository.UploadTaskQueue = (*RabbitMQTransport)(nil)

// NewRabbitMQTransport connects and declares the queue, failing fast on
// broker misconfiguration just as the teacher's NewClient does.
func NewRabbitMQTransport(cfg RabbitMQConfig, logger *slog.Logger) (*RabbitMQTransport, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	return newRabbitMQTransportWithConnection(conn, cfg, logger)
}

func newRabbitMQTransportWithConnection(conn amqpConnection, cfg RabbitMQConfig, logger *slog.Logger) (*RabbitMQTransport, error) {
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitMQTransport{conn: conn, channel: ch, config: cfg, logger: logger}, nil
}

// PublishUploadTask sends a durable message for one or more cmd/worker
// processes to consume.
func (t *RabbitMQTransport) PublishUploadTask(ctx context.Context, task repository.UploadTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	err = t.channel.PublishWithContext(ctx, t.config.Exchange, t.config.RoutingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// ConsumeUploadTasks runs handler for every received task until ctx is
// cancelled. On handler failure the task is republished with an
// incremented RetryCount rather than Nack(requeue=true), so retries are
// visible and don't loop silently.
func (t *RabbitMQTransport) ConsumeUploadTasks(ctx context.Context, handler func(task repository.UploadTask) error) error {
	msgs, err := t.channel.Consume(t.config.QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("upload task channel closed unexpectedly")
			}

			var task repository.UploadTask
			if err := json.Unmarshal(msg.Body, &task); err != nil {
				_ = msg.Nack(false, false)
				continue
			}

			if err := handler(task); err != nil {
				task.RetryCount++
				if pubErr := t.PublishUploadTask(ctx, task); pubErr != nil {
					if t.logger != nil {
						t.logger.Error("failed to republish upload task for retry",
							"video_id", task.VideoID, "retry_count", task.RetryCount, "error", pubErr)
					}
					_ = msg.Nack(false, false)
				} else {
					_ = msg.Ack(false)
				}
				continue
			}

			_ = msg.Ack(false)
		}
	}
}

// Close shuts down the channel and connection.
func (t *RabbitMQTransport) Close() error {
	var errs []error
	if t.channel != nil {
		if err := t.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if t.conn != nil {
		if err := t.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
