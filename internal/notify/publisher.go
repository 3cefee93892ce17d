// Package notify publishes operator action events to Kafka so downstream
// systems (reporting, SOC handoff) can react to console activity. Publishing
// is optional and best-effort.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"opsconsole/internal/storage"
)

// Config holds Kafka publisher settings.
type Config struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// DefaultConfig returns the default publisher configuration.
func DefaultConfig() Config {
	return Config{
		Brokers:      []string{"localhost:9092"},
		Topic:        "opsconsole.actions",
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		MaxAttempts:  3,
	}
}

// Validate checks the publisher configuration.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("at least one broker is required")
	}
	if c.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	return nil
}

// Publisher sends action records to a Kafka topic, keyed by alert id so a
// single alert's action history stays ordered within a partition.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
	closed atomic.Bool

	published atomic.Int64
	errors    atomic.Int64
}

// NewPublisher creates a Kafka action publisher.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		RequiredAcks: kafka.RequireOne,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-writer")
		}),
	}

	logger.Info("action publisher initialized",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
	)

	return &Publisher{writer: writer, logger: logger}, nil
}

// Publish sends one action record.
func (p *Publisher) Publish(ctx context.Context, rec storage.ActionRecord) error {
	if p.closed.Load() {
		return fmt.Errorf("publisher is closed")
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal action record: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.AlertID),
		Value: value,
		Time:  rec.CreatedAt,
	})
	if err != nil {
		p.errors.Add(1)
		return fmt.Errorf("failed to publish action record: %w", err)
	}

	p.published.Add(1)
	return nil
}

// Close shuts down the underlying writer.
func (p *Publisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}

// Stats returns published/error counts.
func (p *Publisher) Stats() (published, errs int64) {
	return p.published.Load(), p.errors.Load()
}
