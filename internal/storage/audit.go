package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ActionRecord is one audited operator action.
type ActionRecord struct {
	ID        string    `json:"id"`
	AlertID   string    `json:"alert_id"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Note      string    `json:"note,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewActionRecord builds a record with a fresh id and timestamp.
func NewActionRecord(alertID, action, actor, note, detail string) ActionRecord {
	return ActionRecord{
		ID:        uuid.New().String(),
		AlertID:   alertID,
		Action:    action,
		Actor:     actor,
		Note:      note,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
}

// AuditWriterConfig holds configuration for the audit batch writer.
type AuditWriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// DefaultAuditWriterConfig returns the default audit writer configuration.
func DefaultAuditWriterConfig() AuditWriterConfig {
	return AuditWriterConfig{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		MaxRetries:    3,
		RetryDelay:    time.Second,
	}
}

// AuditWriter batches operator action records into ClickHouse. Audit writes
// are best-effort: a failed flush is logged and never blocks the action
// that produced it.
type AuditWriter struct {
	client *ClickHouseClient
	config AuditWriterConfig

	buffer []ActionRecord
	mu     sync.Mutex

	flushTimer *time.Timer
	closed     bool

	totalWritten uint64
	totalFailed  uint64
}

// NewAuditWriter creates an audit batch writer.
func NewAuditWriter(client *ClickHouseClient, cfg AuditWriterConfig) *AuditWriter {
	w := &AuditWriter{
		client: client,
		config: cfg,
		buffer: make([]ActionRecord, 0, cfg.BatchSize),
	}
	w.flushTimer = time.AfterFunc(cfg.FlushInterval, w.timerFlush)
	return w
}

// Record appends an action to the batch.
func (w *AuditWriter) Record(_ context.Context, rec ActionRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("audit writer is closed")
	}

	w.buffer = append(w.buffer, rec)
	if len(w.buffer) >= w.config.BatchSize {
		return w.flushLocked()
	}
	return nil
}

func (w *AuditWriter) timerFlush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if len(w.buffer) > 0 {
		if err := w.flushLocked(); err != nil {
			slog.Error("audit timer flush failed", "error", err)
		}
	}
	w.flushTimer.Reset(w.config.FlushInterval)
}

// flushLocked flushes the buffer. Caller must hold the lock.
func (w *AuditWriter) flushLocked() error {
	if len(w.buffer) == 0 {
		return nil
	}

	records := w.buffer
	w.buffer = make([]ActionRecord, 0, w.config.BatchSize)

	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(w.config.RetryDelay * time.Duration(attempt))
		}

		if err := w.insertBatch(records); err != nil {
			lastErr = err
			slog.Warn("audit batch insert failed, retrying",
				"attempt", attempt+1,
				"max_retries", w.config.MaxRetries,
				"error", err,
			)
			continue
		}

		atomic.AddUint64(&w.totalWritten, uint64(len(records)))
		return nil
	}

	atomic.AddUint64(&w.totalFailed, uint64(len(records)))
	return fmt.Errorf("audit batch insert failed after %d retries: %w", w.config.MaxRetries, lastErr)
}

func (w *AuditWriter) insertBatch(records []ActionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	batch, err := w.client.PrepareBatch(ctx, `
		INSERT INTO operator_actions (
			id, alert_id, action, actor, note, detail, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, rec := range records {
		if err := batch.Append(
			rec.ID,
			rec.AlertID,
			rec.Action,
			rec.Actor,
			rec.Note,
			rec.Detail,
			rec.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to append record: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// Flush forces a flush of any buffered records.
func (w *AuditWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// Close flushes and stops the writer.
func (w *AuditWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.flushTimer.Stop()
	return w.flushLocked()
}

// Stats returns the written/failed record counts.
func (w *AuditWriter) Stats() (written, failed uint64) {
	return atomic.LoadUint64(&w.totalWritten), atomic.LoadUint64(&w.totalFailed)
}
