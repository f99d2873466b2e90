// Package notify publishes run-completion events to Kafka so downstream
// consumers (dashboards, cache warmers) learn when fresh data landed.
// Publishing is best-effort and disabled unless brokers are configured.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/paddock-io/paddock/internal/run"
)

// DefaultTopic is the Kafka topic run-completion events are published to.
const DefaultTopic = "paddock.runs"

type (
	// Event is the run-completion payload published to Kafka.
	Event struct {
		RunID      string         `json:"run_id"`
		Source     string         `json:"source"`
		Mode       string         `json:"mode"`
		Status     string         `json:"status"`
		StartedAt  time.Time      `json:"started_at"`
		FinishedAt time.Time      `json:"finished_at"`
		Tables     map[string]int `json:"tables"`
	}

	// messageWriter is the slice of kafka.Writer the notifier needs.
	messageWriter interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// Notifier publishes run events. A nil Notifier is valid and
	// publishes nothing, so callers never branch on configuration.
	Notifier struct {
		writer messageWriter
		logger *slog.Logger
	}
)

// NewNotifier creates a notifier publishing to the given brokers. Returns
// nil when no brokers are configured, which disables publishing.
func NewNotifier(brokers []string, topic string, logger *slog.Logger) *Notifier {
	if len(brokers) == 0 {
		return nil
	}

	if topic == "" {
		topic = DefaultTopic
	}

	if logger == nil {
		logger = slog.Default()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}

	return &Notifier{
		writer: writer,
		logger: logger,
	}
}

// newNotifierWithWriter wires a custom writer, for testing.
func newNotifierWithWriter(writer messageWriter, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}

	return &Notifier{
		writer: writer,
		logger: logger,
	}
}

// PublishRunCompleted publishes a completion event for the given run
// record. Safe to call on a nil notifier.
func (n *Notifier) PublishRunCompleted(ctx context.Context, record *run.Record) error {
	if n == nil {
		return nil
	}

	event := Event{
		RunID:     record.ID.String(),
		Source:    record.Source,
		Mode:      record.Mode,
		Status:    string(record.Status),
		StartedAt: record.StartedAt,
		Tables:    make(map[string]int, len(record.Tables)),
	}

	if record.FinishedAt != nil {
		event.FinishedAt = *record.FinishedAt
	}

	for _, table := range record.Tables {
		event.Tables[table.Table] = table.Rows
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}

	if err := n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.RunID),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("publish run event: %w", err)
	}

	n.logger.Info("published run completion event",
		slog.String("run_id", event.RunID),
		slog.String("status", event.Status))

	return nil
}

// Close flushes and closes the underlying writer. Safe on nil.
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}

	return n.writer.Close()
}
