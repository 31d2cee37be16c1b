// Package events publishes report lifecycle events for downstream consumers
// such as the regulator-deadline tracker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"injury-report/internal/classifier"
	"injury-report/internal/draft"
)

const TypeReportSubmitted = "report.submitted"

// Event is the message body written to the topic.
type Event struct {
	Type           string              `json:"type"`
	ItemID         string              `json:"itemId"`
	Title          string              `json:"title"`
	Severity       classifier.Severity `json:"severity"`
	IsSIF          bool                `json:"isSif"`
	ReportRequired bool                `json:"reportRequired"`
	ReportCategory classifier.Category `json:"reportCategory"`
	ReportDeadline string              `json:"reportDeadline,omitempty"`
	SubmittedBy    string              `json:"submittedBy,omitempty"`
	SubmittedAt    time.Time           `json:"submittedAt"`
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}
}

type Publisher struct {
	writer MessageWriter
	logger *zap.Logger
}

func NewPublisher(w MessageWriter, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{writer: w, logger: logger}
}

func (p *Publisher) Name() string { return "events" }

// FromSubmission builds the submitted event.
func FromSubmission(sub draft.Submission) Event {
	rec := sub.Record
	return Event{
		Type:           TypeReportSubmitted,
		ItemID:         sub.ItemID,
		Title:          rec.Title,
		Severity:       rec.Severity,
		IsSIF:          rec.IsSIF,
		ReportRequired: rec.AKOSHReportRequired,
		ReportCategory: rec.AKOSHReportType,
		ReportDeadline: rec.AKOSHReportDeadline,
		SubmittedBy:    sub.SubmittedBy.Username,
		SubmittedAt:    sub.SubmittedAt.UTC(),
	}
}

// ReportSubmitted writes one message keyed by item id, so events for the
// same report land on the same partition.
func (p *Publisher) ReportSubmitted(ctx context.Context, sub draft.Submission) error {
	value, err := json.Marshal(FromSubmission(sub))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(sub.ItemID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(TypeReportSubmitted)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("could not write event for item %s: %w", sub.ItemID, err)
	}
	p.logger.Debug("event published", zap.String("type", TypeReportSubmitted), zap.String("item_id", sub.ItemID))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
