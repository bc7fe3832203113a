// Package events publishes search events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fairlabs/stms-dashboard/internal/logger"
	"github.com/fairlabs/stms-dashboard/internal/models"
)

// EventType is carried in the "type" header of every message.
const EventType = "search.completed"

// Publisher writes SearchEvents to a topic, keyed by event id.
type Publisher struct {
	w   *kafka.Writer
	log *slog.Logger
}

// NewPublisher creates a writer for topic on brokers.
func NewPublisher(brokers []string, topic string, log *slog.Logger) *Publisher {
	if log == nil {
		log = logger.Discard()
	}
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
	})
	return &Publisher{w: w, log: log}
}

// Record publishes ev.
func (p *Publisher) Record(ctx context.Context, ev models.SearchEvent) error {
	msg, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event %s: %w", ev.ID, err)
	}
	p.log.Debug("search event published", slog.String("id", ev.ID), slog.String("outcome", ev.Outcome))
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}

// Encode builds the Kafka message for ev.
func Encode(ev models.SearchEvent) (kafka.Message, error) {
	if ev.ID == "" {
		return kafka.Message{}, errors.New("event has no id")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.ID),
		Value: data,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(EventType)},
		},
	}, nil
}

// Decode parses a message produced by Encode.
func Decode(msg kafka.Message) (models.SearchEvent, error) {
	var ev models.SearchEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return models.SearchEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if ev.ID == "" {
		ev.ID = string(msg.Key)
	}
	if ev.ID == "" {
		return models.SearchEvent{}, errors.New("event has no id")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = msg.Time.UTC()
	}
	return ev, nil
}
