package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fairlabs/stms-dashboard/internal/config"
	"github.com/fairlabs/stms-dashboard/internal/events"
	"github.com/fairlabs/stms-dashboard/internal/history"
	"github.com/fairlabs/stms-dashboard/internal/logger"
	"github.com/fairlabs/stms-dashboard/internal/models"
	"github.com/fairlabs/stms-dashboard/internal/ttlcache"
)

const dlqAttempts = 5

type eventIndexer interface {
	IndexEvent(ctx context.Context, ev models.SearchEvent) error
}

// messageSource is the consumer-group side of *kafka.Reader.
type messageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type worker struct {
	log     *slog.Logger
	src     messageSource
	dlq     messageWriter
	idx     eventIndexer
	seen    *ttlcache.Cache[struct{}]
	backoff func(attempt int) time.Duration
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	store, err := history.New(cfg.ElasticsearchAddr, cfg.HistoryIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// without the explicit mapping Elasticsearch infers one on first write
	if err := store.EnsureIndex(ctx); err != nil {
		log.Warn("ensure history index", slog.Any("err", err))
	}

	dlqTopic := cfg.EventsTopic + "_dlq"
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.EventsTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // commits are explicit
	})
	defer reader.Close()

	dlq := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       dlqTopic,
		MaxAttempts: 3,
	})
	defer dlq.Close()

	w := &worker{
		log:     log,
		src:     reader,
		dlq:     dlq,
		idx:     store,
		seen:    ttlcache.New[struct{}](cfg.DedupeCapacity, cfg.DedupeTTL),
		backoff: exponential,
	}

	log.Info("indexing search events",
		slog.String("topic", cfg.EventsTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
		slog.String("index", cfg.HistoryIndex),
	)
	w.consume(ctx)
	log.Info("worker stopped")
}

func exponential(attempt int) time.Duration {
	return time.Second << attempt
}

// consume handles messages until ctx ends. A message is committed once it is
// indexed, skipped as a duplicate, or parked on the DLQ. It stays uncommitted
// only when the DLQ write itself keeps failing.
func (w *worker) consume(ctx context.Context) {
	for {
		msg, err := w.src.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("fetch message", slog.Any("err", err))
			continue
		}

		log := w.log.With(slog.Int("partition", msg.Partition), slog.Int64("offset", msg.Offset))
		if err := processMessage(ctx, log, w.idx, w.seen, msg); err != nil {
			log.Warn("search event rejected", slog.Any("err", err))
			if !w.deadLetter(ctx, log, msg, err) {
				if ctx.Err() != nil {
					return
				}
				log.Error("dead letter failed, leaving message uncommitted")
				continue
			}
		}

		if err := w.src.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// deadLetter parks msg on the DLQ, retrying with backoff. It reports whether
// the write succeeded.
func (w *worker) deadLetter(ctx context.Context, log *slog.Logger, msg kafka.Message, cause error) bool {
	parked := dlqMessage(msg, cause, time.Now())
	for attempt := range dlqAttempts {
		err := w.dlq.WriteMessages(ctx, parked)
		if err == nil {
			log.Info("search event parked on DLQ", slog.Int("attempt", attempt+1))
			return true
		}

		wait := w.backoff(attempt)
		log.Warn("DLQ write failed", slog.Any("err", err), slog.Int("attempt", attempt+1), slog.Duration("retry_in", wait))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
	return false
}

// dlqMessage copies msg and records where it came from and why it failed.
func dlqMessage(msg kafka.Message, cause error, now time.Time) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers)+4)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "original_partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: "original_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
		kafka.Header{Key: "failed_at", Value: []byte(now.UTC().Format(time.RFC3339))},
	)
	return kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}
}

func processMessage(ctx context.Context, log *slog.Logger, idx eventIndexer, seen *ttlcache.Cache[struct{}], msg kafka.Message) error {
	ev, err := events.Decode(msg)
	if err != nil {
		return err
	}
	if seen.Contains(ev.ID) {
		log.Debug("duplicate search event", slog.String("id", ev.ID))
		return nil
	}
	if err := idx.IndexEvent(ctx, ev); err != nil {
		return fmt.Errorf("index search event %s: %w", ev.ID, err)
	}

	seen.Set(ev.ID, struct{}{})
	log.Info("search event indexed",
		slog.String("id", ev.ID),
		slog.String("outcome", ev.Outcome),
		slog.Int("articles", ev.Articles),
	)
	return nil
}
