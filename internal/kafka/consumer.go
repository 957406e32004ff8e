package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler must return nil only when the message is fully processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
	logger  *zap.Logger

	// Attempts bounds handler retries per message; Backoff grows linearly.
	Attempts int
	Backoff  time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int, logger *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{r: r, workers: workers, logger: logger, Attempts: 5, Backoff: 200 * time.Millisecond}
}

// Start dispatches messages to workers until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for m := range jobs {
				if !c.handle(ctx, id, m, h) && ctx.Err() != nil {
					continue // shutting down, leave the offset uncommitted
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					c.logger.Error("commit failed", zap.Int("worker", id), zap.Int64("offset", m.Offset), zap.Error(err))
				}
			}
		}(i)
	}
	defer wg.Wait()
	defer close(jobs)

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			// keep shutdown quiet
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// handle retries h with backoff. Offsets are committed per group, so a later
// commit skips this message for good; exhausting the attempts drops it.
func (c *Consumer) handle(ctx context.Context, worker int, m kafka.Message, h Handler) bool {
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			return true
		}
		if attempt >= c.Attempts || ctx.Err() != nil {
			c.logger.Error("dropping message",
				zap.Int("worker", worker),
				zap.Int64("offset", m.Offset),
				zap.Int("attempts", attempt),
				zap.Error(err))
			return false
		}
		c.logger.Warn("handler failed, retrying", zap.Int("worker", worker), zap.Int64("offset", m.Offset), zap.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(attempt) * c.Backoff):
		}
	}
}
