package feed

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/agent-console/internal/events"
	"github.com/wolfman30/agent-console/pkg/logging"
)

// Queue is the inbound side of the feed transport.
type Queue interface {
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]events.QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Deduper remembers applied message ids.
type Deduper interface {
	AlreadyProcessed(ctx context.Context, source, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, source, messageID string) (bool, error)
}

const consumerSource = "sqs"

// Consumer long-polls a queue of JSON documents and applies each one.
type Consumer struct {
	queue       Queue
	feeder      *Feeder
	dedupe      Deduper
	logger      *logging.Logger
	waitSeconds int
	batchSize   int
	backoff     time.Duration
}

func NewConsumer(queue Queue, feeder *Feeder, logger *logging.Logger) *Consumer {
	if queue == nil || feeder == nil {
		panic("feed: queue and feeder required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Consumer{
		queue:       queue,
		feeder:      feeder,
		logger:      logger,
		waitSeconds: 20,
		batchSize:   10,
		backoff:     time.Second,
	}
}

func (c *Consumer) WithDeduper(d Deduper) *Consumer {
	c.dedupe = d
	return c
}

func (c *Consumer) WithWaitSeconds(wait int) *Consumer {
	if wait >= 0 && wait <= 20 {
		c.waitSeconds = wait
	}
	return c
}

// Run polls until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("feed: consumer started", "wait_seconds", c.waitSeconds)
	for {
		if ctx.Err() != nil {
			c.logger.Info("feed: consumer stopped")
			return
		}
		if _, err := c.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("feed: receive failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(c.backoff):
			}
		}
	}
}

// Poll receives one batch and applies it, returning how many documents were
// applied. Malformed or rejected documents are deleted so they do not
// redeliver forever; transient store errors leave the message for retry.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	msgs, err := c.queue.Receive(ctx, c.batchSize, c.waitSeconds)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, msg := range msgs {
		if c.handle(ctx, msg) {
			applied++
		}
	}
	return applied, nil
}

func (c *Consumer) handle(ctx context.Context, msg events.QueueMessage) bool {
	if c.dedupe != nil {
		seen, err := c.dedupe.AlreadyProcessed(ctx, consumerSource, msg.ID)
		if err != nil {
			c.logger.Warn("feed: dedupe lookup failed", "error", err, "message_id", msg.ID)
		} else if seen {
			c.logger.Debug("feed: duplicate delivery skipped", "message_id", msg.ID)
			c.delete(ctx, msg)
			return false
		}
	}

	doc, err := Decode([]byte(msg.Body), FormatJSON)
	if err != nil {
		c.logger.Warn("feed: dropping malformed document", "error", err, "message_id", msg.ID)
		c.delete(ctx, msg)
		return false
	}

	if _, err := c.feeder.Apply(ctx, doc, consumerSource); err != nil {
		if IsPermanent(err) {
			c.logger.Warn("feed: dropping rejected document", "error", err, "message_id", msg.ID)
			c.delete(ctx, msg)
		} else {
			c.logger.Error("feed: apply failed, leaving for redelivery", "error", err, "message_id", msg.ID)
		}
		return false
	}

	if c.dedupe != nil {
		if _, err := c.dedupe.MarkProcessed(ctx, consumerSource, msg.ID); err != nil {
			c.logger.Warn("feed: mark processed failed", "error", err, "message_id", msg.ID)
		}
	}
	c.delete(ctx, msg)
	return true
}

func (c *Consumer) delete(ctx context.Context, msg events.QueueMessage) {
	if err := c.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		c.logger.Warn("feed: delete failed", "error", err, "message_id", msg.ID)
	}
}
