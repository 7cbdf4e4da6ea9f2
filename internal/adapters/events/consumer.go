package events

import (
	"context"
	"errors"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Consumer reads the intake topic and feeds the message handler. Offsets
// commit only after the handler accepts a message, so a crash or a returned
// error redelivers — at-least-once, with dedupe downstream.
type Consumer struct {
	reader  *kafkago.Reader
	handler MessageHandler
	logger  *zap.Logger
}

func NewConsumer(reader *kafkago.Reader, handler MessageHandler, logger *zap.Logger) *Consumer {
	return &Consumer{reader: reader, handler: handler, logger: logger}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("event consumer started, waiting for messages")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("context done, exiting read loop")
				return nil
			}
			c.logger.Error("error reading from kafka", zap.Error(err))
			continue
		}

		if err := c.handler.HandleMessage(ctx, msg); err != nil {
			// Leave the offset uncommitted; the message redelivers.
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit offset", zap.Error(err), zap.Int64("offset", msg.Offset))
		}
	}
}
