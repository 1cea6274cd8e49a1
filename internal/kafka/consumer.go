package kafka

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Handler processes one message. The offset is committed once it returns,
// whether or not it failed; handlers log their own failures.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r *kafka.Reader
}

func NewConsumer(brokers []string, group, topic string) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			GroupID:        group,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0,
		}),
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	defer c.r.Close()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch message")
		}

		if err := h(ctx, m); err != nil {
			zlog.Error().Err(err).Str("topic", m.Topic).Int64("offset", m.Offset).Msg("❌ message handler failed")
		}
		if err := c.r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "commit message")
		}
	}
}

// Decode unmarshals a JSON message value.
func Decode[T any](m kafka.Message) (T, error) {
	var v T
	if err := json.Unmarshal(m.Value, &v); err != nil {
		return v, errors.Wrapf(err, "decode message at offset %d", m.Offset)
	}
	return v, nil
}
