// Package kafka wraps kafka-go for fire-and-forget publishing and
// manually-committed consumption.
package kafka

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Producer publishes from a buffered inbox on a background goroutine, so a
// slow or unavailable broker never blocks the caller.
type Producer struct {
	w     *kafka.Writer
	inbox chan kafka.Message

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: 5 * time.Second,
		},
		inbox: make(chan kafka.Message, buf),
		done:  make(chan struct{}),
	}
}

// Start drains the inbox until Close is called.
func (p *Producer) Start() {
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		for m := range p.inbox {
			if err := p.w.WriteMessages(context.Background(), m); err != nil {
				zlog.Error().Err(err).Str("topic", p.w.Topic).Str("key", string(m.Key)).Msg("❌ publish failed")
			}
		}
		if err := p.w.Close(); err != nil {
			zlog.Warn().Err(err).Msg("close kafka writer")
		}
	}()
}

// Publish enqueues a message. It reports false when the message was dropped
// because the inbox is full or the producer is closed.
func (p *Producer) Publish(key, value []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.inbox <- kafka.Message{Key: key, Value: value, Time: time.Now()}:
		return true
	default:
		return false
	}
}

// Close flushes queued messages and waits for the writer to stop.
func (p *Producer) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
	started := p.started
	p.mu.Unlock()
	if started {
		<-p.done
	}
}
