package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/burrowbb/burrow/cfg"
)

func init() {
	RegisterBackend(cfg.SignalKafka, func(config cfg.SignalConfiguration) (Bus, error) {
		if len(config.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("kafka signal backend requires kafka_brokers")
		}
		return NewKafkaBus(config), nil
	})
}

// KafkaBus implements Bus over Kafka. Each channel maps to one topic; every
// instance consumes with its own group so all instances see every signal.
type KafkaBus struct {
	config  cfg.SignalConfiguration
	nodeID  uint64
	groupID string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

// NewKafkaBus creates a Kafka-backed signal bus. Writers are created lazily
// per channel on first publish.
func NewKafkaBus(config cfg.SignalConfiguration) *KafkaBus {
	return &KafkaBus{
		config:  config,
		nodeID:  cfg.Config.NodeID,
		groupID: "burrow-signal-" + uuid.NewString(),
		writers: make(map[string]*kafka.Writer),
	}
}

func (b *KafkaBus) writerFor(topic string) *kafka.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()

	if w, ok := b.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(b.config.KafkaBrokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	b.writers[topic] = w
	return w
}

// Publish broadcasts payload on channel.
func (b *KafkaBus) Publish(channel, payload string) error {
	framed := strconv.FormatUint(b.nodeID, 16) + " " + payload
	w := b.writerFor(kafkaTopic(b.config, channel))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.WriteMessages(ctx, kafka.Message{Value: []byte(framed)}); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe consumes channel on a background goroutine, skipping messages
// this node published itself.
func (b *KafkaBus) Subscribe(channel string, fn Handler) (func(), error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.config.KafkaBrokers,
		GroupID:  b.groupID,
		Topic:    kafkaTopic(b.config, channel),
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})

	ctx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer reader.Close()
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Str("channel", channel).Msg("Kafka signal read failed")
				continue
			}
			origin, payload, ok := strings.Cut(string(msg.Value), " ")
			if !ok {
				continue
			}
			if id, err := strconv.ParseUint(origin, 16, 64); err == nil && id == b.nodeID {
				continue
			}
			fn(payload)
		}
	}()

	return cancel, nil
}

// Close stops all consumers and flushes writers.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	cancels := b.cancels
	b.cancels = nil
	writers := b.writers
	b.writers = make(map[string]*kafka.Writer)
	b.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	b.wg.Wait()

	var firstErr error
	for _, w := range writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// kafkaTopic converts a channel name to a Kafka-safe topic name.
func kafkaTopic(config cfg.SignalConfiguration, channel string) string {
	return strings.ReplaceAll(channelSubject(config, channel), ":", "-")
}
