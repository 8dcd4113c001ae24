package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/burrowbb/burrow/cfg"
)

func init() {
	RegisterBackend(cfg.SignalNats, func(config cfg.SignalConfiguration) (Bus, error) {
		if config.NatsURL == "" {
			return nil, fmt.Errorf("nats signal backend requires nats_url")
		}
		return NewNatsBus(config)
	})
}

// NatsBus implements Bus over NATS core pub/sub. Payloads are framed with
// the publishing node's ID so an instance can ignore its own broadcasts;
// the publisher has already applied the invalidation locally.
type NatsBus struct {
	nc     *nats.Conn
	config cfg.SignalConfiguration
	nodeID uint64
}

// NewNatsBus connects to NATS with indefinite reconnects. Invalidation
// signals published while disconnected are buffered by the client.
func NewNatsBus(config cfg.SignalConfiguration) (*NatsBus, error) {
	nc, err := nats.Connect(config.NatsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NatsBus{
		nc:     nc,
		config: config,
		nodeID: cfg.Config.NodeID,
	}, nil
}

// Publish broadcasts payload on channel.
func (b *NatsBus) Publish(channel, payload string) error {
	framed := strconv.FormatUint(b.nodeID, 16) + " " + payload
	if err := b.nc.Publish(channelSubject(b.config, channel), []byte(framed)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe registers fn for payloads on channel, skipping messages this
// node published itself.
func (b *NatsBus) Subscribe(channel string, fn Handler) (func(), error) {
	sub, err := b.nc.Subscribe(channelSubject(b.config, channel), func(msg *nats.Msg) {
		origin, payload, ok := strings.Cut(string(msg.Data), " ")
		if !ok {
			return
		}
		if id, err := strconv.ParseUint(origin, 16, 64); err == nil && id == b.nodeID {
			return
		}
		fn(payload)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	cancel := func() {
		_ = sub.Unsubscribe()
	}
	return cancel, nil
}

// Close drains and closes the NATS connection.
func (b *NatsBus) Close() error {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return err
	}
	return nil
}
