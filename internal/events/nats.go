package events

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// HeaderManifestID carries Message.ManifestID so subscribers can filter
// without decoding the payload.
const HeaderManifestID = "Crossdock-Manifest-Id"

// NATSPublisher publishes messages on the subject named by their topic.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("crossdock-publisher"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := nats.NewMsg(msg.Topic)
	m.Data = msg.Data
	if msg.ManifestID != 0 {
		m.Header.Set(HeaderManifestID, strconv.FormatInt(msg.ManifestID, 10))
	}
	if err := p.conn.PublishMsg(m); err != nil {
		return fmt.Errorf("publishing %s: %w", msg.Topic, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSubscriber receives messages from NATS subjects and reconnects
// indefinitely.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects to url. Extra options such as disconnect and
// reconnect handlers are applied after the defaults.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	defaults := []nats.Option{
		nats.Name("crossdock-subscriber"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Subscribe implements Subscriber. Messages arriving while the channel is
// full are dropped rather than stalling the NATS client.
func (s *NATSSubscriber) Subscribe(pattern string) (<-chan Message, func(), error) {
	ch := make(chan Message, 64)

	var (
		mu     sync.Mutex
		closed bool
	)
	sub, err := s.conn.Subscribe(pattern, func(m *nats.Msg) {
		msg := Message{Topic: m.Subject, Data: m.Data}
		if v := m.Header.Get(HeaderManifestID); v != "" {
			msg.ManifestID, _ = strconv.ParseInt(v, 10, 64)
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- msg:
		default:
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", pattern, err)
	}
	// The subscription must reach the server before messages published on
	// other connections are routed to it.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
	return ch, cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
