package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/alfredjeanlab/crossdock/internal/model"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func mustMessage(t *testing.T, topic string, manifestID int64, event any) Message {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	return Message{Topic: topic, ManifestID: manifestID, Data: data}
}

func TestNoopPublisher(t *testing.T) {
	var pub Publisher = &NoopPublisher{}
	if err := pub.Publish(context.Background(), Message{Topic: TopicManifestOpened}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNATS_ImplementsInterfaces(t *testing.T) {
	var _ Publisher = (*NATSPublisher)(nil)
	var _ Subscriber = (*NATSSubscriber)(nil)
}

func TestNATS_RoundTrip(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()
	ch, cancel, err := sub.Subscribe(TopicVolumeReceived)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	now := time.Now().UTC()
	event := VolumeReceived{
		Volume: &model.VolumeRecord{ManifestID: 10, Key: "ABCD1234", DispatchedAt: now, ReceivedAt: &now},
		Site:   model.SiteReserva,
		Actor:  "bia@example.com",
	}
	if err := pub.Publish(context.Background(), mustMessage(t, TopicVolumeReceived, 10, event)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-ch:
		if msg.Topic != TopicVolumeReceived || msg.ManifestID != 10 {
			t.Errorf("message = %+v", msg)
		}
		var got VolumeReceived
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Volume.Key != "ABCD1234" || got.Site != model.SiteReserva {
			t.Errorf("unexpected payload: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSSubscriber_WildcardReceivesAllTopics(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()
	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	topics := []string{TopicManifestOpened, TopicVolumeDispatched, TopicReconciliationFinalized}
	for _, topic := range topics {
		if err := pub.Publish(context.Background(), Message{Topic: topic, Data: []byte(`{}`)}); err != nil {
			t.Fatalf("publishing to %s: %v", topic, err)
		}
	}

	for i, want := range topics {
		select {
		case msg := <-ch:
			if msg.Topic != want {
				t.Errorf("message %d topic = %s, want %s", i, msg.Topic, want)
			}
			if msg.ManifestID != 0 {
				t.Errorf("message %d manifest id = %d, want 0", i, msg.ManifestID)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestNATSSubscriber_CancelClosesChannel(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}

	cancel()
	cancel() // second call must not panic

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestNATSPublisher_CanceledContext(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Publish(ctx, Message{Topic: TopicManifestClosed}); err == nil {
		t.Error("expected error publishing with canceled context")
	}
}

func TestNATSPublisher_PublishAfterClose(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := pub.Publish(context.Background(), Message{Topic: TopicManifestClosed}); err == nil {
		t.Error("expected error publishing after close")
	}
}
