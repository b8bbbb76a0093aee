package events

import (
	"context"

	"github.com/alfredjeanlab/crossdock/internal/model"
)

// Event topic constants
const (
	TopicManifestOpened = "crossdock.manifest.opened"
	TopicManifestClosed = "crossdock.manifest.closed"

	TopicVolumeDispatched = "crossdock.volume.dispatched"
	TopicVolumeReceived   = "crossdock.volume.received"

	// Emitted when an operator finalizes a receiving session, complete or not.
	TopicReconciliationFinalized = "crossdock.reconciliation.finalized"

	// TopicAll matches every crossdock subject.
	TopicAll = "crossdock.>"
)

// Event types

type ManifestOpened struct {
	Manifest *model.Manifest `json:"manifest"`
}

type ManifestClosed struct {
	Manifest    *model.Manifest `json:"manifest"`
	VolumeCount int             `json:"volume_count"`
}

type VolumeDispatched struct {
	Volume *model.VolumeRecord `json:"volume"`
	Actor  string              `json:"actor,omitempty"`
}

type VolumeReceived struct {
	Volume *model.VolumeRecord `json:"volume"`
	Site   model.Site          `json:"site"`
	Actor  string              `json:"actor,omitempty"`
}

type ReconciliationFinalized struct {
	ManifestIDs []int64  `json:"manifest_ids"`
	Complete    bool     `json:"complete"`
	MissingKeys []string `json:"missing_keys,omitempty"`
	Incomplete  []int64  `json:"incomplete_manifest_ids,omitempty"`
	Actor       string   `json:"actor,omitempty"`
}

// Message is one event on the bus. Data is the JSON-encoded event.
type Message struct {
	Topic      string
	ManifestID int64
	Data       []byte
}

// Publisher emits events to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber receives events from the bus.
type Subscriber interface {
	// Subscribe delivers messages whose topic matches pattern, which may use
	// NATS wildcards such as TopicAll. The returned cancel function
	// unsubscribes and closes the channel.
	Subscribe(pattern string) (<-chan Message, func(), error)
	Close() error
}

// NoopPublisher drops every message. It stands in when no bus is configured.
type NoopPublisher struct{}

func (*NoopPublisher) Publish(context.Context, Message) error { return nil }
func (*NoopPublisher) Close() error                           { return nil }

// Notifier receives lifecycle events from the engines.
type Notifier interface {
	Notify(ctx context.Context, topic string, manifestID int64, actor string, event any)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, int64, string, any) {}
