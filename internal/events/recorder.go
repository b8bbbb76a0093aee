package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alfredjeanlab/crossdock/internal/model"
)

// EventLog persists events.
type EventLog interface {
	RecordEvent(ctx context.Context, event *model.Event) error
}

// Recorder is the Notifier used by the server: every event is written to
// the event log, published, and handed to the optional broadcast hook.
// All three steps are best-effort; failures are logged and swallowed.
type Recorder struct {
	log       EventLog
	publisher Publisher
	logger    *slog.Logger
	broadcast func(topic string, manifestID int64, payload []byte)
}

// NewRecorder returns a Recorder. A nil publisher disables publishing.
func NewRecorder(log EventLog, publisher Publisher, logger *slog.Logger) *Recorder {
	if publisher == nil {
		publisher = &NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{log: log, publisher: publisher, logger: logger}
}

// OnBroadcast installs a hook that receives the JSON payload of every event.
func (r *Recorder) OnBroadcast(fn func(topic string, manifestID int64, payload []byte)) {
	r.broadcast = fn
}

// Notify implements Notifier.
func (r *Recorder) Notify(ctx context.Context, topic string, manifestID int64, actor string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Warn("failed to marshal event", "topic", topic, "manifest_id", manifestID, "error", err)
		return
	}
	if r.log != nil {
		if err := r.log.RecordEvent(ctx, &model.Event{
			Topic:      topic,
			ManifestID: manifestID,
			Actor:      actor,
			Payload:    payload,
		}); err != nil {
			r.logger.Warn("failed to record event", "topic", topic, "manifest_id", manifestID, "error", err)
		}
	}
	if err := r.publisher.Publish(ctx, Message{Topic: topic, ManifestID: manifestID, Data: payload}); err != nil {
		r.logger.Warn("failed to publish event", "topic", topic, "manifest_id", manifestID, "error", err)
	}
	if r.broadcast != nil {
		r.broadcast(topic, manifestID, payload)
	}
}
