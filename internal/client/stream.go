package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// StreamEvent is one server-sent event from /v1/events/stream.
type StreamEvent struct {
	ID    int64
	Topic string
	Data  json.RawMessage
}

// StreamRequest filters the event stream. LastEventID resumes after a
// previously seen event.
type StreamRequest struct {
	Topics      []string
	ManifestID  int64
	LastEventID int64
}

// StreamEvents calls fn for every event until ctx is cancelled, the server
// closes the stream, or fn returns an error.
func (c *HTTPClient) StreamEvents(ctx context.Context, sr *StreamRequest, fn func(StreamEvent) error) error {
	params := url.Values{}
	if len(sr.Topics) > 0 {
		params.Set("topics", strings.Join(sr.Topics, ","))
	}
	if sr.ManifestID > 0 {
		params.Set("manifest_id", strconv.FormatInt(sr.ManifestID, 10))
	}
	path := "/v1/events/stream"
	if q := params.Encode(); q != "" {
		path += "?" + q
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if sr.LastEventID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(sr.LastEventID, 10))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("opening event stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: "event stream unavailable"}
	}

	var evt StreamEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if evt.Topic != "" {
				if err := fn(evt); err != nil {
					return err
				}
			}
			evt = StreamEvent{}
		case strings.HasPrefix(line, ":"):
			// keepalive
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "id":
				evt.ID, _ = strconv.ParseInt(value, 10, 64)
			case "event":
				evt.Topic = value
			case "data":
				evt.Data = json.RawMessage(value)
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return nil
}
