package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/client"
	"github.com/alfredjeanlab/crossdock/internal/events"
	"github.com/alfredjeanlab/crossdock/internal/ui"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Follow dispatch and receiving activity live",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manifestID, _ := cmd.Flags().GetInt64("manifest")
		useSSE, _ := cmd.Flags().GetBool("sse")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		natsURL := os.Getenv("CROSSDOCK_NATS_URL")
		if natsURL == "" {
			natsURL = activeProfile().NATSURL
		}
		if natsURL != "" && !useSSE {
			return watchNATS(ctx, natsURL, manifestID, out)
		}
		return watchSSE(ctx, manifestID, out)
	},
}

// watchNATS prints every crossdock event published on the bus.
func watchNATS(ctx context.Context, natsURL string, manifestID int64, out io.Writer) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			printWatchEvent(out, time.Now(), msg.Topic, msg.Data, manifestID)
		}
	}
}

// watchSSE follows the server's event stream, resuming after the last seen
// event when the connection drops.
func watchSSE(ctx context.Context, manifestID int64, out io.Writer) error {
	req := &client.StreamRequest{ManifestID: manifestID}
	for {
		err := api.StreamEvents(ctx, req, func(e client.StreamEvent) error {
			req.LastEventID = e.ID
			printWatchEvent(out, time.Now(), e.Topic, e.Data, 0)
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if isAuthError(err) {
				return err
			}
			log.Printf("event stream: %v (retrying)", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
		}
	}
}

func isAuthError(err error) bool {
	var apiErr *client.APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

// printWatchEvent writes one event line. A non-zero only drops events that
// do not concern that manifest.
func printWatchEvent(out io.Writer, at time.Time, topic string, data []byte, only int64) {
	line, ids := describeEvent(topic, data)
	if only != 0 && !slices.Contains(ids, only) {
		return
	}
	fmt.Fprintf(out, "%s %s\n", ui.RenderMuted(at.Format("15:04:05")), line)
}

// describeEvent summarizes an event payload and returns the manifests it
// concerns.
func describeEvent(topic string, data []byte) (string, []int64) {
	switch topic {
	case events.TopicManifestOpened:
		var e events.ManifestOpened
		if json.Unmarshal(data, &e) == nil && e.Manifest != nil {
			m := e.Manifest
			return ui.RenderAccent(fmt.Sprintf("manifest %d opened", m.ID)) +
				fmt.Sprintf(" at %s by %s", m.OriginSite.Label(), m.CreatedBy), []int64{m.ID}
		}
	case events.TopicManifestClosed:
		var e events.ManifestClosed
		if json.Unmarshal(data, &e) == nil && e.Manifest != nil {
			return ui.RenderAccent(fmt.Sprintf("manifest %d closed", e.Manifest.ID)) +
				fmt.Sprintf(" with %d volumes", e.VolumeCount), []int64{e.Manifest.ID}
		}
	case events.TopicVolumeDispatched:
		var e events.VolumeDispatched
		if json.Unmarshal(data, &e) == nil && e.Volume != nil {
			v := e.Volume
			line := fmt.Sprintf("%s dispatched in manifest %d", v.Key, v.ManifestID)
			if v.Destination != "" {
				line += " → " + v.Destination
			}
			return line, []int64{v.ManifestID}
		}
	case events.TopicVolumeReceived:
		var e events.VolumeReceived
		if json.Unmarshal(data, &e) == nil && e.Volume != nil {
			v := e.Volume
			return ui.RenderOK(fmt.Sprintf("%s received", v.Key)) +
				fmt.Sprintf(" at %s (manifest %d)", e.Site.Label(), v.ManifestID), []int64{v.ManifestID}
		}
	case events.TopicReconciliationFinalized:
		var e events.ReconciliationFinalized
		if json.Unmarshal(data, &e) == nil {
			status := ui.RenderOK("complete")
			if !e.Complete {
				status = ui.RenderWarn(fmt.Sprintf("incomplete (%d missing)", len(e.MissingKeys)))
				if len(e.MissingKeys) == 0 {
					status = ui.RenderWarn("incomplete")
				}
			}
			return fmt.Sprintf("reconciliation of %s %s", formatIDs(e.ManifestIDs), status), e.ManifestIDs
		}
	}
	return fmt.Sprintf("%s %s", topic, data), nil
}

func init() {
	watchCmd.Flags().Int64("manifest", 0, "only show events for this manifest")
	watchCmd.Flags().Bool("sse", false, "use the server event stream even when NATS is configured")
}
