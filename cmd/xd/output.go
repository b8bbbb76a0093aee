package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/client"
	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/reconcile"
	"github.com/alfredjeanlab/crossdock/internal/session"
	"github.com/alfredjeanlab/crossdock/internal/ui"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const timeLayout = "2006-01-02 15:04:05"

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.Style().Options.DrawBorder = false
	tw.Style().Options.SeparateColumns = false
	return tw
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func formatIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

func printSession(w io.Writer, e *session.Entry) {
	fmt.Fprintf(w, "Session:   %s\n", e.ID)
	fmt.Fprintf(w, "Identity:  %s\n", e.Identity)
	fmt.Fprintf(w, "Site:      %s\n", e.SiteLabel)
	fmt.Fprintf(w, "Since:     %s\n", formatTime(&e.CreatedAt))
	if e.ActiveManifestID != 0 {
		fmt.Fprintf(w, "Dispatch:  manifest %d open\n", e.ActiveManifestID)
	}
	if e.PendingPrintID != 0 {
		fmt.Fprintf(w, "Print:     manifest %d awaiting print\n", e.PendingPrintID)
	}
	if len(e.Receiving) > 0 {
		fmt.Fprintf(w, "Receiving: %s (%s)\n", formatIDs(e.Receiving), e.ReceivingMode)
	}
}

func printSessionTable(w io.Writer, entries []session.Entry) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "IDENTITY", "SITE", "IDLE", "DISPATCH", "RECEIVING"})
	for _, e := range entries {
		active := "-"
		if e.ActiveManifestID != 0 {
			active = strconv.FormatInt(e.ActiveManifestID, 10)
		}
		recv := "-"
		if len(e.Receiving) > 0 {
			recv = formatIDs(e.Receiving)
		}
		idle := (time.Duration(e.IdleSecs) * time.Second).Round(time.Second)
		tw.AppendRow(table.Row{e.ID, e.Identity, e.Site, idle, active, recv})
	}
	tw.Render()
}

func printManifest(w io.Writer, m *model.Manifest) {
	fmt.Fprintf(w, "Manifest:  %d\n", m.ID)
	fmt.Fprintf(w, "Origin:    %s\n", m.OriginSite.Label())
	fmt.Fprintf(w, "Status:    %s\n", m.Status)
	fmt.Fprintf(w, "Created By: %s\n", m.CreatedBy)
	fmt.Fprintf(w, "Opened:    %s\n", formatTime(&m.OpenedAt))
	if m.ClosedAt != nil {
		fmt.Fprintf(w, "Closed:    %s\n", formatTime(m.ClosedAt))
	}
	fmt.Fprintf(w, "Volumes:   %d\n", m.VolumeCount)
	if m.ReceivedCount > 0 {
		fmt.Fprintf(w, "Received:  %d\n", m.ReceivedCount)
	}
}

func printManifestTable(w io.Writer, manifests []*model.Manifest, total int) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "ORIGIN", "STATUS", "CREATED BY", "OPENED", "CLOSED", "VOLUMES", "RECEIVED"})
	for _, m := range manifests {
		tw.AppendRow(table.Row{m.ID, m.OriginSite, m.Status, m.CreatedBy, formatTime(&m.OpenedAt), formatTime(m.ClosedAt), m.VolumeCount, m.ReceivedCount})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
	})
	tw.Render()
	fmt.Fprintf(w, "\n%d manifests (%d total)\n", len(manifests), total)
}

func printVolumeTable(w io.Writer, vols []*model.VolumeRecord, total int) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"MANIFEST", "KEY", "DESTINATION", "BRANCH", "DISPATCHED", "RECEIVED"})
	for _, v := range vols {
		tw.AppendRow(table.Row{v.ManifestID, v.Key, v.Destination, v.Branch, formatTime(&v.DispatchedAt), formatTime(v.ReceivedAt)})
	}
	tw.Render()
	fmt.Fprintf(w, "\n%d volumes (%d total)\n", len(vols), total)
}

func printProgressTable(w io.Writer, rows []reconcile.Progress, totals reconcile.Progress) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"MANIFEST", "EXPECTED", "CONFIRMED", "MISSING"})
	for _, p := range rows {
		missing := strconv.Itoa(p.Missing)
		if p.Missing > 0 {
			missing = ui.RenderWarn(missing)
		} else {
			missing = ui.RenderOK(missing)
		}
		tw.AppendRow(table.Row{p.ManifestID, p.Expected, p.Confirmed, missing})
	}
	if len(rows) > 1 {
		tw.AppendFooter(table.Row{"TOTAL", totals.Expected, totals.Confirmed, totals.Missing})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	tw.Render()
}

func printLoadResult(w io.Writer, res *client.LoadResult) {
	if rep := res.Report; rep != nil {
		fmt.Fprintf(w, "Loaded %d of %d manifests: %s\n", len(rep.Valid), len(rep.Requested), formatIDs(rep.Valid))
	}
	for _, warn := range res.Warnings {
		fmt.Fprintln(w, ui.RenderWarn("! "+warn))
	}
	printProgressTable(w, res.Progress, res.Totals)
}

func printResult(w io.Writer, res *reconcile.Result) {
	printProgressTable(w, res.Progress, res.Totals)
	fmt.Fprintln(w)
	if res.Complete {
		fmt.Fprintln(w, ui.RenderOK("All volumes received."))
		return
	}
	fmt.Fprintln(w, ui.RenderWarn(fmt.Sprintf("%d volumes missing.", res.Totals.Missing)))
	if len(res.MissingKeys) > 0 {
		for _, k := range res.MissingKeys {
			fmt.Fprintf(w, "  %s\n", k)
		}
	}
	if len(res.Incomplete) > 0 {
		fmt.Fprintf(w, "Incomplete manifests: %s\n", formatIDs(res.Incomplete))
	}
}

func printEvents(w io.Writer, evts []*model.Event) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "TIME", "TOPIC", "ACTOR"})
	for _, e := range evts {
		actor := e.Actor
		if actor == "" {
			actor = "-"
		}
		tw.AppendRow(table.Row{e.ID, formatTime(&e.CreatedAt), e.Topic, actor})
	}
	tw.Render()
}

func printInventory(w io.Writer, l *client.InventoryLookup) {
	fmt.Fprintf(w, "Key:         %s\n", l.Key)
	if l.Found {
		fmt.Fprintf(w, "Destination: %s\n", l.Destination)
		if l.Branch != "" {
			fmt.Fprintf(w, "Branch:      %s\n", l.Branch)
		}
		if l.Cached {
			fmt.Fprintln(w, ui.RenderMuted("(cached)"))
		}
	} else {
		fmt.Fprintln(w, "Destination: not found")
	}
	if l.Warning != "" {
		fmt.Fprintln(w, ui.RenderWarn("! "+l.Warning))
	}
}
