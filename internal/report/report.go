// Package report renders printable manifest and discrepancy documents.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Kind distinguishes the printable documents.
type Kind string

const (
	KindManifest    Kind = "manifest"
	KindDiscrepancy Kind = "discrepancy"
)

// Row is one printed volume line.
type Row struct {
	Key         string `json:"key"`
	Destination string `json:"destination,omitempty"`
	Branch      string `json:"branch,omitempty"`
}

// Document is everything a printable artifact needs.
type Document struct {
	Kind        Kind       `json:"kind"`
	ManifestID  int64      `json:"manifest_id"`
	Responsible string     `json:"responsible"`
	OriginLabel string     `json:"origin_label"`
	OpenedAt    time.Time  `json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	Rows        []Row      `json:"rows"`
}

// SortRows orders rows by destination then key, both ascending. Rows
// without a destination come first.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Destination != rows[j].Destination {
			return rows[i].Destination < rows[j].Destination
		}
		return rows[i].Key < rows[j].Key
	})
}

// Format selects a renderer.
type Format string

const (
	FormatText Format = "text"
	FormatHTML Format = "html"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts a format name; empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatHTML, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unknown print format %q (want text, html or xlsx)", s)
}

// ContentType returns the MIME type of the rendered output.
func (f Format) ContentType() string {
	switch f {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/plain; charset=utf-8"
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	if f == FormatText {
		return "txt"
	}
	return string(f)
}

// Render writes doc to w in format f. Times are shown in loc; nil means UTC.
func Render(w io.Writer, f Format, doc *Document, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	switch f {
	case FormatText, "":
		return RenderText(w, doc, loc)
	case FormatHTML:
		return RenderHTML(w, doc, loc)
	case FormatXLSX:
		return RenderXLSX(w, doc, loc)
	}
	return fmt.Errorf("unknown print format %q", f)
}

func (d *Document) title() string {
	if d.Kind == KindDiscrepancy {
		return fmt.Sprintf("Missing volumes - manifest #%d", d.ManifestID)
	}
	return fmt.Sprintf("Manifest #%d", d.ManifestID)
}

func (d *Document) headerLines(loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	lines := []string{
		"Origin: " + d.OriginLabel,
		"Responsible: " + d.Responsible,
	}
	if !d.OpenedAt.IsZero() {
		lines = append(lines, "Opened: "+d.OpenedAt.In(loc).Format("02/01/2006 15:04"))
	}
	if d.ClosedAt != nil {
		lines = append(lines, "Closed: "+d.ClosedAt.In(loc).Format("02/01/2006 15:04"))
	}
	lines = append(lines, fmt.Sprintf("Volumes: %d", len(d.Rows)))
	return lines
}
