package report

import (
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func (d *Document) table() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Volume", "Destination", "Branch", "Check"})
	for i, r := range d.Rows {
		tw.AppendRow(table.Row{i + 1, r.Key, r.Destination, r.Branch, ""})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 5, WidthMin: 6},
	})
	return tw
}

// RenderText writes a plain-text rendition suitable for a receipt printer.
func RenderText(w io.Writer, doc *Document, loc *time.Location) error {
	var b strings.Builder
	b.WriteString(doc.title())
	b.WriteString("\n")
	for _, l := range doc.headerLines(loc) {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(doc.table().Render())
	b.WriteString("\n\nSignature: ______________________________\n")
	_, err := io.WriteString(w, b.String())
	return err
}

const htmlPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; width: 100%%; }
th, td { border: 1px solid #444; padding: 4px 8px; text-align: left; }
.signature { margin-top: 4em; }
@media print { button { display: none; } }
</style>
</head>
<body onload="window.print()">
<h1>%s</h1>
<p>%s</p>
%s
<p class="signature">Signature: ______________________________</p>
</body>
</html>
`

// RenderHTML writes a self-contained printable page.
func RenderHTML(w io.Writer, doc *Document, loc *time.Location) error {
	lines := doc.headerLines(loc)
	for i, l := range lines {
		lines[i] = html.EscapeString(l)
	}
	title := html.EscapeString(doc.title())
	_, err := fmt.Fprintf(w, htmlPage, title, title, strings.Join(lines, "<br>\n"), doc.table().RenderHTML())
	return err
}
