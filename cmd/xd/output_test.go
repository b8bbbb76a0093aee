package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/reconcile"
)

func TestPrintProgressTable(t *testing.T) {
	rows := []reconcile.Progress{
		{ManifestID: 7, Expected: 3, Confirmed: 1, Missing: 2},
		{ManifestID: 5, Expected: 2, Confirmed: 2, Missing: 0},
	}
	var out bytes.Buffer
	printProgressTable(&out, rows, reconcile.Progress{Expected: 5, Confirmed: 3, Missing: 2})
	s := out.String()
	if !strings.Contains(s, "TOTAL") {
		t.Errorf("multi-manifest table has no total row:\n%s", s)
	}
	if strings.Index(s, "7") > strings.Index(s, "5") {
		t.Errorf("rows reordered:\n%s", s)
	}

	out.Reset()
	printProgressTable(&out, rows[:1], rows[0])
	if strings.Contains(out.String(), "TOTAL") {
		t.Errorf("single-manifest table has a total row:\n%s", out.String())
	}
}

func TestPrintResult(t *testing.T) {
	var out bytes.Buffer
	printResult(&out, &reconcile.Result{
		Complete:    false,
		MissingKeys: []string{"VOL-0009"},
		Progress:    []reconcile.Progress{{ManifestID: 3, Expected: 2, Confirmed: 1, Missing: 1}},
		Totals:      reconcile.Progress{Expected: 2, Confirmed: 1, Missing: 1},
	})
	s := out.String()
	if !strings.Contains(s, "1 volumes missing.") || !strings.Contains(s, "VOL-0009") {
		t.Errorf("output = %s", s)
	}

	out.Reset()
	printResult(&out, &reconcile.Result{Complete: true})
	if !strings.Contains(out.String(), "All volumes received.") {
		t.Errorf("output = %s", out.String())
	}
}

func TestPrintManifestTable(t *testing.T) {
	closed := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	printManifestTable(&out, []*model.Manifest{{
		ID:          12,
		OriginSite:  model.SiteReserva,
		CreatedBy:   "ana@example.com",
		Status:      model.ManifestClosed,
		OpenedAt:    closed.Add(-time.Hour),
		ClosedAt:    &closed,
		VolumeCount: 40,
	}}, 3)
	s := out.String()
	for _, want := range []string{"ORIGIN", "reserva", "ana@example.com", "closed", "40", "1 manifests (3 total)"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}

func TestFormatTime(t *testing.T) {
	if got := formatTime(nil); got != "-" {
		t.Errorf("formatTime(nil) = %q", got)
	}
	ts := time.Date(2026, 3, 2, 15, 4, 5, 0, time.Local)
	if got := formatTime(&ts); got != "2026-03-02 15:04:05" {
		t.Errorf("formatTime = %q", got)
	}
}

func TestWriteDocument(t *testing.T) {
	var out bytes.Buffer
	if err := writeDocument(&out, []byte("MANIFEST 1\n"), "text", ""); err != nil {
		t.Fatalf("writeDocument: %v", err)
	}
	if out.String() != "MANIFEST 1\n" {
		t.Errorf("stdout = %q", out.String())
	}

	path := filepath.Join(t.TempDir(), "manifest-1.xlsx")
	if err := writeDocument(&out, []byte("PK\x03\x04"), "xlsx", path); err != nil {
		t.Fatalf("writeDocument to file: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "PK\x03\x04" {
		t.Errorf("file = %q, %v", data, err)
	}
}
