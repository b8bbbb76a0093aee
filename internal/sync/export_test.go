package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/store/storetest"
)

var exportTime = time.Date(2024, 6, 10, 23, 0, 0, 0, time.UTC)

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func seedStore() *storetest.Store {
	ms := storetest.New()
	closed := time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC)
	ms.Seed(model.Manifest{OriginSite: model.SiteReserva, CreatedBy: "ana@example.com", Status: model.ManifestClosed, ClosedAt: &closed},
		model.VolumeRecord{Key: "VOL-1", Destination: "Loja Centro"},
		model.VolumeRecord{Key: "VOL-2"},
	)
	ms.Seed(model.Manifest{OriginSite: model.SitePavuna, CreatedBy: "bia@example.com", Status: model.ManifestOpen})
	return ms
}

func TestExportJSONL_Empty(t *testing.T) {
	var buf bytes.Buffer
	h, err := ExportJSONL(context.Background(), storetest.New(), &buf, exportTime)
	if err != nil {
		t.Fatalf("ExportJSONL: %v", err)
	}
	lines := nonEmptyLines(buf.String())
	if len(lines) != 1 {
		t.Fatalf("expected header only, got %d lines", len(lines))
	}
	var got Header
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if got != h || got.Type != "header" || got.ManifestCount != 0 || !got.Timestamp.Equal(exportTime) {
		t.Fatalf("header = %+v", got)
	}
}

func TestExportJSONL_ManifestsWithVolumes(t *testing.T) {
	var buf bytes.Buffer
	h, err := ExportJSONL(context.Background(), seedStore(), &buf, exportTime)
	if err != nil {
		t.Fatalf("ExportJSONL: %v", err)
	}
	if h.ManifestCount != 2 || h.VolumeCount != 2 {
		t.Fatalf("header = %+v", h)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), buf.String())
	}
	var first, second manifestRecord
	if err := json.Unmarshal([]byte(lines[1]), &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[2]), &second); err != nil {
		t.Fatal(err)
	}
	if first.Type != "manifest" || first.Manifest.ID != 1 || len(first.Volumes) != 2 {
		t.Errorf("first = %+v", first)
	}
	if first.Volumes[0].Key != "VOL-1" || first.Volumes[0].Destination != "Loja Centro" {
		t.Errorf("volume = %+v", first.Volumes[0])
	}
	if second.Manifest.ID != 2 || second.Volumes == nil || len(second.Volumes) != 0 {
		t.Errorf("second = %+v", second)
	}
}

func TestExportJSONL_StoreError(t *testing.T) {
	ms := seedStore()
	ms.FailOn("ListVolumes", errors.New("connection reset"))
	var buf bytes.Buffer
	if _, err := ExportJSONL(context.Background(), ms, &buf, exportTime); err == nil || !strings.Contains(err.Error(), "list volumes") {
		t.Fatalf("err = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("partial output written: %s", buf.String())
	}
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2024, 6, 10, 23, 30, 0, 0, time.FixedZone("BRT", -3*3600))
	if got := objectKey("crossdock/{date}.jsonl", at); got != "crossdock/2024-06-11.jsonl" {
		t.Errorf("objectKey = %q", got)
	}
	if got := objectKey("crossdock/latest.jsonl", at); got != "crossdock/latest.jsonl" {
		t.Errorf("objectKey = %q", got)
	}
}
