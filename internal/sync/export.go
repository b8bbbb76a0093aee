package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/store"
)

// exportPageSize bounds each manifest and volume query during export.
const exportPageSize = 500

// Header is the first JSONL record written by ExportJSONL.
type Header struct {
	Version       string    `json:"version"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	ManifestCount int       `json:"manifest_count"`
	VolumeCount   int       `json:"volume_count"`
}

// manifestRecord is one manifest line with its volumes embedded.
type manifestRecord struct {
	Type     string                `json:"type"`
	Manifest *model.Manifest       `json:"manifest"`
	Volumes  []*model.VolumeRecord `json:"volumes"`
}

// ExportJSONL writes every manifest, oldest first, with its volume records
// in scan order. The header counts let a restore verify completeness.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer, now time.Time) (Header, error) {
	manifests, err := allManifests(ctx, s)
	if err != nil {
		return Header{}, err
	}

	byManifest := make(map[int64][]*model.VolumeRecord, len(manifests))
	total := 0
	for start := 0; start < len(manifests); start += exportPageSize {
		end := min(start+exportPageSize, len(manifests))
		ids := make([]int64, 0, end-start)
		for _, m := range manifests[start:end] {
			ids = append(ids, m.ID)
		}
		vols, _, err := s.ListVolumes(ctx, model.VolumeFilter{ManifestIDs: ids, Sort: "dispatched_at"})
		if err != nil {
			return Header{}, fmt.Errorf("list volumes: %w", err)
		}
		for _, v := range vols {
			byManifest[v.ManifestID] = append(byManifest[v.ManifestID], v)
		}
		total += len(vols)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	h := Header{
		Version:       "1",
		Type:          "header",
		Timestamp:     now.UTC(),
		ManifestCount: len(manifests),
		VolumeCount:   total,
	}
	if err := enc.Encode(h); err != nil {
		return Header{}, fmt.Errorf("encode header: %w", err)
	}
	for _, m := range manifests {
		vols := byManifest[m.ID]
		if vols == nil {
			vols = []*model.VolumeRecord{}
		}
		if err := enc.Encode(manifestRecord{Type: "manifest", Manifest: m, Volumes: vols}); err != nil {
			return Header{}, fmt.Errorf("encode manifest %d: %w", m.ID, err)
		}
	}
	return h, nil
}

// allManifests pages through the store and returns manifests by ascending id.
func allManifests(ctx context.Context, s store.Store) ([]*model.Manifest, error) {
	var out []*model.Manifest
	for offset := 0; ; offset += exportPageSize {
		page, total, err := s.ListManifests(ctx, model.ManifestFilter{Limit: exportPageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("list manifests: %w", err)
		}
		out = append(out, page...)
		if len(page) == 0 || offset+len(page) >= total {
			break
		}
	}
	// Listings are newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
