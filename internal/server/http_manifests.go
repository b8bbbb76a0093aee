package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/report"
	"github.com/alfredjeanlab/crossdock/internal/volkey"
)

// handleListManifests handles GET /v1/manifests.
// Query params: status (comma-separated), origin, limit, offset.
func (s *CrossdockServer) handleListManifests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter model.ManifestFilter
	if v := q.Get("status"); v != "" {
		for _, st := range strings.Split(v, ",") {
			status := model.ManifestStatus(strings.TrimSpace(st))
			if !status.IsValid() {
				s.respondError(w, r, requestError(fmt.Sprintf("invalid status %q", st)))
				return
			}
			filter.Status = append(filter.Status, status)
		}
	}
	if v := q.Get("origin"); v != "" {
		site, ok := model.ParseSite(v)
		if !ok {
			s.respondError(w, r, requestError(fmt.Sprintf("invalid origin %q", v)))
			return
		}
		filter.Origin = site
	}
	filter.Limit = queryInt(r, "limit")
	filter.Offset = queryInt(r, "offset")
	if filter.Limit == 0 {
		filter.Limit = 50
	}

	manifests, total, err := s.store.ListManifests(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("listing manifests: %w", err))
		return
	}
	if manifests == nil {
		manifests = []*model.Manifest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"manifests": manifests, "total": total})
}

// handleGetManifest handles GET /v1/manifests/{id}.
func (s *CrossdockServer) handleGetManifest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	m, err := s.store.GetManifest(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	counts, err := s.store.CountVolumes(r.Context(), []int64{id})
	if err != nil {
		s.respondError(w, r, fmt.Errorf("counting volumes: %w", err))
		return
	}
	m.VolumeCount = counts[id]
	writeJSON(w, http.StatusOK, m)
}

// handlePrintManifest handles GET /v1/manifests/{id}/print?format=text|html|xlsx.
func (s *CrossdockServer) handlePrintManifest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.respondError(w, r, requestError(err.Error()))
		return
	}
	doc, err := s.dispatch.Document(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeDocument(w, r, format, doc)
}

// writeDocument renders doc into a buffer first so a render failure can
// still produce a clean error response.
func (s *CrossdockServer) writeDocument(w http.ResponseWriter, r *http.Request, format report.Format, doc *report.Document) {
	var buf bytes.Buffer
	if err := report.Render(&buf, format, doc, s.loc); err != nil {
		s.respondError(w, r, fmt.Errorf("rendering %s: %w", doc.Kind, err))
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	if format == report.FormatXLSX {
		name := fmt.Sprintf("%s-%d.%s", doc.Kind, doc.ManifestID, format.Extension())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleGetEvents handles GET /v1/manifests/{id}/events.
func (s *CrossdockServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	evts, err := s.store.GetEvents(r.Context(), id)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("getting events: %w", err))
		return
	}
	if evts == nil {
		evts = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, evts)
}

// handleListVolumes handles GET /v1/volumes.
// Query params: manifest_id (repeatable or comma-separated), received
// (true|false), sort, limit, offset.
func (s *CrossdockServer) handleListVolumes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter model.VolumeFilter
	for _, raw := range q["manifest_id"] {
		for _, part := range strings.Split(raw, ",") {
			var id int64
			if _, err := fmt.Sscan(strings.TrimSpace(part), &id); err != nil || id <= 0 {
				s.respondError(w, r, requestError(fmt.Sprintf("invalid manifest_id %q", part)))
				return
			}
			filter.ManifestIDs = append(filter.ManifestIDs, id)
		}
	}
	switch q.Get("received") {
	case "":
	case "true":
		filter.Received = model.ReceivedOnly
	case "false":
		filter.Received = model.PendingOnly
	default:
		s.respondError(w, r, requestError("received must be true or false"))
		return
	}
	filter.Sort = q.Get("sort")
	if filter.Sort == "" {
		filter.Sort = "-dispatched_at"
		if filter.Received == model.ReceivedOnly {
			filter.Sort = "-received_at"
		}
	}
	filter.Limit = queryInt(r, "limit")
	filter.Offset = queryInt(r, "offset")
	if filter.Limit == 0 {
		filter.Limit = 100
	}

	vols, total, err := s.store.ListVolumes(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("listing volumes: %w", err))
		return
	}
	if vols == nil {
		vols = []*model.VolumeRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"volumes": vols, "total": total})
}

// handleInventoryLookup handles GET /v1/inventory/{key}. A miss or an
// unavailable inventory is a 200 with found=false.
func (s *CrossdockServer) handleInventoryLookup(w http.ResponseWriter, r *http.Request) {
	key, err := volkey.Parse(r.PathValue("key"))
	if err != nil {
		s.respondError(w, r, requestError(err.Error()))
		return
	}
	res := s.gateway.Resolve(r.Context(), key)
	writeJSON(w, http.StatusOK, map[string]any{
		"key":         key,
		"found":       res.Found,
		"cached":      res.Cached,
		"destination": res.Label,
		"branch":      res.Branch,
		"warning":     res.Warning,
	})
}
