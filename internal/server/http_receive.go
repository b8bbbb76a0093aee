package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/reconcile"
	"github.com/alfredjeanlab/crossdock/internal/report"
	"github.com/alfredjeanlab/crossdock/internal/session"
)

// loadInput selects single mode with ManifestID or multi mode with IDs,
// a pasted free-text list.
type loadInput struct {
	ManifestID int64  `json:"manifest_id" validate:"gte=0"`
	IDs        string `json:"ids" validate:"max=10000"`
}

type loadResponse struct {
	Mode     reconcile.Mode        `json:"mode"`
	Report   *reconcile.LoadReport `json:"report,omitempty"`
	Progress []reconcile.Progress  `json:"progress"`
	Totals   reconcile.Progress    `json:"totals"`
	Warnings []string              `json:"warnings,omitempty"`
}

func loadWarnings(rep *reconcile.LoadReport) []string {
	if rep == nil {
		return nil
	}
	var out []string
	if len(rep.NotFound) > 0 {
		out = append(out, fmt.Sprintf("manifests not found: %s", joinIDs(rep.NotFound)))
	}
	for _, inv := range rep.Invalid {
		out = append(out, fmt.Sprintf("manifest %d skipped: %s", inv.ID, inv.Reason))
	}
	return out
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}

// loadReceiving replaces whatever the session was receiving. A positive
// manifestID selects single mode; otherwise ids is parsed as a pasted list.
// The report is returned even when the load is rejected.
func (s *CrossdockServer) loadReceiving(ctx context.Context, sid string, manifestID int64, ids string) (loadResponse, error) {
	var resp loadResponse
	err := s.withSession(sid, func(sess *session.Session) error {
		var (
			rs  *reconcile.Session
			rep *reconcile.LoadReport
			err error
		)
		if manifestID > 0 {
			rs, err = s.reconcile.Load(ctx, sess.Site, manifestID)
		} else {
			rs, rep, err = s.reconcile.LoadText(ctx, sess.Site, ids)
		}
		resp.Report = rep
		resp.Warnings = loadWarnings(rep)
		if err != nil {
			return err
		}
		sess.Receiving = rs
		resp.Mode = rs.Mode()
		resp.Progress = rs.Progress()
		resp.Totals = rs.Totals()
		return nil
	})
	return resp, err
}

// handleReceiveLoad handles POST /v1/sessions/{sid}/receive/load.
func (s *CrossdockServer) handleReceiveLoad(w http.ResponseWriter, r *http.Request) {
	var in loadInput
	if err := s.decodeBody(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	if in.ManifestID == 0 && strings.TrimSpace(in.IDs) == "" {
		s.respondError(w, r, requestError("manifest_id or ids is required"))
		return
	}

	resp, err := s.loadReceiving(r.Context(), r.PathValue("sid"), in.ManifestID, in.IDs)
	if err != nil {
		if rej, ok := model.AsRejection(err); ok && resp.Report != nil {
			writeJSON(w, httpStatus(err), map[string]any{
				"error":    rej.Message,
				"reason":   rej.Reason,
				"report":   resp.Report,
				"warnings": resp.Warnings,
			})
			return
		}
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReceiveScan handles POST /v1/sessions/{sid}/receive/scan.
func (s *CrossdockServer) handleReceiveScan(w http.ResponseWriter, r *http.Request) {
	var in scanInput
	if err := s.decodeBody(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	var rc *reconcile.Receipt
	err := s.withSession(r.PathValue("sid"), func(sess *session.Session) error {
		var err error
		rc, err = s.reconcile.Scan(r.Context(), sess.Receiving, sess.Identity, in.Key)
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

// handleReceiveProgress handles GET /v1/sessions/{sid}/receive/progress.
func (s *CrossdockServer) handleReceiveProgress(w http.ResponseWriter, r *http.Request) {
	var resp loadResponse
	err := s.withSession(r.PathValue("sid"), func(sess *session.Session) error {
		if !sess.Receiving.Loaded() {
			return model.Reject(model.ReasonNothingLoaded, "no manifest loaded for receiving")
		}
		resp.Mode = sess.Receiving.Mode()
		resp.Progress = sess.Receiving.Progress()
		resp.Totals = sess.Receiving.Totals()
		return nil
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReceiveFinalize handles POST /v1/sessions/{sid}/receive/finalize.
// An incomplete result is still a 200; the session stays loaded.
func (s *CrossdockServer) handleReceiveFinalize(w http.ResponseWriter, r *http.Request) {
	var res *reconcile.Result
	err := s.withSession(r.PathValue("sid"), func(sess *session.Session) error {
		var err error
		res, err = s.reconcile.Finalize(r.Context(), sess.Receiving, sess.Identity)
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleReceiveClear handles POST /v1/sessions/{sid}/receive/clear.
func (s *CrossdockServer) handleReceiveClear(w http.ResponseWriter, r *http.Request) {
	err := s.withSession(r.PathValue("sid"), func(sess *session.Session) error {
		if sess.Receiving != nil {
			sess.Receiving.Clear()
		}
		sess.Receiving = nil
		return nil
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReceiveDiscrepancy handles
// GET /v1/sessions/{sid}/receive/discrepancy/{id}?format=text|html|xlsx.
func (s *CrossdockServer) handleReceiveDiscrepancy(w http.ResponseWriter, r *http.Request) {
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
	var doc *report.Document
	err = s.withSession(r.PathValue("sid"), func(sess *session.Session) error {
		var err error
		doc, err = s.reconcile.Discrepancy(r.Context(), sess.Receiving, id, sess.Identity)
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeDocument(w, r, format, doc)
}
