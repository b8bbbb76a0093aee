package server

import (
	"net/http"

	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/session"
)

type createSessionInput struct {
	Identity string `json:"identity" validate:"required,email"`
	Site     string `json:"site" validate:"required"`
}

// handleCreateSession handles POST /v1/sessions. It is the login step:
// any email-shaped identity is accepted.
func (s *CrossdockServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var in createSessionInput
	if err := s.decodeBody(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	site, ok := model.ParseSite(in.Site)
	if !ok {
		s.respondError(w, r, model.Reject(model.ReasonInvalidSite, "unknown site "+in.Site))
		return
	}

	sess, err := s.Sessions.Create(in.Identity, site)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	sess.Lock()
	entry := sess.Snapshot(sess.CreatedAt)
	sess.Unlock()
	writeJSON(w, http.StatusCreated, entry)
}

// handleListSessions handles GET /v1/sessions.
func (s *CrossdockServer) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.Sessions.List()})
}

// handleGetSession handles GET /v1/sessions/{sid}.
func (s *CrossdockServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	var entry session.Entry
	err := s.withSession(r.PathValue("sid"), func(sess *session.Session) error {
		entry = sess.Snapshot(s.now())
		return nil
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleDeleteSession handles DELETE /v1/sessions/{sid}. Committed scans are
// unaffected; an open manifest stays open.
func (s *CrossdockServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.Sessions.Delete(r.PathValue("sid"))
	w.WriteHeader(http.StatusNoContent)
}
