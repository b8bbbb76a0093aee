package server

import (
	"net/http"

	"github.com/alfredjeanlab/crossdock/internal/dispatch"
	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/session"
)

type openManifestInput struct {
	DefaultDestination string `json:"default_destination" validate:"max=120"`
}

type scanInput struct {
	Key         string `json:"key" validate:"max=128"`
	Destination string `json:"destination" validate:"max=120"`
}

// handleDispatchOpen handles POST /v1/sessions/{sid}/dispatch/open.
func (s *CrossdockServer) handleDispatchOpen(w http.ResponseWriter, r *http.Request) {
	var in openManifestInput
	if err := s.decodeBody(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	var m *model.Manifest
	err := s.withSession(r.PathValue("sid"), func(sess *session.Session) error {
		var err error
		m, err = s.dispatch.Open(r.Context(), &sess.Dispatch, in.DefaultDestination)
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// handleDispatchScan handles POST /v1/sessions/{sid}/dispatch/scan.
func (s *CrossdockServer) handleDispatchScan(w http.ResponseWriter, r *http.Request) {
	var in scanInput
	if err := s.decodeBody(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	var ack *dispatch.Ack
	err := s.withSession(r.PathValue("sid"), func(sess *session.Session) error {
		var err error
		ack, err = s.dispatch.RecordVolume(r.Context(), &sess.Dispatch, in.Key, in.Destination)
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ack)
}

// handleDispatchClose handles POST /v1/sessions/{sid}/dispatch/close.
func (s *CrossdockServer) handleDispatchClose(w http.ResponseWriter, r *http.Request) {
	var m *model.Manifest
	err := s.withSession(r.PathValue("sid"), func(sess *session.Session) error {
		var err error
		m, err = s.dispatch.Close(r.Context(), &sess.Dispatch)
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleDispatchDiscard handles POST /v1/sessions/{sid}/dispatch/discard.
// The manifest stays open in the store; only the session forgets it.
func (s *CrossdockServer) handleDispatchDiscard(w http.ResponseWriter, r *http.Request) {
	var entry session.Entry
	err := s.withSession(r.PathValue("sid"), func(sess *session.Session) error {
		s.dispatch.Discard(&sess.Dispatch)
		entry = sess.Snapshot(s.now())
		return nil
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
