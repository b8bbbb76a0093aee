package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/go-playground/validator/v10"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *CrossdockServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)

	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{sid}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{sid}", s.handleDeleteSession)

	mux.HandleFunc("POST /v1/sessions/{sid}/dispatch/open", s.handleDispatchOpen)
	mux.HandleFunc("POST /v1/sessions/{sid}/dispatch/scan", s.handleDispatchScan)
	mux.HandleFunc("POST /v1/sessions/{sid}/dispatch/close", s.handleDispatchClose)
	mux.HandleFunc("POST /v1/sessions/{sid}/dispatch/discard", s.handleDispatchDiscard)

	mux.HandleFunc("POST /v1/sessions/{sid}/receive/load", s.handleReceiveLoad)
	mux.HandleFunc("POST /v1/sessions/{sid}/receive/scan", s.handleReceiveScan)
	mux.HandleFunc("GET /v1/sessions/{sid}/receive/progress", s.handleReceiveProgress)
	mux.HandleFunc("POST /v1/sessions/{sid}/receive/finalize", s.handleReceiveFinalize)
	mux.HandleFunc("POST /v1/sessions/{sid}/receive/clear", s.handleReceiveClear)
	mux.HandleFunc("GET /v1/sessions/{sid}/receive/discrepancy/{id}", s.handleReceiveDiscrepancy)

	mux.HandleFunc("GET /v1/manifests", s.handleListManifests)
	mux.HandleFunc("GET /v1/manifests/{id}", s.handleGetManifest)
	mux.HandleFunc("GET /v1/manifests/{id}/print", s.handlePrintManifest)
	mux.HandleFunc("GET /v1/manifests/{id}/events", s.handleGetEvents)
	mux.HandleFunc("GET /v1/volumes", s.handleListVolumes)
	mux.HandleFunc("GET /v1/inventory/{key}", s.handleInventoryLookup)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *CrossdockServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"sessions":           s.Sessions.Len(),
		"inventory_enabled":  s.gateway.Enabled(),
		"inventory_cooldown": s.gateway.InCooldown(),
	})
}

// decodeBody decodes a JSON request body into dst and validates it. An empty
// body decodes as the zero value.
func (s *CrossdockServer) decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errBadBody
	}
	if err := s.validate.Struct(dst); err != nil {
		return validationMessage(err)
	}
	return nil
}

type requestError string

func (e requestError) Error() string { return string(e) }

const errBadBody = requestError("invalid JSON body")

// validationMessage flattens validator errors into one message such as
// "identity: email; site: required".
func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return requestError(err.Error())
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+": "+fe.Tag())
	}
	return requestError(strings.Join(parts, "; "))
}

// respondError writes err with the status it maps to. Rejections carry
// their reason so clients can branch on it.
func (s *CrossdockServer) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var re requestError
	if errors.As(err, &re) {
		writeError(w, http.StatusBadRequest, re.Error())
		return
	}
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	if rej, ok := model.AsRejection(err); ok {
		writeJSON(w, code, map[string]string{"error": rej.Message, "reason": string(rej.Reason)})
		return
	}
	writeError(w, code, err.Error())
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, requestError("invalid " + name + ": " + r.PathValue(name))
	}
	return id, nil
}

func queryInt(r *http.Request, name string) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
