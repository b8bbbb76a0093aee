package model

import "errors"

// Reason classifies a user-correctable rejection.
type Reason string

// RejectionDomain is the ErrorInfo domain under which gRPC status errors
// carry a Reason.
const RejectionDomain = "crossdock"

const (
	ReasonEmptyScan        Reason = "empty_scan"
	ReasonScanTooShort     Reason = "scan_too_short"
	ReasonDuplicate        Reason = "duplicate"
	ReasonNoActiveManifest Reason = "no_active_manifest"
	ReasonManifestActive   Reason = "manifest_already_open"
	ReasonManifestNotOpen  Reason = "manifest_not_open"
	ReasonManifestNotFound Reason = "manifest_not_found"
	ReasonManifestInvalid  Reason = "manifest_invalid"
	ReasonNoValidManifests Reason = "no_valid_manifests"
	ReasonNothingLoaded    Reason = "nothing_loaded"
	ReasonNotInManifest    Reason = "not_in_manifest"
	ReasonNotInAnyManifest Reason = "not_in_any_manifest"
	ReasonAlreadyReceived  Reason = "already_received"
	ReasonInvalidSite      Reason = "invalid_site"
	ReasonInvalidIdentity  Reason = "invalid_identity"
)

// Rejection is an operator-correctable refusal. No state was mutated.
type Rejection struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

func (r *Rejection) Error() string { return r.Message }

// Reject returns a *Rejection.
func Reject(reason Reason, message string) *Rejection {
	return &Rejection{Reason: reason, Message: message}
}

// AsRejection unwraps err to a *Rejection if it is one.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// IsConflict reports whether the rejection reflects existing state rather
// than malformed input.
func (r *Rejection) IsConflict() bool {
	switch r.Reason {
	case ReasonDuplicate, ReasonAlreadyReceived, ReasonManifestActive:
		return true
	}
	return false
}

// IsPrecondition reports whether the rejection is about the state of a
// manifest or session rather than the scanned value.
func (r *Rejection) IsPrecondition() bool {
	switch r.Reason {
	case ReasonNoActiveManifest, ReasonManifestNotOpen, ReasonManifestInvalid,
		ReasonNoValidManifests, ReasonNothingLoaded:
		return true
	}
	return false
}
