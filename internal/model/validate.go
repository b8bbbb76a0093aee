package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateManifest checks a Manifest for constraint violations.
func ValidateManifest(m *Manifest) error {
	var ve ValidationError

	if !m.OriginSite.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "origin_site",
			Message: fmt.Sprintf("invalid value %q", m.OriginSite),
		})
	}
	if strings.TrimSpace(m.CreatedBy) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "created_by", Message: "is required"})
	}
	if !m.Status.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "status",
			Message: fmt.Sprintf("invalid value %q", m.Status),
		})
	}

	// ClosedAt consistency with Status.
	if m.Status == ManifestClosed && m.ClosedAt == nil {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "closed_at",
			Message: "is required when status is closed",
		})
	}
	if m.Status == ManifestOpen && m.ClosedAt != nil {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "closed_at",
			Message: "must be nil while the manifest is open",
		})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateVolume checks a VolumeRecord for constraint violations.
func ValidateVolume(v *VolumeRecord) error {
	var ve ValidationError

	if v.ManifestID <= 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "manifest_id", Message: "is required"})
	}
	if v.Key == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "key", Message: "is required"})
	} else if utf8.RuneCountInString(v.Key) > 128 {
		ve.Errors = append(ve.Errors, FieldError{Field: "key", Message: "must be 128 characters or fewer"})
	}
	if v.DispatchedAt.IsZero() {
		ve.Errors = append(ve.Errors, FieldError{Field: "dispatched_at", Message: "is required"})
	}
	if v.ReceivedAt != nil && v.ReceivedAt.Before(v.DispatchedAt) {
		ve.Errors = append(ve.Errors, FieldError{Field: "received_at", Message: "cannot precede dispatched_at"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
