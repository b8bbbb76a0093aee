package model

import "time"

// Site identifies one of the two distribution centers.
type Site string

const (
	SiteReserva Site = "reserva"
	SitePavuna  Site = "pavuna"
)

// String returns the string representation of the site.
func (s Site) String() string {
	return string(s)
}

// IsValid checks whether the site is a known value.
func (s Site) IsValid() bool {
	switch s {
	case SiteReserva, SitePavuna:
		return true
	}
	return false
}

// Label returns the operator-facing name of the site.
func (s Site) Label() string {
	switch s {
	case SiteReserva:
		return "CD Reserva"
	case SitePavuna:
		return "CD Pavuna"
	}
	return string(s)
}

// Counterpart returns the other distribution center. Manifests received at
// a site must originate from its counterpart.
func (s Site) Counterpart() Site {
	switch s {
	case SiteReserva:
		return SitePavuna
	case SitePavuna:
		return SiteReserva
	}
	return ""
}

// ParseSite accepts either the site code or its label, case-insensitively.
func ParseSite(v string) (Site, bool) {
	for _, s := range []Site{SiteReserva, SitePavuna} {
		if equalFold(v, string(s)) || equalFold(v, s.Label()) {
			return s, true
		}
	}
	return "", false
}

// ManifestStatus is the lifecycle state of a manifest.
type ManifestStatus string

const (
	ManifestOpen   ManifestStatus = "open"
	ManifestClosed ManifestStatus = "closed"
)

// String returns the string representation of the status.
func (s ManifestStatus) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s ManifestStatus) IsValid() bool {
	switch s {
	case ManifestOpen, ManifestClosed:
		return true
	}
	return false
}

// Manifest is a batch of volumes dispatched together from one site.
type Manifest struct {
	ID         int64          `json:"id"`
	OriginSite Site           `json:"origin_site"`
	CreatedBy  string         `json:"created_by"`
	Status     ManifestStatus `json:"status"`
	OpenedAt   time.Time      `json:"opened_at"`
	ClosedAt   *time.Time     `json:"closed_at,omitempty"`

	// Populated by listing queries, not stored in the manifests table.
	VolumeCount   int `json:"volume_count,omitempty"`
	ReceivedCount int `json:"received_count,omitempty"`
}

// IsOpen reports whether the manifest still accepts volumes.
func (m *Manifest) IsOpen() bool {
	return m.Status == ManifestOpen
}
