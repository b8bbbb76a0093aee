package model

import "time"

// VolumeRecord is a single parcel recorded under a manifest.
type VolumeRecord struct {
	ID           int64      `json:"id"`
	ManifestID   int64      `json:"manifest_id"`
	Key          string     `json:"key"`
	Destination  string     `json:"destination,omitempty"`
	Branch       string     `json:"branch,omitempty"`
	DispatchedAt time.Time  `json:"dispatched_at"`
	ReceivedAt   *time.Time `json:"received_at,omitempty"`
}

// IsReceived reports whether the volume was confirmed at the destination site.
func (v *VolumeRecord) IsReceived() bool {
	return v.ReceivedAt != nil
}
