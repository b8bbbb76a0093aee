package model

// ManifestFilter holds criteria for listing manifests.
type ManifestFilter struct {
	Status []ManifestStatus `json:"status,omitempty"`
	Origin Site             `json:"origin,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// ReceivedFilter narrows a volume query by receipt state.
type ReceivedFilter int

const (
	ReceivedAny ReceivedFilter = iota
	ReceivedOnly
	PendingOnly
)

// VolumeFilter holds criteria for listing volume records.
type VolumeFilter struct {
	ManifestIDs []int64        `json:"manifest_ids,omitempty"`
	Received    ReceivedFilter `json:"received,omitempty"`
	Sort        string         `json:"sort,omitempty"` // e.g. "-received_at", "key"; prefix "-" = descending; default insertion order
	Limit       int            `json:"limit,omitempty"`
	Offset      int            `json:"offset,omitempty"`
}
