// Package client talks to a crossdock server. ScanClient covers the scanning
// workflows and is implemented over both HTTP and gRPC; HTTPClient adds the
// query and printing endpoints.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/crossdock/internal/dispatch"
	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/reconcile"
	"github.com/alfredjeanlab/crossdock/internal/session"
)

// ScanClient is what the dispatch and receive commands need.
type ScanClient interface {
	CreateSession(ctx context.Context, identity string, site model.Site) (*session.Entry, error)
	OpenManifest(ctx context.Context, sessionID, defaultDestination string) (*model.Manifest, error)
	RecordVolume(ctx context.Context, sessionID, key, destination string) (*dispatch.Ack, error)
	CloseManifest(ctx context.Context, sessionID string) (*model.Manifest, error)
	LoadReceiving(ctx context.Context, sessionID string, req *LoadRequest) (*LoadResult, error)
	ReceiveVolume(ctx context.Context, sessionID, key string) (*reconcile.Receipt, error)
	FinalizeReceiving(ctx context.Context, sessionID string) (*reconcile.Result, error)
	Close() error
}

// LoadRequest selects one manifest by id or several from pasted text.
type LoadRequest struct {
	ManifestID int64  `json:"manifest_id,omitempty"`
	IDs        string `json:"ids,omitempty"`
}

// LoadResult is the response to a receiving load.
type LoadResult struct {
	Mode     reconcile.Mode        `json:"mode"`
	Report   *reconcile.LoadReport `json:"report,omitempty"`
	Progress []reconcile.Progress  `json:"progress"`
	Totals   reconcile.Progress    `json:"totals"`
	Warnings []string              `json:"warnings,omitempty"`
}

// ListManifestsRequest filters GET /v1/manifests.
type ListManifestsRequest struct {
	Status []string
	Origin string
	Limit  int
	Offset int
}

// ListManifestsResponse is the result of ListManifests.
type ListManifestsResponse struct {
	Manifests []*model.Manifest `json:"manifests"`
	Total     int               `json:"total"`
}

// ListVolumesRequest filters GET /v1/volumes. Received is "true", "false"
// or empty for both.
type ListVolumesRequest struct {
	ManifestIDs []int64
	Received    string
	Sort        string
	Limit       int
	Offset      int
}

// ListVolumesResponse is the result of ListVolumes.
type ListVolumesResponse struct {
	Volumes []*model.VolumeRecord `json:"volumes"`
	Total   int                   `json:"total"`
}

// InventoryLookup is the result of LookupInventory.
type InventoryLookup struct {
	Key         string `json:"key"`
	Found       bool   `json:"found"`
	Cached      bool   `json:"cached"`
	Destination string `json:"destination"`
	Branch      string `json:"branch"`
	Warning     string `json:"warning"`
}

// Health is the server health summary.
type Health struct {
	Status            string `json:"status"`
	Sessions          int    `json:"sessions"`
	InventoryEnabled  bool   `json:"inventory_enabled"`
	InventoryCooldown bool   `json:"inventory_cooldown"`
}

// APIError is an error response from the server. Reason is set for
// rejections the operator can act on.
type APIError struct {
	StatusCode int
	Message    string
	Reason     model.Reason
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Reason)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// ReasonOf returns the rejection reason carried by err, if any.
func ReasonOf(err error) model.Reason {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Reason
	}
	return ""
}
