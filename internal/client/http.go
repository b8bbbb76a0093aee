package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/crossdock/internal/dispatch"
	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/reconcile"
	"github.com/alfredjeanlab/crossdock/internal/session"
)

var _ ScanClient = (*HTTPClient)(nil)

// HTTPClient talks to the crossdock HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a client for baseURL (e.g. "http://localhost:8080").
// When token is non-empty it is sent as a bearer token.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func sessionPath(sid, rest string) string {
	return "/v1/sessions/" + url.PathEscape(sid) + rest
}

// --- Sessions ---

func (c *HTTPClient) CreateSession(ctx context.Context, identity string, site model.Site) (*session.Entry, error) {
	var e session.Entry
	body := map[string]string{"identity": identity, "site": string(site)}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *HTTPClient) GetSession(ctx context.Context, sessionID string) (*session.Entry, error) {
	var e session.Entry
	if err := c.doJSON(ctx, http.MethodGet, sessionPath(sessionID, ""), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *HTTPClient) ListSessions(ctx context.Context) ([]session.Entry, error) {
	var resp struct {
		Sessions []session.Entry `json:"sessions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *HTTPClient) DeleteSession(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, http.MethodDelete, sessionPath(sessionID, ""), nil, nil)
}

// --- Dispatch ---

func (c *HTTPClient) OpenManifest(ctx context.Context, sessionID, defaultDestination string) (*model.Manifest, error) {
	var m model.Manifest
	body := map[string]string{"default_destination": defaultDestination}
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "/dispatch/open"), body, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *HTTPClient) RecordVolume(ctx context.Context, sessionID, key, destination string) (*dispatch.Ack, error) {
	var ack dispatch.Ack
	body := map[string]string{"key": key, "destination": destination}
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "/dispatch/scan"), body, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

func (c *HTTPClient) CloseManifest(ctx context.Context, sessionID string) (*model.Manifest, error) {
	var m model.Manifest
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "/dispatch/close"), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *HTTPClient) DiscardManifest(ctx context.Context, sessionID string) (*session.Entry, error) {
	var e session.Entry
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "/dispatch/discard"), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// --- Receiving ---

func (c *HTTPClient) LoadReceiving(ctx context.Context, sessionID string, req *LoadRequest) (*LoadResult, error) {
	var res LoadResult
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "/receive/load"), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) ReceiveVolume(ctx context.Context, sessionID, key string) (*reconcile.Receipt, error) {
	var rc reconcile.Receipt
	body := map[string]string{"key": key}
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "/receive/scan"), body, &rc); err != nil {
		return nil, err
	}
	return &rc, nil
}

func (c *HTTPClient) Progress(ctx context.Context, sessionID string) (*LoadResult, error) {
	var res LoadResult
	if err := c.doJSON(ctx, http.MethodGet, sessionPath(sessionID, "/receive/progress"), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) FinalizeReceiving(ctx context.Context, sessionID string) (*reconcile.Result, error) {
	var res reconcile.Result
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "/receive/finalize"), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) ClearReceiving(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "/receive/clear"), nil, nil)
}

// Discrepancy returns the rendered missing-volumes document for a manifest.
func (c *HTTPClient) Discrepancy(ctx context.Context, sessionID string, manifestID int64, format string) ([]byte, error) {
	path := sessionPath(sessionID, "/receive/discrepancy/"+strconv.FormatInt(manifestID, 10))
	return c.doRaw(ctx, path+formatQuery(format))
}

// --- Manifests and volumes ---

func (c *HTTPClient) ListManifests(ctx context.Context, req *ListManifestsRequest) (*ListManifestsResponse, error) {
	q := url.Values{}
	if len(req.Status) > 0 {
		q.Set("status", strings.Join(req.Status, ","))
	}
	if req.Origin != "" {
		q.Set("origin", req.Origin)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}
	path := "/v1/manifests"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp ListManifestsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) GetManifest(ctx context.Context, id int64) (*model.Manifest, error) {
	var m model.Manifest
	if err := c.doJSON(ctx, http.MethodGet, "/v1/manifests/"+strconv.FormatInt(id, 10), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// PrintManifest returns the rendered manifest document.
func (c *HTTPClient) PrintManifest(ctx context.Context, id int64, format string) ([]byte, error) {
	return c.doRaw(ctx, "/v1/manifests/"+strconv.FormatInt(id, 10)+"/print"+formatQuery(format))
}

func (c *HTTPClient) GetEvents(ctx context.Context, manifestID int64) ([]*model.Event, error) {
	var evts []*model.Event
	if err := c.doJSON(ctx, http.MethodGet, "/v1/manifests/"+strconv.FormatInt(manifestID, 10)+"/events", nil, &evts); err != nil {
		return nil, err
	}
	return evts, nil
}

func (c *HTTPClient) ListVolumes(ctx context.Context, req *ListVolumesRequest) (*ListVolumesResponse, error) {
	q := url.Values{}
	for _, id := range req.ManifestIDs {
		q.Add("manifest_id", strconv.FormatInt(id, 10))
	}
	if req.Received != "" {
		q.Set("received", req.Received)
	}
	if req.Sort != "" {
		q.Set("sort", req.Sort)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}
	path := "/v1/volumes"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp ListVolumesResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) LookupInventory(ctx context.Context, key string) (*InventoryLookup, error) {
	var l InventoryLookup
	if err := c.doJSON(ctx, http.MethodGet, "/v1/inventory/"+url.PathEscape(key), nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// --- internal helpers ---

func formatQuery(format string) string {
	if format == "" {
		return ""
	}
	return "?format=" + url.QueryEscape(format)
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends req and returns the body of a successful response.
func (c *HTTPClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error  string       `json:"error"`
			Reason model.Reason `json:"reason"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp.Error, Reason: errResp.Reason}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}

// doJSON performs a request with an optional JSON body and decodes the JSON
// response into result. A nil result discards the body.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, result any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	respBody, err := c.do(req)
	if err != nil {
		return err
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// doRaw performs a GET and returns the response body unparsed.
func (c *HTTPClient) doRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}
