package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/crossdock/internal/dispatch"
	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/reconcile"
	"github.com/alfredjeanlab/crossdock/internal/session"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const scanService = "/crossdock.v1.ScanService/"

var _ ScanClient = (*GRPCClient)(nil)

// GRPCClient implements ScanClient over the ScanService gRPC API, which
// handheld scanners use instead of HTTP.
type GRPCClient struct {
	conn  *grpc.ClientConn
	token string
}

// NewGRPCClient connects to addr. When token is non-empty it is sent as
// bearer metadata on every call.
func NewGRPCClient(addr, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn, token: token}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// invoke sends fields to method and decodes the Struct response into result.
func (c *GRPCClient) invoke(ctx context.Context, method string, fields map[string]any, result any) error {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, scanService+method, in, out); err != nil {
		return fromStatus(err)
	}
	b, err := json.Marshal(out.AsMap())
	if err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if err := json.Unmarshal(b, result); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	return nil
}

func (c *GRPCClient) CreateSession(ctx context.Context, identity string, site model.Site) (*session.Entry, error) {
	var e session.Entry
	if err := c.invoke(ctx, "CreateSession", map[string]any{"identity": identity, "site": string(site)}, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *GRPCClient) OpenManifest(ctx context.Context, sessionID, defaultDestination string) (*model.Manifest, error) {
	var m model.Manifest
	fields := map[string]any{"session_id": sessionID, "default_destination": defaultDestination}
	if err := c.invoke(ctx, "OpenManifest", fields, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *GRPCClient) RecordVolume(ctx context.Context, sessionID, key, destination string) (*dispatch.Ack, error) {
	var ack dispatch.Ack
	fields := map[string]any{"session_id": sessionID, "key": key, "destination": destination}
	if err := c.invoke(ctx, "RecordVolume", fields, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

func (c *GRPCClient) CloseManifest(ctx context.Context, sessionID string) (*model.Manifest, error) {
	var m model.Manifest
	if err := c.invoke(ctx, "CloseManifest", map[string]any{"session_id": sessionID}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *GRPCClient) LoadReceiving(ctx context.Context, sessionID string, req *LoadRequest) (*LoadResult, error) {
	fields := map[string]any{"session_id": sessionID, "ids": req.IDs}
	if req.ManifestID > 0 {
		// Sent as text so large ids survive the float64 round trip.
		fields["manifest_id"] = fmt.Sprint(req.ManifestID)
	}
	var res LoadResult
	if err := c.invoke(ctx, "LoadReceiving", fields, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *GRPCClient) ReceiveVolume(ctx context.Context, sessionID, key string) (*reconcile.Receipt, error) {
	var rc reconcile.Receipt
	if err := c.invoke(ctx, "ReceiveVolume", map[string]any{"session_id": sessionID, "key": key}, &rc); err != nil {
		return nil, err
	}
	return &rc, nil
}

func (c *GRPCClient) FinalizeReceiving(ctx context.Context, sessionID string) (*reconcile.Result, error) {
	var res reconcile.Result
	if err := c.invoke(ctx, "FinalizeReceiving", map[string]any{"session_id": sessionID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// fromStatus turns a status error carrying a rejection reason into an
// APIError so callers can use ReasonOf on either transport.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == model.RejectionDomain {
			return &APIError{Message: st.Message(), Reason: model.Reason(info.GetReason())}
		}
	}
	return err
}
