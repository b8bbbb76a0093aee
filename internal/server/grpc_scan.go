package server

import (
	"context"
	"strings"

	"github.com/alfredjeanlab/crossdock/internal/dispatch"
	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/reconcile"
	"github.com/alfredjeanlab/crossdock/internal/session"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

var _ ScanServiceServer = (*CrossdockServer)(nil)

func respond(v any, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, grpcStatus(err)
	}
	out, err := toStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func sessionID(in *structpb.Struct) (string, error) {
	sid := strings.TrimSpace(stringField(in, "session_id"))
	if sid == "" {
		return "", status.Error(codes.InvalidArgument, "session_id is required")
	}
	return sid, nil
}

// CreateSession takes {identity, site}.
func (s *CrossdockServer) CreateSession(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	site, ok := model.ParseSite(stringField(in, "site"))
	if !ok {
		return respond(nil, model.Reject(model.ReasonInvalidSite, "unknown site "+stringField(in, "site")))
	}
	if err := s.validate.Var(stringField(in, "identity"), "required,email"); err != nil {
		return respond(nil, model.Reject(model.ReasonInvalidIdentity, "identity must be an email address"))
	}
	sess, err := s.Sessions.Create(stringField(in, "identity"), site)
	if err != nil {
		return respond(nil, err)
	}
	sess.Lock()
	defer sess.Unlock()
	return respond(sess.Snapshot(sess.CreatedAt), nil)
}

// OpenManifest takes {session_id, default_destination}.
func (s *CrossdockServer) OpenManifest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	sid, err := sessionID(in)
	if err != nil {
		return nil, err
	}
	var m *model.Manifest
	err = s.withSession(sid, func(sess *session.Session) error {
		m, err = s.dispatch.Open(ctx, &sess.Dispatch, stringField(in, "default_destination"))
		return err
	})
	return respond(m, err)
}

// RecordVolume takes {session_id, key, destination}.
func (s *CrossdockServer) RecordVolume(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	sid, err := sessionID(in)
	if err != nil {
		return nil, err
	}
	var ack *dispatch.Ack
	err = s.withSession(sid, func(sess *session.Session) error {
		ack, err = s.dispatch.RecordVolume(ctx, &sess.Dispatch, stringField(in, "key"), stringField(in, "destination"))
		return err
	})
	return respond(ack, err)
}

// CloseManifest takes {session_id}.
func (s *CrossdockServer) CloseManifest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	sid, err := sessionID(in)
	if err != nil {
		return nil, err
	}
	var m *model.Manifest
	err = s.withSession(sid, func(sess *session.Session) error {
		m, err = s.dispatch.Close(ctx, &sess.Dispatch)
		return err
	})
	return respond(m, err)
}

// LoadReceiving takes {session_id, manifest_id} or {session_id, ids}.
func (s *CrossdockServer) LoadReceiving(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	sid, err := sessionID(in)
	if err != nil {
		return nil, err
	}
	id, err := intField(in, "manifest_id")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	ids := stringField(in, "ids")
	if id == 0 && strings.TrimSpace(ids) == "" {
		return nil, status.Error(codes.InvalidArgument, "manifest_id or ids is required")
	}
	return respond(s.loadReceiving(ctx, sid, id, ids))
}

// ReceiveVolume takes {session_id, key}.
func (s *CrossdockServer) ReceiveVolume(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	sid, err := sessionID(in)
	if err != nil {
		return nil, err
	}
	var rc *reconcile.Receipt
	err = s.withSession(sid, func(sess *session.Session) error {
		rc, err = s.reconcile.Scan(ctx, sess.Receiving, sess.Identity, stringField(in, "key"))
		return err
	})
	return respond(rc, err)
}

// FinalizeReceiving takes {session_id}.
func (s *CrossdockServer) FinalizeReceiving(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	sid, err := sessionID(in)
	if err != nil {
		return nil, err
	}
	var res *reconcile.Result
	err = s.withSession(sid, func(sess *session.Session) error {
		res, err = s.reconcile.Finalize(ctx, sess.Receiving, sess.Identity)
		return err
	})
	return respond(res, err)
}
