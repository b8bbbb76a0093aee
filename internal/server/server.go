package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/dispatch"
	"github.com/alfredjeanlab/crossdock/internal/events"
	"github.com/alfredjeanlab/crossdock/internal/inventory"
	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/reconcile"
	"github.com/alfredjeanlab/crossdock/internal/session"
	"github.com/alfredjeanlab/crossdock/internal/store"
	"github.com/go-playground/validator/v10"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Options configures a CrossdockServer. Zero values select defaults.
type Options struct {
	Publisher events.Publisher
	Gateway   *inventory.Gateway
	Logger    *slog.Logger
	Location  *time.Location
	AckSuffix int
	Now       func() time.Time
}

// CrossdockServer serves the dispatch and receiving workflows over HTTP and
// gRPC. All per-operator state lives in the session registry.
type CrossdockServer struct {
	store     store.Store
	publisher events.Publisher
	recorder  *events.Recorder
	sseHub    *sseHub
	gateway   *inventory.Gateway
	dispatch  *dispatch.Engine
	reconcile *reconcile.Engine
	validate  *validator.Validate
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time

	Sessions *session.Registry
}

// NewCrossdockServer returns a server backed by the given store.
func NewCrossdockServer(s store.Store, opts Options) *CrossdockServer {
	if opts.Publisher == nil {
		opts.Publisher = &events.NoopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.AckSuffix <= 0 {
		opts.AckSuffix = dispatch.DefaultAckSuffix
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Gateway == nil {
		opts.Gateway = inventory.NewGateway(nil, inventory.Options{Logger: opts.Logger})
	}

	srv := &CrossdockServer{
		store:     s,
		publisher: opts.Publisher,
		recorder:  events.NewRecorder(s, opts.Publisher, opts.Logger),
		sseHub:    newSSEHub(),
		gateway:   opts.Gateway,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    opts.Logger,
		loc:       opts.Location,
		now:       opts.Now,
		Sessions:  session.New(opts.Logger),
	}
	srv.recorder.OnBroadcast(srv.sseHub.broadcast)

	srv.dispatch = dispatch.New(s,
		dispatch.WithResolver(opts.Gateway),
		dispatch.WithNotifier(srv.recorder),
		dispatch.WithLogger(opts.Logger),
		dispatch.WithClock(opts.Now),
		dispatch.WithAckSuffix(opts.AckSuffix),
	)
	srv.reconcile = reconcile.New(s,
		reconcile.WithNotifier(srv.recorder),
		reconcile.WithLogger(opts.Logger),
		reconcile.WithClock(opts.Now),
	)
	return srv
}

// withSession runs fn while holding the operator session identified by id.
func (s *CrossdockServer) withSession(id string, fn func(sess *session.Session) error) error {
	sess, err := s.Sessions.Get(id)
	if err != nil {
		return err
	}
	sess.Lock()
	defer sess.Unlock()
	return fn(sess)
}

// httpStatus maps an error to an HTTP status code.
func httpStatus(err error) int {
	if rej, ok := model.AsRejection(err); ok {
		switch {
		case rej.Reason == model.ReasonManifestNotFound:
			return http.StatusNotFound
		case rej.IsConflict():
			return http.StatusConflict
		case rej.IsPrecondition():
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadRequest
	}
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// grpcStatus maps an error to a gRPC status error.
func grpcStatus(err error) error {
	if rej, ok := model.AsRejection(err); ok {
		st := status.New(codes.InvalidArgument, rej.Message)
		switch {
		case rej.Reason == model.ReasonManifestNotFound:
			st = status.New(codes.NotFound, rej.Message)
		case rej.IsConflict():
			st = status.New(codes.AlreadyExists, rej.Message)
		case rej.IsPrecondition():
			st = status.New(codes.FailedPrecondition, rej.Message)
		}
		if detailed, err := st.WithDetails(&errdetails.ErrorInfo{
			Reason: string(rej.Reason),
			Domain: model.RejectionDomain,
		}); err == nil {
			st = detailed
		}
		return st.Err()
	}
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, session.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
