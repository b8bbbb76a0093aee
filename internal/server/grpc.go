package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/structpb"
)

// ScanServiceName is the fully qualified gRPC service used by handheld
// scanners. Requests and responses are google.protobuf.Struct values whose
// fields mirror the HTTP JSON bodies.
const ScanServiceName = "crossdock.v1.ScanService"

// ScanServiceServer is the server API for ScanService.
type ScanServiceServer interface {
	CreateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OpenManifest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordVolume(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CloseManifest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LoadReceiving(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReceiveVolume(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FinalizeReceiving(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type scanCall func(ScanServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func scanMethodDesc(name string, call scanCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ScanServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ScanServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ScanServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ScanServiceDesc describes ScanService for grpc.Server.RegisterService.
var ScanServiceDesc = grpc.ServiceDesc{
	ServiceName: ScanServiceName,
	HandlerType: (*ScanServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		scanMethodDesc("CreateSession", ScanServiceServer.CreateSession),
		scanMethodDesc("OpenManifest", ScanServiceServer.OpenManifest),
		scanMethodDesc("RecordVolume", ScanServiceServer.RecordVolume),
		scanMethodDesc("CloseManifest", ScanServiceServer.CloseManifest),
		scanMethodDesc("LoadReceiving", ScanServiceServer.LoadReceiving),
		scanMethodDesc("ReceiveVolume", ScanServiceServer.ReceiveVolume),
		scanMethodDesc("FinalizeReceiving", ScanServiceServer.FinalizeReceiving),
	},
	Metadata: "crossdock/v1/scan.proto",
}

// NewGRPCServer creates a gRPC server with the standard interceptors and
// registers ScanService, the health service and reflection. The returned
// health server lets the caller flip to NOT_SERVING during shutdown.
func NewGRPCServer(srv *CrossdockServer, authToken string, logger *slog.Logger) (*grpc.Server, *health.Server) {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(logger),
			LoggingInterceptor(logger),
			AuthInterceptor(authToken),
		),
	)
	gs.RegisterService(&ScanServiceDesc, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ScanServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)
	return gs, hs
}

// toStruct converts any JSON-encodable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	return structpb.NewStruct(m)
}

func stringField(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}

// intField accepts a whole number or a decimal string, since scanners tend
// to send ids as text.
func intField(in *structpb.Struct, name string) (int64, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return 0, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		if k.NumberValue != math.Trunc(k.NumberValue) || k.NumberValue < 0 || k.NumberValue > math.MaxInt64 {
			return 0, fmt.Errorf("%s must be a positive integer", name)
		}
		return int64(k.NumberValue), nil
	case *structpb.Value_StringValue:
		if k.StringValue == "" {
			return 0, nil
		}
		n, err := strconv.ParseInt(k.StringValue, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%s must be a positive integer", name)
		}
		return n, nil
	case *structpb.Value_NullValue:
		return 0, nil
	}
	return 0, fmt.Errorf("%s must be a positive integer", name)
}
