// Package grpcapi exposes the session manager over gRPC. Messages are
// google.protobuf.Struct values carrying the JSON form of snapshots and views,
// so clients need no generated code.
package grpcapi

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"accountability-call-service/internal/service/session"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "accountability.call.v1.SnapshotService"

// Full method names.
const (
	PushSnapshotMethod = "/" + ServiceName + "/PushSnapshot"
	GetViewMethod      = "/" + ServiceName + "/GetView"
)

// SnapshotServiceServer is the server API for the snapshot service.
type SnapshotServiceServer interface {
	PushSnapshot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetView(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the snapshot service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SnapshotServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PushSnapshot", Handler: pushSnapshotHandler},
		{MethodName: "GetView", Handler: getViewHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "accountability/call/v1/snapshot.proto",
}

func pushSnapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SnapshotServiceServer).PushSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PushSnapshotMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SnapshotServiceServer).PushSnapshot(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getViewHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SnapshotServiceServer).GetView(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetViewMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SnapshotServiceServer).GetView(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Sessions is the part of *session.Manager the server uses.
type Sessions interface {
	Apply(ctx context.Context, snap session.Snapshot) (session.View, error)
	View(room string) (session.View, bool)
}

// Server implements SnapshotServiceServer.
type Server struct {
	sessions Sessions
}

// Register adds the snapshot service to g.
func Register(g *grpc.Server, sessions Sessions) *Server {
	s := &Server{sessions: sessions}
	g.RegisterService(&ServiceDesc, s)
	return s
}

// PushSnapshot applies a snapshot and returns the resulting view.
func (s *Server) PushSnapshot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var snap session.Snapshot
	if err := fromStruct(in, &snap); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode snapshot: %v", err)
	}
	snap.Origin = "grpc"

	view, err := s.sessions.Apply(ctx, snap)
	if errors.Is(err, session.ErrMissingRoom) {
		return nil, status.Error(codes.InvalidArgument, "room is required")
	}
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	log.Debug().
		Str("room", snap.Room).
		Int("transcriptions", len(snap.Transcriptions)).
		Uint64("sequence", view.Sequence).
		Msg("Snapshot pushed over gRPC")
	return toStruct(view)
}

// GetView returns the latest view for {"room": ...}.
func (s *Server) GetView(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	room := in.GetFields()["room"].GetStringValue()
	if room == "" {
		return nil, status.Error(codes.InvalidArgument, "room is required")
	}
	view, ok := s.sessions.View(room)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no session for room %q", room)
	}
	return toStruct(view)
}

func fromStruct(in *structpb.Struct, v any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return out, nil
}
