package grpcapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"accountability-call-service/internal/service/session"
)

// Client calls the snapshot service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// PushSnapshot sends snap and returns the view the server derived from it.
func (c *Client) PushSnapshot(ctx context.Context, snap session.Snapshot, opts ...grpc.CallOption) (session.View, error) {
	in, err := toStruct(snap)
	if err != nil {
		return session.View{}, fmt.Errorf("encode snapshot: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PushSnapshotMethod, in, out, opts...); err != nil {
		return session.View{}, err
	}
	return decodeView(out)
}

// GetView fetches the latest view of room.
func (c *Client) GetView(ctx context.Context, room string, opts ...grpc.CallOption) (session.View, error) {
	in, err := structpb.NewStruct(map[string]any{"room": room})
	if err != nil {
		return session.View{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetViewMethod, in, out, opts...); err != nil {
		return session.View{}, err
	}
	return decodeView(out)
}

func decodeView(out *structpb.Struct) (session.View, error) {
	var view session.View
	if err := fromStruct(out, &view); err != nil {
		return session.View{}, fmt.Errorf("decode view: %w", err)
	}
	return view, nil
}
