package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	serviceName             = "cluster.MasterController"
	methodBroadcastKeys     = "/cluster.MasterController/BroadcastKeys"
	methodUpdateStatus      = "/cluster.MasterController/UpdateStatus"
	methodGetAllKeys        = "/cluster.MasterController/GetAllKeys"
	methodGetAllStatus      = "/cluster.MasterController/GetAllStatus"
	streamNameWatchKeys     = "WatchKeys"
	methodWatchKeys         = "/cluster.MasterController/WatchKeys"
)

// MasterControllerServer is the server-side contract for the cluster
// coordination service: uniqueness-key broadcast and session status
// reporting across nodes.
type MasterControllerServer interface {
	BroadcastKeys(context.Context, *BroadcastKeysRequest) (*BroadcastKeysResponse, error)
	UpdateStatus(context.Context, *UpdateStatusRequest) (*UpdateStatusResponse, error)
	GetAllKeys(context.Context, *GetAllKeysRequest) (*GetAllKeysResponse, error)
	WatchKeys(*WatchKeysRequest, MasterController_WatchKeysServer) error
	GetAllStatus(context.Context, *GetAllStatusRequest) (*GetAllStatusResponse, error)
	mustEmbedUnimplementedMasterControllerServer()
}

// UnimplementedMasterControllerServer must be embedded by any
// MasterControllerServer implementation for forward compatibility with new
// RPCs added to the interface.
type UnimplementedMasterControllerServer struct{}

func (UnimplementedMasterControllerServer) BroadcastKeys(context.Context, *BroadcastKeysRequest) (*BroadcastKeysResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method BroadcastKeys not implemented")
}

func (UnimplementedMasterControllerServer) UpdateStatus(context.Context, *UpdateStatusRequest) (*UpdateStatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UpdateStatus not implemented")
}

func (UnimplementedMasterControllerServer) GetAllKeys(context.Context, *GetAllKeysRequest) (*GetAllKeysResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetAllKeys not implemented")
}

func (UnimplementedMasterControllerServer) WatchKeys(*WatchKeysRequest, MasterController_WatchKeysServer) error {
	return status.Error(codes.Unimplemented, "method WatchKeys not implemented")
}

func (UnimplementedMasterControllerServer) GetAllStatus(context.Context, *GetAllStatusRequest) (*GetAllStatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetAllStatus not implemented")
}

func (UnimplementedMasterControllerServer) mustEmbedUnimplementedMasterControllerServer() {}

// RegisterMasterControllerServer registers srv with s.
func RegisterMasterControllerServer(s grpc.ServiceRegistrar, srv MasterControllerServer) {
	s.RegisterService(&MasterController_ServiceDesc, srv)
}

// MasterController_WatchKeysServer is the server-side stream handle for the
// WatchKeys RPC.
type MasterController_WatchKeysServer interface {
	Send(*GetAllKeysResponse) error
	grpc.ServerStream
}

type masterControllerWatchKeysServer struct {
	grpc.ServerStream
}

func (x *masterControllerWatchKeysServer) Send(m *GetAllKeysResponse) error {
	return x.ServerStream.SendMsg(m)
}

func _MasterController_BroadcastKeys_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BroadcastKeysRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MasterControllerServer).BroadcastKeys(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodBroadcastKeys}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MasterControllerServer).BroadcastKeys(ctx, req.(*BroadcastKeysRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _MasterController_UpdateStatus_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UpdateStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MasterControllerServer).UpdateStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodUpdateStatus}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MasterControllerServer).UpdateStatus(ctx, req.(*UpdateStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _MasterController_GetAllKeys_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetAllKeysRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MasterControllerServer).GetAllKeys(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetAllKeys}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MasterControllerServer).GetAllKeys(ctx, req.(*GetAllKeysRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _MasterController_GetAllStatus_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetAllStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MasterControllerServer).GetAllStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetAllStatus}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MasterControllerServer).GetAllStatus(ctx, req.(*GetAllStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _MasterController_WatchKeys_Handler(srv any, stream grpc.ServerStream) error {
	m := new(WatchKeysRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(MasterControllerServer).WatchKeys(m, &masterControllerWatchKeysServer{stream})
}

// MasterController_ServiceDesc is the grpc.ServiceDesc for the
// MasterController service, mirroring what protoc-gen-go-grpc would emit.
var MasterController_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MasterControllerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "BroadcastKeys", Handler: _MasterController_BroadcastKeys_Handler},
		{MethodName: "UpdateStatus", Handler: _MasterController_UpdateStatus_Handler},
		{MethodName: "GetAllKeys", Handler: _MasterController_GetAllKeys_Handler},
		{MethodName: "GetAllStatus", Handler: _MasterController_GetAllStatus_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    streamNameWatchKeys,
			Handler:       _MasterController_WatchKeys_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "cluster/pb/service.go",
}

// MasterControllerClient is the client-side contract for the cluster
// coordination service.
type MasterControllerClient interface {
	BroadcastKeys(ctx context.Context, in *BroadcastKeysRequest, opts ...grpc.CallOption) (*BroadcastKeysResponse, error)
	UpdateStatus(ctx context.Context, in *UpdateStatusRequest, opts ...grpc.CallOption) (*UpdateStatusResponse, error)
	GetAllKeys(ctx context.Context, in *GetAllKeysRequest, opts ...grpc.CallOption) (*GetAllKeysResponse, error)
	WatchKeys(ctx context.Context, in *WatchKeysRequest, opts ...grpc.CallOption) (MasterController_WatchKeysClient, error)
	GetAllStatus(ctx context.Context, in *GetAllStatusRequest, opts ...grpc.CallOption) (*GetAllStatusResponse, error)
}

type masterControllerClient struct {
	cc grpc.ClientConnInterface
}

// NewMasterControllerClient wraps cc with the MasterController RPC surface.
func NewMasterControllerClient(cc grpc.ClientConnInterface) MasterControllerClient {
	return &masterControllerClient{cc}
}

// withJSONCodec prepends the json content-subtype call option so the wire
// format matches the codec registered in codec.go, regardless of whatever
// CallOptions the caller additionally supplies.
func withJSONCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
}

func (c *masterControllerClient) BroadcastKeys(ctx context.Context, in *BroadcastKeysRequest, opts ...grpc.CallOption) (*BroadcastKeysResponse, error) {
	out := new(BroadcastKeysResponse)
	if err := c.cc.Invoke(ctx, methodBroadcastKeys, in, out, withJSONCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *masterControllerClient) UpdateStatus(ctx context.Context, in *UpdateStatusRequest, opts ...grpc.CallOption) (*UpdateStatusResponse, error) {
	out := new(UpdateStatusResponse)
	if err := c.cc.Invoke(ctx, methodUpdateStatus, in, out, withJSONCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *masterControllerClient) GetAllKeys(ctx context.Context, in *GetAllKeysRequest, opts ...grpc.CallOption) (*GetAllKeysResponse, error) {
	out := new(GetAllKeysResponse)
	if err := c.cc.Invoke(ctx, methodGetAllKeys, in, out, withJSONCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *masterControllerClient) GetAllStatus(ctx context.Context, in *GetAllStatusRequest, opts ...grpc.CallOption) (*GetAllStatusResponse, error) {
	out := new(GetAllStatusResponse)
	if err := c.cc.Invoke(ctx, methodGetAllStatus, in, out, withJSONCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *masterControllerClient) WatchKeys(ctx context.Context, in *WatchKeysRequest, opts ...grpc.CallOption) (MasterController_WatchKeysClient, error) {
	stream, err := c.cc.NewStream(ctx, &MasterController_ServiceDesc.Streams[0], methodWatchKeys, withJSONCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &masterControllerWatchKeysClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// MasterController_WatchKeysClient is the client-side stream handle for the
// WatchKeys RPC.
type MasterController_WatchKeysClient interface {
	Recv() (*GetAllKeysResponse, error)
	grpc.ClientStream
}

type masterControllerWatchKeysClient struct {
	grpc.ClientStream
}

func (x *masterControllerWatchKeysClient) Recv() (*GetAllKeysResponse, error) {
	m := new(GetAllKeysResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
