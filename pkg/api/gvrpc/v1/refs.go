package gvrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const RefsServiceName = "gitvault.v1.Refs"

const (
	RefsResolveMethod = "/gitvault.v1.Refs/Resolve"
	RefsUpdateMethod  = "/gitvault.v1.Refs/Update"
	RefsListMethod    = "/gitvault.v1.Refs/List"
	RefsWatchMethod   = "/gitvault.v1.Refs/Watch"
)

// RefsServer 服务端接口
type RefsServer interface {
	// Resolve 请求: 引用名；响应: {name, id, symref}
	Resolve(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// Update 请求: {name, old, new, message, delete}
	// old 为空表示引用必须不存在；delete=true 时忽略 new
	Update(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	// List 请求: 前缀；响应: [{name, target, symref}]
	List(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	// Watch 请求: 前缀；持续推送 {name, old, new, symref, deleted, message, when}
	Watch(*wrapperspb.StringValue, grpc.ServerStreamingServer[structpb.Struct]) error
}

// UnimplementedRefsServer 嵌入后可以只实现部分方法
type UnimplementedRefsServer struct{}

func (UnimplementedRefsServer) Resolve(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, errUnimplemented("Resolve")
}
func (UnimplementedRefsServer) Update(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, errUnimplemented("Update")
}
func (UnimplementedRefsServer) List(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error) {
	return nil, errUnimplemented("List")
}
func (UnimplementedRefsServer) Watch(*wrapperspb.StringValue, grpc.ServerStreamingServer[structpb.Struct]) error {
	return errUnimplemented("Watch")
}

func RegisterRefsServer(s grpc.ServiceRegistrar, srv RefsServer) {
	s.RegisterService(&RefsServiceDesc, srv)
}

func _Refs_Resolve_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RefsServer).Resolve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RefsResolveMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RefsServer).Resolve(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Refs_Update_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RefsServer).Update(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RefsUpdateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RefsServer).Update(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _Refs_List_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RefsServer).List(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RefsListMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RefsServer).List(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Refs_Watch_Handler(srv any, stream grpc.ServerStream) error {
	m := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(RefsServer).Watch(m, &grpc.GenericServerStream[wrapperspb.StringValue, structpb.Struct]{ServerStream: stream})
}

var RefsServiceDesc = grpc.ServiceDesc{
	ServiceName: RefsServiceName,
	HandlerType: (*RefsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Resolve", Handler: _Refs_Resolve_Handler},
		{MethodName: "Update", Handler: _Refs_Update_Handler},
		{MethodName: "List", Handler: _Refs_List_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: _Refs_Watch_Handler, ServerStreams: true},
	},
	Metadata: "gitvault/v1/refs",
}

// RefsClient 客户端接口
type RefsClient interface {
	Resolve(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	Update(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	List(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error)
	Watch(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error)
}

type refsClient struct {
	cc grpc.ClientConnInterface
}

func NewRefsClient(cc grpc.ClientConnInterface) RefsClient {
	return &refsClient{cc: cc}
}

func (c *refsClient) Resolve(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RefsResolveMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *refsClient) Update(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, RefsUpdateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *refsClient) List(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, RefsListMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *refsClient) Watch(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &RefsServiceDesc.Streams[0], RefsWatchMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[wrapperspb.StringValue, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
