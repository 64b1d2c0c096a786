package gvrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ObjectsServiceName = "gitvault.v1.Objects"

const (
	ObjectsUploadMethod    = "/gitvault.v1.Objects/Upload"
	ObjectsDownloadMethod  = "/gitvault.v1.Objects/Download"
	ObjectsFetchPackMethod = "/gitvault.v1.Objects/FetchPack"
	ObjectsPushPackMethod  = "/gitvault.v1.Objects/PushPack"
)

// ObjectsServer 服务端接口；字节流按块传输，每块一个 BytesValue
type ObjectsServer interface {
	// Upload 客户端流: blob 内容；响应: blob ID
	Upload(grpc.ClientStreamingServer[wrapperspb.BytesValue, wrapperspb.StringValue]) error
	// Download 请求: 对象 ID (可缩写)；服务端流: blob 内容
	Download(*wrapperspb.StringValue, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error
	// FetchPack 请求: {roots: [...], haves: [...]}；服务端流: pack 字节
	FetchPack(*structpb.Struct, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error
	// PushPack 客户端流: pack 字节；响应: 写入的对象 ID 列表
	PushPack(grpc.ClientStreamingServer[wrapperspb.BytesValue, structpb.ListValue]) error
}

type UnimplementedObjectsServer struct{}

func (UnimplementedObjectsServer) Upload(grpc.ClientStreamingServer[wrapperspb.BytesValue, wrapperspb.StringValue]) error {
	return errUnimplemented("Upload")
}
func (UnimplementedObjectsServer) Download(*wrapperspb.StringValue, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	return errUnimplemented("Download")
}
func (UnimplementedObjectsServer) FetchPack(*structpb.Struct, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	return errUnimplemented("FetchPack")
}
func (UnimplementedObjectsServer) PushPack(grpc.ClientStreamingServer[wrapperspb.BytesValue, structpb.ListValue]) error {
	return errUnimplemented("PushPack")
}

func errUnimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func RegisterObjectsServer(s grpc.ServiceRegistrar, srv ObjectsServer) {
	s.RegisterService(&ObjectsServiceDesc, srv)
}

func _Objects_Upload_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(ObjectsServer).Upload(&grpc.GenericServerStream[wrapperspb.BytesValue, wrapperspb.StringValue]{ServerStream: stream})
}

func _Objects_Download_Handler(srv any, stream grpc.ServerStream) error {
	m := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ObjectsServer).Download(m, &grpc.GenericServerStream[wrapperspb.StringValue, wrapperspb.BytesValue]{ServerStream: stream})
}

func _Objects_FetchPack_Handler(srv any, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ObjectsServer).FetchPack(m, &grpc.GenericServerStream[structpb.Struct, wrapperspb.BytesValue]{ServerStream: stream})
}

func _Objects_PushPack_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(ObjectsServer).PushPack(&grpc.GenericServerStream[wrapperspb.BytesValue, structpb.ListValue]{ServerStream: stream})
}

var ObjectsServiceDesc = grpc.ServiceDesc{
	ServiceName: ObjectsServiceName,
	HandlerType: (*ObjectsServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{StreamName: "Upload", Handler: _Objects_Upload_Handler, ClientStreams: true},
		{StreamName: "Download", Handler: _Objects_Download_Handler, ServerStreams: true},
		{StreamName: "FetchPack", Handler: _Objects_FetchPack_Handler, ServerStreams: true},
		{StreamName: "PushPack", Handler: _Objects_PushPack_Handler, ClientStreams: true},
	},
	Metadata: "gitvault/v1/objects",
}

type ObjectsClient interface {
	Upload(ctx context.Context, opts ...grpc.CallOption) (grpc.ClientStreamingClient[wrapperspb.BytesValue, wrapperspb.StringValue], error)
	Download(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (grpc.ServerStreamingClient[wrapperspb.BytesValue], error)
	FetchPack(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[wrapperspb.BytesValue], error)
	PushPack(ctx context.Context, opts ...grpc.CallOption) (grpc.ClientStreamingClient[wrapperspb.BytesValue, structpb.ListValue], error)
}

type objectsClient struct {
	cc grpc.ClientConnInterface
}

func NewObjectsClient(cc grpc.ClientConnInterface) ObjectsClient {
	return &objectsClient{cc: cc}
}

func (c *objectsClient) Upload(ctx context.Context, opts ...grpc.CallOption) (grpc.ClientStreamingClient[wrapperspb.BytesValue, wrapperspb.StringValue], error) {
	stream, err := c.cc.NewStream(ctx, &ObjectsServiceDesc.Streams[0], ObjectsUploadMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[wrapperspb.BytesValue, wrapperspb.StringValue]{ClientStream: stream}, nil
}

func (c *objectsClient) Download(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (grpc.ServerStreamingClient[wrapperspb.BytesValue], error) {
	return serverStream[wrapperspb.StringValue, wrapperspb.BytesValue](ctx, c.cc, &ObjectsServiceDesc.Streams[1], ObjectsDownloadMethod, in, opts)
}

func (c *objectsClient) FetchPack(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[wrapperspb.BytesValue], error) {
	return serverStream[structpb.Struct, wrapperspb.BytesValue](ctx, c.cc, &ObjectsServiceDesc.Streams[2], ObjectsFetchPackMethod, in, opts)
}

func (c *objectsClient) PushPack(ctx context.Context, opts ...grpc.CallOption) (grpc.ClientStreamingClient[wrapperspb.BytesValue, structpb.ListValue], error) {
	stream, err := c.cc.NewStream(ctx, &ObjectsServiceDesc.Streams[3], ObjectsPushPackMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[wrapperspb.BytesValue, structpb.ListValue]{ClientStream: stream}, nil
}

// serverStream 发送唯一的请求后关闭发送端
func serverStream[Req any, Res any](ctx context.Context, cc grpc.ClientConnInterface, desc *grpc.StreamDesc, method string, in *Req, opts []grpc.CallOption) (grpc.ServerStreamingClient[Res], error) {
	stream, err := cc.NewStream(ctx, desc, method, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[Req, Res]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
