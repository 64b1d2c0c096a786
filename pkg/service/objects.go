package service

import (
	"bufio"
	"fmt"

	gvrpc "gitvault/pkg/api/gvrpc/v1"
	"gitvault/pkg/app"
	"gitvault/pkg/pack"
	"gitvault/pkg/types"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type ObjectsService struct {
	gvrpc.UnimplementedObjectsServer
	app *app.App
	log *zap.Logger
}

func NewObjectsService(application *app.App) *ObjectsService {
	return &ObjectsService{app: application, log: application.Log.Named("rpc.objects")}
}

// Upload 把客户端流当作一个 blob 写入
func (s *ObjectsService) Upload(stream grpc.ClientStreamingServer[wrapperspb.BytesValue, wrapperspb.StringValue]) error {
	id, err := s.app.Objects.PutBlob(stream.Context(), NewGrpcStreamReader(stream))
	if err != nil {
		return toStatus(err)
	}
	s.log.Debug("blob uploaded", zap.String("id", id.Short()))
	return stream.SendAndClose(wrapperspb.String(id.String()))
}

// Download 流式返回 blob 内容，ID 可以缩写
func (s *ObjectsService) Download(req *wrapperspb.StringValue, stream grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	ctx := stream.Context()
	id, err := s.app.Objects.Resolve(ctx, types.HashPrefix(req.GetValue()))
	if err != nil {
		return toStatus(err)
	}
	blob, err := s.app.Objects.ReadBlob(ctx, id)
	if err != nil {
		return toStatus(err)
	}
	if _, err := NewGrpcStreamWriter(stream).Write(blob.Data); err != nil {
		return err
	}
	return nil
}

// FetchPack 打包 roots 可达而 haves 不可达的全部对象
func (s *ObjectsService) FetchPack(req *structpb.Struct, stream grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	roots, err := hashList(req, "roots")
	if err != nil {
		return err
	}
	haves, err := hashList(req, "haves")
	if err != nil {
		return err
	}
	if len(roots) == 0 {
		return status.Error(codes.InvalidArgument, "roots is required")
	}
	// 客户端声称拥有、但本端不认识的对象直接忽略
	known := haves[:0]
	for _, id := range haves {
		if s.app.Objects.Exists(stream.Context(), id) {
			known = append(known, id)
		}
	}
	haves = known

	bw := bufio.NewWriterSize(NewGrpcStreamWriter(stream), ChunkSize)
	stats, err := pack.Build(stream.Context(), s.app.Graph, s.app.Objects, roots, haves, bw,
		pack.WithLogger(s.log))
	if err != nil {
		return toStatus(err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	s.log.Info("pack sent", zap.Int("objects", stats.Objects), zap.Int64("bytes", stats.Bytes))
	return nil
}

// PushPack 校验并写入客户端上传的 pack
func (s *ObjectsService) PushPack(stream grpc.ClientStreamingServer[wrapperspb.BytesValue, structpb.ListValue]) error {
	ids, err := pack.Unpack(stream.Context(), NewGrpcStreamReader(stream), s.app.Objects)
	if err != nil {
		return toStatus(err)
	}

	items := make([]any, 0, len(ids))
	for _, id := range ids {
		items = append(items, id.String())
	}
	out, err := structpb.NewList(items)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	s.log.Info("pack received", zap.Int("objects", len(ids)))
	return stream.SendAndClose(out)
}

func hashList(req *structpb.Struct, key string) ([]types.Hash, error) {
	values := req.GetFields()[key].GetListValue().GetValues()
	out := make([]types.Hash, 0, len(values))
	for i, v := range values {
		id := types.Hash(v.GetStringValue())
		if !id.IsValid() {
			return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("%s[%d]: invalid id %q", key, i, id))
		}
		out = append(out, id)
	}
	return out, nil
}
