package service

import (
	"context"
	"errors"
	"strings"

	gvrpc "gitvault/pkg/api/gvrpc/v1"
	"gitvault/pkg/app"
	"gitvault/pkg/refs"
	"gitvault/pkg/types"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// watchBuffer 每个 Watch 连接的事件缓冲
const watchBuffer = 64

type RefsService struct {
	gvrpc.UnimplementedRefsServer
	app *app.App
	log *zap.Logger
}

func NewRefsService(application *app.App) *RefsService {
	return &RefsService{app: application, log: application.Log.Named("rpc.refs")}
}

// Resolve 返回引用最终指向的 ID；符号引用额外带上 symref
func (s *RefsService) Resolve(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	name := req.GetValue()
	ref, err := s.app.Refs.Read(ctx, name)
	if err != nil {
		return nil, toStatus(err)
	}
	id, err := s.app.Refs.Resolve(ctx, name)
	if err != nil {
		return nil, toStatus(err)
	}

	fields := map[string]any{"name": name, "id": id.String(), "symref": ""}
	if ref.IsSymbolic() {
		fields["symref"] = ref.Symref
	}
	return structpb.NewStruct(fields)
}

// Update CAS 更新或删除一个引用
func (s *RefsService) Update(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	f := req.GetFields()
	name := f["name"].GetStringValue()
	oldID := types.Hash(f["old"].GetStringValue())
	msg := f["message"].GetStringValue()

	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	if !oldID.IsZero() && !oldID.IsValid() {
		return nil, status.Errorf(codes.InvalidArgument, "old: invalid id %q", oldID)
	}

	if f["delete"].GetBoolValue() {
		if err := s.app.Refs.Delete(ctx, name, oldID); err != nil {
			return nil, toStatus(err)
		}
		return &emptypb.Empty{}, nil
	}

	newID := types.Hash(f["new"].GetStringValue())
	if !newID.IsValid() {
		return nil, status.Errorf(codes.InvalidArgument, "new: invalid id %q", newID)
	}
	if msg == "" {
		msg = "update by rpc"
	}
	if err := s.app.Refs.Update(ctx, name, oldID, newID, msg); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *RefsService) List(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	list, err := s.app.Refs.ListByPrefix(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}

	items := make([]any, 0, len(list))
	for _, ref := range list {
		items = append(items, map[string]any{
			"name":   ref.Name,
			"target": ref.Target.String(),
			"symref": ref.Symref,
		})
	}
	return structpb.NewList(items)
}

// Watch 推送前缀匹配的引用变更，直到客户端断开
// 客户端消费太慢时事件会被丢弃
func (s *RefsService) Watch(req *wrapperspb.StringValue, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	prefix := req.GetValue()
	events, cancel := s.app.Refs.Subscribe(watchBuffer)
	defer cancel()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return toStatus(ctx.Err())
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(ev.Name, prefix) {
				continue
			}
			msg, err := eventToStruct(ev)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.Send(msg); err != nil {
				s.log.Debug("watch stream closed", zap.Error(err))
				return err
			}
		}
	}
}

func eventToStruct(ev refs.Event) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"name":    ev.Name,
		"old":     ev.Old.String(),
		"new":     ev.New.String(),
		"symref":  ev.Symref,
		"deleted": ev.Deleted,
		"message": ev.Message,
		"when":    float64(ev.When.Unix()),
	})
}
