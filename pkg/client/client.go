package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	gvrpc "gitvault/pkg/api/gvrpc/v1"
	"gitvault/pkg/refs"
	"gitvault/pkg/types"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// chunkSize 上传时每条消息的大小
const chunkSize = 256 * 1024

// GVClient 封装了与 gitvault 服务端的连接
type GVClient struct {
	conn *grpc.ClientConn

	// 公开具体的 Service Client
	Refs    gvrpc.RefsClient
	Objects gvrpc.ObjectsClient
}

// NewGVClient 创建并初始化客户端
// 它会立即返回，连接在后台进行；extra 用于测试时注入 bufconn dialer
func NewGVClient(addr string, extra ...grpc.DialOption) (*GVClient, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(16<<20),
			grpc.MaxCallSendMsgSize(16<<20),
		),
		// 保持连接活跃
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	conn, err := grpc.NewClient(addr, append(opts, extra...)...)
	if err != nil {
		// 这里的 err 通常只是配置错误（如地址格式不对）
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", addr, err)
	}

	return &GVClient{
		conn:    conn,
		Refs:    gvrpc.NewRefsClient(conn),
		Objects: gvrpc.NewObjectsClient(conn),
	}, nil
}

// Close 关闭底层连接
func (c *GVClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// -----------------------------------------------------------------------------
// Refs
// -----------------------------------------------------------------------------

// Resolve 返回引用指向的 ID；symref 非空表示它是符号引用
func (c *GVClient) Resolve(ctx context.Context, name string) (id types.Hash, symref string, err error) {
	resp, err := c.Refs.Resolve(ctx, wrapperspb.String(name))
	if err != nil {
		return "", "", err
	}
	f := resp.GetFields()
	return types.Hash(f["id"].GetStringValue()), f["symref"].GetStringValue(), nil
}

// Update old 为空表示引用必须不存在
func (c *GVClient) Update(ctx context.Context, name string, old, newID types.Hash, msg string) error {
	req, err := structpb.NewStruct(map[string]any{
		"name":    name,
		"old":     old.String(),
		"new":     newID.String(),
		"message": msg,
	})
	if err != nil {
		return err
	}
	_, err = c.Refs.Update(ctx, req)
	return err
}

func (c *GVClient) Delete(ctx context.Context, name string, old types.Hash) error {
	req, err := structpb.NewStruct(map[string]any{"name": name, "old": old.String(), "delete": true})
	if err != nil {
		return err
	}
	_, err = c.Refs.Update(ctx, req)
	return err
}

func (c *GVClient) List(ctx context.Context, prefix string) ([]refs.Reference, error) {
	resp, err := c.Refs.List(ctx, wrapperspb.String(prefix))
	if err != nil {
		return nil, err
	}
	out := make([]refs.Reference, 0, len(resp.GetValues()))
	for _, v := range resp.GetValues() {
		f := v.GetStructValue().GetFields()
		name := f["name"].GetStringValue()
		if symref := f["symref"].GetStringValue(); symref != "" {
			out = append(out, refs.NewSymbolic(name, symref))
			continue
		}
		out = append(out, refs.NewDirect(name, types.Hash(f["target"].GetStringValue())))
	}
	return out, nil
}

// Watch 对每个变更事件调用 fn，直到 ctx 结束或 fn 返回错误
func (c *GVClient) Watch(ctx context.Context, prefix string, fn func(refs.Event) error) error {
	stream, err := c.Refs.Watch(ctx, wrapperspb.String(prefix))
	if err != nil {
		return err
	}
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		f := msg.GetFields()
		ev := refs.Event{
			Name:    f["name"].GetStringValue(),
			Old:     types.Hash(f["old"].GetStringValue()),
			New:     types.Hash(f["new"].GetStringValue()),
			Symref:  f["symref"].GetStringValue(),
			Deleted: f["deleted"].GetBoolValue(),
			Message: f["message"].GetStringValue(),
			When:    time.Unix(int64(f["when"].GetNumberValue()), 0),
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

// -----------------------------------------------------------------------------
// Objects
// -----------------------------------------------------------------------------

// UploadBlob 分块上传，返回服务端算出的 blob ID
func (c *GVClient) UploadBlob(ctx context.Context, r io.Reader) (types.Hash, error) {
	stream, err := c.Objects.Upload(ctx)
	if err != nil {
		return "", err
	}
	if err := sendAll(r, stream.Send); err != nil {
		return "", err
	}
	resp, err := stream.CloseAndRecv()
	if err != nil {
		return "", err
	}
	return types.Hash(resp.GetValue()), nil
}

// DownloadBlob 把 blob 内容写入 w，id 可以缩写
func (c *GVClient) DownloadBlob(ctx context.Context, id string, w io.Writer) error {
	stream, err := c.Objects.Download(ctx, wrapperspb.String(id))
	if err != nil {
		return err
	}
	return recvAll(stream, w)
}

// FetchPack 下载 roots 可达、haves 不可达的对象组成的 pack
func (c *GVClient) FetchPack(ctx context.Context, roots, haves []types.Hash, w io.Writer) error {
	req, err := structpb.NewStruct(map[string]any{
		"roots": hashesToAny(roots),
		"haves": hashesToAny(haves),
	})
	if err != nil {
		return err
	}
	stream, err := c.Objects.FetchPack(ctx, req)
	if err != nil {
		return err
	}
	return recvAll(stream, w)
}

// PushPack 上传一个 pack，返回服务端写入的对象
func (c *GVClient) PushPack(ctx context.Context, r io.Reader) ([]types.Hash, error) {
	stream, err := c.Objects.PushPack(ctx)
	if err != nil {
		return nil, err
	}
	if err := sendAll(r, stream.Send); err != nil {
		return nil, err
	}
	resp, err := stream.CloseAndRecv()
	if err != nil {
		return nil, err
	}
	out := make([]types.Hash, 0, len(resp.GetValues()))
	for _, v := range resp.GetValues() {
		out = append(out, types.Hash(v.GetStringValue()))
	}
	return out, nil
}

func sendAll(r io.Reader, send func(*wrapperspb.BytesValue) error) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if sendErr := send(wrapperspb.Bytes(chunk)); sendErr != nil {
				// 服务端提前结束时，真正的错误在 CloseAndRecv 里
				if errors.Is(sendErr, io.EOF) {
					return nil
				}
				return sendErr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func recvAll(stream grpc.ServerStreamingClient[wrapperspb.BytesValue], w io.Writer) error {
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := w.Write(msg.GetValue()); err != nil {
			return err
		}
	}
}

func hashesToAny(ids []types.Hash) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
