package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"strings"
	"testing"

	"gitvault/pkg/config"
	"gitvault/pkg/core"
	"gitvault/pkg/pack"
	"gitvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestObjectsService_UploadDownload(t *testing.T) {
	ctx := context.Background()
	a := setupTestApp(t)
	c := startServer(t, a)

	// 超过一个分块，验证拼接
	data := make([]byte, ChunkSize*2+123)
	_, err := rand.Read(data)
	require.NoError(t, err)

	up, err := c.objects.Upload(ctx)
	require.NoError(t, err)
	for off := 0; off < len(data); off += 100_000 {
		end := min(off+100_000, len(data))
		require.NoError(t, up.Send(wrapperspb.Bytes(data[off:end])))
	}
	resp, err := up.CloseAndRecv()
	require.NoError(t, err)
	id := types.Hash(resp.GetValue())
	require.True(t, id.IsValid())
	assert.True(t, a.Objects.Exists(ctx, id))

	// 用缩写 ID 下载
	down, err := c.objects.Download(ctx, wrapperspb.String(id.Short()))
	require.NoError(t, err)
	var buf bytes.Buffer
	for {
		msg, err := down.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.LessOrEqual(t, len(msg.GetValue()), ChunkSize)
		buf.Write(msg.GetValue())
	}
	assert.Equal(t, data, buf.Bytes())
}

func TestObjectsService_DownloadErrors(t *testing.T) {
	ctx := context.Background()
	a := setupTestApp(t)
	c := startServer(t, a)

	tests := []struct {
		name string
		id   string
		want codes.Code
	}{
		{name: "too short", id: "ab", want: codes.InvalidArgument},
		{name: "unknown", id: "deadbeef", want: codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream, err := c.objects.Download(ctx, wrapperspb.String(tt.id))
			require.NoError(t, err)
			_, err = stream.Recv()
			assert.Equal(t, tt.want, status.Code(err), "err: %v", err)
		})
	}
}

func TestObjectsService_FetchThenPush(t *testing.T) {
	ctx := context.Background()
	src := setupTestApp(t)
	dst := setupTestApp(t)
	srcClient := startServer(t, src)
	dstClient := startServer(t, dst)

	first := commitFile(t, src, nil, "a.txt", "one")
	second := commitFile(t, src, []types.Hash{first}, "b.txt", "two")

	req, err := structpb.NewStruct(map[string]any{
		"roots": []any{second.String()},
		"haves": []any{},
	})
	require.NoError(t, err)
	fetch, err := srcClient.objects.FetchPack(ctx, req)
	require.NoError(t, err)

	push, err := dstClient.objects.PushPack(ctx)
	require.NoError(t, err)
	for {
		msg, err := fetch.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.NoError(t, push.Send(msg))
	}
	resp, err := push.CloseAndRecv()
	require.NoError(t, err)

	// 2 个提交 + 2 棵树 + 2 个 blob
	assert.Len(t, resp.GetValues(), 6)
	for _, id := range []types.Hash{first, second} {
		assert.True(t, dst.Objects.Exists(ctx, id))
	}

	// 目标仓库现在可以直接引用这些提交
	require.NoError(t, dst.Refs.Update(ctx, "refs/heads/main", "", second, "fetch"))
	ok, err := dst.Graph.IsAncestor(ctx, first, second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestObjectsService_FetchPackValidation(t *testing.T) {
	ctx := context.Background()
	a := setupTestApp(t)
	c := startServer(t, a)

	for name, fields := range map[string]map[string]any{
		"no roots": {"roots": []any{}},
		"bad id":   {"roots": []any{"nothex"}},
	} {
		t.Run(name, func(t *testing.T) {
			req, err := structpb.NewStruct(fields)
			require.NoError(t, err)
			stream, err := c.objects.FetchPack(ctx, req)
			require.NoError(t, err)
			_, err = stream.Recv()
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestObjectsService_PushGarbage(t *testing.T) {
	ctx := context.Background()
	a := setupTestApp(t)
	c := startServer(t, a)

	push, err := c.objects.PushPack(ctx)
	require.NoError(t, err)
	require.NoError(t, push.Send(wrapperspb.Bytes([]byte("definitely not a pack"))))
	_, err = push.CloseAndRecv()
	assert.Equal(t, codes.DataLoss, status.Code(err), "err: %v", err)
}

func TestObjectsService_PushRespectsBlobLimit(t *testing.T) {
	ctx := context.Background()

	// 源仓库不限大小，打一个含 1 MiB 高压缩率 blob 的 pack
	src := setupTestApp(t)
	id := commitFile(t, src, nil, "big.bin", strings.Repeat("z", 1<<20))
	var buf bytes.Buffer
	_, err := pack.Build(ctx, src.Graph, src.Objects, []types.Hash{id}, nil, &buf)
	require.NoError(t, err)

	dst := setupTestApp(t, func(cfg *config.Config) { cfg.Limits.MaxBlobBytes = 1024 })
	c := startServer(t, dst)

	push, err := c.objects.PushPack(ctx)
	require.NoError(t, err)
	require.NoError(t, push.Send(wrapperspb.Bytes(buf.Bytes())))
	_, err = push.CloseAndRecv()
	assert.Equal(t, codes.ResourceExhausted, status.Code(err), "err: %v", err)

	blobID, _, err := core.CalculateHash(types.SHA256, core.NewBlob([]byte(strings.Repeat("z", 1<<20))))
	require.NoError(t, err)
	assert.False(t, dst.Objects.Exists(ctx, blobID))
}

func TestObjectsService_FetchIgnoresUnknownHaves(t *testing.T) {
	ctx := context.Background()
	a := setupTestApp(t)
	c := startServer(t, a)
	id := commitFile(t, a, nil, "a.txt", "one")

	req, err := structpb.NewStruct(map[string]any{
		"roots": []any{id.String()},
		"haves": []any{strings.Repeat("cd", 32)},
	})
	require.NoError(t, err)
	stream, err := c.objects.FetchPack(ctx, req)
	require.NoError(t, err)

	var buf bytes.Buffer
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		buf.Write(msg.GetValue())
	}
	assert.NotZero(t, buf.Len())
}
