package client

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"gitvault/pkg/app"
	"gitvault/pkg/config"
	"gitvault/pkg/core"
	"gitvault/pkg/refs"
	"gitvault/pkg/server"
	"gitvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	cfg := &config.Config{
		Repo:    config.RepoConfig{Path: t.TempDir()},
		Hash:    config.HashConfig{Algorithm: "sha256"},
		Storage: config.StorageConfig{Type: "disk"},
		Refs:    config.RefsConfig{Backend: "files"},
		User:    config.UserConfig{Name: "Tester", Email: "tester@example.com"},
	}
	a, err := app.Init(context.Background(), cfg, app.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func dial(t *testing.T, a *app.App) *GVClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := server.New(a)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	c, err := NewGVClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func commit(t *testing.T, a *app.App, parents []types.Hash, content string) types.Hash {
	t.Helper()
	ctx := context.Background()
	blob, err := a.Objects.Put(ctx, core.NewBlob([]byte(content)))
	require.NoError(t, err)
	tree, err := core.NewTree([]core.TreeEntry{{Name: "f.txt", Mode: core.ModeFile, ID: blob}})
	require.NoError(t, err)
	treeID, err := a.Objects.Put(ctx, tree)
	require.NoError(t, err)
	c, err := core.NewCommit(treeID, parents, a.Signature(), a.Signature(), content)
	require.NoError(t, err)
	id, err := a.Objects.Put(ctx, c)
	require.NoError(t, err)
	return id
}

func TestClient_BlobRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := dial(t, newTestApp(t))

	data := strings.Repeat("gitvault ", 100_000)
	id, err := c.UploadBlob(ctx, strings.NewReader(data))
	require.NoError(t, err)
	require.True(t, id.IsValid())

	var buf bytes.Buffer
	require.NoError(t, c.DownloadBlob(ctx, id.String()[:10], &buf))
	assert.Equal(t, data, buf.String())
}

func TestClient_Refs(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	c := dial(t, a)
	first := commit(t, a, nil, "one")

	require.NoError(t, c.Update(ctx, "refs/heads/main", "", first, "init"))

	id, symref, err := c.Resolve(ctx, refs.HEAD)
	require.NoError(t, err)
	assert.Equal(t, first, id)
	assert.Equal(t, "refs/heads/main", symref)

	// CAS 失败
	err = c.Update(ctx, "refs/heads/main", "", first, "again")
	assert.Equal(t, codes.Aborted, status.Code(err))

	list, err := c.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	byName := map[string]refs.Reference{}
	for _, r := range list {
		byName[r.Name] = r
	}
	assert.True(t, byName[refs.HEAD].IsSymbolic())
	assert.Equal(t, first, byName["refs/heads/main"].Target)

	require.NoError(t, c.Delete(ctx, "refs/heads/main", first))
	_, _, err = c.Resolve(ctx, "refs/heads/main")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestClient_Watch(t *testing.T) {
	a := newTestApp(t)
	c := dial(t, a)
	id := commit(t, a, nil, "one")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan refs.Event, 1)
	go func() {
		_ = c.Watch(ctx, "refs/heads/", func(ev refs.Event) error {
			got <- ev
			return context.Canceled
		})
	}()

	n := 0
	var ev refs.Event
	require.Eventually(t, func() bool {
		select {
		case ev = <-got:
			return true
		default:
			n++
			_ = a.Refs.Update(ctx, "refs/heads/w"+strings.Repeat("x", n), "", id, "watch")
			return false
		}
	}, 3*time.Second, 20*time.Millisecond)
	assert.True(t, strings.HasPrefix(ev.Name, "refs/heads/w"))
	assert.Equal(t, id, ev.New)
	assert.False(t, ev.When.IsZero())
}

func TestClient_FetchPush(t *testing.T) {
	ctx := context.Background()
	src := newTestApp(t)
	dst := newTestApp(t)
	srcClient := dial(t, src)
	dstClient := dial(t, dst)

	first := commit(t, src, nil, "one")
	second := commit(t, src, []types.Hash{first}, "two")

	// dst 已经有 first，只传增量
	var full bytes.Buffer
	require.NoError(t, srcClient.FetchPack(ctx, []types.Hash{first}, nil, &full))
	_, err := dstClient.PushPack(ctx, &full)
	require.NoError(t, err)

	var delta bytes.Buffer
	require.NoError(t, srcClient.FetchPack(ctx, []types.Hash{second}, []types.Hash{first}, &delta))
	ids, err := dstClient.PushPack(ctx, &delta)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.Contains(t, ids, second)

	require.NoError(t, dstClient.Update(ctx, "refs/heads/main", "", second, "push"))
	got, err := dst.Refs.Resolve(ctx, "refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, second, got)
}
