package service

import (
	"context"
	"net"
	"testing"

	gvrpc "gitvault/pkg/api/gvrpc/v1"
	"gitvault/pkg/app"
	"gitvault/pkg/config"
	"gitvault/pkg/core"
	"gitvault/pkg/types"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// setupTestApp 是所有 Service 测试共享的基础设施初始化逻辑
// 它在临时目录里初始化一个仓库并返回 App 实例
func setupTestApp(t *testing.T, mods ...func(*config.Config)) *app.App {
	t.Helper()
	cfg := &config.Config{
		Repo:     config.RepoConfig{Path: t.TempDir()},
		Hash:     config.HashConfig{Algorithm: "sha256"},
		Storage:  config.StorageConfig{Type: "disk"},
		Refs:     config.RefsConfig{Backend: "files"},
		Database: config.DatabaseConfig{Driver: "sqlite"},
		Merge:    config.MergeConfig{TextMerge: true},
		User:     config.UserConfig{Name: "Tester", Email: "tester@example.com"},
	}
	for _, mod := range mods {
		mod(cfg)
	}
	a, err := app.Init(context.Background(), cfg, app.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

type testClients struct {
	refs    gvrpc.RefsClient
	objects gvrpc.ObjectsClient
}

// startServer 通过 bufconn 在内存里起一个 gRPC 服务
func startServer(t *testing.T, a *app.App) testClients {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	gvrpc.RegisterRefsServer(s, NewRefsService(a))
	gvrpc.RegisterObjectsServer(s, NewObjectsService(a))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return testClients{
		refs:    gvrpc.NewRefsClient(conn),
		objects: gvrpc.NewObjectsClient(conn),
	}
}

// commitFile 写一个只含单文件的提交
func commitFile(t *testing.T, a *app.App, parents []types.Hash, name, content string) types.Hash {
	t.Helper()
	ctx := context.Background()
	blob, err := a.Objects.Put(ctx, core.NewBlob([]byte(content)))
	require.NoError(t, err)
	tree, err := core.NewTree([]core.TreeEntry{{Name: name, Mode: core.ModeFile, ID: blob}})
	require.NoError(t, err)
	treeID, err := a.Objects.Put(ctx, tree)
	require.NoError(t, err)
	c, err := core.NewCommit(treeID, parents, a.Signature(), a.Signature(), "add "+name)
	require.NoError(t, err)
	id, err := a.Objects.Put(ctx, c)
	require.NoError(t, err)
	return id
}
