package server

import (
	"context"
	"net"
	"testing"
	"time"

	"gitvault/pkg/app"
	"gitvault/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := &config.Config{
		Repo:    config.RepoConfig{Path: t.TempDir()},
		Hash:    config.HashConfig{Algorithm: "sha1"},
		Storage: config.StorageConfig{Type: "memory"},
		Refs:    config.RefsConfig{Backend: "files"},
	}
	a, err := app.Init(context.Background(), cfg, app.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	defer a.Close()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(a)
	info := s.GetServiceInfo()
	assert.Contains(t, info, "gitvault.v1.Refs")
	assert.Contains(t, info, "gitvault.v1.Objects")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, s, lis, a.Log) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
