package ingester

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"gitvault/pkg/core"
	"gitvault/pkg/ignore"
	"gitvault/pkg/odb"
	"gitvault/pkg/storage/disk"
	"gitvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, opts ...odb.Option) *odb.Store {
	t.Helper()
	backend, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)
	store, err := odb.Open(context.Background(), backend, types.SHA256, opts...)
	require.NoError(t, err)
	return store
}

func TestIngestFlow(t *testing.T) {
	// 1. 准备环境
	store := newStore(t)
	ing := NewIngester(store)
	ctx := context.Background()

	content := bytes.Repeat([]byte("Hello gitvault "), 5000)

	// 2. 执行 Ingest
	id, err := ing.IngestFile(ctx, bytes.NewReader(content))
	require.NoError(t, err)

	// 3. 验证数据落地且内容一致
	want, _, err := core.CalculateHash(types.SHA256, core.NewBlob(content))
	require.NoError(t, err)
	assert.Equal(t, want, id)

	blob, err := store.ReadBlob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, content, blob.Data)

	// 4. 重复入库是幂等的
	again, err := ing.IngestFile(ctx, bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestIngest_TooLarge(t *testing.T) {
	store := newStore(t, odb.WithMaxBlobSize(10))
	_, err := NewIngester(store).IngestFile(context.Background(), bytes.NewReader(make([]byte, 11)))
	assert.ErrorIs(t, err, odb.ErrBlobTooLarge)
}

func TestIngestPath_Modes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("需要 POSIX 权限位与符号链接")
	}
	ctx := context.Background()
	ing := NewIngester(newStore(t))
	dir := t.TempDir()

	plain := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(plain, []byte("text"), 0o644))
	script := filepath.Join(dir, "run.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"), 0o755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink("plain.txt", link))

	r, err := ing.IngestPath(ctx, plain)
	require.NoError(t, err)
	assert.Equal(t, core.ModeFile, r.Mode)
	assert.Equal(t, int64(4), r.Size)

	r, err = ing.IngestPath(ctx, script)
	require.NoError(t, err)
	assert.Equal(t, core.ModeExec, r.Mode)

	r, err = ing.IngestPath(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, core.ModeSymlink, r.Mode)
	want, _, _ := core.CalculateHash(types.SHA256, core.NewBlob([]byte("plain.txt")))
	assert.Equal(t, want, r.ID)

	_, err = ing.IngestPath(ctx, dir)
	assert.Error(t, err)
}

func TestIngestDir_SkipsIgnored(t *testing.T) {
	ctx := context.Background()
	ing := NewIngester(newStore(t))
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".gv", "objects"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "build"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.go"), []byte("package main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "debug.log"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gv", "objects", "junk"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build", "out"), []byte("x"), 0o644))

	var seen []string
	err := ing.IngestDir(ctx, dir, ignore.FromLines("*.log", "build/"), func(rel string, r Result) error {
		seen = append(seen, rel)
		assert.True(t, r.ID.IsValid())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"README", "src/main.go"}, seen)
}

func TestIngestSubdir_RelativeToRoot(t *testing.T) {
	ctx := context.Background()
	ing := NewIngester(newStore(t))
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "build"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top.txt"), []byte("top"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.go"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "build", "out"), []byte("x"), 0o644))

	var seen []string
	err := ing.IngestSubdir(ctx, dir, "src", ignore.FromLines("src/build/"), func(rel string, r Result) error {
		seen = append(seen, rel)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.go"}, seen)
}
