package exporter

import (
	"bytes"
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitvault/pkg/core"
	"gitvault/pkg/ingester"
	"gitvault/pkg/odb"
	"gitvault/pkg/storage/disk"
	"gitvault/pkg/types"
)

func newStore(t *testing.T) *odb.Store {
	t.Helper()
	backend, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)
	store, err := odb.Open(context.Background(), backend, types.SHA256)
	require.NoError(t, err)
	return store
}

func TestIngestAndExport_RoundTrip(t *testing.T) {
	store := newStore(t)
	ing := ingester.NewIngester(store)
	exp := NewExporter(store)
	ctx := context.Background()

	originalData := make([]byte, 500*1024)
	_, err := rand.Read(originalData)
	require.NoError(t, err)

	id, err := ing.IngestFile(ctx, bytes.NewReader(originalData))
	require.NoError(t, err)

	var restored bytes.Buffer
	require.NoError(t, exp.ExportBlob(ctx, id, &restored))
	assert.Equal(t, originalData, restored.Bytes())
}

// TestRestoreAndPrint_Integration 模拟 Commit -> Tree -> Blob 的完整链条
func TestRestoreAndPrint_Integration(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("需要符号链接和权限位")
	}
	store := newStore(t)
	exp := NewExporter(store)
	ctx := context.Background()

	put := func(obj core.Object) types.Hash {
		id, err := store.Put(ctx, obj)
		require.NoError(t, err)
		return id
	}

	content := []byte("hello restore")
	blobID := put(core.NewBlob(content))
	scriptID := put(core.NewBlob([]byte("#!/bin/sh\necho hi\n")))
	linkID := put(core.NewBlob([]byte("test.txt")))

	sub, err := core.NewTree([]core.TreeEntry{{Name: "run.sh", Mode: core.ModeExec, ID: scriptID}})
	require.NoError(t, err)
	subID := put(sub)

	tree, err := core.NewTree([]core.TreeEntry{
		{Name: "test.txt", Mode: core.ModeFile, ID: blobID},
		{Name: "bin", Mode: core.ModeDir, ID: subID},
		{Name: "latest", Mode: core.ModeSymlink, ID: linkID},
	})
	require.NoError(t, err)
	treeID := put(tree)

	sig := core.NewSignature("Tester", "tester@example.com", time.Unix(1700000000, 0))
	commit, err := core.NewCommit(treeID, nil, sig, sig, "Init")
	require.NoError(t, err)
	commitID := put(commit)

	tag, err := core.NewTag(commitID, core.TypeCommit, "v1", sig, "release")
	require.NoError(t, err)
	tagID := put(tag)

	// ---------------------------------------------------
	// Test A: ExportTree
	// ---------------------------------------------------
	restoreDir := t.TempDir()
	// 预先放一个旧文件，应被覆盖
	require.NoError(t, os.WriteFile(filepath.Join(restoreDir, "test.txt"), []byte("stale"), 0o600))

	var restored []string
	err = exp.ExportTree(ctx, treeID, restoreDir, func(path string, entry core.TreeEntry, size int64) {
		restored = append(restored, path)
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bin/run.sh", "latest", "test.txt"}, restored)

	got, err := os.ReadFile(filepath.Join(restoreDir, "test.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, got)

	info, err := os.Stat(filepath.Join(restoreDir, "bin", "run.sh"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o100, "可执行位应保留")

	target, err := os.Readlink(filepath.Join(restoreDir, "latest"))
	require.NoError(t, err)
	assert.Equal(t, "test.txt", target)

	// ---------------------------------------------------
	// Test B: PrintObject
	// ---------------------------------------------------
	var buf bytes.Buffer

	require.NoError(t, exp.PrintObject(ctx, commitID, &buf))
	assert.Contains(t, buf.String(), "Type:      commit")
	assert.Contains(t, buf.String(), "Tester")
	assert.Contains(t, buf.String(), treeID.String())

	buf.Reset()
	require.NoError(t, exp.PrintObject(ctx, treeID, &buf))
	assert.Contains(t, buf.String(), "Type: tree")
	assert.Contains(t, buf.String(), "120000")
	assert.Contains(t, buf.String(), "test.txt")

	buf.Reset()
	require.NoError(t, exp.PrintObject(ctx, tagID, &buf))
	assert.Contains(t, buf.String(), "Tag:    v1")

	buf.Reset()
	require.NoError(t, exp.PrintObject(ctx, blobID, &buf))
	assert.Contains(t, buf.String(), "hello restore")

	binID := put(core.NewBlob([]byte{0xff, 0xfe, 0x00}))
	buf.Reset()
	require.NoError(t, exp.PrintObject(ctx, binID, &buf))
	assert.Contains(t, buf.String(), "binary data not shown")
}

func TestExportTree_RejectsReservedDir(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	blobID, err := store.Put(ctx, core.NewBlob([]byte("x")))
	require.NoError(t, err)
	inner, err := core.NewTree([]core.TreeEntry{{Name: "HEAD", Mode: core.ModeFile, ID: blobID}})
	require.NoError(t, err)
	innerID, err := store.Put(ctx, inner)
	require.NoError(t, err)
	root, err := core.NewTree([]core.TreeEntry{{Name: ".gv", Mode: core.ModeDir, ID: innerID}})
	require.NoError(t, err)
	rootID, err := store.Put(ctx, root)
	require.NoError(t, err)

	err = NewExporter(store).ExportTree(ctx, rootID, t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrUnsafePath)
}
