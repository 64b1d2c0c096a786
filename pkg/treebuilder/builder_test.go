package treebuilder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gitvault/pkg/core"
	"gitvault/pkg/ignore"
	"gitvault/pkg/index"
	"gitvault/pkg/ingester"
	"gitvault/pkg/odb"
	"gitvault/pkg/storage/memory"
	"gitvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *odb.Store {
	t.Helper()
	store, err := odb.Open(context.Background(), memory.New(), types.SHA256)
	require.NoError(t, err)
	return store
}

func putBlob(t *testing.T, s *odb.Store, content string) types.Hash {
	t.Helper()
	id, err := s.Put(context.Background(), core.NewBlob([]byte(content)))
	require.NoError(t, err)
	return id
}

func TestTreeBuilder(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	idx, err := index.NewIndex(filepath.Join(t.TempDir(), "index"))
	require.NoError(t, err)

	// root
	//  ├── a.txt
	//  ├── run.sh (exec)
	//  └── sub
	//       └── b.txt
	a := putBlob(t, store, "content-a")
	b := putBlob(t, store, "content-b")
	run := putBlob(t, store, "#!/bin/sh")
	idx.Add("a.txt", a, core.ModeFile, 9)
	idx.Add("run.sh", run, core.ModeExec, 9)
	idx.Add("sub/b.txt", b, 0, 9)

	rootID, err := NewBuilder(store).Build(ctx, idx.Snapshot())
	require.NoError(t, err)

	root, err := store.ReadTree(ctx, rootID)
	require.NoError(t, err)
	require.Len(t, root.Entries, 3)
	assert.Equal(t, "a.txt", root.Entries[0].Name)
	assert.Equal(t, a, root.Entries[0].ID)
	assert.Equal(t, core.ModeExec, root.Entries[1].Mode)

	sub, ok := root.Find("sub")
	require.True(t, ok)
	assert.Equal(t, core.ModeDir, sub.Mode)

	subTree, err := store.ReadTree(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, subTree.Entries, 1)
	assert.Equal(t, b, subTree.Entries[0].ID)
	assert.Equal(t, core.ModeFile, subTree.Entries[0].Mode)

	// 同样的输入得到同样的根
	again, err := NewBuilder(store).Build(ctx, idx.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, rootID, again)
}

func TestTreeBuilder_Empty(t *testing.T) {
	store := newStore(t)
	id, err := NewBuilder(store).Build(context.Background(), nil)
	require.NoError(t, err)

	tree, err := store.ReadTree(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, tree.Entries)
}

func TestTreeBuilder_PathConflict(t *testing.T) {
	store := newStore(t)
	x := putBlob(t, store, "x")

	_, err := NewBuilder(store).Build(context.Background(), map[string]index.Entry{
		"a":   {Path: "a", ID: x, Mode: core.ModeFile},
		"a/b": {Path: "a/b", ID: x, Mode: core.ModeFile},
	})
	assert.ErrorIs(t, err, ErrPathConflict)
}

func TestBuildDir_MatchesIndexBuild(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("content-a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("content-b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.tmp"), []byte("tmp"), 0o644))

	fromDir, err := NewBuilder(store).BuildDir(ctx, dir, ignore.FromLines("*.tmp"), ingester.NewIngester(store))
	require.NoError(t, err)

	fromIndex, err := NewBuilder(store).Build(ctx, map[string]index.Entry{
		"a.txt":     {ID: putBlob(t, store, "content-a"), Mode: core.ModeFile},
		"sub/b.txt": {ID: putBlob(t, store, "content-b"), Mode: core.ModeFile},
	})
	require.NoError(t, err)
	assert.Equal(t, fromIndex, fromDir)
}
