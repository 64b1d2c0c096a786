package merge

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitvault/pkg/core"
	"gitvault/pkg/graph"
	"gitvault/pkg/odb"
	"gitvault/pkg/storage/memory"
	"gitvault/pkg/types"
)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *odb.Store
	engine *Engine
	clock  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := odb.Open(ctx, memory.New(), types.SHA256)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	return &fixture{
		t:      t,
		ctx:    ctx,
		store:  store,
		engine: New(store, graph.New(store, graph.WithLogger(log)), WithLogger(log)),
		clock:  1700000000,
	}
}

// file 内容以 "bin:" 开头时写成二进制
type files map[string]string

// tree 把 "a/b/c" 形式的路径写成嵌套树
func (f *fixture) tree(fs files) types.Hash {
	f.t.Helper()
	type node struct {
		blobs map[string]string
		dirs  map[string]*node
	}
	newNode := func() *node { return &node{blobs: map[string]string{}, dirs: map[string]*node{}} }
	root := newNode()
	for p, content := range fs {
		parts := strings.Split(p, "/")
		n := root
		for _, dir := range parts[:len(parts)-1] {
			if n.dirs[dir] == nil {
				n.dirs[dir] = newNode()
			}
			n = n.dirs[dir]
		}
		n.blobs[parts[len(parts)-1]] = content
	}

	var write func(n *node) types.Hash
	write = func(n *node) types.Hash {
		var entries []core.TreeEntry
		for name, content := range n.blobs {
			data := []byte(content)
			if raw, ok := strings.CutPrefix(content, "bin:"); ok {
				data = append([]byte{0}, raw...)
			}
			entries = append(entries, core.TreeEntry{Name: name, Mode: core.ModeFile, ID: f.put(core.NewBlob(data))})
		}
		for name, child := range n.dirs {
			entries = append(entries, core.TreeEntry{Name: name, Mode: core.ModeDir, ID: write(child)})
		}
		tree, err := core.NewTree(entries)
		require.NoError(f.t, err)
		return f.put(tree)
	}
	return write(root)
}

func (f *fixture) put(obj core.Object) types.Hash {
	f.t.Helper()
	id, err := f.store.Put(f.ctx, obj)
	require.NoError(f.t, err)
	return id
}

func (f *fixture) commit(fs files, parents ...types.Hash) types.Hash {
	f.t.Helper()
	f.clock += 60
	sig := core.NewSignature("tester", "tester@example.com", time.Unix(f.clock, 0).UTC())
	c, err := core.NewCommit(f.tree(fs), parents, sig, sig, "commit")
	require.NoError(f.t, err)
	return f.put(c)
}

func (f *fixture) blobID(content string) types.Hash {
	f.t.Helper()
	id, _, err := core.CalculateHash(types.SHA256, core.NewBlob([]byte(content)))
	require.NoError(f.t, err)
	return id
}

// read 把结果树展开成 path -> content
func (f *fixture) read(treeID types.Hash) files {
	f.t.Helper()
	out := files{}
	var walk func(prefix string, id types.Hash)
	walk = func(prefix string, id types.Hash) {
		tree, err := f.store.ReadTree(f.ctx, id)
		require.NoError(f.t, err)
		for _, e := range tree.Entries {
			p := e.Name
			if prefix != "" {
				p = prefix + "/" + e.Name
			}
			if e.Mode.IsDir() {
				walk(p, e.ID)
				continue
			}
			blob, err := f.store.ReadBlob(f.ctx, e.ID)
			require.NoError(f.t, err)
			out[p] = string(blob.Data)
		}
	}
	walk("", treeID)
	return out
}
