package graph

import (
	"context"
	"sync"
	"testing"
	"time"

	"gitvault/pkg/core"
	"gitvault/pkg/odb"
	"gitvault/pkg/storage/memory"
	"gitvault/pkg/types"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// dag 用名字搭建提交图的测试夹具
type dag struct {
	t     *testing.T
	store *odb.Store
	ids   map[string]types.Hash
	names map[types.Hash]string
	g     *Graph
}

func newDAG(t *testing.T, opts ...Option) *dag {
	t.Helper()
	store, err := odb.Open(context.Background(), memory.New(), types.SHA256)
	require.NoError(t, err)
	return &dag{
		t:     t,
		store: store,
		ids:   make(map[string]types.Hash),
		names: make(map[types.Hash]string),
		g:     New(store, append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...),
	}
}

// commit 以 name 为文件内容提交一次，when 是提交时间 (秒)
func (d *dag) commit(name string, when int64, parents ...string) types.Hash {
	d.t.Helper()
	ctx := context.Background()

	blobID, err := d.store.Put(ctx, core.NewBlob([]byte(name)))
	require.NoError(d.t, err)
	tree, err := core.NewTree([]core.TreeEntry{{Name: "file", Mode: core.ModeFile, ID: blobID}})
	require.NoError(d.t, err)
	treeID, err := d.store.Put(ctx, tree)
	require.NoError(d.t, err)

	var parentIDs []types.Hash
	for _, p := range parents {
		id, ok := d.ids[p]
		require.True(d.t, ok, "unknown parent %s", p)
		parentIDs = append(parentIDs, id)
	}
	sig := core.NewSignature("tester", "tester@example.com", time.Unix(when, 0).UTC())
	c, err := core.NewCommit(treeID, parentIDs, sig, sig, name)
	require.NoError(d.t, err)
	id, err := d.store.Put(ctx, c)
	require.NoError(d.t, err)

	d.ids[name] = id
	d.names[id] = name
	return id
}

func (d *dag) walkNames(starts []string, opts WalkOptions) []string {
	d.t.Helper()
	ctx := context.Background()
	var ids []types.Hash
	for _, s := range starts {
		ids = append(ids, d.ids[s])
	}
	w, err := d.g.Walk(ctx, ids, opts)
	require.NoError(d.t, err)

	var out []string
	require.NoError(d.t, w.ForEach(ctx, func(id types.Hash, _ *core.Commit) error {
		out = append(out, d.names[id])
		return nil
	}))
	return out
}

// memGenerations 内存版 GenerationStore
type memGenerations struct {
	mu     sync.Mutex
	gens   map[types.Hash]uint64
	stores int
}

func (m *memGenerations) LoadGeneration(_ context.Context, id types.Hash) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gens[id]
	return g, ok, nil
}

func (m *memGenerations) StoreGeneration(_ context.Context, id types.Hash, gen uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gens[id] = gen
	m.stores++
	return nil
}
