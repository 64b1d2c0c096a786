package graph

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"gitvault/pkg/core"
	"gitvault/pkg/storage"
	"gitvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//	A - B - C        (main)
//	     \
//	      D - E      (topic)
func forkDAG(t *testing.T) *dag {
	d := newDAG(t)
	d.commit("A", 100)
	d.commit("B", 200, "A")
	d.commit("C", 300, "B")
	d.commit("D", 250, "B")
	d.commit("E", 350, "D")
	return d
}

func TestParentsAndGeneration(t *testing.T) {
	ctx := context.Background()
	d := forkDAG(t)
	d.commit("M", 400, "C", "E")

	parents, err := d.g.Parents(ctx, d.ids["M"])
	require.NoError(t, err)
	assert.Equal(t, []types.Hash{d.ids["C"], d.ids["E"]}, parents, "父节点顺序必须保持")

	for name, want := range map[string]uint64{"A": 1, "B": 2, "C": 3, "E": 4, "M": 5} {
		gen, err := d.g.Generation(ctx, d.ids[name])
		require.NoError(t, err)
		assert.Equal(t, want, gen, name)
	}
}

func TestIsAncestor(t *testing.T) {
	ctx := context.Background()
	d := forkDAG(t)

	tests := []struct {
		candidate, commit string
		want              bool
	}{
		{"C", "C", true}, // 自反
		{"A", "C", true},
		{"B", "E", true},
		{"C", "A", false},
		{"C", "E", false},
		{"D", "C", false},
	}
	for _, tt := range tests {
		t.Run(tt.candidate+"->"+tt.commit, func(t *testing.T) {
			got, err := d.g.IsAncestor(ctx, d.ids[tt.candidate], d.ids[tt.commit])
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeBase_Fork(t *testing.T) {
	ctx := context.Background()
	d := forkDAG(t)

	base, found, err := d.g.MergeBase(ctx, d.ids["C"], d.ids["E"])
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, d.ids["B"], base)

	// 对称性：同一个 Graph 会命中缓存，换一个新的 Graph 再算一次
	base2, found2, err := d.g.MergeBase(ctx, d.ids["E"], d.ids["C"])
	require.NoError(t, err)
	assert.True(t, found2)
	assert.Equal(t, base, base2)

	base3, found3, err := New(d.store).MergeBase(ctx, d.ids["E"], d.ids["C"])
	require.NoError(t, err)
	assert.True(t, found3)
	assert.Equal(t, base, base3)

	// 一方是另一方的祖先
	base, found, err = d.g.MergeBase(ctx, d.ids["A"], d.ids["E"])
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, d.ids["A"], base)

	// 自身
	base, found, err = d.g.MergeBase(ctx, d.ids["C"], d.ids["C"])
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, d.ids["C"], base)
}

func TestMergeBase_Disjoint(t *testing.T) {
	d := newDAG(t)
	d.commit("X", 100)
	d.commit("Y", 100)

	_, found, err := d.g.MergeBase(context.Background(), d.ids["X"], d.ids["Y"])
	require.NoError(t, err)
	assert.False(t, found, "不相交的历史没有 merge base")
}

// criss-cross:
//
//	    B1 --- M1 --- T1
//	   /   \  /
//	  R     \/
//	   \    /\
//	    B2 --- M2 --- T2
func TestMergeBase_CrissCross(t *testing.T) {
	ctx := context.Background()
	d := newDAG(t)
	d.commit("R", 100)
	d.commit("B1", 200, "R")
	d.commit("B2", 300, "R")
	d.commit("M1", 400, "B1", "B2")
	d.commit("M2", 400, "B2", "B1")
	d.commit("T1", 500, "M1")
	d.commit("T2", 500, "M2")

	bases, err := d.g.MergeBases(ctx, d.ids["T1"], d.ids["T2"])
	require.NoError(t, err)
	require.Len(t, bases, 2, "两个极大候选都要返回，R 不在其中")
	assert.Equal(t, d.ids["B2"], bases[0], "时间较新的候选排在前面")
	assert.Equal(t, d.ids["B1"], bases[1])

	for _, pair := range [][2]string{{"T1", "T2"}, {"T2", "T1"}} {
		for _, g := range []*Graph{d.g, New(d.store)} {
			base, found, err := g.MergeBase(ctx, d.ids[pair[0]], d.ids[pair[1]])
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, d.ids["B2"], base)
		}
	}
}

// 宽前沿：R 下面挂 200 条分支，两侧 octopus 合并各覆盖一段，重叠的 100 条都是极大候选
func TestMergeBase_WideFrontier(t *testing.T) {
	ctx := context.Background()
	d := newDAG(t)
	d.commit("R", 100)
	names := make([]string, 200)
	for i := range names {
		names[i] = fmt.Sprintf("S%03d", i)
		d.commit(names[i], int64(1000+i), "R")
	}
	d.commit("L", 5000, names[:150]...)
	d.commit("Rt", 5000, names[50:]...)

	want := make([]types.Hash, 0, 100)
	for i := 149; i >= 50; i-- {
		want = append(want, d.ids[names[i]])
	}

	bases, err := d.g.MergeBases(ctx, d.ids["L"], d.ids["Rt"])
	require.NoError(t, err)
	assert.Equal(t, want, bases, "按提交时间从新到旧，R 不在其中")

	bases, err = New(d.store).MergeBases(ctx, d.ids["Rt"], d.ids["L"])
	require.NoError(t, err)
	assert.Equal(t, want, bases)

	// 再叠一层：两侧各自往前走一步，结果不变
	d.commit("L2", 6000, "L")
	d.commit("Rt2", 6000, "Rt")
	base, found, err := New(d.store).MergeBase(ctx, d.ids["L2"], d.ids["Rt2"])
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, d.ids["S149"], base)
}

func TestMergeBase_UsesGenerationStore(t *testing.T) {
	gens := &memGenerations{gens: make(map[types.Hash]uint64)}
	d := newDAG(t, WithGenerationStore(gens))
	d.commit("A", 1)
	d.commit("B", 2, "A")
	d.commit("C", 3, "A")

	_, _, err := d.g.MergeBase(context.Background(), d.ids["B"], d.ids["C"])
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gens.gens[d.ids["B"]])
	assert.Equal(t, 3, gens.stores)

	// 新的 Graph 直接读到持久化的世代号
	g2 := New(d.store, WithGenerationStore(gens))
	gen, err := g2.Generation(context.Background(), d.ids["C"])
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)
	assert.Equal(t, 3, gens.stores, "已有世代号不应重复写入")
}

func TestCorruptHistory(t *testing.T) {
	ctx := context.Background()
	d := newDAG(t)
	d.commit("A", 1)

	// 父节点指向一个不存在的提交
	sig := core.NewSignature("x", "x@example.com", time.Unix(2, 0))
	missing := types.Hash("ffff" + string(d.ids["A"])[4:])
	c, err := core.NewCommit(d.ids["A"], []types.Hash{missing}, sig, sig, "broken")
	require.NoError(t, err)
	// Tree 字段随便填一个存在的对象 ID 即可，这里只关心父节点
	broken, err := d.store.Put(ctx, c)
	require.NoError(t, err)

	_, err = d.g.Generation(ctx, broken)
	assert.ErrorIs(t, err, ErrCorruptHistory)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, _, err = d.g.MergeBase(ctx, broken, d.ids["A"])
	assert.ErrorIs(t, err, ErrCorruptHistory)
}

func TestCancellation(t *testing.T) {
	d := forkDAG(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := d.g.MergeBase(ctx, d.ids["C"], d.ids["E"])
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = d.g.Walk(ctx, []types.Hash{d.ids["C"]}, WalkOptions{})
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestWalk_Orders(t *testing.T) {
	d := forkDAG(t)
	d.commit("M", 400, "C", "E")

	t.Run("Time", func(t *testing.T) {
		assert.Equal(t, []string{"M", "E", "C", "D", "B", "A"}, d.walkNames([]string{"M"}, WalkOptions{Sort: SortTime}))
	})

	t.Run("Default is time", func(t *testing.T) {
		assert.Equal(t, []string{"M", "E", "C", "D", "B", "A"}, d.walkNames([]string{"M"}, WalkOptions{}))
	})

	t.Run("Reverse", func(t *testing.T) {
		assert.Equal(t, []string{"A", "B", "D", "C", "E", "M"}, d.walkNames([]string{"M"}, WalkOptions{Sort: SortTime | SortReverse}))
	})

	t.Run("FirstParentOnly", func(t *testing.T) {
		assert.Equal(t, []string{"M", "C", "B", "A"}, d.walkNames([]string{"M"}, WalkOptions{FirstParentOnly: true}))
	})

	t.Run("Hide", func(t *testing.T) {
		assert.Equal(t, []string{"E", "D"}, d.walkNames([]string{"E"}, WalkOptions{Hide: []types.Hash{d.ids["C"]}}))
	})

	t.Run("Limit", func(t *testing.T) {
		assert.Equal(t, []string{"M", "E"}, d.walkNames([]string{"M"}, WalkOptions{Limit: 2}))
	})
}

func TestWalk_TopologicalBeatsClockSkew(t *testing.T) {
	d := newDAG(t)
	d.commit("A", 500)
	d.commit("B", 100, "A") // 子提交时间比父提交还早
	d.commit("C", 50, "B")
	d.commit("X", 1000, "A")
	d.commit("M", 60, "C", "X")

	order := d.walkNames([]string{"M"}, WalkOptions{Sort: SortTopological | SortTime})
	pos := make(map[string]int)
	for i, n := range order {
		pos[n] = i
	}
	require.Len(t, order, 5)
	for child, parents := range map[string][]string{"M": {"C", "X"}, "C": {"B"}, "B": {"A"}, "X": {"A"}} {
		for _, p := range parents {
			assert.Less(t, pos[child], pos[p], "%s must precede %s", child, p)
		}
	}

	topo := d.walkNames([]string{"M"}, WalkOptions{Sort: SortTopological})
	assert.Equal(t, "M", topo[0])
	assert.Equal(t, "A", topo[len(topo)-1])
}

func TestWalker_NotRestartable(t *testing.T) {
	ctx := context.Background()
	d := newDAG(t)
	d.commit("A", 1)

	w, err := d.g.Walk(ctx, []types.Hash{d.ids["A"]}, WalkOptions{})
	require.NoError(t, err)
	_, _, err = w.Next(ctx)
	require.NoError(t, err)
	_, _, err = w.Next(ctx)
	assert.Equal(t, io.EOF, err)
	_, _, err = w.Next(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestAheadBehind(t *testing.T) {
	d := forkDAG(t)
	ahead, behind, err := d.g.AheadBehind(context.Background(), d.ids["C"], d.ids["E"])
	require.NoError(t, err)
	assert.Equal(t, 1, ahead)
	assert.Equal(t, 2, behind)
}

func TestReachableObjects(t *testing.T) {
	ctx := context.Background()
	d := forkDAG(t)

	// A 一个提交 = commit + tree + blob
	all, err := d.g.ReachableObjects(ctx, []types.Hash{d.ids["A"]}, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// C 相对 B 只多出 C 自己的 commit/tree/blob
	delta, err := d.g.ReachableObjects(ctx, []types.Hash{d.ids["C"]}, []types.Hash{d.ids["B"]})
	require.NoError(t, err)
	assert.Len(t, delta, 3)
	assert.Contains(t, delta, d.ids["C"])
	assert.NotContains(t, delta, d.ids["B"])

	// 标签作为根
	sig := core.NewSignature("x", "x@example.com", time.Unix(1, 0))
	tag, err := core.NewTag(d.ids["A"], core.TypeCommit, "v1", sig, "")
	require.NoError(t, err)
	tagID, err := d.store.Put(ctx, tag)
	require.NoError(t, err)
	withTag, err := d.g.ReachableObjects(ctx, []types.Hash{tagID}, nil)
	require.NoError(t, err)
	assert.Len(t, withTag, 4)
}
