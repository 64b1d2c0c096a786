package graph

import (
	"container/heap"
	"context"
	"sort"

	"gitvault/pkg/types"
)

// IsAncestor candidate 是否能从 commit 沿父节点到达 (自反：IsAncestor(c, c) 为 true)
// 世代号剪枝：世代号小于 candidate 的分支不可能再到达 candidate
func (g *Graph) IsAncestor(ctx context.Context, candidate, commit types.Hash) (bool, error) {
	if candidate == commit {
		if _, err := g.commit(ctx, commit); err != nil {
			return false, err
		}
		return true, nil
	}

	candGen, err := g.generation(ctx, candidate)
	if err != nil {
		return false, err
	}
	descGen, err := g.generation(ctx, commit)
	if err != nil {
		return false, err
	}
	if candGen >= descGen {
		return false, nil
	}

	queue := []types.Hash{commit}
	visited := map[types.Hash]bool{commit: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		c, err := g.commit(ctx, cur)
		if err != nil {
			return false, err
		}
		for _, p := range c.Parents {
			if p == candidate {
				return true, nil
			}
			if visited[p] {
				continue
			}
			visited[p] = true
			pg, err := g.generation(ctx, p)
			if err != nil {
				return false, err
			}
			if pg <= candGen {
				continue
			}
			queue = append(queue, p)
		}
	}
	return false, nil
}

// MergeBase 返回 a 与 b 的最佳公共祖先；历史不相交时 found 为 false
// 多个极大候选 (criss-cross) 时取提交时间最新的，再按 ID 最小
func (g *Graph) MergeBase(ctx context.Context, a, b types.Hash) (types.Hash, bool, error) {
	bases, err := g.MergeBases(ctx, a, b)
	if err != nil || len(bases) == 0 {
		return "", false, err
	}
	return bases[0], true, nil
}

// MergeBases 返回所有极大公共祖先，按 (提交时间降序, ID 升序) 排列
func (g *Graph) MergeBases(ctx context.Context, a, b types.Hash) ([]types.Hash, error) {
	if bases, ok := g.state.loadMergeBases(a, b); ok {
		return append([]types.Hash(nil), bases...), nil
	}

	// 参数顺序先规范化，结果天然对称
	key := canonicalPair(a, b)
	bases, err := g.paintDown(ctx, key.left, key.right)
	if err != nil {
		return nil, err
	}

	if err := g.sortNewestFirst(ctx, bases); err != nil {
		return nil, err
	}
	g.state.storeMergeBases(a, b, bases)
	return append([]types.Hash(nil), bases...), nil
}

const (
	paintLeft uint8 = 1 << iota
	paintRight
	paintStale
	paintResult
)

// paintDown 两侧同时按世代号从高到低向下染色
// 同时带两种颜色的提交是公共祖先，它的祖先再被标记为 stale，
// 因为世代号有序出队，stale 标记总是先于更老的候选到达，结果集里不会有冗余祖先。
func (g *Graph) paintDown(ctx context.Context, left, right types.Hash) ([]types.Hash, error) {
	if left == right {
		if _, err := g.commit(ctx, left); err != nil {
			return nil, err
		}
		return []types.Hash{left}, nil
	}

	flags := make(map[types.Hash]uint8)
	q := &commitHeap{less: byGeneration}
	// queued 每个 ID 在堆里的条目数；nonStale 堆里尚未 stale 的条目数
	// 一个 ID 变成 stale 时它已入队的条目一起扣掉，循环条件因此是 O(1)
	queued := make(map[types.Hash]int)
	nonStale := 0

	push := func(id types.Hash, f uint8) error {
		item, err := g.queueItem(ctx, id)
		if err != nil {
			return err
		}
		wasStale := flags[id]&paintStale != 0
		flags[id] |= f
		isStale := flags[id]&paintStale != 0
		if isStale && !wasStale {
			nonStale -= queued[id]
		}
		if !isStale {
			nonStale++
		}
		queued[id]++
		heap.Push(q, item)
		return nil
	}
	if err := push(left, paintLeft); err != nil {
		return nil, err
	}
	if err := push(right, paintRight); err != nil {
		return nil, err
	}

	var result []types.Hash
	for nonStale > 0 {
		item := heap.Pop(q).(queueItem)
		queued[item.id]--
		if flags[item.id]&paintStale == 0 {
			nonStale--
		}
		f := flags[item.id] & (paintLeft | paintRight | paintStale)

		if f == paintLeft|paintRight {
			if flags[item.id]&paintResult == 0 {
				flags[item.id] |= paintResult
				result = append(result, item.id)
			}
			f |= paintStale
		}

		c, err := g.commit(ctx, item.id)
		if err != nil {
			return nil, err
		}
		for _, p := range c.Parents {
			if flags[p]&f == f {
				continue
			}
			if err := push(p, f); err != nil {
				return nil, err
			}
		}
	}

	// 被 stale 覆盖的候选是另一个候选的祖先
	out := result[:0]
	for _, id := range result {
		if flags[id]&paintStale == 0 {
			out = append(out, id)
		}
	}
	return out, nil
}

func (g *Graph) queueItem(ctx context.Context, id types.Hash) (queueItem, error) {
	c, err := g.commit(ctx, id)
	if err != nil {
		return queueItem{}, err
	}
	gen, err := g.generation(ctx, id)
	if err != nil {
		return queueItem{}, err
	}
	return queueItem{id: id, generation: gen, when: c.Committer.When.Unix()}, nil
}

func (g *Graph) sortNewestFirst(ctx context.Context, ids []types.Hash) error {
	when := make(map[types.Hash]int64, len(ids))
	for _, id := range ids {
		c, err := g.commit(ctx, id)
		if err != nil {
			return err
		}
		when[id] = c.Committer.When.Unix()
	}
	sort.Slice(ids, func(i, j int) bool {
		if when[ids[i]] != when[ids[j]] {
			return when[ids[i]] > when[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return nil
}
