package graph

import (
	"container/heap"
	"context"
	"io"

	"gitvault/pkg/core"
	"gitvault/pkg/types"
)

// SortMode 遍历顺序，可以按位组合
type SortMode uint8

const (
	// SortTime 按提交时间从新到旧 (默认)
	SortTime SortMode = 1 << iota
	// SortTopological 任何提交都在它的所有祖先之前输出
	SortTopological
	// SortReverse 反转最终序列，需要先缓冲全部结果
	SortReverse
)

// WalkOptions 遍历参数
type WalkOptions struct {
	Sort            SortMode
	Hide            []types.Hash // 从这些提交可达的提交不输出
	FirstParentOnly bool
	Limit           int // 0 表示不限
}

// Walker 单向的惰性遍历器，不可重启
type Walker struct {
	g    *Graph
	opts WalkOptions

	queue  *commitHeap
	seen   map[types.Hash]bool
	hidden map[types.Hash]bool
	topo   bool

	emitted  int
	reversed []types.Hash
	revReady bool
	done     bool
}

// Walk 从 starts 出发按 opts 遍历祖先
func (g *Graph) Walk(ctx context.Context, starts []types.Hash, opts WalkOptions) (*Walker, error) {
	w := &Walker{
		g:    g,
		opts: opts,
		seen: make(map[types.Hash]bool),
		topo: opts.Sort&SortTopological != 0,
	}

	switch {
	case w.topo && opts.Sort&SortTime != 0:
		w.queue = &commitHeap{less: byGeneration}
	case w.topo:
		w.queue = &commitHeap{less: byGenerationOnly}
	default:
		w.queue = &commitHeap{less: byTime}
	}

	if len(opts.Hide) > 0 {
		hidden, err := g.closure(ctx, opts.Hide)
		if err != nil {
			return nil, err
		}
		w.hidden = hidden
	}

	for _, id := range starts {
		if err := w.enqueue(ctx, id); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *Walker) enqueue(ctx context.Context, id types.Hash) error {
	if w.seen[id] || w.hidden[id] {
		return nil
	}
	c, err := w.g.commit(ctx, id)
	if err != nil {
		return err
	}
	item := queueItem{id: id, when: c.Committer.When.Unix()}
	if w.topo {
		if item.generation, err = w.g.generation(ctx, id); err != nil {
			return err
		}
	}
	w.seen[id] = true
	heap.Push(w.queue, item)
	return nil
}

// Next 返回下一个提交；遍历结束时返回 io.EOF
func (w *Walker) Next(ctx context.Context) (types.Hash, *core.Commit, error) {
	if w.opts.Sort&SortReverse != 0 {
		return w.nextReversed(ctx)
	}
	return w.next(ctx)
}

func (w *Walker) next(ctx context.Context) (types.Hash, *core.Commit, error) {
	if w.done || w.queue.Len() == 0 || (w.opts.Limit > 0 && w.emitted >= w.opts.Limit) {
		w.done = true
		return "", nil, io.EOF
	}

	item := heap.Pop(w.queue).(queueItem)
	c, err := w.g.commit(ctx, item.id)
	if err != nil {
		return "", nil, err
	}

	parents := c.Parents
	if w.opts.FirstParentOnly && len(parents) > 1 {
		parents = parents[:1]
	}
	for _, p := range parents {
		if err := w.enqueue(ctx, p); err != nil {
			return "", nil, err
		}
	}

	w.emitted++
	return item.id, c, nil
}

func (w *Walker) nextReversed(ctx context.Context) (types.Hash, *core.Commit, error) {
	if !w.revReady {
		for {
			id, _, err := w.next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", nil, err
			}
			w.reversed = append(w.reversed, id)
		}
		w.revReady = true
	}
	if len(w.reversed) == 0 {
		return "", nil, io.EOF
	}
	id := w.reversed[len(w.reversed)-1]
	w.reversed = w.reversed[:len(w.reversed)-1]
	c, err := w.g.commit(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return id, c, nil
}

// ForEach 把剩余的提交依次交给 fn
func (w *Walker) ForEach(ctx context.Context, fn func(types.Hash, *core.Commit) error) error {
	for {
		id, c, err := w.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(id, c); err != nil {
			return err
		}
	}
}

// closure 从 roots 可达的全部提交
func (g *Graph) closure(ctx context.Context, roots []types.Hash) (map[types.Hash]bool, error) {
	seen := make(map[types.Hash]bool)
	stack := append([]types.Hash(nil), roots...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		c, err := g.commit(ctx, id)
		if err != nil {
			return nil, err
		}
		seen[id] = true
		stack = append(stack, c.Parents...)
	}
	return seen, nil
}

// AheadBehind a 有多少提交 b 没有 (ahead)，反之 (behind)
func (g *Graph) AheadBehind(ctx context.Context, a, b types.Hash) (ahead, behind int, err error) {
	if ahead, err = g.countExclusive(ctx, a, b); err != nil {
		return 0, 0, err
	}
	if behind, err = g.countExclusive(ctx, b, a); err != nil {
		return 0, 0, err
	}
	return ahead, behind, nil
}

func (g *Graph) countExclusive(ctx context.Context, from, hide types.Hash) (int, error) {
	w, err := g.Walk(ctx, []types.Hash{from}, WalkOptions{Hide: []types.Hash{hide}})
	if err != nil {
		return 0, err
	}
	n := 0
	err = w.ForEach(ctx, func(types.Hash, *core.Commit) error {
		n++
		return nil
	})
	return n, err
}
