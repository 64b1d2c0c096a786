package graph

import (
	"context"
	"fmt"
	"sync"

	"gitvault/pkg/core"
	"gitvault/pkg/types"

	"go.uber.org/zap"
)

// maxCachedCommits 超过后整体清空 commit 缓存；世代号很小，一直保留
const maxCachedCommits = 200_000

type pairKey struct {
	left  types.Hash
	right types.Hash
}

// canonicalPair 保证 (a, b) 和 (b, a) 命中同一个缓存项
func canonicalPair(a, b types.Hash) pairKey {
	if a <= b {
		return pairKey{left: a, right: b}
	}
	return pairKey{left: b, right: a}
}

type traversalState struct {
	mu sync.RWMutex

	commits     map[types.Hash]*core.Commit
	generations map[types.Hash]uint64
	mergeBases  map[pairKey][]types.Hash
}

func newTraversalState() *traversalState {
	return &traversalState{
		commits:     make(map[types.Hash]*core.Commit),
		generations: make(map[types.Hash]uint64),
		mergeBases:  make(map[pairKey][]types.Hash),
	}
}

func (s *traversalState) loadCommit(id types.Hash) (*core.Commit, bool) {
	s.mu.RLock()
	c, ok := s.commits[id]
	s.mu.RUnlock()
	return c, ok
}

func (s *traversalState) storeCommit(id types.Hash, c *core.Commit) {
	s.mu.Lock()
	if len(s.commits) >= maxCachedCommits {
		s.commits = make(map[types.Hash]*core.Commit)
	}
	s.commits[id] = c
	s.mu.Unlock()
}

func (s *traversalState) loadGeneration(id types.Hash) (uint64, bool) {
	s.mu.RLock()
	g, ok := s.generations[id]
	s.mu.RUnlock()
	return g, ok
}

func (s *traversalState) storeGeneration(id types.Hash, g uint64) {
	s.mu.Lock()
	s.generations[id] = g
	s.mu.Unlock()
}

func (s *traversalState) loadMergeBases(a, b types.Hash) ([]types.Hash, bool) {
	s.mu.RLock()
	bases, ok := s.mergeBases[canonicalPair(a, b)]
	s.mu.RUnlock()
	return bases, ok
}

func (s *traversalState) storeMergeBases(a, b types.Hash, bases []types.Hash) {
	s.mu.Lock()
	s.mergeBases[canonicalPair(a, b)] = bases
	s.mu.Unlock()
}

// Generation 根提交为 1，其余为 1 + max(父节点世代号)
func (g *Graph) Generation(ctx context.Context, id types.Hash) (uint64, error) {
	return g.generation(ctx, id)
}

// generation 用显式栈做后序遍历，长历史不会爆栈
func (g *Graph) generation(ctx context.Context, id types.Hash) (uint64, error) {
	if gen, ok := g.state.loadGeneration(id); ok {
		return gen, nil
	}

	stack := []types.Hash{id}
	expanded := make(map[types.Hash]bool)

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if _, ok := g.state.loadGeneration(top); ok {
			stack = stack[:len(stack)-1]
			continue
		}
		if gen, ok := g.loadPersisted(ctx, top); ok {
			g.state.storeGeneration(top, gen)
			stack = stack[:len(stack)-1]
			continue
		}

		c, err := g.commit(ctx, top)
		if err != nil {
			return 0, err
		}

		var maxParent uint64
		pending := false
		for _, p := range c.Parents {
			if pg, ok := g.state.loadGeneration(p); ok {
				maxParent = max(maxParent, pg)
				continue
			}
			pending = true
			stack = append(stack, p)
		}
		if pending {
			if expanded[top] {
				return 0, fmt.Errorf("%w: commit graph cycle at %s", ErrCorruptHistory, top.Short())
			}
			expanded[top] = true
			continue
		}

		gen := maxParent + 1
		g.state.storeGeneration(top, gen)
		g.persist(ctx, top, gen)
		stack = stack[:len(stack)-1]
	}

	gen, _ := g.state.loadGeneration(id)
	return gen, nil
}

func (g *Graph) loadPersisted(ctx context.Context, id types.Hash) (uint64, bool) {
	if g.gens == nil {
		return 0, false
	}
	gen, ok, err := g.gens.LoadGeneration(ctx, id)
	if err != nil {
		g.log.Warn("load generation failed", zap.String("commit", id.Short()), zap.Error(err))
		return 0, false
	}
	return gen, ok && gen > 0
}

func (g *Graph) persist(ctx context.Context, id types.Hash, gen uint64) {
	if g.gens == nil {
		return
	}
	if err := g.gens.StoreGeneration(ctx, id, gen); err != nil {
		g.log.Warn("store generation failed", zap.String("commit", id.Short()), zap.Error(err))
	}
}
