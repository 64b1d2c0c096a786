package graph

import (
	"context"
	"errors"
	"fmt"

	"gitvault/pkg/core"
	"gitvault/pkg/types"

	"go.uber.org/zap"
)

var (
	// ErrCorruptHistory 沿父节点 / 树条目走到了一个不存在或类型不对的对象
	ErrCorruptHistory = errors.New("corrupt history")
	// ErrCancelled 遍历被 context 取消
	ErrCancelled = errors.New("traversal cancelled")
)

// ObjectSource 图遍历需要的只读对象访问
type ObjectSource interface {
	Get(ctx context.Context, id types.Hash) (core.Object, error)
	ReadCommit(ctx context.Context, id types.Hash) (*core.Commit, error)
}

// GenerationStore 可选的世代号持久化
type GenerationStore interface {
	LoadGeneration(ctx context.Context, id types.Hash) (uint64, bool, error)
	StoreGeneration(ctx context.Context, id types.Hash, gen uint64) error
}

// Graph 提交图上的只读查询
// 内部缓存 commit、世代号和 merge base，可以被多个 goroutine 共用
type Graph struct {
	objects ObjectSource
	gens    GenerationStore
	state   *traversalState
	log     *zap.Logger
}

type Option func(*Graph)

func WithLogger(l *zap.Logger) Option {
	return func(g *Graph) {
		if l != nil {
			g.log = l
		}
	}
}

// WithGenerationStore 世代号写穿到外部存储，重启后不必重新计算
func WithGenerationStore(s GenerationStore) Option {
	return func(g *Graph) { g.gens = s }
}

func New(objects ObjectSource, opts ...Option) *Graph {
	g := &Graph{
		objects: objects,
		state:   newTraversalState(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Parents 返回提交的有序父节点
func (g *Graph) Parents(ctx context.Context, id types.Hash) ([]types.Hash, error) {
	c, err := g.commit(ctx, id)
	if err != nil {
		return nil, err
	}
	return append([]types.Hash(nil), c.Parents...), nil
}

// Commit 带缓存的提交读取
func (g *Graph) Commit(ctx context.Context, id types.Hash) (*core.Commit, error) {
	return g.commit(ctx, id)
}

func (g *Graph) commit(ctx context.Context, id types.Hash) (*core.Commit, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	if c, ok := g.state.loadCommit(id); ok {
		return c, nil
	}
	c, err := g.objects.ReadCommit(ctx, id)
	if err != nil {
		if ctxErr := checkCtx(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: commit %s: %w", ErrCorruptHistory, id.Short(), err)
	}
	g.state.storeCommit(id, c)
	return c, nil
}

func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}
