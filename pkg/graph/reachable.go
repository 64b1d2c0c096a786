package graph

import (
	"context"
	"fmt"

	"gitvault/pkg/core"
	"gitvault/pkg/types"
)

// ReachableObjects 从 roots 可达、且从 haves 不可达的全部对象 ID
// roots / haves 可以是提交、标签、树或 blob
func (g *Graph) ReachableObjects(ctx context.Context, roots, haves []types.Hash) ([]types.Hash, error) {
	seen := make(map[types.Hash]bool)
	if len(haves) > 0 {
		if err := g.collect(ctx, haves, seen, nil); err != nil {
			return nil, err
		}
	}
	var out []types.Hash
	if err := g.collect(ctx, roots, seen, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Graph) collect(ctx context.Context, roots []types.Hash, seen map[types.Hash]bool, out *[]types.Hash) error {
	mark := func(id types.Hash) {
		seen[id] = true
		if out != nil {
			*out = append(*out, id)
		}
	}

	stack := append([]types.Hash(nil), roots...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}

		obj, err := g.objects.Get(ctx, id)
		if err != nil {
			if ctxErr := checkCtx(ctx); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%w: object %s: %w", ErrCorruptHistory, id.Short(), err)
		}

		switch o := obj.(type) {
		case *core.Commit:
			if err := checkCtx(ctx); err != nil {
				return err
			}
			mark(id)
			stack = append(stack, o.Tree)
			stack = append(stack, o.Parents...)
		case *core.Tree:
			mark(id)
			for _, e := range o.Entries {
				switch {
				case e.Mode == core.ModeGitlink:
					// 子模块提交不属于本仓库
				case e.Mode.IsDir():
					stack = append(stack, e.ID)
				case !seen[e.ID]:
					mark(e.ID)
				}
			}
		case *core.Tag:
			mark(id)
			stack = append(stack, o.Target)
		case *core.Blob:
			mark(id)
		}
	}
	return nil
}
