package app

import (
	"context"
	"fmt"
	"path"

	"gitvault/pkg/core"
	"gitvault/pkg/types"
)

// ReadTree 用一棵树替换暂存区内容并落盘 (read-tree)
func (a *App) ReadTree(ctx context.Context, tree types.Hash) error {
	a.Index.Reset()
	if err := a.addTree(ctx, tree, ""); err != nil {
		return err
	}
	return a.Index.Save()
}

func (a *App) addTree(ctx context.Context, id types.Hash, prefix string) error {
	t, err := a.Objects.ReadTree(ctx, id)
	if err != nil {
		return fmt.Errorf("read tree %s: %w", id.Short(), err)
	}
	for _, e := range t.Entries {
		p := path.Join(prefix, e.Name)
		switch e.Mode {
		case core.ModeDir:
			if err := a.addTree(ctx, e.ID, p); err != nil {
				return err
			}
		case core.ModeGitlink:
			a.Index.Add(p, e.ID, e.Mode, 0)
		default:
			b, err := a.Objects.ReadBlob(ctx, e.ID)
			if err != nil {
				return fmt.Errorf("read blob %s: %w", p, err)
			}
			a.Index.Add(p, e.ID, e.Mode, int64(b.Size()))
		}
	}
	return nil
}
