package app

import (
	"context"
	"errors"
	"fmt"

	"gitvault/pkg/core"
	"gitvault/pkg/refs"
	"gitvault/pkg/treebuilder"
	"gitvault/pkg/types"

	"go.uber.org/zap"
)

var ErrNothingToCommit = errors.New("nothing to commit")

// CommitResult 一次 Commit 的产物
type CommitResult struct {
	ID      types.Hash
	Tree    types.Hash
	Parents []types.Hash
	Branch  string // HEAD 最终写入的引用
}

// Commit 用暂存区构建树，以 HEAD 为父提交写入新提交，然后 CAS 移动 HEAD
// 暂存区在提交后保留，代表下一次提交的完整快照
func (a *App) Commit(ctx context.Context, msg string) (*CommitResult, error) {
	if msg == "" {
		return nil, fmt.Errorf("commit message cannot be empty")
	}
	if a.Index.IsEmpty() {
		return nil, ErrNothingToCommit
	}

	// 1. 构建 Merkle Tree
	tree, err := treebuilder.NewBuilder(a.Objects).Build(ctx, a.Index.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("failed to build tree: %w", err)
	}

	// 2. 父提交；HEAD 指向的分支还不存在时是初始提交
	var parents []types.Hash
	parent, err := a.Refs.Resolve(ctx, refs.HEAD)
	switch {
	case err == nil:
		pc, err := a.Objects.ReadCommit(ctx, parent)
		if err != nil {
			return nil, fmt.Errorf("failed to read HEAD commit: %w", err)
		}
		if pc.Tree == tree {
			return nil, ErrNothingToCommit
		}
		parents = []types.Hash{parent}
	case errors.Is(err, refs.ErrNotFound):
	default:
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	// 3. 写提交对象
	sig := a.Signature()
	c, err := core.NewCommit(tree, parents, sig, sig, msg)
	if err != nil {
		return nil, err
	}
	id, err := a.Objects.Put(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to store commit: %w", err)
	}

	// 4. 移动 HEAD；期间有人改了分支会得到 ErrConflict
	reflogMsg := "commit: " + firstLine(msg)
	if len(parents) == 0 {
		reflogMsg = "commit (initial): " + firstLine(msg)
	}
	if err := a.Refs.Update(ctx, refs.HEAD, parent, id, reflogMsg); err != nil {
		return nil, fmt.Errorf("failed to update HEAD: %w", err)
	}
	branch := refs.HEAD
	if head, err := a.Refs.Read(ctx, refs.HEAD); err == nil && head.IsSymbolic() {
		branch = head.Symref
	}

	// 5. 元数据索引，失败不影响提交本身
	a.IndexCommits(ctx, id)
	return &CommitResult{ID: id, Tree: tree, Parents: parents, Branch: branch}, nil
}

// IndexCommits 把 tip 及其尚未入库的祖先写入元数据库
// 只有 refs.backend = sql 时才有元数据库
func (a *App) IndexCommits(ctx context.Context, tip types.Hash) int {
	if a.Meta == nil {
		return 0
	}
	n := 0
	stack := []types.Hash{tip}
	seen := map[types.Hash]bool{}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true

		if m, err := a.Meta.GetCommit(ctx, id); err == nil && m.TreeHash != "" {
			continue
		}
		c, err := a.Objects.ReadCommit(ctx, id)
		if err != nil {
			a.Log.Warn("skip indexing commit", zap.String("id", id.Short()), zap.Error(err))
			continue
		}
		if err := a.Meta.IndexCommit(ctx, id, c); err != nil {
			a.Log.Warn("failed to index commit", zap.String("id", id.Short()), zap.Error(err))
			continue
		}
		n++
		stack = append(stack, c.Parents...)
	}
	return n
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
