package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gitvault/pkg/core"
	"gitvault/pkg/odb"
	"gitvault/pkg/refs"
	"gitvault/pkg/types"
)

var ErrUnknownRevision = errors.New("unknown revision")

// ResolveRevision HEAD 与 refs/ 全名直接按引用解析
// 短名依次尝试 <rev>、refs/heads/<rev>、refs/tags/<rev>，最后当作对象 ID 前缀
func (a *App) ResolveRevision(ctx context.Context, rev string) (types.Hash, error) {
	if rev == "" {
		rev = refs.HEAD
	}
	// 全名只按引用解析，HEAD 悬空时调用方能拿到 refs.ErrNotFound
	if rev == refs.HEAD || strings.HasPrefix(rev, "refs/") {
		return a.Refs.Resolve(ctx, rev)
	}
	for _, name := range []string{rev, refs.BranchPrefix + rev, refs.TagPrefix + rev} {
		id, err := a.Refs.Resolve(ctx, name)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, refs.ErrNotFound) && !errors.Is(err, refs.ErrInvalidName) {
			return "", err
		}
	}

	prefix := types.HashPrefix(rev)
	if prefix.Validate() != nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownRevision, rev)
	}
	id, err := a.Objects.Resolve(ctx, prefix)
	if errors.Is(err, odb.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrUnknownRevision, rev)
	}
	return id, err
}

// ResolveCommit 同 ResolveRevision，但会剥掉附注标签并要求结果是提交
func (a *App) ResolveCommit(ctx context.Context, rev string) (types.Hash, *core.Commit, error) {
	id, err := a.ResolveRevision(ctx, rev)
	if err != nil {
		return "", nil, err
	}
	peeled, obj, err := a.Objects.Peel(ctx, id)
	if err != nil {
		return "", nil, err
	}
	c, ok := obj.(*core.Commit)
	if !ok {
		return "", nil, fmt.Errorf("%w: %s is a %s, not a commit", odb.ErrTypeMismatch, rev, obj.Type())
	}
	return peeled, c, nil
}
