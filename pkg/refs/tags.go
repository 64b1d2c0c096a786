package refs

import (
	"context"
	"fmt"

	"gitvault/pkg/core"
	"gitvault/pkg/types"
)

// ObjectWriter 附注标签需要写入 Tag 对象
type ObjectWriter interface {
	Put(ctx context.Context, obj core.Object) (types.Hash, error)
}

// TagRef v1.0 -> refs/tags/v1.0
func TagRef(name string) string { return TagPrefix + name }

// CreateTag 轻量标签：refs/tags/<name> 直接指向 target，已存在时报 ErrConflict
func (m *Manager) CreateTag(ctx context.Context, name string, target types.Hash) error {
	return m.Update(ctx, TagRef(name), "", target, "tag: "+name)
}

// CreateAnnotatedTag 先写入 Tag 对象，再让 refs/tags/<name> 指向它
func (m *Manager) CreateAnnotatedTag(ctx context.Context, w ObjectWriter, name string, target types.Hash, kind core.ObjectType, tagger core.Signature, msg string) (types.Hash, error) {
	if err := ValidateName(TagRef(name)); err != nil {
		return "", err
	}
	tag, err := core.NewTag(target, kind, name, tagger, msg)
	if err != nil {
		return "", err
	}
	id, err := w.Put(ctx, tag)
	if err != nil {
		return "", fmt.Errorf("write tag object: %w", err)
	}
	if err := m.Update(ctx, TagRef(name), "", id, "tag: "+name); err != nil {
		return "", err
	}
	return id, nil
}

// DeleteTag 无条件删除
func (m *Manager) DeleteTag(ctx context.Context, name string) error {
	return m.Delete(ctx, TagRef(name), "")
}

func (m *Manager) ListTags(ctx context.Context) ([]Reference, error) {
	return m.ListByPrefix(ctx, TagPrefix)
}

// ListBranches refs/heads/ 下的所有分支
func (m *Manager) ListBranches(ctx context.Context) ([]Reference, error) {
	return m.ListByPrefix(ctx, BranchPrefix)
}
