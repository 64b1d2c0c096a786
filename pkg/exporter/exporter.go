package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gitvault/pkg/core"
	"gitvault/pkg/types"
)

var ErrUnsafePath = errors.New("tree entry escapes target directory")

// ObjectReader odb.Store 满足
type ObjectReader interface {
	Get(ctx context.Context, id types.Hash) (core.Object, error)
	ReadBlob(ctx context.Context, id types.Hash) (*core.Blob, error)
	ReadTree(ctx context.Context, id types.Hash) (*core.Tree, error)
}

// Exporter 只读地把对象还原到文件系统或输出流
type Exporter struct {
	store ObjectReader
}

func NewExporter(store ObjectReader) *Exporter {
	return &Exporter{store: store}
}

// ExportBlob 将 blob 内容写入 writer
func (e *Exporter) ExportBlob(ctx context.Context, id types.Hash, writer io.Writer) error {
	blob, err := e.store.ReadBlob(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read blob %s: %w", id.Short(), err)
	}
	if _, err := writer.Write(blob.Data); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", id.Short(), err)
	}
	return nil
}

// RestoreCallback 每还原一个文件回调一次，path 为以 / 分隔的相对路径
type RestoreCallback func(path string, entry core.TreeEntry, size int64)

// ExportTree 递归地将 Merkle Tree 还原到目标目录
// 已存在的同名文件会被覆盖，目录外的其他文件不受影响
func (e *Exporter) ExportTree(ctx context.Context, treeID types.Hash, targetDir string, onRestore RestoreCallback) error {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("failed to create dir %s: %w", targetDir, err)
	}
	return e.exportTree(ctx, treeID, targetDir, "", onRestore)
}

func (e *Exporter) exportTree(ctx context.Context, treeID types.Hash, dir, rel string, onRestore RestoreCallback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tree, err := e.store.ReadTree(ctx, treeID)
	if err != nil {
		return fmt.Errorf("failed to read tree %s: %w", treeID.Short(), err)
	}

	for _, entry := range tree.Entries {
		// core 已禁止名字里出现 "/" 和 ".."，这里再挡一次 .git 风格的保留目录
		if entry.Name == ".gv" {
			return fmt.Errorf("%w: %s", ErrUnsafePath, joinRel(rel, entry.Name))
		}
		fullPath := filepath.Join(dir, entry.Name)
		entryRel := joinRel(rel, entry.Name)

		switch entry.Mode {
		case core.ModeDir:
			if err := os.MkdirAll(fullPath, 0o755); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", fullPath, err)
			}
			if err := e.exportTree(ctx, entry.ID, fullPath, entryRel, onRestore); err != nil {
				return err
			}
			continue

		case core.ModeGitlink:
			// 子模块只留一个空目录
			if err := os.MkdirAll(fullPath, 0o755); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", fullPath, err)
			}
			continue
		}

		size, err := e.restoreFile(ctx, entry, fullPath)
		if err != nil {
			return err
		}
		if onRestore != nil {
			onRestore(entryRel, entry, size)
		}
	}
	return nil
}

func (e *Exporter) restoreFile(ctx context.Context, entry core.TreeEntry, fullPath string) (int64, error) {
	blob, err := e.store.ReadBlob(ctx, entry.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to read blob for %s: %w", fullPath, err)
	}

	// 先移除旧文件，否则符号链接会跟随到别处，权限位也不会更新
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("failed to replace %s: %w", fullPath, err)
	}

	if entry.Mode == core.ModeSymlink {
		if err := os.Symlink(string(blob.Data), fullPath); err != nil {
			return 0, fmt.Errorf("failed to create symlink %s: %w", fullPath, err)
		}
		return int64(len(blob.Data)), nil
	}

	perm := os.FileMode(0o644)
	if entry.Mode == core.ModeExec {
		perm = 0o755
	}
	if err := os.WriteFile(fullPath, blob.Data, perm); err != nil {
		return 0, fmt.Errorf("failed to write file %s: %w", fullPath, err)
	}
	return int64(len(blob.Data)), nil
}

func joinRel(rel, name string) string {
	if rel == "" {
		return name
	}
	return rel + "/" + name
}
