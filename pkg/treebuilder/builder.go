package treebuilder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gitvault/pkg/core"
	"gitvault/pkg/ignore"
	"gitvault/pkg/index"
	"gitvault/pkg/ingester"
	"gitvault/pkg/types"
)

var ErrPathConflict = errors.New("path is both a file and a directory")

// ObjectWriter odb.Store 满足
type ObjectWriter interface {
	Put(ctx context.Context, obj core.Object) (types.Hash, error)
}

// Builder 负责将暂存区转换为 Merkle Tree
type Builder struct {
	store ObjectWriter
}

func NewBuilder(store ObjectWriter) *Builder {
	return &Builder{store: store}
}

// Build 执行构建过程，返回根树的 ID
// 空的暂存区得到空树
func (b *Builder) Build(ctx context.Context, entries map[string]index.Entry) (types.Hash, error) {
	// 1. 构建内存中的目录树结构
	root := newDirNode("")
	for path, entry := range entries {
		if err := root.addFile(path, entry); err != nil {
			return "", err
		}
	}
	// 2. 自底向上计算 ID 并持久化
	return b.writeNode(ctx, root)
}

// BuildDir 直接把工作目录入库并建树，不经过暂存区
func (b *Builder) BuildDir(ctx context.Context, root string, matcher *ignore.Matcher, ing *ingester.Ingester) (types.Hash, error) {
	entries := make(map[string]index.Entry)
	err := ing.IngestDir(ctx, root, matcher, func(rel string, r ingester.Result) error {
		entries[rel] = index.Entry{Path: rel, ID: r.ID, Mode: r.Mode, Size: r.Size}
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.Build(ctx, entries)
}

// -----------------------------------------------------------------------------
// 内部辅助结构：内存树节点
// -----------------------------------------------------------------------------

type node struct {
	name     string
	isDir    bool
	children map[string]*node // 子节点 (仅目录有效)
	entry    index.Entry      // 文件元数据 (仅文件有效)
}

func newDirNode(name string) *node {
	return &node{
		name:     name,
		isDir:    true,
		children: make(map[string]*node),
	}
}

// addFile 将一个文件路径插入到内存树中
// 例如 path="a/b/c.txt" -> 递归创建 a, b, 然后在 b 下创建 c.txt
func (n *node) addFile(path string, entry index.Entry) error {
	parts := strings.Split(index.CleanPath(path), "/")
	current := n

	for i, part := range parts[:len(parts)-1] {
		child, exists := current.children[part]
		if !exists {
			child = newDirNode(part)
			current.children[part] = child
		}
		if !child.isDir {
			return fmt.Errorf("%w: %s", ErrPathConflict, strings.Join(parts[:i+1], "/"))
		}
		current = child
	}

	fileName := parts[len(parts)-1]
	if existing, ok := current.children[fileName]; ok && existing.isDir {
		return fmt.Errorf("%w: %s", ErrPathConflict, path)
	}
	current.children[fileName] = &node{
		name:  fileName,
		entry: entry,
	}
	return nil
}

// writeNode 递归地将内存节点转换为 core.Tree 并写入存储
func (b *Builder) writeNode(ctx context.Context, n *node) (types.Hash, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// 文件直接返回暂存区里记录的 blob ID
	if !n.isDir {
		return n.entry.ID, nil
	}

	childNames := make([]string, 0, len(n.children))
	for name := range n.children {
		childNames = append(childNames, name)
	}
	sort.Strings(childNames)

	entries := make([]core.TreeEntry, 0, len(childNames))
	for _, name := range childNames {
		child := n.children[name]

		childID, err := b.writeNode(ctx, child)
		if err != nil {
			return "", err
		}

		mode := child.entry.Mode
		if child.isDir {
			mode = core.ModeDir
		} else if mode == 0 {
			mode = core.ModeFile
		}
		entries = append(entries, core.TreeEntry{Name: name, Mode: mode, ID: childID})
	}

	treeObj, err := core.NewTree(entries)
	if err != nil {
		return "", fmt.Errorf("failed to create tree object: %w", err)
	}
	id, err := b.store.Put(ctx, treeObj)
	if err != nil {
		return "", fmt.Errorf("failed to store tree: %w", err)
	}
	return id, nil
}
