package merge

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"

	"gitvault/pkg/core"
	"gitvault/pkg/types"
)

// binarySniffLen 只检查前 8000 字节是否含 NUL
const binarySniffLen = 8000

// mergeState 合并过程中产生的对象先放在内存里，无冲突时才写入
type mergeState struct {
	algo      types.HashAlgo
	pending   []core.Object
	conflicts []Conflict
}

func (s *mergeState) stage(obj core.Object) (types.Hash, error) {
	id, _, err := core.CalculateHash(s.algo, obj)
	if err != nil {
		return "", err
	}
	s.pending = append(s.pending, obj)
	return id, nil
}

func (s *mergeState) conflict(p string, kind ConflictKind, b, o, t *core.TreeEntry) {
	s.conflicts = append(s.conflicts, Conflict{
		Path:     p,
		Kind:     kind,
		Ancestor: toStage(b),
		Ours:     toStage(o),
		Theirs:   toStage(t),
	})
}

func toStage(e *core.TreeEntry) *Stage {
	if e == nil {
		return nil
	}
	return &Stage{Mode: e.Mode, ID: e.ID}
}

func sameEntry(a, b *core.TreeEntry) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Mode == b.Mode && a.ID == b.ID
}

// mergeTrees 返回合并后的树 ID；结果为空目录时返回 ""
func (e *Engine) mergeTrees(ctx context.Context, st *mergeState, prefix string, base, ours, theirs types.Hash) (types.Hash, error) {
	switch {
	case ours == theirs:
		return ours, nil
	case base == ours:
		return theirs, nil
	case base == theirs:
		return ours, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	bt, err := e.readTree(ctx, base)
	if err != nil {
		return "", err
	}
	ot, err := e.readTree(ctx, ours)
	if err != nil {
		return "", err
	}
	tt, err := e.readTree(ctx, theirs)
	if err != nil {
		return "", err
	}

	var out []core.TreeEntry
	for _, name := range unionNames(bt, ot, tt) {
		entry, err := e.mergeEntry(ctx, st, path.Join(prefix, name), find(bt, name), find(ot, name), find(tt, name))
		if err != nil {
			return "", err
		}
		if entry != nil {
			entry.Name = name
			out = append(out, *entry)
		}
	}
	if len(out) == 0 {
		return "", nil
	}
	tree, err := core.NewTree(out)
	if err != nil {
		return "", fmt.Errorf("build merged tree %q: %w", prefix, err)
	}
	return st.stage(tree)
}

// mergeEntry 单个路径的三方决策；返回 nil 表示结果中没有该路径
func (e *Engine) mergeEntry(ctx context.Context, st *mergeState, p string, b, o, t *core.TreeEntry) (*core.TreeEntry, error) {
	// 两侧一致 (包括都删除)
	if sameEntry(o, t) {
		return o, nil
	}
	if sameEntry(b, o) {
		return t, nil
	}
	if sameEntry(b, t) {
		return o, nil
	}
	// 两侧都改动过，且涉及目录与文件互换
	if mixedKinds(b, o, t) {
		st.conflict(p, ConflictDirectoryFile, b, o, t)
		return nil, nil
	}
	// 一侧删除、另一侧修改
	if o == nil || t == nil {
		st.conflict(p, ConflictModifyDelete, b, o, t)
		return nil, nil
	}

	if o.Mode.IsDir() {
		var baseID types.Hash
		if b != nil && b.Mode.IsDir() {
			baseID = b.ID
		}
		id, err := e.mergeTrees(ctx, st, p, baseID, o.ID, t.ID)
		if err != nil || id == "" {
			return nil, err
		}
		return &core.TreeEntry{Mode: core.ModeDir, ID: id}, nil
	}

	mode, ok := mergeMode(b, o, t)
	if !ok {
		st.conflict(p, ConflictMode, b, o, t)
		return nil, nil
	}
	if o.ID == t.ID {
		return &core.TreeEntry{Mode: mode, ID: o.ID}, nil
	}
	// 符号链接与子模块不做内容合并
	if mode == core.ModeSymlink || mode == core.ModeGitlink || o.Mode != t.Mode && (o.Mode == core.ModeSymlink || t.Mode == core.ModeSymlink) {
		st.conflict(p, ConflictContent, b, o, t)
		return nil, nil
	}
	return e.mergeBlobs(ctx, st, p, mode, b, o, t)
}

func (e *Engine) mergeBlobs(ctx context.Context, st *mergeState, p string, mode core.FileMode, b, o, t *core.TreeEntry) (*core.TreeEntry, error) {
	var baseData []byte
	if b != nil && b.Mode.IsBlob() {
		blob, err := e.objects.ReadBlob(ctx, b.ID)
		if err != nil {
			return nil, fmt.Errorf("read base blob %s: %w", p, err)
		}
		baseData = blob.Data
	}
	ob, err := e.objects.ReadBlob(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("read ours blob %s: %w", p, err)
	}
	tb, err := e.objects.ReadBlob(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("read theirs blob %s: %w", p, err)
	}

	if isBinary(baseData) || isBinary(ob.Data) || isBinary(tb.Data) {
		st.conflict(p, ConflictBinary, b, o, t)
		return nil, nil
	}
	merged, clean := e.text.Merge(baseData, ob.Data, tb.Data)
	if !clean {
		st.conflict(p, ConflictContent, b, o, t)
		return nil, nil
	}
	id, err := st.stage(core.NewBlob(merged))
	if err != nil {
		return nil, err
	}
	return &core.TreeEntry{Mode: mode, ID: id}, nil
}

// mergeMode 文件模式的三方合并
func mergeMode(b, o, t *core.TreeEntry) (core.FileMode, bool) {
	switch {
	case o.Mode == t.Mode:
		return o.Mode, true
	case b != nil && b.Mode == o.Mode:
		return t.Mode, true
	case b != nil && b.Mode == t.Mode:
		return o.Mode, true
	}
	return 0, false
}

// mixedKinds 同一路径上存在的条目既有目录又有非目录
func mixedKinds(entries ...*core.TreeEntry) bool {
	var dirs, others int
	for _, e := range entries {
		switch {
		case e == nil:
		case e.Mode.IsDir():
			dirs++
		default:
			others++
		}
	}
	return dirs > 0 && others > 0
}

func isBinary(data []byte) bool {
	if len(data) > binarySniffLen {
		data = data[:binarySniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}

func (e *Engine) readTree(ctx context.Context, id types.Hash) (*core.Tree, error) {
	if id == "" {
		return &core.Tree{}, nil
	}
	t, err := e.objects.ReadTree(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read tree %s: %w", id.Short(), err)
	}
	return t, nil
}

func find(t *core.Tree, name string) *core.TreeEntry {
	e, ok := t.Find(name)
	if !ok {
		return nil
	}
	return &e
}

func unionNames(trees ...*core.Tree) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, t := range trees {
		for _, e := range t.Entries {
			if _, ok := seen[e.Name]; !ok {
				seen[e.Name] = struct{}{}
				names = append(names, e.Name)
			}
		}
	}
	sort.Strings(names)
	return names
}
