package core

import (
	"fmt"
	"sort"
	"strings"

	"gitvault/pkg/types"
)

// FileMode 条目模式，取值沿用 git 的八进制约定
type FileMode uint32

const (
	ModeFile    FileMode = 0o100644
	ModeExec    FileMode = 0o100755
	ModeSymlink FileMode = 0o120000
	ModeDir     FileMode = 0o040000
	ModeGitlink FileMode = 0o160000
)

func (m FileMode) IsValid() bool {
	switch m {
	case ModeFile, ModeExec, ModeSymlink, ModeDir, ModeGitlink:
		return true
	}
	return false
}

func (m FileMode) IsDir() bool { return m == ModeDir }

// IsBlob 普通文件、可执行文件、符号链接的内容都是 blob
func (m FileMode) IsBlob() bool {
	return m == ModeFile || m == ModeExec || m == ModeSymlink
}

// ObjectType 条目指向的对象类型
func (m FileMode) ObjectType() ObjectType {
	switch m {
	case ModeDir:
		return TypeTree
	case ModeGitlink:
		return TypeCommit
	default:
		return TypeBlob
	}
}

func (m FileMode) String() string { return fmt.Sprintf("%06o", uint32(m)) }

// TreeEntry 目录中的一项
type TreeEntry struct {
	Name string
	Mode FileMode
	ID   types.Hash
}

// Kind 条目指向的对象类型
func (e TreeEntry) Kind() ObjectType { return e.Mode.ObjectType() }

type treeEntryWire struct {
	Name string   `cbor:"n"`
	Mode FileMode `cbor:"m"`
	Hash Link     `cbor:"h"`
}

// Tree 目录树，条目按名字排序且名字唯一
type Tree struct {
	Entries []TreeEntry
}

type treeWire struct {
	T       ObjectType      `cbor:"t"`
	Entries []treeEntryWire `cbor:"e"`
}

// NewTree 创建一个新的目录树节点
// 输入顺序任意，输出总是排好序的；重名直接报错
func NewTree(entries []TreeEntry) (*Tree, error) {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for i, e := range sorted {
		if err := validateEntry(e); err != nil {
			return nil, err
		}
		if i > 0 && sorted[i-1].Name == e.Name {
			return nil, fmt.Errorf("%w: duplicate tree entry %q", ErrInvalidObject, e.Name)
		}
	}
	if len(sorted) == 0 {
		sorted = nil
	}
	return &Tree{Entries: sorted}, nil
}

func validateEntry(e TreeEntry) error {
	if e.Name == "" || e.Name == "." || e.Name == ".." ||
		strings.ContainsAny(e.Name, "/\x00") {
		return fmt.Errorf("%w: bad entry name %q", ErrInvalidObject, e.Name)
	}
	if !e.Mode.IsValid() {
		return fmt.Errorf("%w: entry %q has unknown mode %o", ErrInvalidObject, e.Name, uint32(e.Mode))
	}
	if !e.ID.IsValid() {
		return fmt.Errorf("%w: entry %q has bad id %q", ErrInvalidObject, e.Name, e.ID)
	}
	return nil
}

// Find 二分查找条目
func (t *Tree) Find(name string) (TreeEntry, bool) {
	i := sort.Search(len(t.Entries), func(i int) bool { return t.Entries[i].Name >= name })
	if i < len(t.Entries) && t.Entries[i].Name == name {
		return t.Entries[i], true
	}
	return TreeEntry{}, false
}

func (t *Tree) Type() ObjectType { return TypeTree }
func (*Tree) isObject()          {}

func (t *Tree) marshal() ([]byte, error) {
	w := treeWire{T: TypeTree}
	for i, e := range t.Entries {
		if err := validateEntry(e); err != nil {
			return nil, err
		}
		if i > 0 && t.Entries[i-1].Name >= e.Name {
			return nil, fmt.Errorf("%w: tree entries not sorted at %q", ErrInvalidObject, e.Name)
		}
		w.Entries = append(w.Entries, treeEntryWire{Name: e.Name, Mode: e.Mode, Hash: NewLink(e.ID)})
	}
	data, err := em.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tree: %w", err)
	}
	return data, nil
}

func unmarshalTree(data []byte) (*Tree, error) {
	var w treeWire
	if err := dm.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: tree: %v", ErrCorruptObject, err)
	}
	t := &Tree{}
	for i, e := range w.Entries {
		entry := TreeEntry{Name: e.Name, Mode: e.Mode, ID: e.Hash.Hash}
		if err := validateEntry(entry); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptObject, err)
		}
		if i > 0 && w.Entries[i-1].Name >= e.Name {
			return nil, fmt.Errorf("%w: tree entries not sorted at %q", ErrCorruptObject, e.Name)
		}
		t.Entries = append(t.Entries, entry)
	}
	return t, nil
}
