package core

import (
	"fmt"

	"gitvault/pkg/types"
)

// Commit 版本快照
type Commit struct {
	Tree      types.Hash
	Parents   []types.Hash // 有序；第一个是主线
	Author    Signature
	Committer Signature
	Message   string
}

type commitWire struct {
	T         ObjectType `cbor:"t"`
	Tree      Link       `cbor:"th"`
	Parents   []Link     `cbor:"p"`
	Author    Signature  `cbor:"a"`
	Committer Signature  `cbor:"c"`
	Message   string     `cbor:"m"`
}

// NewCommit 构造一个提交
func NewCommit(tree types.Hash, parents []types.Hash, author, committer Signature, msg string) (*Commit, error) {
	if !tree.IsValid() {
		return nil, fmt.Errorf("%w: commit tree id %q", ErrInvalidObject, tree)
	}
	for _, p := range parents {
		if !p.IsValid() {
			return nil, fmt.Errorf("%w: commit parent id %q", ErrInvalidObject, p)
		}
	}
	c := &Commit{
		Tree:      tree,
		Author:    author,
		Committer: committer,
		Message:   msg,
	}
	if len(parents) > 0 {
		c.Parents = append([]types.Hash(nil), parents...)
	}
	return c, nil
}

// IsMerge 多于一个父节点
func (c *Commit) IsMerge() bool { return len(c.Parents) > 1 }

func (c *Commit) Type() ObjectType { return TypeCommit }
func (*Commit) isObject()          {}

func (c *Commit) marshal() ([]byte, error) {
	data, err := em.Marshal(commitWire{
		T:         TypeCommit,
		Tree:      NewLink(c.Tree),
		Parents:   linksOf(c.Parents),
		Author:    c.Author,
		Committer: c.Committer,
		Message:   c.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal commit: %w", err)
	}
	return data, nil
}

func unmarshalCommit(data []byte) (*Commit, error) {
	var w commitWire
	if err := dm.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrCorruptObject, err)
	}
	return &Commit{
		Tree:      w.Tree.Hash,
		Parents:   hashesOf(w.Parents),
		Author:    w.Author,
		Committer: w.Committer,
		Message:   w.Message,
	}, nil
}
