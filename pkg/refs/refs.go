package refs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gitvault/pkg/core"
	"gitvault/pkg/types"
)

var (
	ErrNotFound        = errors.New("reference not found")
	ErrCyclicReference = errors.New("cyclic symbolic reference")
	ErrConflict        = errors.New("reference changed concurrently")
	ErrTargetMissing   = errors.New("target object does not exist")
	ErrInvalidName     = errors.New("invalid reference name")
)

const (
	HEAD         = "HEAD"
	BranchPrefix = "refs/heads/"
	TagPrefix    = "refs/tags/"

	// maxSymbolicDepth 符号引用链的最大长度
	maxSymbolicDepth = 10
)

// Kind 引用类型
type Kind uint8

const (
	KindDirect Kind = iota
	KindSymbolic
)

func (k Kind) String() string {
	if k == KindSymbolic {
		return "symbolic"
	}
	return "direct"
}

// Reference 直接引用指向对象 ID，符号引用指向另一个引用名
type Reference struct {
	Name   string
	Kind   Kind
	Target types.Hash // KindDirect
	Symref string     // KindSymbolic
}

func NewDirect(name string, id types.Hash) Reference {
	return Reference{Name: name, Kind: KindDirect, Target: id}
}

func NewSymbolic(name, target string) Reference {
	return Reference{Name: name, Kind: KindSymbolic, Symref: target}
}

func (r Reference) IsSymbolic() bool { return r.Kind == KindSymbolic }

func (r Reference) String() string {
	if r.IsSymbolic() {
		return fmt.Sprintf("%s -> %s", r.Name, r.Symref)
	}
	return fmt.Sprintf("%s %s", r.Target, r.Name)
}

// ReflogEntry 引用的一次变更
type ReflogEntry struct {
	Old       types.Hash
	New       types.Hash
	Committer core.Signature
	Message   string
}

// Event 通知给观察者的引用变更
type Event struct {
	Name    string
	Old     types.Hash
	New     types.Hash
	Symref  string // 符号引用被创建 / 改指向时非空
	Deleted bool
	Message string
	When    time.Time
}

// ValidateName 检查引用名
// 允许 HEAD 一类的顶层伪引用，其余必须在 refs/ 之下
func ValidateName(name string) error {
	switch name {
	case HEAD, "ORIG_HEAD", "MERGE_HEAD", "FETCH_HEAD":
		return nil
	}
	if !strings.HasPrefix(name, "refs/") {
		return fmt.Errorf("%w: %q must start with refs/", ErrInvalidName, name)
	}
	if strings.HasSuffix(name, "/") || strings.HasSuffix(name, ".") || strings.Contains(name, "..") || strings.Contains(name, "@{") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, c := range name {
		if c < 0x20 || c == 0x7f || strings.ContainsRune(" ~^:?*[\\", c) {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidName, name, c)
		}
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || strings.HasPrefix(part, ".") || strings.HasSuffix(part, ".lock") {
			return fmt.Errorf("%w: bad component %q in %q", ErrInvalidName, part, name)
		}
	}
	return nil
}

// BranchName refs/heads/main -> main
func BranchName(ref string) string { return strings.TrimPrefix(ref, BranchPrefix) }

// zeroLike 与 id 等长的全 0 ID，reflog 中用来表示“不存在”
func zeroLike(id types.Hash) types.Hash {
	n := len(id)
	if n == 0 {
		n = types.SHA256.HexSize()
	}
	return types.Hash(strings.Repeat("0", n))
}
