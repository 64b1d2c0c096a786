package refs

import (
	"context"

	"gitvault/pkg/types"
)

type expectKind uint8

const (
	expectAny expectKind = iota
	expectAbsent
	expectDirect
	expectSymbolic
)

// Expect 后端条件写入的前置条件
type Expect struct {
	kind   expectKind
	id     types.Hash
	symref string
}

// ExpectAny 无条件
func ExpectAny() Expect { return Expect{kind: expectAny} }

// ExpectAbsent 引用必须不存在
func ExpectAbsent() Expect { return Expect{kind: expectAbsent} }

// ExpectValue 引用必须是指向 id 的直接引用
func ExpectValue(id types.Hash) Expect { return Expect{kind: expectDirect, id: id} }

// ExpectSymref 引用必须是指向 target 的符号引用
func ExpectSymref(target string) Expect { return Expect{kind: expectSymbolic, symref: target} }

// ExpectCurrent 与 cur 当前状态完全一致
func ExpectCurrent(cur Reference, exists bool) Expect {
	switch {
	case !exists:
		return ExpectAbsent()
	case cur.IsSymbolic():
		return ExpectSymref(cur.Symref)
	default:
		return ExpectValue(cur.Target)
	}
}

// Matches cur == nil 表示引用不存在
func (e Expect) Matches(cur *Reference) bool {
	switch e.kind {
	case expectAny:
		return true
	case expectAbsent:
		return cur == nil
	case expectDirect:
		return cur != nil && !cur.IsSymbolic() && cur.Target == e.id
	case expectSymbolic:
		return cur != nil && cur.IsSymbolic() && cur.Symref == e.symref
	}
	return false
}

func (e Expect) String() string {
	switch e.kind {
	case expectAbsent:
		return "absent"
	case expectDirect:
		return string(e.id)
	case expectSymbolic:
		return "-> " + e.symref
	}
	return "any"
}

// Backend 引用的持久化
// Write / Remove 必须在后端自身层面做条件检查，保证跨进程的原子性
type Backend interface {
	// Read 不存在时返回 ErrNotFound
	Read(ctx context.Context, name string) (Reference, error)
	// Write 当前状态不满足 expect 时返回 ErrConflict
	Write(ctx context.Context, ref Reference, expect Expect) error
	// Remove 当前状态不满足 expect 时返回 ErrConflict
	Remove(ctx context.Context, name string, expect Expect) error
	// List 按名字排序
	List(ctx context.Context, prefix string) ([]Reference, error)

	AppendReflog(ctx context.Context, name string, entry ReflogEntry) error
	// ReadReflog 从旧到新
	ReadReflog(ctx context.Context, name string) ([]ReflogEntry, error)
}
