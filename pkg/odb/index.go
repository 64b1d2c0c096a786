package odb

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"gitvault/pkg/types"
)

// deltaLimit 超过这个数量就把 delta 合并进 base
const deltaLimit = 512

// idSnapshot 不可变快照：base 和 delta 都是升序且无重复
type idSnapshot struct {
	base  []types.Hash
	delta []types.Hash
}

// prefixIndex 有序的对象 ID 索引，读无锁，写时复制
type prefixIndex struct {
	mu   sync.Mutex // 只串行化写者
	snap atomic.Pointer[idSnapshot]
}

func newPrefixIndex(ids []types.Hash) *prefixIndex {
	x := &prefixIndex{}
	x.reset(ids)
	return x
}

// reset 用一份完整的 ID 列表替换当前快照
func (x *prefixIndex) reset(ids []types.Hash) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	x.mu.Lock()
	defer x.mu.Unlock()
	x.snap.Store(&idSnapshot{base: dedupSorted(ids)})
}

func (x *prefixIndex) contains(id types.Hash) bool {
	s := x.snap.Load()
	return searchSorted(s.base, id) || searchSorted(s.delta, id)
}

func (x *prefixIndex) add(id types.Hash) {
	x.mu.Lock()
	defer x.mu.Unlock()

	cur := x.snap.Load()
	if searchSorted(cur.base, id) || searchSorted(cur.delta, id) {
		return
	}

	i := sort.Search(len(cur.delta), func(i int) bool { return cur.delta[i] >= id })
	delta := make([]types.Hash, 0, len(cur.delta)+1)
	delta = append(delta, cur.delta[:i]...)
	delta = append(delta, id)
	delta = append(delta, cur.delta[i:]...)

	next := &idSnapshot{base: cur.base, delta: delta}
	if len(delta) > deltaLimit {
		next = &idSnapshot{base: mergeSorted(cur.base, delta)}
	}
	x.snap.Store(next)
}

// lookup 返回最多 limit 个以 prefix 开头的 ID
func (x *prefixIndex) lookup(prefix string, limit int) []types.Hash {
	s := x.snap.Load()
	var out []types.Hash
	for _, ids := range [][]types.Hash{s.base, s.delta} {
		i := sort.Search(len(ids), func(i int) bool { return string(ids[i]) >= prefix })
		for ; i < len(ids) && strings.HasPrefix(string(ids[i]), prefix); i++ {
			out = append(out, ids[i])
			if len(out) >= limit {
				return out
			}
		}
	}
	return out
}

func (x *prefixIndex) len() int {
	s := x.snap.Load()
	return len(s.base) + len(s.delta)
}

func searchSorted(ids []types.Hash, id types.Hash) bool {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	return i < len(ids) && ids[i] == id
}

func dedupSorted(ids []types.Hash) []types.Hash {
	if len(ids) == 0 {
		return nil
	}
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}

func mergeSorted(a, b []types.Hash) []types.Hash {
	out := make([]types.Hash, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
