package refs

import (
	"sort"
	"sync"
)

// keyedMutex 每个引用名一把锁，没有全局锁
// 锁对象按引用计数回收，不会随着引用数量无限增长
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock 返回解锁函数
func (k *keyedMutex) Lock(name string) func() {
	k.mu.Lock()
	l, ok := k.locks[name]
	if !ok {
		l = &keyedLock{}
		k.locks[name] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, name)
		}
		k.mu.Unlock()
	}
}

// LockAll 按名字排序后依次加锁，多个调用方之间不会死锁
func (k *keyedMutex) LockAll(names []string) func() {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	var unlocks []func()
	for i, n := range sorted {
		if i > 0 && sorted[i-1] == n {
			continue
		}
		unlocks = append(unlocks, k.Lock(n))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
