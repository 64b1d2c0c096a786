package refs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryBackend 进程内后端，用于测试和临时仓库
type MemoryBackend struct {
	mu     sync.RWMutex
	refs   map[string]Reference
	reflog map[string][]ReflogEntry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		refs:   make(map[string]Reference),
		reflog: make(map[string][]ReflogEntry),
	}
}

func (b *MemoryBackend) Read(_ context.Context, name string) (Reference, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ref, ok := b.refs[name]
	if !ok {
		return Reference{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return ref, nil
}

func (b *MemoryBackend) Write(_ context.Context, ref Reference, expect Expect) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(ref.Name, expect); err != nil {
		return err
	}
	b.refs[ref.Name] = ref
	return nil
}

func (b *MemoryBackend) Remove(_ context.Context, name string, expect Expect) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.refs[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := b.check(name, expect); err != nil {
		return err
	}
	delete(b.refs, name)
	return nil
}

func (b *MemoryBackend) check(name string, expect Expect) error {
	cur, ok := b.refs[name]
	if !ok {
		if !expect.Matches(nil) {
			return fmt.Errorf("%w: %s is absent, expected %s", ErrConflict, name, expect)
		}
		return nil
	}
	if !expect.Matches(&cur) {
		return fmt.Errorf("%w: %s changed, expected %s", ErrConflict, name, expect)
	}
	return nil
}

func (b *MemoryBackend) List(_ context.Context, prefix string) ([]Reference, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Reference
	for name, ref := range b.refs {
		if strings.HasPrefix(name, prefix) {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (b *MemoryBackend) AppendReflog(_ context.Context, name string, e ReflogEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reflog[name] = append(b.reflog[name], e)
	return nil
}

func (b *MemoryBackend) ReadReflog(_ context.Context, name string) ([]ReflogEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]ReflogEntry(nil), b.reflog[name]...), nil
}
