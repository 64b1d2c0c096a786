package refs

import (
	"context"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"gitvault/pkg/core"
	"gitvault/pkg/types"
)

// fakeObjects 记录“已存在”的对象 ID
type fakeObjects struct {
	mu  sync.Mutex
	ids map[types.Hash]bool
	put []core.Object
}

func newFakeObjects(ids ...types.Hash) *fakeObjects {
	f := &fakeObjects{ids: make(map[types.Hash]bool)}
	for _, id := range ids {
		f.ids[id] = true
	}
	return f
}

func (f *fakeObjects) Exists(_ context.Context, id types.Hash) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ids[id]
}

func (f *fakeObjects) Put(_ context.Context, obj core.Object) (types.Hash, error) {
	id, _, err := core.CalculateHash(types.SHA256, obj)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids[id] = true
	f.put = append(f.put, obj)
	return id, nil
}

func oid(c string) types.Hash { return types.Hash(strings.Repeat(c, 64)) }

var (
	idA = oid("a")
	idB = oid("b")
	idC = oid("c")
)

func newTestManager(t *testing.T) (*Manager, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend()
	m := NewManager(backend, newFakeObjects(idA, idB, idC), WithLogger(zaptest.NewLogger(t)))
	return m, backend
}
