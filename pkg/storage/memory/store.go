package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"gitvault/pkg/storage"
	"gitvault/pkg/types"
)

// Store 进程内的对象后端，用于测试和临时仓库
type Store struct {
	mu      sync.RWMutex
	objects map[types.Hash][]byte
}

func New() *Store {
	return &Store{objects: make(map[types.Hash][]byte)}
}

func (s *Store) Put(ctx context.Context, id types.Hash, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[id]; ok {
		return nil
	}
	s.objects[id] = append([]byte(nil), data...)
	return nil
}

func (s *Store) Get(ctx context.Context, id types.Hash) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.objects[id]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) Has(ctx context.Context, id types.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[id]
	return ok, nil
}

func (s *Store) List(ctx context.Context, fn func(types.Hash) error) error {
	s.mu.RLock()
	ids := make([]types.Hash, 0, len(s.objects))
	for id := range s.objects {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

// Len 对象数量
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Corrupt 直接覆盖某个对象的字节，只给测试用
func (s *Store) Corrupt(id types.Hash, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[id] = data
}
