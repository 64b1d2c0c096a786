package odb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"testing"
	"time"

	"gitvault/pkg/core"
	"gitvault/pkg/storage"
	"gitvault/pkg/storage/memory"
	"gitvault/pkg/types"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// mockHash 生成一个合法的 64 字符 Hex
func mockHash(input string) types.Hash {
	sum := sha256.Sum256([]byte(input))
	return types.Hash(hex.EncodeToString(sum[:]))
}

func sig(unix int64) core.Signature {
	return core.NewSignature("alice", "alice@example.com", time.Unix(unix, 0))
}

// countingBackend 统计写入次数
type countingBackend struct {
	storage.Backend
	puts int32
}

func (c *countingBackend) Put(ctx context.Context, id types.Hash, data []byte) error {
	atomic.AddInt32(&c.puts, 1)
	return c.Backend.Put(ctx, id, data)
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *memory.Store) {
	t.Helper()
	mem := memory.New()
	s, err := Open(context.Background(), mem, types.SHA256, append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
	require.NoError(t, err)
	return s, mem
}

func mustPut(t *testing.T, s *Store, obj core.Object) types.Hash {
	t.Helper()
	id, err := s.Put(context.Background(), obj)
	require.NoError(t, err)
	return id
}
