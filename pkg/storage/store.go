package storage

import (
	"context"
	"errors"
	"io"

	"gitvault/pkg/types"
)

var (
	ErrNotFound = errors.New("object not found")
)

// Backend 定义了对象存储后端的接口
// 实现可以是本地磁盘、对象存储，或者内存。后端只认识 ID 和字节，
// 编码、校验、前缀索引都在 odb 层完成。
type Backend interface {
	// Put 持久化一段已编码的对象数据
	// 同一个 ID 重复写入必须是幂等的；失败时不能留下半个对象
	Put(ctx context.Context, id types.Hash, data []byte) error

	// Get 根据 ID 读取原始数据，不存在时返回 ErrNotFound
	// 返回 io.ReadCloser 以支持流式读取
	Get(ctx context.Context, id types.Hash) (io.ReadCloser, error)

	// Has 检查对象是否存在 (用于去重逻辑)
	Has(ctx context.Context, id types.Hash) (bool, error)

	// List 枚举所有对象 ID，顺序不保证；fn 返回错误时中止
	List(ctx context.Context, fn func(types.Hash) error) error
}

// ReadAll 读取整个对象
func ReadAll(ctx context.Context, b Backend, id types.Hash) ([]byte, error) {
	rc, err := b.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// shardKey "aabbcc..." -> "aa/bbcc..."
func ShardKey(id types.Hash) string {
	s := string(id)
	if len(s) < 2 {
		return s
	}
	return s[:2] + "/" + s[2:]
}
