package disk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gitvault/pkg/storage"
	"gitvault/pkg/types"
)

// Adapter 实现了 storage.Backend 接口
// 每个对象是一个 zstd 压缩的松散文件
type Adapter struct {
	rootPath string // 比如: /home/user/.gv/objects
}

// NewAdapter 创建一个新的磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	// 确保根目录存在
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	return &Adapter{rootPath: root}, nil
}

// layout 返回哈希对应的物理路径
// 策略：使用前 2 个字符作为子目录 (Sharding)
// Example: hash "aabbcc..." -> root/aa/bbcc...
func (s *Adapter) layout(id types.Hash) string {
	return filepath.Join(s.rootPath, filepath.FromSlash(storage.ShardKey(id)))
}

func (s *Adapter) Put(ctx context.Context, id types.Hash, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	targetPath := s.layout(id)

	// 1. 检查是否存在 (幂等性)
	if _, err := os.Stat(targetPath); err == nil {
		return nil
	}

	// 2. 准备目录
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	compressed, err := storage.Compress(data)
	if err != nil {
		return err
	}

	// 3. 原子写入：先写临时文件，再 Rename
	// 要么文件不存在，要么文件是完整的
	tempFile, err := os.CreateTemp(dir, "temp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(compressed); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	// 4. 移动到最终位置
	return os.Rename(tempFile.Name(), targetPath)
}

func (s *Adapter) Get(ctx context.Context, id types.Hash) (io.ReadCloser, error) {
	raw, err := os.ReadFile(s.layout(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	data, err := storage.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", id, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Adapter) Has(ctx context.Context, id types.Hash) (bool, error) {
	_, err := os.Stat(s.layout(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// List 遍历所有分片目录
func (s *Adapter) List(ctx context.Context, fn func(types.Hash) error) error {
	shards, err := os.ReadDir(s.rootPath)
	if err != nil {
		return err
	}
	for _, shard := range shards {
		if !shard.IsDir() || len(shard.Name()) != 2 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		files, err := os.ReadDir(filepath.Join(s.rootPath, shard.Name()))
		if err != nil {
			return err
		}
		for _, f := range files {
			if f.IsDir() || strings.HasPrefix(f.Name(), "temp-") {
				continue
			}
			id := types.Hash(shard.Name() + f.Name())
			if !id.IsValid() {
				continue
			}
			if err := fn(id); err != nil {
				return err
			}
		}
	}
	return nil
}
