package odb

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gitvault/pkg/core"
	"gitvault/pkg/storage"
	"gitvault/pkg/types"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNotFound        = storage.ErrNotFound
	ErrCorruptObject   = core.ErrCorruptObject
	ErrInvalidPrefix   = types.ErrInvalidPrefix
	ErrAmbiguousPrefix = errors.New("ambiguous object id prefix")
	ErrTypeMismatch    = errors.New("object type mismatch")
	ErrBlobTooLarge    = errors.New("blob exceeds size limit")
)

const (
	// DefaultMaxBlobSize PutBlob 默认上限
	DefaultMaxBlobSize int64 = 512 << 20

	// rawOverhead blob 信封 "blob <len>\x00" 的最大长度
	rawOverhead = 32
)

// Store 内容寻址对象库
// 负责编码、哈希、去重和前缀解析；持久化交给 storage.Backend
type Store struct {
	backend storage.Backend
	algo    types.HashAlgo
	index   *prefixIndex
	flight  singleflight.Group
	log     *zap.Logger
	maxBlob int64
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMaxBlobSize(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBlob = n
		}
	}
}

// Open 包装一个后端，并从后端枚举结果构建前缀索引
func Open(ctx context.Context, backend storage.Backend, algo types.HashAlgo, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		algo:    algo,
		log:     zap.NewNop(),
		maxBlob: DefaultMaxBlobSize,
		index:   newPrefixIndex(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Reindex(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reindex 重新枚举后端 (其他进程写入的对象需要它才能被前缀解析)
func (s *Store) Reindex(ctx context.Context) error {
	var ids []types.Hash
	err := s.backend.List(ctx, func(id types.Hash) error {
		if s.algo.Owns(id) {
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("list objects: %w", err)
	}
	s.index.reset(ids)
	s.log.Debug("object index built", zap.Int("objects", len(ids)), zap.String("algo", s.algo.String()))
	return nil
}

func (s *Store) Algo() types.HashAlgo { return s.algo }

// Put 编码、哈希、写入。对象已存在时不做任何写入
func (s *Store) Put(ctx context.Context, obj core.Object) (types.Hash, error) {
	id, data, err := core.CalculateHash(s.algo, obj)
	if err != nil {
		return "", err
	}
	if err := s.write(ctx, id, data); err != nil {
		return "", err
	}
	return id, nil
}

// PutRaw 写入已经是规范编码的字节 (pack 解包用)，返回计算出的 ID
// blob 同样受 PutBlob 的大小上限约束
func (s *Store) PutRaw(ctx context.Context, data []byte) (types.Hash, error) {
	if int64(len(data)) > s.MaxRawSize() {
		return "", fmt.Errorf("%w: object of %d bytes", ErrBlobTooLarge, len(data))
	}
	obj, err := core.Decode(data)
	if err != nil {
		return "", err
	}
	if b, ok := obj.(*core.Blob); ok && int64(b.Size()) > s.maxBlob {
		return "", fmt.Errorf("%w: %d > %d bytes", ErrBlobTooLarge, b.Size(), s.maxBlob)
	}
	return s.Put(ctx, obj)
}

// MaxRawSize 单个对象规范字节的上限 (blob 上限加信封)
func (s *Store) MaxRawSize() int64 { return s.maxBlob + rawOverhead }

func (s *Store) write(ctx context.Context, id types.Hash, data []byte) error {
	if s.index.contains(id) {
		return nil
	}
	// 同一 ID 的并发写入合并成一次后端调用
	_, err, shared := s.flight.Do(string(id), func() (any, error) {
		if err := s.backend.Put(ctx, id, data); err != nil {
			return nil, err
		}
		s.index.add(id)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", id.Short(), err)
	}
	if shared {
		s.log.Debug("put collapsed", zap.String("id", id.Short()))
	}
	return nil
}

// PutBlob 从 reader 读入 blob，超出上限时报 ErrBlobTooLarge
func (s *Store) PutBlob(ctx context.Context, r io.Reader) (types.Hash, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBlob+1))
	if err != nil {
		return "", fmt.Errorf("read blob: %w", err)
	}
	if int64(len(data)) > s.maxBlob {
		return "", fmt.Errorf("%w: more than %d bytes", ErrBlobTooLarge, s.maxBlob)
	}
	return s.Put(ctx, core.NewBlob(data))
}

// ReadRaw 读取并校验对象的规范字节
func (s *Store) ReadRaw(ctx context.Context, id types.Hash) ([]byte, error) {
	if !s.algo.Owns(id) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	data, err := storage.ReadAll(ctx, s.backend, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", id.Short(), err)
	}
	sum, err := s.algo.Sum(data)
	if err != nil {
		return nil, err
	}
	if sum != id {
		return nil, fmt.Errorf("%w: %s hashes to %s", ErrCorruptObject, id, sum)
	}
	return data, nil
}

// Get 读取并解码对象
func (s *Store) Get(ctx context.Context, id types.Hash) (core.Object, error) {
	data, err := s.ReadRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	obj, err := core.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", id.Short(), err)
	}
	return obj, nil
}

// Exists 永不失败，后端错误记日志并按不存在处理
func (s *Store) Exists(ctx context.Context, id types.Hash) bool {
	if !s.algo.Owns(id) {
		return false
	}
	if s.index.contains(id) {
		return true
	}
	ok, err := s.backend.Has(ctx, id)
	if err != nil {
		s.log.Warn("existence check failed", zap.String("id", id.Short()), zap.Error(err))
		return false
	}
	if ok {
		s.index.add(id)
	}
	return ok
}

// Resolve 把缩写 ID 展开为完整 ID
func (s *Store) Resolve(ctx context.Context, prefix types.HashPrefix) (types.Hash, error) {
	if err := prefix.Validate(); err != nil {
		return "", err
	}
	p := string(prefix.Normalize())
	if len(p) > s.algo.HexSize() {
		return "", fmt.Errorf("%w: %q longer than a %s id", ErrInvalidPrefix, p, s.algo)
	}
	if len(p) == s.algo.HexSize() {
		if s.Exists(ctx, types.Hash(p)) {
			return types.Hash(p), nil
		}
		return "", fmt.Errorf("%w: %s", ErrNotFound, p)
	}

	matches := s.index.lookup(p, 2)
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: no object matches %s", ErrNotFound, p)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousPrefix, p)
	}
}

// Count 索引中的对象数量
func (s *Store) Count() int { return s.index.len() }

// ReadBlob / ReadTree / ReadCommit / ReadTag 带类型检查的读取

func (s *Store) ReadBlob(ctx context.Context, id types.Hash) (*core.Blob, error) {
	return readAs[*core.Blob](ctx, s, id, core.TypeBlob)
}

func (s *Store) ReadTree(ctx context.Context, id types.Hash) (*core.Tree, error) {
	return readAs[*core.Tree](ctx, s, id, core.TypeTree)
}

func (s *Store) ReadCommit(ctx context.Context, id types.Hash) (*core.Commit, error) {
	return readAs[*core.Commit](ctx, s, id, core.TypeCommit)
}

func (s *Store) ReadTag(ctx context.Context, id types.Hash) (*core.Tag, error) {
	return readAs[*core.Tag](ctx, s, id, core.TypeTag)
}

func readAs[T core.Object](ctx context.Context, s *Store, id types.Hash, want core.ObjectType) (T, error) {
	var zero T
	obj, err := s.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is a %s, want %s", ErrTypeMismatch, id.Short(), obj.Type(), want)
	}
	return typed, nil
}

// Peel 沿着 tag 链一直剥到非 tag 对象
func (s *Store) Peel(ctx context.Context, id types.Hash) (types.Hash, core.Object, error) {
	for depth := 0; depth < 16; depth++ {
		obj, err := s.Get(ctx, id)
		if err != nil {
			return "", nil, err
		}
		tag, ok := obj.(*core.Tag)
		if !ok {
			return id, obj, nil
		}
		id = tag.Target
	}
	return "", nil, fmt.Errorf("%w: tag chain too deep at %s", ErrCorruptObject, id.Short())
}
