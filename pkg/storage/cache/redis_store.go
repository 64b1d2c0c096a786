package cache

import (
	"context"
	"fmt"
	"io"
	"time"

	"gitvault/pkg/storage"
	"gitvault/pkg/types"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedStore 是一个装饰器，它为底层的 storage.Backend 添加 Redis 存在性缓存
type CachedStore struct {
	backend storage.Backend // 被装饰的底层存储 (如 S3)
	client  *redis.Client
	ttl     time.Duration
	log     *zap.Logger
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间
}

func NewCachedStore(backend storage.Backend, cfg Config, log *zap.Logger) (*CachedStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newCachedStore(backend, client, cfg.TTL, log), nil
}

func newCachedStore(backend storage.Backend, client *redis.Client, ttl time.Duration, log *zap.Logger) *CachedStore {
	return &CachedStore{backend: backend, client: client, ttl: ttl, log: log}
}

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (s *CachedStore) cacheKey(id types.Hash) string {
	return "gv:obj:" + string(id)
}

// Has 优先查 Redis
func (s *CachedStore) Has(ctx context.Context, id types.Hash) (bool, error) {
	key := s.cacheKey(id)

	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		// 缓存故障降级：退化为无缓存模式，直接查底层存储
		s.log.Warn("redis exists failed, falling back to backend", zap.Error(err))
	} else if val > 0 {
		return true, nil
	}

	found, err := s.backend.Has(ctx, id)
	if err != nil {
		return false, err
	}

	// 缓存回填，异步进行，不阻塞主流程
	if found {
		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.client.Set(fillCtx, key, "1", s.ttl).Err(); err != nil {
				s.log.Debug("redis fill failed", zap.String("id", id.Short()), zap.Error(err))
			}
		}()
	}
	return found, nil
}

// Put 利用 Has 的缓存能力预检
func (s *CachedStore) Put(ctx context.Context, id types.Hash, data []byte) error {
	exists, err := s.Has(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := s.backend.Put(ctx, id, data); err != nil {
		return err
	}

	// 只有底层写成功了，才写 Redis；失败可以忽略
	if err := s.client.Set(ctx, s.cacheKey(id), "1", s.ttl).Err(); err != nil {
		s.log.Debug("redis set failed", zap.String("id", id.Short()), zap.Error(err))
	}
	return nil
}

// Get 透传，只缓存存在性，不缓存内容
func (s *CachedStore) Get(ctx context.Context, id types.Hash) (io.ReadCloser, error) {
	return s.backend.Get(ctx, id)
}

// List 透传
func (s *CachedStore) List(ctx context.Context, fn func(types.Hash) error) error {
	return s.backend.List(ctx, fn)
}

// Close 释放 Redis 连接
func (s *CachedStore) Close() error {
	return s.client.Close()
}
