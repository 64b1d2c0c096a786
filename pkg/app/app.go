// pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gitvault/pkg/config"
	"gitvault/pkg/core"
	"gitvault/pkg/graph"
	"gitvault/pkg/index"
	"gitvault/pkg/logging"
	"gitvault/pkg/merge"
	"gitvault/pkg/meta"
	"gitvault/pkg/odb"
	"gitvault/pkg/refs"
	"gitvault/pkg/refs/files"
	"gitvault/pkg/storage"
	"gitvault/pkg/storage/cache"
	"gitvault/pkg/storage/disk"
	"gitvault/pkg/storage/memory"
	"gitvault/pkg/storage/s3"
	"gitvault/pkg/textmerge"

	"go.uber.org/zap"
)

var ErrNotRepository = errors.New("not a gitvault repository (run 'gv init')")

// DefaultBranch init 时 HEAD 指向的分支
const DefaultBranch = "refs/heads/main"

// App 是整个应用程序的依赖容器 (Dependency Container)
type App struct {
	Config  *config.Config
	Log     *zap.Logger
	Backend storage.Backend
	Objects *odb.Store
	Refs    *refs.Manager
	Graph   *graph.Graph
	Merger  *merge.Engine
	Index   *index.Index
	// Meta 仅在 refs.backend = sql 时存在
	Meta *meta.Repository

	closers []func() error
}

type Option func(*options)

type options struct {
	log *zap.Logger
}

// WithLogger 覆盖按配置构建的 logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// New 是工厂函数，按配置组装所有组件
// 它不知道具体的 CLI 命令
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if info, statErr := os.Stat(cfg.GvDir()); statErr != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, cfg.Repo.Path)
	}

	a := &App{Config: cfg, Log: o.log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Log == nil {
		if a.Log, err = logging.New(cfg.LoggingConfig()); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { _ = a.Log.Sync(); return nil })
	}

	algo, err := cfg.HashAlgo()
	if err != nil {
		return nil, err
	}

	// 1. 对象存储
	if a.Backend, err = a.initStore(ctx); err != nil {
		return nil, err
	}
	odbOpts := []odb.Option{odb.WithLogger(a.Log.Named("odb"))}
	if cfg.Limits.MaxBlobBytes > 0 {
		odbOpts = append(odbOpts, odb.WithMaxBlobSize(cfg.Limits.MaxBlobBytes))
	}
	if a.Objects, err = odb.Open(ctx, a.Backend, algo, odbOpts...); err != nil {
		return nil, fmt.Errorf("failed to open object store: %w", err)
	}

	// 2. 引用存储
	refBackend, err := a.initRefBackend(ctx)
	if err != nil {
		return nil, err
	}
	a.Refs = refs.NewManager(refBackend, a.Objects,
		refs.WithLogger(a.Log.Named("refs")),
		refs.WithIdentity(a.Signature),
	)

	// 3. 提交图与合并
	graphOpts := []graph.Option{graph.WithLogger(a.Log.Named("graph"))}
	if a.Meta != nil {
		graphOpts = append(graphOpts, graph.WithGenerationStore(a.Meta))
	}
	a.Graph = graph.New(a.Objects, graphOpts...)

	var text merge.TextMerger = textmerge.LineMerger{}
	if !cfg.Merge.TextMerge {
		text = textmerge.Disabled{}
	}
	a.Merger = merge.New(a.Objects, a.Graph, merge.WithLogger(a.Log.Named("merge")), merge.WithTextMerger(text))

	// 4. 暂存区
	if a.Index, err = index.NewIndex(cfg.IndexPath()); err != nil {
		return nil, fmt.Errorf("failed to load index: %w", err)
	}
	return a, nil
}

// initStore 根据 storage.type 选择后端，配置了 redis 时外面再包一层存在性缓存
func (a *App) initStore(ctx context.Context) (storage.Backend, error) {
	cfg := a.Config
	var backend storage.Backend

	switch cfg.Storage.Type {
	case "disk", "":
		d, err := disk.NewAdapter(cfg.ObjectsPath())
		if err != nil {
			return nil, fmt.Errorf("failed to init disk storage: %w", err)
		}
		backend = d
	case "s3":
		if cfg.Storage.S3.Bucket == "" {
			return nil, fmt.Errorf("s3 bucket is required")
		}
		s, err := s3.NewAdapter(ctx, cfg.S3Config(), a.Log.Named("s3"))
		if err != nil {
			return nil, fmt.Errorf("failed to init s3 storage: %w", err)
		}
		backend = s
	case "memory":
		backend = memory.New()
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	if cfg.Storage.Cache.RedisURL == "" {
		return backend, nil
	}
	cached, err := cache.NewCachedStore(backend, cfg.CacheConfig(), a.Log.Named("cache"))
	if err != nil {
		return nil, fmt.Errorf("failed to init redis cache: %w", err)
	}
	a.closers = append(a.closers, cached.Close)
	return cached, nil
}

func (a *App) initRefBackend(ctx context.Context) (refs.Backend, error) {
	cfg := a.Config
	switch cfg.Refs.Backend {
	case "files", "":
		return files.New(cfg.GvDir(),
			files.WithLogger(a.Log.Named("refs.files")),
			files.WithLockWait(cfg.Refs.LockWait),
		)
	case "sql":
		db, err := meta.NewDB(ctx, cfg.MetaConfig())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.Meta = meta.NewRepository(db)
		return a.Meta, nil
	default:
		return nil, fmt.Errorf("unsupported refs backend: %s", cfg.Refs.Backend)
	}
}

// Signature 当前用户身份，时间取当下
func (a *App) Signature() core.Signature {
	name, email := a.Config.User.Name, a.Config.User.Email
	if name == "" {
		name = "gitvault"
	}
	if email == "" {
		email = "gitvault@localhost"
	}
	return core.NewSignature(name, email, time.Now())
}

// Close 逆序释放资源
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Init 创建 .gv 目录并写入仓库配置，HEAD 指向 main
// 已初始化的仓库再次 Init 是无害的
func Init(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if err := os.MkdirAll(cfg.GvDir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", cfg.GvDir(), err)
	}
	cfgPath := filepath.Join(cfg.GvDir(), "config.yaml")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.WriteRepoConfig(cfg.GvDir(), cfg); err != nil {
			return nil, fmt.Errorf("failed to write repo config: %w", err)
		}
	}

	a, err := New(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := a.Refs.Read(ctx, refs.HEAD); errors.Is(err, refs.ErrNotFound) {
		if err := a.Refs.CreateSymbolic(ctx, refs.HEAD, DefaultBranch, "init"); err != nil {
			a.Close()
			return nil, err
		}
	} else if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}
