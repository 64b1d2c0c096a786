package pack

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitvault/pkg/core"
	"gitvault/pkg/graph"
	"gitvault/pkg/storage"
	"gitvault/pkg/types"
)

// Reachability graph.Graph 满足
type Reachability interface {
	ReachableObjects(ctx context.Context, roots, haves []types.Hash) ([]types.Hash, error)
}

// RawSource odb.Store 满足
type RawSource interface {
	ReadRaw(ctx context.Context, id types.Hash) ([]byte, error)
	Algo() types.HashAlgo
}

type Stats struct {
	Objects int
	Bytes   int64
}

type buildConfig struct {
	workers int
	batch   int
	log     *zap.Logger
}

type BuildOption func(*buildConfig)

// WithWorkers 并发读取对象的 goroutine 数
func WithWorkers(n int) BuildOption {
	return func(c *buildConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

func WithLogger(l *zap.Logger) BuildOption {
	return func(c *buildConfig) {
		if l != nil {
			c.log = l
		}
	}
}

type prepared struct {
	kind       core.ObjectType
	compressed []byte
}

// Build 把 roots 可达、haves 不可达的全部对象写成一个 pack
// 对象按批并发读取和压缩，按遍历顺序写出
func Build(ctx context.Context, reach Reachability, src RawSource, roots, haves []types.Hash, w io.Writer, opts ...BuildOption) (Stats, error) {
	cfg := buildConfig{workers: 8, batch: 256, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	ids, err := reach.ReachableObjects(ctx, roots, haves)
	if err != nil {
		return Stats{}, err
	}
	pw, err := NewWriter(w, src.Algo(), uint32(len(ids)))
	if err != nil {
		return Stats{}, err
	}

	for start := 0; start < len(ids); start += cfg.batch {
		end := min(start+cfg.batch, len(ids))
		batch := make([]prepared, end-start)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.workers)
		for i, id := range ids[start:end] {
			g.Go(func() error {
				raw, err := src.ReadRaw(gctx, id)
				if err != nil {
					// 可达集合中缺失的 blob 说明历史已损坏
					return fmt.Errorf("%w: %s: %w", graph.ErrCorruptHistory, id.Short(), err)
				}
				obj, err := core.Decode(raw)
				if err != nil {
					return fmt.Errorf("decode %s: %w", id.Short(), err)
				}
				compressed, err := storage.Compress(raw)
				if err != nil {
					return err
				}
				batch[i] = prepared{kind: obj.Type(), compressed: compressed}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Stats{}, err
		}

		for i, p := range batch {
			if err := pw.writeCompressed(p.kind, ids[start+i], p.compressed); err != nil {
				return Stats{}, err
			}
		}
	}

	if err := pw.Close(); err != nil {
		return Stats{}, err
	}
	cfg.log.Info("pack built", zap.Int("objects", len(ids)), zap.Int64("bytes", pw.Size()))
	return Stats{Objects: len(ids), Bytes: pw.Size()}, nil
}
