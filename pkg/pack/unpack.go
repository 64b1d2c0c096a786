package pack

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"gitvault/pkg/types"
)

// RawWriter odb.Store 满足
type RawWriter interface {
	PutRaw(ctx context.Context, data []byte) (types.Hash, error)
	Algo() types.HashAlgo
	MaxRawSize() int64
}

// Unpack 校验并写入 pack 中的每个对象，返回写入的 ID (按 pack 顺序)
// 每个对象在写入前都已按 ID 校验；尾部摘要不符时返回 ErrChecksum，
// 此前写入的对象都是完整且正确的
func Unpack(ctx context.Context, r io.Reader, dst RawWriter) ([]types.Hash, error) {
	pr, err := NewReader(r, WithMaxObjectSize(dst.MaxRawSize()))
	if err != nil {
		return nil, err
	}
	if pr.Algo() != dst.Algo() {
		return nil, fmt.Errorf("%w: pack uses %s, store uses %s", ErrAlgoMismatch, pr.Algo(), dst.Algo())
	}

	ids := make([]types.Hash, 0, pr.Count())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for {
		if gctx.Err() != nil {
			// 写入失败会取消 gctx，优先返回那个错误
			if err := g.Wait(); err != nil {
				return nil, err
			}
			return nil, ctx.Err()
		}
		entry, err := pr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			g.Wait()
			return nil, err
		}
		ids = append(ids, entry.ID)
		g.Go(func() error {
			got, err := dst.PutRaw(gctx, entry.Data)
			if err != nil {
				return fmt.Errorf("unpack %s: %w", entry.ID.Short(), err)
			}
			if got != entry.ID {
				return fmt.Errorf("%w: %s stored as %s", ErrObjectMismatch, entry.ID, got)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}
