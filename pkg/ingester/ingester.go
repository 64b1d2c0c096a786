package ingester

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gitvault/pkg/core"
	"gitvault/pkg/ignore"
	"gitvault/pkg/types"
)

// BlobWriter odb.Store 满足
type BlobWriter interface {
	PutBlob(ctx context.Context, r io.Reader) (types.Hash, error)
}

type Ingester struct {
	store BlobWriter
}

func NewIngester(store BlobWriter) *Ingester {
	return &Ingester{store: store}
}

// Result 一个文件入库后的结果
type Result struct {
	ID   types.Hash
	Mode core.FileMode
	Size int64
}

// IngestFile 读取一个文件流并存为 blob
// 大小上限由 odb 控制，超出时返回 odb.ErrBlobTooLarge
func (ing *Ingester) IngestFile(ctx context.Context, reader io.Reader) (types.Hash, error) {
	id, err := ing.store.PutBlob(ctx, reader)
	if err != nil {
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	return id, nil
}

// IngestPath 入库磁盘上的一个文件
// 符号链接存的是链接目标本身，可执行位决定 ModeExec
func (ing *Ingester) IngestPath(ctx context.Context, path string) (Result, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Result{}, err
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return Result{}, fmt.Errorf("read symlink %s: %w", path, err)
		}
		id, err := ing.IngestFile(ctx, strings.NewReader(target))
		if err != nil {
			return Result{}, err
		}
		return Result{ID: id, Mode: core.ModeSymlink, Size: int64(len(target))}, nil

	case info.Mode().IsRegular():
		f, err := os.Open(path)
		if err != nil {
			return Result{}, err
		}
		defer f.Close()

		id, err := ing.IngestFile(ctx, f)
		if err != nil {
			return Result{}, err
		}
		mode := core.ModeFile
		if info.Mode().Perm()&0o111 != 0 {
			mode = core.ModeExec
		}
		return Result{ID: id, Mode: mode, Size: info.Size()}, nil
	}
	return Result{}, fmt.Errorf("%s: not a regular file or symlink", path)
}

// IngestDir 递归入库 root 下所有未被忽略的文件，fn 收到以 / 分隔的相对路径
// 遍历顺序是字典序，fn 返回错误会中止遍历
func (ing *Ingester) IngestDir(ctx context.Context, root string, matcher *ignore.Matcher, fn func(rel string, r Result) error) error {
	return ing.IngestSubdir(ctx, root, ".", matcher, fn)
}

// IngestSubdir 只遍历 root/sub，但相对路径和忽略规则仍以 root 为基准
func (ing *Ingester) IngestSubdir(ctx context.Context, root, sub string, matcher *ignore.Matcher, fn func(rel string, r Result) error) error {
	return filepath.WalkDir(filepath.Join(root, sub), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if matcher.MatchesDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if matcher.Matches(rel) {
			return nil
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			// socket、设备文件之类的直接跳过
			return nil
		}

		r, err := ing.IngestPath(ctx, path)
		if err != nil {
			return err
		}
		return fn(rel, r)
	})
}
