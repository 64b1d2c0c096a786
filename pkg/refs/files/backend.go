// Package files 把引用保存为松散文件，reflog 保存在 logs/ 下
//
// 布局:
//
//	<root>/HEAD                 "ref: refs/heads/main\n"
//	<root>/refs/heads/main      "<hex>\n"
//	<root>/logs/refs/heads/main 每行一条 reflog
package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitvault/pkg/refs"
	"gitvault/pkg/types"
)

const (
	lockSuffix     = ".lock"
	symrefPrefix   = "ref: "
	lockRetryDelay = 5 * time.Millisecond
)

// ErrLockTimeout 等待 .lock 超时，通常是另一个进程崩溃后遗留了锁文件
var ErrLockTimeout = errors.New("timed out waiting for ref lock")

type Backend struct {
	root     string
	lockWait time.Duration
	log      *zap.Logger
}

type Option func(*Backend)

func WithLogger(l *zap.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.log = l
		}
	}
}

// WithLockWait 获取锁文件的最长等待时间，非正数保持默认
func WithLockWait(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.lockWait = d
		}
	}
}

var _ refs.Backend = (*Backend)(nil)

func New(root string, opts ...Option) (*Backend, error) {
	b := &Backend{root: root, lockWait: 2 * time.Second, log: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	if err := os.MkdirAll(filepath.Join(root, "refs", "heads"), 0o755); err != nil {
		return nil, fmt.Errorf("init refs dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "refs", "tags"), 0o755); err != nil {
		return nil, fmt.Errorf("init refs dir: %w", err)
	}
	return b, nil
}

func (b *Backend) refPath(name string) string {
	return filepath.Join(b.root, filepath.FromSlash(name))
}

func (b *Backend) logPath(name string) string {
	return filepath.Join(b.root, "logs", filepath.FromSlash(name))
}

func (b *Backend) Read(_ context.Context, name string) (refs.Reference, error) {
	return readRef(b.refPath(name), name)
}

func readRef(path, name string) (refs.Reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || isDirErr(path) {
			return refs.Reference{}, fmt.Errorf("%w: %s", refs.ErrNotFound, name)
		}
		return refs.Reference{}, fmt.Errorf("read ref %s: %w", name, err)
	}
	return parseRef(name, string(data))
}

func parseRef(name, content string) (refs.Reference, error) {
	content = strings.TrimSpace(content)
	if target, ok := strings.CutPrefix(content, symrefPrefix); ok {
		return refs.NewSymbolic(name, strings.TrimSpace(target)), nil
	}
	id := types.Hash(content)
	if !id.IsValid() {
		return refs.Reference{}, fmt.Errorf("ref %s: malformed content %q", name, content)
	}
	return refs.NewDirect(name, id), nil
}

func formatRef(ref refs.Reference) string {
	if ref.IsSymbolic() {
		return symrefPrefix + ref.Symref + "\n"
	}
	return ref.Target.String() + "\n"
}

// Write 先拿 <name>.lock，检查前置条件，把新内容写入锁文件再 rename 到位
func (b *Backend) Write(ctx context.Context, ref refs.Reference, expect refs.Expect) error {
	path := b.refPath(ref.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", refs.ErrConflict, ref.Name, err)
	}

	lock, err := b.acquireLock(ctx, path)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			lock.Close()
			os.Remove(lock.Name())
		}
	}()

	if err := b.check(path, ref.Name, expect); err != nil {
		return err
	}
	if _, err := lock.WriteString(formatRef(ref)); err != nil {
		return fmt.Errorf("write ref lock: %w", err)
	}
	if err := lock.Sync(); err != nil {
		return fmt.Errorf("sync ref lock: %w", err)
	}
	if err := lock.Close(); err != nil {
		return fmt.Errorf("close ref lock: %w", err)
	}
	if err := os.Rename(lock.Name(), path); err != nil {
		os.Remove(lock.Name())
		committed = true
		return fmt.Errorf("commit ref %s: %w", ref.Name, err)
	}
	committed = true
	return nil
}

func (b *Backend) Remove(ctx context.Context, name string, expect refs.Expect) error {
	path := b.refPath(name)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", refs.ErrNotFound, name)
	}

	lock, err := b.acquireLock(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		lock.Close()
		os.Remove(lock.Name())
	}()

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", refs.ErrNotFound, name)
	}
	if err := b.check(path, name, expect); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove ref %s: %w", name, err)
	}
	b.pruneEmptyDirs(filepath.Dir(path))
	return nil
}

func (b *Backend) check(path, name string, expect refs.Expect) error {
	cur, err := readRef(path, name)
	switch {
	case errors.Is(err, refs.ErrNotFound):
		if !expect.Matches(nil) {
			return fmt.Errorf("%w: %s is absent, expected %s", refs.ErrConflict, name, expect)
		}
		return nil
	case err != nil:
		return err
	}
	if !expect.Matches(&cur) {
		return fmt.Errorf("%w: %s changed on disk, expected %s", refs.ErrConflict, name, expect)
	}
	return nil
}

// acquireLock O_EXCL 创建锁文件，已存在时重试直到超时
func (b *Backend) acquireLock(ctx context.Context, path string) (*os.File, error) {
	lockPath := path + lockSuffix
	deadline := time.Now().Add(b.lockWait)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create ref lock: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, lockPath)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}

// pruneEmptyDirs 删除引用后清理空目录，保留 refs/heads 和 refs/tags
func (b *Backend) pruneEmptyDirs(dir string) {
	keep := map[string]bool{
		filepath.Clean(b.root):                 true,
		filepath.Join(b.root, "refs"):          true,
		filepath.Join(b.root, "refs", "heads"): true,
		filepath.Join(b.root, "refs", "tags"):  true,
	}
	for !keep[filepath.Clean(dir)] && strings.HasPrefix(dir, b.root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// List refs/ 下的松散引用，再加上顶层伪引用
func (b *Backend) List(_ context.Context, prefix string) ([]refs.Reference, error) {
	var out []refs.Reference
	add := func(name, path string) error {
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		ref, err := readRef(path, name)
		if errors.Is(err, refs.ErrNotFound) {
			return nil
		}
		if err != nil {
			b.log.Warn("skipping unreadable ref", zap.String("ref", name), zap.Error(err))
			return nil
		}
		out = append(out, ref)
		return nil
	}

	for _, pseudo := range []string{refs.HEAD, "ORIG_HEAD", "MERGE_HEAD", "FETCH_HEAD"} {
		if err := add(pseudo, b.refPath(pseudo)); err != nil {
			return nil, err
		}
	}

	refsDir := filepath.Join(b.root, "refs")
	err := filepath.WalkDir(refsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), lockSuffix) {
			return nil
		}
		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		return add(filepath.ToSlash(rel), path)
	})
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func isDirErr(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
