// Package gitimport 把一个 git 仓库 (go-git 可以打开的任意存储) 导入为 gitvault 对象
package gitimport

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"gitvault/pkg/core"
	"gitvault/pkg/refs"
	"gitvault/pkg/types"
)

// ObjectWriter odb.Store 满足
type ObjectWriter interface {
	Put(ctx context.Context, obj core.Object) (types.Hash, error)
}

// RefStore refs.Manager 满足
type RefStore interface {
	Read(ctx context.Context, name string) (refs.Reference, error)
	Resolve(ctx context.Context, name string) (types.Hash, error)
	Update(ctx context.Context, name string, expectedOld, newID types.Hash, msg string) error
	CreateSymbolic(ctx context.Context, name, target, msg string) error
}

// RefUpdate 一次引用导入
type RefUpdate struct {
	Name string
	Old  types.Hash // 导入前的值，不存在时为空
	New  types.Hash
}

// Result git ID -> gitvault ID 以及更新过的引用
type Result struct {
	Mapping map[plumbing.Hash]types.Hash
	Refs    []RefUpdate
}

type Importer struct {
	objects ObjectWriter
	refs    RefStore
	log     *zap.Logger
}

type Option func(*Importer)

func WithLogger(l *zap.Logger) Option {
	return func(im *Importer) {
		if l != nil {
			im.log = l
		}
	}
}

func New(objects ObjectWriter, refStore RefStore, opts ...Option) *Importer {
	im := &Importer{objects: objects, refs: refStore, log: zap.NewNop()}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// OpenPath 打开磁盘上的 git 仓库 (工作区或裸仓库)
func OpenPath(path string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repo %s: %w", path, err)
	}
	return repo, nil
}

// session 单次导入的转换缓存
type session struct {
	ctx     context.Context
	repo    *git.Repository
	im      *Importer
	mapping map[plumbing.Hash]types.Hash
}

// Import 转换 refs/heads/* 与 refs/tags/* 可达的全部对象，然后以 CAS 更新对应的引用
// 本地 HEAD 不存在时按源仓库的 HEAD 创建符号引用
func (im *Importer) Import(ctx context.Context, repo *git.Repository) (*Result, error) {
	s := &session{ctx: ctx, repo: repo, im: im, mapping: make(map[plumbing.Hash]types.Hash)}

	iter, err := repo.References()
	if err != nil {
		return nil, fmt.Errorf("list git refs: %w", err)
	}
	var gitRefs []*plumbing.Reference
	err = iter.ForEach(func(r *plumbing.Reference) error {
		if r.Type() == plumbing.HashReference && (r.Name().IsBranch() || r.Name().IsTag()) {
			gitRefs = append(gitRefs, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list git refs: %w", err)
	}

	res := &Result{Mapping: s.mapping}
	for _, r := range gitRefs {
		id, err := s.convertAny(r.Hash())
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", r.Name(), err)
		}
		name := r.Name().String()
		upd, changed, err := im.updateRef(ctx, name, id, r.Hash())
		if err != nil {
			return nil, err
		}
		if changed {
			res.Refs = append(res.Refs, upd)
		}
	}

	if err := im.adoptHead(ctx, repo); err != nil {
		return nil, err
	}
	im.log.Info("git import finished", zap.Int("objects", len(s.mapping)), zap.Int("refs", len(res.Refs)))
	return res, nil
}

// updateRef 以导入前读到的值作为 expectedOld
func (im *Importer) updateRef(ctx context.Context, name string, id types.Hash, gitID plumbing.Hash) (RefUpdate, bool, error) {
	old, err := im.refs.Resolve(ctx, name)
	if err != nil && !errors.Is(err, refs.ErrNotFound) {
		return RefUpdate{}, false, fmt.Errorf("resolve %s: %w", name, err)
	}
	if old == id {
		return RefUpdate{}, false, nil
	}
	msg := "import-git: " + gitID.String()
	if err := im.refs.Update(ctx, name, old, id, msg); err != nil {
		return RefUpdate{}, false, fmt.Errorf("update %s: %w", name, err)
	}
	im.log.Debug("ref imported", zap.String("ref", name), zap.String("id", id.Short()))
	return RefUpdate{Name: name, Old: old, New: id}, true, nil
}

func (im *Importer) adoptHead(ctx context.Context, repo *git.Repository) error {
	if _, err := im.refs.Read(ctx, refs.HEAD); !errors.Is(err, refs.ErrNotFound) {
		return nil
	}
	head, err := repo.Storer.Reference(plumbing.HEAD)
	if err != nil || head.Type() != plumbing.SymbolicReference {
		return nil
	}
	if err := im.refs.CreateSymbolic(ctx, refs.HEAD, head.Target().String(), "import-git"); err != nil {
		return fmt.Errorf("set HEAD: %w", err)
	}
	return nil
}

func (s *session) convertAny(h plumbing.Hash) (types.Hash, error) {
	if id, ok := s.mapping[h]; ok {
		return id, nil
	}
	obj, err := s.repo.Storer.EncodedObject(plumbing.AnyObject, h)
	if err != nil {
		return "", fmt.Errorf("git object %s: %w", h, err)
	}
	switch obj.Type() {
	case plumbing.CommitObject:
		return s.convertCommits(h)
	case plumbing.TreeObject:
		return s.convertTree(h)
	case plumbing.BlobObject:
		return s.convertBlob(h)
	case plumbing.TagObject:
		return s.convertTag(h)
	}
	return "", fmt.Errorf("git object %s: unsupported type %s", h, obj.Type())
}

// convertCommits 显式栈后序遍历，父提交先于子提交转换
func (s *session) convertCommits(root plumbing.Hash) (types.Hash, error) {
	stack := []plumbing.Hash{root}
	for len(stack) > 0 {
		if err := s.ctx.Err(); err != nil {
			return "", err
		}
		h := stack[len(stack)-1]
		if _, ok := s.mapping[h]; ok {
			stack = stack[:len(stack)-1]
			continue
		}
		c, err := s.repo.CommitObject(h)
		if err != nil {
			return "", fmt.Errorf("git commit %s: %w", h, err)
		}

		pending := false
		for _, p := range c.ParentHashes {
			if _, ok := s.mapping[p]; !ok {
				stack = append(stack, p)
				pending = true
			}
		}
		if pending {
			continue
		}
		stack = stack[:len(stack)-1]

		if _, err := s.convertCommit(c); err != nil {
			return "", err
		}
	}
	return s.mapping[root], nil
}

func (s *session) convertCommit(c *object.Commit) (types.Hash, error) {
	tree, err := s.convertTree(c.TreeHash)
	if err != nil {
		return "", err
	}
	parents := make([]types.Hash, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, s.mapping[p])
	}
	commit, err := core.NewCommit(tree, parents, signature(c.Author), signature(c.Committer), c.Message)
	if err != nil {
		return "", fmt.Errorf("git commit %s: %w", c.Hash, err)
	}
	return s.put(c.Hash, commit)
}

func (s *session) convertTree(h plumbing.Hash) (types.Hash, error) {
	if id, ok := s.mapping[h]; ok {
		return id, nil
	}
	t, err := s.repo.TreeObject(h)
	if err != nil {
		return "", fmt.Errorf("git tree %s: %w", h, err)
	}

	entries := make([]core.TreeEntry, 0, len(t.Entries))
	for _, e := range t.Entries {
		mode, err := convertMode(e.Mode)
		if err != nil {
			return "", fmt.Errorf("git tree %s entry %q: %w", h, e.Name, err)
		}
		var id types.Hash
		switch mode {
		case core.ModeDir:
			id, err = s.convertTree(e.Hash)
		case core.ModeGitlink:
			// 子模块提交不在本仓库中，保留原始 ID
			id = types.Hash(e.Hash.String())
		default:
			id, err = s.convertBlob(e.Hash)
		}
		if err != nil {
			return "", err
		}
		entries = append(entries, core.TreeEntry{Name: e.Name, Mode: mode, ID: id})
	}
	tree, err := core.NewTree(entries)
	if err != nil {
		return "", fmt.Errorf("git tree %s: %w", h, err)
	}
	return s.put(h, tree)
}

func (s *session) convertBlob(h plumbing.Hash) (types.Hash, error) {
	if id, ok := s.mapping[h]; ok {
		return id, nil
	}
	b, err := s.repo.BlobObject(h)
	if err != nil {
		return "", fmt.Errorf("git blob %s: %w", h, err)
	}
	r, err := b.Reader()
	if err != nil {
		return "", fmt.Errorf("git blob %s: %w", h, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("git blob %s: %w", h, err)
	}
	return s.put(h, core.NewBlob(data))
}

func (s *session) convertTag(h plumbing.Hash) (types.Hash, error) {
	if id, ok := s.mapping[h]; ok {
		return id, nil
	}
	t, err := s.repo.TagObject(h)
	if err != nil {
		return "", fmt.Errorf("git tag %s: %w", h, err)
	}
	target, err := s.convertAny(t.Target)
	if err != nil {
		return "", err
	}
	kind, err := convertType(t.TargetType)
	if err != nil {
		return "", err
	}
	tag, err := core.NewTag(target, kind, t.Name, signature(t.Tagger), t.Message)
	if err != nil {
		return "", fmt.Errorf("git tag %s: %w", h, err)
	}
	return s.put(h, tag)
}

func (s *session) put(h plumbing.Hash, obj core.Object) (types.Hash, error) {
	id, err := s.im.objects.Put(s.ctx, obj)
	if err != nil {
		return "", err
	}
	s.mapping[h] = id
	return id, nil
}

func signature(sig object.Signature) core.Signature {
	return core.NewSignature(sig.Name, sig.Email, sig.When)
}

func convertMode(m filemode.FileMode) (core.FileMode, error) {
	switch m {
	case filemode.Regular, filemode.Deprecated:
		return core.ModeFile, nil
	case filemode.Executable:
		return core.ModeExec, nil
	case filemode.Symlink:
		return core.ModeSymlink, nil
	case filemode.Dir:
		return core.ModeDir, nil
	case filemode.Submodule:
		return core.ModeGitlink, nil
	}
	return 0, fmt.Errorf("unsupported file mode %s", m)
}

func convertType(t plumbing.ObjectType) (core.ObjectType, error) {
	switch t {
	case plumbing.CommitObject:
		return core.TypeCommit, nil
	case plumbing.TreeObject:
		return core.TypeTree, nil
	case plumbing.BlobObject:
		return core.TypeBlob, nil
	case plumbing.TagObject:
		return core.TypeTag, nil
	}
	return "", fmt.Errorf("unsupported git object type %s", t)
}
