// Package merge 三方树合并
package merge

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"gitvault/pkg/core"
	"gitvault/pkg/textmerge"
	"gitvault/pkg/types"
)

var (
	ErrNotClean         = errors.New("merge result has conflicts")
	ErrAlreadyFinalized = errors.New("merge already finalized")
	ErrNoCommits        = errors.New("merge result has no originating commits")
)

// ObjectStore odb.Store 满足
type ObjectStore interface {
	ReadTree(ctx context.Context, id types.Hash) (*core.Tree, error)
	ReadBlob(ctx context.Context, id types.Hash) (*core.Blob, error)
	ReadCommit(ctx context.Context, id types.Hash) (*core.Commit, error)
	Put(ctx context.Context, obj core.Object) (types.Hash, error)
	Algo() types.HashAlgo
}

// BaseFinder graph.Graph 满足
type BaseFinder interface {
	MergeBase(ctx context.Context, a, b types.Hash) (types.Hash, bool, error)
}

// TextMerger 单个文件的三方文本合并；clean 为 false 时 merged 带冲突标记
type TextMerger interface {
	Merge(base, ours, theirs []byte) (merged []byte, clean bool)
}

// State 一次合并的状态
type State int

const (
	StateInitiated State = iota
	StateResolvedClean
	StateResolvedConflicted
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateInitiated:
		return "initiated"
	case StateResolvedClean:
		return "clean"
	case StateResolvedConflicted:
		return "conflicted"
	case StateFinalized:
		return "finalized"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ConflictKind 冲突原因
type ConflictKind int

const (
	ConflictContent ConflictKind = iota
	ConflictBinary
	ConflictModifyDelete
	ConflictDirectoryFile
	ConflictMode
)

func (k ConflictKind) String() string {
	switch k {
	case ConflictContent:
		return "content"
	case ConflictBinary:
		return "binary"
	case ConflictModifyDelete:
		return "modify/delete"
	case ConflictDirectoryFile:
		return "directory/file"
	case ConflictMode:
		return "mode"
	}
	return fmt.Sprintf("ConflictKind(%d)", int(k))
}

// Stage 冲突中一侧的条目；nil 表示该侧不存在
type Stage struct {
	Mode core.FileMode
	ID   types.Hash
}

type Conflict struct {
	Path     string
	Kind     ConflictKind
	Ancestor *Stage
	Ours     *Stage
	Theirs   *Stage
}

// Result 合并结果；冲突时 Tree 为空，且没有写入任何对象
type Result struct {
	State     State
	Ours      types.Hash
	Theirs    types.Hash
	Base      types.Hash // 无公共祖先时为空
	Tree      types.Hash
	Conflicts []Conflict
	Commit    types.Hash // Finalize 之后
}

func (r *Result) Clean() bool {
	return r.State == StateResolvedClean || r.State == StateFinalized
}

type Engine struct {
	objects ObjectStore
	bases   BaseFinder
	text    TextMerger
	log     *zap.Logger
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithTextMerger 替换默认的 textmerge.LineMerger
func WithTextMerger(t TextMerger) Option {
	return func(e *Engine) {
		if t != nil {
			e.text = t
		}
	}
}

func New(objects ObjectStore, bases BaseFinder, opts ...Option) *Engine {
	e := &Engine{
		objects: objects,
		bases:   bases,
		text:    textmerge.LineMerger{},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Merge 合并两个提交；没有公共祖先时以空树为 base
func (e *Engine) Merge(ctx context.Context, ours, theirs types.Hash) (*Result, error) {
	oc, err := e.objects.ReadCommit(ctx, ours)
	if err != nil {
		return nil, fmt.Errorf("read ours %s: %w", ours.Short(), err)
	}
	tc, err := e.objects.ReadCommit(ctx, theirs)
	if err != nil {
		return nil, fmt.Errorf("read theirs %s: %w", theirs.Short(), err)
	}

	base, ok, err := e.bases.MergeBase(ctx, ours, theirs)
	if err != nil {
		return nil, fmt.Errorf("merge base: %w", err)
	}
	var baseTree types.Hash
	if ok {
		bc, err := e.objects.ReadCommit(ctx, base)
		if err != nil {
			return nil, fmt.Errorf("read base %s: %w", base.Short(), err)
		}
		baseTree = bc.Tree
	} else {
		base = ""
	}

	res, err := e.MergeTrees(ctx, baseTree, oc.Tree, tc.Tree)
	if err != nil {
		return nil, err
	}
	res.Ours, res.Theirs, res.Base = ours, theirs, base

	e.log.Info("merge resolved",
		zap.String("ours", ours.Short()),
		zap.String("theirs", theirs.Short()),
		zap.String("base", base.Short()),
		zap.Stringer("state", res.State),
		zap.Int("conflicts", len(res.Conflicts)),
	)
	return res, nil
}

// MergeTrees 直接合并三棵树；base 为空表示空树
func (e *Engine) MergeTrees(ctx context.Context, base, ours, theirs types.Hash) (*Result, error) {
	st := &mergeState{algo: e.objects.Algo()}
	res := &Result{State: StateInitiated}

	root, err := e.mergeTrees(ctx, st, "", base, ours, theirs)
	if err != nil {
		return nil, err
	}

	if len(st.conflicts) > 0 {
		sort.Slice(st.conflicts, func(i, j int) bool { return st.conflicts[i].Path < st.conflicts[j].Path })
		res.State = StateResolvedConflicted
		res.Conflicts = st.conflicts
		return res, nil
	}

	// 根目录始终是一棵树，即使合并后为空
	if root == "" {
		empty, _ := core.NewTree(nil)
		if root, err = st.stage(empty); err != nil {
			return nil, err
		}
	}
	for _, obj := range st.pending {
		if _, err := e.objects.Put(ctx, obj); err != nil {
			return nil, fmt.Errorf("write merged object: %w", err)
		}
	}
	res.State = StateResolvedClean
	res.Tree = root
	return res, nil
}

// FinalizeOptions 合并提交的元数据
type FinalizeOptions struct {
	Author    core.Signature
	Committer core.Signature
	Message   string
}

// Finalize 写入父提交为 [ours, theirs] 的合并提交，引用由调用方更新
func (e *Engine) Finalize(ctx context.Context, res *Result, opts FinalizeOptions) (types.Hash, error) {
	switch {
	case res.State == StateFinalized:
		return res.Commit, ErrAlreadyFinalized
	case res.State != StateResolvedClean:
		return "", fmt.Errorf("%w: %d conflicts", ErrNotClean, len(res.Conflicts))
	case res.Ours == "" || res.Theirs == "":
		return "", ErrNoCommits
	}

	committer := opts.Committer
	if committer.Name == "" {
		committer = opts.Author
	}
	msg := opts.Message
	if msg == "" {
		msg = fmt.Sprintf("Merge %s into %s\n", res.Theirs.Short(), res.Ours.Short())
	}
	c, err := core.NewCommit(res.Tree, []types.Hash{res.Ours, res.Theirs}, opts.Author, committer, msg)
	if err != nil {
		return "", err
	}
	id, err := e.objects.Put(ctx, c)
	if err != nil {
		return "", fmt.Errorf("write merge commit: %w", err)
	}
	res.Commit = id
	res.State = StateFinalized
	return id, nil
}
