package refs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"gitvault/pkg/core"
	"gitvault/pkg/types"
)

// ObjectChecker Update 前确认目标对象存在 (odb.Store 满足)
type ObjectChecker interface {
	Exists(ctx context.Context, id types.Hash) bool
}

// Manager 引用的读写入口，所有 CAS 都经过这里
type Manager struct {
	backend Backend
	objects ObjectChecker
	locks   *keyedMutex
	hub     *hub
	log     *zap.Logger
	ident   func() core.Signature
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithIdentity reflog 中记录的提交者
func WithIdentity(fn func() core.Signature) Option {
	return func(m *Manager) {
		if fn != nil {
			m.ident = fn
		}
	}
}

func WithObserver(o Observer) Option {
	return func(m *Manager) { m.hub.add(o) }
}

func NewManager(backend Backend, objects ObjectChecker, opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		objects: objects,
		locks:   newKeyedMutex(),
		log:     zap.NewNop(),
		ident: func() core.Signature {
			return core.NewSignature("gitvault", "gitvault@localhost", time.Now())
		},
	}
	m.hub = newHub(m.log)
	for _, opt := range opts {
		opt(m)
	}
	m.hub.log = m.log
	return m
}

// AddObserver 注册同步观察者
func (m *Manager) AddObserver(o Observer) { m.hub.add(o) }

// Subscribe 订阅引用变更；cancel 之后 channel 被关闭
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	return m.hub.subscribe(buffer)
}

func (m *Manager) Read(ctx context.Context, name string) (Reference, error) {
	if err := ValidateName(name); err != nil {
		return Reference{}, err
	}
	return m.backend.Read(ctx, name)
}

// Resolve 沿符号引用链解析到对象 ID
func (m *Manager) Resolve(ctx context.Context, name string) (types.Hash, error) {
	ref, err := m.follow(ctx, name)
	if err != nil {
		return "", err
	}
	return ref.Target, nil
}

// follow 返回链末端的直接引用
func (m *Manager) follow(ctx context.Context, name string) (Reference, error) {
	seen := make(map[string]struct{})
	cur := name
	for {
		if _, ok := seen[cur]; ok || len(seen) >= maxSymbolicDepth {
			return Reference{}, fmt.Errorf("%w: %s", ErrCyclicReference, name)
		}
		seen[cur] = struct{}{}

		ref, err := m.backend.Read(ctx, cur)
		if err != nil {
			if errors.Is(err, ErrNotFound) && cur != name {
				return Reference{}, fmt.Errorf("%w: %s (via %s)", ErrNotFound, cur, name)
			}
			return Reference{}, err
		}
		if !ref.IsSymbolic() {
			return ref, nil
		}
		cur = ref.Symref
	}
}

// terminal 返回符号链最终落到的引用名；末端不存在时返回它的名字
func (m *Manager) terminal(ctx context.Context, name string) (string, error) {
	seen := make(map[string]struct{})
	cur := name
	for {
		if _, ok := seen[cur]; ok || len(seen) >= maxSymbolicDepth {
			return "", fmt.Errorf("%w: %s", ErrCyclicReference, name)
		}
		seen[cur] = struct{}{}

		ref, err := m.backend.Read(ctx, cur)
		if errors.Is(err, ErrNotFound) {
			return cur, nil
		}
		if err != nil {
			return "", err
		}
		if !ref.IsSymbolic() {
			return cur, nil
		}
		cur = ref.Symref
	}
}

// Update 比较并交换
// expectedOld 为空或全 0 表示“必须不存在”；name 是符号引用时写穿到末端的直接引用
func (m *Manager) Update(ctx context.Context, name string, expectedOld, newID types.Hash, msg string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if !newID.IsValid() || newID.IsZero() {
		return fmt.Errorf("%w: invalid id %q", ErrTargetMissing, newID)
	}
	if !m.objects.Exists(ctx, newID) {
		return fmt.Errorf("%w: %s", ErrTargetMissing, newID)
	}

	target, err := m.terminal(ctx, name)
	if err != nil {
		return err
	}

	unlock := m.locks.Lock(target)
	defer unlock()

	cur, exists, err := m.readOptional(ctx, target)
	if err != nil {
		return err
	}
	if exists && cur.IsSymbolic() {
		// 解析与加锁之间 target 被改成了符号引用
		return fmt.Errorf("%w: %s became symbolic", ErrConflict, target)
	}

	expect := expectFor(expectedOld)
	if !expect.Matches(optionalRef(cur, exists)) {
		return conflictError(target, expect, cur, exists)
	}
	if err := m.backend.Write(ctx, NewDirect(target, newID), expect); err != nil {
		return err
	}

	old := zeroLike(newID)
	if exists {
		old = cur.Target
	}
	entry := ReflogEntry{Old: old, New: newID, Committer: m.ident(), Message: msg}
	m.appendReflog(ctx, target, entry)
	if name != target {
		m.appendReflog(ctx, name, entry)
	}

	m.log.Debug("ref updated",
		zap.String("ref", target),
		zap.String("old", old.Short()),
		zap.String("new", newID.Short()),
	)
	m.hub.publish(Event{Name: target, Old: old, New: newID, Message: msg, When: entry.Committer.When})
	return nil
}

// Delete expectedOld 为空时无条件删除；否则必须与当前解析值一致
// 删除符号引用只删除它本身，不影响它指向的引用
func (m *Manager) Delete(ctx context.Context, name string, expectedOld types.Hash) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	unlock := m.locks.Lock(name)
	defer unlock()

	cur, err := m.backend.Read(ctx, name)
	if err != nil {
		return err
	}

	var curID types.Hash
	if cur.IsSymbolic() {
		// 悬空的符号引用也允许删除
		curID, err = m.Resolve(ctx, name)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	} else {
		curID = cur.Target
	}

	if !expectedOld.IsZero() && curID != expectedOld {
		return fmt.Errorf("%w: %s is %s, expected %s", ErrConflict, name, displayID(curID), expectedOld)
	}
	if err := m.backend.Remove(ctx, name, ExpectCurrent(cur, true)); err != nil {
		return err
	}

	m.log.Debug("ref deleted", zap.String("ref", name))
	m.hub.publish(Event{Name: name, Old: curID, Deleted: true, When: time.Now()})
	return nil
}

// CreateSymbolic 创建或覆盖符号引用，写入前检查不会成环
func (m *Manager) CreateSymbolic(ctx context.Context, name, target, msg string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ValidateName(target); err != nil {
		return err
	}

	unlock, err := m.lockChain(ctx, name, target)
	if err != nil {
		return err
	}
	defer unlock()

	if err := m.checkCycle(ctx, name, target); err != nil {
		return err
	}

	cur, exists, err := m.readOptional(ctx, name)
	if err != nil {
		return err
	}
	oldID, _ := m.Resolve(ctx, name)

	if err := m.backend.Write(ctx, NewSymbolic(name, target), ExpectCurrent(cur, exists)); err != nil {
		return err
	}

	newID, _ := m.Resolve(ctx, target)
	if oldID != newID {
		ref := newID
		if ref == "" {
			ref = oldID
		}
		if oldID == "" {
			oldID = zeroLike(ref)
		}
		if newID == "" {
			newID = zeroLike(ref)
		}
		m.appendReflog(ctx, name, ReflogEntry{Old: oldID, New: newID, Committer: m.ident(), Message: msg})
	}

	m.log.Debug("symbolic ref set", zap.String("ref", name), zap.String("target", target))
	m.hub.publish(Event{Name: name, Old: oldID, New: newID, Symref: target, Message: msg, When: time.Now()})
	return nil
}

// lockChain 锁住 name 和 target 链上的每个引用名
// 链上的符号引用只能由持有该名字锁的人改写，所以锁住整条链后 checkCycle 的结论才稳定
// 加锁期间链被别人改了就放锁重来
func (m *Manager) lockChain(ctx context.Context, name, target string) (func(), error) {
	for {
		chain, err := m.chainNames(ctx, target)
		if err != nil {
			return nil, err
		}
		unlock := m.locks.LockAll(append([]string{name}, chain...))

		again, err := m.chainNames(ctx, target)
		if err != nil {
			unlock()
			return nil, err
		}
		if slices.Equal(chain, again) {
			return unlock, nil
		}
		unlock()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// chainNames 从 start 沿符号引用走到底经过的名字 (含 start)
// 遇到重复或超长就停，环由 checkCycle 报告
func (m *Manager) chainNames(ctx context.Context, start string) ([]string, error) {
	var names []string
	cur := start
	for len(names) <= maxSymbolicDepth && !slices.Contains(names, cur) {
		names = append(names, cur)
		ref, err := m.backend.Read(ctx, cur)
		if errors.Is(err, ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		if !ref.IsSymbolic() {
			break
		}
		cur = ref.Symref
	}
	return names, nil
}

// checkCycle 模拟 name -> target 写入后沿链走一遍
func (m *Manager) checkCycle(ctx context.Context, name, target string) error {
	seen := map[string]struct{}{name: {}}
	cur := target
	for {
		if _, ok := seen[cur]; ok || len(seen) > maxSymbolicDepth {
			return fmt.Errorf("%w: %s -> %s", ErrCyclicReference, name, target)
		}
		seen[cur] = struct{}{}

		ref, err := m.backend.Read(ctx, cur)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !ref.IsSymbolic() {
			return nil
		}
		cur = ref.Symref
	}
}

// Rename 把 oldName 移到 newName；newName 必须不存在
// 指向 oldName 的 HEAD 会被一起改指向
func (m *Manager) Rename(ctx context.Context, oldName, newName, msg string) error {
	if err := ValidateName(oldName); err != nil {
		return err
	}
	if err := ValidateName(newName); err != nil {
		return err
	}
	if oldName == newName {
		return fmt.Errorf("%w: rename %s onto itself", ErrInvalidName, oldName)
	}

	unlock := m.locks.LockAll([]string{oldName, newName})
	defer unlock()

	cur, err := m.backend.Read(ctx, oldName)
	if err != nil {
		return err
	}
	if cur.IsSymbolic() {
		return fmt.Errorf("%w: cannot rename symbolic ref %s", ErrInvalidName, oldName)
	}

	moved := NewDirect(newName, cur.Target)
	if err := m.backend.Write(ctx, moved, ExpectAbsent()); err != nil {
		return err
	}
	if err := m.backend.Remove(ctx, oldName, ExpectValue(cur.Target)); err != nil {
		if rbErr := m.backend.Remove(ctx, newName, ExpectValue(cur.Target)); rbErr != nil {
			m.log.Error("rename rollback failed", zap.String("ref", newName), zap.Error(rbErr))
		}
		return err
	}

	if msg == "" {
		msg = fmt.Sprintf("renamed %s to %s", oldName, newName)
	}
	m.appendReflog(ctx, newName, ReflogEntry{Old: cur.Target, New: cur.Target, Committer: m.ident(), Message: msg})

	if head, err := m.backend.Read(ctx, HEAD); err == nil && head.IsSymbolic() && head.Symref == oldName {
		if err := m.backend.Write(ctx, NewSymbolic(HEAD, newName), ExpectSymref(oldName)); err != nil {
			m.log.Warn("failed to repoint HEAD after rename", zap.Error(err))
		}
	}

	now := time.Now()
	m.hub.publish(Event{Name: oldName, Old: cur.Target, Deleted: true, Message: msg, When: now})
	m.hub.publish(Event{Name: newName, Old: zeroLike(cur.Target), New: cur.Target, Message: msg, When: now})
	return nil
}

func (m *Manager) ListByPrefix(ctx context.Context, prefix string) ([]Reference, error) {
	return m.backend.List(ctx, prefix)
}

// Reflog 新的在前；limit <= 0 表示全部
func (m *Manager) Reflog(ctx context.Context, name string, limit int) ([]ReflogEntry, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	entries, err := m.backend.ReadReflog(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make([]ReflogEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// appendReflog 引用已经写成功，reflog 失败只记录日志
func (m *Manager) appendReflog(ctx context.Context, name string, e ReflogEntry) {
	if err := m.backend.AppendReflog(ctx, name, e); err != nil {
		m.log.Warn("append reflog failed", zap.String("ref", name), zap.Error(err))
	}
}

func (m *Manager) readOptional(ctx context.Context, name string) (Reference, bool, error) {
	ref, err := m.backend.Read(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return Reference{}, false, nil
	}
	if err != nil {
		return Reference{}, false, err
	}
	return ref, true, nil
}

func expectFor(old types.Hash) Expect {
	if old.IsZero() {
		return ExpectAbsent()
	}
	return ExpectValue(old)
}

func optionalRef(ref Reference, exists bool) *Reference {
	if !exists {
		return nil
	}
	return &ref
}

func conflictError(name string, expect Expect, cur Reference, exists bool) error {
	got := "absent"
	if exists {
		got = cur.Target.String()
	}
	return fmt.Errorf("%w: %s is %s, expected %s", ErrConflict, name, got, expect)
}

func displayID(id types.Hash) string {
	if id == "" {
		return "unborn"
	}
	return id.String()
}
