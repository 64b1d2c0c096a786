package refs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitvault/pkg/types"
)

var ErrTransactionClosed = errors.New("transaction already committed")

type txOp struct {
	name        string
	expectedOld types.Hash
	newID       types.Hash
	delete      bool
	msg         string
}

// Transaction 批量 CAS：所有前置条件都满足才写入，任何一个不满足就整体放弃
type Transaction struct {
	m    *Manager
	ops  []txOp
	done bool
}

// Begin 开启事务
func (m *Manager) Begin() *Transaction {
	return &Transaction{m: m}
}

// Update 语义与 Manager.Update 相同
func (tx *Transaction) Update(name string, expectedOld, newID types.Hash, msg string) *Transaction {
	tx.ops = append(tx.ops, txOp{name: name, expectedOld: expectedOld, newID: newID, msg: msg})
	return tx
}

// Delete 事务内的删除，expectedOld 必须给出
func (tx *Transaction) Delete(name string, expectedOld types.Hash, msg string) *Transaction {
	tx.ops = append(tx.ops, txOp{name: name, expectedOld: expectedOld, delete: true, msg: msg})
	return tx
}

type applied struct {
	op      txOp
	prev    Reference
	existed bool
}

func (tx *Transaction) Commit(ctx context.Context) error {
	if tx.done {
		return ErrTransactionClosed
	}
	tx.done = true
	m := tx.m

	// 1. 校验并把符号引用展开成末端
	names := make([]string, 0, len(tx.ops))
	seen := make(map[string]struct{}, len(tx.ops))
	for i := range tx.ops {
		op := &tx.ops[i]
		if err := ValidateName(op.name); err != nil {
			return err
		}
		if !op.delete {
			if !op.newID.IsValid() || op.newID.IsZero() || !m.objects.Exists(ctx, op.newID) {
				return fmt.Errorf("%w: %s", ErrTargetMissing, op.newID)
			}
			target, err := m.terminal(ctx, op.name)
			if err != nil {
				return err
			}
			op.name = target
		}
		if _, dup := seen[op.name]; dup {
			return fmt.Errorf("%w: %s updated twice in one transaction", ErrConflict, op.name)
		}
		seen[op.name] = struct{}{}
		names = append(names, op.name)
	}

	unlock := m.locks.LockAll(names)
	defer unlock()

	// 2. 检查所有前置条件
	state := make([]applied, len(tx.ops))
	for i, op := range tx.ops {
		cur, exists, err := m.readOptional(ctx, op.name)
		if err != nil {
			return err
		}
		if exists && cur.IsSymbolic() && !op.delete {
			return fmt.Errorf("%w: %s became symbolic", ErrConflict, op.name)
		}
		if op.delete {
			if !exists {
				return fmt.Errorf("%w: %s", ErrNotFound, op.name)
			}
			if !op.expectedOld.IsZero() && (cur.IsSymbolic() || cur.Target != op.expectedOld) {
				return conflictError(op.name, ExpectValue(op.expectedOld), cur, exists)
			}
		} else if expect := expectFor(op.expectedOld); !expect.Matches(optionalRef(cur, exists)) {
			return conflictError(op.name, expect, cur, exists)
		}
		state[i] = applied{op: op, prev: cur, existed: exists}
	}

	// 3. 应用；后端报错时回滚已写入的部分
	for i, st := range state {
		var err error
		if st.op.delete {
			err = m.backend.Remove(ctx, st.op.name, ExpectCurrent(st.prev, true))
		} else {
			err = m.backend.Write(ctx, NewDirect(st.op.name, st.op.newID), ExpectCurrent(st.prev, st.existed))
		}
		if err != nil {
			tx.rollback(ctx, state[:i])
			return err
		}
	}

	// 4. reflog 与通知
	now := time.Now()
	for _, st := range state {
		old := zeroLike(st.op.newID)
		if st.existed && !st.prev.IsSymbolic() {
			old = st.prev.Target
		}
		if st.op.delete {
			m.hub.publish(Event{Name: st.op.name, Old: old, Deleted: true, Message: st.op.msg, When: now})
			continue
		}
		m.appendReflog(ctx, st.op.name, ReflogEntry{Old: old, New: st.op.newID, Committer: m.ident(), Message: st.op.msg})
		m.hub.publish(Event{Name: st.op.name, Old: old, New: st.op.newID, Message: st.op.msg, When: now})
	}
	m.log.Debug("ref transaction committed", zap.Int("ops", len(state)))
	return nil
}

// rollback 尽力而为；别的进程在中途改过的引用不会被覆盖
func (tx *Transaction) rollback(ctx context.Context, done []applied) {
	m := tx.m
	for i := len(done) - 1; i >= 0; i-- {
		st := done[i]
		var err error
		switch {
		case st.op.delete:
			err = m.backend.Write(ctx, st.prev, ExpectAbsent())
		case st.existed:
			err = m.backend.Write(ctx, st.prev, ExpectValue(st.op.newID))
		default:
			err = m.backend.Remove(ctx, st.op.name, ExpectValue(st.op.newID))
		}
		if err != nil {
			m.log.Error("ref transaction rollback failed", zap.String("ref", st.op.name), zap.Error(err))
		}
	}
}
