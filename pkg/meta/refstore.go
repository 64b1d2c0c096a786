package meta

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gitvault/pkg/core"
	"gitvault/pkg/refs"
	"gitvault/pkg/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 以下方法实现 refs.Backend
// 条件写入: 事务内读当前行并检查 expect，再用 version 做 CAS

func (m *RefModel) reference() refs.Reference {
	if m.Symref != "" {
		return refs.NewSymbolic(m.Name, m.Symref)
	}
	return refs.NewDirect(m.Name, types.Hash(m.Target))
}

func loadRef(tx *gorm.DB, name string) (*RefModel, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row RefModel
	err := q.Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func checkExpect(row *RefModel, name string, expect refs.Expect) error {
	var cur *refs.Reference
	if row != nil {
		ref := row.reference()
		cur = &ref
	}
	if !expect.Matches(cur) {
		return fmt.Errorf("%w: %s expected %s", refs.ErrConflict, name, expect)
	}
	return nil
}

func (r *Repository) Read(ctx context.Context, name string) (refs.Reference, error) {
	row, err := loadRef(r.conn(ctx), name)
	if err != nil {
		return refs.Reference{}, err
	}
	if row == nil {
		return refs.Reference{}, fmt.Errorf("%w: %s", refs.ErrNotFound, name)
	}
	return row.reference(), nil
}

func (r *Repository) Write(ctx context.Context, ref refs.Reference, expect refs.Expect) error {
	return r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := loadRef(tx, ref.Name)
		if err != nil {
			return err
		}
		if err := checkExpect(row, ref.Name, expect); err != nil {
			return err
		}

		target, symref := ref.Target.String(), ""
		if ref.IsSymbolic() {
			target, symref = "", ref.Symref
		}

		// 场景 A: 第一次创建
		if row == nil {
			err := tx.Create(&RefModel{Name: ref.Name, Target: target, Symref: symref, Version: 1}).Error
			if isDuplicate(err) {
				return fmt.Errorf("%w: %s created concurrently", refs.ErrConflict, ref.Name)
			}
			return err
		}

		// 场景 B: 更新现有引用
		// SQL: UPDATE refs SET ... , version = version + 1 WHERE name = ? AND version = ?
		result := tx.Model(&RefModel{}).
			Where("name = ? AND version = ?", ref.Name, row.Version).
			Updates(map[string]any{
				"target":     target,
				"symref":     symref,
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		// 影响行数为 0，说明 version 不匹配（被人抢先改了）
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", refs.ErrConflict, ref.Name)
		}
		return nil
	})
}

func (r *Repository) Remove(ctx context.Context, name string, expect refs.Expect) error {
	return r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := loadRef(tx, name)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("%w: %s", refs.ErrNotFound, name)
		}
		if err := checkExpect(row, name, expect); err != nil {
			return err
		}

		result := tx.Where("name = ? AND version = ?", name, row.Version).Delete(&RefModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", refs.ErrConflict, name)
		}
		return nil
	})
}

func (r *Repository) List(ctx context.Context, prefix string) ([]refs.Reference, error) {
	var rows []RefModel
	q := r.conn(ctx).Order("name")
	if prefix != "" {
		q = q.Where("name LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%")
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]refs.Reference, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].reference())
	}
	return out, nil
}

func (r *Repository) AppendReflog(ctx context.Context, name string, e refs.ReflogEntry) error {
	return r.conn(ctx).Create(&ReflogModel{
		Name:    name,
		OldID:   e.Old.String(),
		NewID:   e.New.String(),
		Who:     e.Committer.Name,
		Email:   e.Committer.Email,
		Unix:    e.Committer.When.Unix(),
		Offset:  e.Committer.Offset(),
		Message: e.Message,
	}).Error
}

func (r *Repository) ReadReflog(ctx context.Context, name string) ([]refs.ReflogEntry, error) {
	var rows []ReflogModel
	if err := r.conn(ctx).Where("name = ?", name).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]refs.ReflogEntry, 0, len(rows))
	for _, row := range rows {
		when := time.Unix(row.Unix, 0).In(time.FixedZone("", row.Offset*60))
		out = append(out, refs.ReflogEntry{
			Old:       types.Hash(row.OldID),
			New:       types.Hash(row.NewID),
			Committer: core.NewSignature(row.Who, row.Email, when),
			Message:   row.Message,
		})
	}
	return out, nil
}

// isDuplicate 兼容不同数据库 (PG 与 SQLite) 的唯一约束错误
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
