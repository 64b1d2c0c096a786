package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gitvault/pkg/core"
	"gitvault/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrCommitNotFound = errors.New("commit not found in metadata")

// Repository 封装所有对 SQL 数据库的操作
// 同时满足 refs.Backend 与 graph.GenerationStore
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(ctx context.Context) *gorm.DB {
	return r.db.GetConn().WithContext(ctx)
}

// -----------------------------------------------------------------------------
// 提交索引 (Commit Indexing)
// -----------------------------------------------------------------------------

// IndexCommit 将 core.Commit 对象“投影”到 SQL 数据库中
// 重复写入是幂等的；已算出的世代号不会被覆盖
func (r *Repository) IndexCommit(ctx context.Context, id types.Hash, c *core.Commit) error {
	parents := c.Parents
	if parents == nil {
		parents = []types.Hash{}
	}
	parentsJSON, err := json.Marshal(parents)
	if err != nil {
		return fmt.Errorf("failed to marshal parents: %w", err)
	}

	model := CommitModel{
		Hash:        id.String(),
		Author:      c.Author.Name,
		AuthorEmail: c.Author.Email,
		Message:     c.Message,
		Timestamp:   c.Committer.When.Unix(),
		TreeHash:    c.Tree.String(),
		Parents:     datatypes.JSON(parentsJSON),
		CreatedAt:   c.Committer.When,
	}

	// 世代号可能先于提交本身写入，冲突时只补齐元数据
	err = r.conn(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "hash"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"author", "author_email", "message", "timestamp", "tree_hash", "parents", "created_at",
			}),
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to index commit: %w", err)
	}
	return nil
}

func (r *Repository) GetCommit(ctx context.Context, id types.Hash) (*CommitModel, error) {
	var commit CommitModel
	err := r.conn(ctx).Where("hash = ?", id.String()).First(&commit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCommitNotFound
	}
	if err != nil {
		return nil, err
	}
	return &commit, nil
}

// ParentIDs 解出 Parents 列
func (m *CommitModel) ParentIDs() ([]types.Hash, error) {
	if len(m.Parents) == 0 {
		return nil, nil
	}
	var out []types.Hash
	if err := json.Unmarshal(m.Parents, &out); err != nil {
		return nil, fmt.Errorf("bad parents column for %s: %w", m.Hash, err)
	}
	return out, nil
}

// FindCommitsByAuthor 按提交时间倒序
func (r *Repository) FindCommitsByAuthor(ctx context.Context, author string, limit int) ([]CommitModel, error) {
	var commits []CommitModel
	err := r.conn(ctx).
		Where("author = ? AND tree_hash <> ''", author).
		Order("timestamp DESC").
		Limit(limit).
		Find(&commits).Error
	return commits, err
}

// FindCommitsBetween 时间范围查询 [since, until)
func (r *Repository) FindCommitsBetween(ctx context.Context, since, until time.Time, limit int) ([]CommitModel, error) {
	var commits []CommitModel
	err := r.conn(ctx).
		Where("timestamp >= ? AND timestamp < ? AND tree_hash <> ''", since.Unix(), until.Unix()).
		Order("timestamp DESC").
		Limit(limit).
		Find(&commits).Error
	return commits, err
}

// -----------------------------------------------------------------------------
// 世代号 (graph.GenerationStore)
// -----------------------------------------------------------------------------

func (r *Repository) LoadGeneration(ctx context.Context, id types.Hash) (uint64, bool, error) {
	var commit CommitModel
	err := r.conn(ctx).
		Select("generation").
		Where("hash = ? AND generation > 0", id.String()).
		First(&commit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return commit.Generation, true, nil
}

// StoreGeneration 提交还没被索引时先插一行占位
func (r *Repository) StoreGeneration(ctx context.Context, id types.Hash, gen uint64) error {
	return r.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hash"}},
			DoUpdates: clause.AssignmentColumns([]string{"generation"}),
		}).
		Create(&CommitModel{Hash: id.String(), Generation: gen, Parents: datatypes.JSON("[]")}).Error
}
