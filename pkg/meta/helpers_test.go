package meta

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"gitvault/pkg/core"
	"gitvault/pkg/types"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// -----------------------------------------------------------------------------
// 通用辅助函数 (Helpers)
// -----------------------------------------------------------------------------

// mockHash 生成合法的测试用 Hash
func mockHash(input string) types.Hash {
	sum := sha256.Sum256([]byte(input))
	return types.Hash(hex.EncodeToString(sum[:]))
}

// setupTestRepo 构建隔离的测试环境 (内存 SQLite)
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	metaDB := NewWithConn(db)
	require.NoError(t, metaDB.AutoMigrate())
	return NewRepository(metaDB)
}

// mustNewCommit 创建 Commit，如果失败直接终止测试
func mustNewCommit(t *testing.T, tree types.Hash, parents []types.Hash, author string, unix int64, msg string) (types.Hash, *core.Commit) {
	t.Helper()
	sig := core.NewSignature(author, author+"@example.com", time.Unix(unix, 0))
	c, err := core.NewCommit(tree, parents, sig, sig, msg)
	require.NoError(t, err)
	id, _, err := core.CalculateHash(types.SHA256, c)
	require.NoError(t, err)
	return id, c
}

// mustIndexCommit 强制索引 Commit，失败则终止
func mustIndexCommit(t *testing.T, repo *Repository, id types.Hash, c *core.Commit, msgAndArgs ...any) {
	t.Helper()
	require.NoError(t, repo.IndexCommit(context.Background(), id, c), msgAndArgs...)
}
