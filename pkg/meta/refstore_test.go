package meta

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gitvault/pkg/core"
	"gitvault/pkg/refs"
	"gitvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type allObjects struct{}

func (allObjects) Exists(context.Context, types.Hash) bool { return true }

func TestRefStore_ConditionalWrite(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	v1, v2 := mockHash("v1"), mockHash("v2")
	main := "refs/heads/main"

	// 1. 首次创建
	require.NoError(t, repo.Write(ctx, refs.NewDirect(main, v1), refs.ExpectAbsent()))
	err := repo.Write(ctx, refs.NewDirect(main, v2), refs.ExpectAbsent())
	assert.ErrorIs(t, err, refs.ErrConflict, "already exists")

	// 2. 旧值不符
	err = repo.Write(ctx, refs.NewDirect(main, v2), refs.ExpectValue(v2))
	assert.ErrorIs(t, err, refs.ErrConflict)

	// 3. 正常更新，版本号自增
	require.NoError(t, repo.Write(ctx, refs.NewDirect(main, v2), refs.ExpectValue(v1)))
	var row RefModel
	require.NoError(t, repo.db.GetConn().Where("name = ?", main).First(&row).Error)
	assert.Equal(t, int64(2), row.Version)

	got, err := repo.Read(ctx, main)
	require.NoError(t, err)
	assert.Equal(t, v2, got.Target)

	// 符号引用
	require.NoError(t, repo.Write(ctx, refs.NewSymbolic(refs.HEAD, main), refs.ExpectAny()))
	head, err := repo.Read(ctx, refs.HEAD)
	require.NoError(t, err)
	assert.True(t, head.IsSymbolic())
	assert.Equal(t, main, head.Symref)
	assert.ErrorIs(t, repo.Write(ctx, refs.NewDirect(refs.HEAD, v1), refs.ExpectValue(v2)), refs.ErrConflict)
}

func TestRefStore_RemoveAndList(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	id := mockHash("x")

	for _, name := range []string{"refs/heads/b", "refs/heads/a", "refs/tags/v1", "refs/heads_x/c"} {
		require.NoError(t, repo.Write(ctx, refs.NewDirect(name, id), refs.ExpectAbsent()))
	}

	list, err := repo.List(ctx, "refs/heads/")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "refs/heads/a", list[0].Name)
	assert.Equal(t, "refs/heads/b", list[1].Name)

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	assert.ErrorIs(t, repo.Remove(ctx, "refs/heads/a", refs.ExpectValue(mockHash("y"))), refs.ErrConflict)
	require.NoError(t, repo.Remove(ctx, "refs/heads/a", refs.ExpectValue(id)))
	assert.ErrorIs(t, repo.Remove(ctx, "refs/heads/a", refs.ExpectAny()), refs.ErrNotFound)

	_, err = repo.Read(ctx, "refs/heads/a")
	assert.ErrorIs(t, err, refs.ErrNotFound)
}

func TestRefStore_Reflog(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	when := time.Unix(1700000000, 0).In(time.FixedZone("", 8*3600))
	sig := core.NewSignature("Alice", "alice@example.com", when)

	require.NoError(t, repo.AppendReflog(ctx, "refs/heads/main", refs.ReflogEntry{
		Old: types.SHA256.ZeroHash(), New: mockHash("1"), Committer: sig, Message: "branch: Created",
	}))
	require.NoError(t, repo.AppendReflog(ctx, "refs/heads/main", refs.ReflogEntry{
		Old: mockHash("1"), New: mockHash("2"), Committer: sig, Message: "commit: second",
	}))

	entries, err := repo.ReadReflog(ctx, "refs/heads/main")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "branch: Created", entries[0].Message)
	assert.Equal(t, mockHash("2"), entries[1].New)
	assert.Equal(t, sig.String(), entries[1].Committer.String())
}

// 两个 Manager 共用一个数据库，相当于两个进程
func TestRefStore_ManagersRace(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := mockHash("base")
	main := "refs/heads/main"

	m1 := refs.NewManager(repo, allObjects{})
	m2 := refs.NewManager(repo, allObjects{})
	require.NoError(t, m1.Update(ctx, main, "", base, "init"))

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i, m := range []*refs.Manager{m1, m2, m1, m2} {
		wg.Add(1)
		go func(i int, m *refs.Manager) {
			defer wg.Done()
			err := m.Update(ctx, main, base, mockHash(strings.Repeat("n", i+1)), "race")
			switch {
			case err == nil:
				wins.Add(1)
			case assert.ErrorIs(t, err, refs.ErrConflict):
				conflicts.Add(1)
			}
		}(i, m)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(3), conflicts.Load())

	log, err := m1.Reflog(ctx, main, 0)
	require.NoError(t, err)
	assert.Len(t, log, 2)
}
