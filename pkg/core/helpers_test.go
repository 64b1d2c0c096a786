package core

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"gitvault/pkg/types"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 辅助工具
// -----------------------------------------------------------------------------

// mockHash 生成一个合法的 32 字节 Hex 字符串 (64字符长度)
// 用于满足 Link 对 Hex 格式的要求
func mockHash(input string) types.Hash {
	sum := sha256.Sum256([]byte(input))
	return types.Hash(hex.EncodeToString(sum[:]))
}

func testSig(name string, unix int64) Signature {
	return NewSignature(name, name+"@example.com", time.Unix(unix, 0).In(time.FixedZone("CST", 8*3600)))
}

// mustNewCommit 创建 Commit，如果失败直接终止测试
func mustNewCommit(t *testing.T, tree types.Hash, parents []types.Hash, msg string) *Commit {
	t.Helper()
	c, err := NewCommit(tree, parents, testSig("alice", 1700000000), testSig("bob", 1700000100), msg)
	require.NoError(t, err)
	return c
}

func mustCalculateHash(t *testing.T, obj Object, msgAndArgs ...any) (types.Hash, []byte) {
	t.Helper()
	h, bytes, err := CalculateHash(types.SHA256, obj)
	require.NoError(t, err, msgAndArgs...)
	return h, bytes
}

func mustDecode(t *testing.T, data []byte) Object {
	t.Helper()
	obj, err := Decode(data)
	require.NoError(t, err)
	return obj
}
