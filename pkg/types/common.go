// pkg/types/common.go
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"

	"github.com/pjbgf/sha1cd"
)

var (
	ErrUnknownAlgo   = errors.New("unknown hash algorithm")
	ErrHashCollision = errors.New("sha1 collision attack detected")
	ErrInvalidPrefix = errors.New("invalid object id prefix")
)

// MinPrefixLen 是缩写 ID 允许的最短长度
const MinPrefixLen = 4

// Hash 代表对象的唯一标识符 (小写 Hex String)
// 这是一个“值对象”，应当是不可变的。
// SHA-1 为 40 个字符，SHA-256 为 64 个字符；Hex 序与字节序一致，可直接比较。
type Hash string

func (h Hash) String() string { return string(h) }

// IsZero 空串或全 0 都视为“不存在”
func (h Hash) IsZero() bool {
	return strings.Trim(string(h), "0") == ""
}

// IsValid 长度必须是已知算法之一，且全部为小写 hex
func (h Hash) IsValid() bool {
	if len(h) != SHA1.HexSize() && len(h) != SHA256.HexSize() {
		return false
	}
	return isLowerHex(string(h))
}

// Short 返回前 8 位，用于日志和 CLI 输出
func (h Hash) Short() string {
	if len(h) <= 8 {
		return string(h)
	}
	return string(h[:8])
}

// Bytes 还原原始摘要字节
func (h Hash) Bytes() ([]byte, error) {
	return hex.DecodeString(string(h))
}

// HashFromBytes 把原始摘要编码成 Hash
func HashFromBytes(b []byte) Hash {
	return Hash(hex.EncodeToString(b))
}

// HashPrefix 缩写形式的对象 ID
type HashPrefix string

func (p HashPrefix) String() string { return string(p) }

// Normalize 统一转成小写
func (p HashPrefix) Normalize() HashPrefix {
	return HashPrefix(strings.ToLower(string(p)))
}

// Validate 检查长度与字符集
func (p HashPrefix) Validate() error {
	if len(p) < MinPrefixLen || len(p) > SHA256.HexSize() {
		return fmt.Errorf("%w: %q must be %d..%d hex chars", ErrInvalidPrefix, string(p), MinPrefixLen, SHA256.HexSize())
	}
	if !isLowerHex(strings.ToLower(string(p))) {
		return fmt.Errorf("%w: %q is not hex", ErrInvalidPrefix, string(p))
	}
	return nil
}

// Matches 前缀匹配
func (p HashPrefix) Matches(h Hash) bool {
	return strings.HasPrefix(string(h), strings.ToLower(string(p)))
}

// HashAlgo 仓库使用的摘要算法，仓库创建后不可更改
type HashAlgo string

const (
	SHA1   HashAlgo = "sha1"
	SHA256 HashAlgo = "sha256"
)

// ParseHashAlgo 空字符串默认 sha256
func ParseHashAlgo(s string) (HashAlgo, error) {
	switch HashAlgo(strings.ToLower(s)) {
	case "", SHA256:
		return SHA256, nil
	case SHA1:
		return SHA1, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgo, s)
	}
}

func (a HashAlgo) String() string { return string(a) }

// Size 摘要字节数
func (a HashAlgo) Size() int {
	if a == SHA1 {
		return 20
	}
	return 32
}

// HexSize 摘要 hex 长度
func (a HashAlgo) HexSize() int { return a.Size() * 2 }

// ZeroHash 当前算法下的全 0 ID，用于 reflog 中表示“不存在”
func (a HashAlgo) ZeroHash() Hash {
	return Hash(strings.Repeat("0", a.HexSize()))
}

// New 返回流式 hasher (pack 尾部校验会用到)
func (a HashAlgo) New() hash.Hash {
	if a == SHA1 {
		return sha1cd.New()
	}
	return sha256.New()
}

// Sum 计算整块数据的摘要。SHA-1 会做碰撞检测，检测到碰撞直接报错。
func (a HashAlgo) Sum(data []byte) (Hash, error) {
	switch a {
	case SHA1:
		sum, collision := sha1cd.Sum(data)
		if collision {
			return "", ErrHashCollision
		}
		return HashFromBytes(sum[:]), nil
	case SHA256, "":
		sum := sha256.Sum256(data)
		return HashFromBytes(sum[:]), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgo, string(a))
	}
}

// Owns 判断 ID 长度是否属于该算法
func (a HashAlgo) Owns(h Hash) bool {
	return len(h) == a.HexSize() && h.IsValid()
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
