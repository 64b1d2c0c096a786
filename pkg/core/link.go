package core

import (
	"fmt"

	"gitvault/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// Link 代表 Merkle DAG 中的一条边 (指向子节点的哈希引用)
// 在 CBOR 层面，它会被序列化为 Tag 42(0x00 + HashBytes)
type Link struct {
	Hash types.Hash
}

const (
	linkTagNumber = 42
)

// NewLink 辅助函数
func NewLink(hash types.Hash) Link {
	return Link{Hash: hash}
}

func linksOf(ids []types.Hash) []Link {
	if len(ids) == 0 {
		return nil
	}
	out := make([]Link, len(ids))
	for i, id := range ids {
		out[i] = NewLink(id)
	}
	return out
}

func hashesOf(links []Link) []types.Hash {
	if len(links) == 0 {
		return nil
	}
	out := make([]types.Hash, len(links))
	for i, l := range links {
		out[i] = l.Hash
	}
	return out
}

// MarshalCBOR 实现自定义序列化逻辑
// 规范：Tag 42, Content = [0x00, byte1, byte2...]
func (l Link) MarshalCBOR() ([]byte, error) {
	if !l.Hash.IsValid() {
		return nil, fmt.Errorf("%w: invalid hash %q in link", ErrInvalidObject, l.Hash)
	}
	hashBytes, err := l.Hash.Bytes()
	if err != nil {
		return nil, fmt.Errorf("invalid hash format in link: %w", err)
	}

	// Multibase Identity 前缀 (0x00)
	cidBytes := append([]byte{0x00}, hashBytes...)

	return em.Marshal(cbor.Tag{
		Number:  linkTagNumber,
		Content: cidBytes,
	})
}

// UnmarshalCBOR 实现自定义反序列化逻辑
func (l *Link) UnmarshalCBOR(data []byte) error {
	var tag cbor.Tag
	if err := dm.Unmarshal(data, &tag); err != nil {
		return err
	}

	// 1. 校验 Tag Number
	if tag.Number != linkTagNumber {
		return fmt.Errorf("expected tag 42 for Link, got %d", tag.Number)
	}

	// 2. 获取内容字节
	bytes, ok := tag.Content.([]byte)
	if !ok {
		return fmt.Errorf("link content must be byte string")
	}

	// 3. 严格校验 Multibase 前缀
	if len(bytes) < 1 {
		return fmt.Errorf("invalid link: empty content")
	}
	if bytes[0] != 0x00 {
		return fmt.Errorf("invalid link: missing 0x00 multibase prefix")
	}

	// 4. 摘要长度必须是 SHA-1 或 SHA-256
	raw := bytes[1:]
	if len(raw) != types.SHA1.Size() && len(raw) != types.SHA256.Size() {
		return fmt.Errorf("invalid link: digest length %d", len(raw))
	}
	l.Hash = types.HashFromBytes(raw)
	return nil
}
