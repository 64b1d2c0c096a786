// Package pack 对象打包格式
//
//	header  "GVPK" | version u8 | algo u8 | count u32be
//	entry   kind u8 | id (raw digest) | uvarint len | zstd(canonical bytes)
//	trailer digest(header + entries)
package pack

import (
	"errors"
	"fmt"

	"gitvault/pkg/core"
	"gitvault/pkg/storage"
	"gitvault/pkg/types"
)

const (
	magic   = "GVPK"
	Version = 1

	headerLen = 4 + 1 + 1 + 4
	// maxEntrySize 单个压缩条目的上限，防止损坏的长度字段导致巨量分配
	maxEntrySize = 1 << 30
	// defaultMaxObject 未指定 WithMaxObjectSize 时单个对象解压后的上限
	defaultMaxObject = 1 << 32
)

var (
	ErrBadHeader      = errors.New("pack: bad header")
	ErrChecksum       = errors.New("pack: trailer checksum mismatch")
	ErrObjectMismatch = errors.New("pack: object does not match its id")
	ErrTruncated      = errors.New("pack: truncated")
	ErrCountMismatch  = errors.New("pack: object count mismatch")
	ErrAlgoMismatch   = errors.New("pack: hash algorithm mismatch")
	ErrTooLarge       = storage.ErrTooLarge
)

func algoCode(a types.HashAlgo) (byte, error) {
	switch a {
	case types.SHA1:
		return 1, nil
	case types.SHA256:
		return 2, nil
	}
	return 0, fmt.Errorf("%w: %q", types.ErrUnknownAlgo, a)
}

func algoFromCode(c byte) (types.HashAlgo, error) {
	switch c {
	case 1:
		return types.SHA1, nil
	case 2:
		return types.SHA256, nil
	}
	return "", fmt.Errorf("%w: algo code %d", ErrBadHeader, c)
}

func kindCode(t core.ObjectType) (byte, error) {
	switch t {
	case core.TypeBlob:
		return 1, nil
	case core.TypeTree:
		return 2, nil
	case core.TypeCommit:
		return 3, nil
	case core.TypeTag:
		return 4, nil
	}
	return 0, fmt.Errorf("pack: unknown object type %q", t)
}

func kindFromCode(c byte) (core.ObjectType, error) {
	switch c {
	case 1:
		return core.TypeBlob, nil
	case 2:
		return core.TypeTree, nil
	case 3:
		return core.TypeCommit, nil
	case 4:
		return core.TypeTag, nil
	}
	return "", fmt.Errorf("pack: unknown kind byte %d", c)
}
