package core

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

// 定义符合 DAG-CBOR 规范的编码选项
var encOptions = cbor.EncOptions{
	// 1. 强制 Map Key 排序 (Canonical)
	// 保证相同的对象生成唯一的 Hash
	Sort: cbor.SortCanonical,

	//2.浮点数必须使用64位表示
	ShortestFloat: cbor.ShortestFloatNone,
	// 3. 时间格式化为 Unix 整数
	Time:    cbor.TimeUnix,
	TimeTag: cbor.EncTagNone,

	// 4. 禁止不定长编码 (Indefinite Length)
	IndefLength: cbor.IndefLengthForbidden,

	// 5. nil 与空切片编码一致，否则同一个对象会有两种字节表示
	NilContainers: cbor.NilContainerAsEmpty,

	BigIntConvert: cbor.BigIntConvertShortest,
}

// 全局复用的编码模式
var em, _ = encOptions.EncMode()

// 定义符合 DAG-CBOR 规范的解码选项
var decOptions = cbor.DecOptions{
	// --- 安全性配置 (防 DoS 攻击) ---
	MaxArrayElements: 100000,
	MaxMapPairs:      10000,
	MaxNestedLevels:  100,

	// --- 规范性配置 (DAG-CBOR Strictness) ---
	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
	BignumTag:   cbor.BignumTagForbidden,
	TimeTag:     cbor.DecTagIgnored,
}

var dm, _ = decOptions.DecMode()

// blob 不走 CBOR，直接加一个 "blob <len>\x00" 的信封
var blobMagic = []byte("blob ")

// 非 blob 对象公共的头部，只用于分派
type header struct {
	T ObjectType `cbor:"t"`
}

// Encode 返回对象的规范字节表示，ID 就是这段字节的摘要
func Encode(obj Object) ([]byte, error) {
	switch o := obj.(type) {
	case *Blob:
		return encodeBlob(o.Data), nil
	case *Tree:
		return o.marshal()
	case *Commit:
		return o.marshal()
	case *Tag:
		return o.marshal()
	case nil:
		return nil, fmt.Errorf("%w: nil object", ErrInvalidObject)
	default:
		return nil, fmt.Errorf("%w: unsupported object %T", ErrInvalidObject, obj)
	}
}

// Decode 把规范字节还原成对象
func Decode(data []byte) (Object, error) {
	if bytes.HasPrefix(data, blobMagic) {
		payload, err := decodeBlob(data)
		if err != nil {
			return nil, err
		}
		return &Blob{Data: payload}, nil
	}

	var h header
	if err := dm.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptObject, err)
	}

	switch h.T {
	case TypeTree:
		return unmarshalTree(data)
	case TypeCommit:
		return unmarshalCommit(data)
	case TypeTag:
		return unmarshalTag(data)
	default:
		return nil, fmt.Errorf("%w: unknown object type %q", ErrCorruptObject, h.T)
	}
}

func encodeBlob(data []byte) []byte {
	size := strconv.Itoa(len(data))
	buf := make([]byte, 0, len(blobMagic)+len(size)+1+len(data))
	buf = append(buf, blobMagic...)
	buf = append(buf, size...)
	buf = append(buf, 0)
	return append(buf, data...)
}

func decodeBlob(data []byte) ([]byte, error) {
	rest := data[len(blobMagic):]
	nul := bytes.IndexByte(rest, 0)
	if nul <= 0 {
		return nil, fmt.Errorf("%w: blob header missing NUL", ErrCorruptObject)
	}
	size, err := strconv.Atoi(string(rest[:nul]))
	if err != nil || size < 0 {
		return nil, fmt.Errorf("%w: bad blob size %q", ErrCorruptObject, rest[:nul])
	}
	payload := rest[nul+1:]
	if len(payload) != size {
		return nil, fmt.Errorf("%w: blob size %d, got %d bytes", ErrCorruptObject, size, len(payload))
	}
	if size == 0 {
		return nil, nil
	}
	return append([]byte(nil), payload...), nil
}
