package core

import (
	"errors"
	"fmt"

	"gitvault/pkg/types"
)

var (
	// ErrCorruptObject 字节流无法解码，或者解码结果违反对象不变量
	ErrCorruptObject = errors.New("corrupt object")
	// ErrInvalidObject 构造对象时参数非法
	ErrInvalidObject = errors.New("invalid object")
)

// ObjectType 定义了仓库中的对象类型，集合是封闭的
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"   // 文件内容
	TypeTree   ObjectType = "tree"   // 目录树
	TypeCommit ObjectType = "commit" // 版本快照
	TypeTag    ObjectType = "tag"    // 附注标签
)

// ParseObjectType 解析 CLI / wire 上的类型名
func ParseObjectType(s string) (ObjectType, error) {
	switch ObjectType(s) {
	case TypeBlob, TypeTree, TypeCommit, TypeTag:
		return ObjectType(s), nil
	}
	return "", fmt.Errorf("%w: unknown object type %q", ErrInvalidObject, s)
}

// Object 是所有 Merkle DAG 节点的通用接口
// 只有本包的四种类型实现它，使用方通过 type switch 穷举处理。
type Object interface {
	// Type 返回对象类型
	Type() ObjectType

	isObject()
}

// CalculateHash 计算对象的规范编码以及它在给定算法下的 ID
func CalculateHash(algo types.HashAlgo, obj Object) (types.Hash, []byte, error) {
	data, err := Encode(obj)
	if err != nil {
		return "", nil, err
	}
	id, err := algo.Sum(data)
	if err != nil {
		return "", nil, err
	}
	return id, data, nil
}
