package core

import (
	"fmt"

	"gitvault/pkg/types"
)

// Tag 附注标签
type Tag struct {
	Target     types.Hash
	TargetType ObjectType
	Name       string
	Tagger     Signature
	Message    string
}

type tagWire struct {
	T          ObjectType `cbor:"t"`
	Target     Link       `cbor:"o"`
	TargetType ObjectType `cbor:"k"`
	Name       string     `cbor:"n"`
	Tagger     Signature  `cbor:"g"`
	Message    string     `cbor:"m"`
}

func NewTag(target types.Hash, targetType ObjectType, name string, tagger Signature, msg string) (*Tag, error) {
	if !target.IsValid() {
		return nil, fmt.Errorf("%w: tag target id %q", ErrInvalidObject, target)
	}
	if _, err := ParseObjectType(string(targetType)); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty tag name", ErrInvalidObject)
	}
	return &Tag{Target: target, TargetType: targetType, Name: name, Tagger: tagger, Message: msg}, nil
}

func (t *Tag) Type() ObjectType { return TypeTag }
func (*Tag) isObject()          {}

func (t *Tag) marshal() ([]byte, error) {
	data, err := em.Marshal(tagWire{
		T:          TypeTag,
		Target:     NewLink(t.Target),
		TargetType: t.TargetType,
		Name:       t.Name,
		Tagger:     t.Tagger,
		Message:    t.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tag: %w", err)
	}
	return data, nil
}

func unmarshalTag(data []byte) (*Tag, error) {
	var w tagWire
	if err := dm.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: tag: %v", ErrCorruptObject, err)
	}
	if _, err := ParseObjectType(string(w.TargetType)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptObject, err)
	}
	return &Tag{
		Target:     w.Target.Hash,
		TargetType: w.TargetType,
		Name:       w.Name,
		Tagger:     w.Tagger,
		Message:    w.Message,
	}, nil
}
