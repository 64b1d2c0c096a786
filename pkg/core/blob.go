package core

// Blob 文件内容，不透明字节
type Blob struct {
	Data []byte
}

// NewBlob 空内容统一为 nil
func NewBlob(data []byte) *Blob {
	if len(data) == 0 {
		return &Blob{}
	}
	return &Blob{Data: data}
}

func (b *Blob) Type() ObjectType { return TypeBlob }
func (b *Blob) Size() int        { return len(b.Data) }
func (*Blob) isObject()          {}
