package pack

import (
	"encoding/binary"
	"fmt"
	"hash"
	"io"

	"gitvault/pkg/core"
	"gitvault/pkg/storage"
	"gitvault/pkg/types"
)

// Writer 顺序写出一个 pack；条目数必须在开头确定
type Writer struct {
	w       io.Writer
	h       hash.Hash
	algo    types.HashAlgo
	count   uint32
	written uint32
	bytes   int64
	closed  bool
}

func NewWriter(w io.Writer, algo types.HashAlgo, count uint32) (*Writer, error) {
	code, err := algoCode(algo)
	if err != nil {
		return nil, err
	}
	pw := &Writer{w: w, h: algo.New(), algo: algo, count: count}

	hdr := make([]byte, 0, headerLen)
	hdr = append(hdr, magic...)
	hdr = append(hdr, Version, code)
	hdr = binary.BigEndian.AppendUint32(hdr, count)
	if err := pw.write(hdr); err != nil {
		return nil, err
	}
	return pw, nil
}

func (w *Writer) write(p []byte) error {
	n, err := w.w.Write(p)
	w.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("pack write: %w", err)
	}
	w.h.Write(p)
	return nil
}

// WriteRaw 写入规范字节 raw (未压缩)；id 由调用方保证与 raw 对应
func (w *Writer) WriteRaw(kind core.ObjectType, id types.Hash, raw []byte) error {
	compressed, err := storage.Compress(raw)
	if err != nil {
		return err
	}
	return w.writeCompressed(kind, id, compressed)
}

func (w *Writer) writeCompressed(kind core.ObjectType, id types.Hash, compressed []byte) error {
	if w.closed {
		return fmt.Errorf("pack: write after close")
	}
	if w.written == w.count {
		return fmt.Errorf("%w: more than %d objects", ErrCountMismatch, w.count)
	}
	if !w.algo.Owns(id) {
		return fmt.Errorf("%w: %s", ErrAlgoMismatch, id)
	}
	code, err := kindCode(kind)
	if err != nil {
		return err
	}
	digest, err := id.Bytes()
	if err != nil {
		return err
	}

	buf := make([]byte, 0, 1+len(digest)+binary.MaxVarintLen64)
	buf = append(buf, code)
	buf = append(buf, digest...)
	buf = binary.AppendUvarint(buf, uint64(len(compressed)))
	if err := w.write(buf); err != nil {
		return err
	}
	if err := w.write(compressed); err != nil {
		return err
	}
	w.written++
	return nil
}

// Close 写入尾部摘要；不关闭底层 writer
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	if w.written != w.count {
		return fmt.Errorf("%w: wrote %d of %d", ErrCountMismatch, w.written, w.count)
	}
	w.closed = true
	sum := w.h.Sum(nil)
	n, err := w.w.Write(sum)
	w.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("pack write trailer: %w", err)
	}
	return nil
}

// Size 已写出的字节数
func (w *Writer) Size() int64 { return w.bytes }
