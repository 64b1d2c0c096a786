package pack

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"

	"gitvault/pkg/core"
	"gitvault/pkg/storage"
	"gitvault/pkg/types"
)

// Entry 解压并校验过的条目
type Entry struct {
	Kind core.ObjectType
	ID   types.Hash
	Data []byte // 规范字节
}

// Reader 逐条读取；读完最后一条后校验尾部摘要并返回 io.EOF
type Reader struct {
	br    *bufio.Reader
	hr    *hashingReader
	algo  types.HashAlgo
	count uint32
	read  uint32
	done  bool

	maxObject int64
}

type ReaderOption func(*Reader)

// WithMaxObjectSize 单个对象解压后 (规范字节) 的上限
func WithMaxObjectSize(n int64) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.maxObject = n
		}
	}
}

// hashingReader 只对实际消费的字节求摘要，bufio 的预读不会混进来
type hashingReader struct {
	r *bufio.Reader
	h hash.Hash
}

func (h *hashingReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	h.h.Write(p[:n])
	return n, err
}

func (h *hashingReader) ReadByte() (byte, error) {
	b, err := h.r.ReadByte()
	if err == nil {
		h.h.Write([]byte{b})
	}
	return b, err
}

func NewReader(r io.Reader, opts ...ReaderOption) (*Reader, error) {
	br := bufio.NewReader(r)
	hdr := make([]byte, headerLen)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if string(hdr[:4]) != magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadHeader, hdr[:4])
	}
	if hdr[4] != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadHeader, hdr[4])
	}
	algo, err := algoFromCode(hdr[5])
	if err != nil {
		return nil, err
	}
	h := algo.New()
	h.Write(hdr)
	pr := &Reader{
		br:        br,
		hr:        &hashingReader{r: br, h: h},
		algo:      algo,
		count:     binary.BigEndian.Uint32(hdr[6:]),
		maxObject: defaultMaxObject,
	}
	for _, opt := range opts {
		opt(pr)
	}
	return pr, nil
}

func (r *Reader) Algo() types.HashAlgo { return r.algo }
func (r *Reader) Count() uint32        { return r.count }

func (r *Reader) Next() (Entry, error) {
	if r.done {
		return Entry{}, io.EOF
	}
	if r.read == r.count {
		if err := r.verifyTrailer(); err != nil {
			return Entry{}, err
		}
		r.done = true
		return Entry{}, io.EOF
	}

	code, err := r.hr.ReadByte()
	if err != nil {
		return Entry{}, truncated(err)
	}
	kind, err := kindFromCode(code)
	if err != nil {
		return Entry{}, err
	}
	digest := make([]byte, r.algo.Size())
	if _, err := io.ReadFull(r.hr, digest); err != nil {
		return Entry{}, truncated(err)
	}
	n, err := binary.ReadUvarint(r.hr)
	if err != nil {
		return Entry{}, truncated(err)
	}
	if n > maxEntrySize {
		return Entry{}, fmt.Errorf("pack: entry of %d bytes exceeds limit", n)
	}
	compressed := make([]byte, n)
	if _, err := io.ReadFull(r.hr, compressed); err != nil {
		return Entry{}, truncated(err)
	}
	r.read++

	id := types.HashFromBytes(digest)
	data, err := storage.DecompressLimit(compressed, r.maxObject)
	if err != nil {
		return Entry{}, fmt.Errorf("pack: entry %s: %w", id.Short(), err)
	}
	sum, err := r.algo.Sum(data)
	if err != nil {
		return Entry{}, err
	}
	if sum != id {
		return Entry{}, fmt.Errorf("%w: %s hashes to %s", ErrObjectMismatch, id, sum)
	}
	return Entry{Kind: kind, ID: id, Data: data}, nil
}

func (r *Reader) verifyTrailer() error {
	want := r.hr.h.Sum(nil)
	got := make([]byte, len(want))
	if _, err := io.ReadFull(r.br, got); err != nil {
		return truncated(err)
	}
	if !bytes.Equal(want, got) {
		return ErrChecksum
	}
	return nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return fmt.Errorf("pack read: %w", err)
}
