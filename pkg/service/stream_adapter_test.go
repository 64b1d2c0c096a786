package service

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type fakeRecv struct {
	chunks [][]byte
}

func (f *fakeRecv) Recv() (*wrapperspb.BytesValue, error) {
	if len(f.chunks) == 0 {
		return nil, io.EOF
	}
	c := f.chunks[0]
	f.chunks = f.chunks[1:]
	return wrapperspb.Bytes(c), nil
}

type fakeSend struct {
	msgs [][]byte
}

func (f *fakeSend) Send(m *wrapperspb.BytesValue) error {
	f.msgs = append(f.msgs, m.GetValue())
	return nil
}

func TestGrpcStreamReader(t *testing.T) {
	r := NewGrpcStreamReader(&fakeRecv{chunks: [][]byte{
		[]byte("hello "), {}, []byte("wor"), []byte("ld"),
	}})
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))

	// EOF 之后保持 EOF
	n, err := r.Read(make([]byte, 4))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestGrpcStreamWriter_Chunks(t *testing.T) {
	s := &fakeSend{}
	w := NewGrpcStreamWriter(s)

	data := make([]byte, ChunkSize+10)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := w.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	require.Len(t, s.msgs, 2)
	assert.Len(t, s.msgs[0], ChunkSize)
	assert.Len(t, s.msgs[1], 10)

	// 发出去的消息不能和调用方的缓冲区共享
	data[0] = 0xff
	assert.Equal(t, byte(0), s.msgs[0][0])
}
