package service

import (
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ChunkSize 每条 BytesValue 消息的最大载荷
const ChunkSize = 256 * 1024

// =============================================================================
// 1. Upload Adapter: gRPC Stream -> io.Reader
// =============================================================================

// BytesReceiver 定义了所需的最小集合，方便测试 Mock
type BytesReceiver interface {
	Recv() (*wrapperspb.BytesValue, error)
}

// GrpcStreamReader 将 gRPC 字节流包装为 io.Reader
// 供 odb.PutBlob / pack.Unpack 使用
type GrpcStreamReader struct {
	stream      BytesReceiver
	internalBuf []byte // 从 Recv 拿到的、还没被 Read 读走的数据
	err         error  // 流的状态错误 (如 EOF)
}

func NewGrpcStreamReader(stream BytesReceiver) *GrpcStreamReader {
	return &GrpcStreamReader{stream: stream}
}

// Read 实现了 io.Reader 接口
// 这是一个典型的“缓冲-消费”状态机
func (r *GrpcStreamReader) Read(p []byte) (int, error) {
	for len(r.internalBuf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		msg, err := r.stream.Recv()
		if err != nil {
			r.err = err // 可能是 io.EOF
			return 0, err
		}
		// 空块直接跳过
		r.internalBuf = msg.GetValue()
	}

	n := copy(p, r.internalBuf)
	r.internalBuf = r.internalBuf[n:]
	return n, nil
}

// =============================================================================
// 2. Download Adapter: io.Writer -> gRPC Stream
// =============================================================================

type BytesSender interface {
	Send(*wrapperspb.BytesValue) error
}

// GrpcStreamWriter 把写入切成不超过 ChunkSize 的消息
// 建议外面套一层 bufio.Writer，避免产生大量小消息
type GrpcStreamWriter struct {
	stream BytesSender
}

func NewGrpcStreamWriter(stream BytesSender) *GrpcStreamWriter {
	return &GrpcStreamWriter{stream: stream}
}

func (w *GrpcStreamWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := min(len(p), ChunkSize)
		// Send 之后底层可能仍持有消息，复制一份
		chunk := make([]byte, n)
		copy(chunk, p[:n])
		if err := w.stream.Send(wrapperspb.Bytes(chunk)); err != nil {
			return written, err
		}
		written += n
		p = p[n:]
	}
	return written, nil
}
