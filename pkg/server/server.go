// Package server 组装 gRPC 服务端
package server

import (
	"context"
	"errors"
	"net"
	"time"

	gvrpc "gitvault/pkg/api/gvrpc/v1"
	"gitvault/pkg/app"
	"gitvault/pkg/service"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

// maxMsgSize 单条消息上限；大对象走流式接口
const maxMsgSize = 16 << 20

const shutdownGrace = 10 * time.Second

// New 创建注册好 Refs / Objects 服务的 grpc.Server
// 拦截器顺序: recovery 在最外层，保证日志拦截器里的 panic 也能被接住
func New(a *app.App, opts ...grpc.ServerOption) *grpc.Server {
	log := a.Log.Named("grpc")
	base := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryRecoveryInterceptor(log), UnaryLoggingInterceptor(log)),
		grpc.ChainStreamInterceptor(StreamRecoveryInterceptor(log), StreamLoggingInterceptor(log)),
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	s := grpc.NewServer(append(base, opts...)...)

	gvrpc.RegisterRefsServer(s, service.NewRefsService(a))
	gvrpc.RegisterObjectsServer(s, service.NewObjectsService(a))
	return s
}

// Serve 阻塞直到 ctx 结束，然后优雅退出
func Serve(ctx context.Context, s *grpc.Server, lis net.Listener, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
		errCh <- s.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("shutting down grpc server")
	}

	// Watch 流不会自己结束，等一会儿后强制关闭
	stopped := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownGrace):
		s.Stop()
	}
	return nil
}
