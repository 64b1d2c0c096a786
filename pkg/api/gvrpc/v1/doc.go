// Package gvrpc 定义 gitvault.v1 的 gRPC 服务
//
// 消息全部使用 protobuf well-known types (structpb / wrapperspb / emptypb)，
// 不依赖 protoc 生成代码。Struct 里各字段的含义见每个方法的注释。
package gvrpc
