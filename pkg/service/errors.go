package service

import (
	"context"
	"errors"

	"gitvault/pkg/graph"
	"gitvault/pkg/odb"
	"gitvault/pkg/pack"
	"gitvault/pkg/refs"
	"gitvault/pkg/types"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus 领域错误 -> gRPC 状态码
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, graph.ErrCorruptHistory):
		// 历史里缺对象，比单纯的 NotFound 更严重
		return codes.DataLoss
	case errors.Is(err, refs.ErrNotFound), errors.Is(err, odb.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, refs.ErrConflict):
		return codes.Aborted
	case errors.Is(err, refs.ErrTargetMissing):
		return codes.FailedPrecondition
	case errors.Is(err, refs.ErrCyclicReference),
		errors.Is(err, refs.ErrInvalidName),
		errors.Is(err, types.ErrInvalidPrefix),
		errors.Is(err, odb.ErrAmbiguousPrefix),
		errors.Is(err, odb.ErrTypeMismatch):
		return codes.InvalidArgument
	case errors.Is(err, odb.ErrBlobTooLarge), errors.Is(err, pack.ErrTooLarge):
		return codes.ResourceExhausted
	case errors.Is(err, pack.ErrBadHeader),
		errors.Is(err, pack.ErrChecksum),
		errors.Is(err, pack.ErrObjectMismatch),
		errors.Is(err, pack.ErrTruncated),
		errors.Is(err, pack.ErrCountMismatch),
		errors.Is(err, odb.ErrCorruptObject):
		return codes.DataLoss
	case errors.Is(err, pack.ErrAlgoMismatch):
		return codes.FailedPrecondition
	case errors.Is(err, context.Canceled), errors.Is(err, graph.ErrCancelled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	return codes.Internal
}
