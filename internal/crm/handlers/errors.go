package handlers

import (
	"context"
	"errors"

	e "github.com/gartstein/solarcrm/internal/crm/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// codeOf maps domain and repository errors to gRPC status codes.
func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, e.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, e.ErrInvalidInput):
		return codes.InvalidArgument
	case errors.Is(err, e.ErrDuplicateNumber):
		return codes.AlreadyExists
	case errors.Is(err, e.ErrConflict):
		return codes.Aborted
	case errors.Is(err, e.ErrProtected):
		return codes.FailedPrecondition
	case errors.Is(err, e.ErrUnavailable):
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// mapServiceError maps domain or repository errors to appropriate gRPC status codes.
// Internal errors are logged and their detail withheld from the caller.
func mapServiceError(logger *zap.Logger, err error) error {
	code := codeOf(err)
	if code == codes.Internal {
		logger.Error("Internal server error", zap.Error(err))
		return status.Error(codes.Internal, "internal server error")
	}
	return status.Error(code, err.Error())
}
