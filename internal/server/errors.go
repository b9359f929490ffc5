package server

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nainya/orgstore/pkg/accountability"
	"github.com/nainya/orgstore/pkg/chain"
	"github.com/nainya/orgstore/pkg/storage"
)

// toStatus maps domain errors onto gRPC status codes
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, chain.ErrNotHead), errors.Is(err, chain.ErrInvariantViolation):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, chain.ErrInvalidArgument), errors.Is(err, accountability.ErrInvalid):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, accountability.ErrExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, storage.ErrConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, storage.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
