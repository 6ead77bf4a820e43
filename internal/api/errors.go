package api

import (
	"errors"

	"github.com/signalsfoundry/rackplan/core"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrInvalidRequest marks a request that could not be decoded or is missing
// required fields.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps planner errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, core.ErrPlacementUnavailable):
		return status.Error(codes.ResourceExhausted, err.Error())

	case errors.Is(err, core.ErrPortOutOfRange):
		return status.Error(codes.OutOfRange, err.Error())

	case errors.Is(err, core.ErrLinkConflict),
		errors.Is(err, core.ErrRackExists),
		errors.Is(err, core.ErrDeviceExists),
		errors.Is(err, core.ErrLinkExists):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, core.ErrRackNotFound),
		errors.Is(err, core.ErrDeviceNotFound),
		errors.Is(err, core.ErrLinkNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, core.ErrInvalidLink),
		errors.Is(err, core.ErrInvalidDevice),
		errors.Is(err, core.ErrInvalidRack):
		return status.Error(codes.InvalidArgument, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
