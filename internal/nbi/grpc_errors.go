package nbi

import (
	"errors"
	"net/http"

	"github.com/signalsfoundry/cellular-simulator/core"
	"github.com/signalsfoundry/cellular-simulator/protocol"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrInvalidRequest indicates a request body is missing a field or carries
// a value of the wrong type.
var ErrInvalidRequest = errors.New("invalid request")

// codeFor classifies err by the core error taxonomy. Duplicate checks come
// before invalid-argument checks because an already-attached device
// matches both.
func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, core.ErrDuplicateTower),
		errors.Is(err, core.ErrDuplicateDevice):
		return codes.AlreadyExists
	case errors.Is(err, core.ErrCapacityExceeded),
		errors.Is(err, core.ErrNoChannelAvailable):
		return codes.ResourceExhausted
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, core.ErrInvalidArgument),
		errors.Is(err, protocol.ErrInvalidParameters),
		errors.Is(err, protocol.ErrUnknownKind):
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// ToStatusError maps simulator errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeFor(err), err.Error())
}

// HTTPStatus maps simulator errors onto HTTP status codes for the admin
// surface.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch codeFor(err) {
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.InvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
