package models

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrNotFound     = status.Errorf(codes.NotFound, "not found")
	ErrNoSession    = status.Errorf(codes.NotFound, "no active chat session")
	ErrInvalidDraft = status.Errorf(codes.InvalidArgument, "invalid draft")

	// ErrNotSent is returned by Send while the engine is not live.
	ErrNotSent = status.Errorf(codes.Unavailable, "You're offline. Unable to send messages.")
	// ErrSendFailed wraps an append failure reported by the feed.
	ErrSendFailed   = status.Errorf(codes.Internal, "send failed")
	ErrTornDown     = status.Errorf(codes.FailedPrecondition, "chat session is closed")
	ErrSubscription = status.Errorf(codes.Unavailable, "message feed unavailable")

	ErrCacheRead    = status.Errorf(codes.Internal, "cache read failed")
	ErrCacheWrite   = status.Errorf(codes.Internal, "cache write failed")
	ErrCacheCorrupt = status.Errorf(codes.DataLoss, "cache snapshot corrupt")

	ErrConnectivityReadOnly = status.Errorf(codes.FailedPrecondition, "connectivity is not manually controlled")
)

// Code resolves the grpc code of err, looking through wrapped errors for one
// of the sentinels above.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	for _, sentinel := range []error{
		ErrInvalidDraft, ErrNotSent, ErrSendFailed, ErrTornDown, ErrSubscription,
		ErrCacheCorrupt, ErrCacheRead, ErrCacheWrite, ErrNoSession, ErrNotFound,
		ErrConnectivityReadOnly,
	} {
		if errors.Is(err, sentinel) {
			return status.Code(sentinel)
		}
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}
