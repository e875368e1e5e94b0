package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "nil", err: nil, want: codes.OK},
		{name: "sentinel", err: ErrNotSent, want: codes.Unavailable},
		{name: "wrapped sentinel", err: fmt.Errorf("%w: %w", ErrSendFailed, errors.New("timeout")), want: codes.Internal},
		{name: "wrapped draft", err: fmt.Errorf("%w: empty", ErrInvalidDraft), want: codes.InvalidArgument},
		{name: "foreign status", err: status.Error(codes.PermissionDenied, "denied"), want: codes.PermissionDenied},
		{name: "plain", err: errors.New("boom"), want: codes.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}
