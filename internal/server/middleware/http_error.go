package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const StatusClientClosedRequest = 499

var codeToHTTP = map[codes.Code]int{
	codes.OK:                 http.StatusOK,
	codes.Canceled:           StatusClientClosedRequest,
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.OutOfRange:         http.StatusBadRequest,
	codes.NotFound:           http.StatusNotFound,
	codes.AlreadyExists:      http.StatusConflict,
	codes.Aborted:            http.StatusConflict,
	codes.FailedPrecondition: http.StatusConflict,
	codes.PermissionDenied:   http.StatusForbidden,
	codes.Unauthenticated:    http.StatusUnauthorized,
	codes.ResourceExhausted:  http.StatusTooManyRequests,
	codes.Unimplemented:      http.StatusNotImplemented,
	codes.Unavailable:        http.StatusServiceUnavailable,
	codes.DeadlineExceeded:   http.StatusGatewayTimeout,
}

// HTTPStatus maps a grpc status code to the closest HTTP status.
func HTTPStatus(code codes.Code) int {
	if s, ok := codeToHTTP[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// ErrorCodeName renders a grpc code as a snake_case error code, e.g.
// FailedPrecondition becomes failed_precondition.
func ErrorCodeName(code codes.Code) string {
	name := code.String()
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NewResponseError builds the response for err from the grpc status it
// carries, if any.
func NewResponseError(err error) *ResponseError {
	st, ok := status.FromError(err)
	if !ok {
		return &ResponseError{
			Status:       http.StatusInternalServerError,
			Err:          err,
			ErrorCode:    ErrorCodeName(codes.Internal),
			ErrorMessage: http.StatusText(http.StatusInternalServerError),
		}
	}
	return &ResponseError{
		Status:       HTTPStatus(st.Code()),
		Err:          err,
		ErrorCode:    ErrorCodeName(st.Code()),
		ErrorMessage: st.Message(),
	}
}

// ErrorHandler return custom http error handler.
func ErrorHandler(log Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if err == nil || c.Response().Committed {
			return
		}

		var resp *ResponseError
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &resp):
		case errors.As(err, &httpErr):
			resp = &ResponseError{
				Status:       httpErr.Code,
				Err:          err,
				ErrorMessage: fmt.Sprint(httpErr.Message),
			}
		case errors.Is(err, context.Canceled) && c.Request().Context().Err() == context.Canceled:
			resp = &ResponseError{Status: StatusClientClosedRequest, Err: err}
		default:
			resp = NewResponseError(err)
		}

		if resp.Status == http.StatusNotFound && isNotFoundHandler(c.Handler()) {
			resp.ErrorMessage = "no route matched"
		}
		if resp.Status >= http.StatusInternalServerError {
			log.Errorw("request failed", "status", resp.Status, "error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(resp.Status)
		} else {
			err = c.JSON(resp.Status, resp)
		}
		if err != nil {
			log.Errorw("could not response", "code", resp.Status, "response_body", resp)
		}
	}
}
