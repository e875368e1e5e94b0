package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// NoRequest is the request type of routes that take no input.
type NoRequest struct{}

// WrapHandler binds and validates Req before calling f, then renders the
// Response f returns. Status defaults to 200 and a nil Response renders 204.
// Handlers that already wrote to the connection are left alone.
func WrapHandler[Req any](f func(c echo.Context, req Req) (*Response, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req Req
		if err := BindAndValidate(c, &req); err != nil {
			return err
		}

		resp, err := f(c, req)
		if err != nil {
			return err
		}
		if c.Response().Committed {
			return nil
		}
		return render(c, resp)
	}
}

func render(c echo.Context, resp *Response) error {
	if resp == nil {
		c.Response().Header().Del(echo.HeaderContentType)
		return c.NoContent(http.StatusNoContent)
	}

	code := resp.Status
	if code == 0 {
		code = http.StatusOK
	}
	if code == http.StatusNoContent {
		return c.NoContent(code)
	}
	return c.JSON(code, resp)
}
