package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// BindAndValidate binds the request body, params and query into req and
// validates it. Invalid requests are answered with 400.
func BindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return err
	}

	if err := c.Validate(req); err != nil {
		return &ResponseError{
			Status:       http.StatusBadRequest,
			Err:          err,
			ErrorCode:    "invalid_request",
			ErrorMessage: err.Error(),
		}
	}

	return nil
}
