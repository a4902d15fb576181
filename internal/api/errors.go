package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"qctrack/internal/completion"
	"qctrack/internal/qc"
	logx "qctrack/pkg/logx"
)

var errRecorderDisabled = echo.NewHTTPError(http.StatusServiceUnavailable, "local completion cache is disabled")

// newHTTPErrorHandler maps input errors to 400, unknown machines to 404 and
// everything else to 500.
func newHTTPErrorHandler(lg logx.Logger) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var (
			code    int
			message any

			herr  *echo.HTTPError
			verrs validator.ValidationErrors
			ierr  *qc.InputError
		)
		switch {
		case errors.As(err, &herr):
			if herr.Internal != nil {
				var inner *echo.HTTPError
				if errors.As(herr.Internal, &inner) {
					herr = inner
				}
			}
			code = herr.Code
			message = herr.Message
		case errors.As(err, &verrs):
			code = http.StatusBadRequest
			message = completion.FieldErrors(verrs)
		case errors.As(err, &ierr):
			code = http.StatusBadRequest
			message = echo.Map{ierr.Field: ierr.Error()}
		case errors.Is(err, qc.ErrUnknownMachine):
			code = http.StatusNotFound
			message = err.Error()
		default:
			code = http.StatusInternalServerError
			message = http.StatusText(code)
			lg.Error("request failed",
				logx.String("request_id", ctx.Response().Header().Get(echo.HeaderXRequestID)),
				logx.String("uri", ctx.Request().RequestURI),
				logx.Err(err),
			)
		}

		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead {
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				lg.Warn("write error response", logx.Err(err))
			}
		}
	}
}
