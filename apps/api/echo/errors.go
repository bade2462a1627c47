package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/eduavalia/backend/core"
	"github.com/eduavalia/backend/core/academic"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// newAppHTTPErrorHandler returns an echo.HTTPErrorHandler that maps the domain
// error kinds onto the response contract: every error body carries
// {"success": false, "error": ...}. signalShutdown is called whenever a
// shutdown error bubbles up, so the server can stop gracefully.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			switch {
			case core.IsNotFound(cause):
				code = http.StatusNotFound
				message = cause.Error()
			case core.IsForbidden(cause):
				code = http.StatusForbidden
				message = cause.Error()
			case core.IsConflict(cause):
				code = http.StatusConflict
				message = cause.Error()
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var p academic.Person
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					p.ID = claims.PersonID()
					p.Name = claims.Name
					p.Email = claims.Email
				}
				logger.Error(msg, errors.Wrap(err, msg), p)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug && code >= http.StatusInternalServerError {
			message = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, echo.Map{"success": false, "error": message})
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
