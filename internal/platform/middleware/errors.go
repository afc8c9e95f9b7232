package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Message     string              `json:"message"`
	Code        string              `json:"code"`
	FieldErrors []apperr.FieldError `json:"fieldErrors,omitempty"`
	Details     map[string]any      `json:"details,omitempty"`
	RequestID   string              `json:"requestId,omitempty"`
}

func statusOf(err error) int {
	if ae, ok := apperr.As(err); ok {
		return ae.Status()
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func bodyOf(err error) ErrorBody {
	if ae, ok := apperr.As(err); ok {
		if ae.Kind == apperr.KindInternal {
			return ErrorBody{Message: "internal server error", Code: string(apperr.KindInternal)}
		}
		return ErrorBody{
			Message:     ae.Message,
			Code:        string(ae.Kind),
			FieldErrors: ae.FieldErrors,
			Details:     ae.Details,
		}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return ErrorBody{Message: msg, Code: codeForStatus(he.Code)}
	}
	return ErrorBody{Message: "internal server error", Code: string(apperr.KindInternal)}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(apperr.KindInvalidRequest)
	case http.StatusUnauthorized:
		return string(apperr.KindUnauthorized)
	case http.StatusForbidden:
		return string(apperr.KindForbidden)
	case http.StatusNotFound:
		return string(apperr.KindNotFound)
	case http.StatusTooManyRequests:
		return string(apperr.KindRateLimited)
	}
	if status >= 500 {
		return string(apperr.KindInternal)
	}
	return "http_error"
}

// ErrorHandler renders errors returned by handlers and middleware as
// ErrorBody. Unclassified errors become 500 and are logged with their cause.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := statusOf(err)
		body := bodyOf(err)
		body.RequestID, _ = c.Get("request_id").(string)

		if status >= 500 {
			logger.Error().Err(err).Str("request_id", body.RequestID).Msg("unhandled error")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}
