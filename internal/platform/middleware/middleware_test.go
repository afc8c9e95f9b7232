package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	err := RequestID()(func(c echo.Context) error {
		if rid, _ := c.Get("request_id").(string); rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	})(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_ = RequestID()(func(c echo.Context) error { return nil })(c)

	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestLogger_LogsStatusFromError(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients/x", nil), httptest.NewRecorder())
	c.Set("request_id", "req-1")

	err := Logger(logger)(func(c echo.Context) error {
		return apperr.NotFound("patient")
	})(c)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected error to pass through, got %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["status"] != float64(404) {
		t.Errorf("expected status 404, got %v", line["status"])
	}
	if line["level"] != "warn" {
		t.Errorf("expected warn level, got %v", line["level"])
	}
	if line["request_id"] != "req-1" {
		t.Errorf("expected request id, got %v", line["request_id"])
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/panic", nil), httptest.NewRecorder())

	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		panic("test panic")
	})(c)

	if !apperr.Is(err, apperr.KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ok", nil), httptest.NewRecorder())

	if err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func renderError(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorBody) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	c.Set("request_id", "req-9")

	ErrorHandler(zerolog.Nop())(err, c)

	var body ErrorBody
	if decErr := json.Unmarshal(rec.Body.Bytes(), &body); decErr != nil {
		t.Fatalf("decode body: %v", decErr)
	}
	return rec, body
}

func TestErrorHandler_Validation(t *testing.T) {
	rec, body := renderError(t, apperr.Validation(
		apperr.FieldError{Field: "amount", Message: "must be greater than or equal to 0"},
	))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if len(body.FieldErrors) != 1 || body.FieldErrors[0].Field != "amount" {
		t.Errorf("expected field error on amount, got %+v", body.FieldErrors)
	}
	if body.Code != "validation_error" || body.RequestID != "req-9" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestErrorHandler_Kinds(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.NotFound("doctor"), http.StatusNotFound},
		{apperr.SlotConflict("slot already booked"), http.StatusConflict},
		{apperr.DoctorUnavailable("on leave"), http.StatusConflict},
		{apperr.InvalidTransition("completed", "scheduled"), http.StatusUnprocessableEntity},
		{echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"), http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		rec, _ := renderError(t, tt.err)
		if rec.Code != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, rec.Code)
		}
	}
}

func TestErrorHandler_HidesInternalDetail(t *testing.T) {
	rec, body := renderError(t, errors.New("pq: password authentication failed"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(body.Message, "password") {
		t.Errorf("internal detail leaked: %q", body.Message)
	}
}
