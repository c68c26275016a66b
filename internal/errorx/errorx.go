// Package errorx carries the HTTP error classes the core distinguishes as
// a single CodeError type, and provides StatusAndMessage for the go-zero
// rest/httpx error handler that cmd/guardianapi registers, so every logic
// method can just return an error.
package errorx

import (
	"errors"
	"net/http"
)

// CodeError is the error type every Logic method returns for a classified
// failure. Handlers never inspect it directly — it is translated to
// {"error": msg} + status by the httpx error handler registered once at
// startup, which calls StatusAndMessage.
type CodeError struct {
	Code int
	Msg  string
}

func (e *CodeError) Error() string { return e.Msg }

func new(code int, msg string) error { return &CodeError{Code: code, Msg: msg} }

// Validation: 400 — missing fields, out-of-range numbers, bad array shape.
func Validation(msg string) error { return new(http.StatusBadRequest, msg) }

// AuthMissing: 401 — no signature/timestamp where required, no cron secret.
func AuthMissing(msg string) error { return new(http.StatusUnauthorized, msg) }

// AuthInvalid: 403 — signature check failed, skew exceeded, cron secret
// mismatch, guardian not authorized. The message is intentionally generic
// so the caller never learns which sub-check failed.
func AuthInvalid() error { return new(http.StatusForbidden, "invalid signature or authorization") }

// NotFound: 404 — no config, no session (or expired), no switch (or not
// yours), unknown recipient username.
func NotFound(msg string) error { return new(http.StatusNotFound, msg) }

// Conflict: 409 — guardian already approved this session.
func Conflict(msg string) error { return new(http.StatusConflict, msg) }

// NotReady: 403 — shares requested before the approval threshold is met.
// Distinct condition from AuthInvalid, same status code.
func NotReady(msg string) error { return new(http.StatusForbidden, msg) }

// Internal: 500 — store I/O, serialization, or any unhandled failure.
func Internal(msg string) error { return new(http.StatusInternalServerError, msg) }

// StatusAndMessage unwraps a CodeError into the pair the httpx error handler
// needs. Every error a Logic method returns is already a *CodeError; an
// unclassified error reaching here is httpx.Parse rejecting the request
// body, which is a client mistake, so it falls back to 400, not 500.
func StatusAndMessage(err error) (int, string) {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code, ce.Msg
	}
	return http.StatusBadRequest, "invalid request"
}
