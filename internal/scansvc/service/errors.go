package service

import (
	"fmt"
	"net/http"
)

// Error is a failure the caller can show to the user. Code is the HTTP
// status the handlers answer with.
type Error struct {
	Code int
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func newError(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

var (
	ErrScanNotFound    = &Error{Code: http.StatusNotFound, Msg: "Scan not found"}
	ErrPatientNotFound = &Error{Code: http.StatusNotFound, Msg: "Patient record not found."}
	ErrAdminNotFound   = &Error{Code: http.StatusNotFound, Msg: "Admin account not found"}
	ErrAccessDenied    = &Error{Code: http.StatusForbidden, Msg: "Access denied."}
	ErrInvalidLogin    = &Error{Code: http.StatusUnauthorized, Msg: "Invalid email or password"}
	ErrInvalidOTP      = &Error{Code: http.StatusBadRequest, Msg: "Invalid OTP"}
	ErrOTPExpired      = &Error{Code: http.StatusBadRequest, Msg: "OTP has expired. Please request a new one."}
	ErrInvalidPatient  = &Error{Code: http.StatusUnprocessableEntity, Msg: "Invalid patient id"}
	ErrScanChanged     = &Error{Code: http.StatusConflict, Msg: "Scan was updated by another user. Reload and try again."}
)
