package domain

import (
	"errors"
	"fmt"
)

// Upstream status codes that carry meaning beyond their message.
const (
	StatusSuccess      = "000"
	StatusNoData       = "013"
	StatusRateExceeded = "020"
)

// Error codes for failures that do not come from the upstream status field.
const (
	CodeTransport       = "NETWORK_ERROR"
	CodeInvalidResponse = "INVALID_RESPONSE"
	CodeEmptyResponse   = "EMPTY_RESPONSE"
	CodeNotFound        = "NOT_FOUND"
	CodeInternal        = "INTERNAL_ERROR"
)

// TransportError is a network or HTTP level failure talking to the upstream.
type TransportError struct {
	StatusCode int // 0 when no response was received
	Endpoint   string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error: HTTP %d (endpoint: %s)", e.StatusCode, e.Endpoint)
	}
	return fmt.Sprintf("transport error (endpoint: %s): %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamError is a failure reported by the provider in its status field.
type UpstreamError struct {
	Code    string
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// InvalidResponseError means a payload could not be interpreted.
type InvalidResponseError struct {
	Reason string
}

func (e *InvalidResponseError) Error() string {
	return "invalid response: " + e.Reason
}

// EmptyResponseError means the upstream answered with an empty body.
type EmptyResponseError struct {
	Endpoint string
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("empty response from %s", e.Endpoint)
}

// NotFoundError means a company query matched nothing in the directory.
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no company matches %q; use the exact company name or a 6-digit stock code", e.Query)
}

// InternalError wraps an unexpected failure.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Err.Error()
}

func (e *InternalError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying: network failures,
// empty bodies and the upstream rate-limit status. Invalid keys, missing
// data and malformed requests are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var ee *EmptyResponseError
	if errors.As(err, &ee) {
		return true
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Code == StatusRateExceeded
	}
	return false
}

// ErrorCode returns a stable code for err, suitable for client-facing payloads.
func ErrorCode(err error) string {
	var (
		ue *UpstreamError
		te *TransportError
		ie *InvalidResponseError
		ee *EmptyResponseError
		nf *NotFoundError
	)
	switch {
	case errors.As(err, &ue):
		return ue.Code
	case errors.As(err, &nf):
		return CodeNotFound
	case errors.As(err, &te):
		return CodeTransport
	case errors.As(err, &ie):
		return CodeInvalidResponse
	case errors.As(err, &ee):
		return CodeEmptyResponse
	default:
		return CodeInternal
	}
}

// IsNotFound reports whether err means "nothing there": an unresolved
// company or an upstream no-data status.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return true
	}
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Code == StatusNoData
}

// IsRateLimited reports whether the upstream refused the call for rate reasons.
func IsRateLimited(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Code == StatusRateExceeded
}
