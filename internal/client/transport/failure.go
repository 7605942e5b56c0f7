package transport

import (
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/imgdrop/internal/client/failure"
	"github.com/dmitrijs2005/imgdrop/internal/netx"
)

// Failure is the raw outcome of a failed transfer. It feeds the classifier
// through failure.RawError.
type Failure struct {
	Type       failure.Category
	Message    string
	Details    string
	StatusCode int
	Err        error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func (f *Failure) Raw() failure.Raw {
	return failure.Raw{Category: f.Type, Message: f.Message, Details: f.Details}
}

// Retryable reports whether the transport itself may try again: network
// trouble and 5xx only.
func (f *Failure) Retryable() bool {
	return f.Type == failure.CategoryNetwork || f.StatusCode >= http.StatusInternalServerError
}

// statusFailure classifies a non-2xx response. 4xx is validation-like except
// for auth and quota statuses, which keep the upload category so that they
// resolve to their dedicated kinds.
func statusFailure(op string, resp *http.Response, serverMsg string) *Failure {
	f := &Failure{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("%s failed: %s", op, resp.Status),
		Details:    serverMsg,
	}

	switch code := resp.StatusCode; {
	case code == http.StatusUnauthorized, code == http.StatusForbidden,
		code == http.StatusRequestEntityTooLarge, code == http.StatusTooManyRequests:
		f.Type = failure.CategoryUpload
	case code >= 400 && code < 500:
		f.Type = failure.CategoryValidation
		if serverMsg != "" {
			f.Message = serverMsg
		}
	default:
		f.Type = failure.CategoryUpload
	}
	return f
}

// networkFailure wraps an error returned by the HTTP client. Errors that
// did not come from the network, such as an unsupported URL scheme, are
// upload failures and are not retried.
func networkFailure(op string, err error) *Failure {
	f := &Failure{Type: failure.CategoryNetwork, Err: err, Details: err.Error()}
	switch {
	case netx.IsTimeout(err):
		f.Message = fmt.Sprintf("%s timed out", op)
	case netx.IsNetworkError(err):
		f.Message = fmt.Sprintf("%s failed: network error", op)
	default:
		f.Type = failure.CategoryUpload
		f.Message = fmt.Sprintf("%s failed: request error", op)
	}
	return f
}

func uploadFailure(msg string, err error) *Failure {
	f := &Failure{Type: failure.CategoryUpload, Message: msg, Err: err}
	if err != nil {
		f.Details = err.Error()
	}
	return f
}
