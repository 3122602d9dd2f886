package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/marmos91/dittons/pkg/adapter/rest"
	"github.com/marmos91/dittons/pkg/namespace"
)

// RemoteError is a failure reported by the server.
type RemoteError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Exception is the server-side error name, e.g. "FileNotFoundException".
	Exception string

	// Message is the server's message, path included.
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Unwrap exposes the namespace error carried by the response, so
// namespace.IsNotFound and friends work on remote failures.
func (e *RemoteError) Unwrap() error {
	return &namespace.Error{Code: e.Code(), Message: e.Message}
}

// Code maps the exception name back to a namespace error code.
func (e *RemoteError) Code() namespace.ErrorCode {
	return namespace.CodeFromString(e.Exception)
}

// IsRateLimited reports whether the server rejected the request for
// exceeding its rate limit. Such requests may be retried.
func IsRateLimited(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == http.StatusTooManyRequests
}

func decodeError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("server returned %s: %w", resp.Status, err)
	}

	var out rest.RemoteExceptionResponse
	if err := json.Unmarshal(body, &out); err != nil || out.RemoteException.Exception == "" {
		return &RemoteError{
			StatusCode: resp.StatusCode,
			Exception:  namespace.ErrIO.String(),
			Message:    fmt.Sprintf("server returned %s", resp.Status),
		}
	}

	return &RemoteError{
		StatusCode: resp.StatusCode,
		Exception:  out.RemoteException.Exception,
		Message:    out.RemoteException.Message,
	}
}
