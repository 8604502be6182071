package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrClientClosed is returned for calls made after an orderly Stop.
var ErrClientClosed = errors.New("jsonrpc: client closed")

// RemoteError is a JSON-RPC error object returned by the agent. It is scoped
// to the single call that produced it; the connection stays usable.
type RemoteError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("agent rejected the request (code %d): %s", e.Code, e.Message)
}

// TimeoutError means a control call received no response within its deadline.
// Like RemoteError it is local to the call: the connection stays usable.
type TimeoutError struct {
	Method  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("agent did not respond to %s within %s", e.Method, e.Timeout)
}

// IsTimeout reports whether err is a call deadline expiry.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsRemote reports whether err is an agent-returned JSON-RPC error.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
