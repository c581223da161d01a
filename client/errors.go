package client

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyOpen   = errors.New("connection already opened")
	ErrEmptyToken    = errors.New("empty session token")
	ErrUsernameTaken = errors.New("username already taken")
	ErrHubStopped    = errors.New("hub stopped")
)

// ConnectionError reports a connection that could not be established or was
// lost abnormally. The session is over once it is returned.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %s", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SendError reports an outbound frame the transport rejected.
type SendError struct {
	Err error
}

func (e *SendError) Error() string { return "send: " + e.Err.Error() }

func (e *SendError) Unwrap() error { return e.Err }

// RegistrationError is a rejection returned by the registration or login
// endpoint. It is never retried.
type RegistrationError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration rejected (%d %s): %s", e.StatusCode, e.Status, e.Message)
}

func (e *RegistrationError) Is(target error) bool {
	return target == ErrUsernameTaken && strings.Contains(e.Message, "already exists")
}
