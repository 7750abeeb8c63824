// Package apperr defines the error kinds shared by the adapters and the
// orchestrator, so callers branch on a kind instead of matching message text.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindPermission
	KindInvalidArgument
	KindRateLimited
	KindTimeout
	KindUnauthorized
	KindInvalidModel
	KindEmptyResponse
	KindGenerationFailed
	KindRemoteCallFailed
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	KindConfiguration:    "configuration",
	KindPermission:       "permission",
	KindInvalidArgument:  "invalid_argument",
	KindRateLimited:      "rate_limited",
	KindTimeout:          "timeout",
	KindUnauthorized:     "unauthorized",
	KindInvalidModel:     "invalid_model",
	KindEmptyResponse:    "empty_response",
	KindGenerationFailed: "generation_failed",
	KindRemoteCallFailed: "remote_call_failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrConfiguration    = &Error{Kind: KindConfiguration}
	ErrPermission       = &Error{Kind: KindPermission}
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
	ErrRateLimited      = &Error{Kind: KindRateLimited}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
	ErrInvalidModel     = &Error{Kind: KindInvalidModel}
	ErrEmptyResponse    = &Error{Kind: KindEmptyResponse}
	ErrGenerationFailed = &Error{Kind: KindGenerationFailed}
	ErrRemoteCallFailed = &Error{Kind: KindRemoteCallFailed}
)

// Error is the tagged error value used across the module.
type Error struct {
	Kind    Kind
	Op      string   // operation that failed, e.g. "vector.query"
	Message string   // human readable description
	Missing []string // configuration keys, set for KindConfiguration
	Status  int      // remote HTTP status when known
	Err     error    // underlying cause
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Message != "":
		b.WriteString(e.Message)
	default:
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Missing builds a configuration error listing every missing key.
func Missing(op string, keys []string) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Op:      op,
		Message: "missing required environment variables: " + strings.Join(keys, ", "),
		Missing: append([]string(nil), keys...),
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
