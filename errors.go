// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package afhe

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the facade reports.
type ErrorKind uint8

const (
	KindGenericBackendFailure ErrorKind = iota
	KindUnsupportedBackend
	KindUnsupportedScheme
	KindUnsupportedKeyType
	KindParameterValidationFailed
	KindContextNotInitialized
	KindKeyNotGenerated
	KindParameterMismatch
	KindUnsupportedCompressionMode
	KindInvalidArgument
)

// Sentinel errors, one per kind. Test with errors.Is.
var (
	ErrGenericBackendFailure      = errors.New("backend failure")
	ErrUnsupportedBackend         = errors.New("unsupported backend")
	ErrUnsupportedScheme          = errors.New("unsupported scheme")
	ErrUnsupportedKeyType         = errors.New("unsupported key type")
	ErrParameterValidationFailed  = errors.New("parameter validation failed")
	ErrContextNotInitialized      = errors.New("context not initialized")
	ErrKeyNotGenerated            = errors.New("key not generated")
	ErrParameterMismatch          = errors.New("parameter mismatch")
	ErrUnsupportedCompressionMode = errors.New("unsupported compression mode")
	ErrInvalidArgument            = errors.New("invalid argument")
)

var sentinels = [...]error{
	KindGenericBackendFailure:      ErrGenericBackendFailure,
	KindUnsupportedBackend:         ErrUnsupportedBackend,
	KindUnsupportedScheme:          ErrUnsupportedScheme,
	KindUnsupportedKeyType:         ErrUnsupportedKeyType,
	KindParameterValidationFailed:  ErrParameterValidationFailed,
	KindContextNotInitialized:      ErrContextNotInitialized,
	KindKeyNotGenerated:            ErrKeyNotGenerated,
	KindParameterMismatch:          ErrParameterMismatch,
	KindUnsupportedCompressionMode: ErrUnsupportedCompressionMode,
	KindInvalidArgument:            ErrInvalidArgument,
}

func (k ErrorKind) String() string {
	if int(k) < len(sentinels) {
		return sentinels[k].Error()
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is the single error type returned by the facade.
type Error struct {
	Kind ErrorKind
	// Name is the diagnostic name for parameter validation failures,
	// e.g. "invalid_argument".
	Name string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Name != "":
		return e.Name + ": " + e.Msg
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := []error{sentinels[KindGenericBackendFailure]}
	if int(e.Kind) < len(sentinels) {
		errs[0] = sentinels[e.Kind]
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the kind of err, or KindGenericBackendFailure when err did
// not come from this package.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindGenericBackendFailure
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func errNotInitialized() *Error {
	return newError(KindContextNotInitialized, "context has not been generated")
}

func errNoKey(what string) *Error {
	return newError(KindKeyNotGenerated, "key generation must be called before %s", what)
}
