// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package ffi

import (
	"errors"

	"github.com/luxfi/afhe"
)

// Result codes. Failures are negative.
const (
	CodeOK                         = 0
	CodeGenericBackendFailure      = -1
	CodeUnsupportedBackend         = -2
	CodeUnsupportedScheme          = -3
	CodeUnsupportedKeyType         = -4
	CodeParameterValidationFailed  = -5
	CodeContextNotInitialized      = -6
	CodeKeyNotGenerated            = -7
	CodeParameterMismatch          = -8
	CodeUnsupportedCompressionMode = -9
	CodeInvalidArgument            = -10
	CodePanic                      = -99
)

// Code maps err onto a result code. Errors outside the afhe taxonomy are
// generic backend failures.
func Code(err error) int {
	if err == nil {
		return CodeOK
	}
	var e *afhe.Error
	if !errors.As(err, &e) {
		return CodeGenericBackendFailure
	}
	return -1 - int(e.Kind)
}
