// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package afhe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	for _, b := range []Backend{BackendNone, BackendLattigo, BackendLux} {
		got, err := ParseBackend(b.String())
		require.NoError(t, err)
		assert.Equal(t, b, got)
	}
	for _, s := range []Scheme{SchemeNone, SchemeBFV, SchemeCKKS, SchemeBGV} {
		got, err := ParseScheme(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	for _, k := range []KeyType{KeyNone, KeyPublic, KeySecret, KeyRelin, KeyGalois} {
		got, err := ParseKeyType(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	for _, m := range modes {
		got, err := ParseCompressionMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
}

func TestParseUnknown(t *testing.T) {
	cases := []struct {
		parse func(string) error
		input string
		kind  ErrorKind
		want  string
	}{
		{func(s string) error { _, err := ParseBackend(s); return err }, "seal", KindUnsupportedBackend, "Unsupported Backend: seal"},
		{func(s string) error { _, err := ParseBackend(s); return err }, "", KindUnsupportedBackend, "Unsupported Backend: null"},
		{func(s string) error { _, err := ParseScheme(s); return err }, "tfhe", KindUnsupportedScheme, "Unsupported Scheme: tfhe"},
		{func(s string) error { _, err := ParseScheme(s); return err }, "", KindUnsupportedScheme, "Unsupported Scheme: null"},
		{func(s string) error { _, err := ParseKeyType(s); return err }, "bootstrap", KindUnsupportedKeyType, "Unsupported Key Type: bootstrap"},
		{func(s string) error { _, err := ParseCompressionMode(s); return err }, "lz4", KindUnsupportedCompressionMode, "Unsupported Compression Mode: lz4"},
	}
	for _, tc := range cases {
		err := tc.parse(tc.input)
		require.Error(t, err)
		assert.Equal(t, tc.kind, KindOf(err))
		assert.Equal(t, tc.want, err.Error())
	}
}

func TestResolve(t *testing.T) {
	for _, b := range backends {
		p, err := Resolve(b)
		require.NoError(t, err)
		assert.Equal(t, b.String(), p.Name())
	}
	_, err := Resolve(Backend(42))
	require.ErrorIs(t, err, ErrUnsupportedBackend)
	assert.Equal(t, "Unsupported Backend: 42", err.Error())

	_, err = New(Backend(7))
	assert.EqualError(t, err, "Unsupported Backend: 7")
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("ring degree mismatch")
	err := wrapError(KindParameterMismatch, cause, "load ciphertext")
	assert.ErrorIs(t, err, ErrParameterMismatch)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, "load ciphertext: ring degree mismatch", err.Error())

	var e *Error
	require.ErrorAs(t, error(err), &e)
	assert.Equal(t, "parameter mismatch", e.Kind.String())
}

func TestWrapErrorKeepsVerbsInNames(t *testing.T) {
	cause := errors.New("level 3")
	err := wrapError(KindGenericBackendFailure, cause, "%s", "rotate 100%d")
	assert.Equal(t, "rotate 100%d: level 3", err.Error())
	assert.ErrorIs(t, err, ErrGenericBackendFailure)
}
