// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package afhe

import (
	"strconv"

	"github.com/luxfi/afhe/backend"
	"github.com/luxfi/afhe/internal/lattigo"
	"github.com/luxfi/afhe/internal/lux"
)

// Backend selects the library behind a Context.
type Backend uint8

const (
	BackendNone Backend = iota
	BackendLattigo
	BackendLux
)

// DefaultBackend is used by commands that are not told otherwise.
const DefaultBackend = BackendLux

// Scheme selects the encryption scheme.
type Scheme = backend.Scheme

const (
	SchemeNone = backend.SchemeNone
	SchemeBFV  = backend.SchemeBFV
	SchemeCKKS = backend.SchemeCKKS
	SchemeBGV  = backend.SchemeBGV
)

// KeyType selects a kind of key material.
type KeyType uint8

const (
	KeyNone KeyType = iota
	KeyPublic
	KeySecret
	KeyRelin
	KeyGalois
)

// CompressionMode is the compression applied to a serialized payload.
type CompressionMode uint8

const (
	CompressionNone CompressionMode = iota
	CompressionZlib
	CompressionZstd
)

var (
	backendNames     = map[Backend]string{BackendNone: "none", BackendLattigo: lattigo.Name, BackendLux: lux.Name}
	schemeNames      = map[Scheme]string{SchemeNone: "none", SchemeBFV: "bfv", SchemeCKKS: "ckks", SchemeBGV: "bgv"}
	keyTypeNames     = map[KeyType]string{KeyNone: "none", KeyPublic: "public", KeySecret: "secret", KeyRelin: "relin", KeyGalois: "galois"}
	compressionNames = map[CompressionMode]string{CompressionNone: "none", CompressionZlib: "zlib", CompressionZstd: "zstd"}
)

func (b Backend) String() string {
	if name, ok := backendNames[b]; ok {
		return name
	}
	return "unknown"
}

func (k KeyType) String() string {
	if name, ok := keyTypeNames[k]; ok {
		return name
	}
	return "unknown"
}

func (m CompressionMode) String() string {
	if name, ok := compressionNames[m]; ok {
		return name
	}
	return "unknown"
}

// kind maps a key type onto the backend object kind it holds.
func (k KeyType) kind() backend.Kind {
	switch k {
	case KeyPublic:
		return backend.KindPublicKey
	case KeySecret:
		return backend.KindSecretKey
	case KeyRelin:
		return backend.KindRelinKey
	case KeyGalois:
		return backend.KindGaloisKeys
	default:
		return backend.KindNone
	}
}

func lookup[T comparable](names map[T]string, name string) (T, bool) {
	for v, n := range names {
		if n == name {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// numbered names v, falling back to its number for out-of-table values.
func numbered[T ~uint8](names map[T]string, v T) string {
	if name, ok := names[v]; ok {
		return name
	}
	return strconv.Itoa(int(v))
}

func selector(name string) string {
	if name == "" {
		return "null"
	}
	return name
}

// ParseBackend maps a backend name to its selector.
func ParseBackend(name string) (Backend, error) {
	if b, ok := lookup(backendNames, name); ok {
		return b, nil
	}
	return BackendNone, newError(KindUnsupportedBackend, "Unsupported Backend: %s", selector(name))
}

// ParseScheme maps a scheme name to its selector.
func ParseScheme(name string) (Scheme, error) {
	if s, ok := lookup(schemeNames, name); ok {
		return s, nil
	}
	return SchemeNone, newError(KindUnsupportedScheme, "Unsupported Scheme: %s", selector(name))
}

// ParseKeyType maps a key type name to its selector.
func ParseKeyType(name string) (KeyType, error) {
	if k, ok := lookup(keyTypeNames, name); ok {
		return k, nil
	}
	return KeyNone, newError(KindUnsupportedKeyType, "Unsupported Key Type: %s", selector(name))
}

// ParseCompressionMode maps a compression name to its mode.
func ParseCompressionMode(name string) (CompressionMode, error) {
	if m, ok := lookup(compressionNames, name); ok {
		return m, nil
	}
	return CompressionNone, newError(KindUnsupportedCompressionMode, "Unsupported Compression Mode: %s", selector(name))
}

// Resolve returns a fresh provider for b.
func Resolve(b Backend) (backend.Provider, error) {
	switch b {
	case BackendLattigo:
		return lattigo.New(), nil
	case BackendLux:
		return lux.New(), nil
	default:
		return nil, newError(KindUnsupportedBackend, "Unsupported Backend: %s", numbered(backendNames, b))
	}
}
