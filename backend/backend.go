// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package backend defines what a homomorphic-encryption library has to provide
// to sit behind the afhe facade.
//
// A Provider turns a Literal into a Context. The Context owns the native
// parameter set, its encoder and the key generator; everything it hands out is
// an opaque Object that only the same backend can consume again.
package backend

import "fmt"

// Scheme selects the homomorphic encryption scheme.
type Scheme uint8

const (
	SchemeNone Scheme = iota
	SchemeBFV
	SchemeCKKS
	SchemeBGV
)

func (s Scheme) String() string {
	switch s {
	case SchemeBFV:
		return "bfv"
	case SchemeCKKS:
		return "ckks"
	case SchemeBGV:
		return "bgv"
	default:
		return "none"
	}
}

// Kind tags an Object with what it holds.
type Kind uint8

const (
	KindNone Kind = iota
	KindPlaintext
	KindCiphertext
	KindSecretKey
	KindPublicKey
	KindRelinKey
	KindGaloisKeys
	// KindParameters tags a serialized parameter set. Backends never produce it.
	KindParameters
)

func (k Kind) String() string {
	switch k {
	case KindPlaintext:
		return "plaintext"
	case KindCiphertext:
		return "ciphertext"
	case KindSecretKey:
		return "secret key"
	case KindPublicKey:
		return "public key"
	case KindRelinKey:
		return "relinearization key"
	case KindGaloisKeys:
		return "galois keys"
	case KindParameters:
		return "parameters"
	default:
		return "none"
	}
}

// Literal is the backend-neutral parameter set handed to a Provider.
type Literal struct {
	Scheme Scheme
	LogN   int
	// PlainModulus is zero for CKKS.
	PlainModulus uint64
	LogQ         []int
	LogP         []int
	// LogScale is the log2 of the CKKS default scale.
	LogScale int
	// Batching enables the slot encoder for BFV and BGV.
	Batching bool
}

// ValidationError reports parameters the backend refused, with a short
// diagnostic name in the style "invalid_argument".
type ValidationError struct {
	Name    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Name + ": " + e.Message
}

// Invalid builds a ValidationError.
func Invalid(name, format string, args ...any) *ValidationError {
	return &ValidationError{Name: name, Message: fmt.Sprintf(format, args...)}
}

// Provider builds contexts for one library.
type Provider interface {
	// Name is the selector string of the backend.
	Name() string
	// BatchingModulus returns a prime of exactly bits bits that is congruent to
	// 1 modulo 2^(logN+1).
	BatchingModulus(logN, bits int) (uint64, error)
	// SupportsBatching reports whether t allows a full slot encoder at degree 2^logN.
	SupportsBatching(logN int, t uint64) bool
	// NewContext validates lit and builds a context. Rejected parameters come
	// back as *ValidationError.
	NewContext(lit Literal) (Context, error)
}

// Object is an opaque backend artifact.
type Object interface {
	Kind() Kind
	Level() int
	BinarySize() int
	MarshalBinary() ([]byte, error)
}

// Ciphertext is an Object with ciphertext metadata.
type Ciphertext interface {
	Object
	// Degree is the number of components minus one.
	Degree() int
	Scale() float64
}

// Context is a validated parameter set with its encoder and key generator.
type Context interface {
	Literal() Literal
	N() int
	MaxLevel() int
	PlainModulus() uint64
	// SlotCount is zero when no slot encoder is attached.
	SlotCount() int

	GenKeyPair() (sk, pk Object, err error)
	GenPublicKey(sk Object) (Object, error)
	GenRelinKey(sk Object) (Object, error)
	// GenGaloisKeys returns rotation keys for every power-of-two step.
	GenGaloisKeys(sk Object) (Object, error)

	Encrypt(pk Object, pt Object) (Ciphertext, error)
	Decrypt(sk Object, ct Ciphertext) (Object, error)
	// NoiseBudget returns how many bits of noise growth ct can still absorb
	// before decryption under sk fails. Only integer schemes define it.
	NoiseBudget(sk Object, ct Ciphertext) (int, error)
	// NewEvaluator binds the evaluation keys. Either key may be nil.
	NewEvaluator(rlk, galois Object) (Evaluator, error)

	EncodeCoeffs(coeffs []uint64) (Object, error)
	DecodeCoeffs(pt Object) ([]uint64, error)
	EncodeInts(values []int64) (Object, error)
	DecodeInts(pt Object) ([]int64, error)
	EncodeFloats(values []float64) (Object, error)
	DecodeFloats(pt Object) ([]float64, error)

	Unmarshal(kind Kind, data []byte) (Object, error)
}

// Evaluator runs homomorphic operations. Every method allocates its output.
type Evaluator interface {
	Add(a, b Ciphertext) (Ciphertext, error)
	AddPlain(a Ciphertext, pt Object) (Ciphertext, error)
	Sub(a, b Ciphertext) (Ciphertext, error)
	SubPlain(a Ciphertext, pt Object) (Ciphertext, error)
	Mul(a, b Ciphertext) (Ciphertext, error)
	MulPlain(a Ciphertext, pt Object) (Ciphertext, error)
	Negate(a Ciphertext) (Ciphertext, error)
	Relinearize(a Ciphertext) (Ciphertext, error)
	// ModSwitch moves a to the next level down the modulus chain.
	ModSwitch(a Ciphertext) (Ciphertext, error)
	// Rescale divides a CKKS ciphertext by the last modulus of its level.
	Rescale(a Ciphertext) (Ciphertext, error)
	Rotate(a Ciphertext, steps int) (Ciphertext, error)
}
