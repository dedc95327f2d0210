// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package lattigo

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/luxfi/afhe/backend"
)

type plaintext struct{ *rlwe.Plaintext }

func (plaintext) Kind() backend.Kind { return backend.KindPlaintext }

type ciphertext struct{ *rlwe.Ciphertext }

func (ciphertext) Kind() backend.Kind { return backend.KindCiphertext }

func (c ciphertext) Scale() float64 { return c.Ciphertext.Scale.Float64() }

// Keys live at the top of the chain, so they report the context's max level.

type secretKey struct {
	*rlwe.SecretKey
	level int
}

func (secretKey) Kind() backend.Kind { return backend.KindSecretKey }
func (k secretKey) Level() int       { return k.level }

type publicKey struct {
	*rlwe.PublicKey
	level int
}

func (publicKey) Kind() backend.Kind { return backend.KindPublicKey }
func (k publicKey) Level() int       { return k.level }

type relinKey struct {
	*rlwe.RelinearizationKey
	level int
}

func (relinKey) Kind() backend.Kind { return backend.KindRelinKey }
func (k relinKey) Level() int       { return k.level }

type galoisKeys struct {
	*rlwe.MemEvaluationKeySet
	level int
}

func (galoisKeys) Kind() backend.Kind { return backend.KindGaloisKeys }
func (k galoisKeys) Level() int       { return k.level }

func asPlaintext(o backend.Object) (*rlwe.Plaintext, error) {
	if p, ok := o.(*plaintext); ok && p != nil {
		return p.Plaintext, nil
	}
	return nil, fmt.Errorf("%w: want plaintext, got %T", ErrForeignObject, o)
}

func asCiphertext(o backend.Object) (*rlwe.Ciphertext, error) {
	if c, ok := o.(*ciphertext); ok && c != nil {
		return c.Ciphertext, nil
	}
	return nil, fmt.Errorf("%w: want ciphertext, got %T", ErrForeignObject, o)
}

func asSecretKey(o backend.Object) (*rlwe.SecretKey, error) {
	if k, ok := o.(*secretKey); ok && k != nil {
		return k.SecretKey, nil
	}
	return nil, fmt.Errorf("%w: want secret key, got %T", ErrForeignObject, o)
}

func asPublicKey(o backend.Object) (*rlwe.PublicKey, error) {
	if k, ok := o.(*publicKey); ok && k != nil {
		return k.PublicKey, nil
	}
	return nil, fmt.Errorf("%w: want public key, got %T", ErrForeignObject, o)
}

func asRelinKey(o backend.Object) (*rlwe.RelinearizationKey, error) {
	if o == nil {
		return nil, nil
	}
	if k, ok := o.(*relinKey); ok && k != nil {
		return k.RelinearizationKey, nil
	}
	return nil, fmt.Errorf("%w: want relinearization key, got %T", ErrForeignObject, o)
}

func asGaloisKeys(o backend.Object) ([]*rlwe.GaloisKey, error) {
	if o == nil {
		return nil, nil
	}
	k, ok := o.(*galoisKeys)
	if !ok || k == nil {
		return nil, fmt.Errorf("%w: want galois keys, got %T", ErrForeignObject, o)
	}
	gks := make([]*rlwe.GaloisKey, 0, len(k.GaloisKeys))
	for _, gk := range k.GaloisKeys {
		gks = append(gks, gk)
	}
	return gks, nil
}
